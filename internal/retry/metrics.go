package retry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// attemptsTotal counts individual attempts per operation.
	attemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Total number of attempts, by operation and attempt number",
		},
		[]string{"operation", "attempt"},
	)

	// outcomesTotal counts finished operations by result.
	outcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "retry",
			Name:      "outcomes_total",
			Help:      "Total number of finished operations, by result",
		},
		[]string{"operation", "result"},
	)

	// operationDuration measures the total duration of an operation
	// including all attempts and backoff waits.
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kms",
			Subsystem: "retry",
			Name:      "duration_seconds",
			Help:      "Total duration of retried operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "result"},
	)

	// backoffDuration measures backoff wait times.
	backoffDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kms",
			Subsystem: "retry",
			Name:      "backoff_duration_seconds",
			Help:      "Duration of backoff waits in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation", "attempt"},
	)
)

// RecordAttempt records a single attempt.
func RecordAttempt(operation string, attempt int) {
	attemptsTotal.WithLabelValues(operation, strconv.Itoa(attempt)).Inc()
}

// RecordOutcome records the final outcome of an operation.
func RecordOutcome(operation string, success bool, elapsed time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	outcomesTotal.WithLabelValues(operation, result).Inc()
	operationDuration.WithLabelValues(operation, result).Observe(elapsed.Seconds())
}

// RecordBackoff records a backoff wait before the given attempt.
func RecordBackoff(operation string, attempt int, wait time.Duration) {
	backoffDuration.WithLabelValues(operation, strconv.Itoa(attempt)).Observe(wait.Seconds())
}

// MustRegisterMetrics registers the retry collectors with the given
// Prometheus registry. promauto registers metrics with the default
// global registry, but the sidecar serves /metrics from a custom
// registry; calling MustRegisterMetrics bridges the two.
func MustRegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(
		attemptsTotal,
		outcomesTotal,
		operationDuration,
		backoffDuration,
	)
}
