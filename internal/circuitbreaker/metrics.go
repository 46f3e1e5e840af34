package circuitbreaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kms",
			Subsystem: "circuitbreaker",
			Name:      "state",
			Help:      "Current state of the circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	breakerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "circuitbreaker",
			Name:      "requests_total",
			Help:      "Total number of requests through the circuit breaker",
		},
		[]string{"name", "state"},
	)

	breakerRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "circuitbreaker",
			Name:      "rejected_total",
			Help:      "Total number of requests rejected by an open circuit",
		},
		[]string{"name"},
	)

	breakerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "circuitbreaker",
			Name:      "failures_total",
			Help:      "Total number of failures recorded by the circuit breaker",
		},
		[]string{"name"},
	)

	breakerSuccessesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "circuitbreaker",
			Name:      "successes_total",
			Help:      "Total number of successes recorded by the circuit breaker",
		},
		[]string{"name"},
	)

	breakerStateChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "circuitbreaker",
			Name:      "state_changes_total",
			Help:      "Total number of circuit breaker state changes",
		},
		[]string{"name", "from", "to"},
	)
)

// MustRegisterMetrics registers the circuit breaker collectors with the
// given Prometheus registry. promauto registers metrics with the default
// global registry, but the sidecar serves /metrics from a custom
// registry; calling MustRegisterMetrics bridges the two.
func MustRegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(
		breakerState,
		breakerRequestsTotal,
		breakerRejectedTotal,
		breakerFailuresTotal,
		breakerSuccessesTotal,
		breakerStateChangesTotal,
	)
}

func recordRequest(name, state string) {
	breakerRequestsTotal.WithLabelValues(name, state).Inc()
}

func recordRejection(name string) {
	breakerRejectedTotal.WithLabelValues(name).Inc()
}

func recordFailure(name string) {
	breakerFailuresTotal.WithLabelValues(name).Inc()
}

func recordSuccess(name string) {
	breakerSuccessesTotal.WithLabelValues(name).Inc()
}

func recordStateChange(name string, from, to gobreaker.State) {
	breakerStateChangesTotal.WithLabelValues(name, from.String(), to.String()).Inc()
	breakerState.WithLabelValues(name).Set(float64(to))
}
