package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"backend"},
	)

	cacheMissesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"backend"},
	)

	cacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Total number of cache evictions",
		},
		[]string{"backend"},
	)

	cacheSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kms",
			Subsystem: "cache",
			Name:      "size",
			Help:      "Current number of entries in the cache",
		},
		[]string{"backend"},
	)

	cacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kms",
			Subsystem: "cache",
			Name:      "operation_duration_seconds",
			Help:      "Duration of cache operations",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
		[]string{"backend", "operation"},
	)

	cacheErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "cache",
			Name:      "errors_total",
			Help:      "Total number of cache errors",
		},
		[]string{"backend", "operation"},
	)
)

// MustRegisterMetrics registers the cache collectors with the given
// Prometheus registry. promauto registers metrics with the default
// global registry, but the sidecar serves /metrics from a custom
// registry; calling MustRegisterMetrics bridges the two.
func MustRegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEvictionsTotal,
		cacheSize,
		cacheOperationDuration,
		cacheErrorsTotal,
	)
}

func recordHit(backend string) {
	cacheHitsTotal.WithLabelValues(backend).Inc()
}

func recordMiss(backend string) {
	cacheMissesTotal.WithLabelValues(backend).Inc()
}

func recordEviction(backend string) {
	cacheEvictionsTotal.WithLabelValues(backend).Inc()
}

func setSize(backend string, size int) {
	cacheSize.WithLabelValues(backend).Set(float64(size))
}

func observeOperation(backend, operation string, duration time.Duration) {
	cacheOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

func recordError(backend, operation string) {
	cacheErrorsTotal.WithLabelValues(backend, operation).Inc()
}
