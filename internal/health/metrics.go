package health

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "health",
			Name:      "checks_total",
			Help:      "Total number of dependency health checks by result",
		},
		[]string{"check", "result"},
	)

	checkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kms",
			Subsystem: "health",
			Name:      "check_duration_seconds",
			Help:      "Duration of dependency health checks",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"check"},
	)

	dependencyUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kms",
			Subsystem: "health",
			Name:      "dependency_up",
			Help:      "Current dependency status (1=healthy, 0=unhealthy)",
		},
		[]string{"dependency", "type"},
	)

	probesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "health",
			Name:      "probes_total",
			Help:      "Total number of probe requests served",
		},
		[]string{"probe"},
	)
)

// MustRegisterMetrics registers the health collectors with the given
// Prometheus registry. promauto registers metrics with the default
// global registry, but the sidecar serves /metrics from a custom
// registry; calling MustRegisterMetrics bridges the two.
func MustRegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(
		checksTotal,
		checkDuration,
		dependencyUp,
		probesTotal,
	)
}

func recordHealthCheck(name string, healthy bool, seconds float64) {
	result := "success"
	if !healthy {
		result = "error"
	}
	checksTotal.WithLabelValues(name, result).Inc()
	checkDuration.WithLabelValues(name).Observe(seconds)
}

func setDependencyHealthStatus(name, depType string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	dependencyUp.WithLabelValues(name, depType).Set(value)
}

func recordProbe(probe string) {
	probesTotal.WithLabelValues(probe).Inc()
}
