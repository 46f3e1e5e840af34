package server

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "server",
			Name:      "http_requests_total",
			Help:      "Total number of API requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kms",
			Subsystem: "server",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of API requests",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10},
		},
		[]string{"method", "path"},
	)

	tokenRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "server",
			Name:      "token_requests_total",
			Help:      "Total number of token requests by credential, operation and result",
		},
		[]string{"credential", "operation", "result"},
	)
)

// MustRegisterMetrics registers the server collectors with the given
// Prometheus registry. promauto registers metrics with the default
// global registry, but the sidecar serves /metrics from a custom
// registry; calling MustRegisterMetrics bridges the two.
func MustRegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		tokenRequestsTotal,
	)
}

func recordHTTPRequest(method, path string, status int, seconds float64) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

func recordTokenRequest(credential, operation, result string) {
	tokenRequestsTotal.WithLabelValues(credential, operation, result).Inc()
}
