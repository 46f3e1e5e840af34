package identity

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokenRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "identity",
			Name:      "token_requests_total",
			Help:      "Total number of token exchange requests by flow and result",
		},
		[]string{"flow", "result"},
	)

	tokenRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kms",
			Subsystem: "identity",
			Name:      "token_request_duration_seconds",
			Help:      "Duration of token exchange requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"flow", "result"},
	)

	tokenCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "identity",
			Name:      "token_cache_hits_total",
			Help:      "Total number of token requests served from the cache",
		},
	)

	tokenCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "identity",
			Name:      "token_cache_misses_total",
			Help:      "Total number of token requests that required an exchange",
		},
	)

	tokenExpirySeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kms",
			Subsystem: "identity",
			Name:      "token_expiry_seconds",
			Help:      "Remaining lifetime of the most recently acquired token per scope",
		},
		[]string{"scope"},
	)
)

// Metric result labels.
const (
	metricResultSuccess        = "success"
	metricResultAuthError      = "auth_error"
	metricResultProtocolError  = "protocol_error"
	metricResultTransportError = "transport_error"
)

// MustRegisterMetrics registers the identity collectors with the given
// Prometheus registry. promauto registers metrics with the default
// global registry, but the sidecar serves /metrics from a custom
// registry; calling MustRegisterMetrics bridges the two.
func MustRegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(
		tokenRequestsTotal,
		tokenRequestDuration,
		tokenCacheHits,
		tokenCacheMisses,
		tokenExpirySeconds,
	)
}

func recordTokenRequest(flow Flow, result string, duration time.Duration) {
	tokenRequestsTotal.WithLabelValues(string(flow), result).Inc()
	tokenRequestDuration.WithLabelValues(string(flow), result).Observe(duration.Seconds())
}

func recordCacheHit() {
	tokenCacheHits.Inc()
}

func recordCacheMiss() {
	tokenCacheMisses.Inc()
}

func recordTokenExpiry(scope ResourceScope, ttl time.Duration) {
	tokenExpirySeconds.WithLabelValues(string(scope)).Set(ttl.Seconds())
}
