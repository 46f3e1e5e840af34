package vault

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric status labels.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds Prometheus metrics for Vault operations.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authentications *prometheus.CounterVec
	tokenTTL        prometheus.Gauge

	registry *prometheus.Registry
}

// MetricsOption is a functional option for configuring Metrics.
type MetricsOption func(*Metrics)

// WithRegistry sets a custom Prometheus registry.
func WithRegistry(registry *prometheus.Registry) MetricsOption {
	return func(m *Metrics) {
		m.registry = registry
	}
}

// NewMetrics creates a new Metrics instance with the given namespace.
func NewMetrics(namespace string, opts ...MetricsOption) *Metrics {
	if namespace == "" {
		namespace = "kms"
	}

	m := &Metrics{}

	for _, opt := range opts {
		opt(m)
	}

	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}

	m.requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "requests_total",
			Help:      "Total number of Vault requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "request_duration_seconds",
			Help:      "Vault request duration in seconds by operation",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	m.authentications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "authentications_total",
			Help:      "Total number of Vault authentication attempts by method and status",
		},
		[]string{"method", "status"},
	)

	m.tokenTTL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "token_ttl_seconds",
			Help:      "Remaining TTL of the current Vault token in seconds",
		},
	)

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.authentications,
		m.tokenTTL,
	)

	return m
}

// RecordRequest records a Vault request with its outcome and duration.
func (m *Metrics) RecordRequest(operation, status string, duration time.Duration) {
	m.requests.WithLabelValues(operation, status).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAuthentication records an authentication attempt.
func (m *Metrics) RecordAuthentication(method, status string) {
	m.authentications.WithLabelValues(method, status).Inc()
}

// SetTokenTTL sets the current token TTL gauge.
func (m *Metrics) SetTokenTTL(ttlSeconds float64) {
	m.tokenTTL.Set(ttlSeconds)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.requests.Describe(ch)
	m.requestDuration.Describe(ch)
	m.authentications.Describe(ch)
	m.tokenTTL.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.requests.Collect(ch)
	m.requestDuration.Collect(ch)
	m.authentications.Collect(ch)
	m.tokenTTL.Collect(ch)
}

// NopMetrics returns a Metrics instance backed by a private registry. It is
// used when no metrics collection is configured.
func NopMetrics() *Metrics {
	return NewMetrics("")
}
