package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// unmatchedEndpoint is the label value used for requests that do not
// match any registered API endpoint, ensuring bounded cardinality.
const unmatchedEndpoint = "unmatched"

// Metrics holds all Prometheus metrics for the sidecar process.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	activeRequests  *prometheus.GaugeVec
	providerHealth  *prometheus.GaugeVec
	buildInfo       *prometheus.GaugeVec
	startTime       prometheus.Gauge
	registry        *prometheus.Registry
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "kms"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP API request duration in seconds",
			Buckets: []float64{
				.001, .005, .01, .025, .05,
				.1, .25, .5, 1, 2.5, 5, 10,
			},
		},
		[]string{"method", "endpoint", "status"},
	)

	m.activeRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help: "Number of active HTTP API " +
				"requests",
		},
		[]string{"method", "endpoint"},
	)

	m.providerHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_health",
			Help: "Key provider health status " +
				"(1=healthy, 0=unhealthy)",
		},
		[]string{"provider"},
	)

	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information for the sidecar",
		},
		[]string{"version", "commit", "build_time"},
	)

	m.startTime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "start_time_seconds",
			Help: "Start time of the sidecar " +
				"in unix seconds",
		},
	)

	m.registerCollectors()

	m.startTime.SetToCurrentTime()

	return m
}

// registerCollectors registers all metric collectors with the
// Prometheus registry.
func (m *Metrics) registerCollectors() {
	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.activeRequests,
		m.providerHealth,
		m.buildInfo,
		m.startTime,
	)

	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(
		collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		),
	)
}

// RecordRequest records a completed HTTP API request.
// The endpoint parameter should be the matched route pattern,
// not the raw request path, to prevent cardinality explosion.
func (m *Metrics) RecordRequest(
	method, endpoint string,
	status int,
	duration time.Duration,
) {
	if endpoint == "" {
		endpoint = unmatchedEndpoint
	}
	statusStr := strconv.Itoa(status)

	m.requestsTotal.WithLabelValues(
		method, endpoint, statusStr,
	).Inc()
	m.requestDuration.WithLabelValues(
		method, endpoint, statusStr,
	).Observe(duration.Seconds())
}

// IncrementActiveRequests increments the active requests gauge.
func (m *Metrics) IncrementActiveRequests(
	method, endpoint string,
) {
	if endpoint == "" {
		endpoint = unmatchedEndpoint
	}
	m.activeRequests.WithLabelValues(method, endpoint).Inc()
}

// DecrementActiveRequests decrements the active requests gauge.
func (m *Metrics) DecrementActiveRequests(
	method, endpoint string,
) {
	if endpoint == "" {
		endpoint = unmatchedEndpoint
	}
	m.activeRequests.WithLabelValues(method, endpoint).Dec()
}

// SetProviderHealth sets the health status for a key provider.
func (m *Metrics) SetProviderHealth(
	provider string, healthy bool,
) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.providerHealth.WithLabelValues(provider).Set(value)
}

// SetBuildInfo sets the build information metric.
func (m *Metrics) SetBuildInfo(
	version, commit, buildTime string,
) {
	m.buildInfo.WithLabelValues(
		version, commit, buildTime,
	).Set(1)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(
		m.registry,
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	)
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterCollector registers an additional collector with the custom
// registry. It returns an error if the collector is already registered
// or conflicts with an existing one. This allows domain packages
// (identity, retry, cache, keyprovider) to share the same registry
// that backs the /metrics endpoint.
func (m *Metrics) RegisterCollector(c prometheus.Collector) error {
	return m.registry.Register(c)
}

// MustRegisterCollector registers an additional collector with the
// custom registry, panicking on error.
func (m *Metrics) MustRegisterCollector(c prometheus.Collector) {
	m.registry.MustRegister(c)
}
