package tls

import (
	"crypto/tls"
	"crypto/x509"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for client TLS material.
type Metrics struct {
	certificateExpiry *prometheus.GaugeVec
	certificateReload *prometheus.CounterVec

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

	m.certificateExpiry = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tls",
			Name:      "certificate_expiry_seconds",
			Help:      "Time until certificate expiry in seconds",
		},
		[]string{"subject", "type"},
	)

	m.certificateReload = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tls",
			Name:      "certificate_reload_total",
			Help:      "Total number of certificate reload attempts by status",
		},
		[]string{"status"},
	)

	m.registry.MustRegister(
		m.certificateExpiry,
		m.certificateReload,
	)

	return m
}

// UpdateCertificateExpiry updates the certificate expiry metric.
func (m *Metrics) UpdateCertificateExpiry(cert *x509.Certificate, certType string) {
	if cert == nil {
		return
	}

	expirySeconds := time.Until(cert.NotAfter).Seconds()
	subject := cert.Subject.CommonName
	if subject == "" {
		subject = cert.Subject.String()
	}

	m.certificateExpiry.WithLabelValues(subject, certType).Set(expirySeconds)
}

// UpdateCertificateExpiryFromTLS updates the certificate expiry metric from a tls.Certificate.
func (m *Metrics) UpdateCertificateExpiryFromTLS(cert *tls.Certificate, certType string) {
	if cert == nil || len(cert.Certificate) == 0 {
		return
	}

	x509Cert, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return
	}

	m.UpdateCertificateExpiry(x509Cert, certType)
}

// RecordCertificateReload records a certificate reload attempt.
func (m *Metrics) RecordCertificateReload(success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.certificateReload.WithLabelValues(status).Inc()
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.certificateExpiry.Describe(ch)
	m.certificateReload.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.certificateExpiry.Collect(ch)
	m.certificateReload.Collect(ch)
}

// NopMetrics is a no-op implementation of metrics for testing.
type NopMetrics struct{}

// NewNopMetrics creates a new NopMetrics instance.
func NewNopMetrics() *NopMetrics {
	return &NopMetrics{}
}

// UpdateCertificateExpiry is a no-op.
func (m *NopMetrics) UpdateCertificateExpiry(_ *x509.Certificate, _ string) {}

// UpdateCertificateExpiryFromTLS is a no-op.
func (m *NopMetrics) UpdateCertificateExpiryFromTLS(_ *tls.Certificate, _ string) {}

// RecordCertificateReload is a no-op.
func (m *NopMetrics) RecordCertificateReload(_ bool) {}

// MetricsRecorder defines the interface for recording TLS metrics.
type MetricsRecorder interface {
	UpdateCertificateExpiry(cert *x509.Certificate, certType string)
	UpdateCertificateExpiryFromTLS(cert *tls.Certificate, certType string)
	RecordCertificateReload(success bool)
}

// Ensure implementations satisfy the interface.
var (
	_ MetricsRecorder = (*Metrics)(nil)
	_ MetricsRecorder = (*NopMetrics)(nil)
)
