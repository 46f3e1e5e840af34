package keyprovider

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerCreations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "keyprovider",
			Name:      "provider_creations_total",
			Help:      "Total number of key provider constructions by vendor and result",
		},
		[]string{"provider", "result"},
	)

	providerReuse = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "keyprovider",
			Name:      "provider_reuse_total",
			Help:      "Total number of factory calls served by an existing shared provider",
		},
		[]string{"provider"},
	)

	providersActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kms",
			Subsystem: "keyprovider",
			Name:      "providers_active",
			Help:      "Number of live shared key providers",
		},
	)
)

// MustRegisterMetrics registers the keyprovider collectors with the
// given Prometheus registry. promauto registers metrics with the default
// global registry, but the sidecar serves /metrics from a custom
// registry; calling MustRegisterMetrics bridges the two.
func MustRegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(
		providerCreations,
		providerReuse,
		providersActive,
	)
}

func recordProviderCreation(provider string, success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	providerCreations.WithLabelValues(provider, result).Inc()
}

func recordProviderReuse(provider string) {
	providerReuse.WithLabelValues(provider).Inc()
}

func recordActiveProviders(count int) {
	providersActive.Set(float64(count))
}
