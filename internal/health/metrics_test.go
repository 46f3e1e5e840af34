package health

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHelpers(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		recordHealthCheck("cache", true, 0.002)
		recordHealthCheck("vault", false, 1.5)
		setDependencyHealthStatus("cache", string(DependencyTypeCache), true)
		setDependencyHealthStatus("vault", string(DependencyTypeVault), false)
		recordProbe("readiness")
		recordProbe("liveness")
	})
}

func TestMustRegisterMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()

	assert.NotPanics(t, func() {
		MustRegisterMetrics(registry)
	})

	recordHealthCheck("cache", true, 0.002)
	setDependencyHealthStatus("cache", string(DependencyTypeCache), true)
	recordProbe("readiness")

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}

	assert.True(t, names["kms_health_checks_total"])
	assert.True(t, names["kms_health_check_duration_seconds"])
	assert.True(t, names["kms_health_dependency_up"])
	assert.True(t, names["kms_health_probes_total"])
}
