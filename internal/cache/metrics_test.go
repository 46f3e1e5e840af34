package cache

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordHelpers(t *testing.T) {
	// Helpers record without panicking for both backends
	recordHit("memory")
	recordMiss("memory")
	recordEviction("memory")
	setSize("memory", 5)
	observeOperation("memory", "get", time.Millisecond)
	recordError("redis", "set")
}

func TestMustRegisterMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	MustRegisterMetrics(registry)

	recordHit("memory")
	recordMiss("memory")
	recordEviction("memory")
	setSize("memory", 5)
	observeOperation("memory", "get", time.Millisecond)
	recordError("redis", "set")

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["kms_cache_hits_total"])
	assert.True(t, names["kms_cache_misses_total"])
	assert.True(t, names["kms_cache_evictions_total"])
	assert.True(t, names["kms_cache_size"])
	assert.True(t, names["kms_cache_operation_duration_seconds"])
	assert.True(t, names["kms_cache_errors_total"])
}
