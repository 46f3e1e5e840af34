package circuitbreaker

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue reads the current value of a labelled counter.
func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	metric, err := vec.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)

	counterMetric := &dto.Metric{}
	require.NoError(t, metric.Write(counterMetric))
	require.NotNil(t, counterMetric.Counter)
	return *counterMetric.Counter.Value
}

func TestRecordHelpers(t *testing.T) {
	const name = "record-helpers-breaker"

	successesBefore := counterValue(t, breakerSuccessesTotal, name)
	failuresBefore := counterValue(t, breakerFailuresTotal, name)
	rejectionsBefore := counterValue(t, breakerRejectedTotal, name)

	recordRequest(name, "closed")
	recordRejection(name)
	recordFailure(name)
	recordSuccess(name)
	recordSuccess(name)
	recordStateChange(name, gobreaker.StateClosed, gobreaker.StateOpen)

	assert.Equal(t, float64(2), counterValue(t, breakerSuccessesTotal, name)-successesBefore)
	assert.Equal(t, float64(1), counterValue(t, breakerFailuresTotal, name)-failuresBefore)
	assert.Equal(t, float64(1), counterValue(t, breakerRejectedTotal, name)-rejectionsBefore)

	gauge, err := breakerState.GetMetricWithLabelValues(name)
	require.NoError(t, err)

	gaugeMetric := &dto.Metric{}
	require.NoError(t, gauge.Write(gaugeMetric))
	require.NotNil(t, gaugeMetric.Gauge)
	assert.Equal(t, float64(gobreaker.StateOpen), *gaugeMetric.Gauge.Value)
}

func TestMustRegisterMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	MustRegisterMetrics(registry)

	recordRequest("test", "closed")
	recordRejection("test")
	recordFailure("test")
	recordSuccess("test")
	recordStateChange("test", gobreaker.StateClosed, gobreaker.StateOpen)

	families, err := registry.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["kms_circuitbreaker_state"])
	assert.True(t, names["kms_circuitbreaker_requests_total"])
	assert.True(t, names["kms_circuitbreaker_rejected_total"])
	assert.True(t, names["kms_circuitbreaker_failures_total"])
	assert.True(t, names["kms_circuitbreaker_successes_total"])
	assert.True(t, names["kms_circuitbreaker_state_changes_total"])
}
