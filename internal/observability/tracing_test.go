package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestNewTracer_Disabled(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{
		ServiceName: "test-service",
		Enabled:     false,
	})

	require.NoError(t, err)
	assert.NotNil(t, tracer)

	// Disabled tracer still produces usable (noop) spans
	ctx, span := tracer.StartSpan(context.Background(), "test-span")
	assert.NotNil(t, ctx)
	assert.NotNil(t, span)
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestNewTracer_EnabledWithoutEndpoint(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{
		ServiceName:  "test-service",
		Enabled:      true,
		SamplingRate: 1.0,
	})

	require.NoError(t, err)
	assert.NotNil(t, tracer)

	ctx, span := tracer.StartSpan(context.Background(), "test-span",
		trace.WithSpanKind(trace.SpanKindClient))
	assert.NotNil(t, ctx)
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, tracer.Shutdown(ctx))
}

func TestCreateSampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rate float64
		want sdktrace.Sampler
	}{
		{name: "always sample", rate: 1.0, want: sdktrace.AlwaysSample()},
		{name: "above one", rate: 2.0, want: sdktrace.AlwaysSample()},
		{name: "never sample", rate: 0, want: sdktrace.NeverSample()},
		{name: "negative", rate: -0.5, want: sdktrace.NeverSample()},
		{name: "ratio", rate: 0.5, want: sdktrace.TraceIDRatioBased(0.5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sampler := createSampler(tt.rate)

			assert.Equal(t, tt.want.Description(), sampler.Description())
		})
	}
}

func TestBuildRetryConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name                string
		config              *OTLPRetryConfig
		wantEnabled         bool
		wantInitialInterval time.Duration
	}{
		{
			name:                "nil config uses defaults",
			config:              nil,
			wantEnabled:         true,
			wantInitialInterval: DefaultOTLPRetryInitialInterval,
		},
		{
			name: "custom values",
			config: &OTLPRetryConfig{
				Enabled:         true,
				InitialInterval: 2 * time.Second,
				MaxInterval:     time.Minute,
				MaxElapsedTime:  5 * time.Minute,
			},
			wantEnabled:         true,
			wantInitialInterval: 2 * time.Second,
		},
		{
			name: "zero values fall back to defaults",
			config: &OTLPRetryConfig{
				Enabled: false,
			},
			wantEnabled:         false,
			wantInitialInterval: DefaultOTLPRetryInitialInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := buildRetryConfig(tt.config)

			assert.Equal(t, tt.wantEnabled, cfg.Enabled)
			assert.Equal(t, tt.wantInitialInterval, cfg.InitialInterval)
			assert.NotZero(t, cfg.MaxInterval)
			assert.NotZero(t, cfg.MaxElapsedTime)
		})
	}
}

func TestBuildOTLPExporterOptions(t *testing.T) {
	t.Parallel()

	opts := buildOTLPExporterOptions(TracerConfig{
		ServiceName:  "test-service",
		OTLPEndpoint: "localhost:4317",
		Enabled:      true,
	})

	assert.Len(t, opts, 5)
}

func TestSpanFromContext(t *testing.T) {
	t.Parallel()

	span := SpanFromContext(context.Background())

	// Returns a noop span when no span is active
	assert.NotNil(t, span)
	assert.False(t, span.SpanContext().IsValid())
}

func TestAddTraceContext(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{
		ServiceName:  "test-service",
		Enabled:      true,
		SamplingRate: 1.0,
	})
	require.NoError(t, err)

	ctx, span := tracer.StartSpan(context.Background(), "test-span")
	defer span.End()

	ctx = AddTraceContext(ctx, span)

	assert.NotEmpty(t, TraceIDFromContext(ctx))
	assert.NotEmpty(t, SpanIDFromContext(ctx))
}

func TestInjectExtractTraceContext(t *testing.T) {
	t.Parallel()

	tracer, err := NewTracer(TracerConfig{
		ServiceName:  "test-service",
		Enabled:      true,
		SamplingRate: 1.0,
	})
	require.NoError(t, err)

	ctx, span := tracer.StartSpan(context.Background(), "outgoing")
	defer span.End()

	req := httptest.NewRequest(http.MethodPost, "http://example.com/token", nil)
	InjectTraceContext(ctx, req)

	assert.NotEmpty(t, req.Header.Get("Traceparent"))

	extracted := ExtractTraceContext(context.Background(), req)
	extractedSpan := trace.SpanFromContext(extracted)
	assert.Equal(t,
		span.SpanContext().TraceID(),
		extractedSpan.SpanContext().TraceID(),
	)
}
