// Package observability provides logging, metrics, and tracing
// functionality for the key management sidecar.
//
// This package implements the three pillars of observability:
// structured logging via zap, Prometheus metrics collection, and
// distributed tracing via OpenTelemetry with OTLP export.
//
// # Logging
//
// The Logger interface provides structured logging:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("token acquired",
//	    observability.String("provider", "azure"),
//	    observability.Duration("elapsed", elapsed),
//	)
//
// # Metrics
//
// Prometheus metrics for the token API, provider health, and build
// information:
//
//	metrics := observability.NewMetrics("kms")
//	handler := metrics.Handler()
//
// Domain packages register their own collectors on the same registry
// via MustRegisterCollector so a single /metrics endpoint serves the
// whole process.
//
// # Tracing
//
// OpenTelemetry distributed tracing with OTLP export:
//
//	tracer, err := observability.NewTracer(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tracer.Shutdown(ctx)
//
// Outbound identity requests propagate trace context via
// InjectTraceContext so token exchanges correlate with the caller's
// trace.
package observability
