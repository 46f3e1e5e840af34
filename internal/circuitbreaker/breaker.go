package circuitbreaker

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avkms/internal/observability"
)

// cbTracer is the OTEL tracer used for circuit breaker operations.
var cbTracer = otel.Tracer("avkms/circuitbreaker")

// StateChangeFunc is called when the circuit breaker changes state.
type StateChangeFunc func(name string, from, to gobreaker.State)

// Breaker wraps gobreaker.CircuitBreaker with logging, metrics, and
// trace events for identity endpoint calls.
type Breaker struct {
	cb            *gobreaker.CircuitBreaker
	logger        observability.Logger
	stateCallback StateChangeFunc
	isSuccessful  func(err error) bool
}

// Option is a functional option for configuring the breaker.
type Option func(*Breaker)

// WithLogger sets the logger for the breaker.
func WithLogger(logger observability.Logger) Option {
	return func(b *Breaker) {
		b.logger = logger
	}
}

// WithStateCallback sets a callback invoked on state changes.
func WithStateCallback(fn StateChangeFunc) Option {
	return func(b *Breaker) {
		b.stateCallback = fn
	}
}

// New creates a new circuit breaker.
func New(name string, cfg *Config, opts ...Option) *Breaker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	_ = cfg.Validate()

	b := &Breaker{
		logger:       observability.NopLogger(),
		isSuccessful: cfg.IsSuccessful,
	}
	if b.isSuccessful == nil {
		b.isSuccessful = func(err error) bool { return err == nil }
	}

	for _, opt := range opts {
		opt(b)
	}

	settings := gobreaker.Settings{
		Name:         name,
		MaxRequests:  safeIntToUint32(cfg.MaxRequests),
		Interval:     cfg.Interval,
		Timeout:      cfg.Timeout,
		ReadyToTrip:  readyToTrip(cfg),
		IsSuccessful: cfg.IsSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Info("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)

			recordStateChange(name, from, to)

			// Record an OTEL span event for the state transition so it
			// appears in distributed traces that trigger the change.
			_, span := cbTracer.Start(context.Background(),
				"circuitbreaker.state_change",
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			span.AddEvent("state_change", trace.WithAttributes(
				attribute.String("circuitbreaker.name", name),
				attribute.String("circuitbreaker.from", from.String()),
				attribute.String("circuitbreaker.to", to.String()),
			))
			span.End()

			if b.stateCallback != nil {
				b.stateCallback(name, from, to)
			}
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// readyToTrip builds the trip condition from the configured thresholds.
func readyToTrip(cfg *Config) func(gobreaker.Counts) bool {
	threshold := safeIntToUint32(cfg.FailureThreshold)
	minRequests := safeIntToUint32(cfg.MinRequests)
	ratio := cfg.FailureRatio

	return func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= threshold {
			return true
		}
		if ratio > 0 && counts.Requests >= minRequests {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= ratio
		}
		return false
	}
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

// Execute executes a function with circuit breaker protection.
func (b *Breaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	name := b.cb.Name()
	recordRequest(name, b.cb.State().String())

	result, err := b.cb.Execute(fn)

	switch {
	case IsOpen(err):
		recordRejection(name)
	case b.isSuccessful(err):
		recordSuccess(name)
	default:
		recordFailure(name)
	}

	return result, err
}

// State returns the current state of the circuit breaker.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Counts returns the current request counts.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// Name returns the name of the circuit breaker.
func (b *Breaker) Name() string {
	return b.cb.Name()
}

// IsOpen reports whether the error indicates the breaker rejected the
// call without running it.
func IsOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests)
}
