// Package retry provides bounded retry with backoff.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// Default retry configuration constants.
const (
	// DefaultMaxAttempts is the default total number of attempts,
	// including the first one.
	DefaultMaxAttempts = 4

	// DefaultInitialBackoff is the default initial backoff duration.
	DefaultInitialBackoff = 100 * time.Millisecond

	// DefaultMaxBackoff is the default maximum backoff duration.
	DefaultMaxBackoff = 30 * time.Second

	// DefaultJitterFactor is the default jitter factor (25%).
	DefaultJitterFactor = 0.25

	// MaxJitterFactor is the maximum allowed jitter factor.
	MaxJitterFactor = 1.0
)

// ErrNoAttempts is returned by Do when the configuration permits zero
// attempts. The operation is never invoked in that case.
var ErrNoAttempts = errors.New("retry: no attempts permitted")

// Config contains retry configuration parameters.
type Config struct {
	// MaxAttempts is the total number of attempts, including the
	// first one. Zero means the operation is never invoked and Do
	// fails immediately; leave the config nil for defaults.
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	// Default is 100ms.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	// Default is 30s.
	MaxBackoff time.Duration

	// JitterFactor is the jitter factor (0.0 to 1.0) to add randomness to backoff.
	// Default is 0.25 (25% jitter).
	JitterFactor float64

	// Backoff optionally selects a backoff strategy. When nil, Do
	// uses exponential backoff derived from the fields above.
	Backoff *BackoffConfig
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

// GetMaxAttempts returns the effective attempt count. A nil config
// yields the default; an explicit zero or negative count yields zero,
// which makes Do fail without invoking the operation.
func (c *Config) GetMaxAttempts() int {
	if c == nil {
		return DefaultMaxAttempts
	}
	if c.MaxAttempts < 0 {
		return 0
	}
	return c.MaxAttempts
}

// GetInitialBackoff returns the effective initial backoff.
func (c *Config) GetInitialBackoff() time.Duration {
	if c == nil || c.InitialBackoff <= 0 {
		return DefaultInitialBackoff
	}
	return c.InitialBackoff
}

// GetMaxBackoff returns the effective max backoff.
func (c *Config) GetMaxBackoff() time.Duration {
	if c == nil || c.MaxBackoff <= 0 {
		return DefaultMaxBackoff
	}
	return c.MaxBackoff
}

// GetJitterFactor returns the effective jitter factor.
func (c *Config) GetJitterFactor() float64 {
	if c == nil || c.JitterFactor <= 0 {
		return DefaultJitterFactor
	}
	if c.JitterFactor > MaxJitterFactor {
		return MaxJitterFactor
	}
	return c.JitterFactor
}

// newBackoff returns the backoff strategy for this config.
func (c *Config) newBackoff() Backoff {
	if c != nil && c.Backoff != nil {
		return NewBackoffFromConfig(c.Backoff)
	}
	return nil
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func() error

// ShouldRetryFunc determines if an error should trigger a retry.
type ShouldRetryFunc func(error) bool

// OnRetryFunc is called before each retry attempt.
type OnRetryFunc func(attempt int, err error, backoff time.Duration)

// Options contains optional retry behavior configuration.
type Options struct {
	// Operation names the operation for metrics. Empty disables
	// metric recording.
	Operation string

	// ShouldRetry determines if an error should trigger a retry.
	// If nil, all errors are retried.
	ShouldRetry ShouldRetryFunc

	// OnRetry is called before each retry attempt.
	OnRetry OnRetryFunc
}

// Do executes a function with retry logic. The function is invoked up
// to cfg.GetMaxAttempts() times; a zero attempt budget fails with
// ErrNoAttempts without invoking it at all. Between attempts Do waits
// for a backoff interval, aborting early when ctx is cancelled.
func Do(ctx context.Context, cfg *Config, fn RetryableFunc, opts *Options) error {
	maxAttempts := cfg.GetMaxAttempts()
	if maxAttempts <= 0 {
		return ErrNoAttempts
	}

	initialBackoff := cfg.GetInitialBackoff()
	maxBackoff := cfg.GetMaxBackoff()
	jitterFactor := cfg.GetJitterFactor()
	strategy := cfg.newBackoff()

	operation := ""
	if opts != nil {
		operation = opts.Operation
	}

	start := time.Now()

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		// Check context before each attempt
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if operation != "" {
			RecordAttempt(operation, attempt+1)
		}

		lastErr = fn()
		if lastErr == nil {
			if operation != "" {
				RecordOutcome(operation, true, time.Since(start))
			}
			return nil
		}

		// Check if error is retryable
		if opts != nil && opts.ShouldRetry != nil && !opts.ShouldRetry(lastErr) {
			if operation != "" {
				RecordOutcome(operation, false, time.Since(start))
			}
			return lastErr
		}

		// Don't sleep after the last attempt
		if attempt < maxAttempts-1 {
			var backoff time.Duration
			if strategy != nil {
				backoff = strategy.Next(attempt)
			} else {
				backoff = CalculateBackoff(attempt, initialBackoff, maxBackoff, jitterFactor)
			}

			// Call OnRetry callback if provided
			if opts != nil && opts.OnRetry != nil {
				opts.OnRetry(attempt+1, lastErr, backoff)
			}
			if operation != "" {
				RecordBackoff(operation, attempt+1, backoff)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	if operation != "" {
		RecordOutcome(operation, false, time.Since(start))
	}
	return lastErr
}

// CalculateBackoff calculates the backoff duration for a given attempt.
func CalculateBackoff(attempt int, initialBackoff, maxBackoff time.Duration, jitterFactor float64) time.Duration {
	// Exponential backoff
	backoff := float64(initialBackoff) * math.Pow(2, float64(attempt))

	// Add jitter to prevent thundering herd
	// Using math/rand is acceptable here as this is for timing, not security
	//nolint:gosec // G404: jitter for retry timing is not security-sensitive
	jitter := backoff * jitterFactor * rand.Float64()
	backoff += jitter

	// Cap at maxBackoff
	if backoff > float64(maxBackoff) {
		backoff = float64(maxBackoff)
	}

	return time.Duration(backoff)
}
