// Package circuitbreaker provides circuit breaker protection for calls
// to identity endpoints. It prevents a failing endpoint from being
// hammered with token requests while it recovers.
package circuitbreaker

import (
	"time"
)

// Config holds configuration for a circuit breaker.
type Config struct {
	// MaxRequests is the number of probe requests allowed through while
	// the circuit is half-open.
	MaxRequests int

	// Interval is the cyclic period over which closed-state counts are
	// cleared. Zero keeps counts for the lifetime of the closed state.
	Interval time.Duration

	// Timeout is the duration the circuit stays open before transitioning
	// to half-open.
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failures that trips
	// the circuit.
	FailureThreshold int

	// FailureRatio is the failure ratio threshold (0.0 to 1.0) for opening
	// the circuit. If set, the circuit opens when the failure ratio over
	// the current interval reaches this threshold.
	// This is an alternative to FailureThreshold for ratio-based tripping.
	FailureRatio float64

	// MinRequests is the minimum number of requests required before the
	// failure ratio is evaluated. This prevents the circuit from opening
	// on the first few failures.
	MinRequests int

	// IsSuccessful determines whether an error should be counted as a
	// failure. If nil, all non-nil errors are counted as failures.
	IsSuccessful func(err error) bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		FailureRatio:     0,
		MinRequests:      10,
	}
}

// Validate validates the configuration, replacing out-of-range values
// with defaults.
func (c *Config) Validate() error {
	if c.MaxRequests < 1 {
		c.MaxRequests = 3
	}
	if c.Interval < 0 {
		c.Interval = time.Minute
	}
	if c.Timeout < time.Millisecond {
		c.Timeout = 30 * time.Second
	}
	if c.FailureThreshold < 1 {
		c.FailureThreshold = 5
	}
	if c.FailureRatio < 0 || c.FailureRatio > 1 {
		c.FailureRatio = 0
	}
	if c.MinRequests < 1 {
		c.MinRequests = 10
	}
	return nil
}
