package retry

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Backoff defines the interface for backoff strategies.
type Backoff interface {
	// Next returns the duration to wait before the next retry attempt.
	Next(attempt int) time.Duration

	// Reset resets the backoff state.
	Reset()
}

// ExponentialBackoff implements exponential backoff with optional jitter.
type ExponentialBackoff struct {
	initial time.Duration
	max     time.Duration
	factor  float64
	jitter  float64

	mu   sync.Mutex
	rand *rand.Rand
}

// NewExponentialBackoff creates a new exponential backoff.
func NewExponentialBackoff(initial, max time.Duration, factor, jitter float64) *ExponentialBackoff {
	return &ExponentialBackoff{
		initial: initial,
		max:     max,
		factor:  factor,
		jitter:  jitter,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec
	}
}

// Next implements Backoff.
func (b *ExponentialBackoff) Next(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// Calculate base backoff: initial * factor^attempt
	backoff := float64(b.initial) * math.Pow(b.factor, float64(attempt))

	// Apply maximum
	if backoff > float64(b.max) {
		backoff = float64(b.max)
	}

	// Apply jitter
	if b.jitter > 0 {
		b.mu.Lock()
		jitterRange := backoff * b.jitter
		jitterValue := (b.rand.Float64() * 2 * jitterRange) - jitterRange
		backoff += jitterValue
		b.mu.Unlock()
	}

	// Ensure non-negative
	if backoff < 0 {
		backoff = 0
	}

	return time.Duration(backoff)
}

// Reset implements Backoff.
func (b *ExponentialBackoff) Reset() {
	// ExponentialBackoff is stateless, nothing to reset
}

// ConstantBackoff implements constant backoff.
type ConstantBackoff struct {
	interval time.Duration
}

// NewConstantBackoff creates a new constant backoff.
func NewConstantBackoff(interval time.Duration) *ConstantBackoff {
	return &ConstantBackoff{
		interval: interval,
	}
}

// Next implements Backoff.
func (b *ConstantBackoff) Next(attempt int) time.Duration {
	return b.interval
}

// Reset implements Backoff.
func (b *ConstantBackoff) Reset() {
	// ConstantBackoff is stateless, nothing to reset
}

// DecorrelatedJitterBackoff implements AWS-style decorrelated jitter backoff.
type DecorrelatedJitterBackoff struct {
	initial time.Duration
	max     time.Duration

	mu      sync.Mutex
	rand    *rand.Rand
	current time.Duration
}

// NewDecorrelatedJitterBackoff creates a new decorrelated jitter backoff.
func NewDecorrelatedJitterBackoff(initial, max time.Duration) *DecorrelatedJitterBackoff {
	return &DecorrelatedJitterBackoff{
		initial: initial,
		max:     max,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec
		current: initial,
	}
}

// Next implements Backoff.
func (b *DecorrelatedJitterBackoff) Next(attempt int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	if attempt == 0 {
		b.current = b.initial
		return b.current
	}

	// sleep = min(cap, random_between(base, sleep * 3))
	minBackoff := float64(b.initial)
	maxBackoff := float64(b.current) * 3

	backoff := minBackoff + b.rand.Float64()*(maxBackoff-minBackoff)

	if backoff > float64(b.max) {
		backoff = float64(b.max)
	}

	b.current = time.Duration(backoff)
	return b.current
}

// Reset implements Backoff.
func (b *DecorrelatedJitterBackoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
}

// BackoffConfig holds configuration for creating backoff strategies.
type BackoffConfig struct {
	// Type is the backoff strategy type.
	Type BackoffType `yaml:"type"`

	// InitialInterval is the initial backoff interval.
	InitialInterval time.Duration `yaml:"initialInterval"`

	// MaxInterval is the maximum backoff interval.
	MaxInterval time.Duration `yaml:"maxInterval"`

	// Multiplier is the factor by which the backoff increases (for exponential).
	Multiplier float64 `yaml:"multiplier"`

	// Jitter is the random jitter factor (0.0 to 1.0).
	Jitter float64 `yaml:"jitter"`
}

// BackoffType represents the type of backoff strategy.
type BackoffType string

const (
	// BackoffTypeExponential uses exponential backoff with optional jitter.
	BackoffTypeExponential BackoffType = "exponential"

	// BackoffTypeDecorrelatedJitter uses AWS-style decorrelated jitter backoff.
	BackoffTypeDecorrelatedJitter BackoffType = "decorrelated_jitter"

	// BackoffTypeConstant uses constant backoff.
	BackoffTypeConstant BackoffType = "constant"
)

// DefaultBackoffConfig returns a BackoffConfig with default values.
func DefaultBackoffConfig() *BackoffConfig {
	return &BackoffConfig{
		Type:            BackoffTypeExponential,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.2,
	}
}

// ExternalServiceBackoffConfig returns a BackoffConfig optimized for
// external service connections (Vault, Redis, identity endpoints).
// Decorrelated jitter spreads reconnection storms across clients.
func ExternalServiceBackoffConfig() *BackoffConfig {
	return &BackoffConfig{
		Type:            BackoffTypeDecorrelatedJitter,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     60 * time.Second,
		Multiplier:      2.0,
		Jitter:          0.3,
	}
}

// NewBackoffFromConfig creates a Backoff from the given configuration.
func NewBackoffFromConfig(config *BackoffConfig) Backoff {
	if config == nil {
		config = DefaultBackoffConfig()
	}

	switch config.Type {
	case BackoffTypeDecorrelatedJitter:
		return NewDecorrelatedJitterBackoff(
			config.InitialInterval,
			config.MaxInterval,
		)
	case BackoffTypeConstant:
		return NewConstantBackoff(config.InitialInterval)
	case BackoffTypeExponential:
		return NewExponentialBackoff(
			config.InitialInterval,
			config.MaxInterval,
			config.Multiplier,
			config.Jitter,
		)
	default:
		return NewExponentialBackoff(
			config.InitialInterval,
			config.MaxInterval,
			config.Multiplier,
			config.Jitter,
		)
	}
}
