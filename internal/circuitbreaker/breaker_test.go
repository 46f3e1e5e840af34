package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avkms/internal/observability"
)

func TestNew(t *testing.T) {
	t.Parallel()

	cb := New("login.microsoftonline.com", DefaultConfig())

	assert.NotNil(t, cb)
	assert.NotNil(t, cb.cb)
	assert.Equal(t, "login.microsoftonline.com", cb.Name())
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestNew_NilConfig(t *testing.T) {
	t.Parallel()

	cb := New("test-cb", nil)

	assert.NotNil(t, cb)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestNew_WithLogger(t *testing.T) {
	t.Parallel()

	logger := observability.NopLogger()
	cb := New("test-cb", nil, WithLogger(logger))

	assert.NotNil(t, cb)
	assert.Equal(t, logger, cb.logger)
}

func TestBreaker_Execute(t *testing.T) {
	t.Parallel()

	cb := New("test-cb", nil)

	result, err := cb.Execute(func() (interface{}, error) {
		return "success", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "success", result)
}

func TestBreaker_Execute_WithError(t *testing.T) {
	t.Parallel()

	cb := New("test-cb", nil)

	result, err := cb.Execute(func() (interface{}, error) {
		return nil, assert.AnError
	})

	assert.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestBreaker_Execute_TripsOnConsecutiveFailures(t *testing.T) {
	t.Parallel()

	cb := New("test-cb", &Config{
		FailureThreshold: 3,
		Timeout:          time.Minute,
	})

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
	}

	require.Equal(t, gobreaker.StateOpen, cb.State())

	// Open circuit rejects without running the function
	invoked := false
	_, err := cb.Execute(func() (interface{}, error) {
		invoked = true
		return nil, nil
	})

	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.True(t, IsOpen(err))
	assert.False(t, invoked)
}

func TestBreaker_Execute_TripsOnFailureRatio(t *testing.T) {
	t.Parallel()

	cb := New("test-cb", &Config{
		FailureThreshold: 100,
		FailureRatio:     0.5,
		MinRequests:      4,
		Timeout:          time.Minute,
	})

	// Two successes keep consecutive failures below the threshold; the
	// ratio trip fires once half of the sampled requests have failed.
	outcomes := []error{nil, nil, assert.AnError, assert.AnError}
	for _, outcome := range outcomes {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, outcome
		})
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestBreaker_Execute_RecoversThroughHalfOpen(t *testing.T) {
	t.Parallel()

	cb := New("test-cb", &Config{
		FailureThreshold: 2,
		Timeout:          50 * time.Millisecond,
		MaxRequests:      1,
	})

	for i := 0; i < 2; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, assert.AnError
		})
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	// After the timeout the breaker admits a probe request
	time.Sleep(70 * time.Millisecond)

	_, err := cb.Execute(func() (interface{}, error) {
		return "recovered", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestBreaker_StateCallback(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var transitions []string

	cb := New("test-cb", &Config{
		FailureThreshold: 2,
		Timeout:          time.Minute,
	}, WithStateCallback(func(name string, from, to gobreaker.State) {
		mu.Lock()
		defer mu.Unlock()
		transitions = append(transitions, fmt.Sprintf("%s:%s->%s", name, from, to))
	}))

	for i := 0; i < 2; i++ {
		_, _ = cb.Execute(func() (interface{}, error) {
			return nil, assert.AnError
		})
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 1)
	assert.Equal(t, "test-cb:closed->open", transitions[0])
}

func TestBreaker_IsSuccessful_Custom(t *testing.T) {
	t.Parallel()

	errExpected := errors.New("expected condition")

	cb := New("test-cb", &Config{
		FailureThreshold: 2,
		Timeout:          time.Minute,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errExpected)
		},
	})

	// Errors classified as successful must not trip the circuit
	for i := 0; i < 10; i++ {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, errExpected
		})
		assert.ErrorIs(t, err, errExpected)
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestBreaker_Counts(t *testing.T) {
	t.Parallel()

	cb := New("test-cb", nil)

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, nil
		})
		require.NoError(t, err)
	}

	counts := cb.Counts()
	assert.Equal(t, uint32(3), counts.Requests)
	assert.Equal(t, uint32(3), counts.TotalSuccesses)
	assert.Equal(t, uint32(0), counts.TotalFailures)
}

func TestIsOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "open state error",
			err:      gobreaker.ErrOpenState,
			expected: true,
		},
		{
			name:     "too many requests error",
			err:      gobreaker.ErrTooManyRequests,
			expected: true,
		},
		{
			name:     "wrapped open state error",
			err:      fmt.Errorf("token exchange: %w", gobreaker.ErrOpenState),
			expected: true,
		},
		{
			name:     "other error",
			err:      assert.AnError,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, IsOpen(tt.err))
		})
	}
}

func TestSafeIntToUint32(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    int
		expected uint32
	}{
		{
			name:     "positive number",
			input:    100,
			expected: 100,
		},
		{
			name:     "zero",
			input:    0,
			expected: 0,
		},
		{
			name:     "negative number",
			input:    -1,
			expected: 0,
		},
		{
			name:     "max uint32",
			input:    int(^uint32(0)),
			expected: ^uint32(0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result := safeIntToUint32(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}
