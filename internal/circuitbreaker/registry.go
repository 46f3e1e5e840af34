package circuitbreaker

import (
	"sync"

	"github.com/vyrodovalexey/avkms/internal/observability"
)

// Registry manages circuit breakers keyed by identity endpoint host so
// that credentials sharing an endpoint share its breaker.
type Registry struct {
	breakers sync.Map
	config   *Config
	logger   observability.Logger
}

// NewRegistry creates a new circuit breaker registry.
func NewRegistry(config *Config, logger observability.Logger) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &Registry{
		config: config,
		logger: logger,
	}
}

// Get returns a circuit breaker by name, or nil if not found.
func (r *Registry) Get(name string) *Breaker {
	value, ok := r.breakers.Load(name)
	if !ok {
		return nil
	}
	return value.(*Breaker)
}

// GetOrCreate returns an existing circuit breaker or creates a new one
// with the registry's default config.
func (r *Registry) GetOrCreate(name string) *Breaker {
	return r.GetOrCreateWithConfig(name, r.config)
}

// GetOrCreateWithConfig returns an existing circuit breaker or creates a
// new one with the given config.
func (r *Registry) GetOrCreateWithConfig(name string, config *Config) *Breaker {
	if value, ok := r.breakers.Load(name); ok {
		return value.(*Breaker)
	}

	cb := New(name, config, WithLogger(r.logger))

	// LoadOrStore handles concurrent creation of the same name
	actual, loaded := r.breakers.LoadOrStore(name, cb)
	if loaded {
		return actual.(*Breaker)
	}

	r.logger.Debug("created circuit breaker",
		observability.String("name", name),
	)

	return cb
}

// Remove removes a circuit breaker from the registry.
func (r *Registry) Remove(name string) {
	r.breakers.Delete(name)
	r.logger.Debug("removed circuit breaker",
		observability.String("name", name),
	)
}

// Names returns the names of all circuit breakers in the registry.
func (r *Registry) Names() []string {
	var names []string
	r.breakers.Range(func(key, _ interface{}) bool {
		names = append(names, key.(string))
		return true
	})
	return names
}

// Count returns the number of circuit breakers in the registry.
func (r *Registry) Count() int {
	count := 0
	r.breakers.Range(func(_, _ interface{}) bool {
		count++
		return true
	})
	return count
}
