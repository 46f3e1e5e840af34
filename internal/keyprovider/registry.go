package keyprovider

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vyrodovalexey/avkms/internal/identity"
	"github.com/vyrodovalexey/avkms/internal/observability"
)

// Registry shares key providers between callers. Calls with equivalent
// options return handles on the same underlying provider; the provider
// closes when the last handle is released.
type Registry struct {
	factory Factory
	logger  observability.Logger

	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	provider KeyProvider
	refs     int
}

// Compile-time interface check.
var _ Factory = (*Registry)(nil)

// NewRegistry creates a registry over the given factory.
func NewRegistry(factory Factory, logger observability.Logger) *Registry {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Registry{
		factory: factory,
		logger:  logger,
		entries: make(map[string]*registryEntry),
	}
}

// Name returns the wrapped factory's vendor name.
func (r *Registry) Name() string {
	return r.factory.Name()
}

// Provider returns a handle on the provider for the options bag,
// constructing the provider on first use and sharing it afterwards.
func (r *Registry) Provider(ctx context.Context, env *Environment, opts Options) (KeyProvider, error) {
	fingerprint := opts.Fingerprint()

	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.entries[fingerprint]; ok {
		entry.refs++
		recordProviderReuse(r.factory.Name())
		return &sharedProvider{
			KeyProvider: entry.provider,
			registry:    r,
			fingerprint: fingerprint,
		}, nil
	}

	provider, err := r.factory.Provider(ctx, env, opts)
	if err != nil {
		recordProviderCreation(r.factory.Name(), false)
		return nil, err
	}
	recordProviderCreation(r.factory.Name(), true)

	r.entries[fingerprint] = &registryEntry{provider: provider, refs: 1}
	recordActiveProviders(len(r.entries))

	r.logger.Debug("key provider created",
		observability.String("provider", provider.Name()),
		observability.String("fingerprint", fingerprint[:12]),
	)

	return &sharedProvider{
		KeyProvider: provider,
		registry:    r,
		fingerprint: fingerprint,
	}, nil
}

// release drops one reference on a provider, closing it when the last
// reference goes.
func (r *Registry) release(fingerprint string) error {
	r.mu.Lock()
	entry, ok := r.entries[fingerprint]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	entry.refs--
	if entry.refs > 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, fingerprint)
	recordActiveProviders(len(r.entries))
	r.mu.Unlock()

	r.logger.Debug("key provider released",
		observability.String("provider", entry.provider.Name()),
		observability.String("fingerprint", fingerprint[:12]),
	)

	return entry.provider.Close()
}

// Count returns the number of live providers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Providers returns the live providers. The registry keeps ownership;
// callers must not close them.
func (r *Registry) Providers() []KeyProvider {
	r.mu.Lock()
	defer r.mu.Unlock()

	providers := make([]KeyProvider, 0, len(r.entries))
	for _, entry := range r.entries {
		providers = append(providers, entry.provider)
	}
	return providers
}

// CloseAll closes every provider regardless of outstanding handles.
// Handles released afterwards become no-ops.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	recordActiveProviders(0)
	r.mu.Unlock()

	var firstErr error
	for _, entry := range entries {
		if err := entry.provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// sharedProvider is one holder's handle on a shared provider. Closing
// the handle releases this holder's reference only.
type sharedProvider struct {
	KeyProvider
	registry    *Registry
	fingerprint string
	closed      atomic.Bool
}

// Token returns a bearer token for the provider's vault resource.
func (s *sharedProvider) Token(ctx context.Context) (*identity.AccessToken, error) {
	if s.closed.Load() {
		return nil, ErrProviderClosed
	}
	return s.KeyProvider.Token(ctx)
}

// Close releases this handle's reference. The underlying provider
// closes when the last reference is released.
func (s *sharedProvider) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.registry.release(s.fingerprint)
}
