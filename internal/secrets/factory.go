package secrets

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/vyrodovalexey/avkms/internal/observability"
)

// ProviderConfig holds configuration for creating providers.
type ProviderConfig struct {
	// Type is the provider type.
	Type ProviderType
	// KubeClient is the Kubernetes client (required for the kubernetes provider).
	KubeClient client.Client
	// Namespace is the default namespace for Kubernetes secrets.
	Namespace string
	// LocalBasePath is the base path for local file secrets.
	LocalBasePath string
	// EnvPrefix is the prefix for environment variable secrets.
	EnvPrefix string
	// VaultConfig holds Vault-specific configuration.
	VaultConfig *VaultProviderConfig
	// Logger is the logger instance.
	Logger observability.Logger
}

// NewProvider creates a new secrets provider based on config.
func NewProvider(ctx context.Context, cfg *ProviderConfig) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrProviderNotConfigured)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	switch cfg.Type {
	case ProviderTypeKubernetes:
		return NewKubernetesProvider(&KubernetesProviderConfig{
			Client:           cfg.KubeClient,
			DefaultNamespace: cfg.Namespace,
			Logger:           logger,
		})

	case ProviderTypeVault:
		if cfg.VaultConfig == nil {
			return nil, fmt.Errorf("%w: vault config is required for vault provider", ErrProviderNotConfigured)
		}
		if cfg.VaultConfig.Logger == nil {
			cfg.VaultConfig.Logger = logger
		}
		return NewVaultProvider(ctx, cfg.VaultConfig)

	case ProviderTypeLocal:
		return NewLocalProvider(&LocalProviderConfig{
			BasePath: cfg.LocalBasePath,
			Logger:   logger,
		})

	case ProviderTypeEnv:
		return NewEnvProvider(&EnvProviderConfig{
			Prefix: cfg.EnvPrefix,
			Logger: logger,
		})

	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderType, cfg.Type)
	}
}

// NoopProvider is a provider that serves nothing. Used when secrets
// functionality is disabled.
type NoopProvider struct {
	logger observability.Logger
}

// NewNoopProvider creates a new no-op provider.
func NewNoopProvider(logger observability.Logger) *NoopProvider {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &NoopProvider{logger: logger}
}

// Type returns the provider type.
func (p *NoopProvider) Type() ProviderType {
	return ProviderType("noop")
}

// GetSecret always returns not found.
func (p *NoopProvider) GetSecret(_ context.Context, path string) (*Secret, error) {
	p.logger.Debug("noop provider get", observability.String("path", path))
	return nil, ErrSecretNotFound
}

// ListSecrets always returns an empty list.
func (p *NoopProvider) ListSecrets(_ context.Context, _ string) ([]string, error) {
	return []string{}, nil
}

// WriteSecret always returns a read-only error.
func (p *NoopProvider) WriteSecret(_ context.Context, _ string, _ map[string][]byte) error {
	return ErrReadOnly
}

// DeleteSecret always returns a read-only error.
func (p *NoopProvider) DeleteSecret(_ context.Context, _ string) error {
	return ErrReadOnly
}

// IsReadOnly returns true.
func (p *NoopProvider) IsReadOnly() bool {
	return true
}

// HealthCheck always succeeds.
func (p *NoopProvider) HealthCheck(_ context.Context) error {
	return nil
}

// Close does nothing.
func (p *NoopProvider) Close() error {
	return nil
}

// CachingProvider wraps a provider with a TTL cache for reads. Writes and
// deletes invalidate the cached entry.
type CachingProvider struct {
	provider Provider
	mu       sync.RWMutex
	cache    map[string]*cachedSecret
	ttl      time.Duration
	logger   observability.Logger
}

type cachedSecret struct {
	secret    *Secret
	expiresAt time.Time
}

// NewCachingProvider creates a new caching provider wrapper.
func NewCachingProvider(provider Provider, ttl time.Duration, logger observability.Logger) *CachingProvider {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &CachingProvider{
		provider: provider,
		cache:    make(map[string]*cachedSecret),
		ttl:      ttl,
		logger:   logger,
	}
}

// Type returns the underlying provider type.
func (p *CachingProvider) Type() ProviderType {
	return p.provider.Type()
}

// GetSecret retrieves a secret, serving from cache when fresh.
func (p *CachingProvider) GetSecret(ctx context.Context, path string) (*Secret, error) {
	p.mu.RLock()
	cached, ok := p.cache[path]
	p.mu.RUnlock()

	if ok && time.Now().Before(cached.expiresAt) {
		p.logger.Debug("secret cache hit", observability.String("path", path))
		return cached.secret, nil
	}

	secret, err := p.provider.GetSecret(ctx, path)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[path] = &cachedSecret{
		secret:    secret,
		expiresAt: time.Now().Add(p.ttl),
	}
	p.mu.Unlock()

	return secret, nil
}

// ListSecrets delegates to the underlying provider.
func (p *CachingProvider) ListSecrets(ctx context.Context, path string) ([]string, error) {
	return p.provider.ListSecrets(ctx, path)
}

// WriteSecret delegates to the underlying provider and invalidates the cache.
func (p *CachingProvider) WriteSecret(ctx context.Context, path string, data map[string][]byte) error {
	err := p.provider.WriteSecret(ctx, path, data)
	if err == nil {
		p.InvalidateCache(path)
	}
	return err
}

// DeleteSecret delegates to the underlying provider and invalidates the cache.
func (p *CachingProvider) DeleteSecret(ctx context.Context, path string) error {
	err := p.provider.DeleteSecret(ctx, path)
	if err == nil {
		p.InvalidateCache(path)
	}
	return err
}

// IsReadOnly delegates to the underlying provider.
func (p *CachingProvider) IsReadOnly() bool {
	return p.provider.IsReadOnly()
}

// HealthCheck delegates to the underlying provider.
func (p *CachingProvider) HealthCheck(ctx context.Context) error {
	return p.provider.HealthCheck(ctx)
}

// Close closes the underlying provider.
func (p *CachingProvider) Close() error {
	return p.provider.Close()
}

// InvalidateCache removes a path from the cache.
func (p *CachingProvider) InvalidateCache(path string) {
	p.mu.Lock()
	delete(p.cache, path)
	p.mu.Unlock()
}

// ClearCache clears all cached secrets.
func (p *CachingProvider) ClearCache() {
	p.mu.Lock()
	p.cache = make(map[string]*cachedSecret)
	p.mu.Unlock()
}
