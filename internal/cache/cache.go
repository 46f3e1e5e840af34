// Package cache provides shared token caching for the sidecar.
package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/vyrodovalexey/avkms/internal/config"
	"github.com/vyrodovalexey/avkms/internal/observability"
	"github.com/vyrodovalexey/avkms/internal/secrets"
)

// Common cache errors.
var (
	// ErrCacheMiss indicates that the key was not found in the cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheDisabled indicates that caching is disabled.
	ErrCacheDisabled = errors.New("cache disabled")

	// ErrInvalidConfig indicates that the cache configuration is invalid.
	ErrInvalidConfig = errors.New("invalid cache configuration")

	// ErrConnectionFailed indicates that the cache connection failed.
	ErrConnectionFailed = errors.New("cache connection failed")
)

// Cache is the main interface for token caching.
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns ErrCacheMiss if the key is not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with the given TTL.
	// A TTL of 0 means the configured default TTL is applied.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in the cache.
	Exists(ctx context.Context, key string) (bool, error)

	// Close closes the cache connection.
	Close() error
}

// CacheWithStats extends Cache with statistics.
type CacheWithStats interface {
	Cache

	// Stats returns cache statistics.
	Stats() CacheStats
}

// CacheStats contains cache statistics.
type CacheStats struct {
	// Hits is the number of cache hits.
	Hits int64

	// Misses is the number of cache misses.
	Misses int64

	// Size is the current number of entries in the cache.
	Size int64

	// Bytes is the current size in bytes (if available).
	Bytes int64
}

// HitRate returns the cache hit rate as a percentage.
func (s CacheStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// cacheOptions holds optional dependencies supplied at construction.
type cacheOptions struct {
	resolver    *secrets.Resolver
	redisDialer func(ctx context.Context, network, addr string) (net.Conn, error)
}

// Option configures optional cache dependencies.
type Option func(*cacheOptions)

// WithSecretResolver supplies the resolver used for Redis password
// references. Without it only env:// and file:// references resolve.
func WithSecretResolver(resolver *secrets.Resolver) Option {
	return func(o *cacheOptions) {
		o.resolver = resolver
	}
}

// WithRedisDialer overrides the dialer used for Redis connections.
// Used in tests for Docker networking.
func WithRedisDialer(dialer func(ctx context.Context, network, addr string) (net.Conn, error)) Option {
	return func(o *cacheOptions) {
		o.redisDialer = dialer
	}
}

// New creates a new cache based on the configuration.
func New(cfg *config.CacheConfig, logger observability.Logger, opts ...Option) (Cache, error) {
	if cfg == nil {
		return nil, ErrInvalidConfig
	}

	if !cfg.Enabled {
		return newDisabledCache(), nil
	}

	if logger == nil {
		logger = observability.NopLogger()
	}

	options := &cacheOptions{}
	for _, opt := range opts {
		opt(options)
	}

	switch cfg.Type {
	case config.CacheTypeMemory, "":
		return newMemoryCache(cfg, logger)
	case config.CacheTypeRedis:
		return newRedisCache(cfg, logger, options)
	default:
		return nil, fmt.Errorf("%w: unknown cache type %q", ErrInvalidConfig, cfg.Type)
	}
}

// disabledCache is a cache that always returns ErrCacheDisabled.
type disabledCache struct{}

func newDisabledCache() Cache {
	return &disabledCache{}
}

func (c *disabledCache) Get(_ context.Context, _ string) ([]byte, error) {
	return nil, ErrCacheDisabled
}

func (c *disabledCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error {
	return ErrCacheDisabled
}

func (c *disabledCache) Delete(_ context.Context, _ string) error {
	return ErrCacheDisabled
}

func (c *disabledCache) Exists(_ context.Context, _ string) (bool, error) {
	return false, ErrCacheDisabled
}

func (c *disabledCache) Close() error {
	return nil
}
