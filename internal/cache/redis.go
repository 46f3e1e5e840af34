package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avkms/internal/config"
	"github.com/vyrodovalexey/avkms/internal/observability"
	"github.com/vyrodovalexey/avkms/internal/retry"
	"github.com/vyrodovalexey/avkms/internal/secrets"
	kmstls "github.com/vyrodovalexey/avkms/internal/tls"
)

const (
	// redisPingTimeout bounds the initial connection check.
	redisPingTimeout = 5 * time.Second

	// redisPasswordResolveTimeout bounds password reference resolution
	// at construction time.
	redisPasswordResolveTimeout = 10 * time.Second
)

// redisRetryConfig maps the configured Redis retry settings onto the
// shared retry executor.
func redisRetryConfig(cfg *config.RedisRetryConfig) *retry.Config {
	return &retry.Config{
		MaxAttempts:    cfg.GetMaxAttempts(),
		InitialBackoff: cfg.GetInitialBackoff().Duration(),
		MaxBackoff:     cfg.GetMaxBackoff().Duration(),
		JitterFactor:   retry.DefaultJitterFactor,
	}
}

// isRetryableRedisError checks if the error is retryable (network/connection errors).
func isRetryableRedisError(err error) bool {
	if err == nil {
		return false
	}
	// Don't retry on cache miss or context errors
	if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// redisCache implements a Redis-backed token cache.
type redisCache struct {
	logger     observability.Logger
	client     *redis.Client
	retryCfg   *retry.Config
	keyPrefix  string
	defaultTTL time.Duration
	ttlJitter  float64
	hashKeys   bool

	hits   int64
	misses int64
}

// applyTTLJitter adds random jitter to a TTL value so that replicas do
// not expire and refresh tokens in lockstep. The jitterFactor controls
// the maximum percentage of variation (0.0 to 1.0); for example, 0.1
// means the TTL varies by ±10%.
func applyTTLJitter(ttl time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 || ttl <= 0 {
		return ttl
	}
	if jitterFactor > 1.0 {
		jitterFactor = 1.0
	}
	//nolint:gosec // G404: TTL jitter does not require cryptographic randomness
	jitter := time.Duration(float64(ttl) * jitterFactor * (2*rand.Float64() - 1))
	result := ttl + jitter
	if result <= 0 {
		return ttl // Safety: never return non-positive TTL
	}
	return result
}

// resolveKey applies the key prefix and optional SHA256 hashing.
func (c *redisCache) resolveKey(key string) string {
	if c.hashKeys {
		return c.keyPrefix + HashKey(key)
	}
	return c.keyPrefix + key
}

// hasPasswordRefs checks if any password references are configured.
func hasPasswordRefs(cfg *config.RedisCacheConfig) bool {
	if cfg.PasswordRef != "" {
		return true
	}
	if cfg.Sentinel == nil {
		return false
	}
	return cfg.Sentinel.PasswordRef != "" ||
		cfg.Sentinel.SentinelPasswordRef != ""
}

// resolveRedisPasswords resolves configured password references before
// connecting. References use the secret reference grammar (env://,
// file://, vault://, k8s://); resolved values overwrite the
// corresponding password fields in the config.
func resolveRedisPasswords(
	cfg *config.RedisCacheConfig, resolver *secrets.Resolver, logger observability.Logger,
) error {
	if !hasPasswordRefs(cfg) {
		return nil
	}

	if resolver == nil {
		// Without a wired resolver, env:// and file:// references
		// still work; vault:// and k8s:// fail with a clear error.
		r, err := secrets.NewResolver(&secrets.ResolverConfig{Logger: logger})
		if err != nil {
			return fmt.Errorf("failed to build secret resolver: %w", err)
		}
		resolver = r
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisPasswordResolveTimeout)
	defer cancel()

	if cfg.PasswordRef != "" {
		if err := resolveStandalonePassword(ctx, cfg, resolver, logger); err != nil {
			return err
		}
	}

	if cfg.Sentinel != nil {
		if err := resolveSentinelPasswords(ctx, cfg.Sentinel, resolver, logger); err != nil {
			return err
		}
	}

	return nil
}

// resolveStandalonePassword resolves the standalone Redis password
// reference and applies it to the connection URL.
func resolveStandalonePassword(
	ctx context.Context, cfg *config.RedisCacheConfig, resolver *secrets.Resolver, logger observability.Logger,
) error {
	pw, err := resolver.ResolveString(ctx, cfg.PasswordRef)
	if err != nil {
		return fmt.Errorf("failed to resolve redis password from %s: %w", cfg.PasswordRef, err)
	}
	if err := applyPasswordToRedisURL(cfg, pw); err != nil {
		return fmt.Errorf("failed to apply resolved password to redis URL: %w", err)
	}
	logger.Info("redis password resolved",
		observability.String("ref", cfg.PasswordRef))
	return nil
}

// resolveSentinelPasswords resolves sentinel password references.
func resolveSentinelPasswords(
	ctx context.Context, sentinel *config.RedisSentinelConfig, resolver *secrets.Resolver, logger observability.Logger,
) error {
	if sentinel.PasswordRef != "" {
		pw, err := resolver.ResolveString(ctx, sentinel.PasswordRef)
		if err != nil {
			return fmt.Errorf("failed to resolve redis master password: %w", err)
		}
		sentinel.Password = pw
		logger.Info("redis sentinel master password resolved",
			observability.String("ref", sentinel.PasswordRef))
	}
	if sentinel.SentinelPasswordRef != "" {
		pw, err := resolver.ResolveString(ctx, sentinel.SentinelPasswordRef)
		if err != nil {
			return fmt.Errorf("failed to resolve sentinel password: %w", err)
		}
		sentinel.SentinelPassword = pw
		logger.Info("redis sentinel password resolved",
			observability.String("ref", sentinel.SentinelPasswordRef))
	}
	return nil
}

// applyPasswordToRedisURL updates the Redis URL with the given password.
func applyPasswordToRedisURL(cfg *config.RedisCacheConfig, password string) error {
	if cfg.URL == "" {
		return nil
	}

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to parse redis URL: %w", err)
	}

	var username string
	if parsedURL.User != nil {
		username = parsedURL.User.Username()
	}
	parsedURL.User = url.UserPassword(username, password)
	cfg.URL = parsedURL.String()

	return nil
}

// buildRedisTLSConfig builds the TLS configuration for Redis connections.
func buildRedisTLSConfig(cfg *config.RedisTLSConfig) (*tls.Config, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	tlsCfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // G402: user-configurable
	}

	if cfg.CAFile != "" {
		pool, err := kmstls.LoadTrustStore(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load redis CA bundle: %w", err)
		}
		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}

// newRedisCache creates a new Redis cache.
// It dispatches between standalone and Sentinel modes based on configuration.
func newRedisCache(cfg *config.CacheConfig, logger observability.Logger, opts *cacheOptions) (*redisCache, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("%w: redis configuration is required", ErrInvalidConfig)
	}

	// Resolve password references before connecting
	var resolver *secrets.Resolver
	if opts != nil {
		resolver = opts.resolver
	}
	if err := resolveRedisPasswords(cfg.Redis, resolver, logger); err != nil {
		return nil, fmt.Errorf("failed to resolve redis passwords: %w", err)
	}

	// Sentinel mode takes precedence when configured
	if cfg.Redis.Sentinel != nil && cfg.Redis.Sentinel.MasterName != "" {
		return newRedisSentinelCache(cfg, logger, opts)
	}

	// Standalone mode requires a URL
	if cfg.Redis.URL == "" {
		return nil, fmt.Errorf("%w: redis URL is required for standalone mode", ErrInvalidConfig)
	}

	return newRedisStandaloneCache(cfg, logger, opts)
}

// newRedisStandaloneCache creates a new Redis cache using standalone mode.
func newRedisStandaloneCache(
	cfg *config.CacheConfig, logger observability.Logger, cacheOpts *cacheOptions,
) (*redisCache, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid redis URL: %s", ErrInvalidConfig, err)
	}

	applyRedisPoolOptions(opts, cfg.Redis)

	tlsCfg, err := buildRedisTLSConfig(cfg.Redis.TLS)
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		opts.TLSConfig = tlsCfg
	}

	if cacheOpts != nil && cacheOpts.redisDialer != nil {
		opts.Dialer = cacheOpts.redisDialer
	}

	client := redis.NewClient(opts)
	retryCfg := redisRetryConfig(cfg.Redis.Retry)

	if err := pingRedis(client, retryCfg); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s", ErrConnectionFailed, err)
	}

	keyPrefix := resolveKeyPrefix(cfg.Redis.KeyPrefix)

	c := &redisCache{
		logger:     logger,
		client:     client,
		retryCfg:   retryCfg,
		keyPrefix:  keyPrefix,
		defaultTTL: cfg.TTL.Duration(),
		ttlJitter:  cfg.Redis.TTLJitter,
		hashKeys:   cfg.Redis.HashKeys,
	}

	logger.Info("redis standalone cache initialized",
		observability.String("keyPrefix", keyPrefix),
		observability.Duration("defaultTTL", c.defaultTTL),
		observability.Float64("ttlJitter", c.ttlJitter),
		observability.Bool("hashKeys", c.hashKeys))

	return c, nil
}

// newRedisSentinelCache creates a new Redis cache using Sentinel mode for high availability.
func newRedisSentinelCache(
	cfg *config.CacheConfig, logger observability.Logger, cacheOpts *cacheOptions,
) (*redisCache, error) {
	sentinel := cfg.Redis.Sentinel
	if len(sentinel.SentinelAddrs) == 0 {
		return nil, fmt.Errorf("%w: at least one sentinel address is required", ErrInvalidConfig)
	}

	opts := &redis.FailoverOptions{
		MasterName:       sentinel.MasterName,
		SentinelAddrs:    sentinel.SentinelAddrs,
		SentinelPassword: sentinel.SentinelPassword,
		Password:         sentinel.Password,
		DB:               sentinel.DB,
	}

	if cacheOpts != nil && cacheOpts.redisDialer != nil {
		opts.Dialer = cacheOpts.redisDialer
	}

	// Apply pool/timeout overrides from shared Redis config
	if cfg.Redis.PoolSize > 0 {
		opts.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.ConnectTimeout > 0 {
		opts.DialTimeout = cfg.Redis.ConnectTimeout.Duration()
	}
	if cfg.Redis.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.Redis.ReadTimeout.Duration()
	}
	if cfg.Redis.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.Redis.WriteTimeout.Duration()
	}

	tlsCfg, err := buildRedisTLSConfig(cfg.Redis.TLS)
	if err != nil {
		return nil, err
	}
	if tlsCfg != nil {
		opts.TLSConfig = tlsCfg
	}

	client := redis.NewFailoverClient(opts)
	retryCfg := redisRetryConfig(cfg.Redis.Retry)

	if err := pingRedis(client, retryCfg); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: sentinel: %s", ErrConnectionFailed, err)
	}

	keyPrefix := resolveKeyPrefix(cfg.Redis.KeyPrefix)

	c := &redisCache{
		logger:     logger,
		client:     client,
		retryCfg:   retryCfg,
		keyPrefix:  keyPrefix,
		defaultTTL: cfg.TTL.Duration(),
		ttlJitter:  cfg.Redis.TTLJitter,
		hashKeys:   cfg.Redis.HashKeys,
	}

	logger.Info("redis sentinel cache initialized",
		observability.String("masterName", sentinel.MasterName),
		observability.Int("sentinelCount", len(sentinel.SentinelAddrs)),
		observability.String("keyPrefix", keyPrefix),
		observability.Duration("defaultTTL", c.defaultTTL),
		observability.Float64("ttlJitter", c.ttlJitter),
		observability.Bool("hashKeys", c.hashKeys))

	return c, nil
}

// applyRedisPoolOptions applies pool and timeout configuration overrides to Redis options.
func applyRedisPoolOptions(opts *redis.Options, redisCfg *config.RedisCacheConfig) {
	if redisCfg.PoolSize > 0 {
		opts.PoolSize = redisCfg.PoolSize
	}
	if redisCfg.ConnectTimeout > 0 {
		opts.DialTimeout = redisCfg.ConnectTimeout.Duration()
	}
	if redisCfg.ReadTimeout > 0 {
		opts.ReadTimeout = redisCfg.ReadTimeout.Duration()
	}
	if redisCfg.WriteTimeout > 0 {
		opts.WriteTimeout = redisCfg.WriteTimeout.Duration()
	}
}

// pingRedis verifies connectivity, retrying transient dial failures.
func pingRedis(client *redis.Client, retryCfg *retry.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	return retry.Do(ctx, retryCfg, func() error {
		return client.Ping(ctx).Err()
	}, &retry.Options{
		Operation:   "redis_connect",
		ShouldRetry: isRetryableRedisError,
	})
}

// resolveKeyPrefix returns the key prefix, defaulting to "avkms:" if empty.
func resolveKeyPrefix(prefix string) string {
	if prefix == "" {
		return config.DefaultRedisKeyPrefix
	}
	return prefix
}

// Get retrieves a value from the cache with exponential backoff retry.
func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observeOperation("redis", "get", time.Since(start))
	}()

	fullKey := c.resolveKey(key)

	var result []byte

	err := retry.Do(ctx, c.retryCfg, func() error {
		val, getErr := c.client.Get(ctx, fullKey).Bytes()
		if getErr != nil {
			return getErr
		}
		result = val
		return nil
	}, &retry.Options{
		ShouldRetry: isRetryableRedisError,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.logger.Debug("retrying redis get",
				observability.String("key", key),
				observability.Int("attempt", attempt))
		},
	})

	if err == nil {
		atomic.AddInt64(&c.hits, 1)
		recordHit("redis")
		span.SetAttributes(
			attribute.Bool("cache.hit", true),
			attribute.Int("cache.value_size", len(result)),
		)
		c.logger.Debug("cache hit",
			observability.String("key", key),
			observability.Int("size", len(result)))
		return result, nil
	}

	if errors.Is(err, redis.Nil) {
		atomic.AddInt64(&c.misses, 1)
		recordMiss("redis")
		span.SetAttributes(attribute.Bool("cache.hit", false))
		return nil, ErrCacheMiss
	}

	recordError("redis", "get")
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	c.logger.Error("redis get failed",
		observability.String("key", key),
		observability.Error(err))
	return nil, err
}

// Set stores a value in the cache with exponential backoff retry.
func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Set",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.key", key),
			attribute.Int("cache.value_size", len(value)),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observeOperation("redis", "set", time.Since(start))
	}()

	if ttl == 0 {
		ttl = c.defaultTTL
	}

	// Jitter spreads expiry so replicas do not refresh in lockstep
	ttl = applyTTLJitter(ttl, c.ttlJitter)

	fullKey := c.resolveKey(key)

	err := retry.Do(ctx, c.retryCfg, func() error {
		return c.client.Set(ctx, fullKey, value, ttl).Err()
	}, &retry.Options{
		ShouldRetry: isRetryableRedisError,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.logger.Debug("retrying redis set",
				observability.String("key", key),
				observability.Int("attempt", attempt))
		},
	})

	if err == nil {
		c.logger.Debug("cache set",
			observability.String("key", key),
			observability.Duration("ttl", ttl),
			observability.Int("size", len(value)))
		return nil
	}

	recordError("redis", "set")
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	c.logger.Error("redis set failed",
		observability.String("key", key),
		observability.Error(err))
	return err
}

// Delete removes a value from the cache with exponential backoff retry.
func (c *redisCache) Delete(ctx context.Context, key string) error {
	ctx, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Delete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observeOperation("redis", "delete", time.Since(start))
	}()

	fullKey := c.resolveKey(key)

	err := retry.Do(ctx, c.retryCfg, func() error {
		return c.client.Del(ctx, fullKey).Err()
	}, &retry.Options{
		ShouldRetry: isRetryableRedisError,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.logger.Debug("retrying redis delete",
				observability.String("key", key),
				observability.Int("attempt", attempt))
		},
	})

	if err == nil {
		c.logger.Debug("cache deleted",
			observability.String("key", key))
		return nil
	}

	recordError("redis", "delete")
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	c.logger.Error("redis delete failed",
		observability.String("key", key),
		observability.Error(err))
	return err
}

// Exists checks if a key exists in the cache with exponential backoff retry.
func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	ctx, span := otel.Tracer(cacheTracerName).Start(ctx, "cache.Exists",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.backend", "redis"),
			attribute.String("cache.key", key),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() {
		observeOperation("redis", "exists", time.Since(start))
	}()

	fullKey := c.resolveKey(key)

	var result int64

	err := retry.Do(ctx, c.retryCfg, func() error {
		var existsErr error
		result, existsErr = c.client.Exists(ctx, fullKey).Result()
		return existsErr
	}, &retry.Options{
		ShouldRetry: isRetryableRedisError,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.logger.Debug("retrying redis exists",
				observability.String("key", key),
				observability.Int("attempt", attempt))
		},
	})

	if err == nil {
		span.SetAttributes(attribute.Bool("cache.exists", result > 0))
		return result > 0, nil
	}

	recordError("redis", "exists")
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
	c.logger.Error("redis exists failed",
		observability.String("key", key),
		observability.Error(err))
	return false, err
}

// Close closes the Redis connection.
func (c *redisCache) Close() error {
	c.logger.Info("redis cache closing")
	return c.client.Close()
}

// Stats returns cache statistics.
func (c *redisCache) Stats() CacheStats {
	return CacheStats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
	}
}
