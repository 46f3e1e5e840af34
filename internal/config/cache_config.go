package config

import "time"

// Token cache defaults.
const (
	// DefaultCacheTTL is the fallback TTL for cached tokens when the
	// caller does not derive one from the token expiry.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheMaxEntries is the default capacity of the memory cache.
	DefaultCacheMaxEntries = 10000

	// DefaultRedisPoolSize is the default Redis connection pool size.
	DefaultRedisPoolSize = 10

	// DefaultRedisConnectTimeout is the default Redis dial timeout.
	DefaultRedisConnectTimeout = 5 * time.Second

	// DefaultRedisReadTimeout is the default Redis read timeout.
	DefaultRedisReadTimeout = 3 * time.Second

	// DefaultRedisWriteTimeout is the default Redis write timeout.
	DefaultRedisWriteTimeout = 3 * time.Second

	// DefaultRedisKeyPrefix is the default prefix for Redis cache keys.
	DefaultRedisKeyPrefix = "avkms:"

	// DefaultRedisSentinelDB is the default Redis database in Sentinel mode.
	DefaultRedisSentinelDB = 0

	// DefaultRedisRetryMaxAttempts is the default attempt budget for
	// Redis operations, including the first attempt.
	DefaultRedisRetryMaxAttempts = 3

	// DefaultRedisRetryInitialBackoff is the default initial backoff
	// between Redis retry attempts.
	DefaultRedisRetryInitialBackoff = 100 * time.Millisecond

	// DefaultRedisRetryMaxBackoff is the default maximum backoff between
	// Redis retry attempts.
	DefaultRedisRetryMaxBackoff = 2 * time.Second
)

// CacheConfig represents token cache configuration.
//
// The cache holds issued access tokens so that sidecar replicas can
// reuse a token acquired by a peer instead of asking the identity
// endpoint again.
type CacheConfig struct {
	// Enabled indicates whether token caching is enabled.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Type is the cache backend type: "memory" or "redis".
	Type string `yaml:"type" json:"type"`

	// TTL is the fallback time-to-live for cached tokens. Normally the
	// TTL is derived from the token expiry by the caller.
	TTL Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`

	// MaxEntries is the maximum number of entries for the memory cache.
	MaxEntries int `yaml:"maxEntries,omitempty" json:"maxEntries,omitempty"`

	// Redis contains Redis-specific configuration.
	Redis *RedisCacheConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisCacheConfig contains Redis-specific cache configuration.
type RedisCacheConfig struct {
	// URL is the Redis connection URL for standalone mode.
	// Format: redis://[user:password@]host:port[/db]
	// Mutually exclusive with Sentinel configuration.
	URL string `yaml:"url" json:"url"`

	// Sentinel contains Redis Sentinel configuration for high availability.
	// Mutually exclusive with standalone Redis URL.
	Sentinel *RedisSentinelConfig `yaml:"sentinel,omitempty" json:"sentinel,omitempty"`

	// PoolSize is the maximum number of connections in the pool.
	PoolSize int `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`

	// ConnectTimeout is the timeout for establishing connections.
	ConnectTimeout Duration `yaml:"connectTimeout,omitempty" json:"connectTimeout,omitempty"`

	// ReadTimeout is the timeout for read operations.
	ReadTimeout Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`

	// WriteTimeout is the timeout for write operations.
	WriteTimeout Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`

	// KeyPrefix is a prefix added to all cache keys.
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`

	// TLS contains TLS configuration for Redis connections.
	TLS *RedisTLSConfig `yaml:"tls,omitempty" json:"tls,omitempty"`

	// Retry contains retry configuration for Redis operations and the
	// initial connection check.
	Retry *RedisRetryConfig `yaml:"retry,omitempty" json:"retry,omitempty"`

	// TTLJitter is the maximum percentage of jitter to add to TTL values
	// (0.0 to 1.0). For example, 0.1 means ±10% jitter, which spreads out
	// token refreshes across replicas. Default is 0 (no jitter).
	TTLJitter float64 `yaml:"ttlJitter,omitempty" json:"ttlJitter,omitempty"`

	// HashKeys when true, SHA256-hashes cache keys before storing in
	// Redis. Useful when credential names or resource scopes produce
	// long keys.
	HashKeys bool `yaml:"hashKeys,omitempty" json:"hashKeys,omitempty"`

	// PasswordRef is a secret reference for the Redis password in
	// standalone mode (env://, file://, vault://, k8s://). The resolved
	// password is applied to the connection URL before dialing. A plain
	// value is used verbatim.
	PasswordRef string `yaml:"passwordRef,omitempty" json:"passwordRef,omitempty"`
}

// RedisTLSConfig contains TLS settings for Redis connections.
type RedisTLSConfig struct {
	// Enabled indicates whether TLS is used for the Redis connection.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// CAFile is the path to a PEM bundle of CA certificates used to
	// verify the Redis server. Empty means the system trust store.
	CAFile string `yaml:"caFile,omitempty" json:"caFile,omitempty"`

	// ServerName overrides the server name used for certificate
	// verification.
	ServerName string `yaml:"serverName,omitempty" json:"serverName,omitempty"`

	// InsecureSkipVerify disables certificate verification.
	InsecureSkipVerify bool `yaml:"insecureSkipVerify,omitempty" json:"insecureSkipVerify,omitempty"`
}

// RedisSentinelConfig contains Redis Sentinel configuration for high availability.
type RedisSentinelConfig struct {
	// MasterName is the name of the Redis master monitored by Sentinel.
	MasterName string `yaml:"masterName" json:"masterName"`

	// SentinelAddrs is the list of Sentinel addresses (host:port).
	SentinelAddrs []string `yaml:"sentinelAddrs" json:"sentinelAddrs"`

	// SentinelPassword is the password for Sentinel authentication.
	SentinelPassword string `yaml:"sentinelPassword,omitempty" json:"sentinelPassword,omitempty"`

	// Password is the password for the Redis master.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// DB is the Redis database number.
	DB int `yaml:"db,omitempty" json:"db,omitempty"`

	// PasswordRef is a secret reference for the Redis master password.
	// Overrides Password when set.
	PasswordRef string `yaml:"passwordRef,omitempty" json:"passwordRef,omitempty"`

	// SentinelPasswordRef is a secret reference for the Sentinel
	// password. Overrides SentinelPassword when set.
	SentinelPasswordRef string `yaml:"sentinelPasswordRef,omitempty" json:"sentinelPasswordRef,omitempty"`
}

// RedisRetryConfig contains retry configuration for Redis operations.
type RedisRetryConfig struct {
	// MaxAttempts is the total number of attempts per operation,
	// including the first one. Default is 3.
	MaxAttempts int `yaml:"maxAttempts,omitempty" json:"maxAttempts,omitempty"`

	// InitialBackoff is the initial backoff duration between retries.
	// Default is 100ms.
	InitialBackoff Duration `yaml:"initialBackoff,omitempty" json:"initialBackoff,omitempty"`

	// MaxBackoff is the maximum backoff duration between retries.
	// Default is 2s.
	MaxBackoff Duration `yaml:"maxBackoff,omitempty" json:"maxBackoff,omitempty"`
}

// GetMaxAttempts returns the effective attempt budget.
func (c *RedisRetryConfig) GetMaxAttempts() int {
	if c == nil || c.MaxAttempts <= 0 {
		return DefaultRedisRetryMaxAttempts
	}
	return c.MaxAttempts
}

// GetInitialBackoff returns the effective initial backoff.
func (c *RedisRetryConfig) GetInitialBackoff() Duration {
	if c == nil || c.InitialBackoff <= 0 {
		return Duration(DefaultRedisRetryInitialBackoff)
	}
	return c.InitialBackoff
}

// GetMaxBackoff returns the effective max backoff.
func (c *RedisRetryConfig) GetMaxBackoff() Duration {
	if c == nil || c.MaxBackoff <= 0 {
		return Duration(DefaultRedisRetryMaxBackoff)
	}
	return c.MaxBackoff
}

// CacheType constants for cache backend types.
const (
	// CacheTypeMemory uses in-memory caching.
	CacheTypeMemory = "memory"

	// CacheTypeRedis uses Redis for caching.
	CacheTypeRedis = "redis"
)

// DefaultCacheConfig returns default cache configuration.
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:    false,
		Type:       CacheTypeMemory,
		TTL:        Duration(DefaultCacheTTL),
		MaxEntries: DefaultCacheMaxEntries,
	}
}

// DefaultRedisCacheConfig returns default Redis cache configuration.
func DefaultRedisCacheConfig() *RedisCacheConfig {
	return &RedisCacheConfig{
		PoolSize:       DefaultRedisPoolSize,
		ConnectTimeout: Duration(DefaultRedisConnectTimeout),
		ReadTimeout:    Duration(DefaultRedisReadTimeout),
		WriteTimeout:   Duration(DefaultRedisWriteTimeout),
		KeyPrefix:      DefaultRedisKeyPrefix,
	}
}

// DefaultRedisSentinelConfig returns default Redis Sentinel configuration.
func DefaultRedisSentinelConfig() *RedisSentinelConfig {
	return &RedisSentinelConfig{
		DB: DefaultRedisSentinelDB,
	}
}

// IsEmpty returns true if the CacheConfig has no meaningful configuration.
func (cc *CacheConfig) IsEmpty() bool {
	if cc == nil {
		return true
	}
	return !cc.Enabled
}

// IsEmpty returns true if the RedisCacheConfig has no configuration.
// A RedisCacheConfig is considered non-empty if either a standalone URL
// or a Sentinel master name is configured.
func (rcc *RedisCacheConfig) IsEmpty() bool {
	if rcc == nil {
		return true
	}
	return rcc.URL == "" && rcc.Sentinel.IsEmpty()
}

// IsEmpty returns true if the RedisSentinelConfig has no meaningful configuration.
func (rsc *RedisSentinelConfig) IsEmpty() bool {
	if rsc == nil {
		return true
	}
	return rsc.MasterName == ""
}
