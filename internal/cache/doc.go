// Package cache provides shared token caching for the sidecar.
//
// Issued access tokens are cached so that replicas can serve a token
// acquired by a peer instead of asking the identity endpoint again. It
// supports:
//
//   - In-memory LRU cache with configurable size
//   - Redis-based distributed cache with Sentinel support
//   - Configurable TTL per entry with jitter
//   - Redis passwords given as secret references (env://, file://,
//     vault://, k8s://), resolved at startup
//   - Centralized retry logic with exponential backoff
//   - OpenTelemetry tracing for cache operations
//   - Prometheus metrics per backend and operation
//
// Entry TTLs follow token lifetimes: callers derive the TTL from the
// token expiry and the cache enforces it. Optional TTL jitter spreads
// expirations so that replicas do not refresh in lockstep.
//
// # Example Usage
//
//	cfg := &config.CacheConfig{
//	    Enabled: true,
//	    Type:    config.CacheTypeRedis,
//	    Redis: &config.RedisCacheConfig{
//	        URL: "redis://cache:6379",
//	    },
//	}
//
//	c, err := cache.New(cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	key := cache.TokenKey("azure", "https://vault.example.net")
//	err = c.Set(ctx, key, payload, time.Until(expiresAt))
//
//	payload, err = c.Get(ctx, key)
//
// # Thread Safety
//
// All cache implementations are safe for concurrent use.
package cache
