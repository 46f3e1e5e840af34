package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/avkms/internal/cache"
	"github.com/vyrodovalexey/avkms/internal/vault"
)

// DependencyType represents the type of dependency.
type DependencyType string

const (
	// DependencyTypeCache is a cache dependency.
	DependencyTypeCache DependencyType = "cache"
	// DependencyTypeHTTP is an HTTP service dependency.
	DependencyTypeHTTP DependencyType = "http"
	// DependencyTypeTCP is a TCP service dependency.
	DependencyTypeTCP DependencyType = "tcp"
	// DependencyTypeIdentity is the identity endpoint dependency.
	DependencyTypeIdentity DependencyType = "identity"
	// DependencyTypeVault is a HashiCorp Vault dependency.
	DependencyTypeVault DependencyType = "vault"
	// DependencyTypeCustom is a custom dependency.
	DependencyTypeCustom DependencyType = "custom"
)

// HealthCheck defines the interface for health checks.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthCheckFunc is a function type that implements HealthCheck.
type HealthCheckFunc struct {
	name      string
	checkFunc func(ctx context.Context) error
}

// Name returns the name of the health check.
func (f *HealthCheckFunc) Name() string {
	return f.name
}

// Check performs the health check.
func (f *HealthCheckFunc) Check(ctx context.Context) error {
	return f.checkFunc(ctx)
}

// NewHealthCheckFunc creates a new health check function.
func NewHealthCheckFunc(name string, check func(ctx context.Context) error) *HealthCheckFunc {
	return &HealthCheckFunc{
		name:      name,
		checkFunc: check,
	}
}

// DependencyCheck represents a dependency health check.
type DependencyCheck struct {
	name     string
	depType  DependencyType
	checkFn  func(ctx context.Context) error
	critical bool
}

// Name returns the name of the dependency check.
func (d *DependencyCheck) Name() string {
	return d.name
}

// Check performs the dependency health check.
func (d *DependencyCheck) Check(ctx context.Context) error {
	start := time.Now()
	err := d.checkFn(ctx)
	duration := time.Since(start).Seconds()

	healthy := err == nil
	recordHealthCheck(d.name, healthy, duration)
	setDependencyHealthStatus(d.name, string(d.depType), healthy)

	return err
}

// IsCritical returns true if the dependency is critical.
func (d *DependencyCheck) IsCritical() bool {
	return d.critical
}

// DependencyCheckOption is a function that configures a DependencyCheck.
type DependencyCheckOption func(*DependencyCheck)

// WithCritical marks the dependency as critical.
func WithCritical(critical bool) DependencyCheckOption {
	return func(d *DependencyCheck) {
		d.critical = critical
	}
}

// NewDependencyCheck creates a new dependency check.
func NewDependencyCheck(
	name string,
	depType DependencyType,
	checkFn func(ctx context.Context) error,
	opts ...DependencyCheckOption,
) *DependencyCheck {
	d := &DependencyCheck{
		name:     name,
		depType:  depType,
		checkFn:  checkFn,
		critical: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HTTPHealthCheck creates an HTTP health check.
func HTTPHealthCheck(name, url string, timeout time.Duration, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck(name, DependencyTypeHTTP, func(ctx context.Context) error {
		client := &http.Client{
			Timeout: timeout,
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("unhealthy status code: %d", resp.StatusCode)
		}

		return nil
	}, opts...)
}

// TCPHealthCheck creates a TCP health check.
func TCPHealthCheck(name, address string, timeout time.Duration, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck(name, DependencyTypeTCP, func(ctx context.Context) error {
		dialer := &net.Dialer{
			Timeout: timeout,
		}

		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		defer conn.Close()

		return nil
	}, opts...)
}

// IdentityEndpointCheck creates a reachability check for the identity
// endpoint a credential acquires tokens from. Reachability is probed at
// the TCP level so the check does not consume token request quota.
func IdentityEndpointCheck(name, address string, timeout time.Duration, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck(name, DependencyTypeIdentity, func(ctx context.Context) error {
		dialer := &net.Dialer{
			Timeout: timeout,
		}

		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return fmt.Errorf("identity endpoint unreachable: %w", err)
		}
		defer conn.Close()

		return nil
	}, opts...)
}

// RedisHealthCheck creates a Redis health check.
func RedisHealthCheck(name string, client *redis.Client, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck(name, DependencyTypeCache, func(ctx context.Context) error {
		if client == nil {
			return fmt.Errorf("redis client is nil")
		}

		result := client.Ping(ctx)
		if result.Err() != nil {
			return fmt.Errorf("redis ping failed: %w", result.Err())
		}

		return nil
	}, opts...)
}

// CacheHealthCheck creates a health check for the token cache. The
// probe is a single key lookup, which round-trips to Redis for the
// distributed cache and is a map read for the memory cache.
func CacheHealthCheck(name string, c cache.Cache, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck(name, DependencyTypeCache, func(ctx context.Context) error {
		if c == nil {
			return fmt.Errorf("cache is nil")
		}

		if _, err := c.Exists(ctx, "health:probe"); err != nil {
			return fmt.Errorf("cache probe failed: %w", err)
		}

		return nil
	}, opts...)
}

// VaultHealthCheck creates a health check for the Vault client used to
// resolve vault:// secret references.
func VaultHealthCheck(name string, client vault.Client, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck(name, DependencyTypeVault, func(ctx context.Context) error {
		if client == nil {
			return fmt.Errorf("vault client is nil")
		}

		status, err := client.Health(ctx)
		if err != nil {
			return fmt.Errorf("vault health failed: %w", err)
		}
		if !status.Initialized {
			return fmt.Errorf("vault is not initialized")
		}
		if status.Sealed {
			return fmt.Errorf("vault is sealed")
		}

		return nil
	}, opts...)
}

// CustomHealthCheck creates a custom health check.
func CustomHealthCheck(
	name string,
	checkFn func(ctx context.Context) error,
	opts ...DependencyCheckOption,
) *DependencyCheck {
	return NewDependencyCheck(name, DependencyTypeCustom, checkFn, opts...)
}

// CompositeHealthCheck combines multiple health checks.
type CompositeHealthCheck struct {
	name   string
	checks []HealthCheck
}

// NewCompositeHealthCheck creates a new composite health check.
func NewCompositeHealthCheck(name string, checks ...HealthCheck) *CompositeHealthCheck {
	return &CompositeHealthCheck{
		name:   name,
		checks: checks,
	}
}

// Name returns the name of the composite health check.
func (c *CompositeHealthCheck) Name() string {
	return c.name
}

// Check performs all health checks and returns the first error.
func (c *CompositeHealthCheck) Check(ctx context.Context) error {
	for _, check := range c.checks {
		if err := check.Check(ctx); err != nil {
			return fmt.Errorf("%s: %w", check.Name(), err)
		}
	}
	return nil
}

// AddCheck adds a health check to the composite.
func (c *CompositeHealthCheck) AddCheck(check HealthCheck) {
	c.checks = append(c.checks, check)
}

// TimeoutHealthCheck wraps a health check with a timeout.
type TimeoutHealthCheck struct {
	check   HealthCheck
	timeout time.Duration
}

// NewTimeoutHealthCheck creates a new timeout health check.
func NewTimeoutHealthCheck(check HealthCheck, timeout time.Duration) *TimeoutHealthCheck {
	return &TimeoutHealthCheck{
		check:   check,
		timeout: timeout,
	}
}

// Name returns the name of the health check.
func (t *TimeoutHealthCheck) Name() string {
	return t.check.Name()
}

// Check performs the health check with a timeout.
func (t *TimeoutHealthCheck) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- t.check.Check(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("health check timed out after %v", t.timeout)
	}
}

// CachedHealthCheck caches health check results.
// Thread-safe implementation using mutex protection.
type CachedHealthCheck struct {
	check      HealthCheck
	cacheTTL   time.Duration
	mu         sync.RWMutex
	lastCheck  time.Time
	lastResult error
}

// NewCachedHealthCheck creates a new cached health check.
func NewCachedHealthCheck(check HealthCheck, cacheTTL time.Duration) *CachedHealthCheck {
	return &CachedHealthCheck{
		check:    check,
		cacheTTL: cacheTTL,
	}
}

// Name returns the name of the health check.
func (c *CachedHealthCheck) Name() string {
	return c.check.Name()
}

// Check performs the health check with caching.
// Thread-safe: uses mutex to protect lastCheck and lastResult.
func (c *CachedHealthCheck) Check(ctx context.Context) error {
	// First, try to read from cache with read lock
	c.mu.RLock()
	if time.Since(c.lastCheck) < c.cacheTTL {
		result := c.lastResult
		c.mu.RUnlock()
		return result
	}
	c.mu.RUnlock()

	// Cache expired, need to refresh with write lock
	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock (another goroutine may have refreshed)
	if time.Since(c.lastCheck) < c.cacheTTL {
		return c.lastResult
	}

	c.lastResult = c.check.Check(ctx)
	c.lastCheck = time.Now()
	return c.lastResult
}
