package health

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avkms/internal/cache"
	"github.com/vyrodovalexey/avkms/internal/config"
	"github.com/vyrodovalexey/avkms/internal/observability"
	"github.com/vyrodovalexey/avkms/internal/vault"
)

func TestNewHealthCheckFunc(t *testing.T) {
	t.Parallel()

	check := NewHealthCheckFunc("test-check", func(ctx context.Context) error {
		return nil
	})

	assert.Equal(t, "test-check", check.Name())
	assert.NoError(t, check.Check(context.Background()))
}

func TestNewDependencyCheck(t *testing.T) {
	t.Parallel()

	check := NewDependencyCheck("identity", DependencyTypeIdentity, func(ctx context.Context) error {
		return nil
	})

	assert.Equal(t, "identity", check.Name())
	assert.True(t, check.IsCritical())
	assert.NoError(t, check.Check(context.Background()))
}

func TestNewDependencyCheck_WithCritical(t *testing.T) {
	t.Parallel()

	check := NewDependencyCheck("optional", DependencyTypeCustom, func(ctx context.Context) error {
		return nil
	}, WithCritical(false))

	assert.False(t, check.IsCritical())
}

func TestDependencyCheck_Failure(t *testing.T) {
	t.Parallel()

	check := NewDependencyCheck("broken", DependencyTypeCustom, func(ctx context.Context) error {
		return errors.New("dependency down")
	})

	err := check.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency down")
}

func TestHTTPHealthCheck(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	check := HTTPHealthCheck("upstream", server.URL, 2*time.Second)

	assert.Equal(t, "upstream", check.Name())
	assert.NoError(t, check.Check(context.Background()))
}

func TestHTTPHealthCheck_UnhealthyStatus(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	check := HTTPHealthCheck("upstream", server.URL, 2*time.Second)

	err := check.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unhealthy status code: 500")
}

func TestHTTPHealthCheck_ConnectionRefused(t *testing.T) {
	t.Parallel()

	check := HTTPHealthCheck("upstream", "http://127.0.0.1:1", 500*time.Millisecond)

	err := check.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}

func TestTCPHealthCheck(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	check := TCPHealthCheck("backend", listener.Addr().String(), 2*time.Second)

	assert.Equal(t, "backend", check.Name())
	assert.NoError(t, check.Check(context.Background()))
}

func TestTCPHealthCheck_ConnectionRefused(t *testing.T) {
	t.Parallel()

	check := TCPHealthCheck("backend", "127.0.0.1:1", 500*time.Millisecond)

	err := check.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}

func TestIdentityEndpointCheck(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	check := IdentityEndpointCheck("login-endpoint", listener.Addr().String(), 2*time.Second)

	assert.Equal(t, "login-endpoint", check.Name())
	assert.NoError(t, check.Check(context.Background()))
}

func TestIdentityEndpointCheck_Unreachable(t *testing.T) {
	t.Parallel()

	check := IdentityEndpointCheck("login-endpoint", "127.0.0.1:1", 500*time.Millisecond)

	err := check.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identity endpoint unreachable")
}

func TestRedisHealthCheck_NilClient(t *testing.T) {
	t.Parallel()

	check := RedisHealthCheck("redis", nil)

	err := check.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis client is nil")
}

func TestCacheHealthCheck_NilCache(t *testing.T) {
	t.Parallel()

	check := CacheHealthCheck("token-cache", nil)

	err := check.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cache is nil")
}

func TestCacheHealthCheck_MemoryCache(t *testing.T) {
	t.Parallel()

	c, err := cache.New(&config.CacheConfig{
		Enabled: true,
		Type:    config.CacheTypeMemory,
	}, observability.NopLogger())
	require.NoError(t, err)
	defer c.Close()

	check := CacheHealthCheck("token-cache", c)

	assert.Equal(t, "token-cache", check.Name())
	assert.NoError(t, check.Check(context.Background()))
}

// stubVaultClient implements vault.Client for health check tests.
type stubVaultClient struct {
	status *vault.HealthStatus
	err    error
}

func (s *stubVaultClient) IsEnabled() bool                        { return true }
func (s *stubVaultClient) Authenticate(ctx context.Context) error { return nil }
func (s *stubVaultClient) RenewToken(ctx context.Context) error   { return nil }
func (s *stubVaultClient) KV() vault.KVClient                     { return nil }
func (s *stubVaultClient) Close() error                           { return nil }

func (s *stubVaultClient) Health(ctx context.Context) (*vault.HealthStatus, error) {
	return s.status, s.err
}

func TestVaultHealthCheck_NilClient(t *testing.T) {
	t.Parallel()

	check := VaultHealthCheck("vault", nil)

	err := check.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault client is nil")
}

func TestVaultHealthCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  *vault.HealthStatus
		err     error
		wantErr string
	}{
		{
			name:   "healthy",
			status: &vault.HealthStatus{Initialized: true, Sealed: false},
		},
		{
			name:    "sealed",
			status:  &vault.HealthStatus{Initialized: true, Sealed: true},
			wantErr: "vault is sealed",
		},
		{
			name:    "not initialized",
			status:  &vault.HealthStatus{Initialized: false},
			wantErr: "vault is not initialized",
		},
		{
			name:    "health request fails",
			err:     errors.New("connection refused"),
			wantErr: "vault health failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			client := &stubVaultClient{status: tt.status, err: tt.err}
			check := VaultHealthCheck("vault", client)

			err := check.Check(context.Background())
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCustomHealthCheck(t *testing.T) {
	t.Parallel()

	called := atomic.Bool{}
	check := CustomHealthCheck("custom", func(ctx context.Context) error {
		called.Store(true)
		return nil
	})

	assert.Equal(t, "custom", check.Name())
	assert.NoError(t, check.Check(context.Background()))
	assert.True(t, called.Load())
}

func TestCompositeHealthCheck(t *testing.T) {
	t.Parallel()

	passing := NewHealthCheckFunc("passing", func(ctx context.Context) error { return nil })
	failing := NewHealthCheckFunc("failing", func(ctx context.Context) error {
		return errors.New("subcheck failed")
	})

	composite := NewCompositeHealthCheck("composite", passing, failing)

	assert.Equal(t, "composite", composite.Name())

	err := composite.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subcheck failed")
}

func TestCompositeHealthCheck_AllPassing(t *testing.T) {
	t.Parallel()

	composite := NewCompositeHealthCheck("composite",
		NewHealthCheckFunc("a", func(ctx context.Context) error { return nil }),
		NewHealthCheckFunc("b", func(ctx context.Context) error { return nil }),
	)

	assert.NoError(t, composite.Check(context.Background()))
}

func TestCompositeHealthCheck_AddCheck(t *testing.T) {
	t.Parallel()

	composite := NewCompositeHealthCheck("composite")
	assert.NoError(t, composite.Check(context.Background()))

	composite.AddCheck(NewHealthCheckFunc("added", func(ctx context.Context) error {
		return errors.New("added check failed")
	}))

	err := composite.Check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "added check failed")
}

func TestTimeoutHealthCheck(t *testing.T) {
	t.Parallel()

	fast := NewHealthCheckFunc("fast", func(ctx context.Context) error { return nil })
	check := NewTimeoutHealthCheck(fast, 1*time.Second)

	assert.Equal(t, "fast", check.Name())
	assert.NoError(t, check.Check(context.Background()))
}

func TestTimeoutHealthCheck_SlowCheck(t *testing.T) {
	t.Parallel()

	slow := NewHealthCheckFunc("slow", func(ctx context.Context) error {
		select {
		case <-time.After(5 * time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	check := NewTimeoutHealthCheck(slow, 50*time.Millisecond)

	err := check.Check(context.Background())
	require.Error(t, err)
}

func TestCachedHealthCheck(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	underlying := NewHealthCheckFunc("counted", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	check := NewCachedHealthCheck(underlying, 1*time.Hour)

	assert.Equal(t, "counted", check.Name())

	// Repeated checks within the TTL hit the cached result.
	for i := 0; i < 5; i++ {
		assert.NoError(t, check.Check(context.Background()))
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCachedHealthCheck_TTLExpiry(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	underlying := NewHealthCheckFunc("counted", func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})

	check := NewCachedHealthCheck(underlying, 20*time.Millisecond)

	assert.NoError(t, check.Check(context.Background()))
	time.Sleep(40 * time.Millisecond)
	assert.NoError(t, check.Check(context.Background()))

	assert.Equal(t, int32(2), calls.Load())
}
