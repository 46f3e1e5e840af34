package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avkms/internal/config"
	"github.com/vyrodovalexey/avkms/internal/health"
	"github.com/vyrodovalexey/avkms/internal/identity"
	"github.com/vyrodovalexey/avkms/internal/observability"
)

func TestNew(t *testing.T) {
	t.Run("with nil config uses defaults", func(t *testing.T) {
		srv := New(nil, nil, nil)

		require.NotNil(t, srv)
		assert.NotNil(t, srv.engine)
		assert.NotNil(t, srv.cfg)
		assert.NotNil(t, srv.credentials)
		assert.Equal(t, config.DefaultServerPort, srv.cfg.GetPort())
		assert.False(t, srv.IsRunning())
	})

	t.Run("with custom config", func(t *testing.T) {
		cfg := &config.ServerConfig{
			Bind: "127.0.0.1",
			Port: 9090,
		}

		srv := New(cfg, NewCredentialSet(), observability.NopLogger())

		assert.Equal(t, "127.0.0.1", srv.cfg.GetBind())
		assert.Equal(t, 9090, srv.cfg.GetPort())
	})

	t.Run("exposes the gin engine", func(t *testing.T) {
		srv := New(nil, nil, nil)

		assert.NotNil(t, srv.Engine())
		assert.Same(t, srv.engine, srv.Engine())
	})
}

func TestNew_WithHealthChecker(t *testing.T) {
	checker := health.NewChecker("1.0.0", observability.NopLogger())

	srv := New(nil, nil, observability.NopLogger(), WithHealthChecker(checker))

	rec := doRequest(srv, http.MethodGet, "/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/livez")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_StartStop(t *testing.T) {
	port := freePort(t)

	creds := &stubCredentials{token: validToken("https://vault.example.net")}
	set := NewCredentialSet()
	set.Replace([]Entry{{
		Credential: "kv-prod",
		Provider:   &stubProvider{name: "AzureKeyProvider", creds: creds},
		Scope:      identity.ResourceScope("https://vault.example.net"),
	}})

	srv := New(&config.ServerConfig{Bind: "127.0.0.1", Port: port}, set, observability.NopLogger())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(context.Background())
	}()

	waitForServer(t, port)
	assert.True(t, srv.IsRunning())

	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/v1/token", port))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"tokenType":"Bearer"`)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(stopCtx))
	assert.False(t, srv.IsRunning())

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not exit after Stop")
	}
}

func TestServer_Start_AlreadyRunning(t *testing.T) {
	srv := New(nil, nil, observability.NopLogger())

	srv.mu.Lock()
	srv.running = true
	srv.mu.Unlock()

	err := srv.Start(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "server already running")
}

func TestServer_Stop_NotRunning(t *testing.T) {
	srv := New(nil, nil, observability.NopLogger())

	assert.NoError(t, srv.Stop(context.Background()))
}

func TestServer_IsRunning_ThreadSafe(t *testing.T) {
	srv := New(nil, nil, observability.NopLogger())

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv.IsRunning()
		}()
	}
	wg.Wait()
}

func TestServer_TLSConfig(t *testing.T) {
	t.Run("disabled returns nil", func(t *testing.T) {
		srv := New(&config.ServerConfig{}, nil, observability.NopLogger())

		tlsConfig, err := srv.tlsConfig()
		require.NoError(t, err)
		assert.Nil(t, tlsConfig)
	})

	t.Run("default min version is TLS12", func(t *testing.T) {
		srv := New(&config.ServerConfig{
			TLS: &config.ServerTLSConfig{Enabled: true, CertFile: "cert.pem", KeyFile: "key.pem"},
		}, nil, observability.NopLogger())

		tlsConfig, err := srv.tlsConfig()
		require.NoError(t, err)
		require.NotNil(t, tlsConfig)
		assert.Equal(t, uint16(tls.VersionTLS12), tlsConfig.MinVersion)
	})

	t.Run("explicit TLS13", func(t *testing.T) {
		srv := New(&config.ServerConfig{
			TLS: &config.ServerTLSConfig{Enabled: true, MinVersion: "TLS13"},
		}, nil, observability.NopLogger())

		tlsConfig, err := srv.tlsConfig()
		require.NoError(t, err)
		assert.Equal(t, uint16(tls.VersionTLS13), tlsConfig.MinVersion)
	})

	t.Run("invalid version", func(t *testing.T) {
		srv := New(&config.ServerConfig{
			TLS: &config.ServerTLSConfig{Enabled: true, MinVersion: "SSL3"},
		}, nil, observability.NopLogger())

		_, err := srv.tlsConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid minimum TLS version")
	})
}

func freePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func waitForServer(t *testing.T, port int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("server did not start listening")
}
