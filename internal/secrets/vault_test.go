package secrets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avkms/internal/observability"
	"github.com/vyrodovalexey/avkms/internal/vault"
)

// newVaultTestServer serves the token lookup endpoint plus any extra routes.
func newVaultTestServer(t *testing.T, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/token/lookup-self", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"ttl":3600}}`))
	})
	for path, handler := range routes {
		mux.HandleFunc(path, handler)
	}

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestVaultProvider(t *testing.T, address string) *VaultProvider {
	t.Helper()

	provider, err := NewVaultProvider(context.Background(), &VaultProviderConfig{
		Config: &vault.Config{
			Enabled:    true,
			Address:    address,
			AuthMethod: vault.AuthMethodToken,
			Token:      "test-token",
			Retry: &vault.RetryConfig{
				MaxAttempts: 1,
				BackoffBase: time.Millisecond,
				BackoffMax:  5 * time.Millisecond,
			},
		},
		Logger: observability.NopLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Close() })
	return provider
}

func TestNewVaultProvider_NilConfig(t *testing.T) {
	_, err := NewVaultProvider(context.Background(), nil)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestNewVaultProvider_NilVaultConfig(t *testing.T) {
	_, err := NewVaultProvider(context.Background(), &VaultProviderConfig{})
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestNewVaultProvider_InvalidVaultConfig(t *testing.T) {
	_, err := NewVaultProvider(context.Background(), &VaultProviderConfig{
		Config: &vault.Config{
			AuthMethod: vault.AuthMethodToken,
			Token:      "test-token",
		},
	})
	assert.Error(t, err)
	assert.ErrorIs(t, err, vault.ErrInvalidConfig)
}

func TestNewVaultProvider_AuthenticationFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/auth/token/lookup-self", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	_, err := NewVaultProvider(context.Background(), &VaultProviderConfig{
		Config: &vault.Config{
			Enabled:    true,
			Address:    server.URL,
			AuthMethod: vault.AuthMethodToken,
			Token:      "bad-token",
			Retry: &vault.RetryConfig{
				MaxAttempts: 1,
				BackoffBase: time.Millisecond,
				BackoffMax:  5 * time.Millisecond,
			},
		},
		Logger: observability.NopLogger(),
	})
	assert.Error(t, err)
	assert.ErrorContains(t, err, "vault authentication failed")
}

func TestVaultProvider_DefaultMountPoint(t *testing.T) {
	server := newVaultTestServer(t, nil)
	provider := newTestVaultProvider(t, server.URL)
	assert.Equal(t, DefaultVaultMountPoint, provider.mountPoint)
}

func TestVaultProvider_Type(t *testing.T) {
	server := newVaultTestServer(t, nil)
	provider := newTestVaultProvider(t, server.URL)
	assert.Equal(t, ProviderTypeVault, provider.Type())
}

func TestVaultProvider_IsReadOnly(t *testing.T) {
	server := newVaultTestServer(t, nil)
	provider := newTestVaultProvider(t, server.URL)
	assert.False(t, provider.IsReadOnly())
}

func TestVaultProvider_GetSecret(t *testing.T) {
	server := newVaultTestServer(t, map[string]http.HandlerFunc{
		"/v1/secret/data/avkms/sp": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"data": {
					"data": {"client_secret": "hunter2", "port": 5432},
					"metadata": {"version": 3}
				}
			}`))
		},
	})
	provider := newTestVaultProvider(t, server.URL)

	secret, err := provider.GetSecret(context.Background(), "avkms/sp")
	require.NoError(t, err)
	assert.Equal(t, "avkms/sp", secret.Name)
	assert.Equal(t, "vault", secret.Metadata["source"])
	assert.Equal(t, "secret", secret.Metadata["mount"])

	value, ok := secret.GetString("client_secret")
	assert.True(t, ok)
	assert.Equal(t, "hunter2", value)

	// Non-string values are re-encoded as JSON
	port, ok := secret.GetString("port")
	assert.True(t, ok)
	assert.Equal(t, "5432", port)
}

func TestVaultProvider_GetSecret_NotFound(t *testing.T) {
	server := newVaultTestServer(t, map[string]http.HandlerFunc{
		"/v1/secret/data/missing": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		},
	})
	provider := newTestVaultProvider(t, server.URL)

	_, err := provider.GetSecret(context.Background(), "missing")
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestVaultProvider_GetSecret_EmptyPath(t *testing.T) {
	server := newVaultTestServer(t, nil)
	provider := newTestVaultProvider(t, server.URL)

	_, err := provider.GetSecret(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestVaultProvider_ListSecrets(t *testing.T) {
	server := newVaultTestServer(t, map[string]http.HandlerFunc{
		"/v1/secret/metadata/avkms": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "true", r.URL.Query().Get("list"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"keys":["sp","db","nested/"]}}`))
		},
	})
	provider := newTestVaultProvider(t, server.URL)

	names, err := provider.ListSecrets(context.Background(), "avkms")
	require.NoError(t, err)
	assert.Equal(t, []string{"sp", "db", "nested/"}, names)
}

func TestVaultProvider_WriteSecret(t *testing.T) {
	var body map[string]interface{}
	server := newVaultTestServer(t, map[string]http.HandlerFunc{
		"/v1/secret/data/written": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"data":{"version":1}}`))
		},
	})
	provider := newTestVaultProvider(t, server.URL)

	err := provider.WriteSecret(context.Background(), "written", map[string][]byte{
		"client_secret": []byte("hunter2"),
	})
	require.NoError(t, err)

	// KV v2 wraps the payload in a data envelope
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "hunter2", data["client_secret"])
}

func TestVaultProvider_WriteSecret_EmptyPath(t *testing.T) {
	server := newVaultTestServer(t, nil)
	provider := newTestVaultProvider(t, server.URL)

	err := provider.WriteSecret(context.Background(), "", map[string][]byte{"k": []byte("v")})
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestVaultProvider_DeleteSecret(t *testing.T) {
	deleted := false
	server := newVaultTestServer(t, map[string]http.HandlerFunc{
		"/v1/secret/data/doomed": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			deleted = true
			w.WriteHeader(http.StatusNoContent)
		},
	})
	provider := newTestVaultProvider(t, server.URL)

	require.NoError(t, provider.DeleteSecret(context.Background(), "doomed"))
	assert.True(t, deleted)
}

func TestVaultProvider_DeleteSecret_EmptyPath(t *testing.T) {
	server := newVaultTestServer(t, nil)
	provider := newTestVaultProvider(t, server.URL)

	err := provider.DeleteSecret(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestVaultProvider_HealthCheck(t *testing.T) {
	server := newVaultTestServer(t, map[string]http.HandlerFunc{
		"/v1/sys/health": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"initialized":true,"sealed":false,"standby":false,"version":"1.15.0"}`))
		},
	})
	provider := newTestVaultProvider(t, server.URL)

	assert.NoError(t, provider.HealthCheck(context.Background()))
}

func TestVaultProvider_HealthCheck_Sealed(t *testing.T) {
	server := newVaultTestServer(t, map[string]http.HandlerFunc{
		"/v1/sys/health": func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"initialized":true,"sealed":true,"standby":false}`))
		},
	})
	provider := newTestVaultProvider(t, server.URL)

	err := provider.HealthCheck(context.Background())
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestVaultProvider_Close(t *testing.T) {
	server := newVaultTestServer(t, nil)

	provider, err := NewVaultProvider(context.Background(), &VaultProviderConfig{
		Config: &vault.Config{
			Enabled:    true,
			Address:    server.URL,
			AuthMethod: vault.AuthMethodToken,
			Token:      "test-token",
		},
		Logger: observability.NopLogger(),
	})
	require.NoError(t, err)

	assert.NoError(t, provider.Close())
}
