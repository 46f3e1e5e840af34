package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avkms/internal/observability"
)

func newTestLocalProvider(t *testing.T) (*LocalProvider, string) {
	t.Helper()

	baseDir := t.TempDir()
	provider, err := NewLocalProvider(&LocalProviderConfig{
		BasePath: baseDir,
		Logger:   observability.NopLogger(),
	})
	require.NoError(t, err)

	return provider, baseDir
}

func TestNewLocalProvider(t *testing.T) {
	// Nil config
	_, err := NewLocalProvider(nil)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	// Empty base path
	_, err = NewLocalProvider(&LocalProviderConfig{})
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	// Non-existent base path
	_, err = NewLocalProvider(&LocalProviderConfig{
		BasePath: "/nonexistent/secrets/dir",
	})
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	// Base path is a file
	baseDir := t.TempDir()
	filePath := filepath.Join(baseDir, "not-a-dir")
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0o600))
	_, err = NewLocalProvider(&LocalProviderConfig{
		BasePath: filePath,
	})
	assert.ErrorIs(t, err, ErrProviderNotConfigured)

	// Valid
	provider, err := NewLocalProvider(&LocalProviderConfig{
		BasePath: baseDir,
	})
	require.NoError(t, err)
	assert.NotNil(t, provider)
}

func TestLocalProviderType(t *testing.T) {
	provider, _ := newTestLocalProvider(t)
	assert.Equal(t, ProviderTypeLocal, provider.Type())
}

func TestLocalProviderGetSecretFromDirectory(t *testing.T) {
	provider, baseDir := newTestLocalProvider(t)

	secretDir := filepath.Join(baseDir, "db-creds")
	require.NoError(t, os.MkdirAll(secretDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(secretDir, "username"), []byte("admin"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(secretDir, "password"), []byte("s3cret\n"), 0o600))

	secret, err := provider.GetSecret(context.Background(), "db-creds")
	require.NoError(t, err)
	assert.Equal(t, "db-creds", secret.Name)
	assert.Equal(t, "directory", secret.Metadata["source"])

	username, ok := secret.GetString("username")
	assert.True(t, ok)
	assert.Equal(t, "admin", username)

	// Trailing newline is trimmed
	password, ok := secret.GetString("password")
	assert.True(t, ok)
	assert.Equal(t, "s3cret", password)
}

func TestLocalProviderGetSecretFromYAML(t *testing.T) {
	provider, baseDir := newTestLocalProvider(t)

	content := "username: admin\npassword: s3cret\nport: 8443\n"
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "app.yaml"), []byte(content), 0o600))

	secret, err := provider.GetSecret(context.Background(), "app")
	require.NoError(t, err)
	assert.Equal(t, "yaml", secret.Metadata["source"])

	username, ok := secret.GetString("username")
	assert.True(t, ok)
	assert.Equal(t, "admin", username)

	// Non-string values are re-encoded as JSON
	port, ok := secret.GetString("port")
	assert.True(t, ok)
	assert.Equal(t, "8443", port)
}

func TestLocalProviderGetSecretFromJSON(t *testing.T) {
	provider, baseDir := newTestLocalProvider(t)

	content := `{"api_key":"abc123","timeout":30}`
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "conf.json"), []byte(content), 0o600))

	secret, err := provider.GetSecret(context.Background(), "conf")
	require.NoError(t, err)
	assert.Equal(t, "json", secret.Metadata["source"])

	apiKey, ok := secret.GetString("api_key")
	assert.True(t, ok)
	assert.Equal(t, "abc123", apiKey)
}

func TestLocalProviderGetSecretNotFound(t *testing.T) {
	provider, _ := newTestLocalProvider(t)

	_, err := provider.GetSecret(context.Background(), "missing")
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestLocalProviderGetSecretInvalidPath(t *testing.T) {
	provider, _ := newTestLocalProvider(t)

	tests := []string{
		"",
		"../etc/passwd",
		"a/../../b",
		"/etc/passwd",
	}

	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			_, err := provider.GetSecret(context.Background(), path)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestLocalProviderListSecrets(t *testing.T) {
	provider, baseDir := newTestLocalProvider(t)

	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "app.yaml"), []byte("k: v"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "conf.json"), []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "README.md"), []byte("docs"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(baseDir, "certs"), 0o750))

	names, err := provider.ListSecrets(context.Background(), "")
	require.NoError(t, err)
	assert.Contains(t, names, "app")
	assert.Contains(t, names, "conf")
	assert.Contains(t, names, "certs")
	assert.NotContains(t, names, "README.md")
}

func TestLocalProviderListSecretsMissingPath(t *testing.T) {
	provider, _ := newTestLocalProvider(t)

	names, err := provider.ListSecrets(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalProviderWriteSecret(t *testing.T) {
	provider, baseDir := newTestLocalProvider(t)
	ctx := context.Background()

	data := map[string][]byte{
		"username": []byte("admin"),
		"password": []byte("s3cret"),
	}
	require.NoError(t, provider.WriteSecret(ctx, "written", data))

	_, err := os.Stat(filepath.Join(baseDir, "written.yaml"))
	require.NoError(t, err)

	secret, err := provider.GetSecret(ctx, "written")
	require.NoError(t, err)
	username, ok := secret.GetString("username")
	assert.True(t, ok)
	assert.Equal(t, "admin", username)

	// Nested paths create intermediate directories
	require.NoError(t, provider.WriteSecret(ctx, "team/app", data))
	secret, err = provider.GetSecret(ctx, "team/app")
	require.NoError(t, err)
	password, ok := secret.GetString("password")
	assert.True(t, ok)
	assert.Equal(t, "s3cret", password)
}

func TestLocalProviderDeleteSecret(t *testing.T) {
	provider, _ := newTestLocalProvider(t)
	ctx := context.Background()

	require.NoError(t, provider.WriteSecret(ctx, "doomed", map[string][]byte{"k": []byte("v")}))

	require.NoError(t, provider.DeleteSecret(ctx, "doomed"))

	_, err := provider.GetSecret(ctx, "doomed")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	// Deleting an absent secret is not an error
	assert.NoError(t, provider.DeleteSecret(ctx, "never-existed"))
}

func TestLocalProviderIsReadOnly(t *testing.T) {
	provider, _ := newTestLocalProvider(t)
	assert.False(t, provider.IsReadOnly())
}

func TestLocalProviderHealthCheck(t *testing.T) {
	provider, _ := newTestLocalProvider(t)
	assert.NoError(t, provider.HealthCheck(context.Background()))
}

func TestLocalProviderHealthCheckDeletedBasePath(t *testing.T) {
	baseDir := t.TempDir()
	removable := filepath.Join(baseDir, "secrets")
	require.NoError(t, os.MkdirAll(removable, 0o750))

	provider, err := NewLocalProvider(&LocalProviderConfig{
		BasePath: removable,
		Logger:   observability.NopLogger(),
	})
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(removable))

	assert.Error(t, provider.HealthCheck(context.Background()))
}

func TestLocalProviderClose(t *testing.T) {
	provider, _ := newTestLocalProvider(t)
	assert.NoError(t, provider.Close())
}
