package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vyrodovalexey/avkms/internal/observability"
)

// DefaultEnvPrefix is the default prefix for environment variable secrets.
const DefaultEnvPrefix = "AVKMS_SECRET_"

// EnvProviderConfig holds configuration for the environment variable secrets provider.
type EnvProviderConfig struct {
	// Prefix is the prefix for environment variables.
	// Default: "AVKMS_SECRET_"
	Prefix string
	// Logger is the logger instance.
	Logger observability.Logger
}

// EnvProvider implements the Provider interface using environment variables.
// Path format: "secret-name" maps to env var "{PREFIX}SECRET_NAME". For
// secrets with multiple keys, the env var value should be JSON-encoded.
type EnvProvider struct {
	prefix string
	logger observability.Logger
}

// NewEnvProvider creates a new environment variable secrets provider.
func NewEnvProvider(cfg *EnvProviderConfig) (*EnvProvider, error) {
	if cfg == nil {
		cfg = &EnvProviderConfig{}
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &EnvProvider{
		prefix: prefix,
		logger: logger.With(observability.String("provider", "env")),
	}, nil
}

// Type returns the provider type.
func (p *EnvProvider) Type() ProviderType {
	return ProviderTypeEnv
}

// normalizeEnvName converts a secret path to an environment variable name:
// uppercase, dashes/dots/slashes replaced with underscores, prefix added.
func (p *EnvProvider) normalizeEnvName(path string) string {
	name := strings.ToUpper(path)
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, "/", "_")

	return p.prefix + name
}

// GetSecret retrieves a secret from environment variables. If the value is
// valid JSON, it is parsed as a map of key-value pairs; otherwise the entire
// value is stored under the key "value".
func (p *EnvProvider) GetSecret(_ context.Context, path string) (secret *Secret, err error) {
	start := time.Now()
	defer func() {
		RecordOperation(p.Type(), "get", time.Since(start), err)
	}()

	if path == "" {
		return nil, ErrInvalidPath
	}

	envName := p.normalizeEnvName(path)

	value, exists := os.LookupEnv(envName)
	if !exists {
		p.logger.Debug("environment variable not set",
			observability.String("env_var", envName),
		)
		return nil, fmt.Errorf("%w: environment variable %s not set", ErrSecretNotFound, envName)
	}

	data := make(map[string][]byte)

	// Try to parse as JSON for multi-key secrets
	var jsonData map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(value), &jsonData); jsonErr == nil {
		for k, v := range jsonData {
			switch val := v.(type) {
			case string:
				data[k] = []byte(val)
			default:
				raw, marshalErr := json.Marshal(val)
				if marshalErr != nil {
					p.logger.Warn("failed to marshal secret value",
						observability.String("key", k),
						observability.Error(marshalErr),
					)
					continue
				}
				data[k] = raw
			}
		}
	} else {
		data["value"] = []byte(value)
	}

	p.logger.Debug("secret retrieved from environment",
		observability.String("path", path),
		observability.Int("keys", len(data)),
	)

	return &Secret{
		Name: path,
		Data: data,
		Metadata: map[string]string{
			"source":  "environment",
			"env_var": envName,
		},
	}, nil
}

// ListSecrets lists all secrets available from environment variables that
// match the configured prefix.
func (p *EnvProvider) ListSecrets(_ context.Context, _ string) (names []string, err error) {
	start := time.Now()
	defer func() {
		RecordOperation(p.Type(), "list", time.Since(start), err)
	}()

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			continue
		}

		name := parts[0]
		if strings.HasPrefix(name, p.prefix) {
			secretName := strings.TrimPrefix(name, p.prefix)
			secretName = strings.ToLower(secretName)
			secretName = strings.ReplaceAll(secretName, "_", "-")
			names = append(names, secretName)
		}
	}

	return names, nil
}

// WriteSecret is not supported for environment variables.
func (p *EnvProvider) WriteSecret(_ context.Context, _ string, _ map[string][]byte) error {
	return ErrReadOnly
}

// DeleteSecret is not supported for environment variables.
func (p *EnvProvider) DeleteSecret(_ context.Context, _ string) error {
	return ErrReadOnly
}

// IsReadOnly returns true as environment variables are read-only.
func (p *EnvProvider) IsReadOnly() bool {
	return true
}

// HealthCheck always succeeds as the process environment is always available.
func (p *EnvProvider) HealthCheck(_ context.Context) error {
	start := time.Now()

	RecordHealthStatus(p.Type(), true)
	RecordOperation(p.Type(), "health_check", time.Since(start), nil)
	return nil
}

// Close cleans up provider resources.
func (p *EnvProvider) Close() error {
	return nil
}
