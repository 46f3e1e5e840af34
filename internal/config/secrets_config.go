package config

import "time"

// Secrets provider types.
const (
	// SecretsProviderEnv serves secrets from environment variables.
	SecretsProviderEnv = "env"

	// SecretsProviderLocal serves secrets from local files.
	SecretsProviderLocal = "local"

	// SecretsProviderVault serves secrets from HashiCorp Vault.
	SecretsProviderVault = "vault"

	// SecretsProviderKubernetes serves secrets from Kubernetes Secrets.
	SecretsProviderKubernetes = "kubernetes"
)

// Secrets defaults.
const (
	// DefaultSecretsEnvPrefix is the default prefix for env:// references.
	DefaultSecretsEnvPrefix = "AVKMS_SECRET_"

	// DefaultSecretsLocalPath is the default base path for local file
	// secrets.
	DefaultSecretsLocalPath = "/etc/avkms/secrets"

	// DefaultSecretsCacheTTL is the default TTL for cached secret reads.
	DefaultSecretsCacheTTL = 5 * time.Minute
)

// SecretsConfig configures resolution of secret references in
// credential material. The env:// and file:// schemes are always
// available; vault:// and k8s:// references require the matching
// provider to be configured here.
type SecretsConfig struct {
	// Provider selects the backing provider for scheme-less operation
	// and enables vault:// or k8s:// references. One of "env", "local",
	// "vault", "kubernetes". Empty enables env:// and file:// only.
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	// EnvPrefix is the prefix applied to env:// references.
	EnvPrefix string `yaml:"envPrefix,omitempty" json:"envPrefix,omitempty"`

	// LocalBasePath is the base path for the local file provider.
	LocalBasePath string `yaml:"localBasePath,omitempty" json:"localBasePath,omitempty"`

	// Namespace is the default namespace for Kubernetes secrets.
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`

	// VaultMountPath is the KV v2 mount served by vault:// references.
	VaultMountPath string `yaml:"vaultMountPath,omitempty" json:"vaultMountPath,omitempty"`

	// CacheTTL is the TTL for cached secret reads. Zero disables
	// caching.
	CacheTTL Duration `yaml:"cacheTTL,omitempty" json:"cacheTTL,omitempty"`
}

// DefaultSecretsConfig returns a SecretsConfig with default values.
func DefaultSecretsConfig() *SecretsConfig {
	return &SecretsConfig{
		EnvPrefix:     DefaultSecretsEnvPrefix,
		LocalBasePath: DefaultSecretsLocalPath,
		CacheTTL:      Duration(DefaultSecretsCacheTTL),
	}
}

// GetEnvPrefix returns the effective env reference prefix.
func (s *SecretsConfig) GetEnvPrefix() string {
	if s == nil || s.EnvPrefix == "" {
		return DefaultSecretsEnvPrefix
	}
	return s.EnvPrefix
}

// GetLocalBasePath returns the effective local secrets base path.
func (s *SecretsConfig) GetLocalBasePath() string {
	if s == nil || s.LocalBasePath == "" {
		return DefaultSecretsLocalPath
	}
	return s.LocalBasePath
}

// GetCacheTTL returns the effective secret cache TTL.
func (s *SecretsConfig) GetCacheTTL() time.Duration {
	if s == nil {
		return DefaultSecretsCacheTTL
	}
	return s.CacheTTL.Duration()
}

// IsValidSecretsProvider reports whether the provider name is known.
func IsValidSecretsProvider(provider string) bool {
	switch provider {
	case "", SecretsProviderEnv, SecretsProviderLocal, SecretsProviderVault, SecretsProviderKubernetes:
		return true
	default:
		return false
	}
}
