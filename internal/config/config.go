package config

import (
	"fmt"
)

// Document constants.
const (
	// APIVersionPrefix is the required prefix for the apiVersion field.
	APIVersionPrefix = "kms.avkms.io/"

	// KindTokenSidecar is the expected kind for sidecar configuration documents.
	KindTokenSidecar = "TokenSidecar"
)

// Config is the root configuration document for the token sidecar.
//
// A document names the credentials the sidecar serves tokens for, the
// HTTP API surface, and the optional shared token cache:
//
//	apiVersion: kms.avkms.io/v1
//	kind: TokenSidecar
//	metadata:
//	  name: payments-kms
//	spec:
//	  credentials:
//	    - name: payments
//	      tenantId: 00000000-0000-0000-0000-000000000000
//	      clientId: 11111111-1111-1111-1111-111111111111
//	      clientSecret: env://payments-sp-secret
//	      vaultUrl: https://payments.vault.example.net
type Config struct {
	// APIVersion identifies the configuration schema version.
	APIVersion string `yaml:"apiVersion" json:"apiVersion"`

	// Kind identifies the document kind.
	Kind string `yaml:"kind" json:"kind"`

	// Metadata holds document metadata.
	Metadata Metadata `yaml:"metadata" json:"metadata"`

	// Spec holds the sidecar specification.
	Spec Spec `yaml:"spec" json:"spec"`
}

// Metadata holds configuration document metadata.
type Metadata struct {
	// Name is the unique identifier for this sidecar instance.
	Name string `yaml:"name" json:"name"`

	// Labels are arbitrary key/value pairs attached to the document.
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`

	// Annotations are arbitrary key/value pairs attached to the document.
	Annotations map[string]string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

// Spec holds the sidecar specification.
type Spec struct {
	// Server configures the HTTP API surface.
	Server *ServerConfig `yaml:"server,omitempty" json:"server,omitempty"`

	// Credentials lists the service principals the sidecar acquires
	// tokens for.
	Credentials []CredentialConfig `yaml:"credentials" json:"credentials"`

	// Cache configures the shared token cache.
	Cache *CacheConfig `yaml:"cache,omitempty" json:"cache,omitempty"`

	// Secrets configures resolution of secret references in credential
	// material.
	Secrets *SecretsConfig `yaml:"secrets,omitempty" json:"secrets,omitempty"`

	// Observability configures metrics, tracing and logging.
	Observability *ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// DefaultConfig returns a Config with default values. The credential
// list is empty; a default document does not validate until at least
// one credential is added.
func DefaultConfig() *Config {
	return &Config{
		APIVersion: APIVersionPrefix + "v1",
		Kind:       KindTokenSidecar,
		Spec: Spec{
			Server:  DefaultServerConfig(),
			Cache:   DefaultCacheConfig(),
			Secrets: DefaultSecretsConfig(),
		},
	}
}

// CredentialByName returns the credential with the given name, or nil.
func (c *Config) CredentialByName(name string) *CredentialConfig {
	if c == nil {
		return nil
	}
	for i := range c.Spec.Credentials {
		if c.Spec.Credentials[i].Name == name {
			return &c.Spec.Credentials[i]
		}
	}
	return nil
}

// String returns a string representation of the config without
// sensitive data.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Name: %s, Credentials: %d, CacheEnabled: %t, ServerPort: %d}",
		c.Metadata.Name, len(c.Spec.Credentials),
		!c.Spec.Cache.IsEmpty(), c.Spec.Server.GetPort(),
	)
}
