package config

import "time"

// Credential defaults.
const (
	// DefaultRequestTimeout is the default per-attempt timeout for token
	// requests.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultRefreshBuffer is the default head start before token expiry
	// at which cached tokens stop being served.
	DefaultRefreshBuffer = 60 * time.Second
)

// CredentialConfig describes one service principal the sidecar acquires
// tokens for. The client secret, certificate bundle and certificate
// password accept either inline values or secret references
// (env://, file://, vault://, k8s://).
type CredentialConfig struct {
	// Name is the unique identifier for this credential. API callers
	// select a credential by this name.
	Name string `yaml:"name" json:"name"`

	// TenantID is the directory tenant the service principal lives in.
	TenantID string `yaml:"tenantId" json:"tenantId"`

	// ClientID is the application identifier of the service principal.
	ClientID string `yaml:"clientId" json:"clientId"`

	// ClientSecret is the client secret, inline or as a secret
	// reference. Mutually exclusive with Certificate.
	ClientSecret string `yaml:"clientSecret,omitempty" json:"clientSecret,omitempty"`

	// Certificate configures certificate-based authentication.
	// Mutually exclusive with ClientSecret.
	Certificate *CredentialCertificate `yaml:"certificate,omitempty" json:"certificate,omitempty"`

	// Authority overrides the default identity endpoint, as a URL
	// (https://host:port or http://host:port).
	Authority string `yaml:"authority,omitempty" json:"authority,omitempty"`

	// VaultURL is the key vault this credential serves. The default
	// token scope is derived from its origin.
	VaultURL string `yaml:"vaultUrl,omitempty" json:"vaultUrl,omitempty"`

	// Resource overrides the derived token scope.
	Resource string `yaml:"resource,omitempty" json:"resource,omitempty"`

	// TrustStore is the path to a PEM bundle of CA certificates used to
	// verify the identity endpoint.
	TrustStore string `yaml:"truststore,omitempty" json:"truststore,omitempty"`

	// PriorityString restricts the cipher suites offered to the
	// identity endpoint.
	PriorityString string `yaml:"priorityString,omitempty" json:"priorityString,omitempty"`

	// RequestTimeout bounds each individual token request attempt.
	RequestTimeout Duration `yaml:"requestTimeout,omitempty" json:"requestTimeout,omitempty"`

	// RefreshBuffer is how long before expiry cached tokens refresh.
	RefreshBuffer Duration `yaml:"refreshBuffer,omitempty" json:"refreshBuffer,omitempty"`

	// Retry configures the token request retry budget.
	Retry *CredentialRetryConfig `yaml:"retry,omitempty" json:"retry,omitempty"`
}

// CredentialCertificate configures certificate-based authentication for
// a credential.
type CredentialCertificate struct {
	// Bundle is the certificate bundle holding the signing certificate
	// and private key, as a file path or a secret reference. PEM and
	// PKCS#12 bundles are supported.
	Bundle string `yaml:"bundle" json:"bundle"`

	// Password decrypts PKCS#12 bundles, inline or as a secret
	// reference.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
}

// CredentialRetryConfig configures retries of token requests.
type CredentialRetryConfig struct {
	// MaxAttempts is the total number of attempts per token request,
	// including the first one.
	MaxAttempts int `yaml:"maxAttempts,omitempty" json:"maxAttempts,omitempty"`

	// InitialBackoff is the initial backoff between attempts.
	InitialBackoff Duration `yaml:"initialBackoff,omitempty" json:"initialBackoff,omitempty"`

	// MaxBackoff is the maximum backoff between attempts.
	MaxBackoff Duration `yaml:"maxBackoff,omitempty" json:"maxBackoff,omitempty"`
}

// GetRequestTimeout returns the effective request timeout.
func (c *CredentialConfig) GetRequestTimeout() time.Duration {
	if c == nil || c.RequestTimeout == 0 {
		return DefaultRequestTimeout
	}
	return c.RequestTimeout.Duration()
}

// GetRefreshBuffer returns the effective refresh buffer.
func (c *CredentialConfig) GetRefreshBuffer() time.Duration {
	if c == nil || c.RefreshBuffer == 0 {
		return DefaultRefreshBuffer
	}
	return c.RefreshBuffer.Duration()
}

// UsesCertificate reports whether the credential authenticates with a
// certificate.
func (c *CredentialConfig) UsesCertificate() bool {
	return c != nil && c.Certificate != nil && c.Certificate.Bundle != ""
}
