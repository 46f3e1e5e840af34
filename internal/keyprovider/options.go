package keyprovider

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"

	"github.com/vyrodovalexey/avkms/internal/identity"
)

// Option keys understood by the azure factory. Secret-valued options
// (client_secret, client_certificate, client_certificate_password) may
// carry inline material or a secret reference (env://, file://,
// vault://, k8s://).
const (
	// OptTenantID is the directory tenant of the service principal.
	OptTenantID = "tenant_id"

	// OptClientID identifies the application registration.
	OptClientID = "client_id"

	// OptClientSecret is the shared-secret authentication material.
	OptClientSecret = "client_secret"

	// OptClientCertificate is the certificate authentication material:
	// the path to a combined PEM file or PKCS#12 archive, or a secret
	// reference resolving to combined PEM material.
	OptClientCertificate = "client_certificate"

	// OptCertificatePassword decrypts a PKCS#12 certificate bundle.
	OptCertificatePassword = "client_certificate_password"

	// OptAuthority overrides the identity endpoint URL.
	OptAuthority = "authority"

	// OptTrustStore is the path to a PEM CA bundle for the identity
	// endpoint connection.
	OptTrustStore = "truststore"

	// OptPriorityString filters and orders the TLS cipher suites.
	OptPriorityString = "priority_string"

	// OptVaultURL is the key vault endpoint the provider serves.
	OptVaultURL = "vault_url"

	// OptResource overrides the token scope requested for vault calls.
	// Defaults to the vault URL origin with the /.default suffix.
	OptResource = "resource"
)

var knownOptions = map[string]bool{
	OptTenantID:            true,
	OptClientID:            true,
	OptClientSecret:        true,
	OptClientCertificate:   true,
	OptCertificatePassword: true,
	OptAuthority:           true,
	OptTrustStore:          true,
	OptPriorityString:      true,
	OptVaultURL:            true,
	OptResource:            true,
}

// Options is a flat configuration bag for a key provider. Empty values
// are treated as absent.
type Options map[string]string

// Get returns the value for a key, or empty.
func (o Options) Get(key string) string {
	return o[key]
}

// Validate checks the bag for unknown keys and for a complete,
// unambiguous authentication configuration.
func (o Options) Validate() error {
	for key := range o {
		if !knownOptions[key] {
			return NewOptionsError(key, "unknown option")
		}
	}

	if o[OptTenantID] == "" {
		return NewOptionsError(OptTenantID, "value is required")
	}
	if o[OptClientID] == "" {
		return NewOptionsError(OptClientID, "value is required")
	}

	hasSecret := o[OptClientSecret] != ""
	hasCertificate := o[OptClientCertificate] != ""
	switch {
	case hasSecret && hasCertificate:
		return NewOptionsError(OptClientSecret,
			"client_secret and client_certificate are mutually exclusive")
	case !hasSecret && !hasCertificate:
		return NewOptionsError(OptClientSecret,
			"either client_secret or client_certificate is required")
	}
	if o[OptCertificatePassword] != "" && !hasCertificate {
		return NewOptionsError(OptCertificatePassword,
			"only valid together with client_certificate")
	}

	if o[OptVaultURL] == "" && o[OptResource] == "" {
		return NewOptionsError(OptVaultURL,
			"either vault_url or resource is required")
	}
	if o[OptVaultURL] != "" {
		if _, err := deriveScope(o[OptVaultURL]); err != nil {
			return err
		}
	}

	return nil
}

// Fingerprint returns a stable identity for the options bag. Bags with
// the same key-value pairs produce the same fingerprint.
func (o Options) Fingerprint() string {
	keys := make([]string, 0, len(o))
	for key := range o {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, key := range keys {
		fmt.Fprintf(h, "%s\x00%s\x00", key, o[key])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ResourceScope returns the token scope for vault calls: the explicit
// resource override, or the scope derived from the vault URL.
func (o Options) ResourceScope() (identity.ResourceScope, error) {
	if resource := o[OptResource]; resource != "" {
		return identity.ResourceScope(resource), nil
	}
	scope, err := deriveScope(o[OptVaultURL])
	if err != nil {
		return "", err
	}
	return identity.ResourceScope(scope), nil
}

// deriveScope computes the default token scope from a vault URL: the
// URL origin with the /.default suffix.
func deriveScope(vaultURL string) (string, error) {
	u, err := url.Parse(vaultURL)
	if err != nil {
		return "", NewOptionsErrorWithCause(OptVaultURL, "invalid vault URL", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", NewOptionsError(OptVaultURL, "vault URL must carry a scheme and host")
	}
	return u.Scheme + "://" + u.Host + "/.default", nil
}
