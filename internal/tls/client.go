package tls

import (
	"crypto/tls"
	"fmt"
)

// TLSVersion represents TLS protocol version.
type TLSVersion string

// TLS version constants.
const (
	// TLSVersionAuto automatically selects the TLS version.
	TLSVersionAuto TLSVersion = "AUTO"

	// TLSVersion10 represents TLS 1.0 (legacy, requires explicit opt-in).
	TLSVersion10 TLSVersion = "TLS10"

	// TLSVersion11 represents TLS 1.1 (legacy, requires explicit opt-in).
	TLSVersion11 TLSVersion = "TLS11"

	// TLSVersion12 represents TLS 1.2 (minimum default).
	TLSVersion12 TLSVersion = "TLS12"

	// TLSVersion13 represents TLS 1.3 (preferred).
	TLSVersion13 TLSVersion = "TLS13"
)

// String returns the string representation of the TLS version.
func (v TLSVersion) String() string {
	return string(v)
}

// IsValid returns true if the TLS version is valid.
func (v TLSVersion) IsValid() bool {
	switch v {
	case TLSVersionAuto, TLSVersion10, TLSVersion11, TLSVersion12, TLSVersion13:
		return true
	default:
		return false
	}
}

// ToTLSVersion converts to crypto/tls version constant.
func (v TLSVersion) ToTLSVersion() uint16 {
	switch v {
	case TLSVersion10:
		return tls.VersionTLS10
	case TLSVersion11:
		return tls.VersionTLS11
	case TLSVersion12:
		return tls.VersionTLS12
	case TLSVersion13:
		return tls.VersionTLS13
	case TLSVersionAuto:
		return 0 // Let Go choose
	default:
		return tls.VersionTLS12 // Safe default
	}
}

// IsLegacy returns true if this is a legacy TLS version (1.0 or 1.1).
func (v TLSVersion) IsLegacy() bool {
	return v == TLSVersion10 || v == TLSVersion11
}

// ClientConfig describes the client-side TLS surface for connections to
// the identity endpoint.
type ClientConfig struct {
	// TrustStore is the path to a PEM CA bundle used to verify the
	// endpoint. Empty means the system trust store.
	TrustStore string `yaml:"trustStore,omitempty" json:"trustStore,omitempty"`

	// TrustStoreData is an inline PEM CA bundle. Takes precedence over
	// TrustStore when set.
	TrustStoreData string `yaml:"trustStoreData,omitempty" json:"trustStoreData,omitempty"`

	// PriorityString selects TLS 1.2 cipher suites. See ParsePriorityString.
	PriorityString string `yaml:"priorityString,omitempty" json:"priorityString,omitempty"`

	// MinVersion is the minimum TLS version (default: TLS12).
	MinVersion TLSVersion `yaml:"minVersion,omitempty" json:"minVersion,omitempty"`

	// MaxVersion is the maximum TLS version (default: TLS13).
	MaxVersion TLSVersion `yaml:"maxVersion,omitempty" json:"maxVersion,omitempty"`

	// CurvePreferences is the list of ECDH curves.
	CurvePreferences []string `yaml:"curvePreferences,omitempty" json:"curvePreferences,omitempty"`

	// ServerName overrides the server name used for verification and SNI.
	ServerName string `yaml:"serverName,omitempty" json:"serverName,omitempty"`

	// InsecureSkipVerify skips certificate verification (dev only).
	InsecureSkipVerify bool `yaml:"insecureSkipVerify,omitempty" json:"insecureSkipVerify,omitempty"`
}

// DefaultClientConfig returns a ClientConfig with secure defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		MinVersion: TLSVersion12,
		MaxVersion: TLSVersion13,
	}
}

// Validate validates the client TLS configuration.
func (c *ClientConfig) Validate() error {
	if c == nil {
		return nil
	}

	if c.MinVersion != "" && !c.MinVersion.IsValid() {
		return NewConfigurationError("minVersion", fmt.Sprintf("invalid TLS version: %s", c.MinVersion))
	}
	if c.MaxVersion != "" && !c.MaxVersion.IsValid() {
		return NewConfigurationError("maxVersion", fmt.Sprintf("invalid TLS version: %s", c.MaxVersion))
	}

	if c.MinVersion != "" && c.MaxVersion != "" {
		minVer := c.MinVersion.ToTLSVersion()
		maxVer := c.MaxVersion.ToTLSVersion()
		if minVer > 0 && maxVer > 0 && minVer > maxVer {
			return NewConfigurationError("minVersion",
				fmt.Sprintf("minVersion (%s) cannot be greater than maxVersion (%s)", c.MinVersion, c.MaxVersion))
		}
	}

	if err := ValidatePriorityString(c.PriorityString); err != nil {
		return NewConfigurationErrorWithCause("priorityString", "invalid cipher priority string", err)
	}

	if err := ValidateCurvePreferences(c.CurvePreferences); err != nil {
		return NewConfigurationErrorWithCause("curvePreferences", "invalid curve preferences", err)
	}

	return nil
}

// Clone creates a deep copy of the ClientConfig.
func (c *ClientConfig) Clone() *ClientConfig {
	if c == nil {
		return nil
	}

	clone := &ClientConfig{
		TrustStore:         c.TrustStore,
		TrustStoreData:     c.TrustStoreData,
		PriorityString:     c.PriorityString,
		MinVersion:         c.MinVersion,
		MaxVersion:         c.MaxVersion,
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}

	if len(c.CurvePreferences) > 0 {
		clone.CurvePreferences = make([]string, len(c.CurvePreferences))
		copy(clone.CurvePreferences, c.CurvePreferences)
	}

	return clone
}

// Build materializes the client TLS configuration into a *tls.Config
// suitable for an HTTP transport. A nil ClientConfig builds the default
// secure configuration.
func (c *ClientConfig) Build() (*tls.Config, error) {
	if c == nil {
		c = DefaultClientConfig()
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	minVersion := c.MinVersion
	if minVersion == "" {
		minVersion = TLSVersion12
	}
	maxVersion := c.MaxVersion
	if maxVersion == "" {
		maxVersion = TLSVersion13
	}

	tlsConfig := &tls.Config{
		MinVersion: minVersion.ToTLSVersion(), // #nosec G402 -- MinVersion is validated above
		MaxVersion: maxVersion.ToTLSVersion(),
		ServerName: c.ServerName,
	}

	switch {
	case c.TrustStoreData != "":
		pool, err := TrustStoreFromPEM([]byte(c.TrustStoreData))
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	case c.TrustStore != "":
		pool, err := LoadTrustStore(c.TrustStore)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}

	suites, err := ParsePriorityString(c.PriorityString)
	if err != nil {
		return nil, err
	}
	tlsConfig.CipherSuites = suites

	curves, err := ParseCurvePreferences(c.CurvePreferences)
	if err != nil {
		return nil, err
	}
	tlsConfig.CurvePreferences = curves

	if c.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true // #nosec G402 -- explicit development opt-in
	}

	return tlsConfig, nil
}
