package tls

import (
	"crypto/tls"
	"fmt"
	"slices"
	"strings"
)

// CipherSuite represents a TLS cipher suite with metadata.
type CipherSuite struct {
	// ID is the cipher suite ID.
	ID uint16

	// Name is the cipher suite name.
	Name string

	// Secure indicates if this is a secure cipher suite.
	Secure bool

	// FIPS indicates if this cipher suite is FIPS-compliant.
	FIPS bool

	// TLS13 indicates if this is a TLS 1.3 cipher suite.
	TLS13 bool
}

// cipherSuiteRegistry maps cipher suite names to their configurations.
var cipherSuiteRegistry = map[string]CipherSuite{
	// TLS 1.3 cipher suites (always secure)
	"TLS_AES_128_GCM_SHA256": {
		ID:     tls.TLS_AES_128_GCM_SHA256,
		Name:   "TLS_AES_128_GCM_SHA256",
		Secure: true,
		FIPS:   true,
		TLS13:  true,
	},
	"TLS_AES_256_GCM_SHA384": {
		ID:     tls.TLS_AES_256_GCM_SHA384,
		Name:   "TLS_AES_256_GCM_SHA384",
		Secure: true,
		FIPS:   true,
		TLS13:  true,
	},
	"TLS_CHACHA20_POLY1305_SHA256": {
		ID:     tls.TLS_CHACHA20_POLY1305_SHA256,
		Name:   "TLS_CHACHA20_POLY1305_SHA256",
		Secure: true,
		FIPS:   false,
		TLS13:  true,
	},

	// TLS 1.2 secure cipher suites
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256": {
		ID:     tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		Name:   "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256",
		Secure: true,
		FIPS:   true,
	},
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384": {
		ID:     tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		Name:   "TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384",
		Secure: true,
		FIPS:   true,
	},
	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256": {
		ID:     tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		Name:   "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
		Secure: true,
		FIPS:   true,
	},
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384": {
		ID:     tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		Name:   "TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384",
		Secure: true,
		FIPS:   true,
	},
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256": {
		ID:     tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		Name:   "TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256",
		Secure: true,
		FIPS:   false,
	},
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256": {
		ID:     tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		Name:   "TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256",
		Secure: true,
		FIPS:   false,
	},

	// Legacy cipher suites (not recommended)
	"TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256": {
		ID:     tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256,
		Name:   "TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256",
		Secure: false,
		FIPS:   true,
	},
	"TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256": {
		ID:     tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256,
		Name:   "TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256",
		Secure: false,
		FIPS:   true,
	},
	"TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA": {
		ID:     tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
		Name:   "TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA",
		Secure: false,
		FIPS:   true,
	},
	"TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA": {
		ID:     tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
		Name:   "TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA",
		Secure: false,
		FIPS:   true,
	},
	"TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA": {
		ID:     tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
		Name:   "TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA",
		Secure: false,
		FIPS:   true,
	},
	"TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA": {
		ID:     tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
		Name:   "TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA",
		Secure: false,
		FIPS:   true,
	},
	"TLS_RSA_WITH_AES_128_GCM_SHA256": {
		ID:     tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
		Name:   "TLS_RSA_WITH_AES_128_GCM_SHA256",
		Secure: false,
		FIPS:   true,
	},
	"TLS_RSA_WITH_AES_256_GCM_SHA384": {
		ID:     tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
		Name:   "TLS_RSA_WITH_AES_256_GCM_SHA384",
		Secure: false,
		FIPS:   true,
	},
	"TLS_RSA_WITH_AES_128_CBC_SHA256": {
		ID:     tls.TLS_RSA_WITH_AES_128_CBC_SHA256,
		Name:   "TLS_RSA_WITH_AES_128_CBC_SHA256",
		Secure: false,
		FIPS:   true,
	},
	"TLS_RSA_WITH_AES_128_CBC_SHA": {
		ID:     tls.TLS_RSA_WITH_AES_128_CBC_SHA,
		Name:   "TLS_RSA_WITH_AES_128_CBC_SHA",
		Secure: false,
		FIPS:   true,
	},
	"TLS_RSA_WITH_AES_256_CBC_SHA": {
		ID:     tls.TLS_RSA_WITH_AES_256_CBC_SHA,
		Name:   "TLS_RSA_WITH_AES_256_CBC_SHA",
		Secure: false,
		FIPS:   true,
	},
}

// curveRegistry maps curve names to their tls.CurveID values.
var curveRegistry = map[string]tls.CurveID{
	"X25519":    tls.X25519,
	"P256":      tls.CurveP256,
	"P384":      tls.CurveP384,
	"P521":      tls.CurveP521,
	"CurveP256": tls.CurveP256,
	"CurveP384": tls.CurveP384,
	"CurveP521": tls.CurveP521,
}

// DefaultSecureCipherSuites returns the default secure cipher suites for TLS 1.2.
// TLS 1.3 cipher suites are managed by Go and cannot be configured.
func DefaultSecureCipherSuites() []uint16 {
	return []uint16{
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	}
}

// Secure256CipherSuites returns the TLS 1.2 cipher suites with 256-bit keys.
func Secure256CipherSuites() []uint16 {
	return []uint16{
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	}
}

// FIPSCipherSuites returns FIPS-compliant cipher suites.
func FIPSCipherSuites() []uint16 {
	return []uint16{
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	}
}

// DefaultCurvePreferences returns the default ECDH curve preferences.
func DefaultCurvePreferences() []tls.CurveID {
	return []tls.CurveID{
		tls.X25519,
		tls.CurveP256,
		tls.CurveP384,
	}
}

// Priority string keywords. Keywords expand to a predefined suite set;
// explicit cipher suite names select individual suites.
const (
	// PriorityNormal selects the default secure suite set.
	PriorityNormal = "NORMAL"

	// PrioritySecure256 selects suites with 256-bit symmetric keys only.
	PrioritySecure256 = "SECURE256"

	// PriorityFIPS selects FIPS-compliant suites only.
	PriorityFIPS = "FIPS"
)

// ParsePriorityString parses a cipher priority string into TLS 1.2 cipher
// suite IDs. The string is a colon or comma separated list of tokens. A
// token is a keyword (NORMAL, SECURE256, FIPS), which expands to a suite
// set, or an explicit cipher suite name from the registry. Tokens prefixed
// with '!' or '-' remove the named suite or keyword set from the selection.
// Unknown tokens are rejected. TLS 1.3 suite names are accepted but
// skipped, as Go manages TLS 1.3 suites itself.
//
// An empty priority string yields the default secure suite set.
func ParsePriorityString(priority string) ([]uint16, error) {
	tokens := splitPriorityString(priority)
	if len(tokens) == 0 {
		return DefaultSecureCipherSuites(), nil
	}

	var selected []uint16
	for _, token := range tokens {
		exclude := false
		if strings.HasPrefix(token, "!") || strings.HasPrefix(token, "-") {
			exclude = true
			token = token[1:]
		}
		if token == "" {
			return nil, fmt.Errorf("%w: empty token", ErrPriorityStringInvalid)
		}

		ids, err := resolvePriorityToken(token)
		if err != nil {
			return nil, err
		}

		if exclude {
			selected = slices.DeleteFunc(selected, func(id uint16) bool {
				return slices.Contains(ids, id)
			})
			continue
		}

		for _, id := range ids {
			if !slices.Contains(selected, id) {
				selected = append(selected, id)
			}
		}
	}

	if len(selected) == 0 {
		return nil, fmt.Errorf("%w: no cipher suites selected by %q", ErrPriorityStringInvalid, priority)
	}

	return selected, nil
}

// splitPriorityString splits a priority string on colons and commas.
func splitPriorityString(priority string) []string {
	fields := strings.FieldsFunc(priority, func(r rune) bool {
		return r == ':' || r == ','
	})

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// resolvePriorityToken resolves a single priority token to suite IDs.
func resolvePriorityToken(token string) ([]uint16, error) {
	switch strings.ToUpper(token) {
	case PriorityNormal:
		return DefaultSecureCipherSuites(), nil
	case PrioritySecure256:
		return Secure256CipherSuites(), nil
	case PriorityFIPS:
		return FIPSCipherSuites(), nil
	}

	suite, ok := cipherSuiteRegistry[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCipherSuiteInvalid, token)
	}

	// TLS 1.3 suites cannot be configured
	if suite.TLS13 {
		return nil, nil
	}

	return []uint16{suite.ID}, nil
}

// ValidatePriorityString validates a priority string without materializing
// the suite list.
func ValidatePriorityString(priority string) error {
	if strings.TrimSpace(priority) == "" {
		return nil
	}
	_, err := ParsePriorityString(priority)
	return err
}

// ParseCurvePreferences parses curve names and returns their IDs.
func ParseCurvePreferences(names []string) ([]tls.CurveID, error) {
	if len(names) == 0 {
		return DefaultCurvePreferences(), nil
	}

	curves := make([]tls.CurveID, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		curve, ok := curveRegistry[name]
		if !ok {
			return nil, fmt.Errorf("invalid curve: %s", name)
		}

		curves = append(curves, curve)
	}

	if len(curves) == 0 {
		return DefaultCurvePreferences(), nil
	}

	return curves, nil
}

// ValidateCurvePreferences validates that all curve names are valid.
func ValidateCurvePreferences(names []string) error {
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}

		if _, ok := curveRegistry[name]; !ok {
			return fmt.Errorf("invalid curve: %s", name)
		}
	}
	return nil
}

// GetCipherSuiteInfo returns information about a cipher suite by name.
func GetCipherSuiteInfo(name string) (CipherSuite, bool) {
	suite, ok := cipherSuiteRegistry[name]
	return suite, ok
}

// GetCipherSuiteByID returns information about a cipher suite by ID.
func GetCipherSuiteByID(id uint16) (CipherSuite, bool) {
	for _, suite := range cipherSuiteRegistry {
		if suite.ID == id {
			return suite, true
		}
	}
	return CipherSuite{}, false
}

// CipherSuiteName returns the name of a cipher suite by ID.
func CipherSuiteName(id uint16) string {
	if suite, ok := GetCipherSuiteByID(id); ok {
		return suite.Name
	}
	return fmt.Sprintf("0x%04X", id)
}

// IsSecureCipherSuite returns true if the cipher suite is considered secure.
func IsSecureCipherSuite(id uint16) bool {
	suite, ok := GetCipherSuiteByID(id)
	return ok && suite.Secure
}

// TLSVersionName returns the human-readable name of a TLS version.
func TLSVersionName(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("0x%04X", version)
	}
}
