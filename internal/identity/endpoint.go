package identity

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Default identity endpoint parameters.
const (
	// DefaultHost is the Microsoft Entra ID endpoint host.
	DefaultHost = "login.microsoftonline.com"

	// DefaultPort is the default identity endpoint port.
	DefaultPort = 443

	// tokenPathTemplate is the tenant-scoped token path.
	tokenPathTemplate = "/%s/oauth2/v2.0/token"
)

// Endpoint describes the identity provider the credentials authenticate
// against. The zero value is not usable; use DefaultEndpoint or
// ParseAuthority.
type Endpoint struct {
	// Host is the identity provider host name or address.
	Host string

	// Port is the TCP port.
	Port int

	// Secured selects HTTPS when true and plain HTTP when false.
	Secured bool
}

// DefaultEndpoint returns the Entra ID endpoint over TLS.
func DefaultEndpoint() Endpoint {
	return Endpoint{
		Host:    DefaultHost,
		Port:    DefaultPort,
		Secured: true,
	}
}

// Validate checks that the endpoint is complete.
func (e Endpoint) Validate() error {
	if e.Host == "" {
		return NewConfigurationError("endpoint.host", "host must not be empty")
	}
	if e.Port <= 0 || e.Port > 65535 {
		return NewConfigurationError("endpoint.port", fmt.Sprintf("port %d out of range", e.Port))
	}
	return nil
}

// Scheme returns the URL scheme for the endpoint.
func (e Endpoint) Scheme() string {
	if e.Secured {
		return "https"
	}
	return "http"
}

// TokenURL composes the token endpoint URL for a tenant. The port is
// always explicit so the composed URL is deterministic for a given
// endpoint regardless of scheme defaults.
func (e Endpoint) TokenURL(tenantID string) string {
	return fmt.Sprintf("%s://%s"+tokenPathTemplate,
		e.Scheme(), net.JoinHostPort(e.Host, strconv.Itoa(e.Port)), url.PathEscape(tenantID))
}

// String returns the endpoint in authority form.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s", e.Scheme(), net.JoinHostPort(e.Host, strconv.Itoa(e.Port)))
}

// ParseAuthority parses an authority override into an Endpoint.
// Accepted forms are "host", "host:port" and "scheme://host[:port]"
// with scheme http or https; a single trailing slash is tolerated.
// Omitted ports default to 443 for https and bare authorities, 80 for
// http.
func ParseAuthority(authority string) (Endpoint, error) {
	raw := strings.TrimSpace(authority)
	if raw == "" {
		return Endpoint{}, NewConfigurationError("authority", "authority must not be empty")
	}

	secured := true
	switch {
	case strings.HasPrefix(raw, "https://"):
		raw = strings.TrimPrefix(raw, "https://")
	case strings.HasPrefix(raw, "http://"):
		raw = strings.TrimPrefix(raw, "http://")
		secured = false
	case strings.Contains(raw, "://"):
		return Endpoint{}, NewConfigurationError("authority",
			fmt.Sprintf("unsupported scheme in authority %q", authority))
	}
	raw = strings.TrimSuffix(raw, "/")

	if raw == "" || strings.ContainsAny(raw, "/?#") {
		return Endpoint{}, NewConfigurationError("authority",
			fmt.Sprintf("authority %q must contain only host and optional port", authority))
	}

	host := raw
	port := DefaultPort
	if !secured {
		port = 80
	}

	if h, p, err := net.SplitHostPort(raw); err == nil {
		parsed, perr := strconv.Atoi(p)
		if perr != nil || parsed <= 0 || parsed > 65535 {
			return Endpoint{}, NewConfigurationError("authority",
				fmt.Sprintf("invalid port in authority %q", authority))
		}
		host = h
		port = parsed
	} else if strings.HasPrefix(raw, "[") {
		// Bracketed IPv6 literal without a port.
		host = strings.TrimSuffix(strings.TrimPrefix(raw, "["), "]")
	}

	if host == "" {
		return Endpoint{}, NewConfigurationError("authority",
			fmt.Sprintf("missing host in authority %q", authority))
	}

	endpoint := Endpoint{Host: host, Port: port, Secured: secured}
	if err := endpoint.Validate(); err != nil {
		return Endpoint{}, err
	}
	return endpoint, nil
}
