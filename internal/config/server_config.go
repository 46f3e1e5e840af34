package config

import "time"

// Server defaults.
const (
	// DefaultServerBind is the default bind address for the HTTP API.
	DefaultServerBind = "0.0.0.0"

	// DefaultServerPort is the default port for the HTTP API.
	DefaultServerPort = 8080

	// DefaultReadTimeout is the default maximum duration for reading an
	// entire request.
	DefaultReadTimeout = 30 * time.Second

	// DefaultReadHeaderTimeout is the default maximum duration for
	// reading request headers.
	DefaultReadHeaderTimeout = 5 * time.Second

	// DefaultWriteTimeout is the default maximum duration for writing a
	// response.
	DefaultWriteTimeout = 30 * time.Second

	// DefaultIdleTimeout is the default keep-alive idle timeout.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultShutdownTimeout is the default grace period for in-flight
	// requests during shutdown.
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultTokenTimeout is the default per-request budget for token
	// acquisition triggered by an API call.
	DefaultTokenTimeout = 30 * time.Second
)

// ServerConfig configures the sidecar's HTTP API server.
type ServerConfig struct {
	// Bind is the address to bind to.
	Bind string `yaml:"bind,omitempty" json:"bind,omitempty"`

	// Port is the port to listen on.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`

	// ReadTimeout is the maximum duration for reading the entire
	// request, including the body.
	ReadTimeout Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`

	// ReadHeaderTimeout is the maximum duration for reading request
	// headers.
	ReadHeaderTimeout Duration `yaml:"readHeaderTimeout,omitempty" json:"readHeaderTimeout,omitempty"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response.
	WriteTimeout Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`

	// IdleTimeout is the maximum duration to wait for the next request
	// when keep-alives are enabled.
	IdleTimeout Duration `yaml:"idleTimeout,omitempty" json:"idleTimeout,omitempty"`

	// ShutdownTimeout is the grace period for in-flight requests during
	// shutdown.
	ShutdownTimeout Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`

	// TokenTimeout bounds token acquisition triggered by an API call.
	TokenTimeout Duration `yaml:"tokenTimeout,omitempty" json:"tokenTimeout,omitempty"`

	// TLS configures TLS for the API server.
	TLS *ServerTLSConfig `yaml:"tls,omitempty" json:"tls,omitempty"`
}

// ServerTLSConfig configures TLS for the API server.
type ServerTLSConfig struct {
	// Enabled indicates whether the server terminates TLS.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// CertFile is the path to the server certificate.
	CertFile string `yaml:"certFile,omitempty" json:"certFile,omitempty"`

	// KeyFile is the path to the server private key.
	KeyFile string `yaml:"keyFile,omitempty" json:"keyFile,omitempty"`

	// MinVersion is the minimum TLS version (TLS12, TLS13).
	MinVersion string `yaml:"minVersion,omitempty" json:"minVersion,omitempty"`
}

// DefaultServerConfig returns a ServerConfig with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Bind:              DefaultServerBind,
		Port:              DefaultServerPort,
		ReadTimeout:       Duration(DefaultReadTimeout),
		ReadHeaderTimeout: Duration(DefaultReadHeaderTimeout),
		WriteTimeout:      Duration(DefaultWriteTimeout),
		IdleTimeout:       Duration(DefaultIdleTimeout),
		ShutdownTimeout:   Duration(DefaultShutdownTimeout),
		TokenTimeout:      Duration(DefaultTokenTimeout),
	}
}

// GetBind returns the effective bind address.
func (s *ServerConfig) GetBind() string {
	if s == nil || s.Bind == "" {
		return DefaultServerBind
	}
	return s.Bind
}

// GetPort returns the effective port.
func (s *ServerConfig) GetPort() int {
	if s == nil || s.Port == 0 {
		return DefaultServerPort
	}
	return s.Port
}

// GetReadTimeout returns the effective read timeout.
func (s *ServerConfig) GetReadTimeout() time.Duration {
	if s == nil || s.ReadTimeout == 0 {
		return DefaultReadTimeout
	}
	return s.ReadTimeout.Duration()
}

// GetReadHeaderTimeout returns the effective read header timeout.
func (s *ServerConfig) GetReadHeaderTimeout() time.Duration {
	if s == nil || s.ReadHeaderTimeout == 0 {
		return DefaultReadHeaderTimeout
	}
	return s.ReadHeaderTimeout.Duration()
}

// GetWriteTimeout returns the effective write timeout.
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	if s == nil || s.WriteTimeout == 0 {
		return DefaultWriteTimeout
	}
	return s.WriteTimeout.Duration()
}

// GetIdleTimeout returns the effective idle timeout.
func (s *ServerConfig) GetIdleTimeout() time.Duration {
	if s == nil || s.IdleTimeout == 0 {
		return DefaultIdleTimeout
	}
	return s.IdleTimeout.Duration()
}

// GetShutdownTimeout returns the effective shutdown timeout.
func (s *ServerConfig) GetShutdownTimeout() time.Duration {
	if s == nil || s.ShutdownTimeout == 0 {
		return DefaultShutdownTimeout
	}
	return s.ShutdownTimeout.Duration()
}

// GetTokenTimeout returns the effective token acquisition timeout.
func (s *ServerConfig) GetTokenTimeout() time.Duration {
	if s == nil || s.TokenTimeout == 0 {
		return DefaultTokenTimeout
	}
	return s.TokenTimeout.Duration()
}

// IsTLSEnabled reports whether the API server terminates TLS.
func (s *ServerConfig) IsTLSEnabled() bool {
	return s != nil && s.TLS != nil && s.TLS.Enabled
}
