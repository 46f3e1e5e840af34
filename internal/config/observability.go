package config

// Observability defaults.
const (
	// DefaultMetricsPath is the default scrape path on the metrics server.
	DefaultMetricsPath = "/metrics"

	// DefaultMetricsPort is the default port for the metrics server.
	DefaultMetricsPort = 9090

	// DefaultTracingServiceName is the service name reported on spans
	// when none is configured.
	DefaultTracingServiceName = "avkms"
)

// ObservabilityConfig configures the sidecar's metrics, tracing, and
// logging.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	Tracing *TracingConfig `yaml:"tracing,omitempty" json:"tracing,omitempty"`
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`
}

// MetricsConfig configures the Prometheus metrics server.
type MetricsConfig struct {
	// Enabled starts a dedicated metrics listener alongside the API
	// server.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Path is the scrape path.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`

	// Port is the metrics listener port.
	Port int `yaml:"port,omitempty" json:"port,omitempty"`
}

// GetPath returns the effective scrape path.
func (m *MetricsConfig) GetPath() string {
	if m == nil || m.Path == "" {
		return DefaultMetricsPath
	}
	return m.Path
}

// GetPort returns the effective metrics port.
func (m *MetricsConfig) GetPort() int {
	if m == nil || m.Port == 0 {
		return DefaultMetricsPort
	}
	return m.Port
}

// TracingConfig configures OpenTelemetry trace export.
type TracingConfig struct {
	// Enabled turns span export on.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// SamplingRate is the trace sampling ratio in [0.0, 1.0].
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint.
	OTLPEndpoint string `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`

	// ServiceName overrides the service name reported on spans.
	ServiceName string `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// GetServiceName returns the effective span service name.
func (t *TracingConfig) GetServiceName() string {
	if t == nil || t.ServiceName == "" {
		return DefaultTracingServiceName
	}
	return t.ServiceName
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// Format selects the encoder (json, console).
	Format string `yaml:"format,omitempty" json:"format,omitempty"`

	// Output is the log destination (stdout, stderr, or a file path).
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}
