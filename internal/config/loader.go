package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// Loader handles configuration loading from files and readers.
type Loader struct {
	basePath string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadConfig loads configuration from a file path.
func LoadConfig(path string) (*Config, error) {
	loader := NewLoader()
	return loader.Load(path)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	loader := NewLoader()
	return loader.LoadFromReader(r)
}

// Load loads configuration from a file path.
func (l *Loader) Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", path, err)
	}

	l.basePath = filepath.Dir(absPath)

	data, err := os.ReadFile(absPath) //nolint:gosec // path is validated via filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return l.parseConfig(data)
}

// LoadFromReader loads configuration from an io.Reader.
func (l *Loader) LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return l.parseConfig(data)
}

// parseConfig parses YAML data into a Config.
func (l *Loader) parseConfig(data []byte) (*Config, error) {
	// Substitute environment variables
	content := l.substituteEnvVars(string(data))

	// Parse YAML
	var config Config
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &config, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment variable values.
func (l *Loader) substituteEnvVars(content string) string {
	// Handle escaped dollar signs first
	content = strings.ReplaceAll(content, "$$", "\x00ESCAPED_DOLLAR\x00")

	result := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		defaultValue := ""
		if len(submatches) >= 3 {
			defaultValue = submatches[2]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return defaultValue
	})

	// Restore escaped dollar signs
	result = strings.ReplaceAll(result, "\x00ESCAPED_DOLLAR\x00", "$")

	return result
}

// MergeConfigs merges multiple configurations, with later configs taking precedence.
func MergeConfigs(configs ...*Config) *Config {
	if len(configs) == 0 {
		return DefaultConfig()
	}

	result := configs[0]
	for i := 1; i < len(configs); i++ {
		result = mergeTwo(result, configs[i])
	}

	return result
}

// mergeTwo merges two configurations, with the second taking precedence.
func mergeTwo(base, override *Config) *Config {
	if override == nil {
		return base
	}
	if base == nil {
		return override
	}

	result := *base

	// Override basic fields
	if override.APIVersion != "" {
		result.APIVersion = override.APIVersion
	}
	if override.Kind != "" {
		result.Kind = override.Kind
	}
	if override.Metadata.Name != "" {
		result.Metadata.Name = override.Metadata.Name
	}

	// Merge labels
	if result.Metadata.Labels == nil {
		result.Metadata.Labels = make(map[string]string)
	}
	for k, v := range override.Metadata.Labels {
		result.Metadata.Labels[k] = v
	}

	// Merge annotations
	if result.Metadata.Annotations == nil {
		result.Metadata.Annotations = make(map[string]string)
	}
	for k, v := range override.Metadata.Annotations {
		result.Metadata.Annotations[k] = v
	}

	// Merge credentials (append)
	result.Spec.Credentials = append(result.Spec.Credentials, override.Spec.Credentials...)

	// Override server if provided
	if override.Spec.Server != nil {
		result.Spec.Server = override.Spec.Server
	}

	// Override cache if provided
	if override.Spec.Cache != nil {
		result.Spec.Cache = override.Spec.Cache
	}

	// Override secrets if provided
	if override.Spec.Secrets != nil {
		result.Spec.Secrets = override.Spec.Secrets
	}

	// Override observability if provided
	if override.Spec.Observability != nil {
		result.Spec.Observability = override.Spec.Observability
	}

	return &result
}

// ResolveConfigPath resolves a configuration file path, checking common locations.
func ResolveConfigPath(path string) (string, error) {
	// If path is absolute and exists, use it
	if filepath.IsAbs(path) {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		return "", fmt.Errorf("config file not found: %s", path)
	}

	// Check relative to current directory
	if _, err := os.Stat(path); err == nil {
		return filepath.Abs(path)
	}

	// Check common locations
	etcPath := filepath.Join(string(filepath.Separator), "etc", "avkms")
	commonPaths := []string{
		filepath.Join("configs", path),
		filepath.Join(etcPath, path),
		filepath.Join(os.Getenv("HOME"), ".avkms", path),
	}

	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return filepath.Abs(p)
		}
	}

	return "", fmt.Errorf("config file not found: %s", path)
}
