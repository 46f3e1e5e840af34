package config

import (
	"fmt"
	"strings"

	"github.com/vyrodovalexey/avkms/internal/util"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates sidecar configuration documents.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates a sidecar configuration document.
func ValidateConfig(config *Config) error {
	v := NewValidator()
	return v.Validate(config)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *Config) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateRoot(config)
	v.validateMetadata(&config.Metadata)
	v.validateSpec(&config.Spec)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// validateRoot validates root-level fields.
func (v *Validator) validateRoot(config *Config) {
	if config.APIVersion == "" {
		v.addError("apiVersion", "apiVersion is required")
	} else if !strings.HasPrefix(config.APIVersion, APIVersionPrefix) {
		v.addError("apiVersion", fmt.Sprintf("apiVersion must start with %q", APIVersionPrefix))
	}

	if config.Kind == "" {
		v.addError("kind", "kind is required")
	} else if config.Kind != KindTokenSidecar {
		v.addError("kind", fmt.Sprintf("kind must be %q", KindTokenSidecar))
	}
}

// validateMetadata validates metadata fields.
func (v *Validator) validateMetadata(metadata *Metadata) {
	if metadata.Name == "" {
		v.addError("metadata.name", "name is required")
	}
}

// validateSpec validates the sidecar spec.
func (v *Validator) validateSpec(spec *Spec) {
	if len(spec.Credentials) == 0 {
		v.addError("spec.credentials", "at least one credential is required")
	}

	v.validateCredentials(spec.Credentials)

	if spec.Server != nil {
		v.validateServer(spec.Server, "spec.server")
	}

	if spec.Cache != nil {
		v.validateCache(spec.Cache, "spec.cache")
	}

	if spec.Secrets != nil {
		v.validateSecrets(spec.Secrets, "spec.secrets")
	}

	if spec.Observability != nil {
		v.validateObservability(spec.Observability, "spec.observability")
	}
}

// validateCredentials validates the credential list.
func (v *Validator) validateCredentials(credentials []CredentialConfig) {
	names := make(map[string]bool)

	for i := range credentials {
		path := fmt.Sprintf("spec.credentials[%d]", i)
		v.validateCredentialName(&credentials[i], path, names)
		v.validateCredentialIdentity(&credentials[i], path)
		v.validateCredentialMaterial(&credentials[i], path)
		v.validateCredentialTarget(&credentials[i], path)
		v.validateCredentialTimings(&credentials[i], path)
	}
}

// validateCredentialName validates credential name uniqueness.
func (v *Validator) validateCredentialName(cred *CredentialConfig, path string, names map[string]bool) {
	switch {
	case cred.Name == "":
		v.addError(path+".name", "credential name is required")
	case names[cred.Name]:
		v.addError(path+".name", fmt.Sprintf("duplicate credential name: %s", cred.Name))
	default:
		names[cred.Name] = true
	}
}

// validateCredentialIdentity validates tenant and client identifiers.
func (v *Validator) validateCredentialIdentity(cred *CredentialConfig, path string) {
	if cred.TenantID == "" {
		v.addError(path+".tenantId", "tenantId is required")
	}
	if cred.ClientID == "" {
		v.addError(path+".clientId", "clientId is required")
	}
	if cred.Authority != "" {
		if err := util.ValidateURL(cred.Authority); err != nil {
			v.addError(path+".authority", err.Error())
		}
	}
}

// validateCredentialMaterial enforces exactly one of secret and
// certificate authentication.
func (v *Validator) validateCredentialMaterial(cred *CredentialConfig, path string) {
	hasSecret := cred.ClientSecret != ""
	hasCertificate := cred.Certificate != nil

	switch {
	case hasSecret && hasCertificate:
		v.addError(path, "clientSecret and certificate are mutually exclusive")
	case !hasSecret && !hasCertificate:
		v.addError(path, "one of clientSecret or certificate is required")
	case hasCertificate && cred.Certificate.Bundle == "":
		v.addError(path+".certificate.bundle", "certificate bundle is required")
	}
}

// validateCredentialTarget validates the vault URL and scope override.
func (v *Validator) validateCredentialTarget(cred *CredentialConfig, path string) {
	if cred.VaultURL == "" && cred.Resource == "" {
		v.addError(path, "one of vaultUrl or resource is required")
		return
	}
	if cred.VaultURL != "" {
		if err := util.ValidateURL(cred.VaultURL); err != nil {
			v.addError(path+".vaultUrl", err.Error())
		}
	}
}

// validateCredentialTimings validates timeout and retry settings.
func (v *Validator) validateCredentialTimings(cred *CredentialConfig, path string) {
	if cred.RequestTimeout < 0 {
		v.addError(path+".requestTimeout", "requestTimeout must be non-negative")
	}
	if cred.RefreshBuffer < 0 {
		v.addError(path+".refreshBuffer", "refreshBuffer must be non-negative")
	}

	if cred.Retry == nil {
		return
	}
	if cred.Retry.MaxAttempts < 0 {
		v.addError(path+".retry.maxAttempts", "maxAttempts must be non-negative")
	}
	if cred.Retry.InitialBackoff < 0 {
		v.addError(path+".retry.initialBackoff", "initialBackoff must be non-negative")
	}
	if cred.Retry.MaxBackoff < 0 {
		v.addError(path+".retry.maxBackoff", "maxBackoff must be non-negative")
	}
	if cred.Retry.InitialBackoff > 0 && cred.Retry.MaxBackoff > 0 &&
		cred.Retry.InitialBackoff > cred.Retry.MaxBackoff {
		v.addError(path+".retry.initialBackoff", "initialBackoff must not exceed maxBackoff")
	}
}

// validateServer validates the API server configuration.
func (v *Validator) validateServer(server *ServerConfig, path string) {
	if server.Port != 0 {
		if err := util.ValidatePort(server.Port); err != nil {
			v.addError(path+".port", err.Error())
		}
	}
	if server.Bind != "" && server.Bind != DefaultServerBind {
		if err := util.ValidateIPAddress(server.Bind); err != nil {
			v.addError(path+".bind", err.Error())
		}
	}

	if server.ReadTimeout < 0 {
		v.addError(path+".readTimeout", "readTimeout must be non-negative")
	}
	if server.WriteTimeout < 0 {
		v.addError(path+".writeTimeout", "writeTimeout must be non-negative")
	}
	if server.IdleTimeout < 0 {
		v.addError(path+".idleTimeout", "idleTimeout must be non-negative")
	}
	if server.ShutdownTimeout < 0 {
		v.addError(path+".shutdownTimeout", "shutdownTimeout must be non-negative")
	}

	v.validateServerTLS(server.TLS, path+".tls")
}

// validateServerTLS validates the API server TLS configuration.
func (v *Validator) validateServerTLS(tls *ServerTLSConfig, path string) {
	if tls == nil || !tls.Enabled {
		return
	}

	if tls.CertFile == "" {
		v.addError(path+".certFile", "certFile is required when TLS is enabled")
	}
	if tls.KeyFile == "" {
		v.addError(path+".keyFile", "keyFile is required when TLS is enabled")
	}
	if tls.MinVersion != "" && tls.MinVersion != "TLS12" && tls.MinVersion != "TLS13" {
		v.addError(path+".minVersion", "minVersion must be TLS12 or TLS13")
	}
}

// validateCache validates the token cache configuration.
func (v *Validator) validateCache(cache *CacheConfig, path string) {
	if !cache.Enabled {
		return
	}

	switch cache.Type {
	case "", CacheTypeMemory:
		if cache.MaxEntries < 0 {
			v.addError(path+".maxEntries", "maxEntries must be non-negative")
		}
	case CacheTypeRedis:
		v.validateRedisCache(cache.Redis, path+".redis")
	default:
		v.addError(path+".type", fmt.Sprintf("cache type must be %q or %q", CacheTypeMemory, CacheTypeRedis))
	}

	if cache.TTL < 0 {
		v.addError(path+".ttl", "ttl must be non-negative")
	}
}

// validateRedisCache validates Redis cache configuration.
func (v *Validator) validateRedisCache(redis *RedisCacheConfig, path string) {
	if redis.IsEmpty() {
		v.addError(path, "redis cache requires a url or sentinel configuration")
		return
	}

	if redis.URL != "" && !redis.Sentinel.IsEmpty() {
		v.addError(path, "url and sentinel are mutually exclusive")
	}

	if !redis.Sentinel.IsEmpty() && len(redis.Sentinel.SentinelAddrs) == 0 {
		v.addError(path+".sentinel.sentinelAddrs", "at least one sentinel address is required")
	}

	if redis.TTLJitter < 0 || redis.TTLJitter > 1 {
		v.addError(path+".ttlJitter", "ttlJitter must be between 0.0 and 1.0")
	}
	if redis.PoolSize < 0 {
		v.addError(path+".poolSize", "poolSize must be non-negative")
	}
}

// validateSecrets validates the secrets configuration.
func (v *Validator) validateSecrets(secrets *SecretsConfig, path string) {
	if !IsValidSecretsProvider(secrets.Provider) {
		v.addError(path+".provider",
			"provider must be one of: env, local, vault, kubernetes")
	}
	if secrets.CacheTTL < 0 {
		v.addError(path+".cacheTTL", "cacheTTL must be non-negative")
	}
}

// validateObservability validates the observability configuration.
func (v *Validator) validateObservability(obs *ObservabilityConfig, path string) {
	if obs.Metrics != nil && obs.Metrics.Port != 0 {
		if err := util.ValidatePort(obs.Metrics.Port); err != nil {
			v.addError(path+".metrics.port", err.Error())
		}
	}

	if obs.Tracing != nil && obs.Tracing.Enabled {
		if obs.Tracing.SamplingRate < 0 || obs.Tracing.SamplingRate > 1 {
			v.addError(path+".tracing.samplingRate", "samplingRate must be between 0.0 and 1.0")
		}
	}

	if obs.Logging != nil {
		v.validateLogging(obs.Logging, path+".logging")
	}
}

// validateLogging validates logging configuration.
func (v *Validator) validateLogging(logging *LoggingConfig, path string) {
	validLevels := map[string]bool{
		"": true, "debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[logging.Level] {
		v.addError(path+".level", "level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{
		"": true, "json": true, "console": true,
	}
	if !validFormats[logging.Format] {
		v.addError(path+".format", "format must be json or console")
	}
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{
		Path:    path,
		Message: message,
	})
}
