// Package secrets provides a unified interface for secret retrieval
// with support for multiple backends including environment variables,
// local files, HashiCorp Vault, and Kubernetes Secrets.
//
// Providers supply named secrets as key-value maps. The Resolver built
// on top of them turns configuration references such as
// env://CLIENT_SECRET or vault://avkms/sp#client_secret into secret
// material, so credential configuration never carries inline secrets
// in production.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProviderType represents the type of secrets provider.
type ProviderType string

const (
	// ProviderTypeEnv uses environment variables as the backend.
	ProviderTypeEnv ProviderType = "env"
	// ProviderTypeLocal uses local files as the backend.
	ProviderTypeLocal ProviderType = "local"
	// ProviderTypeVault uses HashiCorp Vault as the backend.
	ProviderTypeVault ProviderType = "vault"
	// ProviderTypeKubernetes uses Kubernetes Secrets as the backend.
	ProviderTypeKubernetes ProviderType = "kubernetes"
)

// Common errors for secrets providers.
var (
	// ErrSecretNotFound is returned when a secret is not found.
	ErrSecretNotFound = errors.New("secret not found")
	// ErrProviderNotConfigured is returned when the provider is not properly configured.
	ErrProviderNotConfigured = errors.New("provider not configured")
	// ErrReadOnly is returned when attempting to write to a read-only provider.
	ErrReadOnly = errors.New("provider is read-only")
	// ErrInvalidPath is returned when the secret path is invalid.
	ErrInvalidPath = errors.New("invalid secret path")
	// ErrProviderUnavailable is returned when the provider is temporarily unavailable.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrInvalidProviderType is returned when an unknown provider type is specified.
	ErrInvalidProviderType = errors.New("invalid provider type")
)

// Secret represents a secret with key-value data.
type Secret struct {
	// Name is the name of the secret.
	Name string
	// Namespace is the namespace of the secret (if applicable).
	Namespace string
	// Data contains the secret key-value pairs.
	Data map[string][]byte
	// Metadata contains additional metadata about the secret.
	Metadata map[string]string
	// Version is the version of the secret (if supported by the provider).
	Version string
	// CreatedAt is when the secret was created.
	CreatedAt *time.Time
	// UpdatedAt is when the secret was last updated.
	UpdatedAt *time.Time
}

// GetString returns a string value from the secret data.
func (s *Secret) GetString(key string) (string, bool) {
	if s == nil || s.Data == nil {
		return "", false
	}
	v, ok := s.Data[key]
	if !ok {
		return "", false
	}
	return string(v), true
}

// GetBytes returns a byte slice value from the secret data.
func (s *Secret) GetBytes(key string) ([]byte, bool) {
	if s == nil || s.Data == nil {
		return nil, false
	}
	v, ok := s.Data[key]
	return v, ok
}

// Provider is the interface for secrets providers.
type Provider interface {
	// Type returns the provider type.
	Type() ProviderType

	// GetSecret retrieves a secret by path/name.
	// Path format depends on the provider:
	// - env: "secret-name" (maps to env vars with the configured prefix)
	// - local: "secret-name" (maps to base-path/secret-name)
	// - vault: "mount/path/to/secret"
	// - kubernetes: "namespace/secret-name" or "secret-name" (default namespace)
	GetSecret(ctx context.Context, path string) (*Secret, error)

	// ListSecrets lists secret names at a path.
	ListSecrets(ctx context.Context, path string) ([]string, error)

	// WriteSecret writes a secret (if supported).
	// Returns ErrReadOnly if the provider does not support writes.
	WriteSecret(ctx context.Context, path string, data map[string][]byte) error

	// DeleteSecret deletes a secret (if supported).
	// Returns ErrReadOnly if the provider does not support deletes.
	DeleteSecret(ctx context.Context, path string) error

	// IsReadOnly returns true if the provider does not support writes.
	IsReadOnly() bool

	// HealthCheck checks provider connectivity.
	HealthCheck(ctx context.Context) error

	// Close cleans up provider resources.
	Close() error
}

// Prometheus metrics for secrets provider operations.
var (
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kms",
			Subsystem: "secrets",
			Name:      "operation_duration_seconds",
			Help:      "Duration of secrets provider operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "operation", "result"},
	)

	operationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kms",
			Subsystem: "secrets",
			Name:      "operation_total",
			Help:      "Total number of secrets provider operations",
		},
		[]string{"provider", "operation", "result"},
	)

	providerHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kms",
			Subsystem: "secrets",
			Name:      "provider_healthy",
			Help:      "Whether the secrets provider is healthy (1) or not (0)",
		},
		[]string{"provider"},
	)
)

// RecordOperation records metrics for a secrets provider operation.
func RecordOperation(provider ProviderType, operation string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	providerStr := string(provider)
	operationDuration.WithLabelValues(providerStr, operation, result).Observe(duration.Seconds())
	operationTotal.WithLabelValues(providerStr, operation, result).Inc()
}

// RecordHealthStatus records the health status of a provider.
func RecordHealthStatus(provider ProviderType, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	providerHealth.WithLabelValues(string(provider)).Set(value)
}

// MustRegisterMetrics registers the secrets collectors with the given
// Prometheus registry. promauto registers metrics with the default
// global registry, but the sidecar serves /metrics from a custom
// registry; calling MustRegisterMetrics bridges the two.
func MustRegisterMetrics(registry *prometheus.Registry) {
	registry.MustRegister(
		operationDuration,
		operationTotal,
		providerHealth,
	)
}

// ValidateProviderType validates that the given string is a valid provider type.
func ValidateProviderType(providerType string) (ProviderType, error) {
	switch ProviderType(providerType) {
	case ProviderTypeEnv, ProviderTypeLocal, ProviderTypeVault, ProviderTypeKubernetes:
		return ProviderType(providerType), nil
	default:
		return "", fmt.Errorf("%w: %s, must be one of: env, local, vault, kubernetes", ErrInvalidProviderType, providerType)
	}
}

// IsValidProviderType checks if the given string is a valid provider type.
func IsValidProviderType(providerType string) bool {
	_, err := ValidateProviderType(providerType)
	return err == nil
}
