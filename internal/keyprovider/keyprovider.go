// Package keyprovider exposes credential-backed key providers to the
// encryption subsystem. A KeyProvider supplies the identity, naming and
// token authority an encryption backend needs to call its key vault;
// the key-retrieval wire protocol itself lives with the caller.
// Factories construct providers from flat option bags, and the Registry
// shares one provider between all callers presenting equivalent
// options.
package keyprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avkms/internal/circuitbreaker"
	"github.com/vyrodovalexey/avkms/internal/identity"
	"github.com/vyrodovalexey/avkms/internal/observability"
	"github.com/vyrodovalexey/avkms/internal/retry"
	"github.com/vyrodovalexey/avkms/internal/secrets"
	avtls "github.com/vyrodovalexey/avkms/internal/tls"
)

// Sentinel errors for key provider operations.
var (
	// ErrInvalidOptions indicates the options bag is incomplete,
	// ambiguous, or carries unknown keys.
	ErrInvalidOptions = errors.New("keyprovider: invalid options")

	// ErrProviderClosed is returned by operations on a closed provider.
	ErrProviderClosed = errors.New("keyprovider: provider is closed")
)

// KeyProvider supplies bearer authority for one key vault.
type KeyProvider interface {
	// Name returns the provider name.
	Name() string

	// Token returns a bearer token for the provider's vault resource.
	Token(ctx context.Context) (*identity.AccessToken, error)

	// Credentials returns the credential provider backing this key
	// provider.
	Credentials() identity.Credentials

	// Close releases the provider's resources.
	Close() error
}

// Factory constructs key providers from option bags.
type Factory interface {
	// Name returns the vendor name.
	Name() string

	// Provider validates the options bag and constructs a provider.
	// No token is acquired until the returned provider is used.
	Provider(ctx context.Context, env *Environment, opts Options) (KeyProvider, error)
}

// Environment carries the shared resources a factory wires into the
// providers it constructs. All fields are optional; a nil Environment
// behaves like a zero one.
type Environment struct {
	// Logger is used by constructed providers.
	Logger observability.Logger

	// Resolver resolves secret references in option values. Nil falls
	// back to a resolver serving env:// and file:// references.
	Resolver *secrets.Resolver

	// HTTPClient overrides the HTTP client used for token requests.
	HTTPClient *http.Client

	// Breakers shares circuit breakers between providers that talk to
	// the same identity endpoint.
	Breakers *circuitbreaker.Registry

	// Retry configures the token request retry budget.
	Retry *retry.Config

	// RateLimit throttles token requests across all providers.
	RateLimit *rate.Limiter

	// CertMetrics records certificate expiry and reload events for
	// providers using the certificate flow.
	CertMetrics avtls.MetricsRecorder

	// RequestTimeout bounds each individual token request attempt.
	RequestTimeout time.Duration

	// RefreshBuffer is how long before expiry cached tokens refresh.
	RefreshBuffer time.Duration
}

func (e *Environment) logger() observability.Logger {
	if e == nil || e.Logger == nil {
		return observability.NopLogger()
	}
	return e.Logger
}

func (e *Environment) resolver() (*secrets.Resolver, error) {
	if e != nil && e.Resolver != nil {
		return e.Resolver, nil
	}
	return secrets.NewResolver(nil)
}

// OptionsError reports an invalid option value.
type OptionsError struct {
	// Key is the option key the error relates to.
	Key string

	// Message describes the problem.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *OptionsError) Error() string {
	msg := fmt.Sprintf("invalid option %q: %s", e.Key, e.Message)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *OptionsError) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error type.
func (e *OptionsError) Is(target error) bool {
	return target == ErrInvalidOptions
}

// NewOptionsError creates a new OptionsError.
func NewOptionsError(key, message string) *OptionsError {
	return &OptionsError{Key: key, Message: message}
}

// NewOptionsErrorWithCause creates a new OptionsError with an underlying cause.
func NewOptionsErrorWithCause(key, message string, cause error) *OptionsError {
	return &OptionsError{Key: key, Message: message, Cause: cause}
}
