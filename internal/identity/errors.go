package identity

import (
	"errors"
	"fmt"
)

// Common sentinel errors for credential operations.
var (
	// ErrNoAuthenticationMaterial indicates that neither a client
	// secret nor a client certificate was configured.
	ErrNoAuthenticationMaterial = errors.New("no authentication material configured")

	// ErrAmbiguousAuthenticationMaterial indicates that both a client
	// secret and a client certificate were configured.
	ErrAmbiguousAuthenticationMaterial = errors.New("ambiguous authentication material")

	// ErrConfigInvalid indicates an invalid credential configuration.
	ErrConfigInvalid = errors.New("invalid credential configuration")

	// ErrAuthenticationFailed indicates the identity provider rejected
	// the token request.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrProtocol indicates a malformed or incomplete token response.
	ErrProtocol = errors.New("malformed token response")

	// ErrCredentialsClosed indicates that the credential provider has
	// been closed.
	ErrCredentialsClosed = errors.New("credentials closed")
)

// Flow identifies which authentication flow produced an error.
type Flow string

// Authentication flows.
const (
	FlowSecret      Flow = "secret"
	FlowCertificate Flow = "certificate"
)

// ConfigurationError represents invalid credential configuration.
// Configuration errors are fatal at construction time and never
// retried.
type ConfigurationError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		if e.Cause != nil {
			return fmt.Sprintf("credential config error at %s: %s: %v", e.Field, e.Message, e.Cause)
		}
		return fmt.Sprintf("credential config error at %s: %s", e.Field, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("credential config error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("credential config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigurationError) Is(target error) bool {
	if errors.Is(target, ErrConfigInvalid) {
		return true
	}
	_, ok := target.(*ConfigurationError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// NewConfigurationErrorWithCause creates a new ConfigurationError with a cause.
func NewConfigurationErrorWithCause(field, message string, cause error) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message, Cause: cause}
}

// AuthenticationError represents a token request the identity provider
// answered with a non-2xx status. The status code drives retry
// classification: 5xx responses are transient, 4xx rejections are
// final.
type AuthenticationError struct {
	Flow    Flow
	Host    string
	Status  int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	msg := fmt.Sprintf("authentication failed (%s flow) against %s: status %d", e.Flow, e.Host, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *AuthenticationError) Is(target error) bool {
	if errors.Is(target, ErrAuthenticationFailed) {
		return true
	}
	_, ok := target.(*AuthenticationError)
	return ok || errors.Is(e.Cause, target)
}

// StatusCode returns the HTTP status code of the rejected request.
func (e *AuthenticationError) StatusCode() int {
	return e.Status
}

// NewAuthenticationError creates a new AuthenticationError.
func NewAuthenticationError(flow Flow, host string, status int, message string) *AuthenticationError {
	return &AuthenticationError{Flow: flow, Host: host, Status: status, Message: message}
}

// ProtocolError represents a 2xx token response whose body could not
// be used because the JSON was malformed or a required field was
// missing. Kept distinct from AuthenticationError to aid diagnosis;
// never retried.
type ProtocolError struct {
	Host    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	msg := "malformed token response"
	if e.Host != "" {
		msg += " from " + e.Host
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ProtocolError) Is(target error) bool {
	if errors.Is(target, ErrProtocol) {
		return true
	}
	_, ok := target.(*ProtocolError)
	return ok || errors.Is(e.Cause, target)
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(host, message string) *ProtocolError {
	return &ProtocolError{Host: host, Message: message}
}

// NewProtocolErrorWithCause creates a new ProtocolError with a cause.
func NewProtocolErrorWithCause(host, message string, cause error) *ProtocolError {
	return &ProtocolError{Host: host, Message: message, Cause: cause}
}
