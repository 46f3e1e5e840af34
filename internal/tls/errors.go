package tls

import (
	"errors"
	"fmt"
)

// Common sentinel errors for TLS operations.
var (
	// ErrCertificateNotFound indicates that a certificate was not found.
	ErrCertificateNotFound = errors.New("certificate not found")

	// ErrCertificateExpired indicates that a certificate has expired.
	ErrCertificateExpired = errors.New("certificate expired")

	// ErrCertificateInvalid indicates that a certificate is invalid.
	ErrCertificateInvalid = errors.New("certificate invalid")

	// ErrPrivateKeyInvalid indicates that a private key is invalid.
	ErrPrivateKeyInvalid = errors.New("private key invalid")

	// ErrCertificateKeyMismatch indicates that the certificate and key do not match.
	ErrCertificateKeyMismatch = errors.New("certificate and key do not match")

	// ErrTrustStoreInvalid indicates that a trust store could not be parsed.
	ErrTrustStoreInvalid = errors.New("trust store invalid")

	// ErrCipherSuiteInvalid indicates that a cipher suite is invalid.
	ErrCipherSuiteInvalid = errors.New("invalid cipher suite")

	// ErrPriorityStringInvalid indicates that a cipher priority string is invalid.
	ErrPriorityStringInvalid = errors.New("invalid priority string")

	// ErrTLSVersionInvalid indicates that a TLS version is invalid.
	ErrTLSVersionInvalid = errors.New("invalid TLS version")

	// ErrSourceClosed indicates that the certificate source has been closed.
	ErrSourceClosed = errors.New("certificate source closed")

	// ErrConfigInvalid indicates that the TLS configuration is invalid.
	ErrConfigInvalid = errors.New("invalid TLS configuration")
)

// CertificateError represents a certificate-related error.
type CertificateError struct {
	Path    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *CertificateError) Error() string {
	if e.Path != "" {
		if e.Cause != nil {
			return fmt.Sprintf("certificate error at %s: %s: %v", e.Path, e.Message, e.Cause)
		}
		return fmt.Sprintf("certificate error at %s: %s", e.Path, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("certificate error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("certificate error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *CertificateError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *CertificateError) Is(target error) bool {
	_, ok := target.(*CertificateError)
	return ok || errors.Is(e.Cause, target)
}

// NewCertificateError creates a new CertificateError.
func NewCertificateError(path, message string) *CertificateError {
	return &CertificateError{Path: path, Message: message}
}

// NewCertificateErrorWithCause creates a new CertificateError with a cause.
func NewCertificateErrorWithCause(path, message string, cause error) *CertificateError {
	return &CertificateError{Path: path, Message: message, Cause: cause}
}

// ConfigurationError represents a TLS configuration error.
type ConfigurationError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		if e.Cause != nil {
			return fmt.Sprintf("TLS config error at %s: %s: %v", e.Field, e.Message, e.Cause)
		}
		return fmt.Sprintf("TLS config error at %s: %s", e.Field, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("TLS config error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("TLS config error: %s", e.Message)
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

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
