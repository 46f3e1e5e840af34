package vault

import (
	"errors"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"
)

// Common errors for Vault operations.
var (
	// ErrNotAuthenticated indicates the client is not authenticated.
	ErrNotAuthenticated = errors.New("vault: client not authenticated")

	// ErrAuthenticationFailed indicates authentication failed.
	ErrAuthenticationFailed = errors.New("vault: authentication failed")

	// ErrSecretNotFound indicates the secret was not found.
	ErrSecretNotFound = errors.New("vault: secret not found")

	// ErrInvalidPath indicates an invalid secret path.
	ErrInvalidPath = errors.New("vault: invalid secret path")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("vault: invalid configuration")

	// ErrConnectionFailed indicates connection to Vault failed.
	ErrConnectionFailed = errors.New("vault: connection failed")

	// ErrTokenExpired indicates the token has expired.
	ErrTokenExpired = errors.New("vault: token expired")

	// ErrPermissionDenied indicates permission was denied.
	ErrPermissionDenied = errors.New("vault: permission denied")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("vault: client closed")

	// ErrVaultDisabled indicates Vault integration is disabled.
	ErrVaultDisabled = errors.New("vault: integration disabled")
)

// VaultError represents a Vault-specific error with additional context.
type VaultError struct {
	Op      string // Operation that failed
	Path    string // Secret path if applicable
	Message string // Additional message
	Code    int    // HTTP status code if applicable
	Err     error  // Underlying error
}

// Error implements the error interface.
func (e *VaultError) Error() string {
	if e.Path != "" {
		if e.Err != nil {
			return fmt.Sprintf("vault %s on path %s: %s: %v", e.Op, e.Path, e.Message, e.Err)
		}
		return fmt.Sprintf("vault %s on path %s: %s", e.Op, e.Path, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("vault %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("vault %s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error.
func (e *VaultError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is for VaultError.
func (e *VaultError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewVaultError creates a new VaultError.
func NewVaultError(op, path, message string) *VaultError {
	return &VaultError{
		Op:      op,
		Path:    path,
		Message: message,
	}
}

// NewVaultErrorWithCause creates a new VaultError wrapping an underlying error.
func NewVaultErrorWithCause(op, path, message string, cause error) *VaultError {
	return &VaultError{
		Op:      op,
		Path:    path,
		Message: message,
		Err:     cause,
	}
}

// NewVaultErrorWithCode creates a new VaultError with an HTTP status code.
func NewVaultErrorWithCode(op, path, message string, code int) *VaultError {
	return &VaultError{
		Op:      op,
		Path:    path,
		Message: message,
		Code:    code,
	}
}

// ConfigurationError represents a configuration validation error.
type ConfigurationError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("vault configuration error in field %q: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("vault configuration error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error type.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// NewConfigurationError creates a new ConfigurationError.
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

// NewConfigurationErrorWithCause creates a new ConfigurationError with an underlying cause.
func NewConfigurationErrorWithCause(field, message string, cause error) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message, Cause: cause}
}

// WrapError wraps a sentinel error with path context.
func WrapError(err error, path string) error {
	if path == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, path)
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var vaultErr *VaultError
	if errors.As(err, &vaultErr) && vaultErr.Code != 0 {
		// Retry on server errors (5xx) and rate limiting (429)
		if vaultErr.Code >= 500 || vaultErr.Code == 429 {
			return true
		}
	}

	// The Vault API surfaces HTTP failures as response errors
	var respErr *vaultapi.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode >= 500 || respErr.StatusCode == 429
	}

	// Retry on connection errors
	return errors.Is(err, ErrConnectionFailed)
}

// IsAuthError returns true if the error is an authentication error.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrNotAuthenticated) ||
		errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrTokenExpired) {
		return true
	}

	var vaultErr *VaultError
	if errors.As(err, &vaultErr) {
		// 401 Unauthorized or 403 Forbidden
		if vaultErr.Code == 401 || vaultErr.Code == 403 {
			return true
		}
	}

	var respErr *vaultapi.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode == 401 || respErr.StatusCode == 403
	}

	return false
}
