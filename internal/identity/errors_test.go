package identity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurationError(t *testing.T) {
	t.Parallel()

	err := NewConfigurationError("client_id", "client ID must not be empty")
	assert.Contains(t, err.Error(), "client_id")
	assert.Contains(t, err.Error(), "client ID must not be empty")
	assert.ErrorIs(t, err, ErrConfigInvalid)
	assert.Nil(t, err.Unwrap())

	cause := errors.New("boom")
	wrapped := NewConfigurationErrorWithCause("client_secret", "bad material", cause)
	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, cause, wrapped.Unwrap())

	var target *ConfigurationError
	assert.ErrorAs(t, error(wrapped), &target)
	assert.Equal(t, "client_secret", target.Field)
}

func TestConfigurationError_NoField(t *testing.T) {
	t.Parallel()

	err := NewConfigurationError("", "configuration is required")
	assert.Equal(t, "credential config error: configuration is required", err.Error())
}

func TestAuthenticationError(t *testing.T) {
	t.Parallel()

	err := NewAuthenticationError(FlowSecret, "login.example.net", 401, "invalid_client")
	assert.Contains(t, err.Error(), "secret flow")
	assert.Contains(t, err.Error(), "login.example.net")
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "invalid_client")

	assert.Equal(t, 401, err.StatusCode())
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	var target *AuthenticationError
	require.ErrorAs(t, error(err), &target)
	assert.Equal(t, FlowSecret, target.Flow)
	assert.Equal(t, 401, target.Status)
}

func TestProtocolError(t *testing.T) {
	t.Parallel()

	err := NewProtocolError("login.example.net", "response missing access_token")
	assert.Contains(t, err.Error(), "login.example.net")
	assert.Contains(t, err.Error(), "access_token")
	assert.ErrorIs(t, err, ErrProtocol)

	// A protocol error is not an authentication rejection.
	assert.NotErrorIs(t, err, ErrAuthenticationFailed)

	cause := errors.New("unexpected end of JSON input")
	wrapped := NewProtocolErrorWithCause("h", "invalid JSON", cause)
	assert.ErrorIs(t, wrapped, cause)
}

func TestErrorTaxonomyIsDistinct(t *testing.T) {
	t.Parallel()

	configErr := NewConfigurationError("f", "m")
	authErr := NewAuthenticationError(FlowCertificate, "h", 403, "")
	protoErr := NewProtocolError("h", "m")

	var ae *AuthenticationError
	var pe *ProtocolError
	var ce *ConfigurationError

	assert.False(t, errors.As(error(configErr), &ae))
	assert.False(t, errors.As(error(configErr), &pe))
	assert.False(t, errors.As(error(authErr), &ce))
	assert.False(t, errors.As(error(authErr), &pe))
	assert.False(t, errors.As(error(protoErr), &ae))
	assert.False(t, errors.As(error(protoErr), &ce))
}
