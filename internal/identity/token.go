// Package identity implements service-principal token acquisition.
package identity

import (
	"context"
	"time"
)

// ResourceScope identifies the audience or resource a token must be
// valid for (for example a vault resource URI). It is supplied by the
// caller and passed through opaquely.
type ResourceScope string

// String returns the scope as a plain string.
func (s ResourceScope) String() string {
	return string(s)
}

// AccessToken is a bearer token bound to a resource scope. Tokens are
// immutable; a refresh produces a new value rather than mutating the
// old one in place.
type AccessToken struct {
	// Token is the opaque bearer token string.
	Token string

	// Resource is the scope the token was requested for.
	Resource ResourceScope

	// ExpiresAt is the absolute expiry time in UTC.
	ExpiresAt time.Time
}

// IsExpired reports whether the token has expired.
func (t *AccessToken) IsExpired() bool {
	return t.ExpiresWithin(0)
}

// ExpiresWithin reports whether the token expires within d from now.
// A nil or empty token counts as expired.
func (t *AccessToken) ExpiresWithin(d time.Duration) bool {
	if t == nil || t.Token == "" {
		return true
	}
	return !time.Now().Add(d).Before(t.ExpiresAt)
}

// TTL returns the remaining lifetime of the token, or zero when the
// token is already expired.
func (t *AccessToken) TTL() time.Duration {
	if t == nil {
		return 0
	}
	ttl := time.Until(t.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Credentials is the capability downstream key providers consume. It
// is deliberately narrow: a human-readable name and token acquisition
// for a resource scope. Concrete variants (secret-based,
// certificate-based) stay hidden behind it.
type Credentials interface {
	// Name returns the human-readable credential provider name.
	Name() string

	// Token returns a token for the scope, serving a cached one while
	// it remains valid beyond the refresh buffer.
	Token(ctx context.Context, scope ResourceScope) (*AccessToken, error)

	// Refresh always performs a fresh exchange with the identity
	// endpoint and replaces the cached token for the scope.
	Refresh(ctx context.Context, scope ResourceScope) (*AccessToken, error)
}
