package server

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/vyrodovalexey/avkms/internal/cache"
	"github.com/vyrodovalexey/avkms/internal/identity"
	"github.com/vyrodovalexey/avkms/internal/observability"
)

// cachedToken is the wire form of an access token in the shared cache.
type cachedToken struct {
	Token     string    `json:"token"`
	Resource  string    `json:"resource"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// acquireToken returns a token for the entry's credential, consulting
// the shared cache first. A cached token is served while it remains
// valid beyond the entry's refresh buffer; fresh tokens are written
// back so other replicas can reuse them.
func (s *Server) acquireToken(ctx context.Context, entry *Entry, scope identity.ResourceScope) (*identity.AccessToken, error) {
	if token := s.cachedToken(ctx, entry, scope); token != nil {
		return token, nil
	}

	token, err := entry.Provider.Credentials().Token(ctx, scope)
	if err != nil {
		return nil, err
	}

	s.storeToken(ctx, entry, scope, token)
	return token, nil
}

// refreshToken always performs a fresh exchange and replaces the token
// in the shared cache.
func (s *Server) refreshToken(ctx context.Context, entry *Entry, scope identity.ResourceScope) (*identity.AccessToken, error) {
	token, err := entry.Provider.Credentials().Refresh(ctx, scope)
	if err != nil {
		return nil, err
	}

	s.storeToken(ctx, entry, scope, token)
	return token, nil
}

// cachedToken reads the shared cache. Any cache failure degrades to a
// miss.
func (s *Server) cachedToken(ctx context.Context, entry *Entry, scope identity.ResourceScope) *identity.AccessToken {
	if s.tokenCache == nil {
		return nil
	}

	key := cache.TokenKey(entry.Credential, scope.String())
	data, err := s.tokenCache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) && !errors.Is(err, cache.ErrCacheDisabled) {
			s.logger.Warn("shared cache read failed",
				observability.String("credential", entry.Credential),
				observability.Error(err),
			)
		}
		return nil
	}

	var ct cachedToken
	if err := json.Unmarshal(data, &ct); err != nil {
		s.logger.Warn("discarding malformed cached token",
			observability.String("credential", entry.Credential),
			observability.Error(err),
		)
		return nil
	}

	token := &identity.AccessToken{
		Token:     ct.Token,
		Resource:  identity.ResourceScope(ct.Resource),
		ExpiresAt: ct.ExpiresAt,
	}
	if token.ExpiresWithin(entry.refreshBuffer()) {
		return nil
	}
	return token
}

// storeToken writes the token to the shared cache for its remaining
// lifetime. Write failures are logged and the token is still served.
func (s *Server) storeToken(ctx context.Context, entry *Entry, scope identity.ResourceScope, token *identity.AccessToken) {
	if s.tokenCache == nil || token == nil {
		return
	}

	ttl := token.TTL()
	if ttl <= 0 {
		return
	}

	data, err := json.Marshal(cachedToken{
		Token:     token.Token,
		Resource:  token.Resource.String(),
		ExpiresAt: token.ExpiresAt,
	})
	if err != nil {
		return
	}

	key := cache.TokenKey(entry.Credential, scope.String())
	if err := s.tokenCache.Set(ctx, key, data, ttl); err != nil {
		if !errors.Is(err, cache.ErrCacheDisabled) {
			s.logger.Warn("shared cache write failed",
				observability.String("credential", entry.Credential),
				observability.Error(err),
			)
		}
	}
}
