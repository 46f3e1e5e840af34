package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avkms/internal/circuitbreaker"
	"github.com/vyrodovalexey/avkms/internal/identity"
	"github.com/vyrodovalexey/avkms/internal/observability"
)

// TokenResponse is the payload returned by the token endpoints.
type TokenResponse struct {
	Token      string `json:"token"`
	TokenType  string `json:"tokenType"`
	Credential string `json:"credential"`
	Resource   string `json:"resource"`
	ExpiresAt  string `json:"expiresAt"`
	ExpiresIn  int64  `json:"expiresIn"`
}

// ProviderInfo describes one configured credential.
type ProviderInfo struct {
	Credential string `json:"credential"`
	Provider   string `json:"provider"`
	VaultURL   string `json:"vaultUrl,omitempty"`
	Scope      string `json:"scope,omitempty"`
}

// ProvidersResponse is the payload of the providers endpoint.
type ProvidersResponse struct {
	Providers []ProviderInfo `json:"providers"`
	Count     int            `json:"count"`
}

// errorResponse is the payload returned for failed requests.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleToken(c *gin.Context) {
	entry, ok := s.selectEntry(c)
	if !ok {
		return
	}

	scope := resolveScope(c, entry)

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.GetTokenTimeout())
	defer cancel()

	token, err := s.acquireToken(ctx, entry, scope)
	s.writeTokenResponse(c, entry, token, err, "token")
}

func (s *Server) handleRefresh(c *gin.Context) {
	entry, ok := s.selectEntry(c)
	if !ok {
		return
	}

	scope := resolveScope(c, entry)

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.GetTokenTimeout())
	defer cancel()

	token, err := s.refreshToken(ctx, entry, scope)
	s.writeTokenResponse(c, entry, token, err, "refresh")
}

func (s *Server) handleProviders(c *gin.Context) {
	names := s.credentials.Names()

	providers := make([]ProviderInfo, 0, len(names))
	for _, name := range names {
		entry, ok := s.credentials.Lookup(name)
		if !ok {
			continue
		}
		providers = append(providers, ProviderInfo{
			Credential: entry.Credential,
			Provider:   entry.Provider.Name(),
			VaultURL:   entry.VaultURL,
			Scope:      entry.Scope.String(),
		})
	}

	c.JSON(http.StatusOK, ProvidersResponse{
		Providers: providers,
		Count:     len(providers),
	})
}

// selectEntry resolves the credential query parameter to an entry. The
// parameter may be omitted when exactly one credential is configured.
func (s *Server) selectEntry(c *gin.Context) (*Entry, bool) {
	name := c.Query("credential")

	if name == "" {
		entry, ok := s.credentials.Single()
		if !ok {
			c.JSON(http.StatusBadRequest, errorResponse{
				Error:   "Bad Request",
				Message: "credential query parameter is required when multiple credentials are configured",
			})
			return nil, false
		}
		return entry, true
	}

	entry, ok := s.credentials.Lookup(name)
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{
			Error:   "Not Found",
			Message: "unknown credential: " + name,
		})
		return nil, false
	}
	return entry, true
}

func resolveScope(c *gin.Context, entry *Entry) identity.ResourceScope {
	if scope := c.Query("scope"); scope != "" {
		return identity.ResourceScope(scope)
	}
	return entry.Scope
}

func (s *Server) writeTokenResponse(c *gin.Context, entry *Entry, token *identity.AccessToken, err error, operation string) {
	if err != nil {
		status := statusForTokenError(err)
		recordTokenRequest(entry.Credential, operation, "error")

		s.logger.Warn("token acquisition failed",
			observability.String("credential", entry.Credential),
			observability.String("operation", operation),
			observability.Int("status", status),
			observability.Error(err),
		)

		c.JSON(status, errorResponse{
			Error:   http.StatusText(status),
			Message: err.Error(),
		})
		return
	}

	recordTokenRequest(entry.Credential, operation, "success")

	c.JSON(http.StatusOK, TokenResponse{
		Token:      token.Token,
		TokenType:  "Bearer",
		Credential: entry.Credential,
		Resource:   token.Resource.String(),
		ExpiresAt:  token.ExpiresAt.UTC().Format(time.RFC3339),
		ExpiresIn:  int64(token.TTL() / time.Second),
	})
}

// statusForTokenError maps token acquisition failures to HTTP status
// codes. Rejections by the identity provider surface as 502 because
// the sidecar acts as a gateway to it; an open circuit breaker is 503
// because retrying later can succeed.
func statusForTokenError(err error) int {
	switch {
	case circuitbreaker.IsOpen(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, identity.ErrAuthenticationFailed):
		return http.StatusBadGateway
	case errors.Is(err, identity.ErrProtocol):
		return http.StatusBadGateway
	case errors.Is(err, identity.ErrCredentialsClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
