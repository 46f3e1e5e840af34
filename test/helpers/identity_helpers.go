// Package helpers provides common test utilities for the key
// management sidecar tests.
package helpers

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"
)

// TokenRequest captures one request the simulated identity endpoint
// received.
type TokenRequest struct {
	// Method is the HTTP method.
	Method string

	// Path is the request path, e.g. "/tenant/oauth2/v2.0/token".
	Path string

	// ContentType is the Content-Type header value.
	ContentType string

	// Form holds the parsed form body.
	Form url.Values
}

// IdentityServer simulates an OAuth2 client-credentials token endpoint
// for tests. Responses can be scripted per request (status sequences,
// fixed bodies, delays) and every received form submission is captured
// for assertions.
type IdentityServer struct {
	// Server is the underlying httptest server.
	Server *httptest.Server

	mu           sync.Mutex
	requests     []TokenRequest
	statusScript []int
	bodyOverride *string
	delay        time.Duration
	expiresIn    int64
	tokenCounter int
	tokenPrefix  string
}

// IdentityServerOption configures the simulated identity endpoint.
type IdentityServerOption func(*IdentityServer)

// WithStatusScript scripts the HTTP status of successive responses.
// Once the script is exhausted, responses revert to 200.
func WithStatusScript(statuses ...int) IdentityServerOption {
	return func(s *IdentityServer) {
		s.statusScript = append([]int(nil), statuses...)
	}
}

// WithResponseBody overrides the success response body with a fixed
// payload.
func WithResponseBody(body string) IdentityServerOption {
	return func(s *IdentityServer) {
		s.bodyOverride = &body
	}
}

// WithExpiresIn sets the expires_in value of issued tokens in seconds.
func WithExpiresIn(seconds int64) IdentityServerOption {
	return func(s *IdentityServer) {
		s.expiresIn = seconds
	}
}

// WithResponseDelay delays each response by the given duration.
func WithResponseDelay(delay time.Duration) IdentityServerOption {
	return func(s *IdentityServer) {
		s.delay = delay
	}
}

// WithTokenPrefix sets the prefix of issued token strings.
func WithTokenPrefix(prefix string) IdentityServerOption {
	return func(s *IdentityServer) {
		s.tokenPrefix = prefix
	}
}

// NewIdentityServer starts a simulated identity endpoint over plain
// HTTP. The caller must Close it.
func NewIdentityServer(opts ...IdentityServerOption) *IdentityServer {
	s := &IdentityServer{
		expiresIn:   3600,
		tokenPrefix: "token",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// NewIdentityServerTLS starts the simulated endpoint over TLS with an
// httptest self-signed certificate.
func NewIdentityServerTLS(opts ...IdentityServerOption) *IdentityServer {
	s := &IdentityServer{
		expiresIn:   3600,
		tokenPrefix: "token",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewTLSServer(http.HandlerFunc(s.handle))
	return s
}

// NewIdentityServerWithTLSConfig starts the simulated endpoint over TLS
// serving the given certificate configuration, so clients can verify it
// against a known truststore.
func NewIdentityServerWithTLSConfig(tlsConfig *tls.Config, opts ...IdentityServerOption) *IdentityServer {
	s := &IdentityServer{
		expiresIn:   3600,
		tokenPrefix: "token",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewUnstartedServer(http.HandlerFunc(s.handle))
	s.Server.TLS = tlsConfig
	s.Server.StartTLS()
	return s
}

// URL returns the base URL of the endpoint, usable as an authority
// override.
func (s *IdentityServer) URL() string {
	return s.Server.URL
}

// Client returns an HTTP client trusting the server certificate. Only
// meaningful for TLS servers.
func (s *IdentityServer) Client() *http.Client {
	return s.Server.Client()
}

// Close shuts the endpoint down.
func (s *IdentityServer) Close() {
	s.Server.Close()
}

// RequestCount returns how many token requests were received.
func (s *IdentityServer) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns a copy of all captured token requests.
func (s *IdentityServer) Requests() []TokenRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TokenRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest returns the most recent captured request, or nil.
func (s *IdentityServer) LastRequest() *TokenRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	last := s.requests[len(s.requests)-1]
	return &last
}

// ScriptStatuses replaces the remaining status script.
func (s *IdentityServer) ScriptStatuses(statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusScript = append([]int(nil), statuses...)
}

// SetResponseBody overrides the success response body from now on.
func (s *IdentityServer) SetResponseBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodyOverride = &body
}

// Reset clears captured requests, the status script and any body
// override.
func (s *IdentityServer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
	s.statusScript = nil
	s.bodyOverride = nil
	s.tokenCounter = 0
}

func (s *IdentityServer) handle(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	s.mu.Lock()
	s.requests = append(s.requests, TokenRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		ContentType: r.Header.Get("Content-Type"),
		Form:        r.PostForm,
	})

	status := http.StatusOK
	if len(s.statusScript) > 0 {
		status = s.statusScript[0]
		s.statusScript = s.statusScript[1:]
	}

	var body string
	switch {
	case status >= 200 && status < 300 && s.bodyOverride != nil:
		body = *s.bodyOverride
	case status >= 200 && status < 300:
		s.tokenCounter++
		body = fmt.Sprintf(`{"access_token":%q,"token_type":"Bearer","expires_in":%d}`,
			fmt.Sprintf("%s-%d", s.tokenPrefix, s.tokenCounter), s.expiresIn)
	case status >= 400 && status < 500:
		body = `{"error":"invalid_client","error_description":"client authentication failed"}`
	default:
		body = `{"error":"server_error","error_description":"temporary failure"}`
	}
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// DecodeTokenResponse parses a token response body the simulator
// produced.
func DecodeTokenResponse(body string) (accessToken string, expiresIn int64, err error) {
	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(strings.NewReader(body)).Decode(&payload); err != nil {
		return "", 0, err
	}
	return payload.AccessToken, payload.ExpiresIn, nil
}
