package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avkms/internal/circuitbreaker"
	"github.com/vyrodovalexey/avkms/internal/observability"
	"github.com/vyrodovalexey/avkms/internal/retry"
	avtls "github.com/vyrodovalexey/avkms/internal/tls"
)

// ServicePrincipalName is the provider name reported by
// ServicePrincipalCredentials.
const ServicePrincipalName = "ServicePrincipalCredentials"

// Defaults for token acquisition.
const (
	// DefaultRequestTimeout bounds each individual token request attempt.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultRefreshBuffer is how long before expiry a cached token
	// stops being served by Token.
	DefaultRefreshBuffer = 60 * time.Second

	// maxResponseBodySize caps how much of a token response is read.
	maxResponseBodySize = 1024 * 1024 // 1MB

	formContentType = "application/x-www-form-urlencoded"
)

// identityTracer is the OTEL tracer for token acquisition spans.
var identityTracer = otel.Tracer("avkms/identity")

// Config holds the service-principal configuration. Exactly one of
// ClientSecret and ClientCertificate must be set; construction fails
// otherwise.
type Config struct {
	// TenantID is the directory tenant the principal belongs to.
	TenantID string

	// ClientID identifies the application registration.
	ClientID string

	// ClientSecret is the shared-secret authentication material.
	ClientSecret string

	// ClientCertificate configures the certificate authentication
	// material (PEM files or a PKCS#12 bundle).
	ClientCertificate *avtls.ClientCertificateConfig

	// Authority overrides the identity endpoint, e.g.
	// "https://login.example.net:8443". Takes precedence over Endpoint.
	Authority string

	// Endpoint selects the identity endpoint explicitly. Nil means the
	// Entra ID default.
	Endpoint *Endpoint

	// TrustStore is the path to a PEM CA bundle used to verify the
	// endpoint connection.
	TrustStore string

	// PriorityString filters and orders the TLS cipher suites used for
	// the endpoint connection.
	PriorityString string

	// TLS optionally carries the full client TLS surface. TrustStore
	// and PriorityString take precedence over the matching TLS fields.
	TLS *avtls.ClientConfig

	// RequestTimeout bounds each individual token request attempt.
	// Zero means DefaultRequestTimeout.
	RequestTimeout time.Duration

	// RefreshBuffer is how long before expiry Token refreshes a cached
	// token. Zero means DefaultRefreshBuffer.
	RefreshBuffer time.Duration

	// Retry configures the retry budget for token requests. Nil uses
	// the retry package defaults.
	Retry *retry.Config

	// HTTPClient overrides the HTTP client used for token requests.
	// When set, the TLS fields above are not applied.
	HTTPClient *http.Client
}

// Validate checks the configuration for completeness and ambiguity.
func (c *Config) Validate() error {
	if c == nil {
		return NewConfigurationError("", "configuration is required")
	}
	if c.TenantID == "" {
		return NewConfigurationError("tenant_id", "tenant ID must not be empty")
	}
	if c.ClientID == "" {
		return NewConfigurationError("client_id", "client ID must not be empty")
	}

	hasSecret := c.ClientSecret != ""
	hasCertificate := c.ClientCertificate != nil
	switch {
	case hasSecret && hasCertificate:
		return NewConfigurationErrorWithCause("client_secret",
			"client secret and client certificate are mutually exclusive",
			ErrAmbiguousAuthenticationMaterial)
	case !hasSecret && !hasCertificate:
		return NewConfigurationErrorWithCause("client_secret",
			"either a client secret or a client certificate is required",
			ErrNoAuthenticationMaterial)
	}

	if hasCertificate {
		if err := c.ClientCertificate.Validate(); err != nil {
			return NewConfigurationErrorWithCause("client_certificate", "invalid certificate configuration", err)
		}
	}
	if c.RequestTimeout < 0 {
		return NewConfigurationError("request_timeout", "request timeout must not be negative")
	}
	if c.Retry != nil && c.Retry.MaxAttempts < 0 {
		return NewConfigurationError("retry.max_attempts", "attempt count must not be negative")
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.ClientCertificate = c.ClientCertificate.Clone()
	clone.TLS = c.TLS.Clone()
	if c.Endpoint != nil {
		endpoint := *c.Endpoint
		clone.Endpoint = &endpoint
	}
	if c.Retry != nil {
		retryCfg := *c.Retry
		clone.Retry = &retryCfg
	}
	return &clone
}

// ResolveEndpoint applies the authority override, the explicit
// endpoint, or the default, in that order.
func (c *Config) ResolveEndpoint() (Endpoint, error) {
	if c.Authority != "" {
		return ParseAuthority(c.Authority)
	}
	if c.Endpoint != nil {
		if err := c.Endpoint.Validate(); err != nil {
			return Endpoint{}, err
		}
		return *c.Endpoint, nil
	}
	return DefaultEndpoint(), nil
}

// clientTLS merges the truststore path and priority string into the
// optional full TLS surface.
func (c *Config) clientTLS() *avtls.ClientConfig {
	tlsCfg := c.TLS.Clone()
	if tlsCfg == nil {
		tlsCfg = avtls.DefaultClientConfig()
	}
	if c.TrustStore != "" {
		tlsCfg.TrustStore = c.TrustStore
	}
	if c.PriorityString != "" {
		tlsCfg.PriorityString = c.PriorityString
	}
	return tlsCfg
}

// Option is a functional option for ServicePrincipalCredentials.
type Option func(*ServicePrincipalCredentials)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(c *ServicePrincipalCredentials) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCircuitBreaker guards token requests with a circuit breaker. An
// open circuit fails requests immediately without a network attempt.
func WithCircuitBreaker(breaker *circuitbreaker.Breaker) Option {
	return func(c *ServicePrincipalCredentials) {
		c.breaker = breaker
	}
}

// WithRateLimiter throttles token request attempts.
func WithRateLimiter(limiter *rate.Limiter) Option {
	return func(c *ServicePrincipalCredentials) {
		c.limiter = limiter
	}
}

// WithCertificateMetrics records certificate expiry and reload events
// for the client certificate source. Only effective for the
// certificate flow.
func WithCertificateMetrics(metrics avtls.MetricsRecorder) Option {
	return func(c *ServicePrincipalCredentials) {
		c.certMetrics = metrics
	}
}

// flight deduplicates concurrent refreshes for one scope. Followers
// wait on done and read token/err afterwards.
type flight struct {
	done  chan struct{}
	token *AccessToken
	err   error
}

// ServicePrincipalCredentials authenticates a service principal with
// the identity endpoint using the OAuth2 client-credentials grant and
// caches the resulting tokens per resource scope.
//
// The credential material is read-only after construction. The token
// cache holds immutable *AccessToken values replaced wholesale on
// refresh, so readers never observe a partially updated token.
type ServicePrincipalCredentials struct {
	cfg      *Config
	endpoint Endpoint
	flow     Flow

	httpClient *http.Client
	logger     observability.Logger
	breaker    *circuitbreaker.Breaker
	limiter    *rate.Limiter

	certSource  *avtls.ClientCertificateSource
	certMetrics avtls.MetricsRecorder

	refreshBuffer time.Duration

	tokens   sync.Map // ResourceScope -> *AccessToken
	flightMu sync.Mutex
	flights  map[ResourceScope]*flight

	closed atomic.Bool
}

// Compile-time interface check.
var _ Credentials = (*ServicePrincipalCredentials)(nil)

// NewServicePrincipalCredentials validates the configuration and
// constructs the credential provider. No network I/O happens here; the
// first exchange is deferred until Token or Refresh.
func NewServicePrincipalCredentials(cfg *Config, opts ...Option) (*ServicePrincipalCredentials, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	endpoint, err := cfg.ResolveEndpoint()
	if err != nil {
		return nil, err
	}

	cfg = cfg.Clone()

	c := &ServicePrincipalCredentials{
		cfg:           cfg,
		endpoint:      endpoint,
		flow:          FlowSecret,
		logger:        observability.NopLogger(),
		refreshBuffer: cfg.RefreshBuffer,
		flights:       make(map[ResourceScope]*flight),
	}
	if cfg.ClientCertificate != nil {
		c.flow = FlowCertificate
	}
	if c.refreshBuffer <= 0 {
		c.refreshBuffer = DefaultRefreshBuffer
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.flow == FlowCertificate {
		sourceOpts := []avtls.SourceOption{avtls.WithSourceLogger(c.logger)}
		if c.certMetrics != nil {
			sourceOpts = append(sourceOpts, avtls.WithSourceMetrics(c.certMetrics))
		}
		source, err := avtls.NewClientCertificateSource(cfg.ClientCertificate, sourceOpts...)
		if err != nil {
			return nil, NewConfigurationErrorWithCause("client_certificate",
				"failed to load client certificate", err)
		}
		c.certSource = source
	}

	if c.httpClient == nil {
		c.httpClient, err = buildHTTPClient(cfg, endpoint)
		if err != nil {
			if c.certSource != nil {
				_ = c.certSource.Close()
			}
			return nil, err
		}
	}

	return c, nil
}

// buildHTTPClient materializes the TLS surface into an HTTP client.
func buildHTTPClient(cfg *Config, endpoint Endpoint) (*http.Client, error) {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient, nil
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	client := &http.Client{Timeout: timeout}
	if endpoint.Secured {
		tlsConfig, err := cfg.clientTLS().Build()
		if err != nil {
			return nil, NewConfigurationErrorWithCause("tls", "failed to build TLS configuration", err)
		}
		client.Transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			TLSClientConfig:     tlsConfig,
			ForceAttemptHTTP2:   true,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	return client, nil
}

// Name returns the credential provider name.
func (c *ServicePrincipalCredentials) Name() string {
	return ServicePrincipalName
}

// Flow returns the authentication flow the provider dispatches to.
func (c *ServicePrincipalCredentials) Flow() Flow {
	return c.flow
}

// Endpoint returns the resolved identity endpoint.
func (c *ServicePrincipalCredentials) Endpoint() Endpoint {
	return c.endpoint
}

// TokenURL returns the token endpoint URL for the configured tenant.
func (c *ServicePrincipalCredentials) TokenURL() string {
	return c.endpoint.TokenURL(c.cfg.TenantID)
}

// CertificateSource exposes the signing certificate source, or nil for
// the secret flow. The owner may Start it to enable hot-reload of
// rotated certificates.
func (c *ServicePrincipalCredentials) CertificateSource() *avtls.ClientCertificateSource {
	return c.certSource
}

// Token returns a token for the scope. A cached token is served while
// it remains valid beyond the refresh buffer; otherwise a refresh is
// performed. Concurrent callers for the same scope share one exchange.
func (c *ServicePrincipalCredentials) Token(ctx context.Context, scope ResourceScope) (*AccessToken, error) {
	if c.closed.Load() {
		return nil, ErrCredentialsClosed
	}

	if token := c.cachedToken(scope); token != nil && !token.ExpiresWithin(c.refreshBuffer) {
		recordCacheHit()
		return token, nil
	}
	recordCacheMiss()

	return c.refreshShared(ctx, scope)
}

// Refresh always performs a fresh exchange with the identity endpoint
// and replaces the cached token for the scope. Concurrent callers for
// the same scope share one exchange.
func (c *ServicePrincipalCredentials) Refresh(ctx context.Context, scope ResourceScope) (*AccessToken, error) {
	if c.closed.Load() {
		return nil, ErrCredentialsClosed
	}
	return c.refreshShared(ctx, scope)
}

// CachedToken returns the cached token for the scope without any
// network activity, or nil when none is cached.
func (c *ServicePrincipalCredentials) CachedToken(scope ResourceScope) *AccessToken {
	return c.cachedToken(scope)
}

// Invalidate drops the cached token for the scope.
func (c *ServicePrincipalCredentials) Invalidate(scope ResourceScope) {
	c.tokens.Delete(scope)
}

// Close releases the certificate source. Subsequent Token and Refresh
// calls fail with ErrCredentialsClosed.
func (c *ServicePrincipalCredentials) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.certSource != nil {
		return c.certSource.Close()
	}
	return nil
}

func (c *ServicePrincipalCredentials) cachedToken(scope ResourceScope) *AccessToken {
	value, ok := c.tokens.Load(scope)
	if !ok {
		return nil
	}
	token, ok := value.(*AccessToken)
	if !ok {
		return nil
	}
	return token
}

// refreshShared deduplicates concurrent refreshes per scope. The first
// caller performs the exchange; late arrivals wait for its outcome.
func (c *ServicePrincipalCredentials) refreshShared(ctx context.Context, scope ResourceScope) (*AccessToken, error) {
	c.flightMu.Lock()
	if f, ok := c.flights[scope]; ok {
		c.flightMu.Unlock()
		select {
		case <-f.done:
			return f.token, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	c.flights[scope] = f
	c.flightMu.Unlock()

	f.token, f.err = c.refresh(ctx, scope)

	c.flightMu.Lock()
	delete(c.flights, scope)
	c.flightMu.Unlock()
	close(f.done)

	return f.token, f.err
}

// refresh runs one full token acquisition: flow dispatch, the
// retry-wrapped exchange, response parsing and cache replacement.
func (c *ServicePrincipalCredentials) refresh(ctx context.Context, scope ResourceScope) (*AccessToken, error) {
	tokenURL := c.TokenURL()

	ctx, span := identityTracer.Start(ctx, "identity.TokenExchange",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("identity.flow", string(c.flow)),
			attribute.String("identity.host", c.endpoint.Host),
			attribute.String("identity.scope", string(scope)),
		),
	)
	defer span.End()

	start := time.Now()
	token, err := c.exchange(ctx, tokenURL, scope)
	if err != nil {
		recordTokenRequest(c.flow, classifyResult(err), time.Since(start))
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		c.logger.Warn("token exchange failed",
			observability.String("flow", string(c.flow)),
			observability.String("host", c.endpoint.Host),
			observability.String("scope", string(scope)),
			observability.Error(err),
		)
		return nil, err
	}
	recordTokenRequest(c.flow, metricResultSuccess, time.Since(start))
	recordTokenExpiry(scope, token.TTL())

	c.tokens.Store(scope, token)

	c.logger.Debug("token acquired",
		observability.String("flow", string(c.flow)),
		observability.String("client_id", c.cfg.ClientID),
		observability.String("scope", string(scope)),
		observability.Redacted("access_token"),
		observability.Time("expires_at", token.ExpiresAt),
	)

	return token, nil
}

// exchange performs the retry-wrapped POST against the token endpoint
// and parses the response. Transient transport failures and retryable
// status codes are re-attempted; authentication rejections and
// protocol errors short-circuit.
func (c *ServicePrincipalCredentials) exchange(ctx context.Context, tokenURL string, scope ResourceScope) (*AccessToken, error) {
	form, err := c.requestForm(tokenURL, scope)
	if err != nil {
		return nil, err
	}
	body := form.Encode()

	var raw []byte
	attempt := func() error {
		data, postErr := c.post(ctx, tokenURL, body)
		if postErr != nil {
			return postErr
		}
		raw = data
		return nil
	}

	err = retry.Do(ctx, c.cfg.Retry, attempt, &retry.Options{
		Operation:   "identity_token",
		ShouldRetry: retry.RetryOnAny(retry.RetryableStatusCodes(), retry.RetryOnNetworkErrors()),
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.logger.Warn("retrying token request",
				observability.String("host", c.endpoint.Host),
				observability.Int("attempt", attempt),
				observability.Duration("backoff", backoff),
				observability.Error(err),
			)
		},
	})
	if err != nil {
		return nil, err
	}

	return c.makeToken(raw, scope)
}

// requestForm builds the form body for the configured flow. The
// certificate flow signs a fresh assertion bound to the token URL.
func (c *ServicePrincipalCredentials) requestForm(tokenURL string, scope ResourceScope) (url.Values, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", c.cfg.ClientID)
	data.Set("scope", string(scope))

	if c.flow == FlowSecret {
		data.Set("client_secret", c.cfg.ClientSecret)
		return data, nil
	}

	cert, err := c.certSource.Certificate()
	if err != nil {
		return nil, NewConfigurationErrorWithCause("client_certificate",
			"signing certificate unavailable", err)
	}
	assertion, err := buildClientAssertion(cert, c.cfg.ClientID, tokenURL)
	if err != nil {
		return nil, err
	}
	data.Set("client_assertion_type", clientAssertionType)
	data.Set("client_assertion", assertion)
	return data, nil
}

// post performs a single token request attempt and returns the raw
// response body. Non-2xx statuses come back as AuthenticationError so
// the retry classifier can separate 5xx from 4xx.
func (c *ServicePrincipalCredentials) post(ctx context.Context, tokenURL, body string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if c.breaker == nil {
		return c.doPost(ctx, tokenURL, body)
	}
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.doPost(ctx, tokenURL, body)
	})
	if err != nil {
		return nil, err
	}
	data, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected circuit breaker result type %T", result)
	}
	return data, nil
}

func (c *ServicePrincipalCredentials) doPost(ctx context.Context, tokenURL, body string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", formContentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewAuthenticationError(c.flow, c.endpoint.Host, resp.StatusCode, errorSummary(data))
	}

	return data, nil
}

// makeToken parses the token response body into an AccessToken. A 2xx
// body that cannot be used yields a ProtocolError, never a partial
// token.
func (c *ServicePrincipalCredentials) makeToken(data []byte, scope ResourceScope) (*AccessToken, error) {
	var payload struct {
		AccessToken string      `json:"access_token"`
		ExpiresIn   json.Number `json:"expires_in"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, NewProtocolErrorWithCause(c.endpoint.Host, "invalid JSON", err)
	}
	if payload.AccessToken == "" {
		return nil, NewProtocolError(c.endpoint.Host, "response missing access_token")
	}
	if payload.ExpiresIn == "" {
		return nil, NewProtocolError(c.endpoint.Host, "response missing expires_in")
	}
	seconds, err := payload.ExpiresIn.Int64()
	if err != nil || seconds < 0 {
		return nil, NewProtocolError(c.endpoint.Host,
			fmt.Sprintf("invalid expires_in %q", payload.ExpiresIn.String()))
	}

	return &AccessToken{
		Token:     payload.AccessToken,
		Resource:  scope,
		ExpiresAt: time.Now().Add(time.Duration(seconds) * time.Second).UTC(),
	}, nil
}

// errorSummary extracts the OAuth2 error code and description from an
// error response body, falling back to a body snippet.
func errorSummary(data []byte) string {
	var payload struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		if payload.Description != "" {
			return payload.Error + ": " + firstLine(payload.Description)
		}
		return payload.Error
	}

	snippet := strings.TrimSpace(string(data))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return snippet
}

func firstLine(s string) string {
	if idx := strings.IndexAny(s, "\r\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}

// classifyResult maps an exchange error to a metric result label.
func classifyResult(err error) string {
	switch {
	case isProtocolError(err):
		return metricResultProtocolError
	case isAuthenticationError(err):
		return metricResultAuthError
	default:
		return metricResultTransportError
	}
}

func isProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

func isAuthenticationError(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}
