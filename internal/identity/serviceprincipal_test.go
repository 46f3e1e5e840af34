package identity

import (
	"context"
	"net"
	"net/http"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avkms/internal/circuitbreaker"
	"github.com/vyrodovalexey/avkms/internal/retry"
	avtls "github.com/vyrodovalexey/avkms/internal/tls"
	"github.com/vyrodovalexey/avkms/test/helpers"
)

// fastRetry keeps test retries quick.
func fastRetry(maxAttempts int) *retry.Config {
	return &retry.Config{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func secretConfig(authority string) *Config {
	return &Config{
		TenantID:     "test-tenant",
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		Authority:    authority,
		Retry:        fastRetry(4),
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	certConfig := &avtls.ClientCertificateConfig{
		CertFile: "/etc/avkms/sp.crt",
		KeyFile:  "/etc/avkms/sp.key",
	}

	tests := []struct {
		name    string
		config  *Config
		wantErr error
	}{
		{
			name:    "nil config",
			config:  nil,
			wantErr: ErrConfigInvalid,
		},
		{
			name: "secret only",
			config: &Config{
				TenantID:     "tenant",
				ClientID:     "client",
				ClientSecret: "secret",
			},
		},
		{
			name: "certificate only",
			config: &Config{
				TenantID:          "tenant",
				ClientID:          "client",
				ClientCertificate: certConfig,
			},
		},
		{
			name: "both secret and certificate",
			config: &Config{
				TenantID:          "tenant",
				ClientID:          "client",
				ClientSecret:      "secret",
				ClientCertificate: certConfig,
			},
			wantErr: ErrAmbiguousAuthenticationMaterial,
		},
		{
			name: "neither secret nor certificate",
			config: &Config{
				TenantID: "tenant",
				ClientID: "client",
			},
			wantErr: ErrNoAuthenticationMaterial,
		},
		{
			name: "missing tenant",
			config: &Config{
				ClientID:     "client",
				ClientSecret: "secret",
			},
			wantErr: ErrConfigInvalid,
		},
		{
			name: "missing client",
			config: &Config{
				TenantID:     "tenant",
				ClientSecret: "secret",
			},
			wantErr: ErrConfigInvalid,
		},
		{
			name: "invalid certificate config",
			config: &Config{
				TenantID:          "tenant",
				ClientID:          "client",
				ClientCertificate: &avtls.ClientCertificateConfig{CertFile: "/only-cert.crt"},
			},
			wantErr: ErrConfigInvalid,
		},
		{
			name: "negative request timeout",
			config: &Config{
				TenantID:       "tenant",
				ClientID:       "client",
				ClientSecret:   "secret",
				RequestTimeout: -time.Second,
			},
			wantErr: ErrConfigInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.config.Validate()
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestNewServicePrincipalCredentials(t *testing.T) {
	t.Parallel()

	t.Run("secret flow defaults", func(t *testing.T) {
		t.Parallel()

		creds, err := NewServicePrincipalCredentials(&Config{
			TenantID:     "tenant",
			ClientID:     "client",
			ClientSecret: "secret",
		})
		require.NoError(t, err)
		defer creds.Close()

		assert.Equal(t, "ServicePrincipalCredentials", creds.Name())
		assert.Equal(t, FlowSecret, creds.Flow())
		assert.Nil(t, creds.CertificateSource())
		assert.Equal(t, "https://login.microsoftonline.com:443/tenant/oauth2/v2.0/token", creds.TokenURL())
	})

	t.Run("authority override", func(t *testing.T) {
		t.Parallel()

		creds, err := NewServicePrincipalCredentials(secretConfig("http://127.0.0.1:8080"))
		require.NoError(t, err)
		defer creds.Close()

		assert.Equal(t, Endpoint{Host: "127.0.0.1", Port: 8080, Secured: false}, creds.Endpoint())
		assert.Equal(t, "http://127.0.0.1:8080/test-tenant/oauth2/v2.0/token", creds.TokenURL())
	})

	t.Run("invalid authority", func(t *testing.T) {
		t.Parallel()

		_, err := NewServicePrincipalCredentials(secretConfig("ftp://bad"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfigInvalid)
	})

	t.Run("certificate flow", func(t *testing.T) {
		t.Parallel()

		certFile, keyFile, _ := writeRSACertificateFiles(t, "sp-signing")
		creds, err := NewServicePrincipalCredentials(&Config{
			TenantID: "tenant",
			ClientID: "client",
			ClientCertificate: &avtls.ClientCertificateConfig{
				CertFile: certFile,
				KeyFile:  keyFile,
			},
		})
		require.NoError(t, err)
		defer creds.Close()

		assert.Equal(t, FlowCertificate, creds.Flow())
		require.NotNil(t, creds.CertificateSource())
		leaf, err := creds.CertificateSource().Leaf()
		require.NoError(t, err)
		assert.Equal(t, "sp-signing", leaf.Subject.CommonName)
	})

	t.Run("unreadable certificate material", func(t *testing.T) {
		t.Parallel()

		_, err := NewServicePrincipalCredentials(&Config{
			TenantID: "tenant",
			ClientID: "client",
			ClientCertificate: &avtls.ClientCertificateConfig{
				CertFile: "/nonexistent/sp.crt",
				KeyFile:  "/nonexistent/sp.key",
			},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConfigInvalid)
	})
}

func TestServicePrincipal_SecretFlow(t *testing.T) {
	t.Parallel()

	sim := helpers.NewIdentityServer()
	defer sim.Close()

	creds, err := NewServicePrincipalCredentials(secretConfig(sim.URL()))
	require.NoError(t, err)
	defer creds.Close()

	before := time.Now()
	token, err := creds.Refresh(context.Background(), "https://vault.example.net/.default")
	require.NoError(t, err)

	assert.Equal(t, "token-1", token.Token)
	assert.Equal(t, ResourceScope("https://vault.example.net/.default"), token.Resource)
	assert.WithinDuration(t, before.Add(3600*time.Second), token.ExpiresAt, 10*time.Second)
	assert.False(t, token.IsExpired())

	require.Equal(t, 1, sim.RequestCount())
	request := sim.LastRequest()
	assert.Equal(t, http.MethodPost, request.Method)
	assert.Equal(t, "/test-tenant/oauth2/v2.0/token", request.Path)
	assert.Contains(t, request.ContentType, "application/x-www-form-urlencoded")
	assert.Equal(t, "client_credentials", request.Form.Get("grant_type"))
	assert.Equal(t, "test-client", request.Form.Get("client_id"))
	assert.Equal(t, "test-secret", request.Form.Get("client_secret"))
	assert.Equal(t, "https://vault.example.net/.default", request.Form.Get("scope"))
	assert.Empty(t, request.Form.Get("client_assertion"))
}

func TestServicePrincipal_CertificateFlow(t *testing.T) {
	t.Parallel()

	sim := helpers.NewIdentityServer()
	defer sim.Close()

	certFile, keyFile, cert := writeRSACertificateFiles(t, "sp-signing")
	creds, err := NewServicePrincipalCredentials(&Config{
		TenantID: "test-tenant",
		ClientID: "test-client",
		ClientCertificate: &avtls.ClientCertificateConfig{
			CertFile: certFile,
			KeyFile:  keyFile,
		},
		Authority: sim.URL(),
		Retry:     fastRetry(4),
	})
	require.NoError(t, err)
	defer creds.Close()

	token, err := creds.Refresh(context.Background(), "scope-a")
	require.NoError(t, err)
	assert.Equal(t, "token-1", token.Token)

	request := sim.LastRequest()
	require.NotNil(t, request)
	assert.Equal(t, "client_credentials", request.Form.Get("grant_type"))
	assert.Equal(t, "test-client", request.Form.Get("client_id"))
	assert.Empty(t, request.Form.Get("client_secret"))
	assert.Equal(t, clientAssertionType, request.Form.Get("client_assertion_type"))

	// The assertion must verify against the signing certificate and be
	// bound to the exact token endpoint URL.
	assertion := request.Form.Get("client_assertion")
	require.NotEmpty(t, assertion)

	parsed, err := jwt.Parse([]byte(assertion),
		jwt.WithKey(jwa.RS256, cert.Leaf.PublicKey),
		jwt.WithValidate(true),
		jwt.WithAudience(creds.TokenURL()),
	)
	require.NoError(t, err)
	assert.Equal(t, "test-client", parsed.Issuer())
	assert.Equal(t, "test-client", parsed.Subject())
	assert.NotEmpty(t, parsed.JwtID())
}

func TestServicePrincipal_RetriesOnServerErrors(t *testing.T) {
	t.Parallel()

	sim := helpers.NewIdentityServer(helpers.WithStatusScript(
		http.StatusInternalServerError,
		http.StatusServiceUnavailable,
	))
	defer sim.Close()

	creds, err := NewServicePrincipalCredentials(secretConfig(sim.URL()))
	require.NoError(t, err)
	defer creds.Close()

	token, err := creds.Refresh(context.Background(), "scope")
	require.NoError(t, err)
	assert.Equal(t, "token-1", token.Token)
	assert.Equal(t, 3, sim.RequestCount())
}

func TestServicePrincipal_RetryExhaustion(t *testing.T) {
	t.Parallel()

	sim := helpers.NewIdentityServer(helpers.WithStatusScript(
		http.StatusInternalServerError,
		http.StatusInternalServerError,
	))
	defer sim.Close()

	cfg := secretConfig(sim.URL())
	cfg.Retry = fastRetry(2)

	creds, err := NewServicePrincipalCredentials(cfg)
	require.NoError(t, err)
	defer creds.Close()

	_, err = creds.Refresh(context.Background(), "scope")
	require.Error(t, err)
	assert.Equal(t, 2, sim.RequestCount())

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusInternalServerError, authErr.StatusCode())
	assert.Equal(t, FlowSecret, authErr.Flow)
}

func TestServicePrincipal_NoRetryOnAuthRejection(t *testing.T) {
	t.Parallel()

	sim := helpers.NewIdentityServer(helpers.WithStatusScript(http.StatusUnauthorized))
	defer sim.Close()

	creds, err := NewServicePrincipalCredentials(secretConfig(sim.URL()))
	require.NoError(t, err)
	defer creds.Close()

	_, err = creds.Refresh(context.Background(), "scope")
	require.Error(t, err)

	// A 4xx rejection fails after exactly one attempt.
	assert.Equal(t, 1, sim.RequestCount())
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	var authErr *AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode())
	assert.Contains(t, authErr.Message, "invalid_client")
	assert.Nil(t, creds.CachedToken("scope"))
}

func TestServicePrincipal_ProtocolErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{
			name: "missing access_token",
			body: `{"token_type":"Bearer","expires_in":3600}`,
		},
		{
			name: "invalid JSON",
			body: `{not json`,
		},
		{
			name: "missing expires_in",
			body: `{"access_token":"tok"}`,
		},
		{
			name: "non-numeric expires_in",
			body: `{"access_token":"tok","expires_in":"soon"}`,
		},
		{
			name: "negative expires_in",
			body: `{"access_token":"tok","expires_in":-1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sim := helpers.NewIdentityServer(helpers.WithResponseBody(tt.body))
			defer sim.Close()

			creds, err := NewServicePrincipalCredentials(secretConfig(sim.URL()))
			require.NoError(t, err)
			defer creds.Close()

			_, err = creds.Refresh(context.Background(), "scope")
			require.Error(t, err)

			// Distinct from an authentication rejection, and never
			// retried: parsing happens after the exchange.
			assert.ErrorIs(t, err, ErrProtocol)
			assert.NotErrorIs(t, err, ErrAuthenticationFailed)
			assert.Equal(t, 1, sim.RequestCount())
			assert.Nil(t, creds.CachedToken("scope"))
		})
	}
}

func TestServicePrincipal_TokenCachePolicy(t *testing.T) {
	t.Parallel()

	t.Run("token served from cache while valid", func(t *testing.T) {
		t.Parallel()

		sim := helpers.NewIdentityServer()
		defer sim.Close()

		creds, err := NewServicePrincipalCredentials(secretConfig(sim.URL()))
		require.NoError(t, err)
		defer creds.Close()

		first, err := creds.Token(context.Background(), "scope")
		require.NoError(t, err)
		second, err := creds.Token(context.Background(), "scope")
		require.NoError(t, err)

		assert.Equal(t, first.Token, second.Token)
		assert.Equal(t, 1, sim.RequestCount())
	})

	t.Run("refresh always exchanges", func(t *testing.T) {
		t.Parallel()

		sim := helpers.NewIdentityServer()
		defer sim.Close()

		creds, err := NewServicePrincipalCredentials(secretConfig(sim.URL()))
		require.NoError(t, err)
		defer creds.Close()

		first, err := creds.Refresh(context.Background(), "scope")
		require.NoError(t, err)
		second, err := creds.Refresh(context.Background(), "scope")
		require.NoError(t, err)

		assert.Equal(t, "token-1", first.Token)
		assert.Equal(t, "token-2", second.Token)
		assert.Equal(t, 2, sim.RequestCount())
	})

	t.Run("token expiring within buffer is refreshed", func(t *testing.T) {
		t.Parallel()

		sim := helpers.NewIdentityServer(helpers.WithExpiresIn(1))
		defer sim.Close()

		cfg := secretConfig(sim.URL())
		cfg.RefreshBuffer = 5 * time.Second

		creds, err := NewServicePrincipalCredentials(cfg)
		require.NoError(t, err)
		defer creds.Close()

		first, err := creds.Token(context.Background(), "scope")
		require.NoError(t, err)
		second, err := creds.Token(context.Background(), "scope")
		require.NoError(t, err)

		// Both calls exchanged: the 1s lifetime is inside the buffer,
		// so the cached token is never served.
		assert.Equal(t, 2, sim.RequestCount())
		assert.NotEqual(t, first.Token, second.Token)
	})

	t.Run("scopes are cached independently", func(t *testing.T) {
		t.Parallel()

		sim := helpers.NewIdentityServer()
		defer sim.Close()

		creds, err := NewServicePrincipalCredentials(secretConfig(sim.URL()))
		require.NoError(t, err)
		defer creds.Close()

		tokenA, err := creds.Token(context.Background(), "scope-a")
		require.NoError(t, err)
		tokenB, err := creds.Token(context.Background(), "scope-b")
		require.NoError(t, err)

		assert.NotEqual(t, tokenA.Token, tokenB.Token)
		assert.Equal(t, 2, sim.RequestCount())

		// Each scope now hits its own cache entry.
		againA, err := creds.Token(context.Background(), "scope-a")
		require.NoError(t, err)
		assert.Equal(t, tokenA.Token, againA.Token)
		assert.Equal(t, 2, sim.RequestCount())
	})

	t.Run("invalidate drops the cached token", func(t *testing.T) {
		t.Parallel()

		sim := helpers.NewIdentityServer()
		defer sim.Close()

		creds, err := NewServicePrincipalCredentials(secretConfig(sim.URL()))
		require.NoError(t, err)
		defer creds.Close()

		_, err = creds.Token(context.Background(), "scope")
		require.NoError(t, err)
		creds.Invalidate("scope")
		assert.Nil(t, creds.CachedToken("scope"))

		_, err = creds.Token(context.Background(), "scope")
		require.NoError(t, err)
		assert.Equal(t, 2, sim.RequestCount())
	})
}

func TestServicePrincipal_SingleFlight(t *testing.T) {
	t.Parallel()

	sim := helpers.NewIdentityServer(helpers.WithResponseDelay(150 * time.Millisecond))
	defer sim.Close()

	creds, err := NewServicePrincipalCredentials(secretConfig(sim.URL()))
	require.NoError(t, err)
	defer creds.Close()

	type result struct {
		token *AccessToken
		err   error
	}
	results := make(chan result, 8)

	// The leader starts the exchange; followers arrive while it is in
	// flight and must share its outcome.
	go func() {
		token, rerr := creds.Refresh(context.Background(), "scope")
		results <- result{token, rerr}
	}()
	time.Sleep(50 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 7; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, rerr := creds.Refresh(context.Background(), "scope")
			results <- result{token, rerr}
		}()
	}
	wg.Wait()

	tokens := make(map[string]bool)
	for i := 0; i < 8; i++ {
		r := <-results
		require.NoError(t, r.err)
		tokens[r.token.Token] = true
	}

	assert.Len(t, tokens, 1)
	assert.Equal(t, 1, sim.RequestCount())
}

func TestServicePrincipal_Closed(t *testing.T) {
	t.Parallel()

	sim := helpers.NewIdentityServer()
	defer sim.Close()

	creds, err := NewServicePrincipalCredentials(secretConfig(sim.URL()))
	require.NoError(t, err)

	require.NoError(t, creds.Close())
	require.NoError(t, creds.Close())

	_, err = creds.Token(context.Background(), "scope")
	assert.ErrorIs(t, err, ErrCredentialsClosed)
	_, err = creds.Refresh(context.Background(), "scope")
	assert.ErrorIs(t, err, ErrCredentialsClosed)
	assert.Equal(t, 0, sim.RequestCount())
}

func TestServicePrincipal_ContextCancelledDuringBackoff(t *testing.T) {
	t.Parallel()

	sim := helpers.NewIdentityServer(helpers.WithStatusScript(
		http.StatusInternalServerError,
		http.StatusInternalServerError,
		http.StatusInternalServerError,
	))
	defer sim.Close()

	cfg := secretConfig(sim.URL())
	cfg.Retry = &retry.Config{
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     time.Second,
	}

	creds, err := NewServicePrincipalCredentials(cfg)
	require.NoError(t, err)
	defer creds.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err = creds.Refresh(ctx, "scope")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, sim.RequestCount())
}

func TestServicePrincipal_CircuitBreaker(t *testing.T) {
	t.Parallel()

	sim := helpers.NewIdentityServer(helpers.WithStatusScript(
		http.StatusInternalServerError,
		http.StatusInternalServerError,
	))
	defer sim.Close()

	breaker := circuitbreaker.New("identity-test", &circuitbreaker.Config{
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 2,
		MinRequests:      1,
	})

	cfg := secretConfig(sim.URL())
	cfg.Retry = fastRetry(2)

	creds, err := NewServicePrincipalCredentials(cfg, WithCircuitBreaker(breaker))
	require.NoError(t, err)
	defer creds.Close()

	// Two server errors trip the breaker.
	_, err = creds.Refresh(context.Background(), "scope")
	require.Error(t, err)
	require.Equal(t, 2, sim.RequestCount())
	require.Equal(t, gobreaker.StateOpen, breaker.State())

	// The open circuit fails fast without reaching the endpoint, and
	// the rejection is not retried.
	_, err = creds.Refresh(context.Background(), "scope")
	require.Error(t, err)
	assert.True(t, circuitbreaker.IsOpen(err))
	assert.Equal(t, 2, sim.RequestCount())
}

func TestServicePrincipal_RateLimiterRejects(t *testing.T) {
	t.Parallel()

	sim := helpers.NewIdentityServer()
	defer sim.Close()

	limiter := rate.NewLimiter(rate.Every(time.Hour), 0)

	creds, err := NewServicePrincipalCredentials(secretConfig(sim.URL()),
		WithRateLimiter(limiter))
	require.NoError(t, err)
	defer creds.Close()

	_, err = creds.Refresh(context.Background(), "scope")
	require.Error(t, err)
	assert.Equal(t, 0, sim.RequestCount())
}

func TestServicePrincipal_TLSEndpointWithTrustStore(t *testing.T) {
	t.Parallel()

	tc, err := helpers.GenerateTestCertificates()
	require.NoError(t, err)

	serverTLS, err := tc.EndpointTLSConfig()
	require.NoError(t, err)

	sim := helpers.NewIdentityServerWithTLSConfig(serverTLS)
	defer sim.Close()

	truststore, err := tc.WriteTrustStore(t.TempDir())
	require.NoError(t, err)

	cfg := secretConfig(sim.URL())
	cfg.TrustStore = truststore

	creds, err := NewServicePrincipalCredentials(cfg)
	require.NoError(t, err)
	defer creds.Close()

	token, err := creds.Refresh(context.Background(), "scope")
	require.NoError(t, err)
	assert.Equal(t, "token-1", token.Token)

	// Without the truststore the endpoint certificate is not trusted.
	bare, err := NewServicePrincipalCredentials(secretConfig(sim.URL()))
	require.NoError(t, err)
	defer bare.Close()

	_, err = bare.Refresh(context.Background(), "scope")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAuthenticationFailed)
}

func TestServicePrincipal_TransportErrorsAreRetried(t *testing.T) {
	t.Parallel()

	// Connection-level failures consume the whole retry budget.
	cfg := secretConfig("http://127.0.0.1:1")
	cfg.Retry = fastRetry(3)

	attempts := 0
	cfg.HTTPClient = &http.Client{
		Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			attempts++
			return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
		}),
	}

	creds, err := NewServicePrincipalCredentials(cfg)
	require.NoError(t, err)
	defer creds.Close()

	_, err = creds.Refresh(context.Background(), "scope")
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

// roundTripFunc adapts a function to http.RoundTripper.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
