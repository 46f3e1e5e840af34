package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/vyrodovalexey/avkms/internal/cache"
	"github.com/vyrodovalexey/avkms/internal/circuitbreaker"
	"github.com/vyrodovalexey/avkms/internal/config"
	"github.com/vyrodovalexey/avkms/internal/health"
	"github.com/vyrodovalexey/avkms/internal/identity"
	"github.com/vyrodovalexey/avkms/internal/keyprovider"
	"github.com/vyrodovalexey/avkms/internal/observability"
	"github.com/vyrodovalexey/avkms/internal/retry"
	"github.com/vyrodovalexey/avkms/internal/secrets"
	"github.com/vyrodovalexey/avkms/internal/server"
	avtls "github.com/vyrodovalexey/avkms/internal/tls"
)

// identityCheckTimeout bounds the TCP reachability probe against an
// identity endpoint.
const identityCheckTimeout = 5 * time.Second

// application holds all application components.
type application struct {
	server          *server.Server
	credentials     *server.CredentialSet
	registry        *keyprovider.Registry
	breakers        *circuitbreaker.Registry
	resolver        *secrets.Resolver
	secretsProvider secrets.Provider
	tokenCache      cache.Cache
	healthChecker   *health.Checker
	metrics         *observability.Metrics
	certMetrics     *avtls.Metrics
	metricsServer   *http.Server
	reloadMetrics   *reloadMetrics
	tracer          *observability.Tracer
	config          *config.Config
}

// initApplication initializes all application components.
func initApplication(cfg *config.Config, logger observability.Logger) *application {
	ctx := context.Background()

	metrics := observability.NewMetrics("kms")
	metrics.SetBuildInfo(version, gitCommit, buildTime)
	tracer := initTracer(cfg, logger)
	healthChecker := health.NewChecker(version, logger)

	// Bridge subsystem metric singletons onto the sidecar's custom
	// Prometheus registry. The subsystem packages use promauto, which
	// registers with the default global registry, but /metrics is
	// served from the sidecar's own registry. Without this explicit
	// registration their metrics would be invisible on the endpoint.
	registerSubsystemMetrics(metrics, logger)

	certMetrics := avtls.NewMetrics("kms", avtls.WithRegistry(metrics.Registry()))

	resolver, secretsProvider := initSecrets(ctx, cfg, metrics, logger)

	tokenCache, err := cache.New(effectiveCacheConfig(cfg), logger,
		cache.WithSecretResolver(resolver))
	if err != nil {
		logger.Fatal("failed to initialize token cache", observability.Error(err))
	}

	breakers := circuitbreaker.NewRegistry(nil, logger)
	registry := keyprovider.NewRegistry(keyprovider.NewAzureFactory(), logger)

	env := &keyprovider.Environment{
		Logger:      logger,
		Resolver:    resolver,
		Breakers:    breakers,
		CertMetrics: certMetrics,
	}

	entries, err := buildEntries(ctx, registry, env, cfg.Spec.Credentials)
	if err != nil {
		logger.Fatal("failed to build credential providers", observability.Error(err))
	}

	credentials := server.NewCredentialSet()
	credentials.Replace(entries)

	app := &application{
		credentials:     credentials,
		registry:        registry,
		breakers:        breakers,
		resolver:        resolver,
		secretsProvider: secretsProvider,
		tokenCache:      tokenCache,
		healthChecker:   healthChecker,
		metrics:         metrics,
		certMetrics:     certMetrics,
		reloadMetrics:   newReloadMetrics(metrics),
		tracer:          tracer,
		config:          cfg,
	}

	app.server = server.New(cfg.Spec.Server, credentials, logger,
		server.WithHealthChecker(healthChecker),
		server.WithTokenCache(tokenCache),
	)

	registerHealthChecks(app, cfg)

	return app
}

// registerSubsystemMetrics registers all subsystem metric collectors
// with the sidecar's custom Prometheus registry.
func registerSubsystemMetrics(metrics *observability.Metrics, logger observability.Logger) {
	registry := metrics.Registry()

	identity.MustRegisterMetrics(registry)
	keyprovider.MustRegisterMetrics(registry)
	server.MustRegisterMetrics(registry)
	cache.MustRegisterMetrics(registry)
	retry.MustRegisterMetrics(registry)
	circuitbreaker.MustRegisterMetrics(registry)
	secrets.MustRegisterMetrics(registry)
	health.MustRegisterMetrics(registry)

	logger.Debug("subsystem metrics registered")
}

// effectiveCacheConfig returns the configured cache section, or a
// disabled one when the section is absent.
func effectiveCacheConfig(cfg *config.Config) *config.CacheConfig {
	if cfg.Spec.Cache != nil {
		return cfg.Spec.Cache
	}
	return &config.CacheConfig{Enabled: false}
}

// buildEntries constructs one key provider per configured credential.
// Providers with equivalent options are shared through the registry.
func buildEntries(
	ctx context.Context,
	registry *keyprovider.Registry,
	env *keyprovider.Environment,
	credentials []config.CredentialConfig,
) ([]server.Entry, error) {
	entries := make([]server.Entry, 0, len(credentials))

	for i := range credentials {
		cred := &credentials[i]

		opts := credentialOptions(cred)
		credEnv := credentialEnvironment(env, cred)

		provider, err := registry.Provider(ctx, credEnv, opts)
		if err != nil {
			return nil, fmt.Errorf("credential %q: %w", cred.Name, err)
		}

		scope, err := opts.ResourceScope()
		if err != nil {
			_ = provider.Close()
			return nil, fmt.Errorf("credential %q: %w", cred.Name, err)
		}

		entries = append(entries, server.Entry{
			Credential:    cred.Name,
			Provider:      provider,
			VaultURL:      cred.VaultURL,
			Scope:         scope,
			RefreshBuffer: cred.GetRefreshBuffer(),
		})
	}

	return entries, nil
}

// credentialOptions maps a credential configuration onto the key
// provider options bag. Empty values are omitted so validation treats
// them as absent.
func credentialOptions(cred *config.CredentialConfig) keyprovider.Options {
	opts := keyprovider.Options{
		keyprovider.OptTenantID: cred.TenantID,
		keyprovider.OptClientID: cred.ClientID,
	}

	setOption := func(key, value string) {
		if value != "" {
			opts[key] = value
		}
	}

	setOption(keyprovider.OptClientSecret, cred.ClientSecret)
	if cred.Certificate != nil {
		setOption(keyprovider.OptClientCertificate, cred.Certificate.Bundle)
		setOption(keyprovider.OptCertificatePassword, cred.Certificate.Password)
	}
	setOption(keyprovider.OptAuthority, cred.Authority)
	setOption(keyprovider.OptVaultURL, cred.VaultURL)
	setOption(keyprovider.OptResource, cred.Resource)
	setOption(keyprovider.OptTrustStore, cred.TrustStore)
	setOption(keyprovider.OptPriorityString, cred.PriorityString)

	return opts
}

// credentialEnvironment derives a per-credential environment from the
// shared one, applying the credential's timing and retry settings.
func credentialEnvironment(env *keyprovider.Environment, cred *config.CredentialConfig) *keyprovider.Environment {
	credEnv := *env
	credEnv.RequestTimeout = cred.GetRequestTimeout()
	credEnv.RefreshBuffer = cred.GetRefreshBuffer()
	credEnv.Retry = credentialRetryConfig(cred)
	return &credEnv
}

// credentialRetryConfig maps the credential's retry section onto a
// retry configuration. Nil means the identity defaults apply.
func credentialRetryConfig(cred *config.CredentialConfig) *retry.Config {
	if cred.Retry == nil {
		return nil
	}

	rc := retry.DefaultConfig()
	if cred.Retry.MaxAttempts > 0 {
		rc.MaxAttempts = cred.Retry.MaxAttempts
	}
	if cred.Retry.InitialBackoff > 0 {
		rc.InitialBackoff = cred.Retry.InitialBackoff.Duration()
	}
	if cred.Retry.MaxBackoff > 0 {
		rc.MaxBackoff = cred.Retry.MaxBackoff.Duration()
	}
	return rc
}

// registerHealthChecks registers dependency checks with the health
// checker: the shared token cache, the secrets provider, and one TCP
// reachability probe per distinct identity endpoint.
func registerHealthChecks(app *application, cfg *config.Config) {
	if cfg.Spec.Cache != nil && cfg.Spec.Cache.Enabled {
		app.healthChecker.RegisterHealthCheck(
			health.CacheHealthCheck("cache", app.tokenCache))
	}

	if app.secretsProvider != nil {
		dependencyType := health.DependencyTypeCustom
		if app.secretsProvider.Type() == secrets.ProviderTypeVault {
			dependencyType = health.DependencyTypeVault
		}
		app.healthChecker.RegisterHealthCheck(health.NewDependencyCheck(
			"secrets", dependencyType, app.secretsProvider.HealthCheck))
	}

	for name, address := range identityEndpoints(cfg.Spec.Credentials) {
		app.healthChecker.RegisterHealthCheck(
			health.IdentityEndpointCheck(name, address, identityCheckTimeout))
	}
}

// identityEndpoints returns the distinct identity endpoints the
// configured credentials authenticate against, keyed by check name.
// Credentials with an unparseable authority are skipped; provider
// construction reports that error.
func identityEndpoints(credentials []config.CredentialConfig) map[string]string {
	endpoints := make(map[string]string)

	for i := range credentials {
		endpoint := identity.DefaultEndpoint()
		if authority := credentials[i].Authority; authority != "" {
			parsed, err := identity.ParseAuthority(authority)
			if err != nil {
				continue
			}
			endpoint = parsed
		}

		name := "identity:" + endpoint.Host
		endpoints[name] = net.JoinHostPort(endpoint.Host, strconv.Itoa(endpoint.Port))
	}

	return endpoints
}
