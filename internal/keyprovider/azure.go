package keyprovider

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/vyrodovalexey/avkms/internal/identity"
	"github.com/vyrodovalexey/avkms/internal/observability"
	"github.com/vyrodovalexey/avkms/internal/secrets"
	avtls "github.com/vyrodovalexey/avkms/internal/tls"
)

// AzureProviderName is the provider name reported by AzureKeyProvider.
const AzureProviderName = "AzureKeyProvider"

// AzureFactory constructs key providers whose token authority is a
// service principal.
type AzureFactory struct{}

// Compile-time interface check.
var _ Factory = (*AzureFactory)(nil)

// NewAzureFactory creates an azure key provider factory.
func NewAzureFactory() *AzureFactory {
	return &AzureFactory{}
}

// Name returns the vendor name.
func (f *AzureFactory) Name() string {
	return "azure"
}

// Provider validates the options bag and constructs a key provider
// backed by ServicePrincipalCredentials. Secret references in option
// values are resolved here, once. No token is acquired until the
// returned provider is used.
func (f *AzureFactory) Provider(ctx context.Context, env *Environment, opts Options) (KeyProvider, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	scope, err := opts.ResourceScope()
	if err != nil {
		return nil, err
	}

	cfg, err := f.credentialConfig(ctx, env, opts)
	if err != nil {
		return nil, err
	}

	credOpts := []identity.Option{identity.WithLogger(env.logger())}
	if env != nil && env.Breakers != nil {
		endpoint, err := cfg.ResolveEndpoint()
		if err != nil {
			return nil, err
		}
		credOpts = append(credOpts,
			identity.WithCircuitBreaker(env.Breakers.GetOrCreate(endpoint.Host)))
	}
	if env != nil && env.RateLimit != nil {
		credOpts = append(credOpts, identity.WithRateLimiter(env.RateLimit))
	}
	if env != nil && env.CertMetrics != nil {
		credOpts = append(credOpts, identity.WithCertificateMetrics(env.CertMetrics))
	}

	creds, err := identity.NewServicePrincipalCredentials(cfg, credOpts...)
	if err != nil {
		return nil, err
	}

	return &AzureKeyProvider{
		vaultURL: opts[OptVaultURL],
		scope:    scope,
		creds:    creds,
		logger: env.logger().With(
			observability.String("component", "azure_key_provider"),
			observability.String("vault", opts[OptVaultURL]),
		),
	}, nil
}

// credentialConfig maps the options bag onto the service-principal
// configuration, resolving secret references through the environment's
// resolver.
func (f *AzureFactory) credentialConfig(ctx context.Context, env *Environment, opts Options) (*identity.Config, error) {
	resolver, err := env.resolver()
	if err != nil {
		return nil, err
	}

	cfg := &identity.Config{
		TenantID:       opts[OptTenantID],
		ClientID:       opts[OptClientID],
		Authority:      opts[OptAuthority],
		TrustStore:     opts[OptTrustStore],
		PriorityString: opts[OptPriorityString],
	}
	if env != nil {
		cfg.HTTPClient = env.HTTPClient
		cfg.Retry = env.Retry
		cfg.RequestTimeout = env.RequestTimeout
		cfg.RefreshBuffer = env.RefreshBuffer
	}

	if secret := opts[OptClientSecret]; secret != "" {
		value, err := resolver.ResolveString(ctx, secret)
		if err != nil {
			return nil, NewOptionsErrorWithCause(OptClientSecret,
				"failed to resolve client secret", err)
		}
		cfg.ClientSecret = value
		return cfg, nil
	}

	certificate := opts[OptClientCertificate]
	password := opts[OptCertificatePassword]
	if password != "" {
		value, err := resolver.ResolveString(ctx, password)
		if err != nil {
			return nil, NewOptionsErrorWithCause(OptCertificatePassword,
				"failed to resolve certificate password", err)
		}
		password = value
	}

	if secrets.IsReference(certificate) {
		material, err := resolver.Resolve(ctx, certificate)
		if err != nil {
			return nil, NewOptionsErrorWithCause(OptClientCertificate,
				"failed to resolve client certificate", err)
		}
		// X509KeyPair takes the certificate chain and the first private
		// key block from its arguments, so combined PEM material serves
		// both.
		cfg.ClientCertificate = &avtls.ClientCertificateConfig{
			CertData: string(material),
			KeyData:  string(material),
		}
		return cfg, nil
	}

	cfg.ClientCertificate = &avtls.ClientCertificateConfig{
		Bundle:   certificate,
		Password: password,
	}
	return cfg, nil
}

// AzureKeyProvider supplies bearer tokens scoped to one key vault. The
// key-retrieval protocol against the vault lives with the encryption
// subsystem; this provider contributes identity and token authority.
type AzureKeyProvider struct {
	vaultURL string
	scope    identity.ResourceScope
	creds    identity.Credentials
	logger   observability.Logger
	closed   atomic.Bool
}

// Compile-time interface check.
var _ KeyProvider = (*AzureKeyProvider)(nil)

// Name returns the provider name.
func (p *AzureKeyProvider) Name() string {
	return AzureProviderName
}

// VaultURL returns the key vault endpoint this provider serves.
func (p *AzureKeyProvider) VaultURL() string {
	return p.vaultURL
}

// Scope returns the resource scope tokens are requested for.
func (p *AzureKeyProvider) Scope() identity.ResourceScope {
	return p.scope
}

// Token returns a bearer token for the provider's vault resource.
func (p *AzureKeyProvider) Token(ctx context.Context) (*identity.AccessToken, error) {
	if p.closed.Load() {
		return nil, ErrProviderClosed
	}
	return p.creds.Token(ctx, p.scope)
}

// Credentials returns the credential provider backing this key provider.
func (p *AzureKeyProvider) Credentials() identity.Credentials {
	return p.creds
}

// Close releases the credential provider.
func (p *AzureKeyProvider) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.logger.Debug("key provider closed")
	if closer, ok := p.creds.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
