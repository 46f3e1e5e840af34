package main

import (
	"context"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/vyrodovalexey/avkms/internal/config"
	"github.com/vyrodovalexey/avkms/internal/observability"
	"github.com/vyrodovalexey/avkms/internal/secrets"
)

// initSecrets builds the secret resolver and, when one is configured,
// the backing secrets provider. The env:// and file:// schemes are
// always served; vault:// and k8s:// references require the matching
// provider.
func initSecrets(
	ctx context.Context,
	cfg *config.Config,
	metrics *observability.Metrics,
	logger observability.Logger,
) (*secrets.Resolver, secrets.Provider) {
	sc := cfg.Spec.Secrets

	provider := initSecretsProvider(ctx, sc, metrics, logger)
	if provider != nil && sc.GetCacheTTL() > 0 {
		provider = secrets.NewCachingProvider(provider, sc.GetCacheTTL(), logger)
	}

	resolverCfg := &secrets.ResolverConfig{
		EnvPrefix: sc.GetEnvPrefix(),
		Logger:    logger,
	}
	if provider != nil {
		switch provider.Type() {
		case secrets.ProviderTypeVault:
			resolverCfg.Vault = provider
		case secrets.ProviderTypeKubernetes:
			resolverCfg.Kubernetes = provider
		}
	}

	resolver, err := secrets.NewResolver(resolverCfg)
	if err != nil {
		logger.Fatal("failed to create secret resolver", observability.Error(err))
	}

	return resolver, provider
}

// initSecretsProvider creates the secrets provider selected in the
// configuration. Returns nil when no provider is configured.
func initSecretsProvider(
	ctx context.Context,
	sc *config.SecretsConfig,
	metrics *observability.Metrics,
	logger observability.Logger,
) secrets.Provider {
	if sc == nil || sc.Provider == "" {
		return nil
	}

	providerCfg := &secrets.ProviderConfig{
		EnvPrefix:     sc.GetEnvPrefix(),
		LocalBasePath: sc.GetLocalBasePath(),
		Namespace:     sc.Namespace,
		Logger:        logger,
	}

	switch sc.Provider {
	case config.SecretsProviderEnv:
		providerCfg.Type = secrets.ProviderTypeEnv
	case config.SecretsProviderLocal:
		providerCfg.Type = secrets.ProviderTypeLocal
	case config.SecretsProviderVault:
		return initVaultSecretsProvider(ctx, sc, metrics, logger)
	case config.SecretsProviderKubernetes:
		providerCfg.Type = secrets.ProviderTypeKubernetes
		providerCfg.KubeClient = kubernetesClient(logger)
	default:
		logger.Fatal("unknown secrets provider",
			observability.String("provider", sc.Provider))
	}

	provider, err := secrets.NewProvider(ctx, providerCfg)
	if err != nil {
		logger.Fatal("failed to initialize secrets provider",
			observability.String("provider", sc.Provider),
			observability.Error(err),
		)
	}

	logger.Info("secrets provider initialized",
		observability.String("provider", sc.Provider))

	return provider
}

// kubernetesClient creates a controller-runtime client from the
// ambient kubeconfig or in-cluster service account.
func kubernetesClient(logger observability.Logger) client.Client {
	restCfg, err := ctrl.GetConfig()
	if err != nil {
		logger.Fatal("failed to load kubernetes configuration", observability.Error(err))
	}

	kubeClient, err := client.New(restCfg, client.Options{})
	if err != nil {
		logger.Fatal("failed to create kubernetes client", observability.Error(err))
	}

	return kubeClient
}
