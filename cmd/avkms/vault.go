package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/vyrodovalexey/avkms/internal/config"
	"github.com/vyrodovalexey/avkms/internal/observability"
	"github.com/vyrodovalexey/avkms/internal/retry"
	"github.com/vyrodovalexey/avkms/internal/secrets"
	"github.com/vyrodovalexey/avkms/internal/vault"
)

// vaultAuthTimeout bounds the initial Vault authentication, including retries.
const vaultAuthTimeout = 30 * time.Second

// initVaultSecretsProvider creates the Vault-backed secrets provider.
// The initial authentication is retried with backoff so a sidecar that
// starts alongside Vault does not fail before Vault is ready. The
// provider owns the resulting client, including token renewal.
func initVaultSecretsProvider(
	ctx context.Context,
	sc *config.SecretsConfig,
	metrics *observability.Metrics,
	logger observability.Logger,
) secrets.Provider {
	providerCfg := &secrets.VaultProviderConfig{
		Config:     vaultConfigFromEnv(),
		MountPoint: sc.VaultMountPath,
		Logger:     logger,
		Metrics:    vault.NewMetrics("kms", vault.WithRegistry(metrics.Registry())),
	}

	authCtx, cancel := context.WithTimeout(ctx, vaultAuthTimeout)
	defer cancel()

	retryCfg := &retry.Config{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     10 * time.Second,
		JitterFactor:   retry.DefaultJitterFactor,
	}

	var provider secrets.Provider
	err := retry.Do(authCtx, retryCfg, func() error {
		created, createErr := secrets.NewVaultProvider(authCtx, providerCfg)
		if createErr != nil {
			return createErr
		}
		provider = created
		return nil
	}, &retry.Options{
		OnRetry: func(attempt int, retryErr error, backoff time.Duration) {
			logger.Warn("vault authentication failed, retrying",
				observability.Int("attempt", attempt),
				observability.Duration("backoff", backoff),
				observability.Error(retryErr),
			)
		},
	})
	if err != nil {
		logger.Fatal("failed to authenticate with vault after retries",
			observability.Error(err))
	}

	return provider
}

// vaultConfigFromEnv builds the Vault client configuration from the
// standard Vault environment variables: VAULT_ADDR, VAULT_TOKEN,
// VAULT_NAMESPACE, VAULT_CACERT, VAULT_CAPATH, VAULT_CLIENT_CERT,
// VAULT_CLIENT_KEY and VAULT_SKIP_VERIFY. For Kubernetes deployments,
// set VAULT_AUTH_METHOD=kubernetes and VAULT_K8S_ROLE; for AppRole,
// set VAULT_AUTH_METHOD=approle with VAULT_APPROLE_ROLE_ID and
// VAULT_APPROLE_SECRET_ID.
func vaultConfigFromEnv() *vault.Config {
	authMethod := vault.AuthMethod(getEnvOrDefault("VAULT_AUTH_METHOD", "token"))

	cfg := &vault.Config{
		Enabled:    true,
		Address:    os.Getenv("VAULT_ADDR"),
		AuthMethod: authMethod,
		Token:      os.Getenv("VAULT_TOKEN"),
		Namespace:  os.Getenv("VAULT_NAMESPACE"),
	}

	caCert := os.Getenv("VAULT_CACERT")
	caPath := os.Getenv("VAULT_CAPATH")
	clientCert := os.Getenv("VAULT_CLIENT_CERT")
	clientKey := os.Getenv("VAULT_CLIENT_KEY")
	skipVerify := false
	if v := os.Getenv("VAULT_SKIP_VERIFY"); v != "" {
		skipVerify, _ = strconv.ParseBool(v)
	}

	if caCert != "" || caPath != "" || clientCert != "" || clientKey != "" || skipVerify {
		cfg.TLS = &vault.VaultTLSConfig{
			CACert:     caCert,
			CAPath:     caPath,
			ClientCert: clientCert,
			ClientKey:  clientKey,
			SkipVerify: skipVerify,
		}
	}

	switch authMethod {
	case vault.AuthMethodKubernetes:
		cfg.Kubernetes = &vault.KubernetesAuthConfig{
			Role:      os.Getenv("VAULT_K8S_ROLE"),
			MountPath: getEnvOrDefault("VAULT_K8S_MOUNT_PATH", "kubernetes"),
			TokenPath: getEnvOrDefault("VAULT_K8S_TOKEN_PATH",
				"/var/run/secrets/kubernetes.io/serviceaccount/token"),
		}
	case vault.AuthMethodAppRole:
		cfg.AppRole = &vault.AppRoleAuthConfig{
			RoleID:    os.Getenv("VAULT_APPROLE_ROLE_ID"),
			SecretID:  os.Getenv("VAULT_APPROLE_SECRET_ID"),
			MountPath: getEnvOrDefault("VAULT_APPROLE_MOUNT_PATH", "approle"),
		}
	}

	return cfg
}
