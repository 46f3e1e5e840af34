// Package vault provides a HashiCorp Vault client for secret storage.
//
// The package wraps the official Vault API client with authentication,
// automatic token renewal, retry logic, and Prometheus metrics. It is
// consumed by the secrets package to back the vault secret provider.
//
// # Features
//
//   - Token, Kubernetes, and AppRole authentication
//   - Automatic token renewal at 2/3 of the token TTL
//   - KV v2 secrets engine with KV v1 fallback
//   - Retry with exponential backoff for transient failures
//   - Prometheus metrics for requests and authentication
//   - TLS with custom CA, client certificates, and server name override
//
// # Usage
//
// Create a client from configuration and authenticate before use:
//
//	cfg := &vault.Config{
//		Enabled:    true,
//		Address:    "https://vault.example.com:8200",
//		AuthMethod: vault.AuthMethodKubernetes,
//		Kubernetes: &vault.KubernetesAuthConfig{
//			Role: "avkms",
//		},
//	}
//
//	client, err := vault.New(cfg, logger)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	if err := client.Authenticate(ctx); err != nil {
//		return err
//	}
//
//	data, err := client.KV().Read(ctx, "secret", "avkms/credentials")
//
// When Vault is disabled in configuration, New returns a client whose
// operations fail with ErrVaultDisabled, so callers do not need to guard
// every call site.
//
// # Authentication Methods
//
// Token authentication uses a static token:
//
//	vault:
//	  enabled: true
//	  address: https://vault.example.com:8200
//	  authMethod: token
//	  token: ${VAULT_TOKEN}
//
// Kubernetes authentication exchanges the pod service account token:
//
//	vault:
//	  enabled: true
//	  address: https://vault.example.com:8200
//	  authMethod: kubernetes
//	  kubernetes:
//	    role: avkms
//
// AppRole authentication uses a role ID and secret ID pair:
//
//	vault:
//	  enabled: true
//	  address: https://vault.example.com:8200
//	  authMethod: approle
//	  appRole:
//	    roleId: ${VAULT_ROLE_ID}
//	    secretId: ${VAULT_SECRET_ID}
//
// # Token Renewal
//
// After a successful Authenticate, the client starts a background goroutine
// that renews the token at 2/3 of its TTL (at least once per minute). If
// renewal fails and the token has expired, the client re-authenticates with
// the configured method. Close stops the goroutine.
//
// # Metrics
//
// The client records the following metrics when constructed with WithMetrics:
//
//   - {namespace}_vault_requests_total{operation, status}
//   - {namespace}_vault_request_duration_seconds{operation}
//   - {namespace}_vault_authentications_total{method, status}
//   - {namespace}_vault_token_ttl_seconds
package vault
