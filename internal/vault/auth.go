package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	vaultapi "github.com/hashicorp/vault/api"
)

const (
	// DefaultServiceAccountTokenPath is the default path to the service account token.
	// This is the standard Kubernetes service account token path, not a hardcoded credential.
	//nolint:gosec // G101: This is a standard Kubernetes path, not a credential
	DefaultServiceAccountTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

	// DefaultKubernetesMountPath is the default mount path for Kubernetes auth.
	DefaultKubernetesMountPath = "kubernetes"

	// DefaultAppRoleMountPath is the default mount path for AppRole auth.
	DefaultAppRoleMountPath = "approle"
)

// authenticateWithToken authenticates using a static token. The token is
// verified by a lookup-self call, which also yields its remaining TTL.
func (c *vaultClient) authenticateWithToken(ctx context.Context) error {
	c.api.SetToken(c.config.Token)

	secret, err := c.api.Auth().Token().LookupSelfWithContext(ctx)
	if err != nil {
		c.metrics.RecordAuthentication(string(AuthMethodToken), statusError)
		return NewVaultErrorWithCause("authenticate", "", "token lookup failed",
			fmt.Errorf("%w: %w", ErrAuthenticationFailed, err))
	}

	c.storeTokenTTL(tokenTTLFromLookup(secret))
	c.metrics.RecordAuthentication(string(AuthMethodToken), statusSuccess)

	return nil
}

// authenticateWithKubernetes authenticates using the pod's ServiceAccount JWT.
func (c *vaultClient) authenticateWithKubernetes(ctx context.Context) error {
	k8s := c.config.Kubernetes
	if k8s == nil {
		return NewConfigurationError("kubernetes", "kubernetes configuration is required")
	}

	// Check context before the file read
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	jwt, err := os.ReadFile(filepath.Clean(k8s.GetTokenPath()))
	if err != nil {
		c.metrics.RecordAuthentication(string(AuthMethodKubernetes), statusError)
		return NewVaultErrorWithCause("authenticate", "", "failed to read service account token", err)
	}

	path := fmt.Sprintf("auth/%s/login", k8s.GetMountPath())
	data := map[string]interface{}{
		"role": k8s.Role,
		"jwt":  string(jwt),
	}

	secret, err := c.api.Logical().WriteWithContext(ctx, path, data)
	if err != nil {
		c.metrics.RecordAuthentication(string(AuthMethodKubernetes), statusError)
		return NewVaultErrorWithCause("authenticate", "", "kubernetes auth failed",
			fmt.Errorf("%w: %w", ErrAuthenticationFailed, err))
	}

	if err := c.applyAuthSecret(secret); err != nil {
		c.metrics.RecordAuthentication(string(AuthMethodKubernetes), statusError)
		return err
	}

	c.metrics.RecordAuthentication(string(AuthMethodKubernetes), statusSuccess)
	return nil
}

// authenticateWithAppRole authenticates using AppRole RoleID and SecretID.
func (c *vaultClient) authenticateWithAppRole(ctx context.Context) error {
	approle := c.config.AppRole
	if approle == nil {
		return NewConfigurationError("appRole", "appRole configuration is required")
	}

	path := fmt.Sprintf("auth/%s/login", approle.GetMountPath())
	data := map[string]interface{}{
		"role_id":   approle.RoleID,
		"secret_id": approle.SecretID,
	}

	secret, err := c.api.Logical().WriteWithContext(ctx, path, data)
	if err != nil {
		c.metrics.RecordAuthentication(string(AuthMethodAppRole), statusError)
		return NewVaultErrorWithCause("authenticate", "", "approle auth failed",
			fmt.Errorf("%w: %w", ErrAuthenticationFailed, err))
	}

	if err := c.applyAuthSecret(secret); err != nil {
		c.metrics.RecordAuthentication(string(AuthMethodAppRole), statusError)
		return err
	}

	c.metrics.RecordAuthentication(string(AuthMethodAppRole), statusSuccess)
	return nil
}

// applyAuthSecret installs the client token returned by a login call and
// records its lease duration for the renewal loop.
func (c *vaultClient) applyAuthSecret(secret *vaultapi.Secret) error {
	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return NewVaultErrorWithCause("authenticate", "", "login response contains no auth token", ErrAuthenticationFailed)
	}

	c.api.SetToken(secret.Auth.ClientToken)
	c.storeTokenTTL(secret.Auth.LeaseDuration)

	return nil
}

// storeTokenTTL records the token TTL and derived expiry time.
func (c *vaultClient) storeTokenTTL(ttlSeconds int) {
	c.tokenTTL.Store(int64(ttlSeconds))
	if ttlSeconds > 0 {
		c.tokenExpiry.Store(time.Now().Add(time.Duration(ttlSeconds) * time.Second).Unix())
	} else {
		c.tokenExpiry.Store(0)
	}
	c.metrics.SetTokenTTL(float64(ttlSeconds))
}

// tokenTTLFromLookup extracts the remaining TTL from a lookup-self response.
// The field arrives as float64 or json.Number depending on the decoder.
func tokenTTLFromLookup(secret *vaultapi.Secret) int {
	if secret == nil || secret.Data == nil {
		return 0
	}

	switch ttl := secret.Data["ttl"].(type) {
	case float64:
		return int(ttl)
	case json.Number:
		if v, err := ttl.Int64(); err == nil {
			return int(v)
		}
	}
	return 0
}
