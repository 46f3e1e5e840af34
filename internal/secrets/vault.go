package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vyrodovalexey/avkms/internal/observability"
	"github.com/vyrodovalexey/avkms/internal/vault"
)

// DefaultVaultMountPoint is the KV v2 mount point used when none is configured.
const DefaultVaultMountPoint = "secret"

// VaultProviderConfig holds configuration for the Vault secrets provider.
type VaultProviderConfig struct {
	// Config is the Vault client configuration.
	Config *vault.Config
	// MountPoint is the KV v2 secrets engine mount point.
	MountPoint string
	// Logger is the logger instance.
	Logger observability.Logger
	// Metrics records Vault client metrics.
	Metrics *vault.Metrics
}

// VaultProvider implements the Provider interface using HashiCorp Vault.
type VaultProvider struct {
	client     vault.Client
	mountPoint string
	logger     observability.Logger
}

// NewVaultProvider creates a new Vault secrets provider. It authenticates
// with Vault before returning, so a returned provider is ready to serve reads.
func NewVaultProvider(ctx context.Context, cfg *VaultProviderConfig) (*VaultProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrProviderNotConfigured)
	}
	if cfg.Config == nil {
		return nil, fmt.Errorf("%w: vault configuration is required", ErrProviderNotConfigured)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	mountPoint := cfg.MountPoint
	if mountPoint == "" {
		mountPoint = DefaultVaultMountPoint
	}

	// Selecting the vault provider implies the client is enabled.
	clientCfg := cfg.Config.Clone()
	clientCfg.Enabled = true

	var opts []vault.ClientOption
	if cfg.Metrics != nil {
		opts = append(opts, vault.WithMetrics(cfg.Metrics))
	}

	client, err := vault.New(clientCfg, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	if err := client.Authenticate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("vault authentication failed: %w", err)
	}

	providerLogger := logger.With(observability.String("provider", "vault"))
	providerLogger.Info("vault secrets provider initialized",
		observability.String("address", clientCfg.Address),
		observability.String("auth_method", string(clientCfg.AuthMethod)),
		observability.String("mount_point", mountPoint),
	)

	return &VaultProvider{
		client:     client,
		mountPoint: mountPoint,
		logger:     providerLogger,
	}, nil
}

// Type returns the provider type.
func (p *VaultProvider) Type() ProviderType {
	return ProviderTypeVault
}

// GetSecret retrieves a secret from the KV v2 engine.
func (p *VaultProvider) GetSecret(ctx context.Context, path string) (secret *Secret, err error) {
	start := time.Now()
	defer func() {
		RecordOperation(p.Type(), "get", time.Since(start), err)
	}()

	if path == "" {
		return nil, ErrInvalidPath
	}

	values, err := p.client.KV().Read(ctx, p.mountPoint, path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		return nil, fmt.Errorf("failed to read secret from vault: %w", err)
	}

	data := make(map[string][]byte, len(values))
	for k, v := range values {
		if strVal, ok := v.(string); ok {
			data[k] = []byte(strVal)
			continue
		}
		encoded, marshalErr := json.Marshal(v)
		if marshalErr != nil {
			p.logger.Warn("skipping unencodable secret value",
				observability.String("path", path),
				observability.String("key", k),
				observability.Error(marshalErr),
			)
			continue
		}
		data[k] = encoded
	}

	result := &Secret{
		Name: path,
		Data: data,
		Metadata: map[string]string{
			"source": "vault",
			"mount":  p.mountPoint,
		},
	}

	p.logger.Debug("secret retrieved",
		observability.String("path", path),
		observability.Int("keys", len(data)),
	)

	return result, nil
}

// ListSecrets lists secret names under a path in the KV v2 engine.
func (p *VaultProvider) ListSecrets(ctx context.Context, path string) (names []string, err error) {
	start := time.Now()
	defer func() {
		RecordOperation(p.Type(), "list", time.Since(start), err)
	}()

	names, err = p.client.KV().List(ctx, p.mountPoint, path)
	if err != nil {
		return nil, fmt.Errorf("failed to list secrets from vault: %w", err)
	}

	return names, nil
}

// WriteSecret writes a secret to the KV v2 engine.
func (p *VaultProvider) WriteSecret(ctx context.Context, path string, data map[string][]byte) (err error) {
	start := time.Now()
	defer func() {
		RecordOperation(p.Type(), "write", time.Since(start), err)
	}()

	if path == "" {
		return ErrInvalidPath
	}

	values := make(map[string]interface{}, len(data))
	for k, v := range data {
		values[k] = string(v)
	}

	if err := p.client.KV().Write(ctx, p.mountPoint, path, values); err != nil {
		return fmt.Errorf("failed to write secret to vault: %w", err)
	}

	p.logger.Info("secret written", observability.String("path", path))

	return nil
}

// DeleteSecret deletes a secret from the KV v2 engine.
func (p *VaultProvider) DeleteSecret(ctx context.Context, path string) (err error) {
	start := time.Now()
	defer func() {
		RecordOperation(p.Type(), "delete", time.Since(start), err)
	}()

	if path == "" {
		return ErrInvalidPath
	}

	if err := p.client.KV().Delete(ctx, p.mountPoint, path); err != nil {
		return fmt.Errorf("failed to delete secret from vault: %w", err)
	}

	p.logger.Info("secret deleted", observability.String("path", path))

	return nil
}

// IsReadOnly returns false as Vault supports writes.
func (p *VaultProvider) IsReadOnly() bool {
	return false
}

// HealthCheck checks Vault connectivity and readiness.
func (p *VaultProvider) HealthCheck(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		RecordHealthStatus(p.Type(), err == nil)
		RecordOperation(p.Type(), "health_check", time.Since(start), err)
	}()

	status, err := p.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if !status.Initialized || status.Sealed {
		return fmt.Errorf("%w: vault not ready (initialized=%t, sealed=%t)",
			ErrProviderUnavailable, status.Initialized, status.Sealed)
	}

	return nil
}

// Close releases the underlying Vault client.
func (p *VaultProvider) Close() error {
	return p.client.Close()
}
