package vault

import (
	"context"
	"fmt"
	"time"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/vyrodovalexey/avkms/internal/observability"
)

// KVClient provides KV secrets engine operations.
type KVClient interface {
	// Read reads a secret from KV.
	Read(ctx context.Context, mount, path string) (map[string]interface{}, error)

	// Write writes a secret to KV.
	Write(ctx context.Context, mount, path string, data map[string]interface{}) error

	// Delete deletes a secret from KV.
	Delete(ctx context.Context, mount, path string) error

	// List lists secrets at a path.
	List(ctx context.Context, mount, path string) ([]string, error)
}

// kvClient implements KVClient.
type kvClient struct {
	client *vaultClient
}

// newKVClient creates a new KV client.
func newKVClient(client *vaultClient) *kvClient {
	return &kvClient{client: client}
}

// Read reads a secret from KV.
func (k *kvClient) Read(ctx context.Context, mount, path string) (map[string]interface{}, error) {
	if mount == "" {
		return nil, NewVaultError("kv_read", "", "mount is required")
	}

	if path == "" {
		return nil, NewVaultError("kv_read", "", "path is required")
	}

	start := time.Now()
	fullPath := fmt.Sprintf("%s/data/%s", mount, path)

	var secret *vaultapi.Secret
	err := k.client.executeWithRetry(ctx, "kv_read", func() error {
		var err error
		secret, err = k.client.api.Logical().ReadWithContext(ctx, fullPath)
		return err
	})

	if err != nil {
		k.client.metrics.RecordRequest("kv_read", statusError, time.Since(start))
		return nil, NewVaultErrorWithCause("kv_read", fullPath, "failed to read secret", err)
	}

	if secret == nil || secret.Data == nil {
		k.client.metrics.RecordRequest("kv_read", statusError, time.Since(start))
		return nil, WrapError(ErrSecretNotFound, fullPath)
	}

	// KV v2 wraps data in a "data" key. A present but nil value means the
	// secret was soft-deleted.
	dataValue, hasData := secret.Data["data"]
	if hasData && dataValue == nil {
		k.client.metrics.RecordRequest("kv_read", statusError, time.Since(start))
		return nil, WrapError(ErrSecretNotFound, fullPath)
	}

	data, ok := dataValue.(map[string]interface{})
	if !ok {
		// KV v1 returns the data directly
		data = secret.Data
	}

	k.client.metrics.RecordRequest("kv_read", statusSuccess, time.Since(start))
	k.client.logger.Debug("secret read",
		observability.String("path", fullPath),
	)

	return data, nil
}

// Write writes a secret to KV.
func (k *kvClient) Write(ctx context.Context, mount, path string, data map[string]interface{}) error {
	if mount == "" {
		return NewVaultError("kv_write", "", "mount is required")
	}

	if path == "" {
		return NewVaultError("kv_write", "", "path is required")
	}

	if data == nil {
		return NewVaultError("kv_write", "", "data is required")
	}

	start := time.Now()
	fullPath := fmt.Sprintf("%s/data/%s", mount, path)

	// KV v2 requires data to be wrapped
	wrappedData := map[string]interface{}{
		"data": data,
	}

	err := k.client.executeWithRetry(ctx, "kv_write", func() error {
		_, err := k.client.api.Logical().WriteWithContext(ctx, fullPath, wrappedData)
		return err
	})

	if err != nil {
		k.client.metrics.RecordRequest("kv_write", statusError, time.Since(start))
		return NewVaultErrorWithCause("kv_write", fullPath, "failed to write secret", err)
	}

	k.client.metrics.RecordRequest("kv_write", statusSuccess, time.Since(start))
	k.client.logger.Debug("secret written",
		observability.String("path", fullPath),
	)

	return nil
}

// Delete deletes a secret from KV.
func (k *kvClient) Delete(ctx context.Context, mount, path string) error {
	if mount == "" {
		return NewVaultError("kv_delete", "", "mount is required")
	}

	if path == "" {
		return NewVaultError("kv_delete", "", "path is required")
	}

	start := time.Now()
	fullPath := fmt.Sprintf("%s/data/%s", mount, path)

	err := k.client.executeWithRetry(ctx, "kv_delete", func() error {
		_, err := k.client.api.Logical().DeleteWithContext(ctx, fullPath)
		return err
	})

	if err != nil {
		k.client.metrics.RecordRequest("kv_delete", statusError, time.Since(start))
		return NewVaultErrorWithCause("kv_delete", fullPath, "failed to delete secret", err)
	}

	k.client.metrics.RecordRequest("kv_delete", statusSuccess, time.Since(start))
	k.client.logger.Debug("secret deleted",
		observability.String("path", fullPath),
	)

	return nil
}

// List lists secrets at a path.
func (k *kvClient) List(ctx context.Context, mount, path string) ([]string, error) {
	if mount == "" {
		return nil, NewVaultError("kv_list", "", "mount is required")
	}

	start := time.Now()
	fullPath := fmt.Sprintf("%s/metadata/%s", mount, path)

	secret, err := k.client.api.Logical().ListWithContext(ctx, fullPath)
	if err != nil {
		k.client.metrics.RecordRequest("kv_list", statusError, time.Since(start))
		return nil, NewVaultErrorWithCause("kv_list", fullPath, "failed to list secrets", err)
	}

	if secret == nil || secret.Data == nil {
		k.client.metrics.RecordRequest("kv_list", statusSuccess, time.Since(start))
		return []string{}, nil
	}

	keys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		k.client.metrics.RecordRequest("kv_list", statusSuccess, time.Since(start))
		return []string{}, nil
	}

	result := make([]string, 0, len(keys))
	for _, key := range keys {
		if keyStr, ok := key.(string); ok {
			result = append(result, keyStr)
		}
	}

	k.client.metrics.RecordRequest("kv_list", statusSuccess, time.Since(start))
	k.client.logger.Debug("secrets listed",
		observability.String("path", fullPath),
		observability.Int("count", len(result)),
	)

	return result, nil
}

// disabledKVClient is a KV client that returns ErrVaultDisabled.
type disabledKVClient struct{}

func (c *disabledKVClient) Read(_ context.Context, _, _ string) (map[string]interface{}, error) {
	return nil, ErrVaultDisabled
}

func (c *disabledKVClient) Write(_ context.Context, _, _ string, _ map[string]interface{}) error {
	return ErrVaultDisabled
}

func (c *disabledKVClient) Delete(_ context.Context, _, _ string) error {
	return ErrVaultDisabled
}

func (c *disabledKVClient) List(_ context.Context, _, _ string) ([]string, error) {
	return nil, ErrVaultDisabled
}

// Ensure implementations satisfy the interface.
var (
	_ KVClient = (*kvClient)(nil)
	_ KVClient = (*disabledKVClient)(nil)
)
