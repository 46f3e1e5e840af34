package secrets

import (
	"context"
	"fmt"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/vyrodovalexey/avkms/internal/observability"
)

// KubernetesProviderConfig holds configuration for the Kubernetes secrets provider.
type KubernetesProviderConfig struct {
	// Client is the Kubernetes client.
	Client client.Client
	// DefaultNamespace is the namespace for secrets without an explicit namespace.
	DefaultNamespace string
	// Logger is the logger instance.
	Logger observability.Logger
}

// KubernetesProvider implements the Provider interface using Kubernetes Secrets.
type KubernetesProvider struct {
	client           client.Client
	defaultNamespace string
	logger           observability.Logger
}

// NewKubernetesProvider creates a new Kubernetes secrets provider.
func NewKubernetesProvider(cfg *KubernetesProviderConfig) (*KubernetesProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrProviderNotConfigured)
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("%w: kubernetes client is required", ErrProviderNotConfigured)
	}

	defaultNs := cfg.DefaultNamespace
	if defaultNs == "" {
		defaultNs = "default"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &KubernetesProvider{
		client:           cfg.Client,
		defaultNamespace: defaultNs,
		logger:           logger.With(observability.String("provider", "kubernetes")),
	}, nil
}

// Type returns the provider type.
func (p *KubernetesProvider) Type() ProviderType {
	return ProviderTypeKubernetes
}

// parsePath parses a secret path into namespace and name.
// Supported formats:
//   - "secret-name" uses the default namespace
//   - "namespace/secret-name" uses the given namespace
func (p *KubernetesProvider) parsePath(path string) (namespace, name string, err error) {
	if path == "" {
		return "", "", ErrInvalidPath
	}

	parts := strings.SplitN(path, "/", 2)
	if len(parts) == 1 {
		return p.defaultNamespace, parts[0], nil
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: invalid path format: %s", ErrInvalidPath, path)
	}
	return parts[0], parts[1], nil
}

// convertSecret converts a Kubernetes secret to the provider Secret type.
func convertSecret(secret *corev1.Secret, namespace, name string) *Secret {
	result := &Secret{
		Name:      name,
		Namespace: namespace,
		Data:      secret.Data,
		Metadata:  make(map[string]string),
	}

	for k, v := range secret.Labels {
		result.Metadata["label."+k] = v
	}
	for k, v := range secret.Annotations {
		result.Metadata["annotation."+k] = v
	}

	createdAt := secret.CreationTimestamp.Time
	result.CreatedAt = &createdAt
	result.Version = secret.ResourceVersion

	return result
}

// GetSecret retrieves a secret by path.
func (p *KubernetesProvider) GetSecret(ctx context.Context, path string) (secret *Secret, err error) {
	start := time.Now()
	defer func() {
		RecordOperation(p.Type(), "get", time.Since(start), err)
	}()

	namespace, name, err := p.parsePath(path)
	if err != nil {
		return nil, err
	}

	k8sSecret := &corev1.Secret{}
	if err := p.client.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, k8sSecret); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrSecretNotFound, namespace, name)
		}
		return nil, fmt.Errorf("failed to get secret %s/%s: %w", namespace, name, err)
	}

	result := convertSecret(k8sSecret, namespace, name)

	p.logger.Debug("secret retrieved",
		observability.String("namespace", namespace),
		observability.String("name", name),
		observability.Int("keys", len(result.Data)),
	)

	return result, nil
}

// ListSecrets lists secret names in a namespace. The path is the namespace,
// or empty for the default namespace.
func (p *KubernetesProvider) ListSecrets(ctx context.Context, path string) (names []string, err error) {
	start := time.Now()
	defer func() {
		RecordOperation(p.Type(), "list", time.Since(start), err)
	}()

	namespace := path
	if namespace == "" {
		namespace = p.defaultNamespace
	}

	secretList := &corev1.SecretList{}
	if err := p.client.List(ctx, secretList, client.InNamespace(namespace)); err != nil {
		return nil, fmt.Errorf("failed to list secrets in namespace %s: %w", namespace, err)
	}

	names = make([]string, 0, len(secretList.Items))
	for _, secret := range secretList.Items {
		names = append(names, secret.Name)
	}

	return names, nil
}

// WriteSecret creates or updates a secret.
func (p *KubernetesProvider) WriteSecret(ctx context.Context, path string, data map[string][]byte) (err error) {
	start := time.Now()
	defer func() {
		RecordOperation(p.Type(), "write", time.Since(start), err)
	}()

	namespace, name, err := p.parsePath(path)
	if err != nil {
		return err
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
		},
		Type: corev1.SecretTypeOpaque,
		Data: data,
	}

	existing := &corev1.Secret{}
	getErr := p.client.Get(ctx, client.ObjectKey{Namespace: namespace, Name: name}, existing)

	if getErr == nil {
		secret.ResourceVersion = existing.ResourceVersion
		if err := p.client.Update(ctx, secret); err != nil {
			return fmt.Errorf("failed to update secret %s/%s: %w", namespace, name, err)
		}
		p.logger.Info("secret updated",
			observability.String("namespace", namespace),
			observability.String("name", name),
		)
		return nil
	}

	if err := p.client.Create(ctx, secret); err != nil {
		return fmt.Errorf("failed to create secret %s/%s: %w", namespace, name, err)
	}
	p.logger.Info("secret created",
		observability.String("namespace", namespace),
		observability.String("name", name),
	)

	return nil
}

// DeleteSecret deletes a secret. Deleting an absent secret is not an error.
func (p *KubernetesProvider) DeleteSecret(ctx context.Context, path string) (err error) {
	start := time.Now()
	defer func() {
		RecordOperation(p.Type(), "delete", time.Since(start), err)
	}()

	namespace, name, err := p.parsePath(path)
	if err != nil {
		return err
	}

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
		},
	}

	if err := p.client.Delete(ctx, secret); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete secret %s/%s: %w", namespace, name, err)
	}

	p.logger.Info("secret deleted",
		observability.String("namespace", namespace),
		observability.String("name", name),
	)

	return nil
}

// IsReadOnly returns false as Kubernetes secrets support writes.
func (p *KubernetesProvider) IsReadOnly() bool {
	return false
}

// HealthCheck checks that the Kubernetes API is accessible by listing a
// single secret in the default namespace.
func (p *KubernetesProvider) HealthCheck(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		RecordHealthStatus(p.Type(), err == nil)
		RecordOperation(p.Type(), "health_check", time.Since(start), err)
	}()

	secretList := &corev1.SecretList{}
	if err := p.client.List(ctx, secretList, client.InNamespace(p.defaultNamespace), client.Limit(1)); err != nil {
		return fmt.Errorf("kubernetes API health check failed: %w", err)
	}

	return nil
}

// Close cleans up provider resources.
func (p *KubernetesProvider) Close() error {
	return nil
}
