package secrets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vyrodovalexey/avkms/internal/observability"
)

// DefaultSecretKey is the key looked up when a reference has no fragment.
const DefaultSecretKey = "value"

// Reference schemes understood by the Resolver.
const (
	SchemeEnv        = "env"
	SchemeFile       = "file"
	SchemeVault      = "vault"
	SchemeKubernetes = "k8s"
)

// ResolverConfig holds configuration for a Resolver.
type ResolverConfig struct {
	// EnvPrefix is the prefix applied to env:// references.
	// Default: "AVKMS_SECRET_"
	EnvPrefix string
	// Vault serves vault:// references. Optional.
	Vault Provider
	// Kubernetes serves k8s:// references. Optional.
	Kubernetes Provider
	// Logger is the logger instance.
	Logger observability.Logger
}

// Resolver turns URI-style secret references into secret material.
//
// Supported forms:
//
//	env://NAME[#key]          environment variable (prefixed, uppercased)
//	file:///abs/path          raw file contents, trailing newline trimmed
//	file:///abs/path#key      structured secret file or directory
//	vault://path[#key]        KV v2 secret under the provider's mount
//	k8s://namespace/name#key  Kubernetes secret
//
// When no key fragment is given, the key "value" is used. A string that
// carries no known scheme resolves to itself, so configuration values may
// be either inline material or references.
type Resolver struct {
	env        Provider
	vault      Provider
	kubernetes Provider
	logger     observability.Logger
}

// NewResolver creates a Resolver. The env provider is always available;
// vault:// and k8s:// references fail until a provider is configured for
// them.
func NewResolver(cfg *ResolverConfig) (*Resolver, error) {
	if cfg == nil {
		cfg = &ResolverConfig{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	envProvider, err := NewEnvProvider(&EnvProviderConfig{
		Prefix: cfg.EnvPrefix,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	return &Resolver{
		env:        envProvider,
		vault:      cfg.Vault,
		kubernetes: cfg.Kubernetes,
		logger:     logger.With(observability.String("component", "secret_resolver")),
	}, nil
}

// IsReference reports whether s carries a scheme the Resolver understands.
func IsReference(s string) bool {
	scheme, _, found := strings.Cut(s, "://")
	if !found {
		return false
	}
	switch scheme {
	case SchemeEnv, SchemeFile, SchemeVault, SchemeKubernetes:
		return true
	default:
		return false
	}
}

// reference is a parsed secret reference.
type reference struct {
	scheme string
	path   string
	// key is the data key to extract. Empty for raw file references.
	key string
}

func parseReference(ref string) (*reference, error) {
	scheme, rest, found := strings.Cut(ref, "://")
	if !found {
		return nil, fmt.Errorf("%w: missing scheme in reference %q", ErrInvalidPath, ref)
	}

	path, key, hasKey := strings.Cut(rest, "#")
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in reference %q", ErrInvalidPath, ref)
	}
	if hasKey && key == "" {
		return nil, fmt.Errorf("%w: empty key in reference %q", ErrInvalidPath, ref)
	}

	switch scheme {
	case SchemeEnv, SchemeVault, SchemeKubernetes:
		if key == "" {
			key = DefaultSecretKey
		}
	case SchemeFile:
		// Key stays empty for raw file references.
	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q in reference %q", ErrInvalidPath, scheme, ref)
	}

	return &reference{scheme: scheme, path: path, key: key}, nil
}

// Resolve returns the secret material a reference points at. Strings that
// are not references resolve to their own bytes.
func (r *Resolver) Resolve(ctx context.Context, ref string) ([]byte, error) {
	if !IsReference(ref) {
		return []byte(ref), nil
	}

	parsed, err := parseReference(ref)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	value, err := r.resolve(ctx, parsed)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("secret reference resolved",
		observability.String("scheme", parsed.scheme),
		observability.String("path", parsed.path),
		observability.Duration("duration", time.Since(start)),
	)

	return value, nil
}

// ResolveString is Resolve with a string result.
func (r *Resolver) ResolveString(ctx context.Context, ref string) (string, error) {
	value, err := r.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	return string(value), nil
}

func (r *Resolver) resolve(ctx context.Context, ref *reference) ([]byte, error) {
	switch ref.scheme {
	case SchemeEnv:
		return r.resolveFromProvider(ctx, r.env, ref)

	case SchemeFile:
		return r.resolveFile(ctx, ref)

	case SchemeVault:
		if r.vault == nil {
			return nil, fmt.Errorf("%w: no vault provider for reference vault://%s", ErrProviderNotConfigured, ref.path)
		}
		return r.resolveFromProvider(ctx, r.vault, ref)

	case SchemeKubernetes:
		if r.kubernetes == nil {
			return nil, fmt.Errorf("%w: no kubernetes provider for reference k8s://%s", ErrProviderNotConfigured, ref.path)
		}
		return r.resolveFromProvider(ctx, r.kubernetes, ref)

	default:
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidPath, ref.scheme)
	}
}

func (r *Resolver) resolveFromProvider(ctx context.Context, provider Provider, ref *reference) ([]byte, error) {
	secret, err := provider.GetSecret(ctx, ref.path)
	if err != nil {
		return nil, err
	}

	value, ok := secret.GetBytes(ref.key)
	if !ok {
		return nil, fmt.Errorf("%w: key %q not found in %s://%s", ErrSecretNotFound, ref.key, ref.scheme, ref.path)
	}

	return value, nil
}

// resolveFile handles file:// references. Without a key the raw file
// contents are returned. With a key the path is read as a structured
// secret (YAML, JSON or a directory of key files) via the local provider.
func (r *Resolver) resolveFile(ctx context.Context, ref *reference) ([]byte, error) {
	if !filepath.IsAbs(ref.path) {
		return nil, fmt.Errorf("%w: file reference must use an absolute path: %s", ErrInvalidPath, ref.path)
	}

	if ref.key == "" {
		content, err := os.ReadFile(ref.path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, ref.path)
			}
			return nil, fmt.Errorf("failed to read secret file %s: %w", ref.path, err)
		}
		// Trim trailing newline (common in mounted secret files).
		value := strings.TrimSuffix(string(content), "\n")
		if len(value) == 0 {
			return nil, fmt.Errorf("%w: file %s is empty", ErrSecretNotFound, ref.path)
		}
		return []byte(value), nil
	}

	base := filepath.Base(ref.path)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	provider, err := NewLocalProvider(&LocalProviderConfig{
		BasePath: filepath.Dir(ref.path),
		Logger:   r.logger,
	})
	if err != nil {
		return nil, err
	}

	secret, err := provider.GetSecret(ctx, name)
	if err != nil {
		return nil, err
	}

	value, ok := secret.GetBytes(ref.key)
	if !ok {
		return nil, fmt.Errorf("%w: key %q not found in file://%s", ErrSecretNotFound, ref.key, ref.path)
	}

	return value, nil
}
