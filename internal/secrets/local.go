package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/avkms/internal/observability"
)

// LocalProviderConfig holds configuration for the local file secrets provider.
type LocalProviderConfig struct {
	// BasePath is the base directory for secrets.
	BasePath string
	// Logger is the logger instance.
	Logger observability.Logger
}

// LocalProvider implements the Provider interface using local files.
// Secrets are stored in a directory structure:
//   - base-path/secret-name/key (each key is a separate file)
//   - base-path/secret-name.yaml (single file with all keys)
//   - base-path/secret-name.json (single file with all keys)
type LocalProvider struct {
	basePath string
	logger   observability.Logger
}

// NewLocalProvider creates a new local file secrets provider.
func NewLocalProvider(cfg *LocalProviderConfig) (*LocalProvider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", ErrProviderNotConfigured)
	}
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("%w: base path is required", ErrProviderNotConfigured)
	}

	info, err := os.Stat(cfg.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: base path does not exist: %s", ErrProviderNotConfigured, cfg.BasePath)
		}
		return nil, fmt.Errorf("%w: failed to access base path: %w", ErrProviderNotConfigured, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: base path is not a directory: %s", ErrProviderNotConfigured, cfg.BasePath)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = observability.NopLogger()
	}

	return &LocalProvider{
		basePath: cfg.BasePath,
		logger:   logger.With(observability.String("provider", "local")),
	}, nil
}

// Type returns the provider type.
func (p *LocalProvider) Type() ProviderType {
	return ProviderTypeLocal
}

// cleanSecretPath validates a secret path and returns a cleaned version.
// Paths escaping the base directory are rejected.
func cleanSecretPath(path string) (string, error) {
	if path == "" {
		return "", ErrInvalidPath
	}

	cleanPath := filepath.Clean(path)
	if strings.Contains(cleanPath, "..") || filepath.IsAbs(cleanPath) {
		return "", fmt.Errorf("%w: path escapes base directory", ErrInvalidPath)
	}

	return cleanPath, nil
}

// GetSecret retrieves a secret by path. It tries the directory format first,
// then YAML, YML, and JSON single-file formats.
func (p *LocalProvider) GetSecret(_ context.Context, path string) (secret *Secret, err error) {
	start := time.Now()
	defer func() {
		RecordOperation(p.Type(), "get", time.Since(start), err)
	}()

	cleanPath, err := cleanSecretPath(path)
	if err != nil {
		return nil, err
	}

	if secret, found := p.tryReadFormats(cleanPath); found {
		p.logger.Debug("secret read",
			observability.String("path", path),
			observability.Int("keys", len(secret.Data)),
		)
		return secret, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, path)
}

// tryReadFormats attempts to read a secret from the supported layouts.
func (p *LocalProvider) tryReadFormats(cleanPath string) (*Secret, bool) {
	dirPath := filepath.Join(p.basePath, cleanPath)
	if info, err := os.Stat(dirPath); err == nil && info.IsDir() {
		if secret, err := p.readSecretFromDirectory(dirPath, cleanPath); err == nil {
			return secret, true
		}
	}

	formats := []struct {
		ext    string
		reader func(string, string) (*Secret, error)
	}{
		{".yaml", p.readSecretFromYAML},
		{".yml", p.readSecretFromYAML},
		{".json", p.readSecretFromJSON},
	}

	for _, format := range formats {
		filePath := filepath.Join(p.basePath, cleanPath+format.ext)
		if _, err := os.Stat(filePath); err == nil {
			if secret, err := format.reader(filePath, cleanPath); err == nil {
				return secret, true
			}
		}
	}

	return nil, false
}

// readSecretFromDirectory reads a secret from a directory where each file is a key.
func (p *LocalProvider) readSecretFromDirectory(dirPath, name string) (*Secret, error) {
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	data := make(map[string][]byte)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		keyName := entry.Name()
		content, err := os.ReadFile(filepath.Clean(filepath.Join(dirPath, keyName)))
		if err != nil {
			p.logger.Warn("failed to read key file",
				observability.String("file", keyName),
				observability.Error(err),
			)
			continue
		}

		// Trim trailing newline (common in mounted secret files)
		data[keyName] = []byte(strings.TrimSuffix(string(content), "\n"))
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("no key files found in %s", dirPath)
	}

	var updatedAt *time.Time
	if info, err := os.Stat(dirPath); err == nil {
		modTime := info.ModTime()
		updatedAt = &modTime
	}

	return &Secret{
		Name:      name,
		Data:      data,
		Metadata:  map[string]string{"source": "directory"},
		UpdatedAt: updatedAt,
	}, nil
}

// readSecretFromYAML reads a secret from a YAML file.
func (p *LocalProvider) readSecretFromYAML(filePath, name string) (*Secret, error) {
	content, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to read YAML file: %w", err)
	}

	var rawData map[string]interface{}
	if err := yaml.Unmarshal(content, &rawData); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return p.secretFromRawData(rawData, filePath, name, "yaml"), nil
}

// readSecretFromJSON reads a secret from a JSON file.
func (p *LocalProvider) readSecretFromJSON(filePath, name string) (*Secret, error) {
	content, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON file: %w", err)
	}

	var rawData map[string]interface{}
	if err := json.Unmarshal(content, &rawData); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return p.secretFromRawData(rawData, filePath, name, "json"), nil
}

// secretFromRawData converts parsed file data into a Secret. String values
// are stored directly; other types are re-encoded as JSON.
func (p *LocalProvider) secretFromRawData(rawData map[string]interface{}, filePath, name, source string) *Secret {
	data := make(map[string][]byte)
	for k, v := range rawData {
		switch val := v.(type) {
		case string:
			data[k] = []byte(val)
		default:
			raw, err := json.Marshal(val)
			if err != nil {
				p.logger.Warn("failed to marshal secret value",
					observability.String("key", k),
					observability.Error(err),
				)
				continue
			}
			data[k] = raw
		}
	}

	var updatedAt *time.Time
	if info, err := os.Stat(filePath); err == nil {
		modTime := info.ModTime()
		updatedAt = &modTime
	}

	return &Secret{
		Name:      name,
		Data:      data,
		Metadata:  map[string]string{"source": source, "file": filePath},
		UpdatedAt: updatedAt,
	}
}

// ListSecrets lists secrets under the base path. Directories and files with
// recognized extensions count as secrets.
func (p *LocalProvider) ListSecrets(_ context.Context, path string) (names []string, err error) {
	start := time.Now()
	defer func() {
		RecordOperation(p.Type(), "list", time.Since(start), err)
	}()

	searchPath := p.basePath
	if path != "" {
		cleanPath, cleanErr := cleanSecretPath(path)
		if cleanErr != nil {
			return nil, cleanErr
		}
		searchPath = filepath.Join(p.basePath, cleanPath)
	}

	entries, err := os.ReadDir(searchPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list secrets: %w", err)
	}

	seen := make(map[string]bool)
	for _, entry := range entries {
		name := entry.Name()

		if entry.IsDir() {
			seen[name] = true
			continue
		}

		for _, ext := range []string{".yaml", ".yml", ".json"} {
			if strings.HasSuffix(name, ext) {
				seen[strings.TrimSuffix(name, ext)] = true
				break
			}
		}
	}

	names = make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}

	return names, nil
}

// WriteSecret writes a secret to a YAML file under the base path.
func (p *LocalProvider) WriteSecret(_ context.Context, path string, data map[string][]byte) (err error) {
	start := time.Now()
	defer func() {
		RecordOperation(p.Type(), "write", time.Since(start), err)
	}()

	cleanPath, err := cleanSecretPath(path)
	if err != nil {
		return err
	}

	stringData := make(map[string]string, len(data))
	for k, v := range data {
		stringData[k] = string(v)
	}

	yamlContent, err := yaml.Marshal(stringData)
	if err != nil {
		return fmt.Errorf("failed to marshal secret: %w", err)
	}

	filePath := filepath.Join(p.basePath, cleanPath+".yaml")
	if err := os.MkdirAll(filepath.Dir(filePath), 0o750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(filePath, yamlContent, 0o600); err != nil {
		return fmt.Errorf("failed to write secret: %w", err)
	}

	p.logger.Info("secret written",
		observability.String("path", path),
	)

	return nil
}

// DeleteSecret deletes a secret in any of the supported layouts.
func (p *LocalProvider) DeleteSecret(_ context.Context, path string) (err error) {
	start := time.Now()
	defer func() {
		RecordOperation(p.Type(), "delete", time.Since(start), err)
	}()

	cleanPath, err := cleanSecretPath(path)
	if err != nil {
		return err
	}

	dirPath := filepath.Join(p.basePath, cleanPath)
	if info, statErr := os.Stat(dirPath); statErr == nil && info.IsDir() {
		if err := os.RemoveAll(dirPath); err != nil {
			return fmt.Errorf("failed to delete secret directory: %w", err)
		}
	}

	for _, ext := range []string{".yaml", ".yml", ".json"} {
		filePath := filepath.Join(p.basePath, cleanPath+ext)
		if _, statErr := os.Stat(filePath); statErr == nil {
			if err := os.Remove(filePath); err != nil {
				return fmt.Errorf("failed to delete secret file: %w", err)
			}
		}
	}

	p.logger.Info("secret deleted",
		observability.String("path", path),
	)

	return nil
}

// IsReadOnly returns false as the local provider supports writes.
func (p *LocalProvider) IsReadOnly() bool {
	return false
}

// HealthCheck checks that the base path is an accessible directory.
func (p *LocalProvider) HealthCheck(_ context.Context) (err error) {
	start := time.Now()
	defer func() {
		RecordHealthStatus(p.Type(), err == nil)
		RecordOperation(p.Type(), "health_check", time.Since(start), err)
	}()

	info, err := os.Stat(p.basePath)
	if err != nil {
		return fmt.Errorf("base path not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("base path is not a directory: %s", p.basePath)
	}

	return nil
}

// Close cleans up provider resources.
func (p *LocalProvider) Close() error {
	return nil
}
