// Package config provides configuration types and loading for the
// token sidecar.
//
// This package defines the complete configuration model, YAML loading
// with environment variable substitution, validation, and file
// watching for hot-reload support.
//
// # Features
//
//   - YAML configuration file loading
//   - Environment variable substitution with ${VAR:-default} syntax
//   - Configuration validation with detailed error reporting
//   - File watching for configuration hot-reload
//   - Credential, cache, secrets, and observability config
//
// # Configuration Loading
//
// Load configuration from a YAML file:
//
//	cfg, err := config.LoadConfig("sidecar.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := config.ValidateConfig(cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// # File Watching
//
// Watch for configuration changes:
//
//	watcher, err := config.NewWatcher(configPath, func(cfg *config.Config) {
//	    // Handle configuration update
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	watcher.Start(ctx)
package config
