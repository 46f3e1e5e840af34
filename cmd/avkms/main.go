// Package main is the entry point for the token sidecar.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vyrodovalexey/avkms/internal/config"
	"github.com/vyrodovalexey/avkms/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags)
	defer func() { _ = logger.Sync() }()

	cfg := loadAndValidateConfig(flags.configPath, logger)
	app := initApplication(cfg, logger)

	runSidecar(app, flags.configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("AVKMS_CONFIG_PATH", "configs/avkms.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("AVKMS_LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("AVKMS_LOG_FORMAT", "json"),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information and exits.
func printVersion() {
	fmt.Printf("avkms version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(flags cliFlags) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  flags.logLevel,
		Format: flags.logFormat,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting avkms",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}

	if err := config.ValidateConfig(cfg); err != nil {
		logger.Fatal("invalid configuration", observability.Error(err))
	}

	certCredentials := 0
	for i := range cfg.Spec.Credentials {
		if cfg.Spec.Credentials[i].UsesCertificate() {
			certCredentials++
		}
	}

	logger.Info("configuration loaded",
		observability.String("name", cfg.Metadata.Name),
		observability.Int("credentials", len(cfg.Spec.Credentials)),
		observability.Int("certificate_credentials", certCredentials),
		observability.Bool("cache_enabled", cfg.Spec.Cache != nil && cfg.Spec.Cache.Enabled),
		observability.String("secrets_provider", secretsProviderName(cfg)),
	)

	return cfg
}

// secretsProviderName returns the configured secrets provider name, or
// "none" when only inline references are served.
func secretsProviderName(cfg *config.Config) string {
	if cfg.Spec.Secrets == nil || cfg.Spec.Secrets.Provider == "" {
		return "none"
	}
	return cfg.Spec.Secrets.Provider
}

// initTracer initializes the tracer.
func initTracer(cfg *config.Config, logger observability.Logger) *observability.Tracer {
	tracerCfg := observability.TracerConfig{
		ServiceName:  config.DefaultTracingServiceName,
		Enabled:      false,
		SamplingRate: 1.0,
	}

	if cfg.Spec.Observability != nil && cfg.Spec.Observability.Tracing != nil {
		tracing := cfg.Spec.Observability.Tracing
		tracerCfg.Enabled = tracing.Enabled
		tracerCfg.SamplingRate = tracing.SamplingRate
		tracerCfg.OTLPEndpoint = tracing.OTLPEndpoint
		tracerCfg.ServiceName = tracing.GetServiceName()
	}

	tracer, err := observability.NewTracer(tracerCfg)
	if err != nil {
		logger.Fatal("failed to initialize tracer", observability.Error(err))
	}

	return tracer
}
