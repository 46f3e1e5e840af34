package main

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/vyrodovalexey/avkms/internal/config"
	"github.com/vyrodovalexey/avkms/internal/keyprovider"
	"github.com/vyrodovalexey/avkms/internal/observability"
)

// reloadTimeout bounds a single credential reload, including secret
// resolution for new providers.
const reloadTimeout = 30 * time.Second

// reloadMetrics holds Prometheus metrics for configuration reload
// operations. All collectors are registered with the sidecar's custom
// registry so they appear on the /metrics endpoint.
type reloadMetrics struct {
	configReloadTotal       *prometheus.CounterVec
	configReloadDuration    prometheus.Histogram
	configReloadLastSuccess prometheus.Gauge
	configWatcherStatus     prometheus.Gauge
}

// newReloadMetrics creates reload metrics and registers them with the
// provided Metrics instance's custom registry.
func newReloadMetrics(m *observability.Metrics) *reloadMetrics {
	rm := &reloadMetrics{
		configReloadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "kms",
				Name:      "config_reload_total",
				Help: "Total number of " +
					"configuration reloads",
			},
			[]string{"result"},
		),
		configReloadDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "kms",
				Name: "config_reload_" +
					"duration_seconds",
				Help: "Duration of configuration " +
					"reload operations",
				Buckets: []float64{
					.01, .05, .1, .25, .5, 1, 2.5, 5,
				},
			},
		),
		configReloadLastSuccess: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kms",
				Name: "config_reload_" +
					"last_success_timestamp",
				Help: "Timestamp of last successful " +
					"config reload",
			},
		),
		configWatcherStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "kms",
				Name:      "config_watcher_running",
				Help: "Whether the config file " +
					"watcher is running (1=running, 0=stopped)",
			},
		),
	}

	// Register all reload metrics with the custom registry so they
	// appear on the sidecar's /metrics endpoint.
	collectors := []prometheus.Collector{
		rm.configReloadTotal,
		rm.configReloadDuration,
		rm.configReloadLastSuccess,
		rm.configWatcherStatus,
	}
	for _, c := range collectors {
		// Ignore duplicate registration errors (safe because descriptors
		// are identical when re-registered).
		_ = m.RegisterCollector(c)
	}

	return rm
}

// ensureReloadMetrics returns the application's reload metrics,
// lazily initializing them with a standalone registry when the
// application was created without an observability.Metrics instance
// (e.g. in tests).
func ensureReloadMetrics(app *application) *reloadMetrics {
	if app.reloadMetrics != nil {
		return app.reloadMetrics
	}
	// Create a standalone metrics instance for the reload metrics.
	// This path is only hit in tests that construct application
	// structs without calling initApplication.
	m := observability.NewMetrics("kms")
	app.reloadMetrics = newReloadMetrics(m)
	return app.reloadMetrics
}

// startConfigWatcher starts the configuration watcher.
func startConfigWatcher(
	ctx context.Context,
	app *application,
	configPath string,
	logger observability.Logger,
) *config.Watcher {
	rm := ensureReloadMetrics(app)

	watcher, err := config.NewWatcher(configPath, func(newCfg *config.Config) {
		logger.Info("configuration changed, reloading")
		reloadCredentials(ctx, app, newCfg, logger)
	}, config.WithLogger(logger))

	if err != nil {
		logger.Warn("failed to create config watcher", observability.Error(err))
		rm.configWatcherStatus.Set(0)
		return nil
	}

	if err := watcher.Start(ctx); err != nil {
		logger.Warn("failed to start config watcher", observability.Error(err))
		rm.configWatcherStatus.Set(0)
		return watcher
	}

	rm.configWatcherStatus.Set(1)
	return watcher
}

// reloadCredentials rebuilds the credential set from new config and
// swaps it into the running server. Providers whose identity settings
// are unchanged are shared through the registry, so a reload does not
// discard their cached tokens.
//
// NOTE: only the credential set is hot-reloaded. The HTTP listener,
// the token cache and the secrets provider are created once at
// startup; changes to those sections require a sidecar restart.
func reloadCredentials(
	ctx context.Context,
	app *application,
	newCfg *config.Config,
	logger observability.Logger,
) {
	start := time.Now()
	rm := ensureReloadMetrics(app)

	timeoutCtx, cancel := context.WithTimeout(ctx, reloadTimeout)
	defer cancel()

	env := &keyprovider.Environment{
		Logger:      logger,
		Resolver:    app.resolver,
		Breakers:    app.breakers,
		CertMetrics: app.certMetrics,
	}

	entries, err := buildEntries(timeoutCtx, app.registry, env, newCfg.Spec.Credentials)
	if err != nil {
		logger.Error("failed to rebuild credential providers",
			observability.Error(err),
		)
		rm.configReloadTotal.WithLabelValues("error").Inc()
		rm.configReloadDuration.Observe(
			time.Since(start).Seconds(),
		)
		return
	}

	// Release the displaced references. Providers still referenced by
	// the new entries survive; providers removed from the configuration
	// are closed for real.
	displaced := app.credentials.Replace(entries)
	for _, entry := range displaced {
		if err := entry.Provider.Close(); err != nil {
			logger.Warn("failed to release displaced credential provider",
				observability.String("credential", entry.Credential),
				observability.Error(err),
			)
		}
	}

	if serverConfigChanged(app.config, newCfg) {
		logger.Warn("server configuration has changed but the listener is NOT hot-reloaded; " +
			"restart the sidecar to apply server changes")
	}

	if cacheConfigChanged(app.config, newCfg) {
		logger.Warn("cache configuration has changed but the token cache is NOT hot-reloaded; " +
			"restart the sidecar to apply cache changes")
	}

	if secretsConfigChanged(app.config, newCfg) {
		logger.Warn("secrets configuration has changed but the secrets provider is NOT hot-reloaded; " +
			"restart the sidecar to apply secrets changes")
	}

	app.config = newCfg

	rm.configReloadTotal.WithLabelValues("success").Inc()
	rm.configReloadDuration.Observe(
		time.Since(start).Seconds(),
	)
	rm.configReloadLastSuccess.SetToCurrentTime()

	logger.Info("credentials reloaded",
		observability.Int("credentials", len(entries)),
		observability.Int("released", len(displaced)),
	)
}

// configSectionHash computes a SHA-256 hash of a configuration section
// for fast change detection. Falls back to reflect.DeepEqual when JSON
// marshaling fails (e.g. for types with unexported fields).
func configSectionHash(v interface{}) ([sha256.Size]byte, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return [sha256.Size]byte{}, false
	}
	return sha256.Sum256(data), true
}

// configSectionChanged compares two configuration sections using a
// SHA-256 hash for O(n) performance instead of reflect.DeepEqual's
// recursive comparison. Falls back to reflect.DeepEqual when hashing
// is not possible.
func configSectionChanged(oldSection, newSection interface{}) bool {
	oldHash, oldOK := configSectionHash(oldSection)
	newHash, newOK := configSectionHash(newSection)
	if oldOK && newOK {
		return oldHash != newHash
	}
	// Fallback to reflect.DeepEqual when hashing fails
	return !reflect.DeepEqual(oldSection, newSection)
}

// serverConfigChanged checks if the server section has changed between configs.
func serverConfigChanged(oldCfg, newCfg *config.Config) bool {
	if oldCfg == nil || newCfg == nil {
		return oldCfg != newCfg
	}
	return configSectionChanged(oldCfg.Spec.Server, newCfg.Spec.Server)
}

// cacheConfigChanged checks if the cache section has changed between configs.
func cacheConfigChanged(oldCfg, newCfg *config.Config) bool {
	if oldCfg == nil || newCfg == nil {
		return oldCfg != newCfg
	}
	return configSectionChanged(oldCfg.Spec.Cache, newCfg.Spec.Cache)
}

// secretsConfigChanged checks if the secrets section has changed between configs.
func secretsConfigChanged(oldCfg, newCfg *config.Config) bool {
	if oldCfg == nil || newCfg == nil {
		return oldCfg != newCfg
	}
	return configSectionChanged(oldCfg.Spec.Secrets, newCfg.Spec.Secrets)
}
