package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vyrodovalexey/avkms/internal/config"
	"github.com/vyrodovalexey/avkms/internal/observability"
)

// drainWaitDuration is how long readiness probes keep failing before
// the listener closes, giving load balancers time to notice.
const drainWaitDuration = 5 * time.Second

// runSidecar runs the token sidecar and handles shutdown.
func runSidecar(app *application, configPath string, logger observability.Logger) {
	ctx := context.Background()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- app.server.Start(ctx)
	}()

	startMetricsServerIfEnabled(app, logger)
	watcher := startConfigWatcher(ctx, app, configPath, logger)

	waitForShutdown(app, watcher, serverErrCh, logger)
}

// waitForShutdown waits for a shutdown signal or a server failure and
// performs graceful shutdown.
func waitForShutdown(
	app *application,
	watcher *config.Watcher,
	serverErrCh <-chan error,
	logger observability.Logger,
) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-serverErrCh:
		if err != nil {
			logger.Fatal("server failed", observability.Error(err))
		}
		logger.Info("server exited")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), app.config.Spec.Server.GetShutdownTimeout(),
	)
	defer cancel()

	waitForDrain(shutdownCtx, app, logger)

	if watcher != nil {
		_ = watcher.Stop()
	}

	stopCoreServices(shutdownCtx, app, logger)

	select {
	case err := <-serverErrCh:
		if err != nil {
			logger.Error("server exited with error", observability.Error(err))
		}
	default:
	}

	logger.Info("sidecar stopped")
}

// waitForDrain fails readiness probes and waits for load balancers to
// stop routing new requests before anything is torn down.
func waitForDrain(ctx context.Context, app *application, logger observability.Logger) {
	if app.healthChecker == nil {
		return
	}

	app.healthChecker.SetDraining(true)
	logger.Info("draining connections",
		observability.Duration("wait", drainWaitDuration))

	select {
	case <-time.After(drainWaitDuration):
	case <-ctx.Done():
		logger.Warn("drain wait cut short", observability.Error(ctx.Err()))
	}
}

// stopCoreServices stops the metrics server, the API server and the
// remaining components in dependency order.
func stopCoreServices(ctx context.Context, app *application, logger observability.Logger) {
	// Shutdown metrics server if running
	if app.metricsServer != nil {
		logger.Info("stopping metrics server")
		if err := app.metricsServer.Shutdown(ctx); err != nil {
			logger.Error("failed to stop metrics server gracefully", observability.Error(err))
		}
	}

	if err := app.server.Stop(ctx); err != nil {
		logger.Error("failed to stop API server gracefully", observability.Error(err))
	}

	// Close providers after the server stops (in-flight requests may
	// still mint tokens during the drain).
	if err := app.registry.CloseAll(); err != nil {
		logger.Error("failed to close credential providers", observability.Error(err))
	}

	if app.tokenCache != nil {
		if err := app.tokenCache.Close(); err != nil {
			logger.Error("failed to close token cache", observability.Error(err))
		}
	}

	if app.secretsProvider != nil {
		logger.Info("closing secrets provider")
		if err := app.secretsProvider.Close(); err != nil {
			logger.Error("failed to close secrets provider", observability.Error(err))
		}
	}

	if err := app.tracer.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown tracer", observability.Error(err))
	}
}
