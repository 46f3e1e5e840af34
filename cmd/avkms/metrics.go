package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/vyrodovalexey/avkms/internal/health"
	"github.com/vyrodovalexey/avkms/internal/observability"
)

// startMetricsServerIfEnabled starts the metrics server when metrics are
// enabled in the configuration. The server also exposes the health
// endpoints so probes work without the token API port.
func startMetricsServerIfEnabled(app *application, logger observability.Logger) {
	obs := app.config.Spec.Observability
	if obs == nil || obs.Metrics == nil || !obs.Metrics.Enabled {
		return
	}

	srv := createMetricsServer(obs.Metrics.GetPort(), obs.Metrics.GetPath(),
		app.metrics, app.healthChecker, logger)
	app.metricsServer = srv
	go runMetricsServer(srv, logger)
}

// createMetricsServer builds the HTTP server serving Prometheus metrics
// and the health probe endpoints.
func createMetricsServer(
	port int,
	path string,
	metrics *observability.Metrics,
	checker *health.Checker,
	logger observability.Logger,
) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(path, metrics.Handler())
	mux.HandleFunc("/health", checker.HealthHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.HandleFunc("/live", checker.LivenessHandler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("starting metrics server",
		observability.String("address", addr),
		observability.String("path", path),
	)

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

func runMetricsServer(srv *http.Server, logger observability.Logger) {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server error", observability.Error(err))
	}
}
