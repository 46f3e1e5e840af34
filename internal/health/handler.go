package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthHandler returns an HTTP handler for the health endpoint.
func (c *Checker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := c.Health()

		w.Header().Set(HeaderContentType, ContentTypeJSON)
		w.WriteHeader(http.StatusOK)

		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
		}
	}
}

// ReadinessHandler returns an HTTP handler for the readiness endpoint.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), c.readinessTimeout)
		defer cancel()

		response := c.Readiness(ctx)

		w.Header().Set(HeaderContentType, ContentTypeJSON)

		statusCode := http.StatusOK
		if response.Status == StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)

		if err := json.NewEncoder(w).Encode(response); err != nil {
			http.Error(w, "failed to encode response", http.StatusInternalServerError)
		}
	}
}

// LivenessHandler returns an HTTP handler for the liveness endpoint (simple ping).
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(HeaderContentType, ContentTypeJSON)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// GinHealthHandler returns a gin handler for detailed health checks.
func (c *Checker) GinHealthHandler() gin.HandlerFunc {
	return func(gc *gin.Context) {
		ctx, cancel := context.WithTimeout(gc.Request.Context(), c.livenessTimeout)
		defer cancel()

		response := c.Readiness(ctx)
		health := c.Health()

		gc.JSON(statusCodeFor(response.Status), gin.H{
			"status":    response.Status,
			"version":   health.Version,
			"uptime":    health.Uptime,
			"checks":    response.Checks,
			"timestamp": time.Now().UTC(),
		})
	}
}

// GinReadinessHandler returns a gin handler for readiness probes.
func (c *Checker) GinReadinessHandler() gin.HandlerFunc {
	return func(gc *gin.Context) {
		ctx, cancel := context.WithTimeout(gc.Request.Context(), c.readinessTimeout)
		defer cancel()

		response := c.Readiness(ctx)
		gc.JSON(statusCodeFor(response.Status), response)
	}
}

// GinLivenessHandler returns a gin handler for liveness probes.
func (c *Checker) GinLivenessHandler() gin.HandlerFunc {
	return func(gc *gin.Context) {
		gc.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
		})
	}
}

// RegisterRoutes registers health check routes on a gin engine.
func (c *Checker) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/health", c.GinHealthHandler())
	engine.GET("/healthz", c.GinLivenessHandler())
	engine.GET("/livez", c.GinLivenessHandler())
	engine.GET("/readyz", c.GinReadinessHandler())
	engine.GET("/ready", c.GinReadinessHandler())
}

// statusCodeFor maps a health status to an HTTP status code.
func statusCodeFor(status Status) int {
	if status == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}
