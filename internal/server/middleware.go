package server

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vyrodovalexey/avkms/internal/observability"
)

const (
	// RequestIDHeader is the header name for request ID.
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey is the context key for request ID.
	RequestIDKey = "requestID"
)

// LoggingConfig holds configuration for the logging middleware.
type LoggingConfig struct {
	Logger          observability.Logger
	SkipPaths       []string
	SkipHealthCheck bool
}

// isHealthCheckPath checks if the path is a health check endpoint.
func isHealthCheckPath(path string) bool {
	switch path {
	case "/health", "/healthz", "/livez", "/ready", "/readyz":
		return true
	}
	return false
}

// Logging returns a middleware that logs HTTP requests.
func Logging(config LoggingConfig) gin.HandlerFunc {
	if config.Logger == nil {
		config.Logger = observability.NopLogger()
	}

	skipPaths := make(map[string]bool)
	for _, path := range config.SkipPaths {
		skipPaths[path] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path

		if skipPaths[path] || (config.SkipHealthCheck && isHealthCheckPath(path)) {
			c.Next()
			return
		}

		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		setRequestContext(c, requestID)

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []observability.Field{
			observability.String("requestID", requestID),
			observability.String("method", c.Request.Method),
			observability.String("path", path),
			observability.Int("status", status),
			observability.Duration("latency", latency),
			observability.String("clientIP", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, observability.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			config.Logger.Error("request completed", fields...)
		case status >= 400:
			config.Logger.Warn("request completed", fields...)
		default:
			config.Logger.Info("request completed", fields...)
		}
	}
}

// RequestID returns a middleware that generates and sets a request ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		setRequestContext(c, requestID)
		c.Next()
	}
}

// setRequestContext installs the request ID into the request context so
// token acquisition triggered by the handler carries it.
func setRequestContext(c *gin.Context, requestID string) {
	ctx := observability.ContextWithRequestID(c.Request.Context(), requestID)
	c.Request = c.Request.WithContext(ctx)
}

// GetRequestID returns the request ID from the context.
func GetRequestID(c *gin.Context) string {
	if id, exists := c.Get(RequestIDKey); exists {
		if requestID, ok := id.(string); ok {
			return requestID
		}
	}
	return ""
}

// Recovery returns a middleware that recovers from panics.
func Recovery(logger observability.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = observability.NopLogger()
	}

	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				fields := []observability.Field{
					observability.Any("error", err),
					observability.String("method", c.Request.Method),
					observability.String("path", c.Request.URL.Path),
					observability.String("stack", string(debug.Stack())),
				}
				if requestID := GetRequestID(c); requestID != "" {
					fields = append(fields, observability.String("requestID", requestID))
				}

				logger.Error("panic recovered", fields...)

				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{
					Error:   "Internal Server Error",
					Message: "An unexpected error occurred",
				})
			}
		}()

		c.Next()
	}
}

// Metrics returns a middleware that records request metrics.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		recordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start).Seconds())
	}
}
