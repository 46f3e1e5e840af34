package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avkms/internal/observability"
)

func TestRequestID_Generated(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
	assert.Equal(t, rec.Header().Get(RequestIDHeader), rec.Body.String())
}

func TestRequestID_Propagated(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "client-supplied-id")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, "client-supplied-id", rec.Header().Get(RequestIDHeader))
}

func TestRequestID_InstalledInRequestContext(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, observability.RequestIDFromContext(c.Request.Context()))
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(RequestIDHeader, "ctx-carried-id")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, "ctx-carried-id", rec.Body.String())
}

func TestGetRequestID_Missing(t *testing.T) {
	engine := gin.New()
	engine.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "id=%s", GetRequestID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, "id=", rec.Body.String())
}

func TestLogging(t *testing.T) {
	engine := gin.New()
	engine.Use(Logging(LoggingConfig{Logger: observability.NopLogger()}))
	engine.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestLogging_NilLogger(t *testing.T) {
	engine := gin.New()
	engine.Use(Logging(LoggingConfig{}))
	engine.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	require.NotPanics(t, func() {
		engine.ServeHTTP(rec, req)
	})
}

func TestLogging_SkipPaths(t *testing.T) {
	engine := gin.New()
	engine.Use(Logging(LoggingConfig{
		Logger:    observability.NopLogger(),
		SkipPaths: []string{"/metrics"},
	}))
	engine.GET("/metrics", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	// Skipped paths do not get a request ID assigned.
	assert.Empty(t, rec.Header().Get(RequestIDHeader))
}

func TestLogging_SkipHealthCheck(t *testing.T) {
	engine := gin.New()
	engine.Use(Logging(LoggingConfig{
		Logger:          observability.NopLogger(),
		SkipHealthCheck: true,
	}))
	engine.GET("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get(RequestIDHeader))
}

func TestIsHealthCheckPath(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"/health", "/healthz", "/livez", "/ready", "/readyz"} {
		assert.True(t, isHealthCheckPath(path), "path %s", path)
	}
	assert.False(t, isHealthCheckPath("/v1/token"))
	assert.False(t, isHealthCheckPath("/"))
}

func TestRecovery(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery(observability.NopLogger()))
	engine.GET("/panic", func(c *gin.Context) {
		panic("something broke")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rec := httptest.NewRecorder()

	require.NotPanics(t, func() {
		engine.ServeHTTP(rec, req)
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal Server Error")
}

func TestRecovery_NilLogger(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery(nil))
	engine.GET("/panic", func(c *gin.Context) {
		panic("something broke")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rec := httptest.NewRecorder()

	require.NotPanics(t, func() {
		engine.ServeHTTP(rec, req)
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRecovery_PassesThroughNormalRequests(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery(observability.NopLogger()))
	engine.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, "fine")
	})

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fine", rec.Body.String())
}

func TestMetricsMiddleware(t *testing.T) {
	engine := gin.New()
	engine.Use(Metrics())
	engine.GET("/test", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	require.NotPanics(t, func() {
		engine.ServeHTTP(rec, req)
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}
