package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avkms/internal/cache"
	"github.com/vyrodovalexey/avkms/internal/config"
	"github.com/vyrodovalexey/avkms/internal/health"
	"github.com/vyrodovalexey/avkms/internal/observability"
	avtls "github.com/vyrodovalexey/avkms/internal/tls"
)

// ginModeOnce ensures gin.SetMode is only called once to avoid race conditions
var ginModeOnce sync.Once

// Server is the sidecar's HTTP API server.
type Server struct {
	engine      *gin.Engine
	httpServer  *http.Server
	cfg         *config.ServerConfig
	credentials *CredentialSet
	checker     *health.Checker
	tokenCache  cache.Cache
	logger      observability.Logger
	mu          sync.RWMutex
	running     bool
}

// Option configures a Server.
type Option func(*Server)

// WithHealthChecker mounts the checker's probe routes on the API
// server in addition to the metrics listener.
func WithHealthChecker(checker *health.Checker) Option {
	return func(s *Server) {
		s.checker = checker
	}
}

// WithTokenCache shares acquired tokens through the given cache so
// other replicas can serve them without their own exchange.
func WithTokenCache(c cache.Cache) Option {
	return func(s *Server) {
		s.tokenCache = c
	}
}

// New creates an API server serving the given credential set.
func New(cfg *config.ServerConfig, credentials *CredentialSet, logger observability.Logger, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.DefaultServerConfig()
	}
	if credentials == nil {
		credentials = NewCredentialSet()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	// Set Gin mode based on environment (only once to avoid race conditions)
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		engine:      gin.New(),
		cfg:         cfg,
		credentials: credentials,
		logger:      logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.registerMiddleware()
	s.registerRoutes()

	return s
}

// Engine returns the underlying gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerMiddleware() {
	s.engine.Use(Recovery(s.logger))
	s.engine.Use(Logging(LoggingConfig{
		Logger:          s.logger,
		SkipHealthCheck: true,
	}))
	s.engine.Use(Metrics())
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")
	v1.GET("/token", s.handleToken)
	v1.POST("/token/refresh", s.handleRefresh)
	v1.GET("/providers", s.handleProviders)

	if s.checker != nil {
		s.checker.RegisterRoutes(s.engine)
	}
}

// Start starts the server and blocks until it exits. A clean shutdown
// through Stop returns nil.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.GetBind(), s.cfg.GetPort())

	tlsConfig, err := s.tlsConfig()
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to configure TLS: %w", err)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadHeaderTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
		TLSConfig:         tlsConfig,
	}

	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting API server",
		observability.String("address", addr),
		observability.Bool("tls", s.cfg.IsTLSEnabled()),
		observability.Int("credentials", s.credentials.Len()),
	)

	if s.cfg.IsTLSEnabled() {
		err = s.httpServer.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
	} else {
		err = s.httpServer.ListenAndServe()
	}

	if err != nil && err != http.ErrServerClosed {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Stop stops the server gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	s.logger.Info("stopping API server")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("API server stopped")
	return nil
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	if !s.cfg.IsTLSEnabled() {
		return nil, nil
	}

	version := avtls.TLSVersion(s.cfg.TLS.MinVersion)
	if s.cfg.TLS.MinVersion == "" {
		version = avtls.TLSVersion12
	}
	if !version.IsValid() {
		return nil, fmt.Errorf("invalid minimum TLS version: %s", s.cfg.TLS.MinVersion)
	}

	return &tls.Config{
		MinVersion:   version.ToTLSVersion(),
		CipherSuites: avtls.DefaultSecureCipherSuites(),
	}, nil
}
