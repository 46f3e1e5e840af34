package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vyrodovalexey/avkms/internal/observability"
)

// Status represents the health status.
type Status string

const (
	// StatusHealthy indicates the service is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates the service is unhealthy.
	StatusUnhealthy Status = "unhealthy"
	// StatusDegraded indicates the service is degraded but operational.
	StatusDegraded Status = "degraded"
)

// Default timeout values for probe handlers.
const (
	// DefaultReadinessProbeTimeout is the default timeout for readiness probes.
	DefaultReadinessProbeTimeout = 5 * time.Second

	// DefaultLivenessProbeTimeout is the default timeout for liveness/health probes.
	DefaultLivenessProbeTimeout = 10 * time.Second
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    Status    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse represents the readiness check response.
type ReadinessResponse struct {
	Status    Status           `json:"status"`
	Checks    map[string]Check `json:"checks,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Check represents an individual health check result.
type Check struct {
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Checker provides health and readiness checking functionality.
type Checker struct {
	version          string
	logger           observability.Logger
	startTime        time.Time
	checks           map[string]HealthCheck
	draining         atomic.Bool
	readinessTimeout time.Duration
	livenessTimeout  time.Duration
	mu               sync.RWMutex
}

// CheckerOption is a functional option for configuring the checker.
type CheckerOption func(*Checker)

// WithReadinessTimeout sets the timeout budget for readiness probes.
func WithReadinessTimeout(timeout time.Duration) CheckerOption {
	return func(c *Checker) {
		if timeout > 0 {
			c.readinessTimeout = timeout
		}
	}
}

// WithLivenessTimeout sets the timeout budget for health probes.
func WithLivenessTimeout(timeout time.Duration) CheckerOption {
	return func(c *Checker) {
		if timeout > 0 {
			c.livenessTimeout = timeout
		}
	}
}

// NewChecker creates a new health checker.
func NewChecker(version string, logger observability.Logger, opts ...CheckerOption) *Checker {
	if logger == nil {
		logger = observability.NopLogger()
	}
	c := &Checker{
		version:          version,
		logger:           logger,
		startTime:        time.Now(),
		checks:           make(map[string]HealthCheck),
		readinessTimeout: DefaultReadinessProbeTimeout,
		livenessTimeout:  DefaultLivenessProbeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterCheck registers a named health check function.
func (c *Checker) RegisterCheck(name string, check func(ctx context.Context) error) {
	c.RegisterHealthCheck(NewHealthCheckFunc(name, check))
}

// RegisterHealthCheck registers a health check under its own name.
func (c *Checker) RegisterHealthCheck(check HealthCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[check.Name()] = check
}

// UnregisterCheck removes a health check.
func (c *Checker) UnregisterCheck(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.checks, name)
}

// SetDraining marks the sidecar as draining. A draining sidecar reports
// not ready so orchestrators stop routing new requests to it, while
// in-flight requests complete.
func (c *Checker) SetDraining(draining bool) {
	c.draining.Store(draining)
}

// IsDraining reports whether the sidecar is draining.
func (c *Checker) IsDraining() bool {
	return c.draining.Load()
}

// Health returns the health status.
func (c *Checker) Health() HealthResponse {
	recordProbe("liveness")
	return HealthResponse{
		Status:    StatusHealthy,
		Version:   c.version,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now(),
	}
}

// Readiness runs all registered checks and returns the readiness status.
func (c *Checker) Readiness(ctx context.Context) ReadinessResponse {
	recordProbe("readiness")

	response := ReadinessResponse{
		Status:    StatusHealthy,
		Checks:    make(map[string]Check),
		Timestamp: time.Now(),
	}

	if c.IsDraining() {
		response.Status = StatusUnhealthy
		response.Checks["draining"] = Check{
			Status:  StatusUnhealthy,
			Message: "shutting down",
		}
		return response
	}

	c.mu.RLock()
	checks := make([]HealthCheck, 0, len(c.checks))
	for _, check := range c.checks {
		checks = append(checks, check)
	}
	c.mu.RUnlock()

	if len(checks) == 0 {
		return response
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, check := range checks {
		wg.Add(1)
		go func(hc HealthCheck) {
			defer wg.Done()

			start := time.Now()
			err := hc.Check(ctx)
			duration := time.Since(start)

			result := Check{
				Status:   StatusHealthy,
				Duration: duration.String(),
			}

			if err != nil {
				result.Status = StatusUnhealthy
				result.Message = err.Error()

				c.logger.Warn("health check failed",
					observability.String("check", hc.Name()),
					observability.Error(err),
					observability.Duration("duration", duration),
				)
			}

			mu.Lock()
			response.Checks[hc.Name()] = result
			if result.Status == StatusUnhealthy {
				response.Status = StatusUnhealthy
			}
			mu.Unlock()
		}(check)
	}

	wg.Wait()
	return response
}
