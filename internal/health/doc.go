// Package health provides health check and readiness probe endpoints
// for the token sidecar.
//
// This package implements Kubernetes-compatible health and readiness
// endpoints with extensible check registration and detailed status
// reporting.
//
// # Features
//
//   - Liveness probe endpoint (/healthz)
//   - Readiness probe endpoint (/readyz)
//   - Extensible health check registration
//   - Dependency checks for the identity endpoint, Vault, and the
//     token cache
//   - Draining support for graceful shutdown
//
// # Usage
//
// Create a health checker and register checks:
//
//	checker := health.NewChecker(version, logger)
//
//	checker.RegisterHealthCheck(health.VaultHealthCheck("vault", vaultClient))
//	checker.RegisterHealthCheck(health.CacheHealthCheck("cache", tokenCache))
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/healthz", checker.HealthHandler())
//	mux.HandleFunc("/readyz", checker.ReadinessHandler())
//
// During shutdown, mark the sidecar as draining so readiness probes
// fail while in-flight requests complete:
//
//	checker.SetDraining(true)
package health
