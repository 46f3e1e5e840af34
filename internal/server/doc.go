// Package server implements the sidecar's HTTP API.
//
// The API hands out bearer tokens minted by the configured key
// providers so co-located workloads never handle service-principal
// credentials themselves:
//
//	GET  /v1/token?credential=NAME&scope=SCOPE
//	POST /v1/token/refresh?credential=NAME&scope=SCOPE
//	GET  /v1/providers
//
// Health, readiness and liveness endpoints are mounted through
// health.Checker.RegisterRoutes. The credential query parameter may be
// omitted when exactly one credential is configured. With
// WithTokenCache, acquired tokens are shared through the configured
// cache so other replicas skip their own exchange.
//
// Usage:
//
//	set := server.NewCredentialSet()
//	set.Replace([]server.Entry{{Credential: "kv-prod", Provider: provider}})
//
//	srv := server.New(cfg.Spec.Server, set, logger,
//		server.WithHealthChecker(checker),
//		server.WithTokenCache(tokenCache),
//	)
//
//	go func() {
//		if err := srv.Start(ctx); err != nil {
//			logger.Error("server failed", observability.Error(err))
//		}
//	}()
//	defer srv.Stop(context.Background())
package server
