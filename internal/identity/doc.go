// Package identity implements service-principal authentication for
// the key management sidecar.
//
// This package acquires OAuth2 bearer access tokens from an identity
// provider speaking the client-credentials dialect, on behalf of an
// application identified by a tenant and client ID. Two flows are
// supported: a shared client secret and an X.509 client certificate
// that signs a JWT client assertion.
//
// # Features
//
//   - Client-credentials grant with secret or certificate assertion
//   - Deterministic token endpoint composition per tenant, with an
//     authority override
//   - Bounded retry with exponential backoff for transient failures;
//     authentication rejections short-circuit
//   - Per-scope token cache with single-flight refresh deduplication
//   - Hot-reloaded signing certificates (PEM or PKCS#12)
//   - Optional circuit breaker and rate limiter around the endpoint
//   - Prometheus metrics and OpenTelemetry spans for token exchanges
//
// # Usage
//
// Acquire a token with a client secret:
//
//	creds, err := identity.NewServicePrincipalCredentials(&identity.Config{
//	    TenantID:     "7f2d4cc7-...",
//	    ClientID:     "a1b2c3d4-...",
//	    ClientSecret: secret,
//	})
//	if err != nil {
//	    return err
//	}
//	defer creds.Close()
//
//	token, err := creds.Token(ctx, "https://vault.example.net/.default")
//
// Certificate-based principals swap ClientSecret for a certificate
// configuration:
//
//	creds, err := identity.NewServicePrincipalCredentials(&identity.Config{
//	    TenantID:          tenant,
//	    ClientID:          client,
//	    ClientCertificate: &tls.ClientCertificateConfig{Bundle: "/etc/kms/sp.pem"},
//	})
//
// # Concurrency
//
// All methods are safe for concurrent use. Concurrent refreshes for
// the same scope collapse into a single network exchange; cached
// tokens are immutable values replaced atomically.
package identity
