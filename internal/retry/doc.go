// Package retry provides bounded retry with backoff for the key
// management sidecar.
//
// This package implements configurable retry logic with exponential
// backoff and jitter for resilient communication with external
// services, primarily the identity provider token endpoint.
//
// # Features
//
//   - Configurable maximum attempt count
//   - Exponential backoff with configurable base and maximum
//   - Jitter factor to prevent thundering herd
//   - Pluggable backoff strategies (constant, exponential,
//     decorrelated jitter)
//   - Context-aware cancellation support
//   - Composable retry classification functions
//
// # Usage
//
// Execute an operation with retry:
//
//	cfg := retry.DefaultConfig()
//	err := retry.Do(ctx, cfg, func() error {
//	    return callIdentityEndpoint(ctx)
//	}, nil)
//
// # Classification
//
// Retry only on transient failures:
//
//	opts := &retry.Options{
//	    Operation:   "token_refresh",
//	    ShouldRetry: retry.RetryOnAny(
//	        retry.RetryOnNetworkErrors(),
//	        retry.RetryableStatusCodes(),
//	    ),
//	}
//	err := retry.Do(ctx, cfg, fn, opts)
package retry
