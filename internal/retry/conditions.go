package retry

import (
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
)

// StatusCoder reports the HTTP status code associated with an error.
// Domain error types implement this so classification functions can
// inspect the upstream response without depending on those types.
type StatusCoder interface {
	StatusCode() int
}

// statusCodeOf extracts an HTTP status code from err, or 0.
func statusCodeOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return 0
}

// RetryOnStatusCodes retries when the error carries one of the given
// HTTP status codes.
func RetryOnStatusCodes(statusCodes ...int) ShouldRetryFunc {
	codeMap := make(map[int]bool, len(statusCodes))
	for _, code := range statusCodes {
		codeMap[code] = true
	}
	return func(err error) bool {
		return codeMap[statusCodeOf(err)]
	}
}

// RetryOn5xx retries when the error carries a 5xx status code.
func RetryOn5xx() ShouldRetryFunc {
	return func(err error) bool {
		code := statusCodeOf(err)
		return code >= 500 && code < 600
	}
}

// RetryableStatusCodes retries on status codes that indicate a
// transient server condition: 408, 429, and the whole 5xx class.
func RetryableStatusCodes() ShouldRetryFunc {
	return func(err error) bool {
		switch code := statusCodeOf(err); {
		case code == 408: // Request Timeout
			return true
		case code == 429: // Too Many Requests
			return true
		case code >= 500 && code < 600:
			return true
		default:
			return false
		}
	}
}

// RetryOnErrors retries when the error matches one of the given
// targets via errors.Is.
func RetryOnErrors(errs ...error) ShouldRetryFunc {
	return func(err error) bool {
		if err == nil {
			return false
		}
		for _, target := range errs {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

// RetryOnNetworkErrors retries on connection-level failures: timeouts,
// refused or reset connections, and unexpected stream termination.
func RetryOnNetworkErrors() ShouldRetryFunc {
	return func(err error) bool {
		if err == nil {
			return false
		}

		// Check for common network errors
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}

		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return true
		}

		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return urlErr.Timeout() || urlErr.Temporary()
		}

		if errors.Is(err, syscall.ECONNRESET) {
			return true
		}

		if errors.Is(err, syscall.ECONNREFUSED) {
			return true
		}

		if errors.Is(err, io.EOF) {
			return true
		}

		if errors.Is(err, io.ErrUnexpectedEOF) {
			return true
		}

		return false
	}
}

// RetryOnTimeout retries on timeout errors only.
func RetryOnTimeout() ShouldRetryFunc {
	return func(err error) bool {
		if err == nil {
			return false
		}

		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}

		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return true
		}

		return false
	}
}

// RetryOnAny combines classification functions with OR logic.
func RetryOnAny(fns ...ShouldRetryFunc) ShouldRetryFunc {
	return func(err error) bool {
		for _, fn := range fns {
			if fn(err) {
				return true
			}
		}
		return false
	}
}

// RetryOnAll combines classification functions with AND logic.
func RetryOnAll(fns ...ShouldRetryFunc) ShouldRetryFunc {
	return func(err error) bool {
		if len(fns) == 0 {
			return false
		}
		for _, fn := range fns {
			if !fn(err) {
				return false
			}
		}
		return true
	}
}

// NeverRetry never retries.
func NeverRetry() ShouldRetryFunc {
	return func(error) bool {
		return false
	}
}

// AlwaysRetry retries on any non-nil error.
func AlwaysRetry() ShouldRetryFunc {
	return func(err error) bool {
		return err != nil
	}
}
