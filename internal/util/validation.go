package util

import (
	"fmt"
	"net/url"
)

// ValidateURL validates a URL string.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if parsed.Scheme == "" {
		return fmt.Errorf("URL must have a scheme (http or https)")
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must have a host")
	}

	return nil
}

// ValidatePort validates a port number.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got: %d", port)
	}
	return nil
}

// ValidateIPAddress validates an IP address (v4 or v6).
func ValidateIPAddress(ip string) error {
	if ip == "" {
		return fmt.Errorf("IP address cannot be empty")
	}

	// Allow 0.0.0.0 for binding to all interfaces
	if ip == "0.0.0.0" || ip == "::" {
		return nil
	}

	// Basic validation - check for valid characters
	for _, c := range ip {
		if !isValidIPChar(c) {
			return fmt.Errorf("invalid character in IP address: %c", c)
		}
	}

	return nil
}

// isValidIPChar checks if a character is valid in an IP address.
func isValidIPChar(c rune) bool {
	if c >= '0' && c <= '9' {
		return true
	}
	if c >= 'a' && c <= 'f' {
		return true
	}
	if c >= 'A' && c <= 'F' {
		return true
	}
	if c == '.' || c == ':' {
		return true
	}
	return false
}
