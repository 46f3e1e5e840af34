// Package util provides shared validation helpers for the sidecar's
// configuration handling.
//
// # Validation
//
// Input validation helpers for URLs, ports, and bind addresses:
//
//	err := util.ValidateURL("https://login.microsoftonline.com")
//	err := util.ValidatePort(8080)
//	err := util.ValidateIPAddress("0.0.0.0")
package util
