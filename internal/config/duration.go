package config

import (
	"fmt"
	"strconv"
	"time"
)

// Duration is a wrapper around time.Duration that supports YAML/JSON
// marshaling. It enables human-readable duration strings (e.g. "30s",
// "5m", "1h30m") in configuration files while preserving type safety in
// Go code.
//
// Supported formats follow Go's time.ParseDuration syntax:
//   - "300ms"  → 300 milliseconds
//   - "30s"    → 30 seconds
//   - "5m"     → 5 minutes
//   - "1h30m"  → 1 hour and 30 minutes
//
// A bare number is interpreted as whole seconds, so "refreshBuffer: 120"
// and "refreshBuffer: 2m" are equivalent. An empty string or JSON null
// unmarshals to zero duration.
//
// Example YAML usage:
//
//	requestTimeout: "30s"
//	refreshBuffer: "2m"
//
// Example Go usage:
//
//	d := config.Duration(5 * time.Second)
//	fmt.Println(d.Duration()) // 5s
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		return d.parse(s)
	}

	var n int64
	if err := unmarshal(&n); err != nil {
		return err
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return d.parse(s[1 : len(s)-1])
	}
	if s == "" || s == "null" {
		*d = 0
		return nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid duration: %s", s)
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// parse sets the duration from a string value.
func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(duration)
	return nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
