package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that supports YAML parsing.
//
// Supports formats like: "1s", "5m", "2h", "100ms", "1h30m"
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	// Integers are taken as nanoseconds.
	if value.Tag == "!!int" {
		var ns int64
		if err := value.Decode(&ns); err != nil {
			return err
		}
		*d = Duration(ns)
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string (e.g., '1s') or integer (nanoseconds)")
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// String returns the string representation.
func (d Duration) String() string {
	return time.Duration(d).String()
}
