package config

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfigPath is returned when the config file path is invalid
	ErrInvalidConfigPath = errors.New("invalid config file path")

	// ErrInvalidConfig is returned when a decoded configuration fails validation
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError describes a configuration field with an unacceptable value.
type ValidationError struct {
	Field  string // TOML key, e.g. "server.socket_path"
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value for '%s': %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}
