// Package config loads the TOML configuration shared by elfdump, symbolicate and symbold.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"

	"github.com/isseis/go-safe-elf-image/internal/safefileio"
	"github.com/pelletier/go-toml/v2"
)

// Default values for configuration fields
const (
	DefaultSocketPath      = "/tmp/symbold.sock"
	DefaultMaxCachedImages = 64
	DefaultLogLevel        = "info"

	// maxConfigFileSize bounds the size of a configuration file
	maxConfigFileSize = 1 << 20

	// maxSocketPathLen is the capacity of sockaddr_un.sun_path minus the terminating NUL
	maxSocketPathLen = 107
)

// Config is the decoded configuration file.
type Config struct {
	Image   ImageConfig   `toml:"image"`
	Server  ServerConfig  `toml:"server"`
	Logging LoggingConfig `toml:"logging"`
}

// ImageConfig controls how ELF images are read and symbolicated.
type ImageConfig struct {
	// Verbose logs diagnostics about malformed images
	Verbose bool `toml:"verbose"`

	// MaxFileSize caps the size of an image file in bytes
	MaxFileSize int64 `toml:"max_file_size"`

	// Demangle selects demangled symbol names in symbolication output
	Demangle bool `toml:"demangle"`
}

// ServerConfig controls the symbold daemon.
type ServerConfig struct {
	SocketPath      string `toml:"socket_path"`
	TakeOver        bool   `toml:"take_over"`
	MaxCachedImages int    `toml:"max_cached_images"`
}

// LoggingConfig controls the log handlers.
type LoggingConfig struct {
	Level  string `toml:"level"`
	LogDir string `toml:"log_dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Image: ImageConfig{
			MaxFileSize: safefileio.MaxFileSize,
			Demangle:    true,
		},
		Server: ServerConfig{
			SocketPath:      DefaultSocketPath,
			TakeOver:        true,
			MaxCachedImages: DefaultMaxCachedImages,
		},
		Logging: LoggingConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load reads the configuration file at path. Keys missing from the file keep their default
// values. An empty path yields Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	content, err := safefileio.SafeReadFile(path, maxConfigFileSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfigPath, path, err)
	}

	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML content over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(content []byte) (*Config, error) {
	cfg := Default()

	decoder := toml.NewDecoder(bytes.NewReader(content))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strictErr *toml.StrictMissingError
		if errors.As(err, &strictErr) {
			return nil, fmt.Errorf("%w: unknown keys:\n%s", ErrInvalidConfig, strictErr.String())
		}
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values. The returned error is a *ValidationError.
func (c *Config) Validate() error {
	if c.Image.MaxFileSize <= 0 || c.Image.MaxFileSize > safefileio.MaxFileSize {
		return &ValidationError{
			Field:  "image.max_file_size",
			Reason: fmt.Sprintf("must be between 1 and %d", safefileio.MaxFileSize),
		}
	}
	if c.Server.SocketPath == "" {
		return &ValidationError{Field: "server.socket_path", Reason: "must not be empty"}
	}
	if len(c.Server.SocketPath) > maxSocketPathLen {
		return &ValidationError{
			Field:  "server.socket_path",
			Reason: fmt.Sprintf("longer than %d bytes", maxSocketPathLen),
		}
	}
	if c.Server.MaxCachedImages < 1 {
		return &ValidationError{Field: "server.max_cached_images", Reason: "must be at least 1"}
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return &ValidationError{Field: "logging.level", Reason: err.Error()}
	}
	return nil
}

// SlogLevel converts Level to a slog.Level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}
