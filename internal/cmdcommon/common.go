// Package cmdcommon provides common functionality for command-line tools.
package cmdcommon

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/isseis/go-safe-elf-image/internal/config"
	"github.com/isseis/go-safe-elf-image/internal/elfimage"
	"github.com/isseis/go-safe-elf-image/internal/logging"
	"github.com/isseis/go-safe-elf-image/internal/safefileio"
)

// Build-time variables (set via ldflags)
var (
	DefaultConfigPath = "" // no config file; built-in defaults apply
)

// LoadConfig loads path, falling back to DefaultConfigPath when path is empty.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	return config.Load(path)
}

// SetupLogger builds the tool's logger from cfg. verbose lowers the console level to debug.
func SetupLogger(tool string, cfg *config.Config, verbose bool, stderr io.Writer) (*slog.Logger, func() error, error) {
	level, err := cfg.Logging.SlogLevel()
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	return logging.Setup(logging.Options{
		Tool:   tool,
		Level:  level,
		LogDir: cfg.Logging.LogDir,
		Stderr: stderr,
	})
}

// OpenImage reads and parses the ELF image at path. The returned image is valid.
func OpenImage(path string, cfg *config.Config, logger *slog.Logger) (*elfimage.Image, error) {
	data, err := safefileio.SafeReadFile(path, cfg.Image.MaxFileSize)
	if err != nil {
		return nil, err
	}
	img := elfimage.New(data, elfimage.Options{
		Verbose:    cfg.Image.Verbose,
		Logger:     logger,
		NoDemangle: !cfg.Image.Demangle,
	})
	if !img.IsValid() {
		return nil, fmt.Errorf("%s: %w", path, img.Err())
	}
	return img, nil
}
