package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/isseis/go-safe-elf-image/internal/safefileio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.False(t, cfg.Image.Verbose)
	assert.Equal(t, int64(safefileio.MaxFileSize), cfg.Image.MaxFileSize)
	assert.True(t, cfg.Image.Demangle)
	assert.Equal(t, DefaultSocketPath, cfg.Server.SocketPath)
	assert.True(t, cfg.Server.TakeOver)
	assert.Equal(t, DefaultMaxCachedImages, cfg.Server.MaxCachedImages)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Logging.LogDir)
	assert.NoError(t, cfg.Validate())
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		content string
		check   func(t *testing.T, cfg *Config)
		errIs   error
		errText string
	}{
		{
			name:    "empty file keeps defaults",
			content: "",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, Default(), cfg)
			},
		},
		{
			name: "overrides",
			content: `
[image]
verbose = true
max_file_size = 4096
demangle = false

[server]
socket_path = "/run/symbold.sock"
take_over = false
max_cached_images = 2

[logging]
level = "debug"
log_dir = "/var/log/symbold"
`,
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.Image.Verbose)
				assert.Equal(t, int64(4096), cfg.Image.MaxFileSize)
				assert.False(t, cfg.Image.Demangle)
				assert.Equal(t, "/run/symbold.sock", cfg.Server.SocketPath)
				assert.False(t, cfg.Server.TakeOver)
				assert.Equal(t, 2, cfg.Server.MaxCachedImages)
				assert.Equal(t, "/var/log/symbold", cfg.Logging.LogDir)

				level, err := cfg.Logging.SlogLevel()
				require.NoError(t, err)
				assert.Equal(t, slog.LevelDebug, level)
			},
		},
		{
			name:    "partial section keeps other defaults",
			content: "[server]\nmax_cached_images = 8\n",
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8, cfg.Server.MaxCachedImages)
				assert.Equal(t, DefaultSocketPath, cfg.Server.SocketPath)
				assert.True(t, cfg.Image.Demangle)
			},
		},
		{
			name:    "unknown key",
			content: "[image]\nverbos = true\n",
			errIs:   ErrInvalidConfig,
			errText: "verbos",
		},
		{
			name:    "unknown section",
			content: "[cache]\nsize = 1\n",
			errIs:   ErrInvalidConfig,
		},
		{
			name:    "malformed TOML",
			content: "[image\n",
			errText: "failed to parse TOML",
		},
		{
			name:    "max file size too large",
			content: "[image]\nmax_file_size = 134217729\n",
			errIs:   ErrInvalidConfig,
			errText: "image.max_file_size",
		},
		{
			name:    "max file size zero",
			content: "[image]\nmax_file_size = 0\n",
			errIs:   ErrInvalidConfig,
			errText: "image.max_file_size",
		},
		{
			name:    "empty socket path",
			content: "[server]\nsocket_path = \"\"\n",
			errIs:   ErrInvalidConfig,
			errText: "server.socket_path",
		},
		{
			name:    "socket path too long",
			content: "[server]\nsocket_path = \"/" + strings.Repeat("s", 120) + "\"\n",
			errIs:   ErrInvalidConfig,
			errText: "server.socket_path",
		},
		{
			name:    "no cache slots",
			content: "[server]\nmax_cached_images = 0\n",
			errIs:   ErrInvalidConfig,
			errText: "server.max_cached_images",
		},
		{
			name:    "unknown log level",
			content: "[logging]\nlevel = \"chatty\"\n",
			errIs:   ErrInvalidConfig,
			errText: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tt.content))
			if tt.errIs != nil || tt.errText != "" {
				require.Error(t, err)
				assert.Nil(t, cfg)
				if tt.errIs != nil {
					assert.ErrorIs(t, err, tt.errIs)
				}
				if tt.errText != "" {
					assert.Contains(t, err.Error(), tt.errText)
				}
				return
			}
			require.NoError(t, err)
			tt.check(t, cfg)
		})
	}
}

func TestValidationErrorAs(t *testing.T) {
	_, err := Parse([]byte("[server]\nmax_cached_images = -1\n"))
	require.Error(t, err)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Equal(t, "server.max_cached_images", validationErr.Field)
}

func TestLoad(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("file", func(t *testing.T) {
		path := writeConfig(t, "[image]\nverbose = true\n")
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.True(t, cfg.Image.Verbose)
	})

	t.Run("missing file", func(t *testing.T) {
		dir := filepath.Dir(writeConfig(t, ""))
		_, err := Load(filepath.Join(dir, "absent.toml"))
		assert.ErrorIs(t, err, ErrInvalidConfigPath)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("symlinked file", func(t *testing.T) {
		path := writeConfig(t, "")
		link := filepath.Join(filepath.Dir(path), "link.toml")
		require.NoError(t, os.Symlink(path, link))

		_, err := Load(link)
		assert.ErrorIs(t, err, safefileio.ErrIsSymlink)
	})

	t.Run("invalid content names file", func(t *testing.T) {
		path := writeConfig(t, "[server]\nmax_cached_images = 0\n")
		_, err := Load(path)
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.Contains(t, err.Error(), path)
	})
}
