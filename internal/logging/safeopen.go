package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/isseis/go-safe-elf-image/internal/safefileio"
)

var (
	ErrEmptyLogDirectory = errors.New("log directory cannot be empty")
)

// File permissions constants
const (
	logDirPerm  os.FileMode = 0o750
	logFilePerm os.FileMode = 0o600
)

// SafeFileOpener creates log files with symlink protection
type SafeFileOpener struct {
	now      func() time.Time
	hostname func() (string, error)
}

// NewSafeFileOpener creates a new SafeFileOpener using the safefileio package
func NewSafeFileOpener() *SafeFileOpener {
	return &SafeFileOpener{now: time.Now, hostname: os.Hostname}
}

// OpenFile creates dir if needed and then a fresh log file at path. Existing files are never
// reused.
func (s *SafeFileOpener) OpenFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, logDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	file, err := safefileio.SafeOpenFile(path, logFilePerm)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s safely: %w", path, err)
	}
	return file, nil
}

// GenerateLogFilename returns a unique path "<dir>/<tool>_<host>_<time>_<runID>.json" and the
// run ID embedded in it.
func (s *SafeFileOpener) GenerateLogFilename(dir, tool string) (path, runID string, err error) {
	if dir == "" {
		return "", "", ErrEmptyLogDirectory
	}

	hostname, err := s.hostname()
	if err != nil {
		hostname = "unknown"
	}

	runID = uuid.New().String()
	timestamp := s.now().UTC().Format("20060102T150405Z")

	filename := fmt.Sprintf("%s_%s_%s_%s.json", tool, hostname, timestamp, runID)
	return filepath.Join(dir, filename), runID, nil
}
