package safefileio

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// MaxFileSize is the default size cap for SafeReadFile (128 MB)
const MaxFileSize = 128 * 1024 * 1024

// SafeReadFile reads a regular file after checking that neither the file nor any directory
// above it is a symbolic link. Files larger than maxSize bytes are rejected with
// ErrFileTooLarge; a maxSize of zero or less selects MaxFileSize.
//
// The file is opened non-blocking so that a FIFO or device is rejected instead of stalling
// the open.
func SafeReadFile(filePath string, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilePath, err)
	}

	file, err := openFile(absPath, os.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("Failed to close file", slog.String("path", absPath), slog.Any("error", closeErr))
		}
	}()

	fileInfo, err := validateFile(file, absPath)
	if err != nil {
		return nil, err
	}
	if err := setBlocking(file); err != nil {
		return nil, err
	}

	return readFileContent(file, fileInfo, absPath, maxSize)
}

// SafeOpenFile creates a new file for writing. The file must not already exist and no path
// component may be a symbolic link.
func SafeOpenFile(filePath string, perm os.FileMode) (*os.File, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilePath, err)
	}

	file, err := openFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return nil, err
	}

	if _, err := validateFile(file, absPath); err != nil {
		_ = file.Close()
		return nil, err
	}
	return file, nil
}

// openFallback opens with O_NOFOLLOW and then verifies the directory components.
func openFallback(absPath string, flag int, perm os.FileMode) (*os.File, error) {
	// #nosec G304 - absPath is cleaned above and the final component is opened with O_NOFOLLOW
	file, err := os.OpenFile(absPath, flag|oNoFollow, perm)
	if err != nil {
		return nil, classifyOpenError(err)
	}

	if err := verifyPathComponents(absPath); err != nil {
		_ = file.Close()
		return nil, err
	}
	return file, nil
}

func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, os.ErrExist):
		return ErrFileExists
	case isNoFollowError(err):
		return ErrIsSymlink
	default:
		return err
	}
}

// verifyPathComponents checks if any directory above absPath is a symlink.
// This is called after opening the file to prevent TOCTOU attacks.
func verifyPathComponents(absPath string) error {
	current := filepath.Dir(absPath)
	for {
		parent := filepath.Dir(current)
		if parent == current {
			break // Reached root directory
		}

		fi, err := os.Lstat(current)
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", current, err)
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s", ErrIsSymlink, current)
		}

		current = parent
	}
	return nil
}

// setBlocking clears O_NONBLOCK once the file is known to be regular.
func setBlocking(file *os.File) error {
	raw, err := file.SyscallConn()
	if err != nil {
		return fmt.Errorf("failed to access descriptor: %w", err)
	}
	var setErr error
	if err := raw.Control(func(fd uintptr) {
		setErr = unix.SetNonblock(int(fd), false)
	}); err != nil {
		return fmt.Errorf("failed to access descriptor: %w", err)
	}
	if setErr != nil {
		return fmt.Errorf("failed to clear O_NONBLOCK: %w", setErr)
	}
	return nil
}

// readFileContent reads the content of an already opened and validated file
func readFileContent(file *os.File, fileInfo os.FileInfo, filePath string, maxSize int64) ([]byte, error) {
	if fileInfo.Size() > maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes (limit %d)", ErrFileTooLarge, filePath, fileInfo.Size(), maxSize)
	}

	// The file may grow between Stat and ReadAll
	content, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(content)) > maxSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrFileTooLarge, filePath, maxSize)
	}

	return content, nil
}

// validateFile checks if the file is a regular file and returns its FileInfo
// To prevent TOCTOU attacks, we use the file descriptor to get the file info
func validateFile(file *os.File, filePath string) (os.FileInfo, error) {
	fileInfo, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	if !fileInfo.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", ErrInvalidFilePath, filePath)
	}

	return fileInfo, nil
}
