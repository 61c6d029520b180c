package safefileio

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// isNoFollowError checks if the error indicates we tried to open a symlink
func isNoFollowError(err error) bool {
	var e *os.PathError
	if !errors.As(err, &e) {
		return false
	}
	// FreeBSD reports EMLINK instead of ELOOP for O_NOFOLLOW on a symlink
	return errors.Is(e.Err, unix.ELOOP) || errors.Is(e.Err, unix.EMLINK)
}
