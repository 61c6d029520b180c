//go:build !linux

package safefileio

import (
	"os"

	"golang.org/x/sys/unix"
)

const oNoFollow = unix.O_NOFOLLOW

// openFile uses the portable two-phase verification of openFallback.
func openFile(absPath string, flag int, perm os.FileMode) (*os.File, error) {
	return openFallback(absPath, flag, perm)
}
