//go:build linux

package safefileio

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const oNoFollow = unix.O_NOFOLLOW

var (
	openat2Once      sync.Once
	openat2Supported bool
)

// isOpenat2Available probes openat2 once. Older kernels and some sandboxes return ENOSYS.
func isOpenat2Available() bool {
	openat2Once.Do(func() {
		fd, err := unix.Openat2(unix.AT_FDCWD, "/", &unix.OpenHow{
			Flags:   unix.O_RDONLY | unix.O_DIRECTORY | unix.O_CLOEXEC,
			Resolve: unix.RESOLVE_NO_SYMLINKS,
		})
		if err == nil {
			_ = unix.Close(fd)
		}
		openat2Supported = !errors.Is(err, unix.ENOSYS) && !errors.Is(err, unix.EPERM)
	})
	return openat2Supported
}

// openFile opens absPath with RESOLVE_NO_SYMLINKS so that a symlink anywhere in the path is
// refused atomically. It falls back to openFallback when openat2 is unavailable.
func openFile(absPath string, flag int, perm os.FileMode) (*os.File, error) {
	if !isOpenat2Available() {
		return openFallback(absPath, flag, perm)
	}

	how := &unix.OpenHow{
		// #nosec G115 - flag values fit in uint64
		Flags:   uint64(flag) | unix.O_CLOEXEC,
		Mode:    uint64(perm.Perm()),
		Resolve: unix.RESOLVE_NO_SYMLINKS,
	}
	if flag&os.O_CREATE == 0 {
		how.Mode = 0
	}

	fd, err := unix.Openat2(unix.AT_FDCWD, absPath, how)
	if err != nil {
		switch {
		case errors.Is(err, unix.ELOOP):
			return nil, fmt.Errorf("%w: %s", ErrIsSymlink, absPath)
		case errors.Is(err, unix.EEXIST):
			return nil, ErrFileExists
		}
		return nil, &os.PathError{Op: "openat2", Path: absPath, Err: err}
	}
	return os.NewFile(uintptr(fd), absPath), nil
}
