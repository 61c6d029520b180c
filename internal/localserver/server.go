//go:build linux

package localserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const (
	listenBacklog = 5
	socketPerm    = 0o600

	// pollInterval bounds how long Run waits before rechecking its context
	pollInterval = 100 * time.Millisecond
)

// Server owns one listening socket.
type Server struct {
	// OnReadyToAccept is called by Run each time a connection is pending. It normally calls
	// Accept.
	OnReadyToAccept func()

	logger *slog.Logger

	mu        sync.Mutex
	fd        int
	listening bool
}

// New returns a server that is not yet listening.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{logger: logger, fd: -1}
}

// IsListening reports whether the server has a listening socket.
func (s *Server) IsListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}

// Listen creates a non-blocking, close-on-exec socket bound to path with mode 0600.
func (s *Server) Listen(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listening {
		return ErrAlreadyListening
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	if err := unix.Fchmod(fd, socketPerm); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("fchmod: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("bind %s: %w", path, err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("listen %s: %w", path, err)
	}

	s.fd = fd
	s.listening = true
	s.logger.Debug("Listening", slog.String("path", path), slog.Int("fd", fd))
	return nil
}

// TakeOverFromSystemServer adopts the listening socket passed for path in SOCKET_TAKEOVER.
// An empty path adopts the only socket passed. The descriptor must be a socket; it is made
// close-on-exec and non-blocking. A descriptor that cannot be adopted is closed.
func (s *Server) TakeOverFromSystemServer(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listening {
		return ErrAlreadyListening
	}

	fd, err := takeoverSocket(s.logger, path)
	if err != nil {
		return err
	}
	adopted := false
	defer func() {
		if adopted {
			return
		}
		if err := unix.Close(fd); err != nil && !errors.Is(err, unix.EBADF) {
			s.logger.Warn("Failed to close rejected takeover socket", slog.Int("fd", fd), slog.Any("error", err))
		}
	}()

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return &TakeoverError{Path: path, Fd: fd, Reason: "fstat failed", Err: err}
	}
	if st.Mode&unix.S_IFMT != unix.S_IFSOCK {
		return &TakeoverError{Path: path, Fd: fd, Reason: "not a socket"}
	}

	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		return &TakeoverError{Path: path, Fd: fd, Reason: "cannot make non-blocking", Err: err}
	}

	adopted = true
	s.fd = fd
	s.listening = true
	s.logger.Debug("Took over socket from system server", slog.String("path", path), slog.Int("fd", fd))
	return nil
}

// Run waits for pending connections and fires OnReadyToAccept until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	fd, listening := s.fd, s.listening
	s.mu.Unlock()
	if !listening {
		panic("localserver: Run called on a server that is not listening")
	}

	// #nosec G115 - descriptors fit in int32
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		fds[0].Revents = 0
		n, err := unix.Poll(fds, int(pollInterval/time.Millisecond))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			continue
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLNVAL) != 0 {
			return fmt.Errorf("poll: listening socket failed (revents %#x)", fds[0].Revents)
		}
		if fds[0].Revents&unix.POLLIN != 0 && s.OnReadyToAccept != nil {
			s.OnReadyToAccept()
		}
	}
}

// Accept returns the next pending connection, or ErrWouldBlock when there is none.
// Accept panics when the server is not listening.
func (s *Server) Accept() (*net.UnixConn, error) {
	s.mu.Lock()
	fd, listening := s.fd, s.listening
	s.mu.Unlock()
	if !listening {
		panic("localserver: Accept called on a server that is not listening")
	}

	nfd, _, err := unix.Accept4(fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) {
			return nil, ErrWouldBlock
		}
		s.logger.Warn("accept failed", slog.Any("error", err))
		return nil, fmt.Errorf("accept: %w", err)
	}

	file := os.NewFile(uintptr(nfd), "localserver-client")
	conn, err := net.FileConn(file)
	if closeErr := file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("wrap accepted socket: %w", err)
	}

	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		_ = conn.Close()
		return nil, fmt.Errorf("accepted connection is %T, not a Unix socket", conn)
	}
	return unixConn, nil
}

// Close closes the listening socket. The socket file, if any, is left in place.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.listening {
		return nil
	}
	s.listening = false
	fd := s.fd
	s.fd = -1
	return unix.Close(fd)
}
