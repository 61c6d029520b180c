package localserver

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyListening is returned by Listen and TakeOverFromSystemServer on a server that
	// already has a listening socket.
	ErrAlreadyListening = errors.New("already listening")

	// ErrNoTakeoverSocket is returned when SOCKET_TAKEOVER names no socket for the path.
	ErrNoTakeoverSocket = errors.New("no socket passed by system server")

	// ErrWouldBlock is returned by Accept when no connection is pending.
	ErrWouldBlock = errors.New("no pending connection")
)

// TakeoverError reports an inherited descriptor that cannot be adopted.
type TakeoverError struct {
	Path   string
	Fd     int
	Reason string
	Err    error
}

func (e *TakeoverError) Error() string {
	msg := fmt.Sprintf("cannot take over socket %q (fd %d): %s", e.Path, e.Fd, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TakeoverError) Unwrap() error {
	return e.Err
}
