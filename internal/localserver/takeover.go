package localserver

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
)

// TakeoverEnv carries sockets inherited from a system server as "path:fd path:fd ...".
const TakeoverEnv = "SOCKET_TAKEOVER"

var takeover struct {
	mu      sync.Mutex
	parsed  bool
	sockets map[string]int
}

// parseTakeoverSockets decodes value. Malformed entries are skipped and reported.
func parseTakeoverSockets(value string) (map[string]int, []error) {
	sockets := make(map[string]int)
	var errs []error
	for _, entry := range strings.Fields(value) {
		i := strings.LastIndexByte(entry, ':')
		if i < 0 {
			errs = append(errs, fmt.Errorf("entry %q has no fd", entry))
			continue
		}
		fd, err := strconv.Atoi(entry[i+1:])
		if err != nil || fd < 0 {
			errs = append(errs, fmt.Errorf("entry %q has invalid fd", entry))
			continue
		}
		sockets[entry[:i]] = fd
	}
	return sockets, errs
}

// takeoverSocket returns the inherited fd for path. The environment is read and cleared on
// first use so that children do not inherit it. An empty path selects the only socket.
func takeoverSocket(logger *slog.Logger, path string) (int, error) {
	takeover.mu.Lock()
	defer takeover.mu.Unlock()

	if !takeover.parsed {
		sockets, errs := parseTakeoverSockets(os.Getenv(TakeoverEnv))
		for _, err := range errs {
			logger.Warn("Ignoring malformed takeover entry", slog.Any("error", err))
		}
		takeover.sockets = sockets
		takeover.parsed = true
		if err := os.Unsetenv(TakeoverEnv); err != nil {
			logger.Warn("Failed to clear takeover environment", slog.Any("error", err))
		}
	}

	if path == "" {
		if len(takeover.sockets) != 1 {
			return -1, fmt.Errorf("%w: %d sockets passed, cannot pick the only one", ErrNoTakeoverSocket, len(takeover.sockets))
		}
		for only, fd := range takeover.sockets {
			path = only
			logger.Debug("Taking over the only socket", slog.String("path", path), slog.Int("fd", fd))
		}
	}

	fd, ok := takeover.sockets[path]
	if !ok {
		return -1, fmt.Errorf("%w: %q", ErrNoTakeoverSocket, path)
	}
	delete(takeover.sockets, path)
	return fd, nil
}
