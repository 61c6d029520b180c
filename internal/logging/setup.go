package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/isseis/go-safe-elf-image/internal/terminal"
)

// Options configures Setup.
type Options struct {
	// Tool names the program in log file names and in the "tool" attribute
	Tool string

	// Level is the minimum level for the console handlers
	Level slog.Level

	// LogDir enables a JSON log file per run when non-empty
	LogDir string

	// Stderr receives console output. Defaults to os.Stderr.
	Stderr io.Writer

	// Terminal overrides terminal detection
	Terminal terminal.Options
}

// Setup builds the handler stack:
//   - InteractiveHandler when stderr is a terminal, a plain text handler otherwise;
//   - a JSON handler writing to a fresh file in LogDir, at debug level, when LogDir is set.
//
// The returned function closes the log file, if any.
func Setup(opts Options) (*slog.Logger, func() error, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	var file *os.File
	if f, ok := stderr.(*os.File); ok {
		file = f
	}
	caps := terminal.Detect(file, opts.Terminal)

	interactive, err := NewInteractiveHandler(stderr, caps, opts.Level)
	if err != nil {
		return nil, nil, err
	}
	text, err := NewConditionalTextHandler(stderr, caps, &slog.HandlerOptions{Level: opts.Level})
	if err != nil {
		return nil, nil, err
	}
	handlers := []slog.Handler{interactive, text}

	closer := func() error { return nil }
	if opts.LogDir != "" {
		opener := NewSafeFileOpener()
		path, runID, err := opener.GenerateLogFilename(opts.LogDir, opts.Tool)
		if err != nil {
			return nil, nil, err
		}
		logFile, err := opener.OpenFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		jsonHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: slog.LevelDebug})
		handlers = append(handlers, jsonHandler.WithAttrs([]slog.Attr{slog.String("run_id", runID)}))
		closer = logFile.Close
	}

	logger := slog.New(NewMultiHandler(handlers...))
	if opts.Tool != "" {
		logger = logger.With(slog.String("tool", opts.Tool))
	}
	return logger, closer, nil
}
