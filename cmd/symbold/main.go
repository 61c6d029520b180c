//go:build linux

// Package main provides symbold, a daemon that symbolicates addresses in ELF32 images for
// clients connected to a local Unix socket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/isseis/go-safe-elf-image/internal/cmdcommon"
	"github.com/isseis/go-safe-elf-image/internal/config"
	"github.com/isseis/go-safe-elf-image/internal/localserver"
	"github.com/isseis/go-safe-elf-image/internal/symbolservice"
)

type daemonConfig struct {
	configPath string
	socketPath string
	verbose    bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runWithContext(ctx, args, stdout, stderr)
}

func runWithContext(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, flags, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		printUsage(flags, stderr)
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	appCfg, err := cmdcommon.LoadConfig(cfg.configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	if cfg.verbose {
		appCfg.Image.Verbose = true
	}
	if cfg.socketPath != "" {
		appCfg.Server.SocketPath = cfg.socketPath
		if err := appCfg.Validate(); err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	logger, closeLog, err := cmdcommon.SetupLogger("symbold", appCfg, cfg.verbose, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error setting up logging: %v\n", err)
		return 1
	}
	defer func() {
		if err := closeLog(); err != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: failed to close log file: %v\n", err)
		}
	}()

	if err := serve(ctx, appCfg, logger); err != nil {
		logger.Error("symbold failed", slog.Any("error", err))
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "symbold stopped")
	return 0
}

// serve listens on the configured socket and answers requests until ctx is done.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	service := symbolservice.New(symbolservice.Options{
		MaxCachedImages: cfg.Server.MaxCachedImages,
		MaxFileSize:     cfg.Image.MaxFileSize,
		Verbose:         cfg.Image.Verbose,
		NoDemangle:      !cfg.Image.Demangle,
		Logger:          logger,
	})

	server := localserver.New(logger)
	path := cfg.Server.SocketPath
	ownsSocket, err := listen(server, cfg.Server, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := server.Close(); err != nil {
			logger.Warn("Failed to close socket", slog.Any("error", err))
		}
		if ownsSocket {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("Failed to remove socket", slog.String("path", path), slog.Any("error", err))
			}
		}
	}()

	var wg sync.WaitGroup
	server.OnReadyToAccept = func() {
		for {
			conn, err := server.Accept()
			if errors.Is(err, localserver.ErrWouldBlock) {
				return
			}
			if err != nil {
				logger.Warn("Accept failed", slog.Any("error", err))
				return
			}
			wg.Go(func() {
				defer func() { _ = conn.Close() }()
				if err := service.Handle(ctx, conn); err != nil {
					logger.Warn("Connection failed", slog.Any("error", err))
				}
			})
		}
	}

	logger.Info("symbold ready", slog.String("socket", path))
	err = server.Run(ctx)
	wg.Wait()
	logger.Info("symbold shutting down", slog.Int("cached_images", service.CachedImages()))
	return err
}

// listen takes over an inherited socket when configured to, or binds a fresh one. It reports
// whether the socket file belongs to this process.
func listen(server *localserver.Server, cfg config.ServerConfig, logger *slog.Logger) (bool, error) {
	if cfg.TakeOver && os.Getenv(localserver.TakeoverEnv) != "" {
		if err := server.TakeOverFromSystemServer(cfg.SocketPath); err != nil {
			return false, fmt.Errorf("take over %s: %w", cfg.SocketPath, err)
		}
		return false, nil
	}

	if err := removeStaleSocket(cfg.SocketPath); err != nil {
		return false, err
	}
	if err := server.Listen(cfg.SocketPath); err != nil {
		return false, fmt.Errorf("listen on %s: %w", cfg.SocketPath, err)
	}
	logger.Debug("Listening", slog.String("socket", cfg.SocketPath))
	return true, nil
}

// removeStaleSocket deletes a socket file left behind by a previous run. Anything other than
// a socket is left alone.
func removeStaleSocket(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Mode().Type() != fs.ModeSocket {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	return nil
}

func parseArgs(args []string, stderr io.Writer) (*daemonConfig, *flag.FlagSet, error) {
	cfg := &daemonConfig{}

	flags := flag.NewFlagSet("symbold", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { printUsage(flags, stderr) }
	flags.StringVar(&cfg.configPath, "config", "", "Path to the TOML configuration file")
	flags.StringVar(&cfg.socketPath, "socket", "", "Unix socket path, overriding server.socket_path")
	flags.BoolVar(&cfg.verbose, "v", false, "Log debug output and diagnostics")

	if err := flags.Parse(args); err != nil {
		return nil, flags, err
	}
	if flags.NArg() != 0 {
		return nil, flags, fmt.Errorf("unexpected arguments: %v", flags.Args())
	}
	return cfg, flags, nil
}

func printUsage(flags *flag.FlagSet, w io.Writer) {
	if flags == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "Usage: %s [flags]\n", filepath.Base(os.Args[0]))
	flags.PrintDefaults()
}
