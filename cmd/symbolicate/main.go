// Package main provides the symbolicate command, which resolves addresses inside an ELF32
// image to "symbol +offset" form.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/isseis/go-safe-elf-image/internal/cmdcommon"
	"github.com/isseis/go-safe-elf-image/internal/elfimage"
	"github.com/isseis/go-safe-elf-image/internal/symbolservice"
)

var errNoAddresses = errors.New("an ELF file and at least one address must be provided")

type symbolicateConfig struct {
	file       string
	addresses  []string
	configPath string
	noOffset   bool
	raw        bool
	function   string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, fs, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		printUsage(fs, stderr)
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	appCfg, err := cmdcommon.LoadConfig(cfg.configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	if cfg.raw {
		appCfg.Image.Demangle = false
	}

	logger, closeLog, err := cmdcommon.SetupLogger("symbolicate", appCfg, false, stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error setting up logging: %v\n", err)
		return 1
	}
	defer func() {
		if err := closeLog(); err != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: failed to close log file: %v\n", err)
		}
	}()

	img, err := cmdcommon.OpenImage(cfg.file, appCfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if cfg.function != "" {
		return printFunction(img, cfg.function, stdout, stderr)
	}

	exitCode := 0
	for _, text := range cfg.addresses {
		address, err := symbolservice.ParseAddress(text)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			exitCode = 1
			continue
		}
		if cfg.noOffset {
			name, _ := img.Symbolicate(address)
			_, _ = fmt.Fprintf(stdout, "%s %s\n", symbolservice.FormatAddress(address), name)
			continue
		}
		_, _ = fmt.Fprintf(stdout, "%s %s\n", symbolservice.FormatAddress(address), img.SymbolicateString(address))
	}
	return exitCode
}

// printFunction prints the address and size of the first function whose demangled name,
// without parameters, is name.
func printFunction(img *elfimage.Image, name string, stdout, stderr io.Writer) int {
	sym, ok := img.FindDemangledFunction(name)
	if !ok {
		_, _ = fmt.Fprintf(stderr, "Error: no function named %q\n", name)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "%s %s size=%d\n", symbolservice.FormatAddress(sym.Value()), sym.Name(), sym.Size())
	return 0
}

func parseArgs(args []string, stderr io.Writer) (*symbolicateConfig, *flag.FlagSet, error) {
	cfg := &symbolicateConfig{}

	fs := flag.NewFlagSet("symbolicate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(fs, stderr) }
	fs.StringVar(&cfg.configPath, "config", "", "Path to the TOML configuration file")
	fs.BoolVar(&cfg.noOffset, "no-offset", false, "Print only the symbol name")
	fs.BoolVar(&cfg.raw, "raw", false, "Print mangled names")
	fs.StringVar(&cfg.function, "function", "", "Look up a function by demangled name instead of resolving addresses")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}

	rest := fs.Args()
	if len(rest) == 0 || (cfg.function == "" && len(rest) < 2) {
		return nil, fs, errNoAddresses
	}
	cfg.file = rest[0]
	cfg.addresses = rest[1:]
	return cfg, fs, nil
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	if fs == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "Usage: %s [flags] <file> <address> [<address>...]\n", filepath.Base(os.Args[0]))
	_, _ = fmt.Fprintf(w, "       %s -function <name> <file>\n", filepath.Base(os.Args[0]))
	fs.PrintDefaults()
}
