// Package main provides the elfdump command, which prints the structure of an ELF32
// little-endian image: file header, program headers, sections and optionally symbols and
// relocations.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/isseis/go-safe-elf-image/internal/cmdcommon"
	"github.com/isseis/go-safe-elf-image/internal/elfimage"
)

var errNoFileProvided = errors.New("exactly one ELF file must be provided")

type dumpConfig struct {
	file        string
	configPath  string
	symbols     bool
	relocations bool
	verbose     bool
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
	if cfg.verbose {
		appCfg.Image.Verbose = true
	}

	logger, closeLog, err := cmdcommon.SetupLogger("elfdump", appCfg, cfg.verbose, stderr)
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
		logger.Error("Cannot load ELF image", slog.String("path", cfg.file), slog.Any("error", err))
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	img.Dump()

	dump(stdout, img, cfg)
	return 0
}

func parseArgs(args []string, stderr io.Writer) (*dumpConfig, *flag.FlagSet, error) {
	cfg := &dumpConfig{}

	fs := flag.NewFlagSet("elfdump", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(fs, stderr) }
	fs.StringVar(&cfg.configPath, "config", "", "Path to the TOML configuration file")
	fs.BoolVar(&cfg.symbols, "symbols", false, "Print the symbol table")
	fs.BoolVar(&cfg.relocations, "relocations", false, "Print the relocations of each section")
	fs.BoolVar(&cfg.verbose, "v", false, "Log diagnostics about malformed input")

	if err := fs.Parse(args); err != nil {
		return nil, fs, err
	}
	if fs.NArg() != 1 {
		return nil, fs, errNoFileProvided
	}
	cfg.file = fs.Arg(0)
	return cfg, fs, nil
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	if fs == nil {
		return
	}
	_, _ = fmt.Fprintf(w, "Usage: %s [flags] <file>\n", filepath.Base(os.Args[0]))
	fs.PrintDefaults()
}

func dump(w io.Writer, img *elfimage.Image, cfg *dumpConfig) {
	h := img.Header()
	_, _ = fmt.Fprintln(w, "ELF header:")
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', 0)
	_, _ = fmt.Fprintf(tw, "  Type:\t%s\n", elfimage.ObjectFileTypeString(h.Type()))
	_, _ = fmt.Fprintf(tw, "  Machine:\t%s\n", h.Machine())
	_, _ = fmt.Fprintf(tw, "  Entry point:\t%#x\n", h.Entry())
	_, _ = fmt.Fprintf(tw, "  Program headers:\t%d at %#x\n", h.ProgramHeaderCount(), h.ProgramHeaderOffset())
	_, _ = fmt.Fprintf(tw, "  Section headers:\t%d at %#x\n", h.SectionHeaderCount(), h.SectionHeaderOffset())
	_, _ = fmt.Fprintf(tw, "  Section names:\t%d\n", h.SectionNameTableIndex())
	_ = tw.Flush()

	_, _ = fmt.Fprintf(w, "\nProgram headers (%d):\n", img.ProgramHeaderCount())
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "  Idx\tType\tOffset\tVirtAddr\tFileSiz\tMemSiz\tFlags\tAlign")
	for ph := range img.ProgramHeaders() {
		_, _ = fmt.Fprintf(tw, "  %d\t%s\t%#x\t%#x\t%#x\t%#x\t%s\t%#x\n",
			ph.Index(), ph.Type(), ph.Offset(), ph.VirtualAddress(), ph.FileSize(), ph.MemorySize(),
			permissions(ph), ph.Alignment())
	}
	_ = tw.Flush()

	_, _ = fmt.Fprintf(w, "\nSections (%d):\n", img.SectionCount())
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "  Idx\tName\tType\tAddr\tOffset\tSize\tEntSize")
	for section := range img.Sections() {
		_, _ = fmt.Fprintf(tw, "  %d\t%s\t%s\t%#x\t%#x\t%#x\t%d\n",
			section.Index(), section.Name(), section.Type(), section.Address(), section.Offset(),
			section.Size(), section.EntrySize())
	}
	_ = tw.Flush()

	if cfg.symbols {
		dumpSymbols(w, img)
	}
	if cfg.relocations {
		dumpRelocations(w, img)
	}
}

func permissions(ph elfimage.ProgramHeader) string {
	perm := []byte("---")
	if ph.IsReadable() {
		perm[0] = 'r'
	}
	if ph.IsWritable() {
		perm[1] = 'w'
	}
	if ph.IsExecutable() {
		perm[2] = 'x'
	}
	return string(perm)
}

func dumpSymbols(w io.Writer, img *elfimage.Image) {
	_, _ = fmt.Fprintf(w, "\nSymbols (%d):\n", img.SymbolCount())
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "  Num\tValue\tSize\tType\tBind\tVis\tSection\tName")
	for sym := range img.Symbols() {
		name := sym.Name()
		if demangled := elfimage.Demangle(name); demangled != name {
			name = fmt.Sprintf("%s (%s)", name, demangled)
		}
		_, _ = fmt.Fprintf(tw, "  %d\t%#x\t%d\t%s\t%s\t%s\t%s\t%s\n",
			sym.Index(), sym.Value(), sym.Size(), sym.Type(), sym.Bind(), sym.Visibility(),
			img.SectionIndexToString(sym.SectionIndex()), name)
	}
	_ = tw.Flush()
}

func dumpRelocations(w io.Writer, img *elfimage.Image) {
	found := false
	for section := range img.Sections() {
		rels, ok := section.Relocations()
		if !ok {
			continue
		}
		found = true
		_, _ = fmt.Fprintf(w, "\nRelocation section '%s' for '%s' (%d entries):\n",
			rels.Name(), section.Name(), rels.RelocationCount())
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "  Offset\tInfo\tType\tSymbol")
		for rel := range rels.Entries() {
			target := elfimage.UnknownSymbol
			if sym, ok := rel.Symbol(); ok {
				target = sym.Name()
			}
			_, _ = fmt.Fprintf(tw, "  %#x\t%#x\t%s\t%s\n", rel.Offset(), rel.Info(), rel.TypeName(), target)
		}
		_ = tw.Flush()
	}
	if !found {
		_, _ = fmt.Fprintln(w, "\nThere are no relocations in this file.")
	}
}
