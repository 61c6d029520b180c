package elfimage

import (
	"context"
	"fmt"
	"log/slog"
)

// Dump logs a structural summary of the image at debug level.
func (img *Image) Dump() {
	ctx := context.Background()
	log := img.logger
	if !log.Enabled(ctx, slog.LevelDebug) {
		return
	}

	log.Debug("ELF image", slog.Bool("is_valid", img.valid), slog.Int("size", len(img.data)))
	if !img.valid {
		return
	}

	h := img.header()
	log.Debug("header",
		slog.String("type", ObjectFileTypeString(h.Type())),
		slog.String("machine", h.Machine().String()),
		slog.String("entry", hex(h.Entry())),
		slog.Uint64("shoff", uint64(h.SectionHeaderOffset())),
		slog.Uint64("shnum", uint64(h.SectionHeaderCount())),
		slog.Uint64("phoff", uint64(h.ProgramHeaderOffset())),
		slog.Uint64("phnum", uint64(h.ProgramHeaderCount())),
		slog.Uint64("shstrndx", uint64(h.SectionNameTableIndex())))

	for ph := range img.ProgramHeaders() {
		log.Debug("program header",
			slog.Uint64("index", uint64(ph.Index())),
			slog.String("type", ph.Type().String()),
			slog.String("offset", hex(ph.Offset())),
			slog.String("flags", ph.Flags().String()))
	}

	for section := range img.Sections() {
		log.Debug("section",
			slog.Uint64("index", uint64(section.Index())),
			slog.String("name", section.Name()),
			slog.String("type", section.Type().String()),
			slog.String("offset", hex(section.Offset())),
			slog.Uint64("size", uint64(section.Size())))
	}

	log.Debug("symbols",
		slog.Uint64("count", uint64(img.SymbolCount())),
		slog.Uint64("table", uint64(img.symbolTable.index)))
	for sym := range img.Symbols() {
		if sym.Index() == 0 {
			continue
		}
		log.Debug("symbol",
			slog.Uint64("index", uint64(sym.Index())),
			slog.String("name", sym.Name()),
			slog.String("section", img.SectionIndexToString(sym.SectionIndex())),
			slog.String("value", hex(sym.Value())),
			slog.Uint64("size", uint64(sym.Size())))
	}
}

func hex(v uint32) string {
	return fmt.Sprintf("%#x", v)
}
