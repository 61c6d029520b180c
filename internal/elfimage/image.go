package elfimage

import (
	"bytes"
	"context"
	"debug/elf"
	"fmt"
	"iter"
	"log/slog"
)

// Options configures an Image.
type Options struct {
	// Verbose enables diagnostics about malformed input.
	Verbose bool

	// Logger receives diagnostics and Dump output. Defaults to slog.Default().
	Logger *slog.Logger

	// NoDemangle makes Symbolicate return raw symbol names.
	NoDemangle bool
}

type optionalIndex struct {
	index uint32
	ok    bool
}

// Image is a parsed view of an ELF32 image held in memory. It borrows the buffer passed to
// New; the caller must keep the buffer alive and unmodified for the lifetime of the Image.
type Image struct {
	data       []byte
	verbose    bool
	noDemangle bool
	logger     *slog.Logger

	valid bool
	err   error

	symbolTable optionalIndex
	stringTable optionalIndex
	symbolCount uint32

	sortedSymbols []sortedSymbol
	sortedBuilt   bool
}

// New parses data and returns the resulting Image. It never fails; check IsValid (and Err for
// the reason) before using any other accessor.
func New(data []byte, opts Options) *Image {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	img := &Image{
		data:       data,
		verbose:    opts.Verbose,
		noDemangle: opts.NoDemangle,
		logger:     logger,
	}
	img.parse()
	return img
}

func (img *Image) parse() {
	if err := ValidateHeader(img.data); err != nil {
		img.reject("ELF header not valid", err)
		return
	}
	if err := ValidateProgramHeaders(img.data); err != nil {
		img.reject("ELF program headers not valid", err)
		return
	}

	img.valid = true

	shstrndx := uint32(img.header().SectionNameTableIndex())
	for i := uint32(0); i < img.SectionCount(); i++ {
		section := img.Section(i)
		switch section.Type() {
		case elf.SHT_SYMTAB:
			if img.symbolTable.ok {
				img.reject("ELF section headers not valid",
					fmt.Errorf("%w: sections %d and %d", ErrDuplicateSymbolTable, img.symbolTable.index, i))
				return
			}
			img.symbolTable = optionalIndex{index: i, ok: true}
		case elf.SHT_STRTAB:
			if i == shstrndx {
				continue
			}
			if name, ok := img.SectionHeaderTableString(section.nameOffset()); ok && name == StringTableName {
				img.stringTable = optionalIndex{index: i, ok: true}
			}
		}
	}

	img.symbolCount = img.countSymbols()
}

// countSymbols derives the symbol count from the symbol-table section, refusing tables that
// do not fit the image or use an unexpected entry size.
func (img *Image) countSymbols() uint32 {
	if !img.symbolTable.ok {
		return 0
	}
	table := img.Section(img.symbolTable.index)
	if table.EntrySize() != SymbolSize {
		img.diagnose("symbol table has unexpected entry size",
			slog.Uint64("section", uint64(table.Index())),
			slog.Uint64("entry_size", uint64(table.EntrySize())))
		return 0
	}
	if !fits(uint64(table.Offset()), uint64(table.Size()), len(img.data)) {
		img.diagnose("symbol table lies outside image",
			slog.Any("error", ErrOffsetOutOfBounds),
			slog.Uint64("offset", uint64(table.Offset())),
			slog.Uint64("size", uint64(table.Size())),
			slog.Int("image_size", len(img.data)))
		return 0
	}
	return table.EntryCount()
}

func (img *Image) reject(msg string, err error) {
	img.valid = false
	img.err = err
	if img.verbose {
		img.logger.Warn(msg, slog.Any("error", err))
	}
}

func (img *Image) diagnose(msg string, attrs ...slog.Attr) {
	if img.verbose {
		img.logger.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
	}
}

func (img *Image) mustBeValid() {
	if !img.valid {
		panic("elfimage: accessor used on an invalid image")
	}
}

func checkIndex(kind string, index, count uint32) {
	if index >= count {
		panic(fmt.Sprintf("elfimage: %s index %d out of range (count %d)", kind, index, count))
	}
}

// IsValid reports whether the image passed validation.
func (img *Image) IsValid() bool { return img.valid }

// Err returns the reason the image is invalid, or nil.
func (img *Image) Err() error { return img.err }

// Size returns the length of the underlying buffer.
func (img *Image) Size() int { return len(img.data) }

func (img *Image) header() Header {
	if len(img.data) < HeaderSize {
		panic("elfimage: image shorter than file header")
	}
	return Header{raw: img.data}
}

// Header returns the file header.
func (img *Image) Header() Header {
	img.mustBeValid()
	return img.header()
}

// RawData returns the image bytes starting at offset. The offset must already be known to lie
// inside the image; callers must bounds-check any further indexing into the result.
func (img *Image) RawData(offset uint32) []byte {
	if uint64(offset) >= uint64(len(img.data)) {
		panic(fmt.Sprintf("elfimage: raw offset %#x outside %d-byte image", offset, len(img.data)))
	}
	return img.data[offset:]
}

// SectionCount returns the number of section headers.
func (img *Image) SectionCount() uint32 {
	img.mustBeValid()
	return uint32(img.header().SectionHeaderCount())
}

// ProgramHeaderCount returns the number of program headers.
func (img *Image) ProgramHeaderCount() uint32 {
	img.mustBeValid()
	return uint32(img.header().ProgramHeaderCount())
}

// SymbolCount returns the number of entries in the symbol table, including the null entry at
// index 0, or 0 when the image has no usable symbol table.
func (img *Image) SymbolCount() uint32 {
	img.mustBeValid()
	return img.symbolCount
}

// Section returns the section at index.
func (img *Image) Section(index uint32) Section {
	img.mustBeValid()
	checkIndex("section", index, img.SectionCount())
	return Section{image: img, index: index}
}

// ProgramHeader returns the program header at index.
func (img *Image) ProgramHeader(index uint32) ProgramHeader {
	img.mustBeValid()
	checkIndex("program header", index, img.ProgramHeaderCount())
	return ProgramHeader{image: img, index: index}
}

// Symbol returns the symbol-table entry at index.
func (img *Image) Symbol(index uint32) Symbol {
	img.mustBeValid()
	checkIndex("symbol", index, img.SymbolCount())
	return Symbol{image: img, index: index}
}

// Sections iterates over all sections in table order.
func (img *Image) Sections() iter.Seq[Section] {
	return func(yield func(Section) bool) {
		for i := uint32(0); i < img.SectionCount(); i++ {
			if !yield(img.Section(i)) {
				return
			}
		}
	}
}

// ProgramHeaders iterates over all program headers in table order.
func (img *Image) ProgramHeaders() iter.Seq[ProgramHeader] {
	return func(yield func(ProgramHeader) bool) {
		for i := uint32(0); i < img.ProgramHeaderCount(); i++ {
			if !yield(img.ProgramHeader(i)) {
				return
			}
		}
	}
}

// Symbols iterates over all symbol-table entries, starting with the null entry.
func (img *Image) Symbols() iter.Seq[Symbol] {
	return func(yield func(Symbol) bool) {
		for i := uint32(0); i < img.SymbolCount(); i++ {
			if !yield(img.Symbol(i)) {
				return
			}
		}
	}
}

// TableString returns the NUL-terminated string at offset inside the string-table section
// tableIndex. ok is false when the section is not a string table or the offset points outside
// the image. Strings are truncated at PageSize bytes.
func (img *Image) TableString(tableIndex, offset uint32) (string, bool) {
	table := img.Section(tableIndex)
	if table.Type() != elf.SHT_STRTAB {
		return "", false
	}
	abs := uint64(table.Offset()) + uint64(offset)
	if abs >= uint64(len(img.data)) {
		img.diagnose("string table offset outside image",
			slog.Any("error", ErrOffsetOutOfBounds),
			slog.Uint64("table", uint64(tableIndex)),
			slog.Uint64("offset", uint64(offset)),
			slog.Uint64("computed", abs),
			slog.Int("image_size", len(img.data)))
		return "", false
	}
	s := img.data[abs:min(abs+PageSize, uint64(len(img.data)))]
	if n := bytes.IndexByte(s, 0); n >= 0 {
		s = s[:n]
	}
	return string(s), true
}

// SectionHeaderTableString resolves offset against the section-name string table.
func (img *Image) SectionHeaderTableString(offset uint32) (string, bool) {
	img.mustBeValid()
	return img.TableString(uint32(img.header().SectionNameTableIndex()), offset)
}

// StringTableString resolves offset against the primary string table (.strtab).
func (img *Image) StringTableString(offset uint32) (string, bool) {
	img.mustBeValid()
	if !img.stringTable.ok {
		return "", false
	}
	return img.TableString(img.stringTable.index, offset)
}

// SectionIndexToString names the section referenced by a symbol's section index.
func (img *Image) SectionIndexToString(index elf.SectionIndex) string {
	img.mustBeValid()
	switch {
	case index == elf.SHN_UNDEF:
		return "Undefined"
	case index >= elf.SHN_LORESERVE:
		return "Reserved"
	case uint64(index) >= uint64(img.SectionCount()):
		return fmt.Sprintf("Invalid(%d)", index)
	}
	return img.Section(uint32(index)).Name()
}

// LookupSection returns the first section whose name is exactly name.
func (img *Image) LookupSection(name string) (Section, bool) {
	for section := range img.Sections() {
		if section.Name() == name {
			return section, true
		}
	}
	return Section{}, false
}
