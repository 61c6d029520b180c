package elfimage

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"log/slog"
	"strings"
	"testing"

	elfimagetesting "github.com/isseis/go-safe-elf-image/internal/elfimage/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sectionHeaderField returns the buffer offset of a field of section index in a built image.
func sectionHeaderField(data []byte, index uint32, field int) int {
	shoff := binary.LittleEndian.Uint32(data[ehShoff:])
	return int(shoff) + int(index)*SectionHeaderSize + field
}

func TestNew_ValidImage(t *testing.T) {
	b := elfimagetesting.AlphaBeta()
	b.Entry = 0x1000
	data := b.Build()

	img := New(data, Options{})
	require.True(t, img.IsValid())
	require.NoError(t, img.Err())

	assert.Equal(t, uint32(5), img.SectionCount()) // null, .text, .symtab, .strtab, .shstrtab
	assert.Equal(t, uint32(0), img.ProgramHeaderCount())
	assert.Equal(t, uint32(3), img.SymbolCount()) // null, alpha, beta
	assert.Equal(t, len(data), img.Size())

	h := img.Header()
	assert.Equal(t, elf.ET_EXEC, h.Type())
	assert.Equal(t, elf.EM_386, h.Machine())
	assert.Equal(t, uint32(0x1000), h.Entry())
	assert.Equal(t, uint16(b.SectionNameTableIndex()), h.SectionNameTableIndex())
}

func TestNew_ShortBuffer(t *testing.T) {
	data := elfimagetesting.AlphaBeta().Build()

	for n := 0; n < HeaderSize; n++ {
		img := New(data[:n], Options{})
		assert.False(t, img.IsValid(), "length %d", n)
		assert.ErrorIs(t, img.Err(), ErrInvalidHeader)
	}
}

func TestNew_InvalidHeader(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(data []byte)
	}{
		{
			name:    "bad magic",
			corrupt: func(data []byte) { data[1] = 'X' },
		},
		{
			name:    "64-bit class",
			corrupt: func(data []byte) { data[elf.EI_CLASS] = byte(elf.ELFCLASS64) },
		},
		{
			name:    "big endian",
			corrupt: func(data []byte) { data[elf.EI_DATA] = byte(elf.ELFDATA2MSB) },
		},
		{
			name:    "unknown object type",
			corrupt: func(data []byte) { elfimagetesting.PutUint16(data, ehType, 0x1234) },
		},
		{
			name:    "wrong header size",
			corrupt: func(data []byte) { elfimagetesting.PutUint16(data, ehEhsize, 64) },
		},
		{
			name:    "section table past end",
			corrupt: func(data []byte) { elfimagetesting.PutUint32(data, ehShoff, uint32(len(data))) },
		},
		{
			name:    "section table overflows",
			corrupt: func(data []byte) { elfimagetesting.PutUint32(data, ehShoff, 0xfffffff0) },
		},
		{
			name:    "absurd section count",
			corrupt: func(data []byte) { elfimagetesting.PutUint16(data, ehShnum, 0xffff) },
		},
		{
			name:    "wrong section entry size",
			corrupt: func(data []byte) { elfimagetesting.PutUint16(data, ehShentsize, 64) },
		},
		{
			name:    "section name table out of range",
			corrupt: func(data []byte) { elfimagetesting.PutUint16(data, ehShstrndx, 99) },
		},
		{
			name: "program table past end",
			corrupt: func(data []byte) {
				elfimagetesting.PutUint16(data, ehPhnum, 1)
				elfimagetesting.PutUint16(data, ehPhentsize, ProgramHeaderSize)
				elfimagetesting.PutUint32(data, ehPhoff, uint32(len(data)-8))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := elfimagetesting.AlphaBeta().Build()
			tt.corrupt(data)

			img := New(data, Options{})
			assert.False(t, img.IsValid())
			assert.ErrorIs(t, img.Err(), ErrInvalidHeader)
		})
	}
}

func TestNew_InvalidProgramHeaders(t *testing.T) {
	tests := []struct {
		name    string
		program elfimagetesting.Program
	}{
		{
			name:    "segment past end of file",
			program: elfimagetesting.Program{Type: elf.PT_LOAD, Offset: 0, FileSize: 0x100000, MemSize: 0x100000},
		},
		{
			name:    "file size larger than memory size",
			program: elfimagetesting.Program{Type: elf.PT_LOAD, Offset: 0, FileSize: 0x40, MemSize: 0x20},
		},
		{
			name:    "alignment not a power of two",
			program: elfimagetesting.Program{Type: elf.PT_LOAD, Offset: 0, FileSize: 0x40, MemSize: 0x40, Align: 3},
		},
		{
			name:    "address and offset disagree",
			program: elfimagetesting.Program{Type: elf.PT_LOAD, Offset: 0x10, VAddr: 0x1000, FileSize: 0x20, MemSize: 0x20, Align: 0x1000},
		},
		{
			name:    "interpreter not terminated",
			program: elfimagetesting.Program{Type: elf.PT_INTERP, Offset: 0, FileSize: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := elfimagetesting.AlphaBeta()
			b.AddProgram(tt.program)

			img := New(b.Build(), Options{})
			assert.False(t, img.IsValid())
			assert.ErrorIs(t, img.Err(), ErrInvalidProgramHeaders)
		})
	}
}

func TestNew_ProgramHeaders(t *testing.T) {
	b := elfimagetesting.AlphaBeta()
	b.AddProgram(elfimagetesting.Program{Type: elf.PT_NULL, Offset: 0xffffffff, FileSize: 0xffffffff})
	b.AddProgram(elfimagetesting.Program{
		Type: elf.PT_LOAD, Flags: elf.PF_R | elf.PF_X,
		Offset: 0, VAddr: 0x8048000, FileSize: HeaderSize, MemSize: 0x2000, Align: 0x1000,
	})

	img := New(b.Build(), Options{})
	require.True(t, img.IsValid(), "err: %v", img.Err())
	require.Equal(t, uint32(2), img.ProgramHeaderCount())

	null := img.ProgramHeader(0)
	assert.Equal(t, elf.PT_NULL, null.Type())
	assert.Nil(t, null.RawData())

	load := img.ProgramHeader(1)
	assert.Equal(t, elf.PT_LOAD, load.Type())
	assert.Equal(t, uint32(1), load.Index())
	assert.Equal(t, uint32(0x8048000), load.VirtualAddress())
	assert.Equal(t, uint32(0x2000), load.MemorySize())
	assert.Equal(t, uint32(0x1000), load.Alignment())
	assert.True(t, load.IsReadable())
	assert.False(t, load.IsWritable())
	assert.True(t, load.IsExecutable())
	assert.Equal(t, []byte("\x7fELF"), load.RawData()[:4])

	var types []elf.ProgType
	for ph := range img.ProgramHeaders() {
		types = append(types, ph.Type())
	}
	assert.Equal(t, []elf.ProgType{elf.PT_NULL, elf.PT_LOAD}, types)
}

func TestNew_DuplicateSymbolTable(t *testing.T) {
	b := elfimagetesting.AlphaBeta()
	b.AddSection(elfimagetesting.Section{
		Name:    ".symtab.extra",
		Type:    elf.SHT_SYMTAB,
		Data:    make([]byte, SymbolSize*2),
		EntSize: SymbolSize,
	})

	img := New(b.Build(), Options{})
	assert.False(t, img.IsValid())
	assert.ErrorIs(t, img.Err(), ErrDuplicateSymbolTable)
}

func TestNew_VerboseLogsReason(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	img := New([]byte("\x7fELF"), Options{Verbose: true, Logger: logger})
	assert.False(t, img.IsValid())
	assert.Contains(t, buf.String(), "ELF header not valid")

	buf.Reset()
	img = New([]byte("\x7fELF"), Options{Logger: logger})
	assert.False(t, img.IsValid())
	assert.Empty(t, buf.String())
}

func TestImage_ContractViolationsPanic(t *testing.T) {
	img := New(elfimagetesting.AlphaBeta().Build(), Options{})
	require.True(t, img.IsValid())

	assert.Panics(t, func() { img.Section(img.SectionCount()) })
	assert.Panics(t, func() { img.ProgramHeader(0) })
	assert.Panics(t, func() { img.Symbol(img.SymbolCount()) })
	assert.Panics(t, func() { img.RawData(uint32(img.Size())) })
	assert.NotPanics(t, func() { img.RawData(uint32(img.Size() - 1)) })

	invalid := New(nil, Options{})
	require.False(t, invalid.IsValid())
	assert.Panics(t, func() { invalid.SectionCount() })
	assert.Panics(t, func() { invalid.SymbolCount() })
	assert.Panics(t, func() { invalid.Header() })
	assert.Panics(t, func() { invalid.Symbolicate(0x1000) })
}

func TestImage_TableString(t *testing.T) {
	b := elfimagetesting.AlphaBeta()
	blob := b.AddSection(elfimagetesting.Section{
		Name: ".blob",
		Type: elf.SHT_STRTAB,
		Data: bytes.Repeat([]byte{'a'}, PageSize+100),
	})
	data := b.Build()
	img := New(data, Options{})
	require.True(t, img.IsValid())

	t.Run("resolves names", func(t *testing.T) {
		name, ok := img.StringTableString(1)
		assert.True(t, ok)
		assert.Equal(t, "alpha", name)

		name, ok = img.StringTableString(0)
		assert.True(t, ok)
		assert.Equal(t, "", name)
	})

	t.Run("offset outside image", func(t *testing.T) {
		strtab := img.Section(b.StringTableIndex())
		for _, offset := range []uint32{
			uint32(len(data)) - strtab.Offset(),
			uint32(len(data)),
			0xffffffff,
		} {
			name, ok := img.TableString(b.StringTableIndex(), offset)
			assert.False(t, ok, "offset %#x", offset)
			assert.Empty(t, name)
		}
	})

	t.Run("not a string table", func(t *testing.T) {
		name, ok := img.TableString(1, 0)
		assert.False(t, ok)
		assert.Empty(t, name)
	})

	t.Run("unterminated string capped at page size", func(t *testing.T) {
		name, ok := img.TableString(uint32(blob), 0)
		assert.True(t, ok)
		assert.Len(t, name, PageSize)
	})

	t.Run("last byte of image", func(t *testing.T) {
		last := uint32(len(data)) - img.Section(uint32(blob)).Offset() - 1
		name, ok := img.TableString(uint32(blob), last)
		assert.True(t, ok)
		assert.Empty(t, name)
	})
}

func TestImage_StringTableMissing(t *testing.T) {
	b := elfimagetesting.NewBuilder()
	b.AddSection(elfimagetesting.Section{Name: ".text", Type: elf.SHT_PROGBITS, Data: []byte{0x90}})
	img := New(b.Build(), Options{})
	require.True(t, img.IsValid())

	name, ok := img.StringTableString(0)
	assert.False(t, ok)
	assert.Empty(t, name)
	assert.Equal(t, uint32(0), img.SymbolCount())
}

func TestImage_Sections(t *testing.T) {
	b := elfimagetesting.AlphaBeta()
	bss := b.AddSection(elfimagetesting.Section{Name: ".bss", Type: elf.SHT_NOBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Addr: 0x3000, Size: 0x400})
	img := New(b.Build(), Options{})
	require.True(t, img.IsValid())

	var names []string
	for section := range img.Sections() {
		names = append(names, section.Name())
	}
	assert.Equal(t, []string{"", ".text", ".bss", ".symtab", ".strtab", ".shstrtab"}, names)

	text, ok := img.LookupSection(".text")
	require.True(t, ok)
	assert.Equal(t, uint32(1), text.Index())
	assert.Equal(t, elf.SHT_PROGBITS, text.Type())
	assert.Equal(t, elf.SHF_ALLOC|elf.SHF_EXECINSTR, text.Flags())
	assert.Equal(t, uint32(0x1000), text.Address())
	assert.Equal(t, uint32(0x1100), text.Size())
	assert.Equal(t, uint32(16), text.Alignment())
	assert.Len(t, text.RawData(), 0x1100)
	assert.Equal(t, uint32(0), text.EntryCount())

	symtab := img.Section(b.SymbolTableIndex())
	assert.Equal(t, elf.SHT_SYMTAB, symtab.Type())
	assert.Equal(t, uint32(SymbolSize), symtab.EntrySize())
	assert.Equal(t, uint32(3), symtab.EntryCount())
	assert.Equal(t, b.StringTableIndex(), symtab.Link())
	assert.Equal(t, uint32(0), symtab.Info())

	section := img.Section(uint32(bss))
	assert.Equal(t, elf.SHT_NOBITS, section.Type())
	assert.Equal(t, uint32(0x400), section.Size())
	assert.Nil(t, section.RawData())

	_, ok = img.LookupSection(".data")
	assert.False(t, ok)
}

func TestImage_LookupSectionWithoutText(t *testing.T) {
	b := elfimagetesting.NewBuilder()
	b.AddSection(elfimagetesting.Section{Name: ".text.startup", Type: elf.SHT_PROGBITS, Data: []byte{0xc3}})
	b.AddSection(elfimagetesting.Section{Name: ".tex", Type: elf.SHT_PROGBITS, Data: []byte{0xc3}})
	img := New(b.Build(), Options{})
	require.True(t, img.IsValid())

	_, ok := img.LookupSection(".text")
	assert.False(t, ok)
}

func TestSection_RawDataOutsideImage(t *testing.T) {
	b := elfimagetesting.AlphaBeta()
	data := b.Build()
	elfimagetesting.PutUint32(data, sectionHeaderField(data, 1, shSize), uint32(len(data)))

	var buf bytes.Buffer
	img := New(data, Options{Verbose: true, Logger: slog.New(slog.NewTextHandler(&buf, nil))})
	require.True(t, img.IsValid())
	assert.Nil(t, img.Section(1).RawData())
	assert.Contains(t, buf.String(), "section data lies outside image")
	assert.Contains(t, buf.String(), ErrOffsetOutOfBounds.Error())
}

func TestImage_SymbolTableOutsideImage(t *testing.T) {
	tests := []struct {
		name  string
		field int
		value func(data []byte) uint32
	}{
		{name: "offset past end", field: shOffset, value: func(data []byte) uint32 { return uint32(len(data)) }},
		{name: "size past end", field: shSize, value: func(data []byte) uint32 { return 0xfffffff0 }},
		{name: "unexpected entry size", field: shEntsize, value: func([]byte) uint32 { return 24 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := elfimagetesting.AlphaBeta()
			data := b.Build()
			elfimagetesting.PutUint32(data, sectionHeaderField(data, b.SymbolTableIndex(), tt.field), tt.value(data))

			img := New(data, Options{})
			require.True(t, img.IsValid())
			assert.Equal(t, uint32(0), img.SymbolCount())
			assert.Equal(t, UnknownSymbol, img.SymbolicateString(0x1000))
		})
	}
}

func TestImage_SectionIndexToString(t *testing.T) {
	img := New(elfimagetesting.AlphaBeta().Build(), Options{})
	require.True(t, img.IsValid())

	assert.Equal(t, "Undefined", img.SectionIndexToString(elf.SHN_UNDEF))
	assert.Equal(t, "Reserved", img.SectionIndexToString(elf.SHN_ABS))
	assert.Equal(t, "Reserved", img.SectionIndexToString(elf.SHN_COMMON))
	assert.Equal(t, ".text", img.SectionIndexToString(1))
	assert.Equal(t, "Invalid(77)", img.SectionIndexToString(77))
}

func TestSymbol_Accessors(t *testing.T) {
	b := elfimagetesting.NewBuilder()
	code := make([]byte, 0x40)
	for i := range code {
		code[i] = byte(i)
	}
	text := b.AddSection(elfimagetesting.Section{Name: ".text", Type: elf.SHT_PROGBITS, Addr: 0x8000, Data: code})
	b.AddSymbol(elfimagetesting.Symbol{Name: "start", Value: 0x8010, Size: 8, Type: elf.STT_FUNC, Bind: elf.STB_GLOBAL, Section: text, Other: byte(elf.STV_HIDDEN)})
	b.AddSymbol(elfimagetesting.Symbol{Name: "printf", Type: elf.STT_FUNC, Bind: elf.STB_GLOBAL, Section: elf.SHN_UNDEF})
	b.AddSymbol(elfimagetesting.Symbol{Name: "overrun", Value: 0x8038, Size: 0x10, Type: elf.STT_OBJECT, Bind: elf.STB_LOCAL, Section: text})
	b.AddSymbol(elfimagetesting.Symbol{Name: "absolute", Value: 0x42, Type: elf.STT_NOTYPE, Bind: elf.STB_GLOBAL, Section: elf.SHN_ABS})

	img := New(b.Build(), Options{})
	require.True(t, img.IsValid())
	require.Equal(t, uint32(5), img.SymbolCount())

	start := img.Symbol(1)
	assert.Equal(t, "start", start.Name())
	assert.Equal(t, uint32(0x8010), start.Value())
	assert.Equal(t, uint32(8), start.Size())
	assert.Equal(t, elf.STT_FUNC, start.Type())
	assert.Equal(t, elf.STB_GLOBAL, start.Bind())
	assert.Equal(t, elf.STV_HIDDEN, start.Visibility())
	assert.Equal(t, text, start.SectionIndex())
	assert.False(t, start.IsUndefined())
	assert.Equal(t, code[0x10:0x18], start.RawData())
	section, ok := start.Section()
	require.True(t, ok)
	assert.Equal(t, ".text", section.Name())

	printf := img.Symbol(2)
	assert.True(t, printf.IsUndefined())
	assert.Nil(t, printf.RawData())
	_, ok = printf.Section()
	assert.False(t, ok)

	assert.Nil(t, img.Symbol(3).RawData(), "symbol extends past its section")

	absolute := img.Symbol(4)
	_, ok = absolute.Section()
	assert.False(t, ok)
	assert.Nil(t, absolute.RawData())

	var names []string
	for sym := range img.Symbols() {
		names = append(names, sym.Name())
	}
	assert.Equal(t, []string{"", "start", "printf", "overrun", "absolute"}, names)
}

func TestSection_Relocations(t *testing.T) {
	b := elfimagetesting.AlphaBeta()
	b.AddSection(elfimagetesting.Section{Name: ".data", Type: elf.SHT_PROGBITS, Data: make([]byte, 16)})
	b.AddSection(elfimagetesting.Section{
		Name:    ".rel.text",
		Type:    elf.SHT_REL,
		EntSize: RelocationSize,
		Data: elfimagetesting.Rels(
			elfimagetesting.Rel{Offset: 0x1004, Symbol: 2, Type: uint32(elf.R_386_PC32)},
			elfimagetesting.Rel{Offset: 0x1010, Symbol: 1, Type: uint32(elf.R_386_32)},
		),
	})
	img := New(b.Build(), Options{})
	require.True(t, img.IsValid())

	text, ok := img.LookupSection(".text")
	require.True(t, ok)
	rels, ok := text.Relocations()
	require.True(t, ok)
	assert.Equal(t, ".rel.text", rels.Name())
	require.Equal(t, uint32(2), rels.RelocationCount())

	first := rels.Relocation(0)
	assert.Equal(t, uint32(0x1004), first.Offset())
	assert.Equal(t, uint32(elf.R_386_PC32), first.Type())
	assert.Equal(t, "R_386_PC32", first.TypeName())
	assert.Equal(t, uint32(2), first.SymbolIndex())
	sym, ok := first.Symbol()
	require.True(t, ok)
	assert.Equal(t, "beta", sym.Name())

	var offsets []uint32
	for rel := range rels.Entries() {
		offsets = append(offsets, rel.Offset())
	}
	assert.Equal(t, []uint32{0x1004, 0x1010}, offsets)
	assert.Panics(t, func() { rels.Relocation(2) })

	data, ok := img.LookupSection(".data")
	require.True(t, ok)
	_, ok = data.Relocations()
	assert.False(t, ok)
}

func TestRelocation_SymbolOutOfRange(t *testing.T) {
	b := elfimagetesting.AlphaBeta()
	b.AddSection(elfimagetesting.Section{
		Name: ".rel.text",
		Type: elf.SHT_REL,
		Data: elfimagetesting.Rels(elfimagetesting.Rel{Offset: 4, Symbol: 0xffff, Type: 1}),
	})
	img := New(b.Build(), Options{})
	require.True(t, img.IsValid())

	text, _ := img.LookupSection(".text")
	rels, ok := text.Relocations()
	require.True(t, ok)
	_, ok = rels.Relocation(0).Symbol()
	assert.False(t, ok)
}

func TestImage_Dump(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	img := New(elfimagetesting.AlphaBeta().Build(), Options{Logger: logger})
	require.True(t, img.IsValid())
	img.Dump()

	out := buf.String()
	assert.Contains(t, out, "type=Executable")
	assert.Contains(t, out, "name=.text")
	assert.Contains(t, out, "name=alpha")
	assert.Contains(t, out, "value=0x2000")
	assert.Equal(t, 1, strings.Count(out, "msg=header"))

	buf.Reset()
	quiet := New(elfimagetesting.AlphaBeta().Build(), Options{Logger: slog.New(slog.NewTextHandler(&buf, nil))})
	quiet.Dump()
	assert.Empty(t, buf.String())
}
