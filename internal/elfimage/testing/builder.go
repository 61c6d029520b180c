// Package elfimagetesting assembles small ELF32 little-endian images for tests.
//
// The builder lays a file out as: file header, program headers, section data, section-header
// table. Section 0 is always the null section. When symbols are added, .symtab and .strtab
// are appended after the caller's sections, followed by .shstrtab.
package elfimagetesting

import (
	"debug/elf"
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// Fixed ELF32 record sizes.
const (
	headerSize        = 52
	programHeaderSize = 32
	sectionHeaderSize = 40
	symbolSize        = 16
	relocationSize    = 8
)

// Section describes a section to place in the image.
type Section struct {
	Name    string
	Type    elf.SectionType
	Flags   elf.SectionFlag
	Addr    uint32
	Data    []byte
	Size    uint32 // overrides len(Data) when non-zero, e.g. for SHT_NOBITS
	Link    uint32
	Info    uint32
	Align   uint32
	EntSize uint32
}

// Program describes a program-header entry.
type Program struct {
	Type     elf.ProgType
	Flags    elf.ProgFlag
	Offset   uint32
	VAddr    uint32
	PAddr    uint32
	FileSize uint32
	MemSize  uint32
	Align    uint32
}

// Symbol describes a symbol-table entry. Section is a section index returned by AddSection
// or a special index such as elf.SHN_UNDEF or elf.SHN_ABS.
type Symbol struct {
	Name    string
	Value   uint32
	Size    uint32
	Type    elf.SymType
	Bind    elf.SymBind
	Other   uint8
	Section elf.SectionIndex
}

// Rel describes one Elf32_Rel record.
type Rel struct {
	Offset uint32
	Symbol uint32
	Type   uint32
}

// Builder accumulates the contents of an ELF32 image.
type Builder struct {
	Type    elf.Type
	Machine elf.Machine
	Entry   uint32

	sections []Section
	programs []Program
	symbols  []Symbol

	symtabIndex   uint32
	strtabIndex   uint32
	shstrtabIndex uint32
}

// NewBuilder returns a builder for an i386 executable.
func NewBuilder() *Builder {
	return &Builder{Type: elf.ET_EXEC, Machine: elf.EM_386}
}

// AddSection appends a section and returns its index.
func (b *Builder) AddSection(s Section) elf.SectionIndex {
	b.sections = append(b.sections, s)
	return elf.SectionIndex(len(b.sections))
}

// AddProgram appends a program header.
func (b *Builder) AddProgram(p Program) {
	b.programs = append(b.programs, p)
}

// AddSymbol appends a symbol and returns its symbol-table index. Index 0 is the null symbol.
func (b *Builder) AddSymbol(s Symbol) uint32 {
	b.symbols = append(b.symbols, s)
	return uint32(len(b.symbols))
}

// SymbolTableIndex returns the section index of .symtab after Build.
func (b *Builder) SymbolTableIndex() uint32 { return b.symtabIndex }

// StringTableIndex returns the section index of .strtab after Build.
func (b *Builder) StringTableIndex() uint32 { return b.strtabIndex }

// SectionNameTableIndex returns the section index of .shstrtab after Build.
func (b *Builder) SectionNameTableIndex() uint32 { return b.shstrtabIndex }

type stringTable struct {
	data []byte
}

func newStringTable() *stringTable { return &stringTable{data: []byte{0}} }

func (t *stringTable) add(s string) uint32 {
	if s == "" {
		return 0
	}
	off := uint32(len(t.data))
	t.data = append(t.data, s...)
	t.data = append(t.data, 0)
	return off
}

// Build lays out and encodes the image.
func (b *Builder) Build() []byte {
	sections := append([]Section(nil), b.sections...)

	if len(b.symbols) > 0 {
		strtab := newStringTable()
		symtab := make([]byte, symbolSize, symbolSize*(len(b.symbols)+1))
		for _, s := range b.symbols {
			entry := make([]byte, symbolSize)
			binary.LittleEndian.PutUint32(entry[0:], strtab.add(s.Name))
			binary.LittleEndian.PutUint32(entry[4:], s.Value)
			binary.LittleEndian.PutUint32(entry[8:], s.Size)
			entry[12] = elf.ST_INFO(s.Bind, s.Type)
			entry[13] = s.Other
			binary.LittleEndian.PutUint16(entry[14:], uint16(s.Section))
			symtab = append(symtab, entry...)
		}
		b.symtabIndex = uint32(len(sections) + 1)
		b.strtabIndex = b.symtabIndex + 1
		sections = append(sections,
			Section{Name: ".symtab", Type: elf.SHT_SYMTAB, Data: symtab, Link: b.strtabIndex, Align: 4, EntSize: symbolSize},
			Section{Name: ".strtab", Type: elf.SHT_STRTAB, Data: strtab.data, Align: 1},
		)
	}

	shstrtab := newStringTable()
	nameOffsets := make([]uint32, len(sections)+1)
	for i, s := range sections {
		nameOffsets[i] = shstrtab.add(s.Name)
	}
	nameOffsets[len(sections)] = shstrtab.add(".shstrtab")
	b.shstrtabIndex = uint32(len(sections) + 1)
	sections = append(sections, Section{Name: ".shstrtab", Type: elf.SHT_STRTAB, Data: shstrtab.data, Align: 1})

	out := make([]byte, headerSize)
	phoff := uint32(0)
	if len(b.programs) > 0 {
		phoff = uint32(len(out))
		for _, p := range b.programs {
			ph := make([]byte, programHeaderSize)
			binary.LittleEndian.PutUint32(ph[0:], uint32(p.Type))
			binary.LittleEndian.PutUint32(ph[4:], p.Offset)
			binary.LittleEndian.PutUint32(ph[8:], p.VAddr)
			binary.LittleEndian.PutUint32(ph[12:], p.PAddr)
			binary.LittleEndian.PutUint32(ph[16:], p.FileSize)
			binary.LittleEndian.PutUint32(ph[20:], p.MemSize)
			binary.LittleEndian.PutUint32(ph[24:], uint32(p.Flags))
			binary.LittleEndian.PutUint32(ph[28:], p.Align)
			out = append(out, ph...)
		}
	}

	offsets := make([]uint32, len(sections))
	for i, s := range sections {
		out = pad4(out)
		offsets[i] = uint32(len(out))
		if s.Type != elf.SHT_NOBITS {
			out = append(out, s.Data...)
		}
	}

	out = pad4(out)
	shoff := uint32(len(out))
	out = append(out, make([]byte, sectionHeaderSize)...) // null section
	for i, s := range sections {
		size := s.Size
		if size == 0 {
			size = uint32(len(s.Data))
		}
		sh := make([]byte, sectionHeaderSize)
		binary.LittleEndian.PutUint32(sh[0:], nameOffsets[i])
		binary.LittleEndian.PutUint32(sh[4:], uint32(s.Type))
		binary.LittleEndian.PutUint32(sh[8:], uint32(s.Flags))
		binary.LittleEndian.PutUint32(sh[12:], s.Addr)
		binary.LittleEndian.PutUint32(sh[16:], offsets[i])
		binary.LittleEndian.PutUint32(sh[20:], size)
		binary.LittleEndian.PutUint32(sh[24:], s.Link)
		binary.LittleEndian.PutUint32(sh[28:], s.Info)
		binary.LittleEndian.PutUint32(sh[32:], s.Align)
		binary.LittleEndian.PutUint32(sh[36:], s.EntSize)
		out = append(out, sh...)
	}

	copy(out[0:], "\x7fELF")
	out[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	out[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	out[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	out[elf.EI_OSABI] = byte(elf.ELFOSABI_NONE)
	binary.LittleEndian.PutUint16(out[16:], uint16(b.Type))
	binary.LittleEndian.PutUint16(out[18:], uint16(b.Machine))
	binary.LittleEndian.PutUint32(out[20:], uint32(elf.EV_CURRENT))
	binary.LittleEndian.PutUint32(out[24:], b.Entry)
	binary.LittleEndian.PutUint32(out[28:], phoff)
	binary.LittleEndian.PutUint32(out[32:], shoff)
	binary.LittleEndian.PutUint16(out[40:], headerSize)
	if len(b.programs) > 0 {
		binary.LittleEndian.PutUint16(out[42:], programHeaderSize)
	}
	binary.LittleEndian.PutUint16(out[44:], uint16(len(b.programs)))
	binary.LittleEndian.PutUint16(out[46:], sectionHeaderSize)
	binary.LittleEndian.PutUint16(out[48:], uint16(len(sections)+1))
	binary.LittleEndian.PutUint16(out[50:], uint16(b.shstrtabIndex))
	return out
}

func pad4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

// Rels encodes relocation records for a SHT_REL section.
func Rels(rels ...Rel) []byte {
	out := make([]byte, 0, len(rels)*relocationSize)
	for _, r := range rels {
		rec := make([]byte, relocationSize)
		binary.LittleEndian.PutUint32(rec[0:], r.Offset)
		binary.LittleEndian.PutUint32(rec[4:], elf.R_INFO32(r.Symbol, r.Type))
		out = append(out, rec...)
	}
	return out
}

// AlphaBeta returns a builder for an image with a .text section at 0x1000 holding the
// functions alpha (0x1000) and beta (0x2000).
func AlphaBeta() *Builder {
	b := NewBuilder()
	text := b.AddSection(Section{
		Name:  ".text",
		Type:  elf.SHT_PROGBITS,
		Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR,
		Addr:  0x1000,
		Data:  make([]byte, 0x1100),
		Align: 16,
	})
	b.AddSymbol(Symbol{Name: "alpha", Value: 0x1000, Size: 0x100, Type: elf.STT_FUNC, Bind: elf.STB_GLOBAL, Section: text})
	b.AddSymbol(Symbol{Name: "beta", Value: 0x2000, Size: 0x100, Type: elf.STT_FUNC, Bind: elf.STB_GLOBAL, Section: text})
	return b
}

// WriteFile writes data to path, failing the test on error.
func WriteFile(t *testing.T, path string, data []byte) {
	t.Helper()
	err := os.WriteFile(path, data, 0o644) //nolint:gosec // test helper: 0644 is intentional for test files
	require.NoError(t, err)
}

// PutUint16 patches a little-endian half-word, for corrupting built images.
func PutUint16(data []byte, offset int, v uint16) {
	binary.LittleEndian.PutUint16(data[offset:], v)
}

// PutUint32 patches a little-endian word, for corrupting built images.
func PutUint32(data []byte, offset int, v uint32) {
	binary.LittleEndian.PutUint32(data[offset:], v)
}
