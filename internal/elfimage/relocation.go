package elfimage

import (
	"debug/elf"
	"fmt"
	"iter"
	"log/slog"
)

// RelocationSection is a section holding Elf32_Rel records.
type RelocationSection struct {
	Section
}

// RelocationCount returns the number of relocation records, or 0 when the records lie outside
// the image.
func (r RelocationSection) RelocationCount() uint32 {
	if !fits(uint64(r.Offset()), uint64(r.Size()), len(r.image.data)) {
		r.image.diagnose("relocation table lies outside image",
			slog.Any("error", ErrOffsetOutOfBounds),
			slog.Uint64("section", uint64(r.index)),
			slog.Uint64("offset", uint64(r.Offset())),
			slog.Uint64("size", uint64(r.Size())))
		return 0
	}
	return r.Size() / RelocationSize
}

// Relocation returns the relocation record at index.
func (r RelocationSection) Relocation(index uint32) Relocation {
	checkIndex("relocation", index, r.RelocationCount())
	return Relocation{image: r.image, offset: uint64(r.Offset()) + uint64(index)*RelocationSize}
}

// Entries iterates over the relocation records in order.
func (r RelocationSection) Entries() iter.Seq[Relocation] {
	return func(yield func(Relocation) bool) {
		count := r.RelocationCount()
		for i := uint32(0); i < count; i++ {
			if !yield(r.Relocation(i)) {
				return
			}
		}
	}
}

// Relocation is a view of one Elf32_Rel record.
type Relocation struct {
	image  *Image
	offset uint64
}

// Offset returns r_offset, the location to patch.
func (r Relocation) Offset() uint32 { return le32(r.image.data, r.offset+relOffset) }

// Info returns the raw r_info word.
func (r Relocation) Info() uint32 { return le32(r.image.data, r.offset+relInfo) }

// Type returns the machine-specific relocation type.
func (r Relocation) Type() uint32 { return elf.R_TYPE32(r.Info()) }

// SymbolIndex returns the index of the referenced symbol.
func (r Relocation) SymbolIndex() uint32 { return elf.R_SYM32(r.Info()) }

// Symbol returns the referenced symbol. ok is false when the index is out of range.
func (r Relocation) Symbol() (Symbol, bool) {
	index := r.SymbolIndex()
	if index >= r.image.SymbolCount() {
		return Symbol{}, false
	}
	return r.image.Symbol(index), true
}

// TypeName names the relocation type for the image's machine.
func (r Relocation) TypeName() string {
	t := r.Type()
	switch r.image.header().Machine() {
	case elf.EM_386:
		return elf.R_386(t).String()
	case elf.EM_ARM:
		return elf.R_ARM(t).String()
	case elf.EM_MIPS:
		return elf.R_MIPS(t).String()
	case elf.EM_PPC:
		return elf.R_PPC(t).String()
	case elf.EM_SPARC:
		return elf.R_SPARC(t).String()
	default:
		return fmt.Sprintf("%#x", t)
	}
}
