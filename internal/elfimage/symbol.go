package elfimage

import (
	"debug/elf"
)

// Symbol is a view of one entry of the image's symbol table.
type Symbol struct {
	image *Image
	index uint32
}

func (s Symbol) base() uint64 {
	table := s.image.Section(s.image.symbolTable.index)
	return uint64(table.Offset()) + uint64(s.index)*SymbolSize
}

func (s Symbol) word(off uint64) uint32 { return le32(s.image.data, s.base()+off) }

// Index returns the entry's index in the symbol table.
func (s Symbol) Index() uint32 { return s.index }

// Name returns the symbol name from the primary string table, or "" when it cannot be resolved.
func (s Symbol) Name() string {
	name, _ := s.image.StringTableString(s.word(stName))
	return name
}

// Value returns st_value, the symbol's address.
func (s Symbol) Value() uint32 { return s.word(stValue) }

// Size returns st_size.
func (s Symbol) Size() uint32 { return s.word(stSize) }

// SectionIndex returns the index of the section defining the symbol.
func (s Symbol) SectionIndex() elf.SectionIndex {
	return elf.SectionIndex(le16(s.image.data, s.base()+stShndx))
}

func (s Symbol) info() byte { return s.image.data[s.base()+stInfo] }

// Type returns the symbol type packed in st_info.
func (s Symbol) Type() elf.SymType { return elf.ST_TYPE(s.info()) }

// Bind returns the symbol binding packed in st_info.
func (s Symbol) Bind() elf.SymBind { return elf.ST_BIND(s.info()) }

// Visibility returns the symbol visibility packed in st_other.
func (s Symbol) Visibility() elf.SymVis { return elf.ST_VISIBILITY(s.image.data[s.base()+stOther]) }

// IsUndefined reports whether the symbol is not defined in this image.
func (s Symbol) IsUndefined() bool { return s.SectionIndex() == elf.SHN_UNDEF }

// Section returns the section defining the symbol. ok is false for undefined, absolute,
// common and out-of-range section indices.
func (s Symbol) Section() (Section, bool) {
	index := s.SectionIndex()
	if index == elf.SHN_UNDEF || index >= elf.SHN_LORESERVE || uint64(index) >= uint64(s.image.SectionCount()) {
		return Section{}, false
	}
	return s.image.Section(uint32(index)), true
}

// RawData returns the bytes backing the symbol inside its defining section, located at
// Value() minus the section address. It returns nil when the range falls outside the section
// or the image.
func (s Symbol) RawData() []byte {
	section, ok := s.Section()
	if !ok || section.Type() == elf.SHT_NOBITS {
		return nil
	}
	value, addr := s.Value(), section.Address()
	if value < addr {
		return nil
	}
	rel := uint64(value - addr)
	size := uint64(s.Size())
	if rel+size > uint64(section.Size()) {
		return nil
	}
	offset := uint64(section.Offset()) + rel
	if !fits(offset, size, len(s.image.data)) {
		return nil
	}
	return s.image.data[offset : offset+size]
}
