package elfimage

import (
	"debug/elf"
	"log/slog"
)

// Section is a view of one section header. It is a cheap value that reads the header from the
// image on every call.
type Section struct {
	image *Image
	index uint32
}

func (s Section) field(off uint64) uint32 {
	h := s.image.header()
	return le32(s.image.data, uint64(h.SectionHeaderOffset())+uint64(s.index)*SectionHeaderSize+off)
}

func (s Section) nameOffset() uint32 { return s.field(shName) }

// Index returns the section's index in the section-header table.
func (s Section) Index() uint32 { return s.index }

// Name returns the section name, or "" when it cannot be resolved.
func (s Section) Name() string {
	name, _ := s.image.SectionHeaderTableString(s.nameOffset())
	return name
}

// Type returns sh_type.
func (s Section) Type() elf.SectionType { return elf.SectionType(s.field(shType)) }

// Flags returns sh_flags.
func (s Section) Flags() elf.SectionFlag { return elf.SectionFlag(s.field(shFlags)) }

// Address returns the virtual address of the section in memory.
func (s Section) Address() uint32 { return s.field(shAddr) }

// Offset returns the file offset of the section data.
func (s Section) Offset() uint32 { return s.field(shOffset) }

// Size returns sh_size.
func (s Section) Size() uint32 { return s.field(shSize) }

// Link returns sh_link.
func (s Section) Link() uint32 { return s.field(shLink) }

// Info returns sh_info.
func (s Section) Info() uint32 { return s.field(shInfo) }

// Alignment returns sh_addralign.
func (s Section) Alignment() uint32 { return s.field(shAddralign) }

// EntrySize returns sh_entsize.
func (s Section) EntrySize() uint32 { return s.field(shEntsize) }

// EntryCount returns the number of fixed-size entries in the section, or 0 for sections
// without an entry size.
func (s Section) EntryCount() uint32 {
	if s.EntrySize() == 0 {
		return 0
	}
	return s.Size() / s.EntrySize()
}

// RawData returns the section contents. It returns nil for SHT_NOBITS sections and for
// sections whose data lies outside the image.
func (s Section) RawData() []byte {
	if s.Type() == elf.SHT_NOBITS {
		return nil
	}
	offset, size := uint64(s.Offset()), uint64(s.Size())
	if !fits(offset, size, len(s.image.data)) {
		s.image.diagnose("section data lies outside image",
			slog.Any("error", ErrOffsetOutOfBounds),
			slog.Uint64("section", uint64(s.index)),
			slog.Uint64("offset", offset),
			slog.Uint64("size", size))
		return nil
	}
	return s.image.data[offset : offset+size]
}

// Relocations returns the relocation section conventionally associated with this section,
// named RelocationPrefix followed by this section's name. Most sections have none.
func (s Section) Relocations() (RelocationSection, bool) {
	name := s.Name()
	section, ok := s.image.LookupSection(RelocationPrefix + name)
	if !ok {
		return RelocationSection{}, false
	}
	s.image.logger.Debug("found relocations",
		slog.String("section", name),
		slog.String("relocation_section", section.Name()))
	return RelocationSection{Section: section}, true
}
