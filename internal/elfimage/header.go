package elfimage

import "debug/elf"

// Header is a view over the ELF32 file header. Fields are read in place from the buffer.
type Header struct {
	raw []byte
}

// Type returns the object file type (e_type).
func (h Header) Type() elf.Type { return elf.Type(le16(h.raw, ehType)) }

// Machine returns the target architecture (e_machine).
func (h Header) Machine() elf.Machine { return elf.Machine(le16(h.raw, ehMachine)) }

// Version returns e_version.
func (h Header) Version() uint32 { return le32(h.raw, ehVersion) }

// Entry returns the entry point address.
func (h Header) Entry() uint32 { return le32(h.raw, ehEntry) }

// ProgramHeaderOffset returns the file offset of the program-header table.
func (h Header) ProgramHeaderOffset() uint32 { return le32(h.raw, ehPhoff) }

// SectionHeaderOffset returns the file offset of the section-header table.
func (h Header) SectionHeaderOffset() uint32 { return le32(h.raw, ehShoff) }

// Flags returns the processor-specific flags.
func (h Header) Flags() uint32 { return le32(h.raw, ehFlags) }

// HeaderSize returns e_ehsize.
func (h Header) HeaderSize() uint16 { return le16(h.raw, ehEhsize) }

// ProgramHeaderEntrySize returns e_phentsize.
func (h Header) ProgramHeaderEntrySize() uint16 { return le16(h.raw, ehPhentsize) }

// ProgramHeaderCount returns e_phnum.
func (h Header) ProgramHeaderCount() uint16 { return le16(h.raw, ehPhnum) }

// SectionHeaderEntrySize returns e_shentsize.
func (h Header) SectionHeaderEntrySize() uint16 { return le16(h.raw, ehShentsize) }

// SectionHeaderCount returns e_shnum.
func (h Header) SectionHeaderCount() uint16 { return le16(h.raw, ehShnum) }

// SectionNameTableIndex returns e_shstrndx, the index of the section-name string table.
func (h Header) SectionNameTableIndex() uint16 { return le16(h.raw, ehShstrndx) }

// ObjectFileTypeString names an object file type: None, Relocatable, Executable, Shared object
// or Core.
func ObjectFileTypeString(t elf.Type) string {
	switch t {
	case elf.ET_NONE:
		return "None"
	case elf.ET_REL:
		return "Relocatable"
	case elf.ET_EXEC:
		return "Executable"
	case elf.ET_DYN:
		return "Shared object"
	case elf.ET_CORE:
		return "Core"
	default:
		return "(?)"
	}
}
