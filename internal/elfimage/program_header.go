package elfimage

import (
	"debug/elf"
)

// ProgramHeader is a view of one program-header table entry.
type ProgramHeader struct {
	image *Image
	index uint32
}

func (p ProgramHeader) field(off uint64) uint32 {
	h := p.image.header()
	return le32(p.image.data, uint64(h.ProgramHeaderOffset())+uint64(p.index)*ProgramHeaderSize+off)
}

// Index returns the entry's index in the program-header table.
func (p ProgramHeader) Index() uint32 { return p.index }

// Type returns p_type.
func (p ProgramHeader) Type() elf.ProgType { return elf.ProgType(p.field(phType)) }

// Offset returns the file offset of the segment.
func (p ProgramHeader) Offset() uint32 { return p.field(phOffset) }

// VirtualAddress returns p_vaddr.
func (p ProgramHeader) VirtualAddress() uint32 { return p.field(phVaddr) }

// PhysicalAddress returns p_paddr.
func (p ProgramHeader) PhysicalAddress() uint32 { return p.field(phPaddr) }

// FileSize returns p_filesz.
func (p ProgramHeader) FileSize() uint32 { return p.field(phFilesz) }

// MemorySize returns p_memsz.
func (p ProgramHeader) MemorySize() uint32 { return p.field(phMemsz) }

// Flags returns p_flags.
func (p ProgramHeader) Flags() elf.ProgFlag { return elf.ProgFlag(p.field(phFlags)) }

// Alignment returns p_align.
func (p ProgramHeader) Alignment() uint32 { return p.field(phAlign) }

// IsReadable reports whether PF_R is set.
func (p ProgramHeader) IsReadable() bool { return p.Flags()&elf.PF_R != 0 }

// IsWritable reports whether PF_W is set.
func (p ProgramHeader) IsWritable() bool { return p.Flags()&elf.PF_W != 0 }

// IsExecutable reports whether PF_X is set.
func (p ProgramHeader) IsExecutable() bool { return p.Flags()&elf.PF_X != 0 }

// RawData returns the bytes of the segment present in the file. The range was checked by
// ValidateProgramHeaders, except for PT_NULL entries, which yield nil.
func (p ProgramHeader) RawData() []byte {
	if p.Type() == elf.PT_NULL {
		return nil
	}
	offset, size := uint64(p.Offset()), uint64(p.FileSize())
	return p.image.data[offset : offset+size]
}
