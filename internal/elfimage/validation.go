package elfimage

import (
	"bytes"
	"debug/elf"
	"fmt"
)

// ValidateHeader checks that data starts with a self-consistent ELF32 little-endian file
// header whose program-header and section-header tables lie inside data.
// A nil result means the header is valid; otherwise the error wraps ErrInvalidHeader and
// describes the first problem found.
func ValidateHeader(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: %d bytes is shorter than the %d-byte file header", ErrInvalidHeader, len(data), HeaderSize)
	}
	if !bytes.Equal(data[:len(elfMagic)], elfMagic) {
		return fmt.Errorf("%w: bad magic % x", ErrInvalidHeader, data[:len(elfMagic)])
	}
	if class := elf.Class(data[elf.EI_CLASS]); class != elf.ELFCLASS32 {
		return fmt.Errorf("%w: unsupported class %s", ErrInvalidHeader, class)
	}
	if order := elf.Data(data[elf.EI_DATA]); order != elf.ELFDATA2LSB {
		return fmt.Errorf("%w: unsupported byte order %s", ErrInvalidHeader, order)
	}
	if v := elf.Version(data[elf.EI_VERSION]); v != elf.EV_CURRENT {
		return fmt.Errorf("%w: unsupported ident version %d", ErrInvalidHeader, v)
	}

	h := Header{raw: data}
	if v := h.Version(); v != uint32(elf.EV_CURRENT) {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidHeader, v)
	}
	switch h.Type() {
	case elf.ET_REL, elf.ET_EXEC, elf.ET_DYN, elf.ET_CORE:
	default:
		return fmt.Errorf("%w: unsupported object type %s", ErrInvalidHeader, h.Type())
	}
	if h.HeaderSize() != HeaderSize {
		return fmt.Errorf("%w: e_ehsize is %d, want %d", ErrInvalidHeader, h.HeaderSize(), HeaderSize)
	}

	if phnum := h.ProgramHeaderCount(); phnum > 0 {
		if h.ProgramHeaderEntrySize() != ProgramHeaderSize {
			return fmt.Errorf("%w: e_phentsize is %d, want %d", ErrInvalidHeader, h.ProgramHeaderEntrySize(), ProgramHeaderSize)
		}
		if !fits(uint64(h.ProgramHeaderOffset()), uint64(phnum)*ProgramHeaderSize, len(data)) {
			return fmt.Errorf("%w: %d program headers at %#x exceed %d-byte image",
				ErrInvalidHeader, phnum, h.ProgramHeaderOffset(), len(data))
		}
	}

	if shnum := h.SectionHeaderCount(); shnum > 0 {
		if h.SectionHeaderEntrySize() != SectionHeaderSize {
			return fmt.Errorf("%w: e_shentsize is %d, want %d", ErrInvalidHeader, h.SectionHeaderEntrySize(), SectionHeaderSize)
		}
		if !fits(uint64(h.SectionHeaderOffset()), uint64(shnum)*SectionHeaderSize, len(data)) {
			return fmt.Errorf("%w: %d section headers at %#x exceed %d-byte image",
				ErrInvalidHeader, shnum, h.SectionHeaderOffset(), len(data))
		}
		if h.SectionNameTableIndex() >= shnum {
			return fmt.Errorf("%w: e_shstrndx %d out of range (%d sections)", ErrInvalidHeader, h.SectionNameTableIndex(), shnum)
		}
	}

	return nil
}

// ValidateProgramHeaders checks every entry of the program-header table described by the
// file header. data must already have passed ValidateHeader.
// A nil result means the table is valid; otherwise the error wraps ErrInvalidProgramHeaders.
func ValidateProgramHeaders(data []byte) error {
	h := Header{raw: data}
	for i := uint32(0); i < uint32(h.ProgramHeaderCount()); i++ {
		base := uint64(h.ProgramHeaderOffset()) + uint64(i)*ProgramHeaderSize
		typ := elf.ProgType(le32(data, base+phType))
		offset := le32(data, base+phOffset)
		vaddr := le32(data, base+phVaddr)
		filesz := le32(data, base+phFilesz)
		memsz := le32(data, base+phMemsz)
		align := le32(data, base+phAlign)

		if typ == elf.PT_NULL {
			continue
		}
		if !fits(uint64(offset), uint64(filesz), len(data)) {
			return fmt.Errorf("%w: program header %d (%s) data [%#x, +%#x) exceeds %d-byte image",
				ErrInvalidProgramHeaders, i, typ, offset, filesz, len(data))
		}

		switch typ {
		case elf.PT_LOAD:
			if filesz > memsz {
				return fmt.Errorf("%w: program header %d has p_filesz %#x > p_memsz %#x",
					ErrInvalidProgramHeaders, i, filesz, memsz)
			}
			if align > 1 {
				if align&(align-1) != 0 {
					return fmt.Errorf("%w: program header %d alignment %#x is not a power of two",
						ErrInvalidProgramHeaders, i, align)
				}
				if vaddr%align != offset%align {
					return fmt.Errorf("%w: program header %d p_vaddr %#x and p_offset %#x disagree modulo %#x",
						ErrInvalidProgramHeaders, i, vaddr, offset, align)
				}
			}
		case elf.PT_INTERP:
			if filesz == 0 || data[uint64(offset)+uint64(filesz)-1] != 0 {
				return fmt.Errorf("%w: program header %d interpreter path is not NUL-terminated",
					ErrInvalidProgramHeaders, i)
			}
		}
	}
	return nil
}
