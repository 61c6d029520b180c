package elfimage

import "encoding/binary"

// Sizes of the fixed ELF32 records.
const (
	HeaderSize        = 52
	ProgramHeaderSize = 32
	SectionHeaderSize = 40
	SymbolSize        = 16
	RelocationSize    = 8
)

// PageSize bounds the length of a single string read from a string table.
const PageSize = 4096

// Well-known section names.
const (
	StringTableName  = ".strtab"
	RelocationPrefix = ".rel"
)

// UnknownSymbol is returned by Symbolicate when an address cannot be resolved.
const UnknownSymbol = "??"

// elfMagic is the ELF magic number.
var elfMagic = []byte("\x7fELF")

// File header field offsets.
const (
	ehType      = 16
	ehMachine   = 18
	ehVersion   = 20
	ehEntry     = 24
	ehPhoff     = 28
	ehShoff     = 32
	ehFlags     = 36
	ehEhsize    = 40
	ehPhentsize = 42
	ehPhnum     = 44
	ehShentsize = 46
	ehShnum     = 48
	ehShstrndx  = 50
)

// Section header field offsets.
const (
	shName      = 0
	shType      = 4
	shFlags     = 8
	shAddr      = 12
	shOffset    = 16
	shSize      = 20
	shLink      = 24
	shInfo      = 28
	shAddralign = 32
	shEntsize   = 36
)

// Program header field offsets.
const (
	phType   = 0
	phOffset = 4
	phVaddr  = 8
	phPaddr  = 12
	phFilesz = 16
	phMemsz  = 20
	phFlags  = 24
	phAlign  = 28
)

// Symbol field offsets.
const (
	stName  = 0
	stValue = 4
	stSize  = 8
	stInfo  = 12
	stOther = 13
	stShndx = 14
)

// Relocation field offsets.
const (
	relOffset = 0
	relInfo   = 4
)

func le16(b []byte, off uint64) uint16 {
	return binary.LittleEndian.Uint16(b[off : off+2])
}

func le32(b []byte, off uint64) uint32 {
	return binary.LittleEndian.Uint32(b[off : off+4])
}

// fits reports whether [offset, offset+size) lies within a buffer of length n.
func fits(offset, size uint64, n int) bool {
	end := offset + size
	return end >= offset && end <= uint64(n)
}
