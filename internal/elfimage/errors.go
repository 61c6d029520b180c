package elfimage

import "errors"

// Static errors describing malformed input. They are reported through Image.Err and the
// diagnostic log, never by panicking.
var (
	// ErrInvalidHeader indicates the ELF file header is malformed or unsupported.
	ErrInvalidHeader = errors.New("invalid ELF header")

	// ErrInvalidProgramHeaders indicates the program-header table is malformed.
	ErrInvalidProgramHeaders = errors.New("invalid ELF program headers")

	// ErrDuplicateSymbolTable indicates the image declares more than one SHT_SYMTAB section.
	ErrDuplicateSymbolTable = errors.New("duplicate symbol table section")

	// ErrOffsetOutOfBounds indicates a file-supplied offset points outside the image.
	ErrOffsetOutOfBounds = errors.New("offset outside image")
)
