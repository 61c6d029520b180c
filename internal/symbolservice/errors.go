package symbolservice

import "errors"

var (
	// ErrInvalidImage indicates that a file is not a usable ELF32 image.
	ErrInvalidImage = errors.New("invalid ELF image")

	// ErrInvalidAddress indicates an address that is not a 32-bit number.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrRelativePath indicates a request for a path that is not absolute.
	ErrRelativePath = errors.New("image path must be absolute")

	// ErrMalformedRequest indicates a request line that is not valid JSON.
	ErrMalformedRequest = errors.New("malformed request")
)
