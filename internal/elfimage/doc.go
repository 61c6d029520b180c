// Package elfimage provides a read-only structural view of 32-bit little-endian ELF images
// held in memory, together with address-to-symbol resolution.
//
// The package never performs I/O. Callers load the file (see safefileio) and hand the bytes to
// New, which validates the header and program-header table and indexes the section headers
// once. Every byte of the buffer is treated as untrusted: offsets taken from the file are
// checked against the buffer length and a malformed value produces an empty result, a zero
// count, or an invalid Image, never a crash.
//
// # Usage
//
//	img := elfimage.New(data, elfimage.Options{Logger: logger})
//	if !img.IsValid() {
//	    return img.Err()
//	}
//	fmt.Println(img.SymbolicateString(0x8048123)) // "main +0x13"
//
// # Contract errors
//
// Indices passed to Section, ProgramHeader, Symbol and Relocation must be below the
// corresponding count, and structural accessors may only be used on a valid Image. Violations
// are programming errors and panic.
//
// # Concurrency
//
// An Image is not safe for concurrent use: the first address lookup builds the sorted symbol
// index and each lookup memoizes demangled names. Call Prepare before sharing an Image between
// goroutines; afterwards lookups only read.
package elfimage
