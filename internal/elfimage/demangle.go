package elfimage

import (
	"strings"

	"github.com/ianlancetaylor/demangle"
)

// Demangle returns the human-readable form of a C++ (Itanium ABI) or Rust mangled name.
// Names that are not mangled are returned unchanged.
func Demangle(name string) string {
	return demangle.Filter(name)
}

// stripParameters cuts a demangled name at the opening of its parameter list, so that
// "foo(int, int)" becomes "foo".
func stripParameters(demangled string) string {
	if i := strings.IndexByte(demangled, '('); i >= 0 {
		return demangled[:i]
	}
	return demangled
}
