package elfimage

import (
	"cmp"
	"debug/elf"
	"fmt"
	"slices"
	"sort"
)

// sortedSymbol is one entry of the address-ordered symbol index.
type sortedSymbol struct {
	address   uint32
	name      string
	demangled string
	memoized  bool
	symbol    Symbol
}

func (e *sortedSymbol) displayName(raw bool) string {
	if raw {
		return e.name
	}
	if !e.memoized {
		e.demangled = Demangle(e.name)
		e.memoized = true
	}
	return e.demangled
}

// addressable reports whether sym names a location in this image: the null entry, undefined
// imports, and section/file marker symbols are left out of the index.
func addressable(sym Symbol) bool {
	if sym.Index() == 0 || sym.IsUndefined() {
		return false
	}
	switch sym.Type() {
	case elf.STT_SECTION, elf.STT_FILE:
		return false
	}
	return true
}

func (img *Image) sortSymbols() {
	sorted := make([]sortedSymbol, 0, img.SymbolCount())
	for sym := range img.Symbols() {
		if !addressable(sym) {
			continue
		}
		sorted = append(sorted, sortedSymbol{address: sym.Value(), name: sym.Name(), symbol: sym})
	}
	slices.SortStableFunc(sorted, func(a, b sortedSymbol) int {
		return cmp.Compare(a.address, b.address)
	})
	img.sortedSymbols = sorted
	img.sortedBuilt = true
}

// findSortedSymbol returns the index entry with the greatest address <= address, or nil when
// address precedes every symbol. Among symbols sharing that address the one earliest in the
// symbol table wins.
func (img *Image) findSortedSymbol(address uint32) *sortedSymbol {
	if !img.sortedBuilt {
		img.sortSymbols()
	}
	entries := img.sortedSymbols
	i := sort.Search(len(entries), func(i int) bool { return entries[i].address > address })
	if i == 0 {
		return nil
	}
	match := entries[i-1].address
	first := sort.Search(i, func(j int) bool { return entries[j].address >= match })
	return &entries[first]
}

// Prepare builds the sorted symbol index and demangles every indexed name. Afterwards address
// lookups no longer modify the Image, so a prepared Image may be read from several goroutines.
func (img *Image) Prepare() {
	img.mustBeValid()
	if !img.sortedBuilt {
		img.sortSymbols()
	}
	for i := range img.sortedSymbols {
		img.sortedSymbols[i].displayName(img.noDemangle)
	}
}

// FindSymbol returns the symbol containing or closest below address, and the distance from
// the symbol's address. ok is false when the image has no symbols or address precedes them all.
func (img *Image) FindSymbol(address uint32) (sym Symbol, offset uint32, ok bool) {
	if img.SymbolCount() == 0 {
		return Symbol{}, 0, false
	}
	entry := img.findSortedSymbol(address)
	if entry == nil {
		return Symbol{}, 0, false
	}
	return entry.symbol, address - entry.address, true
}

func (img *Image) symbolicate(address uint32) (string, uint32, bool) {
	if img.SymbolCount() == 0 {
		return UnknownSymbol, 0, false
	}
	entry := img.findSortedSymbol(address)
	if entry == nil {
		return UnknownSymbol, 0, false
	}
	return entry.displayName(img.noDemangle), address - entry.address, true
}

// Symbolicate resolves address to a demangled symbol name and the offset into that symbol.
// It never fails: unresolvable addresses yield UnknownSymbol and offset 0.
func (img *Image) Symbolicate(address uint32) (name string, offset uint32) {
	name, offset, _ = img.symbolicate(address)
	return name, offset
}

// SymbolicateString formats the symbolication of address as "name +0xoffset", or returns
// UnknownSymbol.
func (img *Image) SymbolicateString(address uint32) string {
	name, offset, ok := img.symbolicate(address)
	if !ok {
		return UnknownSymbol
	}
	return fmt.Sprintf("%s +%#x", name, offset)
}

// FindDemangledFunction returns the first defined function whose demangled name, with any
// parameter list removed, equals name. Overloads therefore match regardless of signature.
func (img *Image) FindDemangledFunction(name string) (Symbol, bool) {
	for sym := range img.Symbols() {
		if sym.Type() != elf.STT_FUNC || sym.IsUndefined() {
			continue
		}
		if stripParameters(Demangle(sym.Name())) == name {
			return sym, true
		}
	}
	return Symbol{}, false
}
