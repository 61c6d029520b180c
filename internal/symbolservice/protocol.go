package symbolservice

import (
	"fmt"
	"strconv"
)

// Request asks for the symbolication of addresses inside the image at Path.
type Request struct {
	Path      string   `json:"path"`
	Addresses []string `json:"addresses"`
}

// Frame is one symbolicated address.
type Frame struct {
	Address string `json:"address"`
	Symbol  string `json:"symbol"`
	Offset  uint32 `json:"offset"`
	Text    string `json:"text"`
}

// Response answers one Request. Error is set instead of Frames when the request failed.
type Response struct {
	ID     string  `json:"id"`
	Frames []Frame `json:"frames,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// ParseAddress accepts "0x"-prefixed hexadecimal, "0"-prefixed octal or decimal.
func ParseAddress(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return uint32(v), nil
}

// FormatAddress renders an address the way responses carry it.
func FormatAddress(address uint32) string {
	return fmt.Sprintf("%#x", address)
}
