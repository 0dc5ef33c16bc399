// Package cart models the cartridge input collaborator: an immutable ROM
// image plus the decoded header fields needed to pick a bank-switching
// policy and to log what was loaded. The cartridge never mutates its own
// image; bank switching happens on the memory map side (internal/bus),
// which copies 16 KiB windows out of this image on demand.
package cart

import "fmt"

// MapperKind distinguishes the handful of bank-switching policies the core
// understands. Anything beyond MBC1 ROM-bank writes is out of scope (see
// spec's Non-goals); such cartridges are treated as ROM-only.
type MapperKind int

const (
	MapperROMOnly MapperKind = iota
	MapperMBC1
)

// ROM is the immutable cartridge image plus its decoded header.
type ROM struct {
	Data   []byte
	Header Header
	Mapper MapperKind
}

// New parses data as a cartridge image. It never fails: images too short to
// hold a header fall back to a ROM-only reading, and the Nintendo logo is
// not checked, matching the spec's "no header validation beyond length".
func New(data []byte) *ROM {
	h := ParseHeader(data)
	mapper := MapperROMOnly
	switch h.CartType {
	case 0x01, 0x02, 0x03:
		mapper = MapperMBC1
	}
	return &ROM{Data: data, Header: h, Mapper: mapper}
}

// Bank returns the bytes of 16 KiB ROM bank n, or nil if n is out of range.
func (r *ROM) Bank(n int) []byte {
	start := n * 0x4000
	end := start + 0x4000
	if start < 0 || end > len(r.Data) {
		return nil
	}
	return r.Data[start:end]
}

// BankCount reports how many 16 KiB banks the image contains.
func (r *ROM) BankCount() int {
	if len(r.Data) == 0 {
		return 0
	}
	return len(r.Data) / 0x4000
}

func (r *ROM) String() string {
	return fmt.Sprintf("%q type=%s banks=%d ram=%dB", r.Header.Title, r.Header.CartTypeStr, r.BankCount(), r.Header.RAMSizeBytes)
}
