package cpu

import "github.com/pkg/errors"

// MemorySize is the size of the address space in bytes.
const MemorySize = 4096

// MaxProgramSize is the largest image that fits above ProgramStart.
const MaxProgramSize = MemorySize - int(ProgramStart)

// Memory is the flat 4 KiB address space with the font preloaded at FontBase.
type Memory struct {
	Bytes [MemorySize]byte
}

// NewMemory returns memory with the font installed.
func NewMemory() *Memory {
	m := &Memory{}
	m.Reset()
	return m
}

// Reset zeroes memory and reinstalls the font.
func (m *Memory) Reset() {
	m.Bytes = [MemorySize]byte{}
	copy(m.Bytes[FontBase:], font[:])
}

func (m *Memory) Read(addr uint16) (byte, error) {
	if int(addr) >= MemorySize {
		return 0, &AddressError{Op: "read", Addr: addr}
	}
	return m.Bytes[addr], nil
}

func (m *Memory) Write(addr uint16, val byte) error {
	if int(addr) >= MemorySize {
		return &AddressError{Op: "write", Addr: addr}
	}
	m.Bytes[addr] = val
	return nil
}

// ReadSlice returns count contiguous bytes starting at addr. The slice aliases
// memory and must not be retained across writes.
func (m *Memory) ReadSlice(addr uint16, count int) ([]byte, error) {
	end := int(addr) + count
	if count < 0 || end > MemorySize {
		return nil, &AddressError{Op: "read", Addr: addr, Count: count}
	}
	return m.Bytes[addr:end], nil
}

// WriteSlice copies data to addr. Nothing is written when the range does not
// fit in memory.
func (m *Memory) WriteSlice(addr uint16, data []byte) error {
	if int(addr)+len(data) > MemorySize {
		return &AddressError{Op: "write", Addr: addr, Count: len(data)}
	}
	copy(m.Bytes[addr:], data)
	return nil
}

// LoadProgram copies data into the program region and returns how many bytes
// did not fit. Bytes past the end of memory are dropped.
func (m *Memory) LoadProgram(data []byte) (dropped int) {
	n := copy(m.Bytes[ProgramStart:], data)
	return len(data) - n
}

// FontGlyphAddress returns the address of the glyph for hex digit nibble.
func (m *Memory) FontGlyphAddress(nibble byte) (uint16, error) {
	if nibble > 0xF {
		return 0, errors.Wrapf(ErrFontGlyph, "glyph %d", nibble)
	}
	return FontBase + GlyphSize*uint16(nibble), nil
}
