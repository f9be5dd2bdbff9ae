package cpu

import (
	"fmt"

	"github.com/pkg/errors"
)

// Fatal errors terminate the run.
var (
	ErrAddressOutOfRange = errors.New("address out of range")
	ErrFontGlyph         = errors.New("font glyph out of range")
	ErrInvalidRegister   = errors.New("invalid register")
)

// Recoverable errors are logged and skipped under PolicyLenient.
var (
	ErrStackUnderflow     = errors.New("call stack underflow")
	ErrInvalidInstruction = errors.New("invalid instruction")
)

// ErrorPolicy decides what Step does with a recoverable error.
type ErrorPolicy int

const (
	// PolicyLenient logs the error and continues with the next fetch.
	PolicyLenient ErrorPolicy = iota
	// PolicyStrict returns the error from Step.
	PolicyStrict
)

func (p ErrorPolicy) String() string {
	switch p {
	case PolicyLenient:
		return "lenient"
	case PolicyStrict:
		return "strict"
	}
	return fmt.Sprintf("ErrorPolicy(%d)", int(p))
}

// AddressError reports a memory access outside the address space.
type AddressError struct {
	Op    string
	Addr  uint16
	Count int
}

func (e *AddressError) Error() string {
	if e.Count > 1 {
		return fmt.Sprintf("%s 0x%04X+%d: %v", e.Op, e.Addr, e.Count, ErrAddressOutOfRange)
	}
	return fmt.Sprintf("%s 0x%04X: %v", e.Op, e.Addr, ErrAddressOutOfRange)
}

func (e *AddressError) Unwrap() error { return ErrAddressOutOfRange }

// InstructionError ties a failure to the instruction that caused it.
type InstructionError struct {
	PC     uint16
	Opcode uint16
	Err    error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction 0x%04X at 0x%04X: %v", e.Opcode, e.PC, e.Err)
}

func (e *InstructionError) Unwrap() error { return e.Err }

// IsFatal reports whether err must terminate the run.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrAddressOutOfRange) ||
		errors.Is(err, ErrFontGlyph) ||
		errors.Is(err, ErrInvalidRegister)
}
