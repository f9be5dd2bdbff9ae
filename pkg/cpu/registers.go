package cpu

import "github.com/pkg/errors"

const (
	// NumRegisters is the number of general purpose registers V0..VF.
	NumRegisters = 16
	// FlagRegister is VF, overwritten by arithmetic, shift and draw.
	FlagRegister = 0xF
	// ProgramStart is where the program counter starts and images are loaded.
	ProgramStart uint16 = 0x200
)

// Registers is the register bank: V0..VF, the index register I, the program
// counter and the call stack.
type Registers struct {
	V     [NumRegisters]byte
	I     uint16
	PC    uint16
	Stack []uint16
}

// NewRegisters returns a bank with PC at ProgramStart.
func NewRegisters() *Registers {
	return &Registers{PC: ProgramStart}
}

func (r *Registers) Reset() {
	r.V = [NumRegisters]byte{}
	r.I = 0
	r.PC = ProgramStart
	r.Stack = r.Stack[:0]
}

func checkRegister(reg int) error {
	if reg < 0 || reg >= NumRegisters {
		return errors.Wrapf(ErrInvalidRegister, "V%d", reg)
	}
	return nil
}

// Get returns Vreg. Out of range indices return ErrInvalidRegister.
func (r *Registers) Get(reg int) (byte, error) {
	if err := checkRegister(reg); err != nil {
		return 0, err
	}
	return r.V[reg], nil
}

// Set writes Vreg. Out of range indices return ErrInvalidRegister and leave
// the bank untouched.
func (r *Registers) Set(reg int, val byte) error {
	if err := checkRegister(reg); err != nil {
		return err
	}
	r.V[reg] = val
	return nil
}

func (r *Registers) SetFlag() { r.V[FlagRegister] = 1 }
func (r *Registers) ResetFlag() { r.V[FlagRegister] = 0 }
func (r *Registers) IsFlagSet() bool { return r.V[FlagRegister] == 1 }
func (r *Registers) Index() uint16 { return r.I }
func (r *Registers) SetIndex(a uint16) { r.I = a }

// setFlagIf writes 1 or 0 to VF.
func (r *Registers) setFlagIf(cond bool) {
	if cond {
		r.SetFlag()
	} else {
		r.ResetFlag()
	}
}

func (r *Registers) ProgramCounter() uint16 { return r.PC }

func (r *Registers) SetProgramCounter(addr uint16) { r.PC = addr }

// AdvanceProgramCounter adds n to PC, wrapping at 16 bits. A negative n rolls
// the counter back, which is how the key wait re-executes itself.
func (r *Registers) AdvanceProgramCounter(n int) {
	r.PC = uint16(int(r.PC) + n)
}

// Push saves a return address.
func (r *Registers) Push(addr uint16) {
	r.Stack = append(r.Stack, addr)
}

// Pop removes the most recent return address.
func (r *Registers) Pop() (uint16, error) {
	if len(r.Stack) == 0 {
		return 0, ErrStackUnderflow
	}
	addr := r.Stack[len(r.Stack)-1]
	r.Stack = r.Stack[:len(r.Stack)-1]
	return addr, nil
}

// Depth is the current call stack depth.
func (r *Registers) Depth() int { return len(r.Stack) }
