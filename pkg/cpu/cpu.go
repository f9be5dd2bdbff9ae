package cpu

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/pkg/errors"
	"github.com/retroenv/retrogolib/log"
)

// CPU owns the whole machine: register bank, memory, display, keypad and
// timers. Hosts drive it with Step and TickTimers.
type CPU struct {
	Regs    *Registers
	Memory  *Memory
	Display *Display
	Keys    Keypad
	Timers  Timers

	// Policy decides whether recoverable errors stop Step.
	Policy ErrorPolicy
	Logger *log.Logger

	Stats Stats

	rand    *rand.Rand
	program []byte
}

// Stats counts executed instructions and recovered errors.
type Stats struct {
	Executed  uint64
	Recovered uint64
}

// Option configures a CPU in NewCPU.
type Option func(*CPU)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(c *CPU) { c.Logger = logger }
}

// WithPolicy sets the recoverable error policy.
func WithPolicy(p ErrorPolicy) Option {
	return func(c *CPU) { c.Policy = p }
}

// WithSeed makes RND deterministic. A zero seed keeps the time based default.
func WithSeed(seed uint64) Option {
	return func(c *CPU) {
		if seed != 0 {
			c.rand = rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
		}
	}
}

// NewCPU creates a machine with the font loaded, PC at 0x200 and a clear
// display.
func NewCPU(opts ...Option) *CPU {
	now := uint64(time.Now().UnixNano())
	c := &CPU{
		Regs:    NewRegisters(),
		Memory:  NewMemory(),
		Display: NewDisplay(),
		rand:    rand.New(rand.NewPCG(now, now>>1)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reset returns the machine to its power-on state and reloads the last
// program passed to LoadProgram.
func (c *CPU) Reset() {
	c.Regs.Reset()
	c.Memory.Reset()
	c.Display.Clear()
	c.Keys = Keypad{}
	c.Timers = Timers{}
	c.Stats = Stats{}
	if c.program != nil {
		c.Memory.LoadProgram(c.program)
	}
}

// LoadProgram copies a program image to 0x200. Images larger than the
// program region are truncated; the number of dropped bytes is returned.
func (c *CPU) LoadProgram(data []byte) int {
	c.program = append(c.program[:0], data...)
	dropped := c.Memory.LoadProgram(data)
	if dropped > 0 && c.Logger != nil {
		c.Logger.Warn("Program truncated",
			log.Int("size", len(data)),
			log.Int("dropped", dropped))
	}
	return dropped
}

func hexField(key string, v uint16) log.Field {
	return log.String(key, fmt.Sprintf("0x%04X", v))
}

// fetch reads the big-endian opcode at PC, advancing PC per byte.
func (c *CPU) fetch() (uint16, error) {
	hi, err := c.Memory.Read(c.Regs.PC)
	if err != nil {
		return 0, err
	}
	c.Regs.AdvanceProgramCounter(1)
	lo, err := c.Memory.Read(c.Regs.PC)
	if err != nil {
		return 0, err
	}
	c.Regs.AdvanceProgramCounter(1)
	return uint16(hi)<<8 | uint16(lo), nil
}

// Step fetches, decodes and executes one instruction. Fatal errors are always
// returned. Recoverable errors are returned under PolicyStrict and logged
// otherwise.
func (c *CPU) Step() error {
	pc := c.Regs.PC
	raw, err := c.fetch()
	if err != nil {
		return errors.Wrapf(err, "fetch at 0x%04X", pc)
	}

	in := Decode(raw)
	if c.Logger != nil {
		c.Logger.Debug("Exec",
			hexField("pc", pc),
			hexField("opcode", raw),
			log.String("instruction", in.String()))
	}

	err = c.Execute(in)
	c.Stats.Executed++
	if err == nil {
		return nil
	}

	err = &InstructionError{PC: pc, Opcode: raw, Err: err}
	if IsFatal(err) || c.Policy == PolicyStrict {
		return err
	}
	c.Stats.Recovered++
	if c.Logger != nil {
		c.Logger.Warn("Skipping instruction", log.Err(err))
	}
	return nil
}

// Run executes up to n instructions and stops at the first returned error.
func (c *CPU) Run(n int) error {
	for i := 0; i < n; i++ {
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (c *CPU) skipIf(cond bool) {
	if cond {
		c.Regs.AdvanceProgramCounter(2)
	}
}

// Execute applies a decoded instruction to the machine. PC must already
// point past the instruction.
func (c *CPU) Execute(in Instruction) error {
	r := c.Regs
	v := &r.V
	x, y := in.X, in.Y

	switch in.Op {
	case OpSYS:
		// Machine code routines are not supported.
		if c.Logger != nil {
			c.Logger.Debug("Ignoring SYS call", hexField("address", in.NNN))
		}

	case OpCLS:
		c.Display.Clear()

	case OpRET:
		addr, err := r.Pop()
		if err != nil {
			return err
		}
		r.PC = addr

	case OpJP:
		r.PC = in.NNN

	case OpCALL:
		r.Push(r.PC)
		r.PC = in.NNN

	case OpSEImm:
		c.skipIf(v[x] == in.NN)

	case OpSNEImm:
		c.skipIf(v[x] != in.NN)

	case OpSEReg:
		c.skipIf(v[x] == v[y])

	case OpLDImm:
		v[x] = in.NN

	case OpADDImm:
		v[x] += in.NN

	case OpLDReg:
		v[x] = v[y]

	case OpOR:
		v[x] |= v[y]

	case OpAND:
		v[x] &= v[y]

	case OpXOR:
		v[x] ^= v[y]

	case OpADDReg:
		sum := uint16(v[x]) + uint16(v[y])
		v[x] = byte(sum)
		r.setFlagIf(sum > 0xFF)

	case OpSUB:
		noBorrow := v[x] >= v[y]
		v[x] -= v[y]
		r.setFlagIf(noBorrow)

	case OpSUBN:
		noBorrow := v[y] >= v[x]
		v[x] = v[y] - v[x]
		r.setFlagIf(noBorrow)

	case OpSHR:
		src := v[y]
		v[x] = src >> 1
		r.setFlagIf(src&0x01 != 0)

	case OpSHL:
		src := v[y]
		v[x] = src << 1
		r.setFlagIf(src&0x80 != 0)

	case OpSNEReg:
		c.skipIf(v[x] != v[y])

	case OpLDI:
		r.I = in.NNN

	case OpJPV0:
		r.PC = in.NNN + uint16(v[0])

	case OpRND:
		v[x] = byte(c.rand.Uint32()) & in.NN

	case OpDRW:
		sprite, err := c.Memory.ReadSlice(r.I, int(in.N))
		if err != nil {
			return err
		}
		collision := c.Display.Draw(v[x]&(DisplayWidth-1), v[y]&(DisplayHeight-1), sprite)
		r.setFlagIf(collision)

	case OpSKP:
		c.skipIf(c.Keys[v[x]&0xF])

	case OpSKNP:
		c.skipIf(!c.Keys[v[x]&0xF])

	case OpLDVxDT:
		v[x] = c.Timers.Delay

	case OpLDVxK:
		if key, ok := c.Keys.FirstPressed(); ok {
			v[x] = key
		} else {
			r.AdvanceProgramCounter(-2)
		}

	case OpLDDTVx:
		c.Timers.Delay = v[x]

	case OpLDSTVx:
		c.Timers.Sound = v[x]

	case OpADDI:
		r.I += uint16(v[x])

	case OpLDF:
		addr, err := c.Memory.FontGlyphAddress(v[x] & 0xF)
		if err != nil {
			return err
		}
		r.I = addr

	case OpLDB:
		val := v[x]
		return c.Memory.WriteSlice(r.I, []byte{val / 100, val / 10 % 10, val % 10})

	case OpSTRegs:
		return c.Memory.WriteSlice(r.I, v[:int(x)+1])

	case OpLDRegs:
		src, err := c.Memory.ReadSlice(r.I, int(x)+1)
		if err != nil {
			return err
		}
		copy(v[:int(x)+1], src)

	default:
		return ErrInvalidInstruction
	}
	return nil
}
