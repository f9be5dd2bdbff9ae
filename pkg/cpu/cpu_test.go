package cpu

import (
	"errors"
	"strings"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
)

// loadWords writes opcodes big-endian starting at ProgramStart.
func loadWords(c *CPU, words ...uint16) {
	data := make([]byte, 0, len(words)*2)
	for _, w := range words {
		data = append(data, byte(w>>8), byte(w))
	}
	c.LoadProgram(data)
}

// newTestCPU returns a CPU with a fixed RND seed and test logging.
func newTestCPU(t *testing.T, opts ...Option) *CPU {
	t.Helper()
	opts = append([]Option{WithSeed(1), WithLogger(log.NewTestLogger(t))}, opts...)
	return NewCPU(opts...)
}

func TestNewCPU(t *testing.T) {
	c := newTestCPU(t)
	assert.Equal(t, ProgramStart, c.Regs.PC)
	assert.Equal(t, 0, c.Regs.Depth())
	assert.Equal(t, byte(0xF0), c.Memory.Bytes[FontBase])
	assert.Equal(t, PolicyLenient, c.Policy)
	assert.False(t, c.Sounding())
}

func TestLoadImmediate(t *testing.T) {
	for reg := 0; reg < NumRegisters; reg++ {
		for _, nn := range []byte{0x00, 0x01, 0x7F, 0x80, 0xFF} {
			c := newTestCPU(t)
			loadWords(c, Instruction{Op: OpLDImm, X: uint8(reg), NN: nn}.Encode())
			assert.NoError(t, c.Step())
			got, err := c.Regs.Get(reg)
			assert.NoError(t, err)
			assert.Equal(t, nn, got)
		}
	}
}

func TestAddImmediateWrapsWithoutFlag(t *testing.T) {
	c := newTestCPU(t)
	c.Regs.V[1] = 0xF0
	c.Regs.V[FlagRegister] = 0x07
	loadWords(c, 0x7120) // ADD V1, 0x20
	assert.NoError(t, c.Step())
	assert.Equal(t, byte(0x10), c.Regs.V[1])
	assert.Equal(t, byte(0x07), c.Regs.V[FlagRegister])
}

func TestALU(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		x, y   byte
		want   byte
		flag   byte
	}{
		{"add no carry", 0x8014, 10, 20, 30, 0},
		{"add carry", 0x8014, 200, 100, 44, 1},
		{"add exact 255", 0x8014, 200, 55, 255, 0},
		{"sub no borrow", 0x8015, 30, 10, 20, 1},
		{"sub equal", 0x8015, 10, 10, 0, 1},
		{"sub borrow", 0x8015, 10, 30, 236, 0},
		{"subn no borrow", 0x8017, 10, 30, 20, 1},
		{"subn borrow", 0x8017, 30, 10, 236, 0},
		{"shr low bit", 0x8016, 0x00, 0x05, 0x02, 1},
		{"shr no low bit", 0x8016, 0xFF, 0x04, 0x02, 0},
		{"shl high bit", 0x801E, 0x00, 0x81, 0x02, 1},
		{"shl no high bit", 0x801E, 0xFF, 0x41, 0x82, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCPU(t)
			c.Regs.V[0] = tt.x
			c.Regs.V[1] = tt.y
			c.Regs.V[FlagRegister] = 0xAA
			loadWords(c, tt.opcode)
			assert.NoError(t, c.Step())
			assert.Equal(t, tt.want, c.Regs.V[0])
			assert.Equal(t, tt.flag, c.Regs.V[FlagRegister])
		})
	}
}

func TestBitwise(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		want   byte
	}{
		{"ld", 0x8010, 0x0F},
		{"or", 0x8011, 0x3F},
		{"and", 0x8012, 0x0C},
		{"xor", 0x8013, 0x33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCPU(t)
			c.Regs.V[0] = 0x3C
			c.Regs.V[1] = 0x0F
			loadWords(c, tt.opcode)
			assert.NoError(t, c.Step())
			assert.Equal(t, tt.want, c.Regs.V[0])
		})
	}
}

// The flag is written after the result, so VF as destination ends up holding
// the flag.
func TestFlagWrittenLast(t *testing.T) {
	c := newTestCPU(t)
	c.Regs.V[FlagRegister] = 0xFF
	c.Regs.V[1] = 0x01
	loadWords(c, 0x8F14) // ADD VF, V1
	assert.NoError(t, c.Step())
	assert.Equal(t, byte(1), c.Regs.V[FlagRegister])
}

func TestSkips(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		skip   bool
	}{
		{"se imm taken", 0x3042, true},
		{"se imm not taken", 0x3043, false},
		{"sne imm taken", 0x4043, true},
		{"sne imm not taken", 0x4042, false},
		{"se reg taken", 0x5010, true},
		{"se reg not taken", 0x5020, false},
		{"sne reg taken", 0x9020, true},
		{"sne reg not taken", 0x9010, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCPU(t)
			c.Regs.V[0] = 0x42
			c.Regs.V[1] = 0x42
			c.Regs.V[2] = 0x01
			loadWords(c, tt.opcode)
			assert.NoError(t, c.Step())
			want := ProgramStart + 2
			if tt.skip {
				want += 2
			}
			assert.Equal(t, want, c.Regs.PC)
		})
	}
}

func TestKeySkips(t *testing.T) {
	c := newTestCPU(t)
	c.Regs.V[3] = 0x1A // only the low nibble selects the key
	c.SetKeys(Keypad{0xA: true})
	loadWords(c, 0xE39E, 0x0000, 0xE3A1)
	assert.NoError(t, c.Step())
	assert.Equal(t, ProgramStart+4, c.Regs.PC)
	assert.NoError(t, c.Step())
	assert.Equal(t, ProgramStart+6, c.Regs.PC)
}

func TestJumps(t *testing.T) {
	c := newTestCPU(t)
	loadWords(c, 0x1300)
	assert.NoError(t, c.Step())
	assert.Equal(t, uint16(0x300), c.Regs.PC)

	c = newTestCPU(t)
	c.Regs.V[0] = 0x10
	loadWords(c, 0xB300)
	assert.NoError(t, c.Step())
	assert.Equal(t, uint16(0x310), c.Regs.PC)
}

func TestCallReturn(t *testing.T) {
	c := newTestCPU(t)
	loadWords(c,
		0x2206, // CALL 0x206
		0x0000,
		0x0000,
		0x00EE, // RET
	)
	assert.NoError(t, c.Step())
	assert.Equal(t, uint16(0x206), c.Regs.PC)
	assert.Equal(t, 1, c.Regs.Depth())

	assert.NoError(t, c.Step())
	assert.Equal(t, ProgramStart+2, c.Regs.PC)
	assert.Equal(t, 0, c.Regs.Depth())
}

func TestIndexOps(t *testing.T) {
	c := newTestCPU(t)
	c.Regs.V[2] = 0x10
	loadWords(c, 0xAFFF, 0xF21E)
	assert.NoError(t, c.Run(2))
	assert.Equal(t, uint16(0x100F), c.Regs.I)
}

func TestTimers(t *testing.T) {
	c := newTestCPU(t)
	c.Timers.Delay = 3
	for i := 0; i < 3; i++ {
		c.TickTimers()
	}
	assert.Equal(t, byte(0), c.Timers.Delay)
	c.TickTimers()
	assert.Equal(t, byte(0), c.Timers.Delay)
}

func TestTimerOps(t *testing.T) {
	c := newTestCPU(t)
	c.Regs.V[1] = 9
	c.Regs.V[2] = 2
	loadWords(c,
		0xF115, // LD DT, V1
		0xF218, // LD ST, V2
		0xF307, // LD V3, DT
	)
	assert.NoError(t, c.Run(2))
	assert.True(t, c.Sounding())
	c.TickTimers()
	assert.NoError(t, c.Step())
	assert.Equal(t, byte(8), c.Regs.V[3])
	c.TickTimers()
	assert.False(t, c.Sounding())
}

func TestWaitForKey(t *testing.T) {
	c := newTestCPU(t)
	loadWords(c, 0xF50A) // LD V5, K
	for i := 0; i < 3; i++ {
		assert.NoError(t, c.Step())
		assert.Equal(t, ProgramStart, c.Regs.PC)
	}

	c.SetKeys(Keypad{0x9: true, 0xC: true})
	assert.NoError(t, c.Step())
	assert.Equal(t, byte(0x9), c.Regs.V[5])
	assert.Equal(t, ProgramStart+2, c.Regs.PC)
}

func TestRandomMasked(t *testing.T) {
	c := newTestCPU(t)
	words := make([]uint16, 50)
	for i := range words {
		words[i] = 0xC00F
	}
	loadWords(c, words...)
	for range words {
		assert.NoError(t, c.Step())
		assert.Equal(t, byte(0), c.Regs.V[0]&0xF0)
	}
}

func TestRandomSeeded(t *testing.T) {
	run := func() []byte {
		c := NewCPU(WithSeed(42))
		loadWords(c, 0xC0FF, 0xC1FF, 0xC2FF, 0xC3FF)
		assert.NoError(t, c.Run(4))
		return c.Regs.V[:4]
	}
	assert.Equal(t, run(), run())
}

func TestBCD(t *testing.T) {
	c := newTestCPU(t)
	c.Regs.V[4] = 254
	c.Regs.I = 0x300
	loadWords(c, 0xF433)
	assert.NoError(t, c.Step())
	assert.Equal(t, []byte{2, 5, 4}, c.Memory.Bytes[0x300:0x303])
}

func TestStoreLoadRegisters(t *testing.T) {
	c := newTestCPU(t)
	for i := range 6 {
		c.Regs.V[i] = byte(0x11 * (i + 1))
	}
	want := c.Regs.V
	c.Regs.I = 0x400
	loadWords(c,
		0xF555, // LD [I], V5
		0xA500, // LD I, 0x500
		0xF565, // LD V5, [I]
	)
	assert.NoError(t, c.Step())
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}, c.Memory.Bytes[0x400:0x406])

	// Load back from an untouched region first to prove the registers change,
	// then restore from the stored copy.
	assert.NoError(t, c.Run(2))
	assert.Equal(t, byte(0), c.Regs.V[0])

	c.Regs.I = 0x400
	assert.NoError(t, c.Execute(Instruction{Op: OpLDRegs, X: 5}))
	assert.Equal(t, want, c.Regs.V)
}

func TestStoreRegistersOutOfRange(t *testing.T) {
	c := newTestCPU(t)
	c.Regs.I = 0xFFE
	loadWords(c, 0xF355)
	err := c.Step()
	assert.True(t, err != nil)
	assert.True(t, IsFatal(err))
	assert.Equal(t, byte(0), c.Memory.Bytes[0xFFE])
}

func TestFontGlyphDraw(t *testing.T) {
	c := newTestCPU(t)
	loadWords(c,
		0x6000, // LD V0, 0
		0xF029, // LD F, V0
		0xD005, // DRW V0, V0, 5
	)
	assert.NoError(t, c.Run(3))
	assert.Equal(t, FontBase, c.Regs.I)

	want := []byte{0xF0, 0x90, 0x90, 0x90, 0xF0}
	for row, bits := range want {
		for col := 0; col < 8; col++ {
			assert.Equal(t, bits&(0x80>>col) != 0, c.Display.Pixel(col, row))
		}
	}
}

func TestDrawGlyphFiveScenario(t *testing.T) {
	c := newTestCPU(t)
	c.LoadProgram([]byte{0x00, 0xE0, 0x60, 0x05, 0xF0, 0x29, 0xD0, 0x05})
	assert.NoError(t, c.Run(4))

	glyph := Glyph(5)
	for row := 0; row < DisplayHeight; row++ {
		for col := 0; col < DisplayWidth; col++ {
			want := false
			gy, gx := row-5, col-5
			if gy >= 0 && gy < GlyphSize && gx >= 0 && gx < 8 {
				want = glyph[gy]&(0x80>>gx) != 0
			}
			assert.Equal(t, want, c.Display.Pixel(col, row))
		}
	}
	assert.Equal(t, byte(0), c.Regs.V[FlagRegister])
	assert.Equal(t, uint64(4), c.Stats.Executed)
}

func TestDrawCollision(t *testing.T) {
	c := newTestCPU(t)
	c.Regs.V[0] = 70 // wraps to 6
	c.Regs.V[1] = 40 // wraps to 8
	c.Regs.I = 0x300
	c.Memory.Bytes[0x300] = 0xFF
	loadWords(c, 0xD011, 0xD011)

	assert.NoError(t, c.Step())
	assert.True(t, c.Display.Pixel(6, 8))
	assert.Equal(t, byte(0), c.Regs.V[FlagRegister])

	assert.NoError(t, c.Step())
	assert.False(t, c.Display.Pixel(6, 8))
	assert.Equal(t, byte(1), c.Regs.V[FlagRegister])
	assert.Equal(t, Framebuffer{}, c.Display.Framebuffer())
}

func TestClearScreen(t *testing.T) {
	c := newTestCPU(t)
	c.Display.Draw(0, 0, []byte{0xFF})
	loadWords(c, 0x00E0)
	assert.NoError(t, c.Step())
	assert.Equal(t, Framebuffer{}, c.Display.Framebuffer())
	assert.True(t, c.Display.Dirty())
}

func TestSysIgnored(t *testing.T) {
	c := newTestCPU(t)
	loadWords(c, 0x0123)
	assert.NoError(t, c.Step())
	assert.Equal(t, ProgramStart+2, c.Regs.PC)
}

func TestRecoverableLenient(t *testing.T) {
	c := newTestCPU(t)
	c.Regs.V[0] = 0x33
	loadWords(c,
		0x00EE, // RET on empty stack
		0x5011, // invalid
		0x6001, // LD V0, 1
	)
	assert.NoError(t, c.Run(3))
	assert.Equal(t, byte(1), c.Regs.V[0])
	assert.Equal(t, uint64(2), c.Stats.Recovered)
	assert.Equal(t, uint64(3), c.Stats.Executed)
}

func TestRecoverableStrict(t *testing.T) {
	tests := []struct {
		name   string
		opcode uint16
		want   error
	}{
		{"stack underflow", 0x00EE, ErrStackUnderflow},
		{"invalid instruction", 0xFFFF, ErrInvalidInstruction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCPU(t, WithPolicy(PolicyStrict))
			loadWords(c, tt.opcode)
			err := c.Step()
			assert.True(t, err != nil)
			assert.True(t, errors.Is(err, tt.want))
			assert.False(t, IsFatal(err))

			var ie *InstructionError
			assert.True(t, errors.As(err, &ie))
			assert.Equal(t, ProgramStart, ie.PC)
			assert.Equal(t, tt.opcode, ie.Opcode)
		})
	}
}

func TestFatalDrawOutOfRange(t *testing.T) {
	c := newTestCPU(t)
	c.Regs.I = 0xFFD
	loadWords(c, 0xD01F)
	err := c.Step()
	assert.True(t, err != nil)
	assert.True(t, IsFatal(err))
	assert.True(t, err != nil && strings.Contains(err.Error(), "address out of range"))
}

func TestFatalFetchOutOfRange(t *testing.T) {
	c := newTestCPU(t)
	c.Regs.PC = 0xFFF
	err := c.Step()
	assert.True(t, err != nil)
	assert.True(t, IsFatal(err))
	assert.True(t, err != nil && strings.Contains(err.Error(), "fetch at 0x0FFF"))
}

func TestLoadProgramTruncates(t *testing.T) {
	c := newTestCPU(t)
	data := make([]byte, MaxProgramSize+10)
	data[len(data)-11] = 0xAB
	assert.Equal(t, 10, c.LoadProgram(data))
	assert.Equal(t, byte(0xAB), c.Memory.Bytes[MemorySize-1])
}

func TestReset(t *testing.T) {
	c := newTestCPU(t)
	loadWords(c, 0x6042, 0x2200)
	assert.NoError(t, c.Run(2))
	c.Timers.Sound = 5
	c.Memory.Bytes[0x202] = 0xFF

	c.Reset()
	assert.Equal(t, ProgramStart, c.Regs.PC)
	assert.Equal(t, byte(0), c.Regs.V[0])
	assert.Equal(t, 0, c.Regs.Depth())
	assert.False(t, c.Sounding())
	assert.Equal(t, byte(0x22), c.Memory.Bytes[0x202])
	assert.Equal(t, uint64(0), c.Stats.Executed)
}
