package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"

	"gochip8/pkg/config"
	"gochip8/pkg/cpu"
)

const glyphFive = `
	LD V0, 5
	LD F, V0
	LD V1, 0
	LD V2, 0
	DRW V1, V2, 5
end:
	JP end
`

func TestDefaultOutputPath(t *testing.T) {
	assert.Equal(t, "game.ch8", defaultOutputPath("game.asm"))
	assert.Equal(t, "dir/game.ch8", defaultOutputPath("dir/game"))
}

func TestParseFlags(t *testing.T) {
	var usage bytes.Buffer
	f, err := parseFlags([]string{"-run-bin", "game.ch8", "-cycles", "50", "-keys", "5", "-strict"}, &usage)
	assert.NoError(t, err)
	assert.Equal(t, "game.ch8", f.runBinPath)
	assert.Equal(t, 50, f.cycles)
	assert.Equal(t, "5", f.keys)
	assert.True(t, f.strict)
	assert.Equal(t, "", f.configPath)
}

func TestParseFlagsHasNoDisassembler(t *testing.T) {
	var usage bytes.Buffer
	_, err := parseFlags([]string{"-dis", "game.ch8"}, &usage)
	assert.True(t, err != nil && strings.Contains(err.Error(), "flag provided but not defined: -dis"))
	assert.False(t, strings.Contains(usage.String(), "disassemble"))
}

func TestParseKeys(t *testing.T) {
	k, err := parseKeys("5a")
	assert.NoError(t, err)
	assert.True(t, k[0x5])
	assert.True(t, k[0xA])
	assert.False(t, k[0x0])

	_, err = parseKeys("5G")
	assert.True(t, err != nil)
}

func TestLimitedStopsAfterBudget(t *testing.T) {
	m := &limited{CPU: cpu.NewCPU(), left: 2}
	m.LoadProgram([]byte{0x12, 0x00})
	assert.NoError(t, m.Step())
	assert.NoError(t, m.Step())
	assert.True(t, errors.Is(m.Step(), errCyclesDone))
	assert.Equal(t, uint64(2), m.Stats.Executed)
}

func TestAssembleAndRunHeadless(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "five.asm")
	assert.NoError(t, os.WriteFile(src, []byte(glyphFive), 0o644))

	rom := defaultOutputPath(src)
	code, err := assembleFile(src, rom)
	assert.NoError(t, err)
	assert.Equal(t, 12, len(code))

	shot := filepath.Join(dir, "five.png")
	opts := runOptions{
		settings:   config.Default(),
		cycles:     100,
		screenshot: shot,
		show:       true,
	}
	var out bytes.Buffer
	vm, err := runBinary(&out, rom, opts, log.NewTestLogger(t))
	assert.NoError(t, err)

	// Glyph 5 rows: F0 80 F0 10 F0.
	assert.True(t, vm.Display.Pixel(0, 0))
	assert.True(t, vm.Display.Pixel(3, 0))
	assert.True(t, vm.Display.Pixel(0, 1))
	assert.False(t, vm.Display.Pixel(3, 1))
	assert.False(t, vm.Display.Pixel(0, 3))
	assert.True(t, vm.Display.Pixel(3, 3))
	assert.False(t, vm.Display.Pixel(4, 0))
	assert.Equal(t, byte(0), vm.Regs.V[0xF])
	assert.Equal(t, uint64(100), vm.Stats.Executed)

	text := out.String()
	assert.True(t, strings.Contains(text, "run complete"))
	assert.True(t, strings.Contains(text, "V0=0x05"))
	assert.True(t, strings.Contains(text, "####...."))

	info, err := os.Stat(shot)
	assert.NoError(t, err)
	assert.True(t, info.Size() > 0)
}

func TestRunHeadlessTimersFollowClock(t *testing.T) {
	dir := t.TempDir()
	rom := filepath.Join(dir, "timer.ch8")
	// LD V0, 60; LD DT, V0; end: JP end
	assert.NoError(t, os.WriteFile(rom, []byte{0x60, 0x3C, 0xF0, 0x15, 0x12, 0x04}, 0o644))

	s := config.Default()
	opts := runOptions{settings: s, cycles: s.ClockHz / 2}
	var out bytes.Buffer
	vm, err := runBinary(&out, rom, opts, log.NewTestLogger(t))
	assert.NoError(t, err)
	// Half a second of instructions leaves about half of the delay.
	assert.True(t, vm.Timers.Delay >= 29 && vm.Timers.Delay <= 31)
}

func TestRunHeadlessStrictStops(t *testing.T) {
	dir := t.TempDir()
	rom := filepath.Join(dir, "ret.ch8")
	assert.NoError(t, os.WriteFile(rom, []byte{0x00, 0xEE}, 0o644))

	s := config.Default()
	s.Strict = true
	var out bytes.Buffer
	_, err := runBinary(&out, rom, runOptions{settings: s, cycles: 10}, log.NewTestLogger(t))
	assert.True(t, errors.Is(err, cpu.ErrStackUnderflow))
}

func TestRunHeadlessHeldKey(t *testing.T) {
	dir := t.TempDir()
	rom := filepath.Join(dir, "key.ch8")
	// LD V0, K; end: JP end
	assert.NoError(t, os.WriteFile(rom, []byte{0xF0, 0x0A, 0x12, 0x02}, 0o644))

	keys, err := parseKeys("7")
	assert.NoError(t, err)
	var out bytes.Buffer
	vm, err := runBinary(&out, rom, runOptions{settings: config.Default(), cycles: 5, keys: keys}, log.NewTestLogger(t))
	assert.NoError(t, err)
	assert.Equal(t, byte(7), vm.Regs.V[0])
}
