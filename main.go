//go:build !js

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/retroenv/retrogolib/log"

	"gochip8/pkg/asm"
	"gochip8/pkg/clock"
	"gochip8/pkg/config"
	"gochip8/pkg/cpu"
	"gochip8/pkg/grid"
	"gochip8/pkg/utils"
)

var errCyclesDone = errors.New("cycle budget used")

type runOptions struct {
	settings   config.Settings
	cycles     int
	keys       cpu.Keypad
	screenshot string
	show       bool
}

type cliFlags struct {
	inPath, outPath, runBinPath string
	runProgram                  bool
	cycles                      int
	keys                        string
	screenshot                  string
	show                        bool
	configPath                  string
	strict, debug, quiet        bool
}

func parseFlags(args []string, output io.Writer) (*cliFlags, error) {
	f := &cliFlags{}
	fs := flag.NewFlagSet("gochip8", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&f.inPath, "in", "", "input assembly file path")
	fs.StringVar(&f.outPath, "out", "", "output ROM file path (default: input with .ch8 extension)")
	fs.BoolVar(&f.runProgram, "run", false, "run the generated ROM headless")
	fs.StringVar(&f.runBinPath, "run-bin", "", "run an existing ROM headless")
	fs.IntVar(&f.cycles, "cycles", 1000, "number of instructions to run")
	fs.StringVar(&f.keys, "keys", "", "hex keypad digits held down during the run, e.g. 5A")
	fs.StringVar(&f.screenshot, "screenshot", "", "write the final display to a PNG file")
	fs.BoolVar(&f.show, "show", false, "print the final display")
	fs.StringVar(&f.configPath, "config", "", "settings file (default: search the config folders)")
	fs.BoolVar(&f.strict, "strict", false, "stop on recoverable errors")
	fs.BoolVar(&f.debug, "debug", false, "trace every instruction")
	fs.BoolVar(&f.quiet, "quiet", false, "only log errors")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

func main() {
	f, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}
	if f.runProgram && f.runBinPath != "" {
		fmt.Fprintln(os.Stderr, "use either -run or -run-bin, not both")
		os.Exit(2)
	}

	s, err := config.Resolve(f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load settings: %v\n", err)
		os.Exit(1)
	}
	s.Strict = s.Strict || f.strict
	s.Debug = s.Debug || f.debug
	s.Quiet = s.Quiet || f.quiet
	logger := config.CreateLogger(s.Debug, s.Quiet)

	assembledOutput := ""
	if f.inPath != "" {
		output := f.outPath
		if output == "" {
			output = defaultOutputPath(f.inPath)
		}

		code, err := assembleFile(f.inPath, output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "assembly failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("assembled %d bytes -> %s\n", len(code), output)
		assembledOutput = output
	}

	if f.inPath == "" && f.runBinPath == "" && !f.runProgram {
		fmt.Fprintln(os.Stderr, "nothing to do: provide -in to assemble, -run to run assembled output or -run-bin <file> to run an existing ROM")
		os.Exit(2)
	}

	runTarget := ""
	switch {
	case f.runBinPath != "":
		runTarget = f.runBinPath
	case f.runProgram:
		if assembledOutput == "" {
			fmt.Fprintln(os.Stderr, "-run requires -in, or use -run-bin <file>")
			os.Exit(2)
		}
		runTarget = assembledOutput
	default:
		return
	}

	held, err := parseKeys(f.keys)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -keys: %v\n", err)
		os.Exit(2)
	}

	opts := runOptions{
		settings:   s,
		cycles:     f.cycles,
		keys:       held,
		screenshot: f.screenshot,
		show:       f.show,
	}
	if _, err := runBinary(os.Stdout, runTarget, opts, logger); err != nil {
		fmt.Fprintf(os.Stderr, "run failed for %q: %v\n", runTarget, err)
		os.Exit(1)
	}
}

func defaultOutputPath(inPath string) string {
	ext := filepath.Ext(inPath)
	if ext == "" {
		return inPath + ".ch8"
	}
	return strings.TrimSuffix(inPath, ext) + ".ch8"
}

func assembleFile(inPath, outPath string) ([]byte, error) {
	source, err := os.ReadFile(inPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", inPath)
	}
	code, _, err := asm.Assemble(string(source))
	if err != nil {
		return nil, err
	}
	if len(code) > cpu.MaxProgramSize {
		return nil, errors.Errorf("program is %d bytes, the limit is %d", len(code), cpu.MaxProgramSize)
	}
	if err := os.WriteFile(outPath, code, 0o644); err != nil {
		return nil, errors.Wrapf(err, "writing %s", outPath)
	}
	return code, nil
}

// parseKeys reads a string of hex digits into a keypad.
func parseKeys(s string) (cpu.Keypad, error) {
	var k cpu.Keypad
	for _, r := range s {
		n, err := strconv.ParseUint(string(r), 16, 4)
		if err != nil {
			return k, errors.Errorf("%q is not a hex digit", r)
		}
		k[n] = true
	}
	return k, nil
}

// limited stops a machine after a fixed number of steps.
type limited struct {
	*cpu.CPU
	left int
}

func (l *limited) Step() error {
	if l.left <= 0 {
		return errCyclesDone
	}
	l.left--
	return l.CPU.Step()
}

// runBinary runs a ROM without a window. Time is simulated in 60 Hz frames
// so timers advance at the configured rate relative to instructions.
func runBinary(w io.Writer, path string, opts runOptions, logger *log.Logger) (*cpu.CPU, error) {
	program, err := utils.ReadProgram(path)
	if err != nil {
		return nil, err
	}

	vm := cpu.NewCPU(
		cpu.WithLogger(logger),
		cpu.WithPolicy(opts.settings.Policy()),
		cpu.WithSeed(opts.settings.Seed),
	)
	vm.LoadProgram(program)

	pacer, err := clock.NewPacer(opts.settings.ClockHz, opts.settings.TimerHz)
	if err != nil {
		return nil, err
	}
	machine := &limited{CPU: vm, left: opts.cycles}
	hooks := clock.Hooks{
		BeforeFrame: func() { vm.SetKeys(opts.keys) },
	}
	for {
		err := pacer.Frame(machine, hooks, pacer.FrameInterval())
		if errors.Is(err, errCyclesDone) {
			break
		}
		if err != nil {
			return vm, err
		}
	}

	r := vm.Regs
	fmt.Fprintf(w, "run complete (%s): PC=0x%04X I=0x%04X SP=%d DT=%d ST=%d executed=%d recovered=%d\n",
		path, r.PC, r.I, r.Depth(), vm.Timers.Delay, vm.Timers.Sound, vm.Stats.Executed, vm.Stats.Recovered)
	for row := 0; row < 2; row++ {
		for i := row * 8; i < row*8+8; i++ {
			fmt.Fprintf(w, "V%X=0x%02X ", i, r.V[i])
		}
		fmt.Fprintln(w)
	}

	if opts.show {
		fmt.Fprint(w, renderText(vm.Display))
	}
	if opts.screenshot != "" {
		if err := vm.Display.SaveScreenshot(opts.screenshot); err != nil {
			return vm, err
		}
	}
	return vm, nil
}

// renderText draws the display with '#' for lit pixels.
func renderText(d *cpu.Display) string {
	var sb strings.Builder
	for i, lit := range d.Framebuffer() {
		if lit {
			sb.WriteByte('#')
		} else {
			sb.WriteByte('.')
		}
		if x, _ := grid.GetGridCoords(i, cpu.DisplayWidth); x == cpu.DisplayWidth-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
