package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/nsf/termbox-go"
	"github.com/pkg/errors"
	"github.com/retroenv/retrogolib/log"
	"golang.org/x/term"

	"gochip8/pkg/audio"
	"gochip8/pkg/clock"
	"gochip8/pkg/config"
	"gochip8/pkg/cpu"
	"gochip8/pkg/grid"
	"gochip8/pkg/utils"
)

// Console renders the display with half-block characters, two pixel rows per
// text row, and reads the keypad from terminal key events.
type Console struct {
	vm     *cpu.CPU
	hold   *keyHold
	buzzer cpu.Buzzer
	status string
}

// halfBlock returns the character for a cell whose upper and lower pixels
// are top and bottom.
func halfBlock(top, bottom bool) rune {
	switch {
	case top && bottom:
		return '█'
	case top:
		return '▀'
	case bottom:
		return '▄'
	}
	return ' '
}

func (c *Console) Present(fb cpu.Framebuffer) error {
	for row := 0; row < cpu.DisplayHeight/2; row++ {
		for x := 0; x < cpu.DisplayWidth; x++ {
			top := fb[grid.GetIndex(x, row*2, cpu.DisplayWidth)]
			bottom := fb[grid.GetIndex(x, row*2+1, cpu.DisplayWidth)]
			termbox.SetCell(x, row, halfBlock(top, bottom), termbox.ColorWhite, termbox.ColorBlack)
		}
	}
	for i, ch := range c.status {
		termbox.SetCell(i, cpu.DisplayHeight/2, ch, termbox.ColorDefault, termbox.ColorDefault)
	}
	return termbox.Flush()
}

func (c *Console) PollKeys() cpu.Keypad {
	return c.hold.snapshot(time.Now())
}

func (c *Console) SetSounding(on bool) {
	c.buzzer.SetSounding(on)
}

var _ cpu.Host = (*Console)(nil)

// readEvents forwards key presses until poll reports an interrupt. Esc,
// Ctrl-C and input errors cancel the run, but polling continues so the
// Interrupt sent on shutdown always has a receiver. The first input error is
// sent on done.
func (c *Console) readEvents(poll func() termbox.Event, cancel context.CancelFunc, done chan<- error) {
	var readErr error
	defer func() { done <- readErr }()
	for {
		ev := poll()
		switch ev.Type {
		case termbox.EventKey:
			if ev.Key == termbox.KeyEsc || ev.Key == termbox.KeyCtrlC {
				cancel()
				continue
			}
			c.hold.press(ev.Ch, time.Now())
		case termbox.EventError:
			if readErr == nil {
				readErr = errors.Wrap(ev.Err, "reading terminal input")
			}
			cancel()
		case termbox.EventInterrupt:
			return
		}
	}
}

func run() error {
	configPath := flag.String("config", "", "settings file (default: search the config folders)")
	hz := flag.Int("hz", 0, "instructions per second")
	strict := flag.Bool("strict", false, "stop on recoverable errors")
	holdFor := flag.Duration("hold", 150*time.Millisecond, "how long a key press counts as held")
	mute := flag.Bool("mute", false, "disable the beeper")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <rom.ch8|source.asm>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("the console host needs an interactive terminal")
	}

	s, err := config.Resolve(*configPath)
	if err != nil {
		return err
	}
	if *hz != 0 {
		s.ClockHz = *hz
	}
	s.Strict = s.Strict || *strict
	if err := s.Validate(); err != nil {
		return err
	}
	// Log lines would tear the screen, so only errors are printed.
	logger := config.CreateLogger(false, true)

	program, err := utils.ReadProgram(flag.Arg(0))
	if err != nil {
		return err
	}
	hold, err := newKeyHold(s, *holdFor)
	if err != nil {
		return err
	}
	pacer, err := clock.NewPacer(s.ClockHz, s.TimerHz)
	if err != nil {
		return err
	}

	vm := cpu.NewCPU(
		cpu.WithLogger(logger),
		cpu.WithPolicy(s.Policy()),
		cpu.WithSeed(s.Seed),
	)
	vm.LoadProgram(program)

	c := &Console{
		vm:     vm,
		hold:   hold,
		buzzer: audio.Silent{},
		status: fmt.Sprintf("%s  %d Hz  Esc quits", flag.Arg(0), s.ClockHz),
	}
	if !*mute {
		b, err := audio.NewBeeper(0, s.BeepHz, s.Volume)
		if err != nil {
			logger.Warn("Audio unavailable", log.Err(err))
		} else {
			defer b.Close()
			c.buzzer = b
		}
	}

	if err := termbox.Init(); err != nil {
		return errors.Wrap(err, "initializing terminal")
	}
	defer termbox.Close()
	termbox.SetInputMode(termbox.InputEsc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go c.readEvents(termbox.PollEvent, cancel, done)

	err = pacer.Run(ctx, vm, clock.Hooks{
		BeforeFrame: func() { vm.SetKeys(c.PollKeys()) },
		AfterFrame: func() error {
			c.SetSounding(vm.Sounding())
			return vm.PresentIfDirty(c)
		},
	})
	c.SetSounding(false)

	// The reader only returns on this interrupt.
	termbox.Interrupt()
	if readErr := <-done; err == nil {
		err = readErr
	}
	return err
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gochip8: %v\n", err)
		os.Exit(1)
	}
}
