package main

import (
	"flag"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/text"
	"github.com/pkg/errors"
	"github.com/retroenv/retrogolib/log"
	"golang.org/x/image/font/basicfont"

	"gochip8/pkg/audio"
	"gochip8/pkg/clock"
	"gochip8/pkg/config"
	"gochip8/pkg/cpu"
	"gochip8/pkg/utils"
)

var (
	colorOn  = color.RGBA{0xE0, 0xF0, 0xD0, 0xFF}
	colorOff = color.RGBA{0x10, 0x18, 0x10, 0xFF}
)

type Game struct {
	vm      *cpu.CPU
	pacer   *clock.Pacer
	keys    map[byte]ebiten.Key
	buzzer  cpu.Buzzer
	logger  *log.Logger
	scale   int
	romPath string

	screen *ebiten.Image // reused 64×32 canvas
	last   time.Time
	paused bool
	halted error
	notice string
	until  time.Time
}

// PollKeys reads the mapped host keys into a keypad snapshot.
func (g *Game) PollKeys() cpu.Keypad {
	var k cpu.Keypad
	for n, key := range g.keys {
		k[n] = ebiten.IsKeyPressed(key)
	}
	return k
}

// Present uploads the framebuffer to the canvas.
func (g *Game) Present(fb cpu.Framebuffer) error {
	if g.screen == nil {
		g.screen = ebiten.NewImage(cpu.DisplayWidth, cpu.DisplayHeight)
	}
	g.screen.WritePixels(fb.RGBA(colorOn, colorOff))
	return nil
}

func (g *Game) SetSounding(on bool) {
	g.buzzer.SetSounding(on)
}

var _ cpu.Host = (*Game)(nil)

func (g *Game) Update() error {
	if ebiten.IsWindowBeingClosed() || inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		g.SetSounding(false)
		return ebiten.Termination
	}

	now := time.Now()
	elapsed := now.Sub(g.last)
	g.last = now

	if inpututil.IsKeyJustPressed(ebiten.KeyP) {
		g.paused = !g.paused
		g.pacer.Reset()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		g.vm.Reset()
		g.halted = nil
		g.pacer.Reset()
		g.flash("reset")
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF12) {
		g.screenshot()
	}

	if g.paused || g.halted != nil {
		g.SetSounding(false)
		return nil
	}

	err := g.pacer.Frame(g.vm, clock.Hooks{
		BeforeFrame: func() { g.vm.SetKeys(g.PollKeys()) },
	}, elapsed)
	if err != nil {
		// Keep the window up so the last frame can be inspected.
		g.halted = err
		g.logger.Error("Execution halted", err)
	}
	g.SetSounding(g.vm.Sounding())
	return nil
}

func (g *Game) flash(msg string) {
	g.notice = msg
	g.until = time.Now().Add(2 * time.Second)
}

func (g *Game) screenshot() {
	dir, err := config.ScreenshotDir()
	if err != nil {
		g.logger.Error("Screenshot failed", err)
		return
	}
	path := utils.ScreenshotPath(dir, g.romPath, time.Now())
	if err := g.vm.Display.SaveScreenshot(path); err != nil {
		g.logger.Error("Screenshot failed", err)
		return
	}
	g.logger.Info("Saved screenshot", log.String("path", path))
	g.flash("screenshot saved")
}

func (g *Game) Draw(screen *ebiten.Image) {
	if err := g.vm.PresentIfDirty(g); err != nil {
		g.logger.Error("Present failed", err)
	}
	if g.screen != nil {
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(float64(g.scale), float64(g.scale))
		screen.DrawImage(g.screen, op)
	}

	face := basicfont.Face7x13
	status := ""
	switch {
	case g.halted != nil:
		status = "HALTED  F5 reset"
	case g.paused:
		status = "PAUSED  P resume"
	case time.Now().Before(g.until):
		status = g.notice
	}
	if status != "" {
		text.Draw(screen, status, face, 6, 16, color.RGBA{0xFF, 0xC0, 0x40, 0xFF})
	}
}

func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	return cpu.DisplayWidth * g.scale, cpu.DisplayHeight * g.scale
}

func newGame(s config.Settings, program []byte, romPath string, buzzer cpu.Buzzer, logger *log.Logger) (*Game, error) {
	keys, err := resolveKeys(s)
	if err != nil {
		return nil, err
	}
	pacer, err := clock.NewPacer(s.ClockHz, s.TimerHz)
	if err != nil {
		return nil, err
	}

	vm := cpu.NewCPU(
		cpu.WithLogger(logger),
		cpu.WithPolicy(s.Policy()),
		cpu.WithSeed(s.Seed),
	)
	vm.LoadProgram(program)

	return &Game{
		vm:      vm,
		pacer:   pacer,
		keys:    keys,
		buzzer:  buzzer,
		logger:  logger,
		scale:   s.Scale,
		romPath: romPath,
		last:    time.Now(),
	}, nil
}

func run() error {
	configPath := flag.String("config", "", "settings file (default: search the config folders)")
	scale := flag.Int("scale", 0, "window scale factor")
	hz := flag.Int("hz", 0, "instructions per second")
	strict := flag.Bool("strict", false, "stop on recoverable errors")
	debug := flag.Bool("debug", false, "trace every instruction")
	mute := flag.Bool("mute", false, "disable the beeper")
	saveConfig := flag.Bool("save-config", false, "write the effective settings to the user config folder and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <rom.ch8|source.asm>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 && !*saveConfig {
		flag.Usage()
		os.Exit(2)
	}

	s, err := config.Resolve(*configPath)
	if err != nil {
		return err
	}
	if *scale != 0 {
		s.Scale = *scale
	}
	if *hz != 0 {
		s.ClockHz = *hz
	}
	s.Strict = s.Strict || *strict
	s.Debug = s.Debug || *debug
	if err := s.Validate(); err != nil {
		return err
	}
	if *saveConfig {
		dir, err := config.Save("", s)
		if err != nil {
			return err
		}
		fmt.Printf("settings written to %s\n", filepath.Join(dir, config.FileName))
		return nil
	}
	logger := config.CreateLogger(s.Debug, s.Quiet)

	romPath := flag.Arg(0)
	program, err := utils.ReadProgram(romPath)
	if err != nil {
		return err
	}

	var buzzer cpu.Buzzer = audio.Silent{}
	if !*mute {
		b, err := audio.NewBeeper(0, s.BeepHz, s.Volume)
		if err != nil {
			logger.Warn("Audio unavailable", log.Err(err))
		} else {
			defer b.Close()
			buzzer = b
		}
	}

	game, err := newGame(s, program, romPath, buzzer, logger)
	if err != nil {
		return err
	}

	ebiten.SetWindowSize(cpu.DisplayWidth*s.Scale, cpu.DisplayHeight*s.Scale)
	ebiten.SetWindowTitle("gochip8 - " + romPath)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowClosingHandled(true)

	if err := ebiten.RunGame(game); err != nil && !errors.Is(err, ebiten.Termination) {
		return errors.Wrap(err, "running window")
	}
	return game.halted
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gochip8: %v\n", err)
		os.Exit(1)
	}
}
