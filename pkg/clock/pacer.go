// Package clock paces a machine against wall-clock time, running
// instructions and timer ticks at independent rates.
package clock

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultInstructionHz is a typical instruction rate for CHIP-8 programs.
	DefaultInstructionHz = 700
	// TimerHz is the fixed rate of the delay and sound timers.
	TimerHz = 60

	// MaxCatchUp bounds the time a single Advance accounts for, so a stalled
	// host does not burst thousands of instructions when it resumes.
	MaxCatchUp = 250 * time.Millisecond
)

// Pacer converts elapsed time into instruction steps and timer ticks. Remainders
// carry over between calls so neither rate drifts.
type Pacer struct {
	instrHz int64
	timerHz int64

	instrAcc int64 // nanoseconds scaled by instrHz
	timerAcc int64 // nanoseconds scaled by timerHz
}

// NewPacer returns a pacer for the given instruction and timer rates.
func NewPacer(instrHz, timerHz int) (*Pacer, error) {
	if instrHz <= 0 {
		return nil, errors.Errorf("invalid instruction rate %d", instrHz)
	}
	if timerHz <= 0 {
		return nil, errors.Errorf("invalid timer rate %d", timerHz)
	}
	return &Pacer{instrHz: int64(instrHz), timerHz: int64(timerHz)}, nil
}

// Advance accounts for elapsed wall time and returns how many instructions
// and timer ticks are now due.
func (p *Pacer) Advance(elapsed time.Duration) (steps, ticks int) {
	if elapsed <= 0 {
		return 0, 0
	}
	if elapsed > MaxCatchUp {
		elapsed = MaxCatchUp
	}
	ns := elapsed.Nanoseconds()
	sec := int64(time.Second)

	p.instrAcc += ns * p.instrHz
	steps = int(p.instrAcc / sec)
	p.instrAcc %= sec

	p.timerAcc += ns * p.timerHz
	ticks = int(p.timerAcc / sec)
	p.timerAcc %= sec
	return steps, ticks
}

// Reset drops any accumulated remainder.
func (p *Pacer) Reset() {
	p.instrAcc = 0
	p.timerAcc = 0
}

// FrameInterval is the period of the timer rate.
func (p *Pacer) FrameInterval() time.Duration {
	return time.Duration(int64(time.Second) / p.timerHz)
}

// Machine is what the pacer drives.
type Machine interface {
	Step() error
	TickTimers()
}

// Hooks are optional callbacks run once per host frame.
type Hooks struct {
	// BeforeFrame runs before any instruction of the frame, typically to
	// poll input.
	BeforeFrame func()
	// AfterFrame runs after the frame's instructions and ticks, typically to
	// present the display. A returned error stops Run.
	AfterFrame func() error
}

// Run drives m at the pacer's rates until ctx is cancelled or m returns an
// error. Cancellation returns nil.
func (p *Pacer) Run(ctx context.Context, m Machine, hooks Hooks) error {
	ticker := time.NewTicker(p.FrameInterval())
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			if err := p.Frame(m, hooks, elapsed); err != nil {
				return err
			}
		}
	}
}

// Frame runs one host frame worth of instructions and ticks for elapsed
// time, calling the hooks around them. Hosts that own their own loop call
// it directly.
func (p *Pacer) Frame(m Machine, hooks Hooks, elapsed time.Duration) error {
	if hooks.BeforeFrame != nil {
		hooks.BeforeFrame()
	}

	steps, ticks := p.Advance(elapsed)
	for i := 0; i < steps; i++ {
		if err := m.Step(); err != nil {
			return err
		}
	}
	for i := 0; i < ticks; i++ {
		m.TickTimers()
	}

	if hooks.AfterFrame != nil {
		return hooks.AfterFrame()
	}
	return nil
}
