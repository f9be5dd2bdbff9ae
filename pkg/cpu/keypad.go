package cpu

// NumKeys is the size of the hex keypad.
const NumKeys = 16

// Keypad is a snapshot of the 16 keys, true meaning held down.
type Keypad [NumKeys]bool

// FirstPressed returns the lowest pressed key.
func (k *Keypad) FirstPressed() (byte, bool) {
	for i, down := range k {
		if down {
			return byte(i), true
		}
	}
	return 0, false
}

// Timers are the delay and sound counters, decremented at 60 Hz.
type Timers struct {
	Delay byte
	Sound byte
}

// Tick decrements both timers that are above zero.
func (t *Timers) Tick() {
	if t.Delay > 0 {
		t.Delay--
	}
	if t.Sound > 0 {
		t.Sound--
	}
}

// SetKeys replaces the keypad snapshot. Hosts call it once per frame before
// stepping.
func (c *CPU) SetKeys(keys Keypad) {
	c.Keys = keys
}

// TickTimers decrements the delay and sound timers. It must be called at a
// fixed 60 Hz independent of the instruction rate.
func (c *CPU) TickTimers() {
	c.Timers.Tick()
}

// Sounding reports whether the buzzer should be on.
func (c *CPU) Sounding() bool {
	return c.Timers.Sound > 0
}
