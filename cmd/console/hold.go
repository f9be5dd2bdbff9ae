package main

import (
	"sync"
	"time"
	"unicode"

	"gochip8/pkg/config"
	"gochip8/pkg/cpu"
)

// keyHold turns key press events into held keys. Terminals only report
// presses, so a key counts as down for a short window after each press (and
// auto-repeat keeps it down while held).
type keyHold struct {
	window time.Duration
	runes  map[rune]byte

	mutex   sync.Mutex
	pressed [cpu.NumKeys]time.Time
}

func newKeyHold(s config.Settings, window time.Duration) (*keyHold, error) {
	names, err := s.Keys()
	if err != nil {
		return nil, err
	}
	runes := make(map[rune]byte, len(names))
	for n, name := range names {
		runes[unicode.ToLower(rune(name[0]))] = n
	}
	return &keyHold{window: window, runes: runes}, nil
}

// press records a key event. Runes not in the key map are ignored.
func (h *keyHold) press(ch rune, now time.Time) bool {
	n, ok := h.runes[unicode.ToLower(ch)]
	if !ok {
		return false
	}
	h.mutex.Lock()
	h.pressed[n] = now
	h.mutex.Unlock()
	return true
}

// snapshot returns the keys pressed within the hold window before now.
func (h *keyHold) snapshot(now time.Time) cpu.Keypad {
	var k cpu.Keypad
	h.mutex.Lock()
	defer h.mutex.Unlock()
	for n, at := range h.pressed {
		k[n] = !at.IsZero() && now.Sub(at) < h.window
	}
	return k
}
