package main

import (
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/pkg/errors"

	"gochip8/pkg/config"
)

// keyNames maps the key names accepted in the settings key map to ebiten keys.
var keyNames = map[string]ebiten.Key{
	"0": ebiten.KeyDigit0, "1": ebiten.KeyDigit1, "2": ebiten.KeyDigit2,
	"3": ebiten.KeyDigit3, "4": ebiten.KeyDigit4, "5": ebiten.KeyDigit5,
	"6": ebiten.KeyDigit6, "7": ebiten.KeyDigit7, "8": ebiten.KeyDigit8,
	"9": ebiten.KeyDigit9,
	"A": ebiten.KeyA, "B": ebiten.KeyB, "C": ebiten.KeyC, "D": ebiten.KeyD,
	"E": ebiten.KeyE, "F": ebiten.KeyF, "G": ebiten.KeyG, "H": ebiten.KeyH,
	"I": ebiten.KeyI, "J": ebiten.KeyJ, "K": ebiten.KeyK, "L": ebiten.KeyL,
	"M": ebiten.KeyM, "N": ebiten.KeyN, "O": ebiten.KeyO, "P": ebiten.KeyP,
	"Q": ebiten.KeyQ, "R": ebiten.KeyR, "S": ebiten.KeyS, "T": ebiten.KeyT,
	"U": ebiten.KeyU, "V": ebiten.KeyV, "W": ebiten.KeyW, "X": ebiten.KeyX,
	"Y": ebiten.KeyY, "Z": ebiten.KeyZ,
}

// reservedKeys drive the emulator itself and cannot be mapped to the keypad.
var reservedKeys = map[ebiten.Key]string{
	ebiten.KeyP: "pause",
}

// resolveKeys turns the settings key map into keypad index -> ebiten key.
func resolveKeys(s config.Settings) (map[byte]ebiten.Key, error) {
	names, err := s.Keys()
	if err != nil {
		return nil, err
	}
	keys := make(map[byte]ebiten.Key, len(names))
	for n, name := range names {
		k, ok := keyNames[name]
		if !ok {
			return nil, errors.Errorf("keymap: unknown key %s", name)
		}
		if use, reserved := reservedKeys[k]; reserved {
			return nil, errors.Errorf("keymap: key %s is reserved for %s", name, use)
		}
		keys[n] = k
	}
	return keys, nil
}
