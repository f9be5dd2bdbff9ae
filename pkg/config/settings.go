package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"

	"gochip8/pkg/clock"
	"gochip8/pkg/cpu"
)

const (
	vendorName = "gochip8"
	// FileName is the settings file looked up in the config folders.
	FileName = "settings.json"
)

// Settings are the user tunable emulator options. Zero values in a settings
// file keep the defaults.
type Settings struct {
	ClockHz int     `json:"clock_hz"`
	TimerHz int     `json:"timer_hz"`
	Scale   int     `json:"scale"`
	Strict  bool    `json:"strict"`
	Debug   bool    `json:"debug"`
	Quiet   bool    `json:"quiet"`
	Seed    uint64  `json:"seed"`
	BeepHz  float64 `json:"beep_hz"`
	Volume  float64 `json:"volume"`

	// Keymap maps a hex keypad digit ("0".."F") to a host key name
	// ("X", "1", ...).
	Keymap map[string]string `json:"keymap"`
}

// DefaultKeymap is the usual COSMAC VIP layout on a QWERTY keyboard:
//
//	1 2 3 C    1 2 3 4
//	4 5 6 D    Q W E R
//	7 8 9 E    A S D F
//	A 0 B F    Z X C V
func DefaultKeymap() map[string]string {
	return map[string]string{
		"1": "1", "2": "2", "3": "3", "C": "4",
		"4": "Q", "5": "W", "6": "E", "D": "R",
		"7": "A", "8": "S", "9": "D", "E": "F",
		"A": "Z", "0": "X", "B": "C", "F": "V",
	}
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		ClockHz: clock.DefaultInstructionHz,
		TimerHz: clock.TimerHz,
		Scale:   10,
		BeepHz:  440,
		Volume:  0.25,
		Keymap:  DefaultKeymap(),
	}
}

// Policy returns the interpreter error policy for the settings.
func (s Settings) Policy() cpu.ErrorPolicy {
	if s.Strict {
		return cpu.PolicyStrict
	}
	return cpu.PolicyLenient
}

// Validate checks ranges and the key map.
func (s Settings) Validate() error {
	if s.ClockHz <= 0 || s.ClockHz > 100000 {
		return errors.Errorf("clock_hz %d out of range", s.ClockHz)
	}
	if s.TimerHz <= 0 {
		return errors.Errorf("timer_hz %d out of range", s.TimerHz)
	}
	if s.Scale < 1 || s.Scale > 64 {
		return errors.Errorf("scale %d out of range", s.Scale)
	}
	if s.BeepHz < 20 || s.BeepHz > 20000 {
		return errors.Errorf("beep_hz %g out of range", s.BeepHz)
	}
	if s.Volume < 0 || s.Volume > 1 {
		return errors.Errorf("volume %g out of range", s.Volume)
	}
	_, err := s.Keys()
	return err
}

// Keys resolves the key map to keypad index -> upper-cased host key name.
func (s Settings) Keys() (map[byte]string, error) {
	keys := make(map[byte]string, len(s.Keymap))
	seen := make(map[string]string, len(s.Keymap))
	for digit, name := range s.Keymap {
		n, err := strconv.ParseUint(digit, 16, 4)
		if err != nil {
			return nil, errors.Errorf("keymap: invalid keypad digit %q", digit)
		}
		name = keyName(name)
		if !validKeyName(name) {
			return nil, errors.Errorf("keymap: invalid key name %q for %s", name, digit)
		}
		if other, ok := seen[name]; ok {
			return nil, errors.Errorf("keymap: key %s bound to both %s and %s", name, other, digit)
		}
		seen[name] = digit
		keys[byte(n)] = name
	}
	return keys, nil
}

// validKeyName accepts a single letter or digit.
func validKeyName(name string) bool {
	if len(name) != 1 {
		return false
	}
	r := rune(name[0])
	return unicode.IsUpper(r) || unicode.IsDigit(r)
}

// merge copies the non-zero fields of o over s.
func (s *Settings) merge(o Settings) {
	if o.ClockHz != 0 {
		s.ClockHz = o.ClockHz
	}
	if o.TimerHz != 0 {
		s.TimerHz = o.TimerHz
	}
	if o.Scale != 0 {
		s.Scale = o.Scale
	}
	if o.BeepHz != 0 {
		s.BeepHz = o.BeepHz
	}
	if o.Volume != 0 {
		s.Volume = o.Volume
	}
	if o.Seed != 0 {
		s.Seed = o.Seed
	}
	s.Strict = s.Strict || o.Strict
	s.Debug = s.Debug || o.Debug
	s.Quiet = s.Quiet || o.Quiet
	s.mergeKeymap(o.Keymap)
}

// mergeKeymap applies a partial key map. A host key taken over by the file
// is removed from the digit that held it before, leaving that digit unbound
// unless the file rebinds it too.
func (s *Settings) mergeKeymap(km map[string]string) {
	if len(km) == 0 {
		return
	}
	rebound := make(map[string]bool, len(km))
	for _, name := range km {
		rebound[keyName(name)] = true
	}
	for digit, name := range s.Keymap {
		if rebound[keyName(name)] {
			delete(s.Keymap, digit)
		}
	}
	for digit, name := range km {
		s.Keymap[strings.ToUpper(digit)] = name
	}
}

func keyName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Parse decodes a settings file over the defaults.
func Parse(data []byte) (Settings, error) {
	s := Default()
	var file Settings
	if err := json.Unmarshal(data, &file); err != nil {
		return s, errors.Wrap(err, "decoding settings")
	}
	s.merge(file)
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// LoadFile reads settings from path.
func LoadFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Default(), errors.Wrap(err, "reading settings")
	}
	return Parse(data)
}

// Load searches localDir (when set), then the user and system config folders
// for the settings file. The defaults are returned when none exists. The
// returned path is empty in that case.
func Load(localDir string) (Settings, string, error) {
	dirs := configdir.New(vendorName, "")
	dirs.LocalPath = localDir

	folder := dirs.QueryFolderContainsFile(FileName)
	if folder == nil {
		return Default(), "", nil
	}
	data, err := folder.ReadFile(FileName)
	if err != nil {
		return Default(), folder.Path, errors.Wrap(err, "reading settings")
	}
	s, err := Parse(data)
	return s, folder.Path, err
}

// Resolve reads path when it is set and searches the config folders
// otherwise. Every command uses it so they agree on where settings live.
func Resolve(path string) (Settings, error) {
	if path != "" {
		return LoadFile(path)
	}
	s, _, err := Load("")
	return s, err
}

// Save writes the settings to localDir when set, otherwise to the per-user
// config folder, and returns the folder path.
func Save(localDir string, s Settings) (string, error) {
	dirs := configdir.New(vendorName, "")
	dirs.LocalPath = localDir
	where := configdir.Global
	if localDir != "" {
		where = configdir.Local
	}
	folders := dirs.QueryFolders(where)
	if len(folders) == 0 {
		return "", errors.New("no config folder")
	}
	data, err := s.encode()
	if err != nil {
		return "", err
	}
	if err := folders[0].WriteFile(FileName, data); err != nil {
		return "", errors.Wrap(err, "writing settings")
	}
	return folders[0].Path, nil
}

// SaveFile writes the settings to path.
func SaveFile(path string, s Settings) error {
	data, err := s.encode()
	if err != nil {
		return err
	}
	return errors.Wrap(os.WriteFile(path, data, 0o644), "writing settings")
}

func (s Settings) encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding settings")
	}
	return append(data, '\n'), nil
}

// ScreenshotDir returns the per-user cache folder used for screenshots,
// creating it if needed.
func ScreenshotDir() (string, error) {
	cache := configdir.New(vendorName, "screenshots").QueryCacheFolder()
	if err := cache.MkdirAll(); err != nil {
		return "", errors.Wrap(err, "creating screenshot folder")
	}
	return cache.Path, nil
}
