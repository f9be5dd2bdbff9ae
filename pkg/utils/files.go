package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"gochip8/pkg/asm"
)

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", errors.Wrapf(err, "resolving %s", relPath)
	}

	// Get the directory containing the file
	parentDir = filepath.Dir(fullPath)

	return fullPath, parentDir, nil
}

// IsSource reports whether path names assembler source rather than a ROM.
func IsSource(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".asm", ".s", ".src":
		return true
	}
	return false
}

// ReadProgram loads a program image from path. Assembler source is assembled
// first; anything else is taken as a raw ROM.
func ReadProgram(path string) ([]byte, error) {
	fullPath, _, err := GetPathInfo(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading program")
	}
	if !IsSource(fullPath) {
		return data, nil
	}

	code, _, err := asm.Assemble(string(data))
	if err != nil {
		return nil, errors.Wrapf(err, "assembling %s", filepath.Base(fullPath))
	}
	return code, nil
}

// ScreenshotPath returns a timestamped PNG path in dir named after the ROM.
func ScreenshotPath(dir, romPath string, now time.Time) string {
	base := strings.TrimSuffix(filepath.Base(romPath), filepath.Ext(romPath))
	name := fmt.Sprintf("%s-%s.png", base, now.Format("20060102-150405"))
	return filepath.Join(dir, name)
}
