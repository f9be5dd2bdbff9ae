package audio

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/retroenv/retrogolib/assert"

	"gochip8/pkg/cpu"
)

var (
	_ cpu.Buzzer = (*Beeper)(nil)
	_ cpu.Buzzer = (*SquareWave)(nil)
	_ cpu.Buzzer = Silent{}
)

func samples(t *testing.T, w *SquareWave, n int) []float32 {
	t.Helper()
	buf := make([]byte, n*4)
	read, err := w.Read(buf)
	assert.NoError(t, err)
	assert.Equal(t, n*4, read)

	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}

func TestSquareWaveSilentWhenOff(t *testing.T) {
	w := NewSquareWave(8000, 1000, 0.5)
	for _, s := range samples(t, w, 64) {
		assert.Equal(t, float32(0), s)
	}
}

func TestSquareWavePeriod(t *testing.T) {
	// 1 kHz at 8 kHz sample rate is 4 high then 4 low samples.
	w := NewSquareWave(8000, 1000, 0.5)
	w.SetSounding(true)
	got := samples(t, w, 16)
	want := []float32{0.5, 0.5, 0.5, 0.5, -0.5, -0.5, -0.5, -0.5}
	assert.Equal(t, want, got[:8])
	assert.Equal(t, want, got[8:])

	w.SetSounding(false)
	assert.Equal(t, float32(0), samples(t, w, 1)[0])
}

func TestSquareWavePartialSample(t *testing.T) {
	w := NewSquareWave(8000, 1000, 0.5)
	n, err := w.Read(make([]byte, 7))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
}
