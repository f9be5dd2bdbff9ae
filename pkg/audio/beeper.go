// Package audio plays the sound timer tone.
package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/pkg/errors"
)

// DefaultSampleRate is used when NewBeeper is given zero.
const DefaultSampleRate = 44100

// SquareWave is a mono float32 little-endian square wave source that outputs
// silence while switched off.
type SquareWave struct {
	on         atomic.Bool
	freq       float64
	volume     float32
	sampleRate float64
	phase      float64
}

// NewSquareWave returns a switched off generator.
func NewSquareWave(sampleRate int, freq, volume float64) *SquareWave {
	return &SquareWave{
		freq:       freq,
		volume:     float32(volume),
		sampleRate: float64(sampleRate),
	}
}

// SetSounding switches the tone on or off. It is safe to call while the
// audio driver is reading.
func (w *SquareWave) SetSounding(on bool) {
	w.on.Store(on)
}

// Read fills p with whole samples and keeps the phase across calls.
func (w *SquareWave) Read(p []byte) (int, error) {
	n := len(p) / 4 * 4
	on := w.on.Load()
	step := w.freq / w.sampleRate
	for i := 0; i < n; i += 4 {
		var s float32
		if on {
			s = w.volume
			if w.phase >= 0.5 {
				s = -w.volume
			}
		}
		w.phase += step
		if w.phase >= 1 {
			w.phase -= 1
		}
		binary.LittleEndian.PutUint32(p[i:], math.Float32bits(s))
	}
	return n, nil
}

// Beeper plays a SquareWave on the default audio device.
type Beeper struct {
	wave   *SquareWave
	player *oto.Player
	mutex  sync.Mutex
}

// NewBeeper opens the audio device. Only one beeper may exist per process
// since the driver allows a single context.
func NewBeeper(sampleRate int, freq, volume float64) (*Beeper, error) {
	if sampleRate == 0 {
		sampleRate = DefaultSampleRate
	}
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatFloat32LE,
		BufferSize:   40 * time.Millisecond,
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening audio device")
	}
	<-ready

	b := &Beeper{wave: NewSquareWave(sampleRate, freq, volume)}
	b.player = ctx.NewPlayer(b.wave)
	b.player.Play()
	return b, nil
}

func (b *Beeper) SetSounding(on bool) {
	b.wave.SetSounding(on)
}

// Close stops playback.
func (b *Beeper) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.player == nil {
		return nil
	}
	err := b.player.Close()
	b.player = nil
	return errors.Wrap(err, "closing audio player")
}

// Silent is a buzzer for hosts without audio.
type Silent struct{}

func (Silent) SetSounding(bool) {}
