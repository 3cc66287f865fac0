// Package audio provides the tone collaborator for the CHIP-8 virtual machine.
// The machine only exposes a sound timer; this package turns "timer is nonzero"
// into an audible tone through Ebitengine/audio.
package audio

import (
	"encoding/binary"
	"sync"
)

// SampleRate is the audio sample rate shared by every stream in this package.
const SampleRate = 44100

// DefaultToneFrequency is the pitch of the built-in square wave, in Hz.
const DefaultToneFrequency = 440.0

// bytesPerFrame is 16-bit stereo: two little-endian int16 samples.
const bytesPerFrame = 4

// Stream is a PCM source (16-bit stereo little-endian at SampleRate) that can
// be switched on and off. While inactive it renders silence, never io.EOF.
type Stream interface {
	Read(p []byte) (int, error)
	SetActive(active bool)
	Active() bool
}

// SquareWave implements Stream with a plain 50% duty square wave.
type SquareWave struct {
	freq      float64
	amplitude int16
	phase     float64 // [0, 1)
	active    bool
	mu        sync.Mutex
}

// NewSquareWave creates a square wave at freq Hz. volume is clamped to [0, 1].
func NewSquareWave(freq, volume float64) *SquareWave {
	if freq <= 0 {
		freq = DefaultToneFrequency
	}
	return &SquareWave{
		freq:      freq,
		amplitude: int16(clamp(float32(volume), 0, 1) * 32767 / 4),
	}
}

// SetActive gates the tone.
func (s *SquareWave) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = active
}

// Active reports whether the tone is on.
func (s *SquareWave) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Read implements io.Reader. Only whole frames are written.
func (s *SquareWave) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frames := len(p) / bytesPerFrame
	step := s.freq / SampleRate
	for i := 0; i < frames; i++ {
		var v int16
		if s.active {
			if s.phase < 0.5 {
				v = s.amplitude
			} else {
				v = -s.amplitude
			}
			s.phase += step
			if s.phase >= 1 {
				s.phase -= 1
			}
		}
		binary.LittleEndian.PutUint16(p[i*bytesPerFrame:], uint16(v))
		binary.LittleEndian.PutUint16(p[i*bytesPerFrame+2:], uint16(v))
	}
	return frames * bytesPerFrame, nil
}

// clamp restricts a value to the range [min, max].
func clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
