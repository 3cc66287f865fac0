// Package audio provides the tone collaborator for the CHIP-8 virtual machine.
// This file implements a looping beep sample decoded from a WAV file.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/hajimehoshi/ebiten/v2/audio/wav"
	"github.com/zurustar/chip-et/pkg/fileutil"
)

var (
	// ErrWAVFileNotFound is returned when the WAV file cannot be found.
	ErrWAVFileNotFound = errors.New("WAV file not found")

	// ErrWAVInvalidFormat is returned when the WAV file has an invalid format.
	ErrWAVInvalidFormat = errors.New("invalid WAV file format")
)

// SampleLoop implements Stream by repeating a decoded PCM buffer while active.
// Every activation restarts the sample from the beginning.
type SampleLoop struct {
	pcm    []byte
	pos    int
	active bool
	mu     sync.Mutex
}

// NewSampleLoop wraps raw 16-bit stereo PCM at SampleRate.
// Trailing bytes that do not form a whole frame are dropped.
func NewSampleLoop(pcm []byte) *SampleLoop {
	n := len(pcm) - len(pcm)%bytesPerFrame
	return &SampleLoop{pcm: pcm[:n]}
}

// LoadWAVFS decodes a WAV file (PCM 8 or 16 bit, any rate) into a SampleLoop.
// Ebitengine's decoder resamples to SampleRate and converts to 16-bit stereo.
func LoadWAVFS(fs fileutil.FileSystem, path string) (*SampleLoop, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrWAVFileNotFound, path)
	}

	stream, err := wav.DecodeWithSampleRate(SampleRate, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWAVInvalidFormat, err)
	}
	pcm, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWAVInvalidFormat, err)
	}
	if len(pcm) < bytesPerFrame {
		return nil, fmt.Errorf("%w: %s has no samples", ErrWAVInvalidFormat, path)
	}
	return NewSampleLoop(pcm), nil
}

// SetActive gates the sample.
func (s *SampleLoop) SetActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active && !s.active {
		s.pos = 0
	}
	s.active = active
}

// Active reports whether the sample is playing.
func (s *SampleLoop) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Read implements io.Reader.
func (s *SampleLoop) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(p) - len(p)%bytesPerFrame
	if !s.active || len(s.pcm) == 0 {
		clear(p[:n])
		return n, nil
	}
	for off := 0; off < n; {
		c := copy(p[off:n], s.pcm[s.pos:])
		off += c
		s.pos = (s.pos + c) % len(s.pcm)
	}
	return n, nil
}
