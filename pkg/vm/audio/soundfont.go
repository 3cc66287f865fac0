// Package audio provides the tone collaborator for the CHIP-8 virtual machine.
// This file implements a SoundFont voice rendered with go-meltysynth.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/sinshu/go-meltysynth/meltysynth"
	"github.com/zurustar/chip-et/pkg/fileutil"
)

var (
	// ErrNoSoundFont is returned when a SoundFont voice is requested without a file.
	ErrNoSoundFont = errors.New("no SoundFont file configured")

	// ErrSoundFontNotFound is returned when the SoundFont file cannot be found.
	ErrSoundFontNotFound = errors.New("SoundFont file not found")
)

// Default voice: General MIDI program 80 (Lead 1, square) at A4.
const (
	DefaultProgram  = 80
	DefaultKey      = 69
	defaultVelocity = 100
	voiceChannel    = 0
)

// ReadSoundFontFS reads a SoundFont file using the FileSystem interface.
// A nil fs reads from the OS file system.
func ReadSoundFontFS(fs fileutil.FileSystem, path string) ([]byte, error) {
	if path == "" {
		return nil, ErrNoSoundFont
	}
	if fs == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", ErrSoundFontNotFound, path)
			}
			return nil, fmt.Errorf("failed to read SoundFont file: %w", err)
		}
		return data, nil
	}

	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSoundFontNotFound, path)
	}
	return data, nil
}

// LoadSoundFontFS loads and parses a SoundFont file using the FileSystem interface.
func LoadSoundFontFS(fs fileutil.FileSystem, path string) (*meltysynth.SoundFont, error) {
	data, err := ReadSoundFontFS(fs, path)
	if err != nil {
		return nil, err
	}

	soundFont, err := meltysynth.NewSoundFont(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SoundFont: %w", err)
	}

	return soundFont, nil
}

// SoundFontVoice implements Stream by holding one note on a meltysynth
// synthesizer while active. The release tail keeps rendering after the note
// is turned off, so the beep ends the way the instrument does.
type SoundFontVoice struct {
	synth *meltysynth.Synthesizer
	key   int32

	active bool
	left   []float32
	right  []float32
	mu     sync.Mutex
}

// NewSoundFontVoice creates a voice playing key with the given GM program.
func NewSoundFontVoice(soundFont *meltysynth.SoundFont, program, key int32) (*SoundFontVoice, error) {
	settings := meltysynth.NewSynthesizerSettings(SampleRate)
	synth, err := meltysynth.NewSynthesizer(soundFont, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesizer: %w", err)
	}
	// Program Change
	synth.ProcessMidiMessage(voiceChannel, 0xC0, program, 0)

	return &SoundFontVoice{
		synth: synth,
		key:   key,
	}, nil
}

// SetActive starts or releases the note.
func (v *SoundFontVoice) SetActive(active bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if active == v.active {
		return
	}
	if active {
		v.synth.NoteOn(voiceChannel, v.key, defaultVelocity)
	} else {
		v.synth.NoteOff(voiceChannel, v.key)
	}
	v.active = active
}

// Active reports whether the note is held.
func (v *SoundFontVoice) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

// Read implements io.Reader. It renders samples from the synthesizer and
// converts them to int16 stereo.
func (v *SoundFontVoice) Read(p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}

	if cap(v.left) < frames {
		v.left = make([]float32, frames)
		v.right = make([]float32, frames)
	}
	left, right := v.left[:frames], v.right[:frames]
	v.synth.Render(left, right)

	for i := 0; i < frames; i++ {
		l := int16(clamp(left[i], -1, 1) * 32767)
		r := int16(clamp(right[i], -1, 1) * 32767)
		binary.LittleEndian.PutUint16(p[i*bytesPerFrame:], uint16(l))
		binary.LittleEndian.PutUint16(p[i*bytesPerFrame+2:], uint16(r))
	}
	return frames * bytesPerFrame, nil
}
