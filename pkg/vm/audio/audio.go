// Package audio provides the tone collaborator for the CHIP-8 virtual machine.
// This file implements the Beeper, which owns the Ebitengine audio context and
// drives one Stream from the machine's sound timer.
package audio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/zurustar/chip-et/pkg/logger"
)

// Gate decides whether a Stream should sound, from the sound timer and the
// mute switch. It has no Ebitengine dependency and is shared by Beeper and
// tests.
type Gate struct {
	stream Stream
	muted  bool
	mu     sync.Mutex
}

// NewGate creates a Gate over stream.
func NewGate(stream Stream) *Gate {
	return &Gate{stream: stream}
}

// Update is called once per frame with the current sound timer.
// The tone plays while the timer is nonzero and the gate is not muted.
func (g *Gate) Update(soundTimer uint8) {
	g.mu.Lock()
	defer g.mu.Unlock()

	on := soundTimer > 0 && !g.muted
	if on != g.stream.Active() {
		g.stream.SetActive(on)
	}
}

// SetMuted silences the stream regardless of the sound timer.
// Headless runs mute the beeper so no sound device is needed.
func (g *Gate) SetMuted(muted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.muted = muted
	if muted && g.stream.Active() {
		g.stream.SetActive(false)
	}
}

// IsMuted returns whether the gate is muted.
func (g *Gate) IsMuted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.muted
}

// Beeper plays a Stream through a looping Ebitengine audio player.
type Beeper struct {
	*Gate

	audioCtx *audio.Context
	player   *audio.Player
	log      *slog.Logger
}

// BeeperOption is a functional option for configuring the Beeper.
type BeeperOption func(*Beeper)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) BeeperOption {
	return func(b *Beeper) {
		b.log = log
	}
}

// WithContext uses an existing audio context instead of the process-wide one.
func WithContext(ctx *audio.Context) BeeperOption {
	return func(b *Beeper) {
		b.audioCtx = ctx
	}
}

// NewBeeper creates a Beeper. The player starts immediately and renders
// silence until Update turns the stream on.
func NewBeeper(stream Stream, opts ...BeeperOption) (*Beeper, error) {
	b := &Beeper{
		Gate: NewGate(stream),
		log:  logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.audioCtx == nil {
		// Ebitengine allows only one audio context per process
		b.audioCtx = audio.CurrentContext()
		if b.audioCtx == nil {
			b.audioCtx = audio.NewContext(SampleRate)
		}
	}

	player, err := b.audioCtx.NewPlayer(stream)
	if err != nil {
		return nil, err
	}
	// Short buffer so the tone follows the 60 Hz timer closely.
	player.SetBufferSize(50 * time.Millisecond)
	player.Play()
	b.player = player

	b.log.Debug("Beeper started", "sample_rate", SampleRate)
	return b, nil
}

// Close stops playback and releases the player.
func (b *Beeper) Close() error {
	b.SetMuted(true)
	if b.player == nil {
		return nil
	}
	err := b.player.Close()
	b.player = nil
	return err
}
