// Package monitor is a terminal front-end for a running CHIP-8 program.
// It shows the display, the registers and the log side by side and lets
// the user pause, single-step and reload from the keyboard.
package monitor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jroimartin/gocui"
	"github.com/pkg/errors"
	"github.com/zurustar/chip-et/pkg/engine"
	"github.com/zurustar/chip-et/pkg/logger"
	"github.com/zurustar/chip-et/pkg/vm"
)

// View names.
const (
	ViewScreen    = "screen"
	ViewRegisters = "registers"
	ViewStatus    = "status"
)

// ScreenStyle colours the display. gocui parses only the basic SGR codes.
const ScreenStyle = "green"

// Beeper receives the sound timer once per frame.
type Beeper interface {
	Update(soundTimer uint8)
}

// Monitor drives an engine.Runner from a gocui screen.
type Monitor struct {
	runner *engine.Runner
	beeper Beeper
	latch  *KeyLatch
	status *StatusWriter
	log    *slog.Logger

	mu     sync.Mutex
	last   time.Time
	prev   Snapshot
	screen string
	drawn  bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Monitor) {
		m.log = log
	}
}

// WithBeeper plays the buzzer while the sound timer runs.
func WithBeeper(b Beeper) Option {
	return func(m *Monitor) {
		m.beeper = b
	}
}

// WithLatch changes how long a typed key stays held.
func WithLatch(hold time.Duration) Option {
	return func(m *Monitor) {
		m.latch = NewKeyLatch(hold)
	}
}

// WithStatusWriter shares a writer that was handed to the logger before the
// monitor was created.
func WithStatusWriter(w *StatusWriter) Option {
	return func(m *Monitor) {
		m.status = w
	}
}

// New creates a monitor for runner. The terminal is not touched until Run.
func New(runner *engine.Runner, opts ...Option) *Monitor {
	m := &Monitor{
		runner: runner,
		latch:  NewKeyLatch(DefaultLatch),
		status: NewStatusWriter(os.Stderr),
		log:    logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StatusWriter is where log output should go while the monitor owns the
// terminal.
func (m *Monitor) StatusWriter() *StatusWriter {
	return m.status
}

// Run takes over the terminal until the user quits, ctx is done or timeout
// expires. A timeout of zero means no limit.
func (m *Monitor) Run(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return errors.Wrap(err, "gocui.NewGui() failed")
	}
	defer g.Close()

	g.SetManagerFunc(m.layout)
	if err := m.bind(g); err != nil {
		return err
	}
	m.status.attach(g)

	done := make(chan struct{})

	m.mu.Lock()
	m.last = time.Now()
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(time.Second / engine.FrameRate)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				g.Update(func(*gocui.Gui) error { return gocui.ErrQuit })
				return
			case now := <-ticker.C:
				g.Update(func(g *gocui.Gui) error { return m.redraw(g, now) })
			}
		}
	}()

	err = g.MainLoop()
	m.shutdown(done)
	if err != nil && err != gocui.ErrQuit {
		return errors.Wrap(err, "gocui main loop failed")
	}
	if ctx.Err() == context.DeadlineExceeded {
		m.log.Info("Monitor timed out", "timeout", timeout)
	}
	return nil
}

// shutdown stops the ticker and routes further log output to the fallback
// writer. Nothing drains g.Update once the main loop has returned.
func (m *Monitor) shutdown(done chan struct{}) {
	close(done)
	m.status.detach()
	if m.beeper != nil {
		m.beeper.Update(0)
	}
}

func (m *Monitor) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()
	// 64 columns and 16 half-block rows plus the frame
	screenW, screenH := vm.DisplayWidth+1, vm.DisplayHeight/2+1

	if v, err := g.SetView(ViewScreen, 0, 0, screenW, screenH); err != nil {
		if err != gocui.ErrUnknownView {
			return errors.Wrap(err, "screen view")
		}
		v.Title = "chip-8"
	}
	if v, err := g.SetView(ViewRegisters, screenW+1, 0, max(maxX-1, screenW+30), screenH); err != nil {
		if err != gocui.ErrUnknownView {
			return errors.Wrap(err, "registers view")
		}
		v.Title = "registers"
	}
	if v, err := g.SetView(ViewStatus, 0, screenH+1, max(maxX-1, screenW), max(maxY-1, screenH+3)); err != nil {
		if err != gocui.ErrUnknownView {
			return errors.Wrap(err, "status view")
		}
		v.Title = "log"
		v.Autoscroll = true
		v.Wrap = true
		m.status.flush(v)
	}
	return nil
}

func (m *Monitor) bind(g *gocui.Gui) error {
	for _, ch := range "0123456789abcdefABCDEF" {
		k, _ := runeKey(ch)
		if err := g.SetKeybinding("", ch, gocui.ModNone, m.pressHandler(k)); err != nil {
			return errors.Wrap(err, "keybinding failed")
		}
	}

	bindings := []struct {
		key     interface{}
		handler func(*gocui.Gui, *gocui.View) error
	}{
		{gocui.KeySpace, m.togglePause},
		{'n', m.step},
		{gocui.KeyF1, m.reload},
		{'.', m.reload},
		{gocui.KeyCtrlC, quit},
		{'q', quit},
	}
	for _, b := range bindings {
		if err := g.SetKeybinding("", b.key, gocui.ModNone, b.handler); err != nil {
			return errors.Wrap(err, "keybinding failed")
		}
	}
	return nil
}

func quit(*gocui.Gui, *gocui.View) error {
	return gocui.ErrQuit
}

func (m *Monitor) pressHandler(k uint8) func(*gocui.Gui, *gocui.View) error {
	return func(*gocui.Gui, *gocui.View) error {
		m.latch.Press(k, time.Now())
		return nil
	}
}

func (m *Monitor) togglePause(g *gocui.Gui, _ *gocui.View) error {
	paused := m.runner.TogglePause()
	m.log.Debug("Pause toggled", "paused", paused)
	return m.redraw(g, time.Now())
}

func (m *Monitor) step(g *gocui.Gui, _ *gocui.View) error {
	if !m.runner.Paused() {
		m.runner.SetPaused(true)
	}
	if err := m.runner.StepOnce(); err != nil {
		m.log.Debug("Single step failed", "error", err)
	}
	return m.redraw(g, time.Now())
}

func (m *Monitor) reload(g *gocui.Gui, _ *gocui.View) error {
	if err := m.runner.Reload(); err != nil {
		m.log.Error("Reload failed", "error", err)
		return nil
	}
	m.log.Info("ROM reloaded")
	m.mu.Lock()
	m.drawn = false
	m.mu.Unlock()
	return m.redraw(g, time.Now())
}

// redraw advances the program and repaints the screen and register views.
func (m *Monitor) redraw(g *gocui.Gui, now time.Time) error {
	screen, regs := m.Tick(now)

	if v, err := g.View(ViewScreen); err == nil {
		v.Clear()
		fmt.Fprint(v, screen)
	}
	if v, err := g.View(ViewRegisters); err == nil {
		v.Clear()
		fmt.Fprint(v, regs)
	}
	return nil
}

// Tick runs the program for the time since the previous tick and returns
// the display and register text.
func (m *Monitor) Tick(now time.Time) (screen, regs string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := now.Sub(m.last)
	if m.last.IsZero() || elapsed < 0 {
		elapsed = 0
	}
	m.last = now

	m.runner.SetKeys(m.latch.Snapshot(now))
	// the runner logs the fatal error itself
	_, _ = m.runner.Frame(elapsed)
	halted := m.runner.Halted()

	var cur Snapshot
	m.runner.View(func(machine *vm.VM) {
		fb := machine.Framebuffer()
		if !m.drawn || fb.Dirty() {
			m.screen = engine.RenderText(fb, ScreenStyle)
			fb.ClearDirty()
			m.drawn = true
		}
		cur = TakeSnapshot(machine)
	})
	cur.Status = m.statusLine(halted)

	if m.beeper != nil {
		if m.runner.Paused() || halted != nil {
			m.beeper.Update(0)
		} else {
			m.beeper.Update(cur.State.SoundTimer)
		}
	}

	regs = FormatRegisters(m.prev, cur)
	m.prev = cur
	return m.screen, regs
}

func (m *Monitor) statusLine(halted error) string {
	switch {
	case halted != nil:
		return "HALTED  " + halted.Error() + "  (F1: reload)"
	case m.runner.Paused():
		return "PAUSED  (n: step, space: run)"
	default:
		return fmt.Sprintf("RUNNING %d cps  warnings %d", m.runner.CPS(), m.runner.NonFatalErrors())
	}
}

// StatusWriter feeds the log view. Output written before the view exists is
// held back, and output after the monitor exits goes to a fallback writer.
type StatusWriter struct {
	mu       sync.Mutex
	g        *gocui.Gui
	pending  []byte
	fallback io.Writer
}

// NewStatusWriter creates a writer that uses fallback when no monitor runs.
func NewStatusWriter(fallback io.Writer) *StatusWriter {
	return &StatusWriter{fallback: fallback}
}

func (w *StatusWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.g == nil {
		if w.fallback != nil {
			return w.fallback.Write(p)
		}
		return len(p), nil
	}
	line := append([]byte(nil), p...)
	w.g.Update(func(g *gocui.Gui) error {
		if v, err := g.View(ViewStatus); err == nil {
			v.Write(line)
			return nil
		}
		w.mu.Lock()
		w.pending = append(w.pending, line...)
		w.mu.Unlock()
		return nil
	})
	return len(p), nil
}

func (w *StatusWriter) attach(g *gocui.Gui) {
	w.mu.Lock()
	w.g = g
	w.mu.Unlock()
}

func (w *StatusWriter) detach() {
	w.mu.Lock()
	w.g = nil
	w.pending = nil
	w.mu.Unlock()
}

func (w *StatusWriter) flush(v io.Writer) {
	w.mu.Lock()
	pending := w.pending
	w.pending = nil
	w.mu.Unlock()
	if len(pending) > 0 {
		v.Write(pending)
	}
}
