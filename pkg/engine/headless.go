package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/zurustar/chip-et/pkg/vm"
)

// FrameRate is the refresh rate of the headless loop, matching a 60 Hz display.
const FrameRate = 60

// FrameStyle is the ansi style for frame dumps on a terminal.
const FrameStyle = "green+h"

// HeadlessOptions configures RunHeadless.
type HeadlessOptions struct {
	// Timeout stops the loop after the given duration. Zero means no limit.
	Timeout time.Duration

	// ExitOnIdle stops the loop once the program parks in a self-jump.
	ExitOnIdle bool

	// FrameOutput receives a text rendering of every changed frame. Nil disables dumps.
	FrameOutput io.Writer
}

// RunHeadless drives the runner without a window until ctx is cancelled,
// the timeout expires, the program halts or (with ExitOnIdle) parks.
// Cancellation and timeout are a normal end and return nil; a fatal VM
// error is returned wrapped.
func RunHeadless(ctx context.Context, r *Runner, opts HeadlessOptions) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	style := ""
	if f, ok := opts.FrameOutput.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		style = FrameStyle
	}

	r.log.Info("Headless run started", "timeout", opts.Timeout, "exit_on_idle", opts.ExitOnIdle, "cps", r.CPS())

	ticker := time.NewTicker(time.Second / FrameRate)
	defer ticker.Stop()

	last := time.Now()
	frames := 0
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				r.log.Info("Headless run timed out", "frames", frames)
			} else {
				r.log.Info("Headless run cancelled", "frames", frames)
			}
			return nil

		case now := <-ticker.C:
			elapsed := now.Sub(last)
			last = now
			frames++

			if _, err := r.Frame(elapsed); err != nil {
				if opts.FrameOutput != nil {
					_ = dumpFrame(r, opts.FrameOutput, style)
				}
				return fmt.Errorf("headless run stopped: %w", err)
			}

			if opts.FrameOutput != nil {
				if err := dumpFrame(r, opts.FrameOutput, style); err != nil {
					return err
				}
			}

			if opts.ExitOnIdle && r.IdleLoop() {
				r.log.Info("Program parked in idle loop", "frames", frames)
				return nil
			}
		}
	}
}

// dumpFrame writes the framebuffer if it changed since the last dump.
func dumpFrame(r *Runner, w io.Writer, style string) error {
	var text string
	var cycles uint64
	r.View(func(m *vm.VM) {
		fb := m.Framebuffer()
		if !fb.Dirty() {
			return
		}
		fb.ClearDirty()
		text = RenderText(fb, style)
		cycles = m.Cycles()
	})
	if text == "" {
		return nil
	}
	if _, err := fmt.Fprintf(w, "--- cycle %d ---\n%s", cycles, text); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}
