// Package engine drives a CHIP-8 VM in real time.
// It converts wall-clock time into VM steps, owns pause and halt state, and
// offers a windowless loop for headless runs.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zurustar/chip-et/pkg/logger"
	"github.com/zurustar/chip-et/pkg/opcode"
	"github.com/zurustar/chip-et/pkg/vm"
)

// ErrHalted is returned by Frame and StepOnce once the program hit a fatal error.
var ErrHalted = errors.New("program halted")

// Runner owns a VM together with its ROM, key snapshot and run state.
// All methods are safe for concurrent use.
type Runner struct {
	mu sync.Mutex

	machine *vm.VM
	rom     []byte
	clock   *CycleClock

	keys   [vm.NumKeys]bool
	paused bool
	halted error

	nonFatal uint64
	warned   map[uint32]struct{}

	log *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = log
	}
}

// WithPaused starts the runner paused.
func WithPaused(paused bool) RunnerOption {
	return func(r *Runner) {
		r.paused = paused
	}
}

// NewRunner resets machine with rom and returns a runner at cps steps per second.
func NewRunner(machine *vm.VM, rom []byte, cps int, opts ...RunnerOption) (*Runner, error) {
	clock, err := NewCycleClock(cps)
	if err != nil {
		return nil, err
	}
	if err := machine.Reset(rom); err != nil {
		return nil, fmt.Errorf("failed to load ROM: %w", err)
	}

	r := &Runner{
		machine: machine,
		rom:     append([]byte(nil), rom...),
		clock:   clock,
		warned:  make(map[uint32]struct{}),
		log:     logger.GetLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.log.Info("Runner created", "rom_size", len(rom), "cps", cps)
	return r, nil
}

// Frame advances the machine by the steps due after elapsed time.
// It returns the number of completed steps. A fatal error halts the runner;
// the error is returned once and later calls return ErrHalted wrapped with it.
func (r *Runner) Frame(elapsed time.Duration) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.halted != nil {
		return 0, fmt.Errorf("%w: %w", ErrHalted, r.halted)
	}
	if r.paused {
		return 0, nil
	}

	r.machine.SetKeys(r.keys)
	n := r.clock.Advance(elapsed)
	for i := 0; i < n; i++ {
		if err := r.step(); err != nil {
			return i, err
		}
	}
	return n, nil
}

// StepOnce executes a single instruction, even while paused.
func (r *Runner) StepOnce() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.halted != nil {
		return fmt.Errorf("%w: %w", ErrHalted, r.halted)
	}
	r.machine.SetKeys(r.keys)
	return r.step()
}

// step runs one VM cycle. Callers hold mu.
func (r *Runner) step() error {
	err := r.machine.Step()
	if err == nil {
		return nil
	}

	var rtErr *vm.RuntimeError
	if errors.As(err, &rtErr) && !rtErr.IsFatal() {
		r.nonFatal++
		key := uint32(rtErr.PC)<<16 | uint32(rtErr.Word)
		if _, seen := r.warned[key]; !seen {
			r.warned[key] = struct{}{}
			r.log.Warn("Non-fatal error, continuing", "error", err)
		}
		return nil
	}

	r.halted = err
	r.log.Error("Program halted", "error", err, "cycles", r.machine.Cycles())
	return err
}

// SetKey sets the pressed state of one key. The VM sees it on the next step.
func (r *Runner) SetKey(k uint8, pressed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if int(k) < vm.NumKeys {
		r.keys[k] = pressed
	}
}

// SetKeys replaces the key snapshot.
func (r *Runner) SetKeys(keys [vm.NumKeys]bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = keys
}

// Reload resets the machine with the current ROM and clears the halt state.
func (r *Runner) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load(r.rom)
}

// Load replaces the ROM and resets the machine.
func (r *Runner) Load(rom []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.load(rom); err != nil {
		return err
	}
	r.rom = append([]byte(nil), rom...)
	return nil
}

func (r *Runner) load(rom []byte) error {
	if err := r.machine.Reset(rom); err != nil {
		return fmt.Errorf("failed to load ROM: %w", err)
	}
	r.halted = nil
	r.nonFatal = 0
	clear(r.warned)
	r.clock.Reset()
	r.log.Info("ROM reloaded", "rom_size", len(rom))
	return nil
}

// Halted returns the fatal error that stopped the program, or nil.
func (r *Runner) Halted() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.halted
}

// Paused reports whether Frame is suspended.
func (r *Runner) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// SetPaused suspends or resumes Frame.
func (r *Runner) SetPaused(paused bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paused != paused {
		r.clock.Reset()
	}
	r.paused = paused
}

// TogglePause flips the pause state and returns the new value.
func (r *Runner) TogglePause() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = !r.paused
	r.clock.Reset()
	return r.paused
}

// IdleLoop reports whether the instruction at PC jumps to itself.
// Programs commonly park there when they are done.
func (r *Runner) IdleLoop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	pc := r.machine.PC()
	b := r.machine.Memory(pc, 2)
	if len(b) < 2 {
		return false
	}
	in := opcode.Decode(uint16(b[0])<<8 | uint16(b[1]))
	return in.Kind == opcode.Jump && in.NNN == pc
}

// NonFatalErrors returns how many non-fatal errors occurred since the last load.
func (r *Runner) NonFatalErrors() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nonFatal
}

// CPS returns the configured cycle rate.
func (r *Runner) CPS() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock.CPS()
}

// SetCPS changes the cycle rate.
func (r *Runner) SetCPS(cps int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock.SetCPS(cps)
}

// View calls fn with the machine while holding the runner lock.
// fn must not retain the VM or call back into the runner.
func (r *Runner) View(fn func(m *vm.VM)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.machine)
}

// SoundTimer returns the VM's sound timer.
func (r *Runner) SoundTimer() uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.machine.SoundTimer()
}
