package engine

import (
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/zurustar/chip-et/pkg/vm"
)

func newTestRunner(t *testing.T, cps int, rom ...byte) *Runner {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	machine := vm.New(vm.WithRand(rand.New(rand.NewPCG(1, 2))), vm.WithLogger(quiet))
	r, err := NewRunner(machine, rom, cps, WithLogger(quiet))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	return r
}

func TestNewRunner(t *testing.T) {
	t.Run("不正な cps", func(t *testing.T) {
		if _, err := NewRunner(vm.New(), nil, 0); err == nil {
			t.Error("expected error for cps 0")
		}
	})

	t.Run("大きすぎる ROM", func(t *testing.T) {
		_, err := NewRunner(vm.New(), make([]byte, vm.MaxROMSize+1), 500)
		if !errors.Is(err, vm.ErrROMTooLarge) {
			t.Errorf("error = %v, want ErrROMTooLarge", err)
		}
	})
}

func TestRunnerFrame(t *testing.T) {
	// 7001 1200: V0 += 1 forever
	r := newTestRunner(t, 100, 0x70, 0x01, 0x12, 0x00)

	n, err := r.Frame(100 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if n != 10 {
		t.Errorf("Frame ran %d steps, want 10", n)
	}
	r.View(func(m *vm.VM) {
		if got := m.Register(0); got != 5 {
			t.Errorf("V0 = %d, want 5", got)
		}
		if got := m.Cycles(); got != 10 {
			t.Errorf("Cycles = %d, want 10", got)
		}
	})
}

func TestRunnerPause(t *testing.T) {
	r := newTestRunner(t, 100, 0x70, 0x01, 0x12, 0x00)

	r.SetPaused(true)
	if !r.Paused() {
		t.Fatal("Paused() = false after SetPaused(true)")
	}
	if n, _ := r.Frame(time.Second); n != 0 {
		t.Errorf("paused Frame ran %d steps", n)
	}

	// 一時停止中でも単一ステップは実行できる
	if err := r.StepOnce(); err != nil {
		t.Fatal(err)
	}
	r.View(func(m *vm.VM) {
		if m.Register(0) != 1 {
			t.Errorf("V0 = %d after StepOnce, want 1", m.Register(0))
		}
	})

	if r.TogglePause() {
		t.Error("TogglePause should resume")
	}
	if n, _ := r.Frame(20 * time.Millisecond); n != 2 {
		t.Errorf("resumed Frame ran %d steps, want 2", n)
	}
}

func TestRunnerFatalHalts(t *testing.T) {
	// 7001 00EE: the return underflows on the second cycle
	r := newTestRunner(t, 100, 0x70, 0x01, 0x00, 0xEE)

	n, err := r.Frame(time.Second)
	var rtErr *vm.RuntimeError
	if !errors.As(err, &rtErr) || rtErr.Type != vm.ErrorStackUnderflow {
		t.Fatalf("Frame error = %v, want stack underflow", err)
	}
	if n != 1 {
		t.Errorf("completed steps = %d, want 1", n)
	}
	if r.Halted() == nil {
		t.Fatal("Halted() = nil after fatal error")
	}

	// 停止中は何も実行しない
	_, err = r.Frame(time.Second)
	if !errors.Is(err, ErrHalted) {
		t.Errorf("Frame after halt = %v, want ErrHalted", err)
	}
	if err := r.StepOnce(); !errors.Is(err, ErrHalted) {
		t.Errorf("StepOnce after halt = %v, want ErrHalted", err)
	}

	// Reload で再開できる
	if err := r.Reload(); err != nil {
		t.Fatal(err)
	}
	if r.Halted() != nil {
		t.Error("Reload did not clear the halt")
	}
	r.View(func(m *vm.VM) {
		if m.PC() != vm.ProgramStart || m.Register(0) != 0 {
			t.Errorf("after Reload PC=0x%03X V0=%d", m.PC(), m.Register(0))
		}
	})
}

func TestRunnerNonFatalContinues(t *testing.T) {
	// 0123 7001 1202: unknown opcode then a counting loop
	r := newTestRunner(t, 100, 0x01, 0x23, 0x70, 0x01, 0x12, 0x02)

	n, err := r.Frame(50 * time.Millisecond)
	if err != nil {
		t.Fatalf("non-fatal error surfaced: %v", err)
	}
	if n != 5 {
		t.Errorf("steps = %d, want 5", n)
	}
	if r.NonFatalErrors() != 1 {
		t.Errorf("NonFatalErrors = %d, want 1", r.NonFatalErrors())
	}
	if r.Halted() != nil {
		t.Error("runner halted on a non-fatal error")
	}
}

func TestRunnerKeys(t *testing.T) {
	// F00A 1202: wait for a key, then park
	r := newTestRunner(t, 100, 0xF0, 0x0A, 0x12, 0x02)

	r.Frame(50 * time.Millisecond)
	r.View(func(m *vm.VM) {
		if m.PC() != vm.ProgramStart {
			t.Errorf("PC = 0x%03X while waiting, want 0x200", m.PC())
		}
	})

	r.SetKey(0xB, true)
	r.SetKey(0x10, true) // ignored
	r.Frame(10 * time.Millisecond)
	r.View(func(m *vm.VM) {
		if m.Register(0) != 0xB {
			t.Errorf("V0 = 0x%X, want 0xB", m.Register(0))
		}
	})

	var keys [vm.NumKeys]bool
	r.SetKeys(keys)
	r.View(func(m *vm.VM) {
		// the VM only sees the new snapshot on the next step
		if !m.Keys()[0xB] {
			t.Error("VM key state changed before the next step")
		}
	})
}

func TestRunnerIdleLoop(t *testing.T) {
	tests := []struct {
		name string
		rom  []byte
		want bool
	}{
		{"自己ジャンプ", []byte{0x60, 0x01, 0x12, 0x02}, true},
		{"別アドレスへのジャンプ", []byte{0x60, 0x01, 0x12, 0x00}, false},
		{"キー待ち", []byte{0xF0, 0x0A}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRunner(t, 100, tt.rom...)
			r.Frame(50 * time.Millisecond)
			if got := r.IdleLoop(); got != tt.want {
				t.Errorf("IdleLoop() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunnerLoad(t *testing.T) {
	r := newTestRunner(t, 100, 0x60, 0x01)

	if err := r.Load(make([]byte, vm.MaxROMSize+1)); !errors.Is(err, vm.ErrROMTooLarge) {
		t.Errorf("Load oversize = %v, want ErrROMTooLarge", err)
	}

	if err := r.Load([]byte{0x60, 0x07}); err != nil {
		t.Fatal(err)
	}
	r.StepOnce()
	r.Reload()
	r.StepOnce()
	r.View(func(m *vm.VM) {
		if m.Register(0) != 7 {
			t.Errorf("V0 = %d, want 7 from the replaced ROM", m.Register(0))
		}
	})
}

func TestRunnerSetCPS(t *testing.T) {
	r := newTestRunner(t, 100, 0x12, 0x00)
	if err := r.SetCPS(MaxCyclesPerSecond + 1); err == nil {
		t.Error("SetCPS above the limit should fail")
	}
	if err := r.SetCPS(120); err != nil {
		t.Fatal(err)
	}
	if r.CPS() != 120 {
		t.Errorf("CPS() = %d, want 120", r.CPS())
	}
}
