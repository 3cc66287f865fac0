package monitor

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jroimartin/gocui"
	"github.com/zurustar/chip-et/pkg/engine"
	"github.com/zurustar/chip-et/pkg/opcode"
	"github.com/zurustar/chip-et/pkg/vm"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMonitor(t *testing.T, cps int, rom ...byte) (*Monitor, *engine.Runner) {
	t.Helper()
	machine := vm.New(vm.WithLogger(quietLogger()))
	r, err := engine.NewRunner(machine, rom, cps, engine.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	return New(r, WithLogger(quietLogger())), r
}

type recordingBeeper struct {
	values []uint8
}

func (b *recordingBeeper) Update(st uint8) {
	b.values = append(b.values, st)
}

func TestKeyLatch(t *testing.T) {
	base := time.Unix(0, 0)
	l := NewKeyLatch(100 * time.Millisecond)

	l.Press(0xA, base)
	l.Press(0x20, base) // ignored

	if keys := l.Snapshot(base.Add(50 * time.Millisecond)); !keys[0xA] {
		t.Error("key A should be held within the latch window")
	}
	if keys := l.Snapshot(base.Add(100 * time.Millisecond)); keys[0xA] {
		t.Error("key A should be released after the latch window")
	}

	// 押し直すと保持が延びる
	l.Press(0xA, base.Add(90*time.Millisecond))
	if keys := l.Snapshot(base.Add(150 * time.Millisecond)); !keys[0xA] {
		t.Error("repeated press should extend the hold")
	}

	for k, held := range l.Snapshot(base) {
		if held && k != 0xA {
			t.Errorf("unexpected key %X held", k)
		}
	}
}

func TestRuneKey(t *testing.T) {
	tests := []struct {
		ch   rune
		want uint8
		ok   bool
	}{
		{'0', 0x0, true},
		{'9', 0x9, true},
		{'a', 0xA, true},
		{'f', 0xF, true},
		{'C', 0xC, true},
		{'g', 0, false},
		{'n', 0, false},
		{' ', 0, false},
	}
	for _, tt := range tests {
		got, ok := runeKey(tt.ch)
		if got != tt.want || ok != tt.ok {
			t.Errorf("runeKey(%q) = %X, %v; want %X, %v", tt.ch, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFormatRegisters(t *testing.T) {
	prev := Snapshot{State: vm.State{PC: 0x200, I: 0x050}}
	cur := Snapshot{
		State: vm.State{PC: 0x202, I: 0x050, Stack: []uint16{0x20A}, Cycles: 7},
		Next:  opcode.Decode(0x8124),
	}
	cur.State.V[1] = 0x2A

	out := FormatRegisters(prev, cur)

	t.Run("変更された値は強調", func(t *testing.T) {
		if !strings.Contains(out, changedColor+"202") {
			t.Errorf("PC change not highlighted:\n%q", out)
		}
		if !strings.Contains(out, "V1 "+changedColor+"2A") {
			t.Errorf("V1 change not highlighted:\n%q", out)
		}
	})

	t.Run("変わらない値はそのまま", func(t *testing.T) {
		if !strings.Contains(out, "I 050") {
			t.Errorf("unchanged I should be plain:\n%q", out)
		}
		if !strings.Contains(out, "V0 00") {
			t.Errorf("unchanged V0 should be plain:\n%q", out)
		}
	})

	t.Run("スタックと次の命令", func(t *testing.T) {
		if !strings.Contains(out, "[20A]") {
			t.Errorf("stack missing:\n%q", out)
		}
		if !strings.Contains(out, "next   8124 ADD V1, V2") {
			t.Errorf("next instruction missing:\n%q", out)
		}
		if !strings.Contains(out, "cycles 7") {
			t.Errorf("cycle count missing:\n%q", out)
		}
	})

	t.Run("同じ状態なら強調なし", func(t *testing.T) {
		if same := FormatRegisters(cur, cur); strings.Contains(same, changedColor) {
			t.Errorf("no change expected:\n%q", same)
		}
	})
}

func TestTakeSnapshot(t *testing.T) {
	machine := vm.New(vm.WithLogger(quietLogger()))
	if err := machine.Reset([]byte{0x60, 0x05, 0x12, 0x02}); err != nil {
		t.Fatal(err)
	}
	s := TakeSnapshot(machine)
	if s.State.PC != vm.ProgramStart || s.Next.Word != 0x6005 {
		t.Errorf("snapshot = PC %03X next %04X", s.State.PC, s.Next.Word)
	}
}

func TestMonitorTick(t *testing.T) {
	base := time.Unix(100, 0)

	t.Run("経過時間分だけ実行", func(t *testing.T) {
		// 7001 1200: V0 を増やし続ける
		m, r := newTestMonitor(t, 100, 0x70, 0x01, 0x12, 0x00)
		m.Tick(base)
		_, regs := m.Tick(base.Add(100 * time.Millisecond))

		var v0 uint8
		r.View(func(machine *vm.VM) { v0 = machine.Register(0) })
		if v0 != 5 {
			t.Errorf("V0 = %d, want 5", v0)
		}
		if !strings.Contains(regs, "RUNNING 100 cps") {
			t.Errorf("status line missing:\n%s", regs)
		}
	})

	t.Run("最初のフレームで画面を描く", func(t *testing.T) {
		m, _ := newTestMonitor(t, 100, 0x12, 0x00)
		screen, _ := m.Tick(base)
		if lines := strings.Split(strings.TrimSuffix(screen, "\n"), "\n"); len(lines) != vm.DisplayHeight/2 {
			t.Errorf("screen has %d lines, want %d", len(lines), vm.DisplayHeight/2)
		}
	})

	t.Run("押したキーがプログラムに届く", func(t *testing.T) {
		// F00A: キー待ち
		m, r := newTestMonitor(t, 100, 0xF0, 0x0A, 0x12, 0x02)
		m.Tick(base)
		m.latch.Press(0x7, base)
		m.Tick(base.Add(20 * time.Millisecond))

		var v0 uint8
		r.View(func(machine *vm.VM) { v0 = machine.Register(0) })
		if v0 != 0x7 {
			t.Errorf("V0 = %X, want 7", v0)
		}
	})

	t.Run("停止中は HALTED を表示し音を止める", func(t *testing.T) {
		// 6F10 FF18 00EE: 音を鳴らしてからスタックアンダーフロー
		b := &recordingBeeper{}
		machine := vm.New(vm.WithLogger(quietLogger()))
		r, err := engine.NewRunner(machine, []byte{0x6F, 0x10, 0xFF, 0x18, 0x00, 0xEE}, 100, engine.WithLogger(quietLogger()))
		if err != nil {
			t.Fatal(err)
		}
		m := New(r, WithLogger(quietLogger()), WithBeeper(b))
		m.Tick(base)
		_, regs := m.Tick(base.Add(50 * time.Millisecond))

		if !strings.Contains(regs, "HALTED") {
			t.Errorf("status should report halt:\n%s", regs)
		}
		if got := b.values[len(b.values)-1]; got != 0 {
			t.Errorf("beeper = %d, want 0 after halt", got)
		}
	})

	t.Run("一時停止中は進まない", func(t *testing.T) {
		m, r := newTestMonitor(t, 100, 0x70, 0x01, 0x12, 0x00)
		r.SetPaused(true)
		m.Tick(base)
		_, regs := m.Tick(base.Add(time.Second))
		if r.NonFatalErrors() != 0 {
			t.Fatal("unexpected errors")
		}
		var cycles uint64
		r.View(func(machine *vm.VM) { cycles = machine.Cycles() })
		if cycles != 0 {
			t.Errorf("cycles = %d while paused", cycles)
		}
		if !strings.Contains(regs, "PAUSED") {
			t.Errorf("status should report pause:\n%s", regs)
		}
	})
}

func TestStatusWriter(t *testing.T) {
	var fallback bytes.Buffer
	w := NewStatusWriter(&fallback)

	n, err := w.Write([]byte("level=INFO msg=hello\n"))
	if err != nil || n != 21 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if fallback.String() != "level=INFO msg=hello\n" {
		t.Errorf("fallback got %q", fallback.String())
	}

	var view bytes.Buffer
	w.pending = []byte("early\n")
	w.flush(&view)
	if view.String() != "early\n" || w.pending != nil {
		t.Errorf("flush wrote %q, pending %q", view.String(), w.pending)
	}
}

func TestMonitorShutdown(t *testing.T) {
	var fallback bytes.Buffer
	status := NewStatusWriter(&fallback)
	beeper := &recordingBeeper{}
	m := New(nil, WithStatusWriter(status), WithBeeper(beeper))

	status.attach(&gocui.Gui{})
	done := make(chan struct{})
	m.shutdown(done)

	select {
	case <-done:
	default:
		t.Error("ticker channel should be closed")
	}
	// 終了後のログは画面ではなく退避先に書く
	if _, err := status.Write([]byte("msg=bye\n")); err != nil {
		t.Fatal(err)
	}
	if fallback.String() != "msg=bye\n" {
		t.Errorf("fallback got %q", fallback.String())
	}
	if n := len(beeper.values); n == 0 || beeper.values[n-1] != 0 {
		t.Errorf("beeper updates = %v, want trailing 0", beeper.values)
	}
}
