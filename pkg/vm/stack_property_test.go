package vm

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: N nested calls followed by N returns leave an empty stack and
// return to the instruction after the first call. Call 17 overflows.
func TestProperty_NestedCalls(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("nested calls unwind to the caller", prop.ForAll(
		func(depth int) bool {
			// 0x200: CALL 0x300; 0x202: JP 0x202
			// 0x300: CALL 0x300 ... until depth, then RET
			vm := New()
			rom := []byte{0x23, 0x00, 0x12, 0x02}
			if err := vm.Reset(rom); err != nil {
				return false
			}
			vm.memory[0x300] = 0x00
			vm.memory[0x301] = 0xEE

			if err := vm.Step(); err != nil {
				return false
			}
			for i := 1; i < depth; i++ {
				vm.pc = 0x302 // simulate a call site at 0x302
				vm.memory[0x302] = 0x23
				vm.memory[0x303] = 0x00
				if err := vm.Step(); err != nil {
					return false
				}
			}
			if len(vm.State().Stack) != depth {
				return false
			}
			for i := 0; i < depth; i++ {
				vm.pc = 0x300
				if err := vm.Step(); err != nil {
					return false
				}
			}
			return vm.PC() == 0x202 && len(vm.State().Stack) == 0
		},
		gen.IntRange(1, StackDepth),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestStackOverflowAtDepth(t *testing.T) {
	// 0x200: CALL 0x200 を繰り返す
	vm := newTestVM(t, 0x22, 0x00)
	for i := 0; i < StackDepth; i++ {
		if err := vm.Step(); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	err := vm.Step()
	var rtErr *RuntimeError
	if !errors.As(err, &rtErr) || rtErr.Type != ErrorStackOverflow {
		t.Fatalf("expected stack overflow, got %v", err)
	}
	if len(vm.State().Stack) != StackDepth {
		t.Errorf("stack depth = %d, want %d", len(vm.State().Stack), StackDepth)
	}
}
