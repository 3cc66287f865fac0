// Package vm provides the CHIP-8 virtual machine.
// It owns the complete machine state:
// - 16 general registers V0..VF (VF doubles as the flag register)
// - 4 KiB of memory with the font at FontStart and programs at ProgramStart
// - index register, program counter and a 16-entry call stack
// - delay and sound timers, decremented once per Step
// - 16-key input state and the 64x32 framebuffer
//
// The VM is a synchronous state object. A driver calls Reset once per program
// and then Step repeatedly; nothing inside the VM blocks or spawns goroutines.
// It is not safe for concurrent use.
package vm

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/zurustar/chip-et/pkg/logger"
	"github.com/zurustar/chip-et/pkg/opcode"
)

// Memory layout.
const (
	MemorySize   = 0x1000
	ProgramStart = 0x200
	MaxROMSize   = MemorySize - ProgramStart
)

// StackDepth is the maximum number of nested subroutine calls.
const StackDepth = 16

// NumKeys is the number of keys on the hex keypad.
const NumKeys = 16

// FlagRegister is the index of VF.
const FlagRegister = 0xF

// VM represents the CHIP-8 interpreter core.
type VM struct {
	v      [16]uint8
	memory [MemorySize]byte
	i      uint16
	pc     uint16

	stack [StackDepth]uint16
	sp    int

	delayTimer uint8
	soundTimer uint8

	keys [NumKeys]bool
	fb   Framebuffer

	last   opcode.Instruction
	cycles uint64

	// Configuration
	rng   *rand.Rand
	trace bool

	// Logger
	log *slog.Logger
}

// State is a read-only copy of the registers, used by debuggers and tests.
type State struct {
	V          [16]uint8
	I          uint16
	PC         uint16
	Stack      []uint16
	DelayTimer uint8
	SoundTimer uint8
	Cycles     uint64
}

// Option is a functional option for configuring the VM.
type Option func(*VM)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(vm *VM) {
		vm.log = log
	}
}

// WithRand sets the random source used by CXNN.
// Tests pass a seeded source to make CXNN deterministic.
func WithRand(r *rand.Rand) Option {
	return func(vm *VM) {
		vm.rng = r
	}
}

// WithTrace enables a debug log line for every executed instruction.
func WithTrace(trace bool) Option {
	return func(vm *VM) {
		vm.trace = trace
	}
}

// New creates a new VM. The machine is reset with an empty program, so the
// font is present and PC points at ProgramStart.
func New(opts ...Option) *VM {
	vm := &VM{
		log: logger.GetLogger(),
	}

	for _, opt := range opts {
		opt(vm)
	}

	if vm.rng == nil {
		now := uint64(time.Now().UnixNano())
		vm.rng = rand.New(rand.NewPCG(now, now>>32|1))
	}

	vm.reset(nil)
	return vm
}

// Reset loads a program image and reinitializes the whole machine.
// Registers, stack, timers, keys, framebuffer and memory are zeroed, the font
// is rewritten, rom is copied to ProgramStart and PC is set to ProgramStart.
// A ROM longer than MaxROMSize is rejected and the machine is left untouched.
func (vm *VM) Reset(rom []byte) error {
	if len(rom) > MaxROMSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrROMTooLarge, len(rom), MaxROMSize)
	}
	vm.reset(rom)
	vm.log.Debug("VM reset", "rom_size", len(rom))
	return nil
}

func (vm *VM) reset(rom []byte) {
	vm.v = [16]uint8{}
	vm.memory = [MemorySize]byte{}
	vm.i = 0
	vm.pc = ProgramStart
	vm.stack = [StackDepth]uint16{}
	vm.sp = 0
	vm.delayTimer = 0
	vm.soundTimer = 0
	vm.keys = [NumKeys]bool{}
	vm.fb.Clear()
	vm.last = opcode.Instruction{}
	vm.cycles = 0

	copy(vm.memory[FontStart:], fontSet[:])
	copy(vm.memory[ProgramStart:], rom)
}

// Step runs one fetch-decode-execute cycle:
//  1. fetch the big-endian word at PC and advance PC by 2
//  2. execute it
//  3. decrement the delay timer, then the sound timer, if nonzero
//
// A fatal *RuntimeError leaves the machine exactly as it was before the call
// (PC still points at the faulting instruction, timers untouched). A non-fatal
// one (unknown opcode) is returned after the cycle completed as a no-op.
func (vm *VM) Step() error {
	pc := vm.pc
	if int(pc)+1 >= MemorySize {
		return newAddressError(pc, 0, int(pc), 2)
	}

	word := uint16(vm.memory[pc])<<8 | uint16(vm.memory[pc+1])
	in := opcode.Decode(word)
	vm.pc += 2

	if vm.trace && vm.log.Enabled(context.Background(), slog.LevelDebug) {
		vm.log.Debug("exec", "pc", fmt.Sprintf("0x%03X", pc), "instr", in.String())
	}

	if err := vm.execute(in, pc); err != nil {
		if err.IsFatal() {
			vm.pc = pc
			return err
		}
		vm.last = in
		vm.tickTimers()
		vm.cycles++
		return err
	}

	vm.last = in
	vm.tickTimers()
	vm.cycles++
	return nil
}

func (vm *VM) tickTimers() {
	if vm.delayTimer > 0 {
		vm.delayTimer--
	}
	if vm.soundTimer > 0 {
		vm.soundTimer--
	}
}

// SetKey sets the pressed state of key k (0x0-0xF). Other values are ignored.
func (vm *VM) SetKey(k uint8, pressed bool) {
	if int(k) < NumKeys {
		vm.keys[k] = pressed
	}
}

// SetKeys replaces the whole key state.
func (vm *VM) SetKeys(keys [NumKeys]bool) {
	vm.keys = keys
}

// Keys returns the current key state.
func (vm *VM) Keys() [NumKeys]bool {
	return vm.keys
}

// Framebuffer returns the display. The pointer stays valid across Reset.
func (vm *VM) Framebuffer() *Framebuffer {
	return &vm.fb
}

// SoundTimer returns the sound timer. A tone should play while it is nonzero.
func (vm *VM) SoundTimer() uint8 {
	return vm.soundTimer
}

// DelayTimer returns the delay timer.
func (vm *VM) DelayTimer() uint8 {
	return vm.delayTimer
}

// PC returns the program counter.
func (vm *VM) PC() uint16 {
	return vm.pc
}

// Register returns Vx.
func (vm *VM) Register(x uint8) uint8 {
	return vm.v[x&0x0F]
}

// Index returns the index register I.
func (vm *VM) Index() uint16 {
	return vm.i
}

// Cycles returns the number of completed Step calls since the last Reset.
func (vm *VM) Cycles() uint64 {
	return vm.cycles
}

// LastInstruction returns the most recently fetched instruction.
func (vm *VM) LastInstruction() opcode.Instruction {
	return vm.last
}

// State returns a copy of the registers and stack.
func (vm *VM) State() State {
	stack := make([]uint16, vm.sp)
	copy(stack, vm.stack[:vm.sp])
	return State{
		V:          vm.v,
		I:          vm.i,
		PC:         vm.pc,
		Stack:      stack,
		DelayTimer: vm.delayTimer,
		SoundTimer: vm.soundTimer,
		Cycles:     vm.cycles,
	}
}

// Memory returns a copy of up to n bytes starting at addr, clipped to memory.
func (vm *VM) Memory(addr uint16, n int) []byte {
	start := int(addr)
	if start >= MemorySize || n <= 0 {
		return nil
	}
	end := start + n
	if end > MemorySize {
		end = MemorySize
	}
	out := make([]byte, end-start)
	copy(out, vm.memory[start:end])
	return out
}
