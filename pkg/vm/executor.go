// Package vm provides instruction execution for the CHIP-8 virtual machine.
package vm

import (
	"github.com/zurustar/chip-et/pkg/opcode"
)

// execute runs one decoded instruction. PC has already been advanced past it;
// pc is the address the instruction was fetched from.
//
// Every bounds and stack check happens before any state is written, so a fatal
// error leaves registers, memory, stack and framebuffer unchanged.
func (vm *VM) execute(in opcode.Instruction, pc uint16) *RuntimeError {
	x, y := in.X, in.Y

	switch in.Kind {
	case opcode.Cls:
		vm.fb.Clear()

	case opcode.Ret:
		if vm.sp == 0 {
			return newStackUnderflowError(pc, in.Word)
		}
		vm.sp--
		vm.pc = vm.stack[vm.sp]

	case opcode.Jump:
		vm.pc = in.NNN

	case opcode.Call:
		if vm.sp == StackDepth {
			return newStackOverflowError(pc, in.Word)
		}
		vm.stack[vm.sp] = vm.pc
		vm.sp++
		vm.pc = in.NNN

	case opcode.SkipEqByte:
		vm.skipIf(vm.v[x] == in.NN)

	case opcode.SkipNeByte:
		vm.skipIf(vm.v[x] != in.NN)

	case opcode.SkipEqReg:
		vm.skipIf(vm.v[x] == vm.v[y])

	case opcode.LoadByte:
		vm.v[x] = in.NN

	case opcode.AddByte:
		vm.v[x] += in.NN

	case opcode.LoadReg:
		vm.v[x] = vm.v[y]

	case opcode.Or:
		vm.v[x] |= vm.v[y]

	case opcode.And:
		vm.v[x] &= vm.v[y]

	case opcode.Xor:
		vm.v[x] ^= vm.v[y]

	case opcode.AddReg:
		sum := uint16(vm.v[x]) + uint16(vm.v[y])
		vm.v[x] = uint8(sum)
		vm.v[FlagRegister] = boolToFlag(sum > 0xFF)

	case opcode.SubReg:
		vx, vy := vm.v[x], vm.v[y]
		vm.v[x] = vx - vy
		vm.v[FlagRegister] = boolToFlag(vx >= vy)

	case opcode.ShiftRight:
		vx := vm.v[x]
		vm.v[x] = vx >> 1
		vm.v[FlagRegister] = vx & 0x01

	case opcode.SubNReg:
		vx, vy := vm.v[x], vm.v[y]
		vm.v[x] = vy - vx
		vm.v[FlagRegister] = boolToFlag(vy >= vx)

	case opcode.ShiftLeft:
		vx := vm.v[x]
		vm.v[x] = vx << 1
		vm.v[FlagRegister] = vx >> 7

	case opcode.SkipNeReg:
		vm.skipIf(vm.v[x] != vm.v[y])

	case opcode.LoadIndex:
		vm.i = in.NNN

	case opcode.JumpV0:
		vm.pc = uint16(vm.v[0]) + in.NNN

	case opcode.Random:
		vm.v[x] = uint8(vm.rng.UintN(256)) & in.NN

	case opcode.Draw:
		// DXY0 reads no memory, so I is not checked
		var rows []byte
		if n := int(in.N); n > 0 {
			if err := vm.checkRange(pc, in.Word, n); err != nil {
				return err
			}
			rows = vm.memory[vm.i : int(vm.i)+n]
		}
		collision := vm.fb.Draw(int(vm.v[x]), int(vm.v[y]), rows)
		vm.v[FlagRegister] = boolToFlag(collision)

	case opcode.SkipKey:
		vm.skipIf(vm.keyPressed(vm.v[x]))

	case opcode.SkipNotKey:
		vm.skipIf(!vm.keyPressed(vm.v[x]))

	case opcode.LoadDelay:
		vm.v[x] = vm.delayTimer

	case opcode.WaitKey:
		k, ok := vm.firstPressedKey()
		if !ok {
			vm.pc -= 2
			break
		}
		vm.v[x] = k

	case opcode.SetDelay:
		vm.delayTimer = vm.v[x]

	case opcode.SetSound:
		vm.soundTimer = vm.v[x]

	case opcode.AddIndex:
		vm.i += uint16(vm.v[x])

	case opcode.LoadFont:
		vm.i = FontStart + uint16(vm.v[x])*GlyphSize

	case opcode.StoreBCD:
		if err := vm.checkRange(pc, in.Word, 3); err != nil {
			return err
		}
		vx := vm.v[x]
		vm.memory[vm.i] = vx / 100
		vm.memory[vm.i+1] = (vx / 10) % 10
		vm.memory[vm.i+2] = vx % 10

	case opcode.StoreRegs:
		if err := vm.checkRange(pc, in.Word, int(x)+1); err != nil {
			return err
		}
		copy(vm.memory[vm.i:], vm.v[:x+1])

	case opcode.LoadRegs:
		if err := vm.checkRange(pc, in.Word, int(x)+1); err != nil {
			return err
		}
		copy(vm.v[:x+1], vm.memory[vm.i:])

	default:
		return newUnknownOpcodeError(pc, in.Word)
	}

	return nil
}

func (vm *VM) skipIf(cond bool) {
	if cond {
		vm.pc += 2
	}
}

// checkRange verifies that n bytes starting at I lie inside memory.
func (vm *VM) checkRange(pc, word uint16, n int) *RuntimeError {
	if int(vm.i)+n > MemorySize {
		return newAddressError(pc, word, int(vm.i), n)
	}
	return nil
}

// keyPressed reports the state of key k. Values above 0xF are never pressed.
func (vm *VM) keyPressed(k uint8) bool {
	return int(k) < NumKeys && vm.keys[k]
}

// firstPressedKey returns the lowest-numbered pressed key.
func (vm *VM) firstPressedKey() (uint8, bool) {
	for k, pressed := range vm.keys {
		if pressed {
			return uint8(k), true
		}
	}
	return 0, false
}

func boolToFlag(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
