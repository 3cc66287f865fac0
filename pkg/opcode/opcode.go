// Package opcode defines the instruction set for the CHIP-8 virtual machine.
// This package is the foundation that the VM, the tracer and the monitor depend on.
// Decode turns a raw 16-bit word into an Instruction, and the VM executes it.
package opcode

import "fmt"

// Kind identifies one instruction of the base CHIP-8 instruction set.
// Each Kind corresponds to exactly one opcode pattern.
type Kind uint8

// Instruction kinds, in opcode-table order.
const (
	// Unknown is any word that matches no defined pattern. It executes as a no-op.
	Unknown Kind = iota

	// Cls clears the framebuffer. Pattern: 00E0
	Cls
	// Ret returns from a subroutine. Pattern: 00EE
	Ret
	// Jump sets PC to NNN. Pattern: 1NNN
	Jump
	// Call pushes PC and jumps to NNN. Pattern: 2NNN
	Call
	// SkipEqByte skips the next instruction if VX == NN. Pattern: 3XNN
	SkipEqByte
	// SkipNeByte skips the next instruction if VX != NN. Pattern: 4XNN
	SkipNeByte
	// SkipEqReg skips the next instruction if VX == VY. Pattern: 5XY0
	SkipEqReg
	// LoadByte sets VX to NN. Pattern: 6XNN
	LoadByte
	// AddByte adds NN to VX without touching VF. Pattern: 7XNN
	AddByte
	// LoadReg sets VX to VY. Pattern: 8XY0
	LoadReg
	// Or sets VX to VX | VY. Pattern: 8XY1
	Or
	// And sets VX to VX & VY. Pattern: 8XY2
	And
	// Xor sets VX to VX ^ VY. Pattern: 8XY3
	Xor
	// AddReg adds VY to VX, VF is the carry. Pattern: 8XY4
	AddReg
	// SubReg subtracts VY from VX, VF is the inverted borrow. Pattern: 8XY5
	SubReg
	// ShiftRight shifts VX right, VF is the bit shifted out. Pattern: 8XY6
	ShiftRight
	// SubNReg sets VX to VY - VX, VF is the inverted borrow. Pattern: 8XY7
	SubNReg
	// ShiftLeft shifts VX left, VF is the bit shifted out. Pattern: 8XYE
	ShiftLeft
	// SkipNeReg skips the next instruction if VX != VY. Pattern: 9XY0
	SkipNeReg
	// LoadIndex sets I to NNN. Pattern: ANNN
	LoadIndex
	// JumpV0 sets PC to V0 + NNN. Pattern: BNNN
	JumpV0
	// Random sets VX to a random byte masked with NN. Pattern: CXNN
	Random
	// Draw XORs an N-row sprite at (VX, VY). Pattern: DXYN
	Draw
	// SkipKey skips the next instruction if key VX is pressed. Pattern: EX9E
	SkipKey
	// SkipNotKey skips the next instruction if key VX is not pressed. Pattern: EXA1
	SkipNotKey
	// LoadDelay sets VX to the delay timer. Pattern: FX07
	LoadDelay
	// WaitKey blocks until a key is pressed and stores it in VX. Pattern: FX0A
	WaitKey
	// SetDelay sets the delay timer to VX. Pattern: FX15
	SetDelay
	// SetSound sets the sound timer to VX. Pattern: FX18
	SetSound
	// AddIndex adds VX to I. Pattern: FX1E
	AddIndex
	// LoadFont points I at the font glyph for VX. Pattern: FX29
	LoadFont
	// StoreBCD writes the decimal digits of VX at I, I+1, I+2. Pattern: FX33
	StoreBCD
	// StoreRegs writes V0..VX to memory starting at I. Pattern: FX55
	StoreRegs
	// LoadRegs reads V0..VX from memory starting at I. Pattern: FX65
	LoadRegs

	kindCount
)

// KindCount is the number of defined kinds including Unknown.
const KindCount = int(kindCount)

var kindInfo = [kindCount]struct {
	pattern  string
	mnemonic string
}{
	Unknown:    {"????", "???"},
	Cls:        {"00E0", "CLS"},
	Ret:        {"00EE", "RET"},
	Jump:       {"1NNN", "JP"},
	Call:       {"2NNN", "CALL"},
	SkipEqByte: {"3XNN", "SE"},
	SkipNeByte: {"4XNN", "SNE"},
	SkipEqReg:  {"5XY0", "SE"},
	LoadByte:   {"6XNN", "LD"},
	AddByte:    {"7XNN", "ADD"},
	LoadReg:    {"8XY0", "LD"},
	Or:         {"8XY1", "OR"},
	And:        {"8XY2", "AND"},
	Xor:        {"8XY3", "XOR"},
	AddReg:     {"8XY4", "ADD"},
	SubReg:     {"8XY5", "SUB"},
	ShiftRight: {"8XY6", "SHR"},
	SubNReg:    {"8XY7", "SUBN"},
	ShiftLeft:  {"8XYE", "SHL"},
	SkipNeReg:  {"9XY0", "SNE"},
	LoadIndex:  {"ANNN", "LD"},
	JumpV0:     {"BNNN", "JP"},
	Random:     {"CXNN", "RND"},
	Draw:       {"DXYN", "DRW"},
	SkipKey:    {"EX9E", "SKP"},
	SkipNotKey: {"EXA1", "SKNP"},
	LoadDelay:  {"FX07", "LD"},
	WaitKey:    {"FX0A", "LD"},
	SetDelay:   {"FX15", "LD"},
	SetSound:   {"FX18", "LD"},
	AddIndex:   {"FX1E", "ADD"},
	LoadFont:   {"FX29", "LD"},
	StoreBCD:   {"FX33", "LD"},
	StoreRegs:  {"FX55", "LD"},
	LoadRegs:   {"FX65", "LD"},
}

// String returns the opcode pattern of the kind, e.g. "8XY4".
func (k Kind) String() string {
	if k >= kindCount {
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
	return kindInfo[k].pattern
}

// Mnemonic returns the assembler-style mnemonic used in trace output.
func (k Kind) Mnemonic() string {
	if k >= kindCount {
		return "???"
	}
	return kindInfo[k].mnemonic
}

// Instruction is a decoded 16-bit word.
// Every field is derived from Word with fixed masks, whether or not Kind uses it.
type Instruction struct {
	Word uint16
	Kind Kind
	X    uint8  // bits 8-11
	Y    uint8  // bits 4-7
	N    uint8  // bits 0-3
	NN   uint8  // bits 0-7
	NNN  uint16 // bits 0-11
}
