package opcode

import "fmt"

// Decode classifies a raw instruction word.
// The leading nibble selects the group; groups 5, 8 and 9 are refined by the
// trailing nibble and groups 0, E and F by the trailing byte. A word that does
// not match its group's patterns exactly decodes as Unknown.
func Decode(word uint16) Instruction {
	in := Instruction{
		Word: word,
		X:    uint8(word>>8) & 0x0F,
		Y:    uint8(word>>4) & 0x0F,
		N:    uint8(word) & 0x0F,
		NN:   uint8(word),
		NNN:  word & 0x0FFF,
	}
	in.Kind = decodeKind(word)
	return in
}

func decodeKind(word uint16) Kind {
	switch word & 0xF000 {
	case 0x0000:
		switch word {
		case 0x00E0:
			return Cls
		case 0x00EE:
			return Ret
		}
	case 0x1000:
		return Jump
	case 0x2000:
		return Call
	case 0x3000:
		return SkipEqByte
	case 0x4000:
		return SkipNeByte
	case 0x5000:
		if word&0x000F == 0 {
			return SkipEqReg
		}
	case 0x6000:
		return LoadByte
	case 0x7000:
		return AddByte
	case 0x8000:
		switch word & 0x000F {
		case 0x0:
			return LoadReg
		case 0x1:
			return Or
		case 0x2:
			return And
		case 0x3:
			return Xor
		case 0x4:
			return AddReg
		case 0x5:
			return SubReg
		case 0x6:
			return ShiftRight
		case 0x7:
			return SubNReg
		case 0xE:
			return ShiftLeft
		}
	case 0x9000:
		if word&0x000F == 0 {
			return SkipNeReg
		}
	case 0xA000:
		return LoadIndex
	case 0xB000:
		return JumpV0
	case 0xC000:
		return Random
	case 0xD000:
		return Draw
	case 0xE000:
		switch word & 0x00FF {
		case 0x9E:
			return SkipKey
		case 0xA1:
			return SkipNotKey
		}
	case 0xF000:
		switch word & 0x00FF {
		case 0x07:
			return LoadDelay
		case 0x0A:
			return WaitKey
		case 0x15:
			return SetDelay
		case 0x18:
			return SetSound
		case 0x1E:
			return AddIndex
		case 0x29:
			return LoadFont
		case 0x33:
			return StoreBCD
		case 0x55:
			return StoreRegs
		case 0x65:
			return LoadRegs
		}
	}
	return Unknown
}

// String renders the instruction for trace logs, e.g. "8124 ADD V1, V2".
func (in Instruction) String() string {
	return fmt.Sprintf("%04X %s", in.Word, in.Operands())
}

// Operands renders the mnemonic with its operands, without the raw word.
func (in Instruction) Operands() string {
	m := in.Kind.Mnemonic()
	switch in.Kind {
	case Cls, Ret:
		return m
	case Jump, Call:
		return fmt.Sprintf("%s 0x%03X", m, in.NNN)
	case SkipEqByte, SkipNeByte, LoadByte, AddByte:
		return fmt.Sprintf("%s V%X, 0x%02X", m, in.X, in.NN)
	case SkipEqReg, SkipNeReg, LoadReg, Or, And, Xor, AddReg, SubReg, SubNReg:
		return fmt.Sprintf("%s V%X, V%X", m, in.X, in.Y)
	case ShiftRight, ShiftLeft:
		return fmt.Sprintf("%s V%X", m, in.X)
	case LoadIndex:
		return fmt.Sprintf("%s I, 0x%03X", m, in.NNN)
	case JumpV0:
		return fmt.Sprintf("%s V0, 0x%03X", m, in.NNN)
	case Random:
		return fmt.Sprintf("%s V%X, 0x%02X", m, in.X, in.NN)
	case Draw:
		return fmt.Sprintf("%s V%X, V%X, %d", m, in.X, in.Y, in.N)
	case SkipKey, SkipNotKey:
		return fmt.Sprintf("%s V%X", m, in.X)
	case LoadDelay:
		return fmt.Sprintf("%s V%X, DT", m, in.X)
	case WaitKey:
		return fmt.Sprintf("%s V%X, K", m, in.X)
	case SetDelay:
		return fmt.Sprintf("%s DT, V%X", m, in.X)
	case SetSound:
		return fmt.Sprintf("%s ST, V%X", m, in.X)
	case AddIndex:
		return fmt.Sprintf("%s I, V%X", m, in.X)
	case LoadFont:
		return fmt.Sprintf("%s F, V%X", m, in.X)
	case StoreBCD:
		return fmt.Sprintf("%s B, V%X", m, in.X)
	case StoreRegs:
		return fmt.Sprintf("%s [I], V%X", m, in.X)
	case LoadRegs:
		return fmt.Sprintf("%s V%X, [I]", m, in.X)
	}
	return fmt.Sprintf("%s 0x%04X", m, in.Word)
}
