package cpu

import "fmt"

// Op identifies a decoded instruction.
type Op uint8

const (
	OpInvalid Op = iota
	OpSYS        // 0NNN
	OpCLS        // 00E0
	OpRET        // 00EE
	OpJP         // 1NNN
	OpCALL       // 2NNN
	OpSEImm      // 3XNN
	OpSNEImm     // 4XNN
	OpSEReg      // 5XY0
	OpLDImm      // 6XNN
	OpADDImm     // 7XNN
	OpLDReg      // 8XY0
	OpOR         // 8XY1
	OpAND        // 8XY2
	OpXOR        // 8XY3
	OpADDReg     // 8XY4
	OpSUB        // 8XY5
	OpSHR        // 8XY6
	OpSUBN       // 8XY7
	OpSHL        // 8XYE
	OpSNEReg     // 9XY0
	OpLDI        // ANNN
	OpJPV0       // BNNN
	OpRND        // CXNN
	OpDRW        // DXYN
	OpSKP        // EX9E
	OpSKNP       // EXA1
	OpLDVxDT     // FX07
	OpLDVxK      // FX0A
	OpLDDTVx     // FX15
	OpLDSTVx     // FX18
	OpADDI       // FX1E
	OpLDF        // FX29
	OpLDB        // FX33
	OpSTRegs     // FX55
	OpLDRegs     // FX65
)

var opNames = [...]string{
	OpInvalid: "???",
	OpSYS:     "SYS",
	OpCLS:     "CLS",
	OpRET:     "RET",
	OpJP:      "JP",
	OpCALL:    "CALL",
	OpSEImm:   "SE",
	OpSNEImm:  "SNE",
	OpSEReg:   "SE",
	OpLDImm:   "LD",
	OpADDImm:  "ADD",
	OpLDReg:   "LD",
	OpOR:      "OR",
	OpAND:     "AND",
	OpXOR:     "XOR",
	OpADDReg:  "ADD",
	OpSUB:     "SUB",
	OpSHR:     "SHR",
	OpSUBN:    "SUBN",
	OpSHL:     "SHL",
	OpSNEReg:  "SNE",
	OpLDI:     "LD",
	OpJPV0:    "JP",
	OpRND:     "RND",
	OpDRW:     "DRW",
	OpSKP:     "SKP",
	OpSKNP:    "SKNP",
	OpLDVxDT:  "LD",
	OpLDVxK:   "LD",
	OpLDDTVx:  "LD",
	OpLDSTVx:  "LD",
	OpADDI:    "ADD",
	OpLDF:     "LD",
	OpLDB:     "LD",
	OpSTRegs:  "LD",
	OpLDRegs:  "LD",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// Instruction is a decoded opcode with its operand fields split out. Fields
// that the op does not use are zero.
type Instruction struct {
	Op  Op
	X   uint8
	Y   uint8
	N   uint8
	NN  uint8
	NNN uint16
	Raw uint16
}

// Decode splits a 16-bit opcode into nibbles and matches it to an Op.
// Unmatched patterns decode to OpInvalid.
func Decode(raw uint16) Instruction {
	in := Instruction{
		X:   uint8(raw>>8) & 0xF,
		Y:   uint8(raw>>4) & 0xF,
		N:   uint8(raw) & 0xF,
		NN:  uint8(raw),
		NNN: raw & 0x0FFF,
		Raw: raw,
	}

	switch raw >> 12 {
	case 0x0:
		switch raw {
		case 0x00E0:
			in.Op = OpCLS
		case 0x00EE:
			in.Op = OpRET
		default:
			in.Op = OpSYS
		}
	case 0x1:
		in.Op = OpJP
	case 0x2:
		in.Op = OpCALL
	case 0x3:
		in.Op = OpSEImm
	case 0x4:
		in.Op = OpSNEImm
	case 0x5:
		if in.N == 0 {
			in.Op = OpSEReg
		}
	case 0x6:
		in.Op = OpLDImm
	case 0x7:
		in.Op = OpADDImm
	case 0x8:
		switch in.N {
		case 0x0:
			in.Op = OpLDReg
		case 0x1:
			in.Op = OpOR
		case 0x2:
			in.Op = OpAND
		case 0x3:
			in.Op = OpXOR
		case 0x4:
			in.Op = OpADDReg
		case 0x5:
			in.Op = OpSUB
		case 0x6:
			in.Op = OpSHR
		case 0x7:
			in.Op = OpSUBN
		case 0xE:
			in.Op = OpSHL
		}
	case 0x9:
		if in.N == 0 {
			in.Op = OpSNEReg
		}
	case 0xA:
		in.Op = OpLDI
	case 0xB:
		in.Op = OpJPV0
	case 0xC:
		in.Op = OpRND
	case 0xD:
		in.Op = OpDRW
	case 0xE:
		switch in.NN {
		case 0x9E:
			in.Op = OpSKP
		case 0xA1:
			in.Op = OpSKNP
		}
	case 0xF:
		switch in.NN {
		case 0x07:
			in.Op = OpLDVxDT
		case 0x0A:
			in.Op = OpLDVxK
		case 0x15:
			in.Op = OpLDDTVx
		case 0x18:
			in.Op = OpLDSTVx
		case 0x1E:
			in.Op = OpADDI
		case 0x29:
			in.Op = OpLDF
		case 0x33:
			in.Op = OpLDB
		case 0x55:
			in.Op = OpSTRegs
		case 0x65:
			in.Op = OpLDRegs
		}
	}
	return in
}

// Encode builds the opcode from Op and the operand fields it uses. It is the
// inverse of Decode for every valid Op; OpInvalid encodes to Raw.
func (in Instruction) Encode() uint16 {
	x := in.X & 0xF
	xy := uint16(x)<<8 | uint16(in.Y&0xF)<<4
	xnn := uint16(x)<<8 | uint16(in.NN)
	addr := in.NNN & 0x0FFF
	switch in.Op {
	case OpSYS:
		return addr
	case OpCLS:
		return 0x00E0
	case OpRET:
		return 0x00EE
	case OpJP:
		return 0x1000 | addr
	case OpCALL:
		return 0x2000 | addr
	case OpSEImm:
		return 0x3000 | xnn
	case OpSNEImm:
		return 0x4000 | xnn
	case OpSEReg:
		return 0x5000 | xy
	case OpLDImm:
		return 0x6000 | xnn
	case OpADDImm:
		return 0x7000 | xnn
	case OpLDReg:
		return 0x8000 | xy
	case OpOR:
		return 0x8001 | xy
	case OpAND:
		return 0x8002 | xy
	case OpXOR:
		return 0x8003 | xy
	case OpADDReg:
		return 0x8004 | xy
	case OpSUB:
		return 0x8005 | xy
	case OpSHR:
		return 0x8006 | xy
	case OpSUBN:
		return 0x8007 | xy
	case OpSHL:
		return 0x800E | xy
	case OpSNEReg:
		return 0x9000 | xy
	case OpLDI:
		return 0xA000 | addr
	case OpJPV0:
		return 0xB000 | addr
	case OpRND:
		return 0xC000 | xnn
	case OpDRW:
		return 0xD000 | xy | uint16(in.N&0xF)
	case OpSKP:
		return 0xE09E | uint16(x)<<8
	case OpSKNP:
		return 0xE0A1 | uint16(x)<<8
	}

	fx := uint16(x) << 8
	switch in.Op {
	case OpLDVxDT:
		return 0xF007 | fx
	case OpLDVxK:
		return 0xF00A | fx
	case OpLDDTVx:
		return 0xF015 | fx
	case OpLDSTVx:
		return 0xF018 | fx
	case OpADDI:
		return 0xF01E | fx
	case OpLDF:
		return 0xF029 | fx
	case OpLDB:
		return 0xF033 | fx
	case OpSTRegs:
		return 0xF055 | fx
	case OpLDRegs:
		return 0xF065 | fx
	}
	return in.Raw
}

// String renders the instruction in assembler syntax.
func (in Instruction) String() string {
	name := in.Op.String()
	switch in.Op {
	case OpInvalid:
		return fmt.Sprintf("??? 0x%04X", in.Raw)
	case OpCLS, OpRET:
		return name
	case OpSYS, OpJP, OpCALL:
		return fmt.Sprintf("%s 0x%03X", name, in.NNN)
	case OpSEImm, OpSNEImm, OpLDImm, OpADDImm, OpRND:
		return fmt.Sprintf("%s V%X, 0x%02X", name, in.X, in.NN)
	case OpSEReg, OpSNEReg, OpLDReg, OpOR, OpAND, OpXOR, OpADDReg, OpSUB, OpSHR, OpSUBN, OpSHL:
		return fmt.Sprintf("%s V%X, V%X", name, in.X, in.Y)
	case OpLDI:
		return fmt.Sprintf("LD I, 0x%03X", in.NNN)
	case OpJPV0:
		return fmt.Sprintf("JP V0, 0x%03X", in.NNN)
	case OpDRW:
		return fmt.Sprintf("DRW V%X, V%X, %d", in.X, in.Y, in.N)
	case OpSKP, OpSKNP:
		return fmt.Sprintf("%s V%X", name, in.X)
	case OpLDVxDT:
		return fmt.Sprintf("LD V%X, DT", in.X)
	case OpLDVxK:
		return fmt.Sprintf("LD V%X, K", in.X)
	case OpLDDTVx:
		return fmt.Sprintf("LD DT, V%X", in.X)
	case OpLDSTVx:
		return fmt.Sprintf("LD ST, V%X", in.X)
	case OpADDI:
		return fmt.Sprintf("ADD I, V%X", in.X)
	case OpLDF:
		return fmt.Sprintf("LD F, V%X", in.X)
	case OpLDB:
		return fmt.Sprintf("LD B, V%X", in.X)
	case OpSTRegs:
		return fmt.Sprintf("LD [I], V%X", in.X)
	case OpLDRegs:
		return fmt.Sprintf("LD V%X, [I]", in.X)
	}
	return name
}
