package asm

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"gochip8/pkg/cpu"
)

// mnemonics lists every instruction name; all of them assemble to 2 bytes.
var mnemonics = map[string]struct{}{
	"CLS": {}, "RET": {}, "SYS": {}, "JP": {}, "CALL": {},
	"SE": {}, "SNE": {}, "LD": {}, "ADD": {},
	"OR": {}, "AND": {}, "XOR": {}, "SUB": {}, "SUBN": {}, "SHR": {}, "SHL": {},
	"RND": {}, "DRW": {}, "SKP": {}, "SKNP": {},
}

// aluOps are the two-register 8XY? forms.
var aluOps = map[string]cpu.Op{
	"OR":   cpu.OpOR,
	"AND":  cpu.OpAND,
	"XOR":  cpu.OpXOR,
	"SUB":  cpu.OpSUB,
	"SUBN": cpu.OpSUBN,
}

// specialOperands are the non-register names accepted by LD and ADD.
var specialOperands = map[string]struct{}{
	"I": {}, "[I]": {}, "DT": {}, "ST": {}, "K": {}, "F": {}, "B": {},
}

type Assembler struct {
	labels map[string]uint16
}

type parsedLine struct {
	lineNo   int
	labels   []string
	mnemonic string
	operands []string
}

func NewAssembler() *Assembler {
	return &Assembler{
		labels: make(map[string]uint16),
	}
}

// Assemble translates source into a program image that loads at 0x200. The
// source map is keyed by absolute address.
func Assemble(code string) ([]byte, map[uint16]int, error) {
	return NewAssembler().Assemble(code)
}

func (a *Assembler) Assemble(code string) ([]byte, map[uint16]int, error) {
	lines := strings.Split(code, "\n")

	if err := a.pass1(lines); err != nil {
		return nil, nil, err
	}

	return a.pass2(lines)
}

// Labels returns the resolved label addresses from the last Assemble call,
// keyed by upper-cased name.
func (a *Assembler) Labels() map[string]uint16 {
	out := make(map[string]uint16, len(a.labels))
	for k, v := range a.labels {
		out[k] = v
	}
	return out
}

func (a *Assembler) pass1(lines []string) error {
	address := uint32(cpu.ProgramStart)

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return err
		}

		for _, lbl := range p.labels {
			if address > cpu.MemorySize-1 {
				return errors.Errorf("label '%s' on line %d points past addressable memory", lbl, lineNo)
			}
			key := normalizeLabel(lbl)
			if _, exists := a.labels[key]; exists {
				return errors.Errorf("duplicate label '%s' on line %d", lbl, lineNo)
			}
			a.labels[key] = uint16(address)
		}

		if p.mnemonic == "" {
			continue
		}

		var length uint32
		switch p.mnemonic {
		case ".ORG":
			target, err := parseOrigin(p.operands, address, lineNo)
			if err != nil {
				return err
			}
			address = target
			continue
		case ".BYTE":
			if len(p.operands) == 0 {
				return errors.Errorf(".BYTE expects at least one operand on line %d", lineNo)
			}
			length = uint32(len(p.operands))
		case ".WORD":
			if len(p.operands) == 0 {
				return errors.Errorf(".WORD expects at least one operand on line %d", lineNo)
			}
			length = uint32(2 * len(p.operands))
		default:
			if _, ok := mnemonics[p.mnemonic]; !ok {
				return errors.Errorf("unknown instruction on line %d: %s", lineNo, p.mnemonic)
			}
			length = 2
		}

		if address+length > cpu.MemorySize {
			return errors.Errorf("program too large near line %d", lineNo)
		}
		address += length
	}

	return nil
}

func (a *Assembler) pass2(lines []string) ([]byte, map[uint16]int, error) {
	program := make([]byte, 0)
	sourceMap := make(map[uint16]int)

	for i, raw := range lines {
		lineNo := i + 1
		p, err := parseLine(raw, lineNo)
		if err != nil {
			return nil, nil, err
		}

		if p.mnemonic == "" {
			continue
		}

		address := cpu.ProgramStart + uint16(len(program))
		ops := p.operands

		switch p.mnemonic {
		case ".ORG":
			target, err := parseOrigin(ops, uint32(address), lineNo)
			if err != nil {
				return nil, nil, err
			}
			program = append(program, make([]byte, target-uint32(address))...)
			continue

		case ".BYTE":
			sourceMap[address] = lineNo
			for _, op := range ops {
				val, err := a.parseValue(op, 0xFF, lineNo)
				if err != nil {
					return nil, nil, err
				}
				program = append(program, byte(val))
			}
			continue

		case ".WORD":
			sourceMap[address] = lineNo
			for _, op := range ops {
				val, err := a.parseValue(op, 0xFFFF, lineNo)
				if err != nil {
					return nil, nil, err
				}
				program = append(program, byte(val>>8), byte(val))
			}
			continue
		}

		in, err := a.encode(p.mnemonic, ops, lineNo)
		if err != nil {
			return nil, nil, err
		}
		sourceMap[address] = lineNo
		word := in.Encode()
		program = append(program, byte(word>>8), byte(word))
	}

	return program, sourceMap, nil
}

// encode maps one mnemonic and its operands to an instruction.
func (a *Assembler) encode(mnemonic string, ops []string, lineNo int) (cpu.Instruction, error) {
	var in cpu.Instruction

	expect := func(n int) error {
		if len(ops) != n {
			return errors.Errorf("%s expects %d operands on line %d", mnemonic, n, lineNo)
		}
		return nil
	}

	switch mnemonic {
	case "CLS", "RET":
		if err := expect(0); err != nil {
			return in, err
		}
		in.Op = cpu.OpCLS
		if mnemonic == "RET" {
			in.Op = cpu.OpRET
		}
		return in, nil

	case "SYS", "CALL":
		if err := expect(1); err != nil {
			return in, err
		}
		addr, err := a.parseValue(ops[0], 0xFFF, lineNo)
		if err != nil {
			return in, err
		}
		in.Op = cpu.OpSYS
		if mnemonic == "CALL" {
			in.Op = cpu.OpCALL
		}
		in.NNN = addr
		return in, nil

	case "JP":
		target := ops
		in.Op = cpu.OpJP
		if len(ops) == 2 {
			if !strings.EqualFold(ops[0], "V0") {
				return in, errors.Errorf("JP offset must use V0 on line %d", lineNo)
			}
			in.Op = cpu.OpJPV0
			target = ops[1:]
		} else if err := expect(1); err != nil {
			return in, err
		}
		addr, err := a.parseValue(target[0], 0xFFF, lineNo)
		if err != nil {
			return in, err
		}
		in.NNN = addr
		return in, nil

	case "SE", "SNE":
		if err := expect(2); err != nil {
			return in, err
		}
		x, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return in, err
		}
		in.X = x
		if y, ok := registerIndex(ops[1]); ok {
			in.Y = y
			in.Op = cpu.OpSEReg
			if mnemonic == "SNE" {
				in.Op = cpu.OpSNEReg
			}
			return in, nil
		}
		nn, err := a.parseValue(ops[1], 0xFF, lineNo)
		if err != nil {
			return in, err
		}
		in.NN = uint8(nn)
		in.Op = cpu.OpSEImm
		if mnemonic == "SNE" {
			in.Op = cpu.OpSNEImm
		}
		return in, nil

	case "LD":
		if err := expect(2); err != nil {
			return in, err
		}
		return a.encodeLoad(ops[0], ops[1], lineNo)

	case "ADD":
		if err := expect(2); err != nil {
			return in, err
		}
		if strings.EqualFold(ops[0], "I") {
			x, err := parseRegister(ops[1], lineNo)
			if err != nil {
				return in, err
			}
			return cpu.Instruction{Op: cpu.OpADDI, X: x}, nil
		}
		x, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return in, err
		}
		in.X = x
		if y, ok := registerIndex(ops[1]); ok {
			in.Op, in.Y = cpu.OpADDReg, y
			return in, nil
		}
		nn, err := a.parseValue(ops[1], 0xFF, lineNo)
		if err != nil {
			return in, err
		}
		in.Op, in.NN = cpu.OpADDImm, uint8(nn)
		return in, nil

	case "OR", "AND", "XOR", "SUB", "SUBN":
		if err := expect(2); err != nil {
			return in, err
		}
		x, y, err := parseRegisterPair(ops[0], ops[1], lineNo)
		if err != nil {
			return in, err
		}
		return cpu.Instruction{Op: aluOps[mnemonic], X: x, Y: y}, nil

	case "SHR", "SHL":
		// The source register defaults to the destination.
		if len(ops) == 1 {
			ops = []string{ops[0], ops[0]}
		}
		if err := expect(2); err != nil {
			return in, err
		}
		x, y, err := parseRegisterPair(ops[0], ops[1], lineNo)
		if err != nil {
			return in, err
		}
		in.Op = cpu.OpSHR
		if mnemonic == "SHL" {
			in.Op = cpu.OpSHL
		}
		in.X, in.Y = x, y
		return in, nil

	case "RND":
		if err := expect(2); err != nil {
			return in, err
		}
		x, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return in, err
		}
		nn, err := a.parseValue(ops[1], 0xFF, lineNo)
		if err != nil {
			return in, err
		}
		return cpu.Instruction{Op: cpu.OpRND, X: x, NN: uint8(nn)}, nil

	case "DRW":
		if err := expect(3); err != nil {
			return in, err
		}
		x, y, err := parseRegisterPair(ops[0], ops[1], lineNo)
		if err != nil {
			return in, err
		}
		n, err := a.parseValue(ops[2], 0xF, lineNo)
		if err != nil {
			return in, err
		}
		return cpu.Instruction{Op: cpu.OpDRW, X: x, Y: y, N: uint8(n)}, nil

	case "SKP", "SKNP":
		if err := expect(1); err != nil {
			return in, err
		}
		x, err := parseRegister(ops[0], lineNo)
		if err != nil {
			return in, err
		}
		in.Op = cpu.OpSKP
		if mnemonic == "SKNP" {
			in.Op = cpu.OpSKNP
		}
		in.X = x
		return in, nil
	}

	return in, errors.Errorf("unknown instruction on line %d: %s", lineNo, mnemonic)
}

// encodeLoad handles the many LD forms.
func (a *Assembler) encodeLoad(dst, src string, lineNo int) (cpu.Instruction, error) {
	d, s := strings.ToUpper(dst), strings.ToUpper(src)

	if _, special := specialOperands[d]; special {
		if d == "I" {
			addr, err := a.parseValue(src, 0xFFF, lineNo)
			if err != nil {
				return cpu.Instruction{}, err
			}
			return cpu.Instruction{Op: cpu.OpLDI, NNN: addr}, nil
		}

		x, err := parseRegister(src, lineNo)
		if err != nil {
			return cpu.Instruction{}, err
		}
		ops := map[string]cpu.Op{
			"DT":  cpu.OpLDDTVx,
			"ST":  cpu.OpLDSTVx,
			"F":   cpu.OpLDF,
			"B":   cpu.OpLDB,
			"[I]": cpu.OpSTRegs,
		}
		op, ok := ops[d]
		if !ok {
			return cpu.Instruction{}, errors.Errorf("cannot load into %s on line %d", dst, lineNo)
		}
		return cpu.Instruction{Op: op, X: x}, nil
	}

	x, err := parseRegister(dst, lineNo)
	if err != nil {
		return cpu.Instruction{}, err
	}
	switch s {
	case "DT":
		return cpu.Instruction{Op: cpu.OpLDVxDT, X: x}, nil
	case "K":
		return cpu.Instruction{Op: cpu.OpLDVxK, X: x}, nil
	case "[I]":
		return cpu.Instruction{Op: cpu.OpLDRegs, X: x}, nil
	}
	if y, ok := registerIndex(src); ok {
		return cpu.Instruction{Op: cpu.OpLDReg, X: x, Y: y}, nil
	}
	nn, err := a.parseValue(src, 0xFF, lineNo)
	if err != nil {
		return cpu.Instruction{}, err
	}
	return cpu.Instruction{Op: cpu.OpLDImm, X: x, NN: uint8(nn)}, nil
}

func parseOrigin(ops []string, address uint32, lineNo int) (uint32, error) {
	if len(ops) != 1 {
		return 0, errors.Errorf(".ORG expects exactly one operand on line %d", lineNo)
	}
	target, err := strconv.ParseUint(ops[0], 0, 32)
	if err != nil {
		return 0, errors.Errorf("invalid .ORG value on line %d: %s", lineNo, ops[0])
	}
	if target >= cpu.MemorySize || target < uint64(cpu.ProgramStart) {
		return 0, errors.Errorf(".ORG out of range on line %d: %s", lineNo, ops[0])
	}
	if uint32(target) < address {
		return 0, errors.Errorf("cannot move origin backward on line %d", lineNo)
	}
	return uint32(target), nil
}

func parseLine(raw string, lineNo int) (parsedLine, error) {
	p := parsedLine{lineNo: lineNo}

	line := strings.TrimSpace(stripComments(raw))
	if line == "" {
		return p, nil
	}

	for {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			break
		}

		beforeColon := strings.TrimSpace(line[:colon])
		if strings.ContainsAny(beforeColon, " \t") {
			break
		}

		if !isIdentifier(beforeColon) {
			return p, errors.Errorf("invalid label '%s' on line %d", beforeColon, lineNo)
		}

		p.labels = append(p.labels, beforeColon)
		line = strings.TrimSpace(line[colon+1:])
		if line == "" {
			return p, nil
		}
	}

	fields := strings.Fields(normalizeInstructionText(line))
	if len(fields) == 0 {
		return p, nil
	}

	p.mnemonic = strings.ToUpper(fields[0])
	if len(fields) > 1 {
		p.operands = fields[1:]
	}

	return p, nil
}

func stripComments(line string) string {
	semicolon := strings.Index(line, ";")
	doubleSlash := strings.Index(line, "//")

	cut := -1
	if semicolon >= 0 {
		cut = semicolon
	}
	if doubleSlash >= 0 && (cut == -1 || doubleSlash < cut) {
		cut = doubleSlash
	}
	if cut >= 0 {
		return line[:cut]
	}
	return line
}

// normalizeInstructionText turns operand separators into spaces and glues
// "[ I ]" back into a single token.
func normalizeInstructionText(line string) string {
	line = strings.ReplaceAll(line, ",", " ")
	line = strings.NewReplacer("[ ", "[", " ]", "]").Replace(line)
	return line
}

// registerIndex parses V0-VF.
func registerIndex(token string) (uint8, bool) {
	if len(token) != 2 || (token[0] != 'V' && token[0] != 'v') {
		return 0, false
	}
	n, err := strconv.ParseUint(token[1:], 16, 8)
	if err != nil {
		return 0, false
	}
	return uint8(n), true
}

func parseRegister(token string, lineNo int) (uint8, error) {
	if n, ok := registerIndex(token); ok {
		return n, nil
	}
	return 0, errors.Errorf("invalid register '%s' on line %d", token, lineNo)
}

func parseRegisterPair(a, b string, lineNo int) (uint8, uint8, error) {
	x, err := parseRegister(a, lineNo)
	if err != nil {
		return 0, 0, err
	}
	y, err := parseRegister(b, lineNo)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}

// parseValue resolves a numeric literal or label and checks it against limit.
func (a *Assembler) parseValue(token string, limit uint16, lineNo int) (uint16, error) {
	if value, err := strconv.ParseUint(token, 0, 32); err == nil {
		if value > uint64(limit) {
			return 0, errors.Errorf("immediate out of range on line %d: %s", lineNo, token)
		}
		return uint16(value), nil
	}

	label := normalizeLabel(token)
	if addr, ok := a.labels[label]; ok {
		if addr > limit {
			return 0, errors.Errorf("label '%s' out of range on line %d", token, lineNo)
		}
		return addr, nil
	}

	if isIdentifier(token) {
		return 0, errors.Errorf("undefined label '%s' on line %d", token, lineNo)
	}

	return 0, errors.Errorf("invalid immediate '%s' on line %d", token, lineNo)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' {
				return false
			}
			continue
		}

		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}

	return true
}

func normalizeLabel(label string) string {
	return strings.ToUpper(label)
}
