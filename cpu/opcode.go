package cpu

import (
	"fmt"
)

// Size is the 2-bit operand width code.
type Size int

//go:generate go tool stringer -linecomment -type=Size
const (
	SIZE_BYTE  = Size(0) // b
	SIZE_WORD  = Size(1) // w
	SIZE_DWORD = Size(2) // d
	SIZE_QWORD = Size(3) // q
)

var sizeToStep = [4]int{1, 2, 4, 8}

// Bytes returns the operand width in bytes.
func (size Size) Bytes() int {
	return sizeToStep[size&0b11]
}

// Bits returns the operand width in bits.
func (size Size) Bits() int {
	return size.Bytes() * 8
}

// Mask returns the mask of the low view selected by the size.
func (size Size) Mask() uint64 {
	return ^uint64(0) >> (64 - size.Bits())
}

// SignExtend sign extends the low view selected by the size to 64 bits.
func (size Size) SignExtend(value uint64) uint64 {
	shift := 64 - size.Bits()
	return uint64(int64(value<<shift) >> shift)
}

// CodeCategory is the 3-bit instruction family.
type CodeCategory int

//go:generate go tool stringer -linecomment -type=CodeCategory
const (
	CAT_NOP      = CodeCategory(0b000) // nop
	CAT_BIT      = CodeCategory(0b001) // bit
	CAT_STACK    = CodeCategory(0b010) // stack
	CAT_SHORT    = CodeCategory(0b011) // short
	CAT_MOVE     = CodeCategory(0b100) // move
	CAT_MATH     = CodeCategory(0b101) // math
	CAT_JUMP     = CodeCategory(0b110) // jump
	CAT_RESERVED = CodeCategory(0b111) // reserved
)

// CodeMoveOp is a move sub-instruction. Register-only forms take the
// source in the high nibble and the destination in the low nibble.
// Immediate forms use the low nibble only.
type CodeMoveOp int

const (
	MOVE_REG_REG = CodeMoveOp(0b000) // B <- A
	MOVE_REG_MEM = CodeMoveOp(0b001) // B <- [A]
	MOVE_MEM_REG = CodeMoveOp(0b010) // [B] <- A
	MOVE_MEM_MEM = CodeMoveOp(0b011) // [B] <- [A]
	MOVE_REG_IMM = CodeMoveOp(0b100) // B <- imm
	MOVE_MEM_IMM = CodeMoveOp(0b101) // [B] <- imm
	MOVE_REG_ABS = CodeMoveOp(0b110) // B <- [imm]
	MOVE_ABS_REG = CodeMoveOp(0b111) // [imm] <- B
)

// CodeStackOp is a stack sub-instruction.
type CodeStackOp int

const (
	STACK_PUSH     = CodeStackOp(0b000) // push B, stack in RS0
	STACK_POP      = CodeStackOp(0b001) // pop B, stack in RS0
	STACK_PUSH_TO  = CodeStackOp(0b010) // push B, stack in A
	STACK_POP_FROM = CodeStackOp(0b011) // pop B, stack in A
)

// CodeJumpOp is a jump sub-instruction.
type CodeJumpOp int

const (
	JUMP_IMM         = CodeJumpOp(0b000) // jump imm
	JUMP_REG         = CodeJumpOp(0b001) // jump B
	JUMP_ZERO_IMM    = CodeJumpOp(0b100) // if A == 0 jump imm
	JUMP_ZERO_REG    = CodeJumpOp(0b101) // if A == 0 jump B
	JUMP_NONZERO_IMM = CodeJumpOp(0b110) // if A != 0 jump imm
	JUMP_NONZERO_REG = CodeJumpOp(0b111) // if A != 0 jump B
)

// CodeBitOp is a bitwise sub-instruction.
type CodeBitOp int

const (
	BIT_NOT = CodeBitOp(0b000)
	BIT_AND = CodeBitOp(0b001)
	BIT_OR  = CodeBitOp(0b010)
	BIT_XOR = CodeBitOp(0b011)
)

// CodeMathOp is an arithmetic sub-instruction.
type CodeMathOp int

const (
	MATH_ADD = CodeMathOp(0b000)
	MATH_SUB = CodeMathOp(0b001)
	MATH_MUL = CodeMathOp(0b010)
	MATH_DIV = CodeMathOp(0b011)
	MATH_MOD = CodeMathOp(0b100)
)

// CodeShortOp is the mode bit of a single byte instruction.
type CodeShortOp int

const (
	SHORT_INC = CodeShortOp(0)
	SHORT_DEC = CodeShortOp(1)
)

// OPCODE_HALT is the halt sentinel, recognized before category decode.
const OPCODE_HALT = 0xff

// Code is a single decoded instruction: opcode byte, optional operand
// byte and optional immediate.
type Code struct {
	Op        uint8
	Args      uint8
	Immediate uint64
}

// makeCode creates an instruction from its fields.
func makeCode(cat CodeCategory, inst int, size Size, a, b CodeRegister, imm uint64) Code {
	code := Code{
		Op:   uint8(cat&0b111)<<5 | uint8(inst&0b111)<<2 | uint8(size&0b11),
		Args: uint8(a&0xf)<<4 | uint8(b&0xf),
	}
	if code.ImmediateNeed() > 0 {
		code.Immediate = imm & size.Mask()
	}

	return code
}

// MakeCodeNop creates a no-op instruction.
func MakeCodeNop() Code {
	return Code{Op: uint8(CAT_NOP) << 5}
}

// MakeCodeHalt creates the halt instruction.
func MakeCodeHalt() Code {
	return Code{Op: OPCODE_HALT}
}

// MakeCodeMove creates a move instruction.
func MakeCodeMove(size Size, op CodeMoveOp, a, b CodeRegister, imm uint64) Code {
	return makeCode(CAT_MOVE, int(op), size, a, b, imm)
}

// MakeCodeStack creates a stack instruction.
func MakeCodeStack(size Size, op CodeStackOp, stack, data CodeRegister) Code {
	return makeCode(CAT_STACK, int(op), size, stack, data, 0)
}

// MakeCodeJump creates a jump instruction.
func MakeCodeJump(size Size, op CodeJumpOp, cond, target CodeRegister, imm uint64) Code {
	return makeCode(CAT_JUMP, int(op), size, cond, target, imm)
}

// MakeCodeBit creates a bitwise instruction.
func MakeCodeBit(size Size, op CodeBitOp, left, right CodeRegister) Code {
	return makeCode(CAT_BIT, int(op), size, left, right, 0)
}

// MakeCodeMath creates an arithmetic instruction.
func MakeCodeMath(size Size, op CodeMathOp, left, right CodeRegister) Code {
	return makeCode(CAT_MATH, int(op), size, left, right, 0)
}

// MakeCodeShort creates a single byte increment or decrement.
func MakeCodeShort(op CodeShortOp, reg CodeRegister) Code {
	return Code{Op: uint8(CAT_SHORT)<<5 | uint8(op&1)<<4 | uint8(reg&0xf)}
}

// Halt returns true for the halt sentinel.
func (code Code) Halt() bool {
	return code.Op == OPCODE_HALT
}

// Category returns the instruction family.
func (code Code) Category() CodeCategory {
	return CodeCategory((code.Op >> 5) & 0b111)
}

// Inst returns the sub-instruction.
func (code Code) Inst() int {
	return int((code.Op >> 2) & 0b111)
}

// Size returns the operand width.
func (code Code) Size() Size {
	return Size(code.Op & 0b11)
}

// A returns the register in the high nibble of the operand byte.
func (code Code) A() CodeRegister {
	return CodeRegister((code.Args >> 4) & 0xf)
}

// B returns the register in the low nibble of the operand byte.
func (code Code) B() CodeRegister {
	return CodeRegister(code.Args & 0xf)
}

// ShortDecode decodes a single byte instruction.
func (code Code) ShortDecode() (op CodeShortOp, reg CodeRegister) {
	op = CodeShortOp((code.Op >> 4) & 1)
	reg = CodeRegister(code.Op & 0xf)
	return
}

// HasArgs returns true if an operand byte follows the opcode.
func (code Code) HasArgs() bool {
	if code.Halt() {
		return false
	}

	switch code.Category() {
	case CAT_NOP, CAT_SHORT, CAT_RESERVED:
		return false
	}

	return true
}

// ImmediateNeed returns the number of immediate bytes that follow the
// opcode and operand byte.
func (code Code) ImmediateNeed() int {
	if code.Halt() {
		return 0
	}

	inst := code.Inst()
	switch code.Category() {
	case CAT_MOVE:
		switch CodeMoveOp(inst) {
		case MOVE_REG_IMM, MOVE_MEM_IMM, MOVE_REG_ABS, MOVE_ABS_REG:
			return code.Size().Bytes()
		}
	case CAT_JUMP:
		switch CodeJumpOp(inst) {
		case JUMP_IMM, JUMP_ZERO_IMM, JUMP_NONZERO_IMM:
			return code.Size().Bytes()
		}
	}

	return 0
}

// Len returns the encoded length in bytes.
func (code Code) Len() int {
	n := 1
	if code.HasArgs() {
		n++
	}

	return n + code.ImmediateNeed()
}

// Defined returns false for reserved combinations, which fault when
// executed.
func (code Code) Defined() bool {
	if code.Halt() {
		return true
	}

	inst := code.Inst()
	switch code.Category() {
	case CAT_NOP, CAT_MOVE, CAT_SHORT:
		return true
	case CAT_STACK:
		return inst <= int(STACK_POP_FROM)
	case CAT_JUMP:
		return CodeJumpOp(inst) != 0b010 && CodeJumpOp(inst) != 0b011
	case CAT_BIT:
		return inst <= int(BIT_XOR)
	case CAT_MATH:
		return inst <= int(MATH_MOD)
	}

	return false
}

// Bytes returns the encoded instruction.
func (code Code) Bytes() (out []byte) {
	out = make([]byte, 0, code.Len())
	out = append(out, code.Op)
	if code.HasArgs() {
		out = append(out, code.Args)
	}

	need := code.ImmediateNeed()
	for n := range need {
		out = append(out, uint8(code.Immediate>>(8*(need-n-1))))
	}

	return
}

var moveFormat = map[CodeMoveOp]string{
	MOVE_REG_REG: "%[2]v %[3]v",
	MOVE_REG_MEM: "[%[2]v] %[3]v",
	MOVE_MEM_REG: "%[2]v [%[3]v]",
	MOVE_MEM_MEM: "[%[2]v] [%[3]v]",
	MOVE_REG_IMM: "%#[4]x %[3]v",
	MOVE_MEM_IMM: "%#[4]x [%[3]v]",
	MOVE_REG_ABS: "[%#[4]x] %[3]v",
	MOVE_ABS_REG: "%[3]v [%#[4]x]",
}

var bitName = [...]string{"not", "and", "or", "xor"}

var mathName = [...]string{"add", "sub", "mul", "div", "mod"}

// target formats a jump displacement.
func (code Code) target() string {
	if code.Size() == SIZE_QWORD {
		return fmt.Sprintf("%#x", code.Immediate)
	}

	return fmt.Sprintf("%+d", int64(code.Size().SignExtend(code.Immediate)))
}

// String returns the assembly language representation of this instruction.
func (code Code) String() (out string) {
	if code.Halt() {
		return "halt"
	}

	if !code.Defined() {
		return fmt.Sprintf(".byte %#02x", code.Op)
	}

	size := code.Size()
	inst := code.Inst()
	a, b := code.A(), code.B()

	switch code.Category() {
	case CAT_NOP:
		out = "nop"
	case CAT_SHORT:
		op, reg := code.ShortDecode()
		out = fmt.Sprintf("inc %v", reg)
		if op == SHORT_DEC {
			out = fmt.Sprintf("dec %v", reg)
		}
	case CAT_MOVE:
		out = fmt.Sprintf("mov.%v "+moveFormat[CodeMoveOp(inst)], size, a, b, code.Immediate)
	case CAT_STACK:
		switch CodeStackOp(inst) {
		case STACK_PUSH:
			out = fmt.Sprintf("push.%v %v", size, b)
		case STACK_POP:
			out = fmt.Sprintf("pop.%v %v", size, b)
		case STACK_PUSH_TO:
			out = fmt.Sprintf("push.%v %v %v", size, a, b)
		case STACK_POP_FROM:
			out = fmt.Sprintf("pop.%v %v %v", size, a, b)
		}
	case CAT_JUMP:
		switch CodeJumpOp(inst) {
		case JUMP_IMM:
			out = fmt.Sprintf("jmp.%v %v", size, code.target())
		case JUMP_REG:
			out = fmt.Sprintf("jmp.%v %v", size, b)
		case JUMP_ZERO_IMM:
			out = fmt.Sprintf("jz.%v %v %v", size, a, code.target())
		case JUMP_ZERO_REG:
			out = fmt.Sprintf("jz.%v %v %v", size, a, b)
		case JUMP_NONZERO_IMM:
			out = fmt.Sprintf("jnz.%v %v %v", size, a, code.target())
		case JUMP_NONZERO_REG:
			out = fmt.Sprintf("jnz.%v %v %v", size, a, b)
		}
	case CAT_BIT:
		if CodeBitOp(inst) == BIT_NOT {
			out = fmt.Sprintf("not.%v %v", size, a)
		} else {
			out = fmt.Sprintf("%v.%v %v %v", bitName[inst], size, a, b)
		}
	case CAT_MATH:
		out = fmt.Sprintf("%v.%v %v %v", mathName[inst], size, a, b)
	}

	return
}
