package cpu

import (
	"log"
	"slices"
)

// Encoder emits instructions into a program image at a movable cursor.
//
// Labels are handled by the caller: record Offset() at the target, emit a
// placeholder jump, then SetOffset() back to the jump and emit it again with
// the real displacement.
type Encoder struct {
	Verbose bool // If set, logs every emitted instruction.

	image  []byte
	offset uint64
}

// NewEncoder creates an encoder writing into image, starting at offset 0.
// The image grows as needed.
func NewEncoder(image []byte) (enc *Encoder) {
	enc = &Encoder{
		image: image,
	}

	return
}

// Bytes returns the program image.
func (enc *Encoder) Bytes() []byte {
	return enc.image
}

// Offset returns the cursor.
func (enc *Encoder) Offset() uint64 {
	return enc.offset
}

// SetOffset moves the cursor.
func (enc *Encoder) SetOffset(offset uint64) {
	enc.offset = offset
}

// Relative returns the two's complement displacement from an instruction
// at offset from to offset to, suitable for any jump size.
func Relative(from, to uint64) uint64 {
	return to - from
}

// write places data at the cursor, growing the image if needed.
func (enc *Encoder) write(data ...byte) *Encoder {
	end := enc.offset + uint64(len(data))
	if end > uint64(len(enc.image)) {
		enc.image = slices.Grow(enc.image, int(end)-len(enc.image))
		enc.image = enc.image[:end]
	}

	copy(enc.image[enc.offset:], data)
	enc.offset = end

	return enc
}

// Emit writes an instruction at the cursor.
func (enc *Encoder) Emit(code Code) *Encoder {
	if enc.Verbose {
		log.Printf("encoder: %08x: %v", enc.offset, code)
	}

	return enc.write(code.Bytes()...)
}

// Byte writes a raw byte.
func (enc *Encoder) Byte(value uint8) *Encoder {
	return enc.write(value)
}

// Value writes a big-endian constant of the given size.
func (enc *Encoder) Value(size Size, value uint64) *Encoder {
	n := size.Bytes()
	data := make([]byte, n)
	for i := range n {
		data[i] = uint8(value >> (8 * (n - i - 1)))
	}

	return enc.write(data...)
}

// String writes a 4-byte big-endian length followed by the UTF-8 bytes.
func (enc *Encoder) String(text string) *Encoder {
	enc.Value(SIZE_DWORD, uint64(len(text)))

	return enc.write([]byte(text)...)
}

// FillUntil writes zeros up to, but not including, end.
func (enc *Encoder) FillUntil(end uint64) *Encoder {
	if enc.offset < end {
		enc.write(make([]byte, end-enc.offset)...)
	}

	return enc
}

// Nop emits a no-op.
func (enc *Encoder) Nop() *Encoder {
	return enc.Emit(MakeCodeNop())
}

// Halt emits the halt sentinel.
func (enc *Encoder) Halt() *Encoder {
	return enc.Emit(MakeCodeHalt())
}

// Mov emits a register or memory to register or memory move. A Ref flag
// makes that side a memory access at the address held in the register.
func (enc *Encoder) Mov(size Size, src, dst CodeRegister, srcRef, dstRef bool) *Encoder {
	op := MOVE_REG_REG
	if srcRef {
		op |= MOVE_REG_MEM
	}
	if dstRef {
		op |= MOVE_MEM_REG
	}

	return enc.Emit(MakeCodeMove(size, op, src, dst, 0))
}

// MovImm emits an immediate to register (or memory, if dstRef) move.
func (enc *Encoder) MovImm(size Size, dst CodeRegister, dstRef bool, value uint64) *Encoder {
	op := MOVE_REG_IMM
	if dstRef {
		op = MOVE_MEM_IMM
	}

	return enc.Emit(MakeCodeMove(size, op, 0, dst, value))
}

// MovAbs emits a move between a register and an absolute address. With
// load set the register is loaded from the address, otherwise the
// register is stored to it.
func (enc *Encoder) MovAbs(size Size, reg CodeRegister, address uint64, load bool) *Encoder {
	op := MOVE_ABS_REG
	if load {
		op = MOVE_REG_ABS
	}

	return enc.Emit(MakeCodeMove(size, op, 0, reg, address))
}

// Push emits a push of data onto the RS0 stack.
func (enc *Encoder) Push(size Size, data CodeRegister) *Encoder {
	return enc.Emit(MakeCodeStack(size, STACK_PUSH, REG_STACK, data))
}

// Pop emits a pop from the RS0 stack into data.
func (enc *Encoder) Pop(size Size, data CodeRegister) *Encoder {
	return enc.Emit(MakeCodeStack(size, STACK_POP, REG_STACK, data))
}

// PushTo emits a push of data onto the stack pointed to by stack.
func (enc *Encoder) PushTo(size Size, stack, data CodeRegister) *Encoder {
	return enc.Emit(MakeCodeStack(size, STACK_PUSH_TO, stack, data))
}

// PopFrom emits a pop into data from the stack pointed to by stack.
func (enc *Encoder) PopFrom(size Size, stack, data CodeRegister) *Encoder {
	return enc.Emit(MakeCodeStack(size, STACK_POP_FROM, stack, data))
}

// Jump emits an unconditional jump. The offset is relative to the start of
// this instruction, or absolute for SIZE_QWORD.
func (enc *Encoder) Jump(size Size, offset uint64) *Encoder {
	return enc.Emit(MakeCodeJump(size, JUMP_IMM, 0, 0, offset))
}

// JumpReg emits an unconditional jump by the value of reg.
func (enc *Encoder) JumpReg(size Size, reg CodeRegister) *Encoder {
	return enc.Emit(MakeCodeJump(size, JUMP_REG, 0, reg, 0))
}

// JumpIf emits a jump taken when cond is zero (or non-zero, if zero is
// false).
func (enc *Encoder) JumpIf(size Size, cond CodeRegister, offset uint64, zero bool) *Encoder {
	op := JUMP_ZERO_IMM
	if !zero {
		op = JUMP_NONZERO_IMM
	}

	return enc.Emit(MakeCodeJump(size, op, cond, 0, offset))
}

// JumpIfReg emits a conditional jump by the value of reg.
func (enc *Encoder) JumpIfReg(size Size, cond, reg CodeRegister, zero bool) *Encoder {
	op := JUMP_ZERO_REG
	if !zero {
		op = JUMP_NONZERO_REG
	}

	return enc.Emit(MakeCodeJump(size, op, cond, reg, 0))
}

func (enc *Encoder) Not(size Size, reg CodeRegister) *Encoder {
	return enc.Emit(MakeCodeBit(size, BIT_NOT, reg, 0))
}

func (enc *Encoder) And(size Size, left, right CodeRegister) *Encoder {
	return enc.Emit(MakeCodeBit(size, BIT_AND, left, right))
}

func (enc *Encoder) Or(size Size, left, right CodeRegister) *Encoder {
	return enc.Emit(MakeCodeBit(size, BIT_OR, left, right))
}

func (enc *Encoder) Xor(size Size, left, right CodeRegister) *Encoder {
	return enc.Emit(MakeCodeBit(size, BIT_XOR, left, right))
}

func (enc *Encoder) Add(size Size, left, right CodeRegister) *Encoder {
	return enc.Emit(MakeCodeMath(size, MATH_ADD, left, right))
}

func (enc *Encoder) Sub(size Size, left, right CodeRegister) *Encoder {
	return enc.Emit(MakeCodeMath(size, MATH_SUB, left, right))
}

func (enc *Encoder) Mul(size Size, left, right CodeRegister) *Encoder {
	return enc.Emit(MakeCodeMath(size, MATH_MUL, left, right))
}

func (enc *Encoder) Div(size Size, left, right CodeRegister) *Encoder {
	return enc.Emit(MakeCodeMath(size, MATH_DIV, left, right))
}

func (enc *Encoder) Mod(size Size, left, right CodeRegister) *Encoder {
	return enc.Emit(MakeCodeMath(size, MATH_MOD, left, right))
}

// Inc emits a single byte increment.
func (enc *Encoder) Inc(reg CodeRegister) *Encoder {
	return enc.Emit(MakeCodeShort(SHORT_INC, reg))
}

// Dec emits a single byte decrement.
func (enc *Encoder) Dec(reg CodeRegister) *Encoder {
	return enc.Emit(MakeCodeShort(SHORT_DEC, reg))
}
