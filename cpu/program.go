package cpu

import (
	"fmt"
	"iter"
	"strings"
)

// Opcode is a single assembled instruction and the source that made it.
type Opcode struct {
	LineNo    int      // Source line number.
	Offset    uint64   // Offset of the instruction in the image.
	Words     []string // Source words, after equate expansion.
	Code      Code     // Encoded instruction.
	LinkLabel string   // Label the immediate was resolved from, if any.
}

// Program is an assembled program image and its listing.
type Program struct {
	Image   []byte            // Flat program image.
	Entry   uint64            // Offset of the first instruction to execute.
	Opcodes []Opcode          // Instructions, in image order.
	Label   map[string]uint64 // Label offsets.
}

// Debug locates an offset within the listing.
type Debug struct {
	*Opcode
	Index int // Byte index of the offset within the instruction.
}

// Debug returns the instruction covering offset, if any.
func (prog *Program) Debug(offset uint64) (dbg Debug) {
	for n, op := range prog.Opcodes {
		if offset >= op.Offset && offset < op.Offset+uint64(op.Code.Len()) {
			dbg = Debug{
				Opcode: &prog.Opcodes[n],
				Index:  int(offset - op.Offset),
			}
			break
		}
	}

	return
}

// Codes iterates over the instructions by offset.
func (prog *Program) Codes() iter.Seq2[uint64, Code] {
	return func(yield func(offset uint64, code Code) bool) {
		for _, op := range prog.Opcodes {
			if !yield(op.Offset, op.Code) {
				return
			}
		}
	}
}

// String returns a disassembly listing of the program.
func (prog *Program) String() string {
	var text strings.Builder
	for _, op := range prog.Opcodes {
		fmt.Fprintf(&text, "%08x: %-24v ; %d: %v\n", op.Offset, op.Code, op.LineNo, strings.Join(op.Words, " "))
	}

	return text.String()
}
