package cpu

import (
	"iter"
	"strings"
)

// CodeRegister is a 4-bit register file address.
type CodeRegister int

//go:generate go tool stringer -linecomment -type=CodeRegister
const (
	REG_RM0  = CodeRegister(0)  // rm0
	REG_RM1  = CodeRegister(1)  // rm1
	REG_RM2  = CodeRegister(2)  // rm2
	REG_RM3  = CodeRegister(3)  // rm3
	REG_RS0  = CodeRegister(4)  // rs0
	REG_RS1  = CodeRegister(5)  // rs1
	REG_RS2  = CodeRegister(6)  // rs2
	REG_RS3  = CodeRegister(7)  // rs3
	REG_RIP  = CodeRegister(8)  // rip
	REG_RDC  = CodeRegister(9)  // rdc
	REG_RDR  = CodeRegister(10) // rdr
	REG_RPF  = CodeRegister(11) // rpf
	REG_RTX  = CodeRegister(12) // rtx
	REG_RLM  = CodeRegister(13) // rlm
	REG_RHM  = CodeRegister(14) // rhm
	REG_NONE = CodeRegister(15) // none
)

// REGISTER_COUNT is the number of addressable registers.
const REGISTER_COUNT = 15

// REG_STACK is the stack pointer used by the fixed push and pop forms.
const REG_STACK = REG_RS0

// Processor flag bits in RPF.
const (
	FLAG_INTERRUPT = 0  // Undefined opcode latch.
	FLAG_OVERFLOW  = 1  // Result of the last arithmetic op did not fit.
	FLAG_COMPLETED = 31 // Halt opcode executed.
)

// Valid returns true if the code addresses a real register.
func (cr CodeRegister) Valid() bool {
	return cr >= REG_RM0 && cr < REGISTER_COUNT
}

// RegisterFile is the processor register bank.
type RegisterFile struct {
	Register [REGISTER_COUNT]Register
}

// NewRegisterFile creates a zeroed register file.
func NewRegisterFile() (rf *RegisterFile) {
	rf = &RegisterFile{}
	for n := range rf.Register {
		rf.Register[n].Name = strings.ToUpper(CodeRegister(n).String())
	}

	return
}

// Get returns the register at index, or nil for an unassigned index.
func (rf *RegisterFile) Get(index CodeRegister) *Register {
	if !index.Valid() {
		return nil
	}

	return &rf.Register[index]
}

// Reset zeroes all registers.
func (rf *RegisterFile) Reset() {
	for n := range rf.Register {
		rf.Register[n].Value = 0
	}
}

// All iterates the registers in address order.
func (rf *RegisterFile) All() iter.Seq2[CodeRegister, *Register] {
	return func(yield func(CodeRegister, *Register) bool) {
		for n := range rf.Register {
			if !yield(CodeRegister(n), &rf.Register[n]) {
				return
			}
		}
	}
}

// String returns a one-line snapshot of all registers.
func (rf *RegisterFile) String() string {
	text := make([]string, 0, REGISTER_COUNT)
	for _, reg := range rf.All() {
		text = append(text, reg.String())
	}

	return strings.Join(text, ", ")
}

func (rf *RegisterFile) RIP() *Register { return &rf.Register[REG_RIP] }
func (rf *RegisterFile) RDC() *Register { return &rf.Register[REG_RDC] }
func (rf *RegisterFile) RDR() *Register { return &rf.Register[REG_RDR] }
func (rf *RegisterFile) RPF() *Register { return &rf.Register[REG_RPF] }
func (rf *RegisterFile) RTX() *Register { return &rf.Register[REG_RTX] }
