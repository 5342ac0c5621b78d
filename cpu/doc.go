// Package cpu implements the processor, encoder and assembler for the APE
// system.
//
// The processor has fifteen 64-bit registers addressed by a 4-bit code:
// four general purpose (rm0-rm3), four stack/auxiliary (rs0-rs3), the
// instruction pointer (rip), the command and data device selectors (rdc,
// rdr), processor flags (rpf), a tick counter (rtx) and two reserved
// memory bounds (rlm, rhm). Instructions are fetched from the device
// selected by rdc and operate on the device selected by rdr; both are
// looked up again on every tick.
//
// Instructions are one opcode byte (category, sub-instruction and width),
// an optional operand byte holding two register addresses, and an optional
// big-endian immediate of the operand width. The Encoder emits exactly the
// bytes that Cpu.Tick decodes, and the Assembler parses a small assembly
// language into Encoder calls.
package cpu
