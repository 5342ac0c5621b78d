package cpu

import (
	"fmt"
)

// Register is a single 64-bit storage cell. All of the narrower views are
// computed from Value, and writing through a view leaves the other bits of
// Value untouched.
type Register struct {
	Name  string // Name, for diagnostics only.
	Value uint64 // Full 64-bit value.
}

// String returns the register name and value.
func (reg *Register) String() string {
	return fmt.Sprintf("%v = %X", reg.Name, reg.Value)
}

// Byte returns bits 0-7.
func (reg *Register) Byte() uint8 {
	return uint8(reg.Value)
}

// SetByte replaces bits 0-7.
func (reg *Register) SetByte(value uint8) {
	reg.Value = (reg.Value &^ 0xff) | uint64(value)
}

// HighByte returns bits 8-15.
func (reg *Register) HighByte() uint8 {
	return uint8(reg.Value >> 8)
}

// SetHighByte replaces bits 8-15.
func (reg *Register) SetHighByte(value uint8) {
	reg.Value = (reg.Value &^ 0xff00) | (uint64(value) << 8)
}

// Word returns bits 0-15.
func (reg *Register) Word() uint16 {
	return uint16(reg.Value)
}

// SetWord replaces bits 0-15.
func (reg *Register) SetWord(value uint16) {
	reg.Value = (reg.Value &^ 0xffff) | uint64(value)
}

// HighWord returns bits 16-31.
func (reg *Register) HighWord() uint16 {
	return uint16(reg.Value >> 16)
}

// SetHighWord replaces bits 16-31.
func (reg *Register) SetHighWord(value uint16) {
	reg.Value = (reg.Value &^ 0xffff_0000) | (uint64(value) << 16)
}

// Dword returns bits 0-31.
func (reg *Register) Dword() uint32 {
	return uint32(reg.Value)
}

// SetDword replaces bits 0-31.
func (reg *Register) SetDword(value uint32) {
	reg.Value = (reg.Value &^ 0xffff_ffff) | uint64(value)
}

// HighDword returns bits 32-63.
func (reg *Register) HighDword() uint32 {
	return uint32(reg.Value >> 32)
}

// SetHighDword replaces bits 32-63.
func (reg *Register) SetHighDword(value uint32) {
	reg.Value = (reg.Value & 0xffff_ffff) | (uint64(value) << 32)
}

// Get returns the low view selected by size, zero extended.
func (reg *Register) Get(size Size) uint64 {
	return reg.Value & size.Mask()
}

// Set replaces the low view selected by size.
func (reg *Register) Set(size Size, value uint64) {
	mask := size.Mask()
	reg.Value = (reg.Value &^ mask) | (value & mask)
}

// Flag returns bit n.
func (reg *Register) Flag(n int) bool {
	return (reg.Value>>n)&1 != 0
}

// SetFlag sets or clears bit n.
func (reg *Register) SetFlag(n int, value bool) {
	if value {
		reg.Value |= uint64(1) << n
	} else {
		reg.Value &^= uint64(1) << n
	}
}

// Inc adds one to the full value.
func (reg *Register) Inc() {
	reg.Value++
}

// Dec subtracts one from the full value.
func (reg *Register) Dec() {
	reg.Value--
}

// Move copies the low view of from, selected by size, into into.
func Move(from, into *Register, size Size) {
	into.Set(size, from.Value)
}
