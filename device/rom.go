package device

import (
	"io"
	"slices"
)

// ConstantMemory is read-only storage. Any write attempt, at any address,
// latches the fault counter and leaves the contents untouched.
type ConstantMemory struct {
	Memory
}

var _ Device = (*ConstantMemory)(nil)

// NewConstantMemory creates a read-only device holding a copy of content.
func NewConstantMemory(content []byte) (rom *ConstantMemory) {
	rom = &ConstantMemory{
		Memory: Memory{Data: slices.Clone(content)},
	}

	return
}

// NewConstantMemoryFrom creates a read-only device from an image stream.
func NewConstantMemoryFrom(r io.Reader) (rom *ConstantMemory, err error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return
	}

	if len(content) == 0 {
		err = ErrImageEmpty
		return
	}

	rom = &ConstantMemory{
		Memory: Memory{Data: content},
	}

	return
}

func (rom *ConstantMemory) SetByte(address uint64, value uint8) {
	rom.fault(address, true)
}

func (rom *ConstantMemory) SetWord(address uint64, value uint16) {
	rom.fault(address, true)
}

func (rom *ConstantMemory) SetDword(address uint64, value uint32) {
	rom.fault(address, true)
}

func (rom *ConstantMemory) SetQword(address uint64, value uint64) {
	rom.fault(address, true)
}

// Clear resets the fault counter. Contents are never changed.
func (rom *ConstantMemory) Clear() {
	rom.interrupt = 0
}

// Unmarshal is not possible on read-only storage.
func (rom *ConstantMemory) Unmarshal(r io.Reader) (err error) {
	rom.fault(0, true)
	return ErrReadOnly
}
