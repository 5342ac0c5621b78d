package device

import (
	"io"
	"log"
)

// MEMORY_DEFAULT_CAPACITY is the capacity used by a zero-sized NewMemory.
const MEMORY_DEFAULT_CAPACITY = 16 * 1024 * 1024

// Memory is writable, zero-initialized storage of fixed capacity.
type Memory struct {
	Verbose bool   // Set to log faults.
	Data    []byte // Backing storage; its length is the capacity.

	interrupt int
}

var _ Device = (*Memory)(nil)

// NewMemory creates a memory device of the given capacity in bytes.
func NewMemory(capacity uint64) (mem *Memory) {
	if capacity == 0 {
		capacity = MEMORY_DEFAULT_CAPACITY
	}

	mem = &Memory{
		Data: make([]byte, capacity),
	}

	return
}

// Capacity returns the size of the backing storage.
func (mem *Memory) Capacity() uint64 {
	return uint64(len(mem.Data))
}

// Interrupt returns the fault counter.
func (mem *Memory) Interrupt() int {
	return mem.interrupt
}

// Rewind clears the fault counter. Contents are kept.
func (mem *Memory) Rewind() {
	mem.interrupt = 0
}

// Clear zeroes the contents and the fault counter.
func (mem *Memory) Clear() {
	clear(mem.Data)
	mem.interrupt = 0
}

// fault latches the fault counter.
func (mem *Memory) fault(address uint64, write bool) {
	if mem.Verbose {
		log.Printf("memory: fault at 0x%x (write %v, capacity 0x%x)", address, write, len(mem.Data))
	}
	mem.interrupt = 1
}

// check gates an access on its first byte. The address equal to the
// capacity already faults.
func (mem *Memory) check(address uint64, write bool) (ok bool) {
	if address >= uint64(len(mem.Data)) {
		mem.fault(address, write)
		return
	}

	return true
}

// load reads a big-endian value without re-checking the trailing bytes.
// Bytes past the end of storage read as zero.
func (mem *Memory) load(address uint64, bytes int) (value uint64) {
	if !mem.check(address, false) {
		return
	}

	for n := range uint64(bytes) {
		value <<= 8
		if address+n < uint64(len(mem.Data)) {
			value |= uint64(mem.Data[address+n])
		}
	}

	return
}

// store writes a big-endian value without re-checking the trailing bytes.
// Bytes past the end of storage are dropped.
func (mem *Memory) store(address uint64, bytes int, value uint64) {
	if !mem.check(address, true) {
		return
	}

	for n := range uint64(bytes) {
		if address+n < uint64(len(mem.Data)) {
			mem.Data[address+n] = uint8(value >> (8 * (uint64(bytes) - n - 1)))
		}
	}
}

func (mem *Memory) Byte(address uint64) uint8 {
	return uint8(mem.load(address, 1))
}

func (mem *Memory) SetByte(address uint64, value uint8) {
	mem.store(address, 1, uint64(value))
}

func (mem *Memory) Word(address uint64) uint16 {
	return uint16(mem.load(address, 2))
}

func (mem *Memory) SetWord(address uint64, value uint16) {
	mem.store(address, 2, uint64(value))
}

func (mem *Memory) Dword(address uint64) uint32 {
	return uint32(mem.load(address, 4))
}

func (mem *Memory) SetDword(address uint64, value uint32) {
	mem.store(address, 4, uint64(value))
}

func (mem *Memory) Qword(address uint64) uint64 {
	return mem.load(address, 8)
}

func (mem *Memory) SetQword(address uint64, value uint64) {
	mem.store(address, 8, value)
}

// Marshal writes the entire contents to w.
func (mem *Memory) Marshal(w io.Writer) (err error) {
	_, err = w.Write(mem.Data)
	return
}

// Unmarshal loads the contents from r. Bytes beyond the image are zeroed.
// An image larger than the capacity is rejected.
func (mem *Memory) Unmarshal(r io.Reader) (err error) {
	image, err := io.ReadAll(r)
	if err != nil {
		return
	}

	if len(image) > len(mem.Data) {
		err = ErrImageTooLarge
		return
	}

	clear(mem.Data)
	copy(mem.Data, image)
	mem.interrupt = 0

	return
}
