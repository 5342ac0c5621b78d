// Package device provides the byte-addressable storage devices that the
// APE processor selects through its command (RDC) and data (RDR) registers.
//
// Every device keeps its own fault counter, separate from the processor's
// Interrupt flag. An access outside the device latches the counter to 1;
// reads then return zero and writes are dropped. Nothing here panics on a
// bad address.
package device

// Device defines the interface for all devices attached to the processor.
// Multi-byte values are big-endian.
type Device interface {
	// Capacity returns the number of addressable bytes.
	Capacity() uint64
	// Interrupt returns the device fault counter.
	Interrupt() int
	// Rewind clears the device fault counter.
	Rewind()

	Byte(address uint64) uint8
	SetByte(address uint64, value uint8)
	Word(address uint64) uint16
	SetWord(address uint64, value uint16)
	Dword(address uint64) uint32
	SetDword(address uint64, value uint32)
	Qword(address uint64) uint64
	SetQword(address uint64, value uint64)
}

// Get reads a big-endian value of 1, 2, 4 or 8 bytes.
func Get(dev Device, address uint64, bytes int) (value uint64) {
	switch bytes {
	case 1:
		value = uint64(dev.Byte(address))
	case 2:
		value = uint64(dev.Word(address))
	case 4:
		value = uint64(dev.Dword(address))
	case 8:
		value = dev.Qword(address)
	}
	return
}

// Set writes a big-endian value of 1, 2, 4 or 8 bytes.
func Set(dev Device, address uint64, bytes int, value uint64) {
	switch bytes {
	case 1:
		dev.SetByte(address, uint8(value))
	case 2:
		dev.SetWord(address, uint16(value))
	case 4:
		dev.SetDword(address, uint32(value))
	case 8:
		dev.SetQword(address, value)
	}
}
