package cpu

import (
	"errors"
	"fmt"
	"iter"
	"log"
	"maps"
	"math/bits"

	"github.com/ezrec/ape/device"
)

// Device is a byte addressable device attached to the CPU.
type Device device.Device

var _cpu_defines = map[string]string{
	"FLAG_INTERRUPT": fmt.Sprintf("%v", FLAG_INTERRUPT),
	"FLAG_OVERFLOW":  fmt.Sprintf("%v", FLAG_OVERFLOW),
	"FLAG_COMPLETED": fmt.Sprintf("%v", FLAG_COMPLETED),
	"OPCODE_HALT":    fmt.Sprintf("%#x", OPCODE_HALT),
}

// Cpu is the simulation context for the APE processor.
type Cpu struct {
	Verbose bool // Set to enable verbose logging.

	Registers *RegisterFile     // Register bank.
	Devices   map[uint64]Device // Attached devices, by id.

	bus Register // Scratch register for staged transfers.
}

// NewCpu creates a new CPU with zeroed registers and no devices.
func NewCpu() (cpu *Cpu) {
	cpu = &Cpu{
		Registers: NewRegisterFile(),
		Devices:   make(map[uint64]Device),
		bus:       Register{Name: "BUS"},
	}

	return
}

// Defines for the cpu
func (cpu *Cpu) Defines() iter.Seq2[string, string] {
	return maps.All(_cpu_defines)
}

// Reset zeroes all registers. Devices stay attached.
func (cpu *Cpu) Reset() {
	if cpu.Verbose {
		log.Printf("cpu: reset")
	}

	cpu.Registers.Reset()
	cpu.bus.Value = 0
}

// SetDevice attaches a device at an id, replacing any device already
// there. A nil device detaches the id.
func (cpu *Cpu) SetDevice(id uint64, dev Device) {
	if dev == nil {
		delete(cpu.Devices, id)
		return
	}

	cpu.Devices[id] = dev
}

// GetDevice gets the device attached at an id.
func (cpu *Cpu) GetDevice(id uint64) (dev Device, err error) {
	dev, ok := cpu.Devices[id]
	if !ok {
		err = ErrDevice(id)
	}

	return
}

// CommandDevice returns the device selected by RDC.
func (cpu *Cpu) CommandDevice() (dev Device, err error) {
	return cpu.GetDevice(cpu.Registers.RDC().Value)
}

// DataDevice returns the device selected by RDR.
func (cpu *Cpu) DataDevice() (dev Device, err error) {
	return cpu.GetDevice(cpu.Registers.RDR().Value)
}

// Completed returns true once a halt opcode has executed.
func (cpu *Cpu) Completed() bool {
	return cpu.Registers.RPF().Flag(FLAG_COMPLETED)
}

// Interrupt returns true once an undefined opcode has been decoded.
func (cpu *Cpu) Interrupt() bool {
	return cpu.Registers.RPF().Flag(FLAG_INTERRUPT)
}

// Overflow returns true if the last arithmetic result did not fit.
func (cpu *Cpu) Overflow() bool {
	return cpu.Registers.RPF().Flag(FLAG_OVERFLOW)
}

// fault latches the Interrupt flag.
func (cpu *Cpu) fault() {
	if cpu.Verbose {
		log.Printf("cpu: interrupt at rip 0x%x", cpu.Registers.RIP().Value)
	}
	cpu.Registers.RPF().SetFlag(FLAG_INTERRUPT, true)
}

// String returns the current CPU state as a string.
func (cpu *Cpu) String() (text string) {
	for index, reg := range cpu.Registers.All() {
		val := reg.Value
		text += fmt.Sprintf("% 5s: %08X_%08X\n", index.String(), val>>32, val&0xffffffff)
	}

	return
}

// FetchCode reads the instruction at RIP from the command device and
// advances RIP past it. The halt sentinel is returned without advancing.
func (cpu *Cpu) FetchCode() (code Code, err error) {
	dev, err := cpu.CommandDevice()
	if err != nil {
		return
	}

	rip := cpu.Registers.RIP()

	code.Op = dev.Byte(rip.Value)
	if code.Halt() {
		return
	}
	rip.Value++

	if code.HasArgs() {
		code.Args = dev.Byte(rip.Value)
		rip.Value++
	}

	need := code.ImmediateNeed()
	if need > 0 {
		code.Immediate = device.Get(dev, rip.Value, need)
		rip.Value += uint64(need)
	}

	return
}

// Tick executes a single CPU instruction cycle.
//
// Faults in the program are latched in RPF or in the device fault
// counters, and do not return an error. An error is only returned when
// RDC or RDR select a device id that is not attached.
func (cpu *Cpu) Tick() (err error) {
	cpu.Registers.RTX().Inc()

	ip := cpu.Registers.RIP().Value

	code, err := cpu.FetchCode()
	if err != nil {
		cpu.fault()
		return
	}

	err = cpu.Execute(code, ip)

	return
}

// Execute executes a single decoded instruction that started at ip.
// RIP must already point past the instruction.
func (cpu *Cpu) Execute(code Code, ip uint64) (err error) {
	defer func() {
		if err != nil {
			cpu.fault()
			err = errors.Join(ErrOpcode(code), err)
		}
	}()

	if cpu.Verbose {
		log.Printf("cpu: %08x: %v", ip, code)
	}

	if code.Halt() {
		cpu.Registers.RPF().SetFlag(FLAG_COMPLETED, true)
		return
	}

	if !code.Defined() {
		cpu.fault()
		return
	}

	switch code.Category() {
	case CAT_NOP:
		// pass
	case CAT_SHORT:
		op, index := code.ShortDecode()
		reg := cpu.Registers.Get(index)
		if reg == nil {
			cpu.fault()
			return
		}
		if op == SHORT_INC {
			reg.Inc()
		} else {
			reg.Dec()
		}
	case CAT_MOVE:
		err = cpu.doMove(code)
	case CAT_STACK:
		err = cpu.doStack(code)
	case CAT_JUMP:
		cpu.doJump(code, ip)
	case CAT_BIT:
		cpu.doBit(code)
	case CAT_MATH:
		cpu.doMath(code)
	}

	return
}

// operands resolves the register addresses an instruction uses. A nil
// result means an unassigned address was used, and the fault is latched.
func (cpu *Cpu) operands(indexes ...CodeRegister) (regs []*Register) {
	regs = make([]*Register, len(indexes))
	for n, index := range indexes {
		regs[n] = cpu.Registers.Get(index)
		if regs[n] == nil {
			cpu.fault()
			return nil
		}
	}

	return
}

// doMove performs a move sub-instruction.
func (cpu *Cpu) doMove(code Code) (err error) {
	size := code.Size()
	n := size.Bytes()
	op := CodeMoveOp(code.Inst())

	var regs []*Register
	switch op {
	case MOVE_REG_REG, MOVE_REG_MEM, MOVE_MEM_REG, MOVE_MEM_MEM:
		regs = cpu.operands(code.A(), code.B())
	default:
		regs = cpu.operands(code.B())
	}
	if regs == nil {
		return
	}

	if op == MOVE_REG_REG {
		Move(regs[0], regs[1], size)
		return
	}
	if op == MOVE_REG_IMM {
		regs[0].Set(size, code.Immediate)
		return
	}

	dev, err := cpu.DataDevice()
	if err != nil {
		return
	}

	switch op {
	case MOVE_REG_MEM:
		src, dst := regs[0], regs[1]
		dst.Set(size, device.Get(dev, src.Value, n))
	case MOVE_MEM_REG:
		src, dst := regs[0], regs[1]
		device.Set(dev, dst.Value, n, src.Get(size))
	case MOVE_MEM_MEM:
		src, dst := regs[0], regs[1]
		cpu.bus.Value = 0
		cpu.bus.Set(size, device.Get(dev, src.Value, n))
		device.Set(dev, dst.Value, n, cpu.bus.Get(size))
	case MOVE_MEM_IMM:
		cpu.bus.Value = 0
		cpu.bus.Set(size, code.Immediate)
		device.Set(dev, regs[0].Value, n, cpu.bus.Get(size))
	case MOVE_REG_ABS:
		cpu.bus.Value = 0
		cpu.bus.Set(size, code.Immediate)
		regs[0].Set(size, device.Get(dev, cpu.bus.Value, n))
	case MOVE_ABS_REG:
		cpu.bus.Value = 0
		cpu.bus.Set(size, code.Immediate)
		device.Set(dev, cpu.bus.Value, n, regs[0].Get(size))
	}

	return
}

// doStack performs a stack sub-instruction. Push stores then advances the
// stack pointer; pop retreats the stack pointer then loads.
func (cpu *Cpu) doStack(code Code) (err error) {
	size := code.Size()
	n := size.Bytes()
	op := CodeStackOp(code.Inst())

	stack := REG_STACK
	if op == STACK_PUSH_TO || op == STACK_POP_FROM {
		stack = code.A()
	}

	regs := cpu.operands(stack, code.B())
	if regs == nil {
		return
	}
	sp, data := regs[0], regs[1]

	dev, err := cpu.DataDevice()
	if err != nil {
		return
	}

	switch op {
	case STACK_PUSH, STACK_PUSH_TO:
		device.Set(dev, sp.Value, n, data.Get(size))
		sp.Value += uint64(n)
	case STACK_POP, STACK_POP_FROM:
		sp.Value -= uint64(n)
		data.Set(size, device.Get(dev, sp.Value, n))
	}

	return
}

// jump sets RIP relative to the start of the jump instruction. A 64-bit
// target is absolute.
func (cpu *Cpu) jump(ip uint64, size Size, target uint64) {
	rip := cpu.Registers.RIP()
	if size == SIZE_QWORD {
		rip.Value = target
		return
	}

	rip.Value = ip + size.SignExtend(target&size.Mask())
}

// doJump performs a jump sub-instruction. Conditions test the full 64-bit
// register regardless of size.
func (cpu *Cpu) doJump(code Code, ip uint64) {
	size := code.Size()
	op := CodeJumpOp(code.Inst())

	switch op {
	case JUMP_IMM:
		cpu.jump(ip, size, code.Immediate)
	case JUMP_REG:
		regs := cpu.operands(code.B())
		if regs == nil {
			return
		}
		cpu.jump(ip, size, regs[0].Value)
	case JUMP_ZERO_IMM, JUMP_NONZERO_IMM:
		regs := cpu.operands(code.A())
		if regs == nil {
			return
		}
		if (regs[0].Value == 0) == (op == JUMP_ZERO_IMM) {
			cpu.jump(ip, size, code.Immediate)
		}
	case JUMP_ZERO_REG, JUMP_NONZERO_REG:
		regs := cpu.operands(code.A(), code.B())
		if regs == nil {
			return
		}
		if (regs[0].Value == 0) == (op == JUMP_ZERO_REG) {
			cpu.jump(ip, size, regs[1].Value)
		}
	}
}

// doBit performs a bitwise sub-instruction through the bus.
func (cpu *Cpu) doBit(code Code) {
	op := CodeBitOp(code.Inst())

	var regs []*Register
	if op == BIT_NOT {
		regs = cpu.operands(code.A(), code.A())
	} else {
		regs = cpu.operands(code.A(), code.B())
	}
	if regs == nil {
		return
	}
	left, right := regs[0], regs[1]

	switch op {
	case BIT_NOT:
		cpu.bus.Value = ^left.Value
	case BIT_AND:
		cpu.bus.Value = left.Value & right.Value
	case BIT_OR:
		cpu.bus.Value = left.Value | right.Value
	case BIT_XOR:
		cpu.bus.Value = left.Value ^ right.Value
	}

	Move(&cpu.bus, left, code.Size())
}

// doMath performs an arithmetic sub-instruction at 128-bit precision.
// Overflow is set when the exact result is negative or wider than the
// operand size. Division by zero faults and leaves the left register
// unchanged.
func (cpu *Cpu) doMath(code Code) {
	rpf := cpu.Registers.RPF()
	rpf.SetFlag(FLAG_OVERFLOW, false)

	regs := cpu.operands(code.A(), code.B())
	if regs == nil {
		return
	}
	left, right := regs[0], regs[1]
	size := code.Size()

	var hi, lo uint64
	var negative bool

	switch CodeMathOp(code.Inst()) {
	case MATH_ADD:
		lo, hi = bits.Add64(left.Value, right.Value, 0)
	case MATH_SUB:
		var borrow uint64
		lo, borrow = bits.Sub64(left.Value, right.Value, 0)
		negative = borrow != 0
	case MATH_MUL:
		hi, lo = bits.Mul64(left.Value, right.Value)
	case MATH_DIV, MATH_MOD:
		if right.Value == 0 {
			cpu.fault()
			return
		}
		if CodeMathOp(code.Inst()) == MATH_DIV {
			lo = left.Value / right.Value
		} else {
			lo = left.Value % right.Value
		}
	}

	overflow := negative || hi != 0 || (lo&^size.Mask()) != 0
	rpf.SetFlag(FLAG_OVERFLOW, overflow)

	cpu.bus.Value = lo
	Move(&cpu.bus, left, size)
}
