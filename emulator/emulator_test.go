package emulator

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ezrec/ape/cpu"
	"github.com/ezrec/ape/device"
)

const helloText = "Hello, world!"

var helloSource = []string{
	"; copy a string from ROM into RAM",
	"ram:    .dword RAM_DEVICE",
	"rom:    .dword ROM_DEVICE",
	`msg:    .string "Hello, world!"`,
	"        .org ENTRY",
	"        mov.d [ram] rm0",
	"        mov.d [rom] rm1",
	"        mov.d [msg] rm2",
	"        mov.d $(msg+4) rm3",
	"        mov 0 rs0",
	"        mov 0 rs1",
	"loop:   jz.b rm2 done",
	"        mov.d rm1 rdr",
	"        mov.b [rm3] rs0",
	"        mov.d rm0 rdr",
	"        mov.b rs0 [rs1]",
	"        mov.d rm1 rdr",
	"        inc rs1",
	"        inc rm3",
	"        dec rm2",
	"        jmp.b loop",
	"done:   halt",
}

func helloEncoded() []byte {
	enc := cpu.NewEncoder(nil)
	enc.Value(cpu.SIZE_DWORD, RAM_DEVICE)
	enc.Value(cpu.SIZE_DWORD, ROM_DEVICE)
	enc.String(helloText)
	enc.FillUntil(ENTRY)

	enc.MovAbs(cpu.SIZE_DWORD, cpu.REG_RM0, 0, true)
	enc.MovAbs(cpu.SIZE_DWORD, cpu.REG_RM1, 4, true)
	enc.MovAbs(cpu.SIZE_DWORD, cpu.REG_RM2, 8, true)
	enc.MovImm(cpu.SIZE_DWORD, cpu.REG_RM3, false, 12)
	enc.MovImm(cpu.SIZE_QWORD, cpu.REG_RS0, false, 0)
	enc.MovImm(cpu.SIZE_QWORD, cpu.REG_RS1, false, 0)

	loop := enc.Offset()
	enc.JumpIf(cpu.SIZE_BYTE, cpu.REG_RM2, 0, true)
	enc.Mov(cpu.SIZE_DWORD, cpu.REG_RM1, cpu.REG_RDR, false, false)
	enc.Mov(cpu.SIZE_BYTE, cpu.REG_RM3, cpu.REG_RS0, true, false)
	enc.Mov(cpu.SIZE_DWORD, cpu.REG_RM0, cpu.REG_RDR, false, false)
	enc.Mov(cpu.SIZE_BYTE, cpu.REG_RS0, cpu.REG_RS1, false, true)
	enc.Mov(cpu.SIZE_DWORD, cpu.REG_RM1, cpu.REG_RDR, false, false)
	enc.Inc(cpu.REG_RS1)
	enc.Inc(cpu.REG_RM3)
	enc.Dec(cpu.REG_RM2)
	enc.Jump(cpu.SIZE_BYTE, cpu.Relative(enc.Offset(), loop))

	done := enc.Offset()
	enc.Halt()

	enc.SetOffset(loop)
	enc.JumpIf(cpu.SIZE_BYTE, cpu.REG_RM2, cpu.Relative(loop, done), true)

	return enc.Bytes()
}

func doAssemble(emu *Emulator, program []string, t *testing.T) {
	assert := assert.New(t)

	asm := &cpu.Assembler{}
	for name, value := range emu.Defines() {
		asm.Predefine(name, value)
	}

	prog, err := asm.Parse(strings.NewReader(strings.Join(program, "\n")))
	if !assert.NoError(err) {
		t.FailNow()
	}
	emu.Program = prog

	err = emu.Reset()
	if !assert.NoError(err) {
		t.FailNow()
	}
}

func TestEmulator(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	assert.False(emu.Verbose)
	assert.NotNil(emu.Cpu)
	assert.Equal(uint64(RAM_SIZE), emu.Ram.Capacity())

	dev, err := emu.Cpu.GetDevice(RAM_DEVICE)
	assert.NoError(err)
	assert.Equal(cpu.Device(emu.Ram), dev)

	// No program loaded.
	err = emu.Reset()
	assert.ErrorIs(err, device.ErrImageEmpty)
}

func TestEmulatorDefines(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	defines := map[string]string{}
	for name, value := range emu.Defines() {
		defines[name] = value
	}

	assert.Equal("0", defines["RAM_DEVICE"])
	assert.Equal("4096", defines["ROM_DEVICE"])
	assert.Equal("1024", defines["ENTRY"])
	assert.Equal("0x1000000", defines["RAM_SIZE"])
	assert.Contains(defines, "FLAG_INTERRUPT")
}

func TestEmulatorReset(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	emu.Ram.Data[7] = 0x55
	emu.Cpu.Registers.Get(cpu.REG_RM0).Value = 0x1234

	emu.Program = &cpu.Program{Image: helloEncoded(), Entry: ENTRY}
	err := emu.Reset()
	assert.NoError(err)

	assert.Equal(uint8(0), emu.Ram.Data[7])
	assert.Equal(uint64(0), emu.Cpu.Registers.Get(cpu.REG_RM0).Value)
	assert.Equal(uint64(ROM_DEVICE), emu.Cpu.Registers.RDC().Value)
	assert.Equal(uint64(ROM_DEVICE), emu.Cpu.Registers.RDR().Value)
	assert.Equal(uint64(ENTRY), emu.Ip())
	assert.Equal(uint64(0), emu.Ticks())

	dev, err := emu.Cpu.GetDevice(ROM_DEVICE)
	assert.NoError(err)
	assert.Equal(cpu.Device(emu.Rom), dev)
	assert.Equal(emu.Program.Image, emu.Rom.Data)
}

func TestEmulatorHelloEncoded(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	emu.Program = &cpu.Program{Image: helloEncoded(), Entry: ENTRY}
	assert.NoError(emu.Reset())

	err := emu.Run(context.Background(), 0)
	assert.NoError(err)

	assert.True(emu.Completed())
	assert.False(emu.Interrupt())
	assert.Equal([]byte(helloText), emu.Ram.Data[:len(helloText)])
	assert.Equal(uint8(0), emu.Ram.Data[len(helloText)])
	assert.Equal(0, emu.Ram.Interrupt())
	assert.Equal(0, emu.Rom.Interrupt())

	// 6 setup, 10 per character, the final jz, and halt.
	assert.Equal(uint64(6+10*len(helloText)+1+1), emu.Ticks())
}

func TestEmulatorHelloAssembled(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	doAssemble(emu, helloSource, t)

	assert.Equal(helloEncoded(), emu.Program.Image)
	assert.Equal(uint64(ENTRY), emu.Program.Entry)
	assert.Equal(uint64(8), emu.Program.Label["msg"])

	var done bool
	var err error
	for !done {
		line := emu.LineNo()
		assert.NotEqual(0, line)
		assert.Equal(line, emu.Program.Debug(emu.Ip()).LineNo)
		assert.True(emu.Code().Defined(), helloSource[line-1])
		done, err = emu.Tick()
		if !assert.NoError(err, helloSource[line-1]) {
			t.FailNow()
		}
	}

	assert.Equal(len(helloSource), emu.Program.Debug(emu.Ip()).LineNo)
	assert.Equal([]byte(helloText), emu.Ram.Data[:len(helloText)])
}

func TestEmulatorMemoryFault(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	doAssemble(emu, []string{
		"mov rm0 rdr",
		"mov.d [0xffffff00] rm1",
		"halt",
	}, t)

	done, err := emu.Tick()
	assert.NoError(err)
	assert.False(done)

	done, err = emu.Tick()
	assert.False(done)
	assert.ErrorIs(err, ErrMemoryFault)

	var runtime *ErrRuntime
	if assert.True(errors.As(err, &runtime)) {
		assert.Equal(2, runtime.LineNo)
	}
	assert.Equal(1, emu.Ram.Interrupt())
}

func TestEmulatorDeviceMissing(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	doAssemble(emu, []string{
		"mov.w 7 rdr",
		"",
		"mov.b [rm0] rm1",
		"halt",
	}, t)

	err := emu.Run(context.Background(), 0)
	assert.ErrorIs(err, cpu.ErrDeviceMissing)

	var runtime *ErrRuntime
	if assert.True(errors.As(err, &runtime)) {
		assert.Equal(3, runtime.LineNo)
	}
	assert.True(emu.Interrupt())
}

func TestEmulatorRunCancel(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	doAssemble(emu, []string{
		"here: jmp.b here",
	}, t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := emu.Run(ctx, 0)
	assert.ErrorIs(err, context.Canceled)
	assert.Equal(uint64(0), emu.Ticks())

	ctx, cancel = context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = emu.Run(ctx, time.Millisecond)
	assert.ErrorIs(err, context.DeadlineExceeded)
	assert.Less(uint64(0), emu.Ticks())
	assert.False(emu.Completed())
}

func TestEmulatorLoadImage(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()

	err := emu.LoadImage(bytes.NewReader(nil), ENTRY)
	assert.ErrorIs(err, device.ErrImageEmpty)

	err = emu.LoadImage(bytes.NewReader(helloEncoded()), ENTRY)
	assert.NoError(err)
	assert.Equal(helloEncoded(), emu.Program.Image)
	assert.Equal(uint64(ENTRY), emu.Program.Entry)

	assert.NoError(emu.Reset())
	assert.NoError(emu.Run(context.Background(), 0))
	assert.Equal([]byte(helloText), emu.Ram.Data[:len(helloText)])
}

func TestEmulatorLoadRam(t *testing.T) {
	assert := assert.New(t)

	emu := NewEmulator()
	doAssemble(emu, []string{
		"mov rm0 rdr",
		"mov.w [0x10] rm1",
		"halt",
	}, t)

	image := make([]byte, 0x12)
	image[0x10], image[0x11] = 0xbe, 0xef
	assert.NoError(emu.LoadRam(bytes.NewReader(image)))

	assert.NoError(emu.Run(context.Background(), 0))
	assert.Equal(uint64(0xbeef), emu.Cpu.Registers.Get(cpu.REG_RM1).Value)

	err := emu.LoadRam(bytes.NewReader(make([]byte, RAM_SIZE+1)))
	assert.ErrorIs(err, device.ErrImageTooLarge)
}
