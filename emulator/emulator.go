// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package emulator runs assembled APE programs with a standard device layout:
// writable RAM at device 0 and the program image as ROM at device 4096.
package emulator

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log"
	"maps"
	"time"

	"github.com/ezrec/ape/cpu"
	"github.com/ezrec/ape/device"
	"github.com/ezrec/ape/internal"
)

const (
	RAM_DEVICE = 0                // Device id of the primary RAM.
	ROM_DEVICE = 4096             // Device id of the program ROM.
	RAM_SIZE   = 16 * 1024 * 1024 // Capacity of the primary RAM.
	ENTRY      = 1024             // Conventional entry offset within the ROM.
)

var _emulator_defines = map[string]string{
	"RAM_DEVICE": fmt.Sprintf("%v", RAM_DEVICE),
	"ROM_DEVICE": fmt.Sprintf("%v", ROM_DEVICE),
	"RAM_SIZE":   fmt.Sprintf("%#x", RAM_SIZE),
	"ENTRY":      fmt.Sprintf("%v", ENTRY),
}

// Emulator state. CPU + RAM + program ROM.
type Emulator struct {
	Verbose  bool         // If set, enables verbose logging.
	*cpu.Cpu              // Reference to the CPU simulation.
	Program  *cpu.Program // Reference to the currently running program listing.

	Ram *device.Memory         // Primary RAM, at RAM_DEVICE.
	Rom *device.ConstantMemory // Program image, at ROM_DEVICE. Set by Reset.
}

// NewEmulator creates a new emulator.
func NewEmulator() (emu *Emulator) {
	emu = &Emulator{
		Cpu:     cpu.NewCpu(),
		Program: &cpu.Program{},
		Ram:     device.NewMemory(RAM_SIZE),
	}

	emu.Cpu.SetDevice(RAM_DEVICE, emu.Ram)

	return
}

// Defines returns an iterator over all of the defines
func (emu *Emulator) Defines() iter.Seq2[string, string] {
	return internal.IterSeq2Concat(maps.All(_emulator_defines),
		emu.Cpu.Defines(),
	)
}

// Reset loads the program image into ROM, clears RAM, and primes the
// registers to start at the program entry.
func (emu *Emulator) Reset() (err error) {
	if len(emu.Program.Image) == 0 {
		err = device.ErrImageEmpty
		return
	}

	emu.Cpu.Verbose = emu.Verbose
	emu.Ram.Verbose = emu.Verbose

	emu.Rom = device.NewConstantMemory(emu.Program.Image)
	emu.Rom.Verbose = emu.Verbose
	emu.Cpu.SetDevice(ROM_DEVICE, emu.Rom)

	emu.Ram.Clear()

	emu.Cpu.Reset()
	emu.Cpu.Registers.RDC().Value = ROM_DEVICE
	emu.Cpu.Registers.RDR().Value = ROM_DEVICE
	emu.Cpu.Registers.RIP().Value = emu.Program.Entry

	if emu.Verbose {
		log.Printf("emulator: reset, %d byte image, entry 0x%x", len(emu.Program.Image), emu.Program.Entry)
	}

	return
}

// LoadImage makes a raw image the current program, starting at entry.
func (emu *Emulator) LoadImage(r io.Reader, entry uint64) (err error) {
	rom, err := device.NewConstantMemoryFrom(r)
	if err != nil {
		return
	}

	emu.Program = &cpu.Program{Image: rom.Data, Entry: entry}

	return
}

// LoadRam replaces the RAM contents with an image. Use after Reset, which
// clears RAM.
func (emu *Emulator) LoadRam(r io.Reader) (err error) {
	return emu.Ram.Unmarshal(r)
}

// Ticks returns the tick counter.
func (emu *Emulator) Ticks() uint64 {
	return emu.Cpu.Registers.RTX().Value
}

// Ip returns current instruction pointer.
func (emu *Emulator) Ip() uint64 {
	return emu.Cpu.Registers.RIP().Value
}

// Code returns the current instruction code from the listing.
func (emu *Emulator) Code() (code cpu.Code) {
	dbg := emu.Program.Debug(emu.Ip())
	if dbg.Opcode != nil {
		code = dbg.Code
	}

	return
}

// LineNo returns the current line number for the executing opcode.
func (emu *Emulator) LineNo() int {
	dbg := emu.Program.Debug(emu.Ip())
	if dbg.Opcode == nil {
		return 0
	}

	return dbg.LineNo
}

// Tick performs a single tick of the emulator.
func (emu *Emulator) Tick() (done bool, err error) {
	// Set CPU verbosity
	emu.Cpu.Verbose = emu.Verbose

	lineno := emu.LineNo()
	defer func() {
		if err != nil {
			err = &ErrRuntime{LineNo: lineno, Err: err}
		}
	}()

	err = emu.Cpu.Tick()
	if err != nil {
		return
	}

	if emu.Ram.Interrupt() != 0 {
		err = ErrMemoryFault
		return
	}

	done = emu.Cpu.Completed()

	return
}

// Run ticks until the program completes, fails, or ctx is done. A non-zero
// delay paces the ticks.
func (emu *Emulator) Run(ctx context.Context, delay time.Duration) (err error) {
	var pace <-chan time.Time
	if delay > 0 {
		ticker := time.NewTicker(delay)
		defer ticker.Stop()
		pace = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			return
		default:
		}

		var done bool
		done, err = emu.Tick()
		if err != nil || done {
			return
		}

		if pace != nil {
			select {
			case <-ctx.Done():
				err = ctx.Err()
				return
			case <-pace:
			}
		}
	}
}
