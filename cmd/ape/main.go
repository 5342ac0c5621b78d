// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/ezrec/ape/cpu"
	"github.com/ezrec/ape/emulator"
)

// defineList collects repeated -D NAME=VALUE flags.
type defineList []string

func (dl *defineList) String() string {
	return strings.Join(*dl, ",")
}

func (dl *defineList) Set(value string) error {
	name, _, ok := strings.Cut(value, "=")
	if !ok || len(name) == 0 {
		return ErrDefineSyntax(value)
	}
	*dl = append(*dl, value)
	return nil
}

// dumpRegisters writes the register file in as many columns as fit width.
func dumpRegisters(w io.Writer, rf *cpu.RegisterFile, width int) {
	const cell = 22 // "RIP  0123456789ABCDEF  "

	columns := max(1, width/cell)
	column := 0
	for _, reg := range rf.All() {
		fmt.Fprintf(w, "%-4v %016X", reg.Name, reg.Value)
		column++
		if column == columns {
			fmt.Fprintln(w)
			column = 0
		} else {
			fmt.Fprint(w, "  ")
		}
	}
	if column != 0 {
		fmt.Fprintln(w)
	}
}

func main() {
	var compile string
	var image string
	var output string
	var ram string
	var verbose bool
	var delay time.Duration
	var entry uint64
	var defines defineList

	flag.StringVar(&compile, "c", "", ".ape file to assemble")
	flag.StringVar(&image, "i", "", "Raw image file to run")
	flag.StringVar(&output, "o", "", "RAM dump file")
	flag.StringVar(&ram, "m", "", "RAM image to load before running")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")
	flag.DurationVar(&delay, "delay", 0, "Delay between ticks")
	flag.Uint64Var(&entry, "entry", emulator.ENTRY, "Entry offset of a raw image")
	flag.Var(&defines, "D", "Predefine NAME=VALUE (repeatable)")

	flag.Parse()

	if flag.NArg() != 0 {
		log.Fatalf("%v: Unknown arguments: %v", os.Args[0], flag.Args())
	}

	if (len(compile) == 0) == (len(image) == 0) {
		log.Fatalf("%v: exactly one of -c or -i is required", os.Args[0])
	}

	emu := emulator.NewEmulator()
	emu.Verbose = verbose

	// Assemble a new program.
	if len(compile) != 0 {
		inf, err := os.Open(compile)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
		defer inf.Close()

		asm := &cpu.Assembler{Verbose: verbose}
		for name, value := range emu.Defines() {
			asm.Predefine(name, value)
		}
		for _, define := range defines {
			name, value, _ := strings.Cut(define, "=")
			asm.Predefine(name, value)
		}

		emu.Program, err = asm.Parse(inf)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}

		if verbose {
			log.Printf("%v:\n%v", compile, emu.Program)
		}
	}

	// Load a raw image.
	if len(image) != 0 {
		inf, err := os.Open(image)
		if err != nil {
			log.Fatalf("%v: %v", image, err)
		}
		defer inf.Close()

		err = emu.LoadImage(inf, entry)
		if err != nil {
			log.Fatalf("%v: %v", image, err)
		}
	}

	err := emu.Reset()
	if err != nil {
		log.Fatalf("%v: %v", os.Args[0], err)
	}

	// Preload RAM.
	if len(ram) != 0 {
		inf, err := os.Open(ram)
		if err != nil {
			log.Fatalf("%v: %v", ram, err)
		}
		defer inf.Close()

		err = emu.LoadRam(inf)
		if err != nil {
			log.Fatalf("%v: %v", ram, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	runErr := emu.Run(ctx, delay)

	width := 80
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if cols, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = cols
		}
	}
	dumpRegisters(os.Stdout, emu.Cpu.Registers, width)
	fmt.Printf("ticks %d, completed %v, interrupt %v, overflow %v\n",
		emu.Ticks(), emu.Completed(), emu.Interrupt(), emu.Overflow())

	if len(output) != 0 {
		ouf, err := os.Create(output)
		if err != nil {
			log.Fatalf("%v: %v", output, err)
		}
		err = emu.Ram.Marshal(ouf)
		if err == nil {
			err = ouf.Close()
		}
		if err != nil {
			log.Fatalf("%v: %v", output, err)
		}
	}

	if runErr != nil {
		log.Fatalf("%v: %v", os.Args[0], runErr)
	}
}
