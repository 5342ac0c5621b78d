package cpu

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssembler(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{}

	prog, err := asm.Parse(strings.NewReader(""))
	assert.NoError(err)
	assert.Equal(0, len(prog.Opcodes))
	assert.Equal(0, len(prog.Image))
	assert.Equal(uint64(0), prog.Entry)
	assert.NotNil(prog.Label)

	assert.Equal("0", asm.Equate["LINENO"])
}

func opEqual(t *testing.T, expected, opcodes []Opcode) {
	assert := assert.New(t)

	assert.Equal(len(expected), len(opcodes))
	if len(expected) == len(opcodes) {
		for n := range len(expected) {
			assert.Equal(expected[n], opcodes[n])
		}
	}
}

func TestAssemblerEncoder(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{}
	program := []string{
		"start:",
		"  mov.b 3 rm0",
		"loop: jz.b rm0 done ; forward",
		"  dec rm0",
		"  inc rm1",
		"  jmp.b loop",
		"done:",
		"  mov rm1 [rm2]",
		"  mov.w [0x40] rs1",
		"  mov.d rm0 [0x44]",
		"  mov.b 'A' [rm3]",
		"  mov [rm0]   [rm1]",
		"  push rm1",
		"  pop.d rs1 rm2",
		"  add rm0 rm1",
		"  not.w rm2",
		"  jnz rm0 rm1",
		"  halt",
	}

	prog, err := asm.Parse(strings.NewReader(strings.Join(program, "\n")))
	assert.NoError(err)
	if err != nil {
		t.Fatal(err)
	}

	enc := NewEncoder(nil)
	enc.MovImm(SIZE_BYTE, REG_RM0, false, 3)
	enc.JumpIf(SIZE_BYTE, REG_RM0, Relative(3, 11), true)
	enc.Dec(REG_RM0)
	enc.Inc(REG_RM1)
	enc.Jump(SIZE_BYTE, Relative(8, 3))
	enc.Mov(SIZE_QWORD, REG_RM1, REG_RM2, false, true)
	enc.MovAbs(SIZE_WORD, REG_RS1, 0x40, true)
	enc.MovAbs(SIZE_DWORD, REG_RM0, 0x44, false)
	enc.MovImm(SIZE_BYTE, REG_RM3, true, 'A')
	enc.Mov(SIZE_QWORD, REG_RM0, REG_RM1, true, true)
	enc.Push(SIZE_QWORD, REG_RM1)
	enc.PopFrom(SIZE_DWORD, REG_RS1, REG_RM2)
	enc.Add(SIZE_QWORD, REG_RM0, REG_RM1)
	enc.Not(SIZE_WORD, REG_RM2)
	enc.JumpIfReg(SIZE_QWORD, REG_RM0, REG_RM1, false)
	enc.Halt()

	assert.Equal(enc.Bytes(), prog.Image)
	assert.Equal(map[string]uint64{"start": 0, "loop": 3, "done": 11}, prog.Label)
	assert.Equal(uint64(0), prog.Entry)
	assert.Equal(16, len(prog.Opcodes))

	jz := prog.Opcodes[1]
	assert.Equal(3, jz.LineNo)
	assert.Equal(uint64(3), jz.Offset)
	assert.Equal("done", jz.LinkLabel)
	assert.Equal(uint64(8), jz.Code.Immediate)
	assert.Equal([]string{"jz.b", "rm0", "done"}, jz.Words)

	jmp := prog.Opcodes[4]
	assert.Equal("loop", jmp.LinkLabel)
	assert.Equal("jmp.b -5", jmp.Code.String())
}

func TestAssemblerRun(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{}
	program := []string{
		"  mov.b 5 rm0",
		"  mov.b 0 rm1",
		"top:",
		"  jz rm0 end",
		"  add rm1 rm0",
		"  dec rm0",
		"  jmp.w top",
		"end:",
		"  halt",
	}

	prog, err := asm.Parse(strings.NewReader(strings.Join(program, "\n")))
	assert.NoError(err)
	if err != nil {
		t.Fatal(err)
	}

	cpu, _ := newTestCpu(prog.Image)
	assert.NoError(runTestCpu(cpu))
	assert.True(cpu.Completed())
	assert.Equal(uint64(15), cpu.Registers.Get(REG_RM1).Value)
	assert.Equal(prog.Label["end"], cpu.Registers.RIP().Value)
}

func TestAssemblerData(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{}
	program := []string{
		"count: .qword 3",
		"msg: .string \"Hi\"",
		"ptr: .dword msg",
		"fwd: .word end",
		".org 0x20",
		"main: mov [count] rm0",
		"  halt",
		".entry main",
		"end:",
	}

	prog, err := asm.Parse(strings.NewReader(strings.Join(program, "\n")))
	assert.NoError(err)
	if err != nil {
		t.Fatal(err)
	}

	enc := NewEncoder(nil)
	enc.Value(SIZE_QWORD, 3)
	enc.String("Hi")
	enc.Value(SIZE_DWORD, 8)
	enc.Value(SIZE_WORD, 0x2b)
	enc.FillUntil(0x20)
	enc.MovAbs(SIZE_QWORD, REG_RM0, 0, true)
	enc.Halt()

	assert.Equal(enc.Bytes(), prog.Image)
	assert.Equal(uint64(0x20), prog.Entry)
	assert.Equal(uint64(0x2b), prog.Label["end"])
	assert.Equal(2, len(prog.Opcodes))
	assert.Equal("count", prog.Opcodes[0].LinkLabel)
}

func TestAssemblerEntry(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{}
	prog, err := asm.Parse(strings.NewReader(".org 1024\nnop\nhalt\n"))
	assert.NoError(err)
	assert.Equal(uint64(1024), prog.Entry)
	assert.Equal(1026, len(prog.Image))

	prog, err = asm.Parse(strings.NewReader("nop\n.entry 0x10\n"))
	assert.NoError(err)
	assert.Equal(uint64(0x10), prog.Entry)
}

func TestAssemblerJumpAbsolute(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{}
	prog, err := asm.Parse(strings.NewReader("nop\njmp there\nnop\nthere: halt\n"))
	assert.NoError(err)
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(MakeCodeJump(SIZE_QWORD, JUMP_IMM, 0, 0, 12), prog.Opcodes[1].Code)
	assert.Equal("jmp.q 0xc", prog.Opcodes[1].Code.String())
}

func TestAssemblerEqu(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{}
	asm.Predefine("BASE", "0x100")
	program := []string{
		".equ TEN 10",
		"mov TEN rm0",
		"mov $(TEN + TEN) rm1",
		".equ THIRTY $(2 * TEN + TEN)",
		"mov THIRTY rm2",
		"mov $(LINENO * 8) rm3",
		"mov.b rm0 [TEN]",
		"mov BASE rs0",
		"mov ~0 rs1",
		"mov -2 rs2",
		"mov.b '\\n' rs3",
	}

	prog, err := asm.Parse(strings.NewReader(strings.Join(program, "\n")))
	assert.NoError(err)
	if err != nil {
		t.Fatal(errors.Unwrap(err))
	}

	expected := []uint64{10, 20, 30, 48, 10, 0x100, 0xffff_ffff_ffff_ffff, 0xffff_ffff_ffff_fffe, '\n'}
	assert.Equal(len(expected), len(prog.Opcodes))
	for n, op := range prog.Opcodes {
		if n < len(expected) {
			assert.Equal(expected[n], op.Code.Immediate, op.Words)
		}
	}
	assert.Equal(MOVE_ABS_REG, CodeMoveOp(prog.Opcodes[4].Code.Inst()))
}

func TestAssemblerMacro(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{}
	program := []string{
		".macro COUNTDOWN reg",
		"@top:",
		"  jz.b reg @done",
		"  dec reg",
		"  jmp.b @top",
		"@done:",
		".endm",
		"mov.b 2 rm0",
		"COUNTDOWN rm0",
		"mov.b 3 rm1",
		"COUNTDOWN rm1",
		"halt",
	}

	prog, err := asm.Parse(strings.NewReader(strings.Join(program, "\n")))
	assert.NoError(err)
	if err != nil {
		t.Fatal(err)
	}

	expected := []Opcode{
		{8, 0, []string{"mov.b", "2", "rm0"}, MakeCodeMove(SIZE_BYTE, MOVE_REG_IMM, 0, REG_RM0, 2), ""},
		{3, 3, []string{"jz.b", "rm0", "COUNTDOWN_1_done"},
			MakeCodeJump(SIZE_BYTE, JUMP_ZERO_IMM, REG_RM0, 0, 7), "COUNTDOWN_1_done"},
		{4, 6, []string{"dec", "rm0"}, MakeCodeShort(SHORT_DEC, REG_RM0), ""},
		{5, 7, []string{"jmp.b", "COUNTDOWN_1_top"},
			MakeCodeJump(SIZE_BYTE, JUMP_IMM, 0, 0, 0xfc), "COUNTDOWN_1_top"},
		{10, 10, []string{"mov.b", "3", "rm1"}, MakeCodeMove(SIZE_BYTE, MOVE_REG_IMM, 0, REG_RM1, 3), ""},
		{3, 13, []string{"jz.b", "rm1", "COUNTDOWN_2_done"},
			MakeCodeJump(SIZE_BYTE, JUMP_ZERO_IMM, REG_RM1, 0, 7), "COUNTDOWN_2_done"},
		{4, 16, []string{"dec", "rm1"}, MakeCodeShort(SHORT_DEC, REG_RM1), ""},
		{5, 17, []string{"jmp.b", "COUNTDOWN_2_top"},
			MakeCodeJump(SIZE_BYTE, JUMP_IMM, 0, 0, 0xfc), "COUNTDOWN_2_top"},
		{12, 20, []string{"halt"}, MakeCodeHalt(), ""},
	}

	opEqual(t, expected, prog.Opcodes)

	cpu, _ := newTestCpu(prog.Image)
	assert.NoError(runTestCpu(cpu))
	assert.True(cpu.Completed())
	assert.Equal(uint64(0), cpu.Registers.Get(REG_RM0).Value)
	assert.Equal(uint64(0), cpu.Registers.Get(REG_RM1).Value)
}

func TestAssemblerReuse(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{}
	source := "here: jmp.b here\n"

	for range 2 {
		prog, err := asm.Parse(strings.NewReader(source))
		assert.NoError(err)
		assert.Equal([]byte{0xc0, 0x00, 0x00}, prog.Image)
		assert.Equal(1, len(prog.Opcodes))
	}
}

func TestAssemblerErrSyntax(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{}

	// Various syntax errors
	table := [](struct {
		prog string
		line int
	}){
		{"DUP:\nDUP:\n", 2},
		{"mov nothing! rm0", 1},
		{"mov $(\"aaa\") rm0", 1},
		{"mov $(more(\"aaa\")) rm0", 1},
		{"mov $(0x10000000000000000) rm0", 1},
		{"mov.b $(x) rm0", 1},
		{"mov.b 'ab' rm0", 1},
		{".equ", 1},
		{".equ A", 1},
		{".equ A 1\n.equ A 2\n", 2},
		{".macro A B C\n.endm\nA 1\n", 3},
		{".macro A B C\nB C\n.endm\nnop\nA invalid word\n", 5},
		{".macro A B\n.macro C\n.endm\n.endm", 2},
		{".macro A B\n.endm\n.macro A\n.endm\n", 3},
		{".macro A B\n.endm\n.endm\n", 3},
		{".macro A\nnop\n", 2},
		{".macro\n", 1},
		{"nop bad", 1},
		{"nop.b", 1},
		{"halt 1", 1},
		{"bogus", 1},
		{"mov.x rm0 rm1", 1},
		{"mov rm0", 1},
		{"mov rm0 rm1 rm2", 1},
		{"mov 1 2", 1},
		{"mov [1] [2]", 1},
		{"mov rm0 5", 1},
		{"push", 1},
		{"push 5", 1},
		{"pop rs0 rm0 rm1", 1},
		{"jmp", 1},
		{"jmp [rm0]", 1},
		{"nop\njmp nowhere\n", 2},
		{"jz rm0", 1},
		{"jz 5 rm0", 1},
		{"not 5", 1},
		{"add rm0", 1},
		{"add rm0 5", 1},
		{"inc", 1},
		{"inc.q rm0", 1},
		{"dec 4", 1},
		{".org 4\n.org 2\n", 2},
		{".bogus", 1},
		{".byte", 1},
		{".byte rm0", 1},
		{".string Hi", 1},
		{".string \"Hi", 1},
		{".word missing", 1},
		{"jmp.b far\n.org 0x200\nfar:\nhalt\n", 1},
		{"mov.b end rm0\n.org 0x100\nend:\n", 1},
		{".entry nowhere\n", 1},
	}

	for _, entry := range table {
		_, err := asm.Parse(strings.NewReader(entry.prog))
		var se *ErrSyntax
		assert.NotNil(err, entry.prog)
		if err != nil {
			assert.True(errors.As(err, &se), entry.prog)
			if se != nil {
				assert.Equal(entry.line, se.LineNo, entry.prog)
			}
		}
	}
}

func TestAssemblerErrors(t *testing.T) {
	assert := assert.New(t)

	asm := &Assembler{}

	table := [](struct {
		prog string
		err  error
	}){
		{"jmp.b far\n.org 0x200\nfar:\n", ErrTargetRange},
		{".org 4\n.org 2\n", ErrOffsetBackwards},
		{".string Hi", ErrStringSyntax},
		{"mov.z rm0 rm1", ErrSizeInvalid},
		{"add rm0 rm99", ErrRegisterInvalid},
		{"mov 1 2", ErrOpcodeInvalid},
		{"nop 1", ErrOpcodeExtraArgs},
		{"jz rm0", ErrOpcodeValueMissing},
		{".macro A\n", ErrMacroLonely},
		{".endm\n", ErrMacroLonelyEndm},
		{".nope\n", ErrDirectiveInvalid},
	}

	for _, entry := range table {
		_, err := asm.Parse(strings.NewReader(entry.prog))
		assert.ErrorIs(err, entry.err, entry.prog)
	}

	_, err := asm.Parse(strings.NewReader("jmp nowhere\n"))
	var lm ErrLabelMissing
	assert.True(errors.As(err, &lm))
	assert.Equal(ErrLabelMissing("nowhere"), lm)
}
