// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Macro represents a macro definition in the assembly language.
type Macro struct {
	LineNo int      // Line number of the macro definition.
	Args   []string // Arguments for the macro.
	Lines  []string // Lines of macro text to expand.
}

// Predefined system equates
var sysEquate = map[string]string{
	"LINENO": "0",
}

// dataLink is a data directive whose value is a label.
type dataLink struct {
	LineNo int
	Offset uint64
	Size   Size
	Label  string
}

// Assembler is a single pass macro assembler for the APE processor.
// Labels used before they are defined are backpatched once the source has
// been read.
type Assembler struct {
	Verbose bool     // If set, verbosely logs the assembler actions.
	Opcode  []Opcode // List of generated opcodes.

	predefine map[string]string   // Predefines
	Label     map[string]uint64   // Map of labels to image offsets.
	Equate    map[string]string   // Map of equates.
	Macro     map[string](*Macro) // Map of macros.

	enc        *Encoder
	entry      *operand
	links      []dataLink
	expansions int
}

// Predefine defines a new equate or redefines an existing equate.
func (asm *Assembler) Predefine(equ string, value string) {
	if asm.predefine == nil {
		asm.predefine = map[string]string{equ: value}
	} else {
		asm.predefine[equ] = value
	}
}

// regMap is a map of register names to register addresses.
var regMap = func() map[string]CodeRegister {
	regs := make(map[string]CodeRegister, REGISTER_COUNT)
	for n := range REGISTER_COUNT {
		reg := CodeRegister(n)
		regs[reg.String()] = reg
	}
	return regs
}()

// sizeMap maps mnemonic suffixes to operand sizes.
var sizeMap = map[string]Size{
	"b": SIZE_BYTE,
	"w": SIZE_WORD,
	"d": SIZE_DWORD,
	"q": SIZE_QWORD,
}

var labelRegexp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)

// valueOf returns the value of a simple word.
func (asm *Assembler) valueOf(word string) (value uint64, err error) {
	if len(word) == 0 {
		err = ErrOpcodeValueMissing
		return
	}
	invert := false
	if word[0] == '~' {
		invert = true
		word = word[1:]
	}
	if len(word) > 0 && word[0] == '\'' {
		// Character quotes should have been expanded into
		// values in parseLine()
		err = ErrParseCharacter(strings.Trim(word, "'"))
		return
	}

	value, err = strconv.ParseUint(word, 0, 64)
	if err != nil {
		var v64 int64
		v64, err = strconv.ParseInt(word, 0, 64)
		if err != nil {
			err = ErrParseNumber(word)
			return
		}
		value = uint64(v64)
	}

	if invert {
		value = ^value
	}

	return
}

// operand is a parsed instruction operand.
type operand struct {
	Reg   CodeRegister // Register, if IsReg.
	IsReg bool         // Operand names a register.
	Ref   bool         // Operand is in [brackets].
	Value uint64       // Immediate value.
	Label string       // Label the value comes from, if any.
}

// parseOperand parses a register, a [register], a value or a [value].
// Values may be labels, which are resolved now if already defined.
func (asm *Assembler) parseOperand(word string) (op operand, err error) {
	if strings.HasPrefix(word, "[") && strings.HasSuffix(word, "]") {
		op.Ref = true
		word = word[1 : len(word)-1]
	}

	op.Reg, op.IsReg = regMap[word]
	if op.IsReg {
		return
	}

	op.Value, err = asm.valueOf(word)
	if err == nil {
		return
	}

	if !labelRegexp.MatchString(word) {
		err = ErrParseValue(word)
		return
	}

	err = nil
	op.Label = word
	op.Value = asm.Label[word]

	return
}

// register parses a word that must be a plain register.
func (asm *Assembler) register(word string) (reg CodeRegister, err error) {
	reg, ok := regMap[word]
	if !ok {
		err = ErrRegisterInvalid
	}

	return
}

// parenEval does compile-time $(...) evaluations
func (asm *Assembler) parenEval(expr string) (value uint64, err error) {
	thread := starlark.Thread{}
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key, offset := range asm.Label {
		pred[key] = starlark.MakeUint64(offset)
	}
	for key, str := range asm.Equate {
		var v uint64
		v, err = asm.valueOf(str)
		if err != nil {
			// Ignore non-integer equates. They may be registers
			// or something else.
			err = nil
			continue
		}
		pred[key] = starlark.MakeUint64(v)
	}
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		return
	}
	st_rc, ok := dict["rc"]
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int, ok := st_rc.(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	value, ok = st_int.Uint64()
	if ok {
		return
	}
	st_int64, ok := st_int.Int64()
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	value = uint64(st_int64)
	return
}

var charRegexp = regexp.MustCompile(`'\\?[^']'`)

var parenRegexp = regexp.MustCompile(`\$\([^\$]*\)`)

// parseLine parses a single line into words, handling equates, labels and
// macro expansion.
func (asm *Assembler) parseLine(line string, lineno int) (words []string, err error) {
	// Set line number.
	asm.Equate["LINENO"] = fmt.Sprintf("%v", lineno)

	// A string literal runs to the end of the line.
	var quoted string
	if n := strings.IndexByte(line, '"'); n >= 0 {
		line, quoted = line[:n], strings.TrimSpace(line[n:])
	}

	// Do 'x' evaluations
	line = charRegexp.ReplaceAllStringFunc(line, func(word string) string {
		str := word[1 : len(word)-1]
		if str[0] == '\\' {
			str = str[1:]
			switch str {
			case "\\":
				str = "\\"
			case "n":
				str = "\n"
			case "r":
				str = "\r"
			case "t":
				str = "\t"
			case "0":
				str = "\000"
			case "e":
				str = "\033"
			default:
				return word
			}
		} else if len(str) != 1 {
			return word
		}
		return fmt.Sprintf("%v", str[0])
	})

	// Do $() evaluations
	line = parenRegexp.ReplaceAllStringFunc(line, func(str string) string {
		value, _err := asm.parenEval(str[2 : len(str)-1])
		if _err != nil {
			err = _err
		}
		return fmt.Sprintf("%#x", value)
	})
	if err != nil {
		return
	}

	words = strings.Fields(line)
	if len(quoted) > 0 {
		words = append(words, quoted)
	}

	if len(words) == 0 {
		return
	}

	// .equ CONST VALUE
	if words[0] == ".equ" {
		if len(words) != 3 {
			err = ErrEquateSyntax
			return
		}
		_, ok := asm.Equate[words[1]]
		if ok {
			err = ErrEquateDuplicate
			return
		}
		asm.Equate[words[1]] = words[2]
		words = words[:0]
		return
	}

	for n, word := range words {
		// Equates also apply inside [brackets].
		inner := strings.TrimSuffix(strings.TrimPrefix(word, "["), "]")
		equate, ok := asm.Equate[inner]
		if ok {
			words[n] = strings.Replace(word, inner, equate, 1)
		}
	}

	for strings.HasSuffix(words[0], ":") {
		label := words[0][:len(words[0])-1]
		_, ok := asm.Label[label]
		if ok {
			err = ErrLabelDuplicate
			return
		}

		if asm.Label == nil {
			asm.Label = make(map[string]uint64, 16)
		}
		asm.Label[label] = asm.enc.Offset()
		words = words[1:]
		if len(words) == 0 {
			return
		}
	}

	// .macro processing
	macro, ok := asm.Macro[words[0]]
	if ok {
		name := words[0]

		args := words[1:]
		if len(args) != len(macro.Args) {
			err = ErrMacroSyntax
			return
		}
		// Turn args into equs
		old_equate := maps.Clone(asm.Equate)
		for n, arg := range macro.Args {
			asm.Equate[arg] = words[1+n]
		}
		defer func() { asm.Equate = old_equate }()

		// '@' makes labels unique to this expansion.
		asm.expansions++
		unique := fmt.Sprintf("%v_%v_", name, asm.expansions)

		for n, line := range macro.Lines {
			lineno := macro.LineNo + n

			line = strings.ReplaceAll(line, "@", unique)
			words, err = asm.parseLine(line, lineno)
			if err != nil {
				err = &ErrMacro{Macro: name, Line: lineno, Err: err}
				err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
				return
			}

			err = asm.parseWords(words, lineno)
			if err != nil {
				err = &ErrMacro{Macro: name, Line: lineno, Err: err}
				err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
				return
			}
		}

		words = nil
		return
	}

	return
}

// Parse parses an input stream into a Program.
func (asm *Assembler) Parse(input io.Reader) (prog *Program, err error) {
	scanner := bufio.NewScanner(input)

	var line string
	var lineno int
	var macro *Macro

	defer func() {
		if err != nil {
			err = &ErrSyntax{LineNo: lineno, Line: line, Err: err}
		}
	}()

	asm.enc = NewEncoder(nil)
	asm.enc.Verbose = asm.Verbose
	asm.entry = nil
	asm.expansions = 0
	asm.links = asm.links[:0]
	clear(asm.Label)
	asm.Opcode = asm.Opcode[:0]
	if asm.Macro == nil {
		asm.Macro = make(map[string](*Macro))
	}
	clear(asm.Macro)
	asm.Equate = maps.Clone(sysEquate)
	for attr, val := range asm.predefine {
		asm.Equate[attr] = val
	}

	for scanner.Scan() {
		text := scanner.Text()
		lineno += 1

		if asm.Verbose {
			log.Printf("asm: %v: %v", lineno, text)
		}

		text_comment := strings.SplitN(text, ";", 2)
		line = strings.TrimSpace(text_comment[0])
		words := strings.Fields(line)

		// .macro NAME arg...
		if len(words) > 0 && words[0] == ".macro" {
			if macro != nil {
				err = ErrMacroNesting
				return
			}
			if len(words) < 2 {
				err = ErrMacroSyntax
				return
			}
			_, ok := asm.Macro[words[1]]
			if ok {
				err = ErrMacroDuplicate
				return
			}
			macro = &Macro{
				LineNo: lineno + 1,
			}
			if len(words) > 2 {
				macro.Args = words[2:]
			}
			asm.Macro[words[1]] = macro
			continue
		}

		if len(words) > 0 && words[0] == ".endm" {
			if macro == nil {
				err = ErrMacroLonelyEndm
				return
			}
			macro = nil
			continue
		}

		if macro != nil {
			macro.Lines = append(macro.Lines, line)
			continue
		}

		words, err = asm.parseLine(line, lineno)
		if err != nil {
			return
		}

		err = asm.parseWords(words, lineno)
		if err != nil {
			return
		}
	}

	err = scanner.Err()
	if err != nil {
		return
	}

	if macro != nil {
		err = ErrMacroLonely
		return
	}

	end := asm.enc.Offset()

	// Final linking of labels.
	for n := range asm.Opcode {
		op := &asm.Opcode[n]
		if len(op.LinkLabel) == 0 {
			continue
		}

		lineno, line = op.LineNo, strings.Join(op.Words, " ")
		err = asm.link(op)
		if err != nil {
			return
		}
	}

	for _, dl := range asm.links {
		lineno, line = dl.LineNo, dl.Label
		value, ok := asm.Label[dl.Label]
		if !ok {
			err = ErrLabelMissing(dl.Label)
			return
		}
		if value&^dl.Size.Mask() != 0 {
			err = ErrTargetRange
			return
		}
		asm.enc.SetOffset(dl.Offset)
		asm.enc.Value(dl.Size, value)
	}

	asm.enc.SetOffset(end)

	prog = &Program{
		Image:   slices.Clone(asm.enc.Bytes()),
		Opcodes: slices.Clone(asm.Opcode),
		Label:   maps.Clone(asm.Label),
	}

	switch {
	case asm.entry != nil && len(asm.entry.Label) > 0:
		var ok bool
		prog.Entry, ok = asm.Label[asm.entry.Label]
		if !ok {
			prog = nil
			err = ErrLabelMissing(asm.entry.Label)
			return
		}
	case asm.entry != nil:
		prog.Entry = asm.entry.Value
	case len(asm.Opcode) > 0:
		prog.Entry = asm.Opcode[0].Offset
	}
	if prog.Label == nil {
		prog.Label = map[string]uint64{}
	}

	return
}

// link re-emits an instruction with the final value of its label.
// Jump targets narrower than 64 bits are relative to the instruction.
func (asm *Assembler) link(op *Opcode) (err error) {
	value, ok := asm.Label[op.LinkLabel]
	if !ok {
		err = ErrLabelMissing(op.LinkLabel)
		return
	}

	code := op.Code
	size := code.Size()
	if code.Category() == CAT_JUMP && size != SIZE_QWORD {
		value = Relative(op.Offset, value)
		if size.SignExtend(value&size.Mask()) != value {
			err = ErrTargetRange
			return
		}
	} else if value&^size.Mask() != 0 {
		err = ErrTargetRange
		return
	}

	code.Immediate = value & size.Mask()
	op.Code = code

	asm.enc.SetOffset(op.Offset)
	asm.enc.Emit(code)

	return
}

// splitSize splits a mnemonic from its size suffix.
func splitSize(word string) (mnemonic string, size Size, sized bool, err error) {
	mnemonic, suffix, sized := strings.Cut(word, ".")
	size = SIZE_QWORD
	if !sized {
		return
	}

	size, ok := sizeMap[suffix]
	if !ok {
		err = ErrSizeInvalid
	}

	return
}

var bitMap = map[string]CodeBitOp{
	"and": BIT_AND,
	"or":  BIT_OR,
	"xor": BIT_XOR,
}

var mathMap = map[string]CodeMathOp{
	"add": MATH_ADD,
	"sub": MATH_SUB,
	"mul": MATH_MUL,
	"div": MATH_DIV,
	"mod": MATH_MOD,
}

// argCount checks the number of arguments to a mnemonic.
func argCount(args []string, low, high int) (err error) {
	switch {
	case len(args) < low:
		err = ErrOpcodeValueMissing
	case len(args) > high:
		err = ErrOpcodeExtraArgs
	}

	return
}

// parseWords evaluates the words in a line of assembly text.
func (asm *Assembler) parseWords(words []string, lineno int) (err error) {
	// no-op
	if len(words) == 0 {
		return
	}

	if strings.HasPrefix(words[0], ".") {
		return asm.parseDirective(words, lineno)
	}

	var code Code
	var label string
	var emitted bool

	offset := asm.enc.Offset()

	defer func() {
		if err != nil || !emitted {
			return
		}
		opcode := Opcode{LineNo: lineno, Offset: offset, Words: words, Code: code, LinkLabel: label}
		asm.Opcode = append(asm.Opcode, opcode)
		asm.enc.Emit(code)
	}()

	mnemonic, size, sized, err := splitSize(words[0])
	if err != nil {
		return
	}
	args := words[1:]

	switch mnemonic {
	case "nop", "halt", "inc", "dec":
		if sized {
			err = ErrSizeInvalid
			return
		}
	}

	switch mnemonic {
	case "nop":
		if err = argCount(args, 0, 0); err != nil {
			return
		}
		code = MakeCodeNop()
	case "halt":
		if err = argCount(args, 0, 0); err != nil {
			return
		}
		code = MakeCodeHalt()
	case "inc", "dec":
		if err = argCount(args, 1, 1); err != nil {
			return
		}
		var reg CodeRegister
		reg, err = asm.register(args[0])
		if err != nil {
			return
		}
		op := SHORT_INC
		if mnemonic == "dec" {
			op = SHORT_DEC
		}
		code = MakeCodeShort(op, reg)
	case "mov":
		if err = argCount(args, 2, 2); err != nil {
			return
		}
		code, label, err = asm.parseMove(size, args[0], args[1])
	case "push", "pop":
		if err = argCount(args, 1, 2); err != nil {
			return
		}
		regs := make([]CodeRegister, len(args))
		for n, arg := range args {
			regs[n], err = asm.register(arg)
			if err != nil {
				return
			}
		}
		op := STACK_PUSH
		switch {
		case mnemonic == "push" && len(regs) == 2:
			op = STACK_PUSH_TO
		case mnemonic == "pop" && len(regs) == 1:
			op = STACK_POP
		case mnemonic == "pop" && len(regs) == 2:
			op = STACK_POP_FROM
		}
		if len(regs) == 1 {
			regs = []CodeRegister{REG_STACK, regs[0]}
		}
		code = MakeCodeStack(size, op, regs[0], regs[1])
	case "jmp":
		if err = argCount(args, 1, 1); err != nil {
			return
		}
		code, label, err = asm.parseJump(size, JUMP_IMM, JUMP_REG, 0, args[0])
	case "jz", "jnz":
		if err = argCount(args, 2, 2); err != nil {
			return
		}
		var cond CodeRegister
		cond, err = asm.register(args[0])
		if err != nil {
			return
		}
		if mnemonic == "jz" {
			code, label, err = asm.parseJump(size, JUMP_ZERO_IMM, JUMP_ZERO_REG, cond, args[1])
		} else {
			code, label, err = asm.parseJump(size, JUMP_NONZERO_IMM, JUMP_NONZERO_REG, cond, args[1])
		}
	case "not":
		if err = argCount(args, 1, 1); err != nil {
			return
		}
		var reg CodeRegister
		reg, err = asm.register(args[0])
		if err != nil {
			return
		}
		code = MakeCodeBit(size, BIT_NOT, reg, 0)
	default:
		bit, is_bit := bitMap[mnemonic]
		math, is_math := mathMap[mnemonic]
		if !is_bit && !is_math {
			err = ErrOpcodeInvalid
			return
		}
		if err = argCount(args, 2, 2); err != nil {
			return
		}
		var left, right CodeRegister
		left, err = asm.register(args[0])
		if err != nil {
			return
		}
		right, err = asm.register(args[1])
		if err != nil {
			return
		}
		if is_bit {
			code = MakeCodeBit(size, bit, left, right)
		} else {
			code = MakeCodeMath(size, math, left, right)
		}
	}

	emitted = err == nil

	return
}

// parseMove parses the operands of a move, source first.
func (asm *Assembler) parseMove(size Size, srcWord, dstWord string) (code Code, label string, err error) {
	src, err := asm.parseOperand(srcWord)
	if err != nil {
		return
	}
	dst, err := asm.parseOperand(dstWord)
	if err != nil {
		return
	}

	switch {
	case src.IsReg && dst.IsReg:
		op := MOVE_REG_REG
		if src.Ref {
			op |= MOVE_REG_MEM
		}
		if dst.Ref {
			op |= MOVE_MEM_REG
		}
		code = MakeCodeMove(size, op, src.Reg, dst.Reg, 0)
	case !src.IsReg && !src.Ref && dst.IsReg:
		op := MOVE_REG_IMM
		if dst.Ref {
			op = MOVE_MEM_IMM
		}
		code = MakeCodeMove(size, op, 0, dst.Reg, src.Value)
		label = src.Label
	case !src.IsReg && src.Ref && dst.IsReg && !dst.Ref:
		code = MakeCodeMove(size, MOVE_REG_ABS, 0, dst.Reg, src.Value)
		label = src.Label
	case src.IsReg && !src.Ref && !dst.IsReg && dst.Ref:
		code = MakeCodeMove(size, MOVE_ABS_REG, 0, src.Reg, dst.Value)
		label = dst.Label
	default:
		err = ErrOpcodeInvalid
	}

	return
}

// parseJump parses a jump target: a register, a label or a number.
func (asm *Assembler) parseJump(size Size, immOp, regOp CodeJumpOp, cond CodeRegister, word string) (code Code, label string, err error) {
	target, err := asm.parseOperand(word)
	if err != nil {
		return
	}
	if target.Ref {
		err = ErrTargetInvalid
		return
	}

	if target.IsReg {
		code = MakeCodeJump(size, regOp, cond, target.Reg, 0)
		return
	}

	code = MakeCodeJump(size, immOp, cond, 0, target.Value)
	label = target.Label

	return
}

// parseDirective handles the assembler dot directives.
func (asm *Assembler) parseDirective(words []string, lineno int) (err error) {
	args := words[1:]

	switch words[0] {
	case ".org":
		if err = argCount(args, 1, 1); err != nil {
			return
		}
		var offset uint64
		offset, err = asm.valueOf(args[0])
		if err != nil {
			return
		}
		if offset < asm.enc.Offset() {
			err = ErrOffsetBackwards
			return
		}
		asm.enc.FillUntil(offset)
	case ".entry":
		if err = argCount(args, 1, 1); err != nil {
			return
		}
		var op operand
		op, err = asm.parseOperand(args[0])
		if err != nil {
			return
		}
		if op.IsReg || op.Ref {
			err = ErrTargetInvalid
			return
		}
		asm.entry = &op
	case ".byte", ".word", ".dword", ".qword":
		if err = argCount(args, 1, len(args)); err != nil {
			return
		}
		size := map[string]Size{
			".byte":  SIZE_BYTE,
			".word":  SIZE_WORD,
			".dword": SIZE_DWORD,
			".qword": SIZE_QWORD,
		}[words[0]]
		for _, arg := range args {
			var op operand
			op, err = asm.parseOperand(arg)
			if err != nil {
				return
			}
			if op.IsReg || op.Ref {
				err = ErrParseValue(arg)
				return
			}
			if len(op.Label) > 0 {
				asm.links = append(asm.links, dataLink{
					LineNo: lineno,
					Offset: asm.enc.Offset(),
					Size:   size,
					Label:  op.Label,
				})
			}
			asm.enc.Value(size, op.Value)
		}
	case ".string":
		if err = argCount(args, 1, 1); err != nil {
			return
		}
		var text string
		text, err = strconv.Unquote(args[0])
		if err != nil {
			err = ErrStringSyntax
			return
		}
		asm.enc.String(text)
	default:
		err = ErrDirectiveInvalid
	}

	return
}
