package opcode

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ConstName resolves a constant-pool or name-pool index to its printable
// form for disassembly; the compiler and vm each supply their own
// formatter since the pool contents (Value vs. interned string) differ.
type ConstName func(idx uint16) string

// Disassemble renders code as one line per instruction: an offset, a
// source line (or "|" when unchanged from the previous instruction),
// the opcode name, and its decoded operands.
func Disassemble(name string, code []byte, lines []int, constName ConstName) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for off := 0; off < len(code); {
		off = disasmInstr(&b, code, lines, off, constName)
	}
	return b.String()
}

func disasmInstr(b *strings.Builder, code []byte, lines []int, off int, constName ConstName) int {
	op := Op(code[off])
	line := "   |"
	if off < len(lines) && (off == 0 || lines[off] != lines[off-1]) {
		line = fmt.Sprintf("%4d", lines[off])
	}
	fmt.Fprintf(b, "%04d %s %-16s", off, line, op)

	switch op {
	case MAKE_CLOSURE:
		next := off + 1
		idx := binary.BigEndian.Uint16(code[next:])
		next += 2
		fmt.Fprintf(b, " proto=%s", constName(idx))
		n := int(code[next])
		next++
		for i := 0; i < n; i++ {
			isLocal := code[next]
			index := code[next+1]
			next += 2
			kind := "upvalue"
			if isLocal != 0 {
				kind = "local"
			}
			fmt.Fprintf(b, " (%s %d)", kind, index)
		}
		b.WriteByte('\n')
		return next
	}

	w := op.Width()
	switch w {
	case 0:
		b.WriteByte('\n')
		return off + 1
	case 1:
		fmt.Fprintf(b, " %d\n", code[off+1])
		return off + 2
	case 2:
		v := binary.BigEndian.Uint16(code[off+1:])
		switch op {
		case LOAD_CONST, GET_GLOBAL, SET_GLOBAL, DEF_GLOBAL, GET_FIELD, SET_FIELD,
			MAKE_CLASS, METHOD, IMPORT, IMPORT_FROM, NATIVE_REF:
			fmt.Fprintf(b, " %d '%s'\n", v, constName(v))
		case JUMP, LOOP:
			fmt.Fprintf(b, " -> %04d\n", jumpTarget(op, off, v))
		case JUMP_IF_FALSE, JUMP_IF_TRUE, FOR_ITER:
			fmt.Fprintf(b, " -> %04d\n", off+3+int(v))
		default:
			fmt.Fprintf(b, " %d\n", v)
		}
		return off + 3
	case 3:
		name := binary.BigEndian.Uint16(code[off+1:])
		argc := code[off+3]
		fmt.Fprintf(b, " %d '%s' (%d args)\n", name, constName(name), argc)
		return off + 4
	case 4:
		a := binary.BigEndian.Uint16(code[off+1:])
		c := binary.BigEndian.Uint16(code[off+3:])
		fmt.Fprintf(b, " %d %d\n", a, c)
		return off + 5
	default:
		b.WriteByte('\n')
		return off + 1
	}
}

func jumpTarget(op Op, off int, operand uint16) int {
	if op == LOOP {
		return off + 3 - int(operand)
	}
	return off + 3 + int(operand)
}
