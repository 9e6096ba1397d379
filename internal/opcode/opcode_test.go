package opcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOp_String(t *testing.T) {
	assert.Equal(t, "ADD", ADD.String())
	assert.Equal(t, "LOAD_CONST", LOAD_CONST.String())
	assert.Equal(t, "UNKNOWN_OP", Op(255).String())
}

func TestOp_Width(t *testing.T) {
	assert.Equal(t, 0, POP.Width())
	assert.Equal(t, 1, GET_LOCAL.Width())
	assert.Equal(t, 2, LOAD_CONST.Width())
	assert.Equal(t, 3, INVOKE.Width())
	assert.Equal(t, 4, TRY_PUSH.Width())
	assert.Equal(t, variableWidth, MAKE_CLOSURE.Width())
}

func TestDisassemble_SimpleSequence(t *testing.T) {
	code := []byte{
		byte(LOAD_CONST), 0, 0,
		byte(LOAD_NULL),
		byte(ADD),
		byte(RETURN),
	}
	lines := []int{1, 1, 1, 1, 1, 1}
	out := Disassemble("<test>", code, lines, func(idx uint16) string { return "k" })
	assert.Contains(t, out, "LOAD_CONST")
	assert.Contains(t, out, "LOAD_NULL")
	assert.Contains(t, out, "ADD")
	assert.Contains(t, out, "RETURN")
}
