package repl

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIncomplete_OpenBlocksContinue(t *testing.T) {
	assert.True(t, incomplete("fun f()"))
	assert.True(t, incomplete("if x == 1"))
	assert.True(t, incomplete("class A"))
	assert.True(t, incomplete("while true do"))
}

func TestIncomplete_CompleteChunksEvaluate(t *testing.T) {
	assert.False(t, incomplete("var x = 1"))
	assert.False(t, incomplete("fun f()\nend"))
	assert.False(t, incomplete("print(1 if true else 2)"))
}

func TestIncomplete_RealErrorsAreNotContinuations(t *testing.T) {
	assert.False(t, incomplete("var = 1"))
	assert.False(t, incomplete("1 +* 2"))
}

func TestReportError_Format(t *testing.T) {
	var buf bytes.Buffer
	ReportError(&buf, true, "script.jsr", 3, 7, "unexpected token")
	assert.Equal(t, "File script.jsr [line:3, col:7]:\nunexpected token\n", buf.String())

	buf.Reset()
	ReportError(&buf, true, "script.jsr", 3, 0, "unexpected token")
	assert.Equal(t, "File script.jsr [line:3]:\nunexpected token\n", buf.String())
}
