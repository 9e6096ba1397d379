package jstar

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jstar/internal/module"
	"jstar/value"
)

func newTestVM(t *testing.T) (*VM, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	j := NewVM(&Conf{
		Stdout: &out,
		OnError: func(path string, line, col int, msg string) {
			t.Logf("error %s [%d:%d]: %s", path, line, col, msg)
		},
	})
	return j, &out
}

func TestEvalString_Success(t *testing.T) {
	j, out := newTestVM(t)
	res := j.EvalString("__main__", "<test>", "print(1 + 2 * 3)")
	assert.Equal(t, Success, res)
	assert.Equal(t, "7\n", out.String())
}

func TestEvalString_SyntaxError(t *testing.T) {
	j, _ := newTestVM(t)
	var got []string
	j.onError = func(path string, line, col int, msg string) {
		got = append(got, fmt.Sprintf("%s:%d: %s", path, line, msg))
	}
	res := j.EvalString("__main__", "<test>", "var = 1")
	assert.Equal(t, SyntaxErr, res)
	assert.NotEmpty(t, got)
}

func TestEvalString_CompileError(t *testing.T) {
	j, _ := newTestVM(t)
	res := j.EvalString("__main__", "<test>", "break")
	assert.Equal(t, CompileErr, res)
}

func TestEvalString_RuntimeErrorLeavesException(t *testing.T) {
	j, _ := newTestVM(t)
	res := j.EvalString("__main__", "<test>", `raise Exception("bad")`)
	assert.Equal(t, RuntimeErr, res)
	assert.Contains(t, j.GetStacktrace(), "bad")
	assert.True(t, j.IsInstance(-1))
}

func TestCompileAndEvalBytecode(t *testing.T) {
	j, out := newTestVM(t)
	code, res := j.CompileString("<test>", `print("from bytecode")`)
	require.Equal(t, Success, res)
	require.NotEmpty(t, code)

	res = j.EvalBytecode("__main__", "<test>", code)
	assert.Equal(t, Success, res)
	assert.Equal(t, "from bytecode\n", out.String())
}

func TestEvalBytecode_BadMagicAndVersion(t *testing.T) {
	j, _ := newTestVM(t)
	assert.Equal(t, DeserializeErr, j.EvalBytecode("__main__", "<t>", []byte("garbage")))

	code, res := j.CompileString("<t>", "var x = 1")
	require.Equal(t, Success, res)
	code[4] = 0xff
	code[5] = 0xff
	assert.Equal(t, VersionErr, j.EvalBytecode("__main__", "<t>", code))
}

func TestStackPushPopAndQueries(t *testing.T) {
	j, _ := newTestVM(t)
	base := j.StackSize()
	j.EnsureStack(4)
	j.PushNumber(1.5)
	j.PushString("hi")
	j.PushBool(true)
	j.PushNull()

	assert.Equal(t, base+4, j.StackSize())
	assert.True(t, j.IsNull(-1))
	assert.True(t, j.IsBool(-2))
	assert.True(t, j.IsString(-3))
	assert.True(t, j.IsNumber(-4))

	s, ok := j.ToString(-3)
	require.True(t, ok)
	assert.Equal(t, "hi", s)

	j.PopN(4)
	assert.Equal(t, base, j.StackSize())
}

func TestCall_StackDiscipline(t *testing.T) {
	j, _ := newTestVM(t)
	require.Equal(t, Success, j.EvalString("__main__", "<t>", `
		fun add(a, b)
			return a + b
		end
	`))
	depth := j.StackSize()
	require.True(t, j.GetGlobal("__main__", "add"))
	j.PushNumber(2)
	j.PushNumber(3)
	require.Equal(t, Success, j.Call(2))

	// The callee slot was replaced by the result: net depth change +1.
	assert.Equal(t, depth+1, j.StackSize())
	n, ok := j.ToNumber(-1)
	require.True(t, ok)
	assert.Equal(t, float64(5), n)
	j.Pop()
}

func TestCallMethod(t *testing.T) {
	j, _ := newTestVM(t)
	require.Equal(t, Success, j.EvalString("__main__", "<t>", `
		class Counter
			construct()
				self.n = 0
			end
			fun inc(by)
				self.n += by
				return self.n
			end
		end
		var c = Counter()
	`))
	require.True(t, j.GetGlobal("__main__", "c"))
	j.PushNumber(5)
	require.Equal(t, Success, j.CallMethod("inc", 1))
	n, ok := j.ToNumber(-1)
	require.True(t, ok)
	assert.Equal(t, float64(5), n)
	j.Pop()
}

func TestGlobals(t *testing.T) {
	j, _ := newTestVM(t)
	require.Equal(t, Success, j.EvalString("__main__", "<t>", "var x = 10"))

	require.True(t, j.GetGlobal("__main__", "x"))
	n, _ := j.ToNumber(-1)
	assert.Equal(t, float64(10), n)
	j.Pop()

	j.PushNumber(99)
	require.True(t, j.SetGlobal("__main__", "x"))
	require.True(t, j.GetGlobal("__main__", "x"))
	n, _ = j.ToNumber(-1)
	assert.Equal(t, float64(99), n)
	j.Pop()
}

func TestRegisterNative(t *testing.T) {
	j, out := newTestVM(t)
	j.RegisterNative("__main__", "double", 1, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		return value.NumberVal(args[0].AsNumber() * 2), nil
	})
	res := j.EvalString("__main__", "<t>", "print(double(21))")
	assert.Equal(t, Success, res)
	assert.Equal(t, "42\n", out.String())
}

func TestNativeFailureBecomesException(t *testing.T) {
	j, out := newTestVM(t)
	j.RegisterNative("__main__", "boom", 0, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		return value.NullVal(), fmt.Errorf("native exploded")
	})
	res := j.EvalString("__main__", "<t>", `
		try
			boom()
		except Exception e
			print(e.msg())
		end
	`)
	assert.Equal(t, Success, res)
	assert.Equal(t, "native exploded\n", out.String())
}

func TestTableManipulationBySlot(t *testing.T) {
	j, _ := newTestVM(t)
	j.PushValue(j.rt.NewTable())

	j.PushNumber(7)     // value
	j.PushString("key") // key
	require.True(t, j.TableSet(-3))

	j.PushString("key")
	require.True(t, j.TableGet(-2))
	n, ok := j.ToNumber(-1)
	require.True(t, ok)
	assert.Equal(t, float64(7), n)
	j.PopN(2)
}

func TestListManipulationBySlot(t *testing.T) {
	j, _ := newTestVM(t)
	j.PushValue(j.rt.NewList())
	j.PushNumber(1)
	require.True(t, j.ListAppend(-2))
	j.PushNumber(2)
	require.True(t, j.ListAppend(-2))

	n, ok := j.ListLen(-1)
	require.True(t, ok)
	assert.Equal(t, 2, n)

	require.True(t, j.ListGet(-1, 1))
	v, _ := j.ToNumber(-1)
	assert.Equal(t, float64(2), v)
	j.PopN(2)
}

func TestInterruptIsSignalSafeEntry(t *testing.T) {
	j, _ := newTestVM(t)
	j.Interrupt()
	res := j.EvalString("__main__", "<t>", "while true do end")
	assert.Equal(t, RuntimeErr, res)
	assert.Contains(t, j.GetStacktrace(), "InterruptedException")
}

func TestFreeReleasesHeap(t *testing.T) {
	j, _ := newTestVM(t)
	require.Equal(t, Success, j.EvalString("__main__", "<t>", `var big = [1, 2, 3]`))
	j.Free()
}
