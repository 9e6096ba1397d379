package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jstar/internal/gc"
	"jstar/internal/opcode"
	"jstar/internal/token"
	"jstar/value"
)

func compileOK(t *testing.T, src string) *value.FuncProto {
	t.Helper()
	h := gc.New(gc.DefaultConfig())
	var errs []string
	proto, ok := CompileSource(h, "<test>", src, func(path string, pos token.Pos, msg string) {
		errs = append(errs, msg)
	})
	require.True(t, ok, "compile errors: %v", errs)
	require.Empty(t, errs)
	require.NotNil(t, proto)
	return proto
}

func compileErr(t *testing.T, src string) []string {
	t.Helper()
	h := gc.New(gc.DefaultConfig())
	var errs []string
	_, ok := CompileSource(h, "<test>", src, func(path string, pos token.Pos, msg string) {
		errs = append(errs, msg)
	})
	require.False(t, ok)
	require.NotEmpty(t, errs)
	return errs
}

func hasOp(code []byte, op opcode.Op) bool {
	for i := 0; i < len(code); {
		if opcode.Op(code[i]) == op {
			return true
		}
		w := opcode.Op(code[i]).Width()
		if w < 0 {
			w = 1 // MAKE_CLOSURE: skip conservatively, good enough for presence checks
		}
		i += 1 + w
	}
	return false
}

func TestCompile_EmptySource(t *testing.T) {
	proto := compileOK(t, "")
	assert.True(t, hasOp(proto.Code, opcode.RETURN))
}

func TestCompile_Arithmetic(t *testing.T) {
	proto := compileOK(t, "var x = 1 + 2 * 3")
	assert.True(t, hasOp(proto.Code, opcode.ADD))
	assert.True(t, hasOp(proto.Code, opcode.MUL))
	assert.True(t, hasOp(proto.Code, opcode.DEF_GLOBAL))
}

func TestCompile_LogicalShortCircuit(t *testing.T) {
	proto := compileOK(t, "var x = true and false or true")
	assert.True(t, hasOp(proto.Code, opcode.JUMP_IF_FALSE))
	assert.True(t, hasOp(proto.Code, opcode.JUMP_IF_TRUE))
}

func TestCompile_IfElse(t *testing.T) {
	proto := compileOK(t, `
		var x = 1
		if x == 1
			x = 2
		else
			x = 3
		end
	`)
	assert.True(t, hasOp(proto.Code, opcode.JUMP_IF_FALSE))
	assert.True(t, hasOp(proto.Code, opcode.JUMP))
}

func TestCompile_WhileBreakContinue(t *testing.T) {
	proto := compileOK(t, `
		var i = 0
		while i < 10 do
			if i == 5
				break
			end
			i = i + 1
			continue
		end
	`)
	assert.True(t, hasOp(proto.Code, opcode.LOOP))
	assert.True(t, hasOp(proto.Code, opcode.LT))
}

func TestCompile_ForLoop(t *testing.T) {
	proto := compileOK(t, `
		for var i = 0; i < 10; i = i + 1 do
			print(i)
		end
	`)
	assert.True(t, hasOp(proto.Code, opcode.LOOP))
}

func TestCompile_ForIn(t *testing.T) {
	proto := compileOK(t, `
		for x in [1, 2, 3] do
			print(x)
		end
	`)
	assert.True(t, hasOp(proto.Code, opcode.FOR_PREP))
	assert.True(t, hasOp(proto.Code, opcode.FOR_ITER))
}

func TestCompile_FunctionClosure(t *testing.T) {
	proto := compileOK(t, `
		fun counter()
			var n = 0
			fun inner()
				n = n + 1
				return n
			end
			return inner
		end
	`)
	assert.True(t, hasOp(proto.Code, opcode.MAKE_CLOSURE))
}

func TestCompile_ClassWithSuper(t *testing.T) {
	proto := compileOK(t, `
		class Animal
			fun speak()
				return "..."
			end
		end

		class Dog is Animal
			fun speak()
				return super.speak()
			end
		end
	`)
	assert.True(t, hasOp(proto.Code, opcode.MAKE_CLASS))
	assert.True(t, hasOp(proto.Code, opcode.INHERIT))
	assert.True(t, hasOp(proto.Code, opcode.METHOD))
}

func TestCompile_TryExceptEnsure(t *testing.T) {
	proto := compileOK(t, `
		try
			raise Exception("boom")
		except Exception e
			print(e)
		ensure
			print("cleanup")
		end
	`)
	assert.True(t, hasOp(proto.Code, opcode.TRY_PUSH))
	assert.True(t, hasOp(proto.Code, opcode.RAISE))
	assert.True(t, hasOp(proto.Code, opcode.ENSURE_ENTER))
	assert.True(t, hasOp(proto.Code, opcode.ENSURE_EXIT))
}

func TestCompile_ImportForms(t *testing.T) {
	proto := compileOK(t, `import sys`)
	assert.True(t, hasOp(proto.Code, opcode.IMPORT))

	proto = compileOK(t, `import sys as s`)
	assert.True(t, hasOp(proto.Code, opcode.IMPORT_AS))

	proto = compileOK(t, `import sys for exit`)
	assert.True(t, hasOp(proto.Code, opcode.IMPORT_FROM))
}

func TestCompile_DuplicateLocalIsError(t *testing.T) {
	errs := compileErr(t, `
		fun f()
			var x = 1
			var x = 2
		end
	`)
	assert.NotEmpty(t, errs)
}

func TestCompile_BreakOutsideLoopIsError(t *testing.T) {
	compileErr(t, `break`)
}

func TestCompile_SuperOutsideMethodIsError(t *testing.T) {
	compileErr(t, `var x = super.foo()`)
}

func TestCompile_UnpackAssign(t *testing.T) {
	proto := compileOK(t, `
		var a = 0
		var b = 0
		a, b = (1, 2)
	`)
	assert.True(t, hasOp(proto.Code, opcode.UNPACK))
}

func TestCompile_SpreadInCall(t *testing.T) {
	proto := compileOK(t, `
		var args = [1, 2, 3]
		print(...args)
	`)
	assert.True(t, hasOp(proto.Code, opcode.SPREAD))
}
