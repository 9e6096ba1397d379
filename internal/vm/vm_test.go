package vm

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jstar/internal/module"
	"jstar/internal/token"
	"jstar/value"
)

// evalOut runs src in a fresh VM's __main__ module and returns stdout.
func evalOut(t *testing.T, src string) string {
	t.Helper()
	var out bytes.Buffer
	var errs []string
	v := New(Config{
		Stdout: &out,
		OnError: func(path string, pos token.Pos, msg string) {
			errs = append(errs, fmt.Sprintf("%s:%s: %s", path, pos, msg))
		},
	})
	err := v.EvalSource(module.MainModule, "<test>", src)
	require.NoError(t, err, "errors: %v", errs)
	require.Empty(t, errs)
	return out.String()
}

func evalErr(t *testing.T, src string) error {
	t.Helper()
	var out bytes.Buffer
	v := New(Config{Stdout: &out})
	err := v.EvalSource(module.MainModule, "<test>", src)
	require.Error(t, err)
	return err
}

func TestEval_ArithmeticAndPrint(t *testing.T) {
	assert.Equal(t, "7\n", evalOut(t, "print(1 + 2 * 3)"))
}

func TestEval_EmptySourceIsNoop(t *testing.T) {
	assert.Equal(t, "", evalOut(t, ""))
}

func TestEval_Closures(t *testing.T) {
	out := evalOut(t, `
		fun make()
			var x = 0
			return fun()
				x += 1
				return x
			end
		end
		var f = make()
		print(f())
		print(f())
		print(f())
	`)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestEval_ClosuesAreIndependent(t *testing.T) {
	out := evalOut(t, `
		fun make()
			var x = 0
			return fun()
				x += 1
				return x
			end
		end
		var f = make()
		var g = make()
		print(f())
		print(f())
		print(g())
	`)
	assert.Equal(t, "1\n2\n1\n", out)
}

func TestEval_Exceptions(t *testing.T) {
	out := evalOut(t, `
		try
			raise Exception("boom")
		except Exception e
			print(e.msg())
		end
	`)
	assert.Equal(t, "boom\n", out)
}

func TestEval_ExceptionMatchingWalksHierarchy(t *testing.T) {
	out := evalOut(t, `
		try
			raise TypeException("bad type")
		except Exception e
			print(e.msg())
		end
	`)
	assert.Equal(t, "bad type\n", out)
}

func TestEval_EnsureRunsOnBothPaths(t *testing.T) {
	out := evalOut(t, `
		try
			print("body")
		ensure
			print("cleanup")
		end
		try
			try
				raise Exception("x")
			ensure
				print("cleanup2")
			end
		except Exception e
			print("caught")
		end
	`)
	assert.Equal(t, "body\ncleanup\ncleanup2\ncaught\n", out)
}

func TestEval_UncaughtExceptionSurfaces(t *testing.T) {
	err := evalErr(t, `raise Exception("kaput")`)
	uncaught, ok := err.(*UncaughtError)
	require.True(t, ok, "got %T: %v", err, err)
	assert.Contains(t, uncaught.Trace, "kaput")
}

func TestEval_Generators(t *testing.T) {
	out := evalOut(t, `
		fun gen()
			yield 1
			yield 2
			yield 3
		end
		for x in gen() do
			print(x)
		end
	`)
	assert.Equal(t, "1\n2\n3\n", out)
}

func TestEval_GeneratorKeepsLocalState(t *testing.T) {
	out := evalOut(t, `
		fun countdown(n)
			while n > 0 do
				yield n
				n -= 1
			end
		end
		for x in countdown(3) do
			print(x)
		end
	`)
	assert.Equal(t, "3\n2\n1\n", out)
}

func TestEval_ClassesAndInheritance(t *testing.T) {
	out := evalOut(t, `
		class A
			fun f()
				return "A"
			end
		end
		class B is A
			fun f()
				return super.f() + "B"
			end
		end
		print(B().f())
	`)
	assert.Equal(t, "AB\n", out)
}

func TestEval_ConstructorAndFields(t *testing.T) {
	out := evalOut(t, `
		class Point
			construct(x, y)
				self.x = x
				self.y = y
			end
			fun sum()
				return self.x + self.y
			end
		end
		var p = Point(3, 4)
		print(p.sum())
		print(p.x)
	`)
	assert.Equal(t, "7\n3\n", out)
}

func TestEval_OperatorOverloading(t *testing.T) {
	out := evalOut(t, `
		class Vec
			construct(x)
				self.x = x
			end
			fun __add__(other)
				return Vec(self.x + other.x)
			end
			fun __string__()
				return "Vec(" + "" + ")"
			end
		end
		var v = Vec(1) + Vec(2)
		print(v.x)
	`)
	assert.Equal(t, "3\n", out)
}

func TestEval_ForInOverCollections(t *testing.T) {
	out := evalOut(t, `
		for x in [10, 20] do
			print(x)
		end
		for c in "ab" do
			print(c)
		end
	`)
	assert.Equal(t, "10\n20\na\nb\n", out)
}

func TestEval_WhileAndFor(t *testing.T) {
	out := evalOut(t, `
		var total = 0
		for var i = 1; i <= 4; i += 1 do
			total += i
		end
		print(total)
	`)
	assert.Equal(t, "10\n", out)
}

func TestEval_BreakContinue(t *testing.T) {
	out := evalOut(t, `
		for var i = 0; i < 10; i += 1 do
			if i == 1
				continue
			end
			if i == 3
				break
			end
			print(i)
		end
	`)
	assert.Equal(t, "0\n2\n", out)
}

func TestEval_TuplesAndUnpack(t *testing.T) {
	out := evalOut(t, `
		var a = 0
		var b = 0
		a, b = (1, 2)
		print(a)
		print(b)
	`)
	assert.Equal(t, "1\n2\n", out)
}

func TestEval_TablesAndIndexing(t *testing.T) {
	out := evalOut(t, `
		var t = {"k": 41}
		t["k"] = t["k"] + 1
		print(t["k"])
	`)
	assert.Equal(t, "42\n", out)
}

func TestEval_ListMethods(t *testing.T) {
	out := evalOut(t, `
		var l = [1, 2]
		l.add(3)
		print(#l)
		print(l.pop())
	`)
	assert.Equal(t, "3\n3\n", out)
}

func TestEval_SpreadInCall(t *testing.T) {
	out := evalOut(t, `
		fun sum3(a, b, c)
			return a + b + c
		end
		var args = [1, 2, 3]
		print(sum3(...args))
	`)
	assert.Equal(t, "6\n", out)
}

func TestEval_DefaultArguments(t *testing.T) {
	out := evalOut(t, `
		fun greet(name, greeting = "hello")
			return greeting + " " + name
		end
		print(greet("world"))
		print(greet("world", "hi"))
	`)
	assert.Equal(t, "hello world\nhi world\n", out)
}

func TestEval_Varargs(t *testing.T) {
	out := evalOut(t, `
		fun count(first, ...rest)
			return #rest
		end
		print(count(1))
		print(count(1, 2, 3))
	`)
	assert.Equal(t, "0\n2\n", out)
}

func TestEval_TernaryAndLogical(t *testing.T) {
	out := evalOut(t, `
		print(1 if true else 2)
		print(false or "x")
		print(null and "y")
	`)
	assert.Equal(t, "1\nx\nnull\n", out)
}

func TestEval_IsOperator(t *testing.T) {
	out := evalOut(t, `
		print(1 is Number)
		print("s" is String)
		print(1 is String)
		class A end
		class B is A end
		print(B() is A)
	`)
	assert.Equal(t, "true\ntrue\nfalse\ntrue\n", out)
}

func TestEval_StackOverflowRaises(t *testing.T) {
	err := evalErr(t, `
		fun loop()
			return loop()
		end
		loop()
	`)
	uncaught, ok := err.(*UncaughtError)
	require.True(t, ok)
	assert.Contains(t, uncaught.Trace, "StackOverflowException")
}

func TestEval_StackOverflowIsCatchable(t *testing.T) {
	out := evalOut(t, `
		fun loop()
			return loop()
		end
		try
			loop()
		except StackOverflowException e
			print("caught")
		end
	`)
	assert.Equal(t, "caught\n", out)
}

func TestEval_InterruptRaisesInterrupted(t *testing.T) {
	var out bytes.Buffer
	v := New(Config{Stdout: &out})
	v.Interrupt()
	err := v.EvalSource(module.MainModule, "<test>", `
		while true do
		end
	`)
	uncaught, ok := err.(*UncaughtError)
	require.True(t, ok, "got %T", err)
	assert.Contains(t, uncaught.Trace, "InterruptedException")
}

func TestEval_CyclicImports(t *testing.T) {
	files := map[string]string{
		"a": "import b\nvar x = 1",
		"b": "import a\nvar y = 2",
	}
	var out bytes.Buffer
	v := New(Config{
		Stdout: &out,
		Import: func(name string) (*module.ImportResult, error) {
			src, ok := files[name]
			if !ok {
				return nil, nil
			}
			return &module.ImportResult{Source: []byte(src), Path: name + ".jsr"}, nil
		},
	})
	err := v.EvalSource(module.MainModule, "<test>", `
		import a
		import b
		print(a.x)
		print(b.y)
	`)
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n", out.String())
}

func TestEval_ImportAsAndFrom(t *testing.T) {
	files := map[string]string{
		"util": "fun twice(x)\n\treturn x * 2\nend",
	}
	var out bytes.Buffer
	v := New(Config{
		Stdout: &out,
		Import: func(name string) (*module.ImportResult, error) {
			src, ok := files[name]
			if !ok {
				return nil, nil
			}
			return &module.ImportResult{Source: []byte(src), Path: name + ".jsr"}, nil
		},
	})
	err := v.EvalSource(module.MainModule, "<test>", `
		import util as u
		print(u.twice(4))
		import util for twice
		print(twice(5))
	`)
	require.NoError(t, err)
	assert.Equal(t, "8\n10\n", out.String())
}

func TestEval_ImportNotFoundRaises(t *testing.T) {
	v := New(Config{Stdout: &bytes.Buffer{}, Import: func(string) (*module.ImportResult, error) {
		return nil, nil
	}})
	err := v.EvalSource(module.MainModule, "<test>", "import missing")
	uncaught, ok := err.(*UncaughtError)
	require.True(t, ok)
	assert.Contains(t, uncaught.Trace, "ImportException")
}

func TestEval_NativeBinding(t *testing.T) {
	reg := &module.NativeRegistry{}
	reg.Register("answer", 0, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		return value.NumberVal(42), nil
	})
	files := map[string]*module.ImportResult{
		"host": {Source: []byte("native answer()"), Path: "host.jsr", Natives: reg},
	}
	var out bytes.Buffer
	v := New(Config{
		Stdout: &out,
		Import: func(name string) (*module.ImportResult, error) {
			return files[name], nil
		},
	})
	err := v.EvalSource(module.MainModule, "<test>", `
		import host
		print(host.answer())
	`)
	require.NoError(t, err)
	assert.Equal(t, "42\n", out.String())
}

func TestEval_WithStatement(t *testing.T) {
	out := evalOut(t, `
		class Res
			construct(name)
				self.name = name
			end
			fun close()
				print("closed " + self.name)
			end
		end
		with Res("r") as r
			print("using " + r.name)
		end
	`)
	assert.Equal(t, "using r\nclosed r\n", out)
}

func TestEval_WithClosesOnRaise(t *testing.T) {
	out := evalOut(t, `
		class Res
			fun close()
				print("closed")
			end
		end
		try
			with Res() as r
				raise Exception("oops")
			end
		except Exception e
			print(e.msg())
		end
	`)
	assert.Equal(t, "closed\noops\n", out)
}

func TestEval_Decorators(t *testing.T) {
	out := evalOut(t, `
		fun shout(f)
			return fun()
				return f() + "!"
			end
		end
		@shout
		fun hello()
			return "hi"
		end
		print(hello())
	`)
	assert.Equal(t, "hi!\n", out)
}

func TestEval_GCSurvivesStress(t *testing.T) {
	var out bytes.Buffer
	v := New(Config{Stdout: &out, GCStress: true})
	err := v.EvalSource(module.MainModule, "<test>", `
		var acc = []
		for var i = 0; i < 50; i += 1 do
			acc.add("s" + "x")
		end
		print(#acc)
	`)
	require.NoError(t, err)
	assert.Equal(t, "50\n", out.String())
}

func TestEval_StringInterning(t *testing.T) {
	v := New(Config{Stdout: &bytes.Buffer{}})
	a := v.Heap().Intern("hello")
	b := v.Heap().Intern("hello")
	c := v.Heap().Intern("world")
	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestEval_StackDisciplineAcrossCalls(t *testing.T) {
	var out bytes.Buffer
	v := New(Config{Stdout: &out})
	require.NoError(t, v.EvalSource(module.MainModule, "<test>", `
		fun f(a, b)
			return a + b
		end
	`))
	depth := v.Depth()

	mod, _ := v.Registry().Get(module.MainModule)
	f, ok := mod.Globals.Get(value.ObjVal(v.Heap().Intern("f")))
	require.True(t, ok)

	res, err := v.CallValue(f, []value.Value{value.NumberVal(2), value.NumberVal(3)})
	require.NoError(t, err)
	assert.Equal(t, float64(5), res.AsNumber())
	assert.Equal(t, depth, v.Depth())
}
