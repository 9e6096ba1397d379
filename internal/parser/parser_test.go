package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jstar/internal/ast"
	"jstar/internal/token"
)

func parseOK(t *testing.T, src string) *ast.Program {
	t.Helper()
	var errs []string
	p := New("<test>", src, func(path string, pos token.Pos, msg string) {
		errs = append(errs, msg)
	})
	prog := p.Parse()
	require.Empty(t, errs, "unexpected parse errors: %v", errs)
	return prog
}

func TestParser_Arithmetic(t *testing.T) {
	prog := parseOK(t, "1 + 2 * 3")
	require.Len(t, prog.Stmts, 1)
	stmt := prog.Stmts[0].(*ast.ExprStmt)
	bin := stmt.X.(*ast.Binary)
	assert.Equal(t, ast.OpAdd, bin.Op)
	rhs := bin.Right.(*ast.Binary)
	assert.Equal(t, ast.OpMul, rhs.Op)
}

func TestParser_VarAndFun(t *testing.T) {
	prog := parseOK(t, "var x = 1\nfun f(a, b = 2) return a + b end")
	require.Len(t, prog.Stmts, 2)
	_, ok := prog.Stmts[0].(*ast.VarDecl)
	assert.True(t, ok)
	fd := prog.Stmts[1].(*ast.FunDecl)
	assert.Equal(t, []string{"a", "b"}, fd.Lit.Params)
	assert.Nil(t, fd.Lit.Defaults[0])
	assert.NotNil(t, fd.Lit.Defaults[1])
}

func TestParser_ClassInheritance(t *testing.T) {
	prog := parseOK(t, `class A fun f() return "A" end end
class B is A fun f() return super.f() end end`)
	require.Len(t, prog.Stmts, 2)
	b := prog.Stmts[1].(*ast.ClassDecl)
	assert.Equal(t, "B", b.Name)
	assert.NotNil(t, b.Super)
	require.Len(t, b.Methods, 1)
}

func TestParser_TryExceptEnsure(t *testing.T) {
	prog := parseOK(t, `try
raise Exception("boom")
except Exception e
print(e)
ensure
cleanup()
end`)
	require.Len(t, prog.Stmts, 1)
	tr := prog.Stmts[0].(*ast.Try)
	require.Len(t, tr.Excepts, 1)
	assert.Equal(t, "e", tr.Excepts[0].BindName)
	assert.NotNil(t, tr.Ensure)
}

func TestParser_ForIn(t *testing.T) {
	prog := parseOK(t, "for x in range do print(x) end")
	fi := prog.Stmts[0].(*ast.ForIn)
	assert.Equal(t, "x", fi.Var)
}

func TestParser_BreakOutsideLoopIsError(t *testing.T) {
	var errs []string
	p := New("<test>", "break", func(path string, pos token.Pos, msg string) {
		errs = append(errs, msg)
	})
	p.Parse()
	assert.NotEmpty(t, errs)
}

func TestParser_Generator(t *testing.T) {
	prog := parseOK(t, "fun gen() yield 1 end")
	fd := prog.Stmts[0].(*ast.FunDecl)
	assert.True(t, fd.Lit.IsGenerator)
}
