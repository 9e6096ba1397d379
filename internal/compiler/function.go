package compiler

import (
	"jstar/internal/ast"
	"jstar/internal/opcode"
	"jstar/value"
)

// compileFuncLit compiles lit's body into its own FuncProto, nested as a
// constant of the enclosing function, and emits MAKE_CLOSURE with the
// inline upvalue-capture descriptors the VM needs to build a Closure at
// runtime. isMethod reserves local slot 0 for the
// implicit receiver, named "self", matching how compileCall emits
// INVOKE/SUPER_INVOKE.
func (c *Compiler) compileFuncLit(lit *ast.FuncLit, isMethod bool) {
	pos := lit.Position()
	name := lit.Name
	if name == "" {
		name = "anonymous"
	}
	proto := c.heap.NewFuncProto(name, c.path)
	proto.Vararg = lit.Vararg
	proto.IsGenerator = lit.IsGenerator
	proto.Arity = len(lit.Params)
	if isMethod {
		proto.Arity++
	}

	parent := c.cur
	fs := newFuncScope(parent, proto)
	if parent != nil {
		fs.class = parent.class
	}
	c.cur = fs
	c.beginScope()

	if isMethod {
		c.declareLocal(pos, "self")
		// Defaults stay parallel to the full local-slot layout, so the
		// receiver gets a never-used placeholder entry.
		proto.HasDefault = append(proto.HasDefault, false)
		proto.Defaults = append(proto.Defaults, value.NullVal())
	}
	for i, p := range lit.Params {
		c.declareLocal(pos, p)
		if lit.Defaults != nil && i < len(lit.Defaults) && lit.Defaults[i] != nil {
			proto.HasDefault = append(proto.HasDefault, true)
			proto.Defaults = append(proto.Defaults, c.constFold(lit.Defaults[i]))
		} else {
			proto.HasDefault = append(proto.HasDefault, false)
			proto.Defaults = append(proto.Defaults, value.NullVal())
		}
	}

	for _, s := range lit.Body.Stmts {
		c.compileStmt(s)
	}
	c.endScope(pos)
	c.emit(opcode.LOAD_NULL, pos.Line)
	c.emit(opcode.RETURN, pos.Line)
	proto.NumLocals = countLocals(fs)

	upvals := fs.upvals
	c.cur = parent

	constIdx := c.addProtoConst(proto)
	c.emitOp2(opcode.MAKE_CLOSURE, constIdx, pos.Line)
	c.emitByte(byte(len(upvals)), pos.Line)
	for _, u := range upvals {
		flag := byte(0)
		if u.fromLocal {
			flag = 1
		}
		c.emitByte(flag, pos.Line)
		c.emitByte(u.index, pos.Line)
	}
}

// constFold evaluates a default-argument expression at compile time.
// The parser accepts any expression as a default; only null, boolean,
// number and string literals fold here, and anything else is reported
// as a compile error.
func (c *Compiler) constFold(e ast.Expr) value.Value {
	switch n := e.(type) {
	case *ast.NullLit:
		return value.NullVal()
	case *ast.BoolLit:
		return value.BoolVal(n.Value)
	case *ast.NumberLit:
		return value.NumberVal(n.Value)
	case *ast.StringLit:
		return value.ObjVal(c.heap.Intern(n.Value))
	default:
		c.errorf(e.Position(), "default argument must be a constant")
		return value.NullVal()
	}
}
