package compiler

import (
	"jstar/internal/ast"
	"jstar/internal/opcode"
	"jstar/internal/token"
)

// compileClassDecl compiles `class Name is Super ... end`. MAKE_CLASS
// pushes a fresh class object; INHERIT (when a superclass expression is
// present) links it to its parent; METHOD then binds each member one at
// a time, following the same "DUP the container, build the entry, bind,
// repeat" shape compileTableLit uses for table literals. The finished
// class is then bound the same way VarDecl/FunDecl bind: DEF_GLOBAL at
// depth 0, a local otherwise.
func (c *Compiler) compileClassDecl(n *ast.ClassDecl, pos token.Pos) {
	nameConst := c.addStringConst(n.Name)
	c.emitOp2(opcode.MAKE_CLASS, nameConst, pos.Line)

	if n.Super != nil {
		c.compileExpr(n.Super)
		c.emit(opcode.INHERIT, pos.Line)
	}

	outerClass := c.cur.class
	c.cur.class = &classCtx{parent: outerClass, name: n.Name, hasSuper: n.Super != nil}

	if n.Constructor != nil {
		c.emit(opcode.DUP, pos.Line)
		c.compileFuncLit(n.Constructor.Lit, true)
		c.emitOp2(opcode.METHOD, c.addStringConst("construct"), pos.Line)
	}
	for _, m := range n.Methods {
		c.emit(opcode.DUP, pos.Line)
		c.compileFuncLit(m.Lit, !m.Static)
		c.emitOp2(opcode.METHOD, c.addStringConst(m.Lit.Name), pos.Line)
	}
	for _, nd := range n.Natives {
		c.emit(opcode.DUP, pos.Line)
		c.compileNativeDecl(nd, n.Name, pos)
		c.emitOp2(opcode.METHOD, c.addStringConst(nd.Name), pos.Line)
	}

	c.cur.class = outerClass

	if c.cur.depth == 0 {
		c.emitOp2(opcode.DEF_GLOBAL, nameConst, pos.Line)
		return
	}
	c.declareLocal(pos, n.Name)
}
