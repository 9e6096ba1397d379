package compiler

import (
	"jstar/internal/ast"
	"jstar/internal/opcode"
	"jstar/internal/token"
)

// compileExpr compiles e so that exactly one value is left on the
// stack.
func (c *Compiler) compileExpr(e ast.Expr) {
	pos := e.Position()
	switch n := e.(type) {
	case *ast.NullLit:
		c.emit(opcode.LOAD_NULL, pos.Line)
	case *ast.BoolLit:
		if n.Value {
			c.emit(opcode.LOAD_TRUE, pos.Line)
		} else {
			c.emit(opcode.LOAD_FALSE, pos.Line)
		}
	case *ast.NumberLit:
		if n.Value == float64(int8(n.Value)) {
			c.emitOp1(opcode.LOAD_NUMBER_SMALL, byte(int8(n.Value)), pos.Line)
		} else {
			c.emitOp2(opcode.LOAD_CONST, c.addNumberConst(n.Value), pos.Line)
		}
	case *ast.StringLit:
		c.emitOp2(opcode.LOAD_CONST, c.addStringConst(n.Value), pos.Line)
	case *ast.Ident:
		c.emitLoadVar(pos, n.Name)
	case *ast.Super:
		c.errorf(pos, "'super' is only valid as the receiver of a method call")
		c.emit(opcode.LOAD_NULL, pos.Line)
	case *ast.ListLit:
		c.compileSeqLit(n.Elements, opcode.MAKE_LIST, pos)
	case *ast.TupleLit:
		c.compileSeqLit(n.Elements, opcode.MAKE_TUPLE, pos)
	case *ast.TableLit:
		c.compileTableLit(n, pos)
	case *ast.Spread:
		c.compileExpr(n.Value)
		c.emit(opcode.SPREAD, pos.Line)
	case *ast.FuncLit:
		c.compileFuncLit(n, false)
	case *ast.Unary:
		c.compileUnary(n, pos)
	case *ast.Binary:
		c.compileBinary(n, pos)
	case *ast.Logical:
		c.compileLogical(n, pos)
	case *ast.Ternary:
		c.compileTernary(n, pos)
	case *ast.Assign:
		c.compileAssign(n, pos)
	case *ast.UnpackAssign:
		c.compileUnpackAssign(n, pos)
	case *ast.Call:
		c.compileCall(n, pos)
	case *ast.Index:
		c.compileExpr(n.Receiver)
		c.compileExpr(n.Key)
		c.emit(opcode.GET_INDEX, pos.Line)
	case *ast.Member:
		c.compileExpr(n.Receiver)
		c.emitOp2(opcode.GET_FIELD, c.addStringConst(n.Name), pos.Line)
	case *ast.Yield:
		if n.Value != nil {
			c.compileExpr(n.Value)
		} else {
			c.emit(opcode.LOAD_NULL, pos.Line)
		}
		c.emit(opcode.YIELD, pos.Line)
	default:
		c.errorf(pos, "internal: unhandled expression node %T", e)
		c.emit(opcode.LOAD_NULL, pos.Line)
	}
}

func (c *Compiler) compileSeqLit(elems []ast.Expr, op opcode.Op, pos token.Pos) {
	for _, el := range elems {
		c.compileExpr(el)
	}
	c.emitOp2(op, uint16(len(elems)), pos.Line)
}

// compileTableLit builds the table then stores each entry through the
// same SET_INDEX convention assignments use ([value, receiver, key] on
// the stack, key on top), so the VM has a single indexed-store path.
func (c *Compiler) compileTableLit(n *ast.TableLit, pos token.Pos) {
	c.emit(opcode.MAKE_TABLE, pos.Line)
	for _, entry := range n.Entries {
		c.emit(opcode.DUP, pos.Line)
		c.compileExpr(entry.Value)
		c.emit(opcode.SWAP, pos.Line)
		c.compileExpr(entry.Key)
		c.emit(opcode.SET_INDEX, pos.Line)
		c.emit(opcode.POP, pos.Line)
	}
}

func (c *Compiler) compileUnary(n *ast.Unary, pos token.Pos) {
	c.compileExpr(n.Operand)
	switch n.Op {
	case ast.UnaryNeg:
		c.emit(opcode.NEG, pos.Line)
	case ast.UnaryNot:
		c.emit(opcode.NOT, pos.Line)
	case ast.UnaryBNot:
		c.emit(opcode.BNOT, pos.Line)
	case ast.UnaryLen:
		c.emit(opcode.LEN, pos.Line)
	case ast.UnaryLen2:
		c.emit(opcode.LEN2, pos.Line)
	}
}

var binaryOpcodes = map[ast.BinaryOp]opcode.Op{
	ast.OpAdd: opcode.ADD, ast.OpSub: opcode.SUB, ast.OpMul: opcode.MUL,
	ast.OpDiv: opcode.DIV, ast.OpMod: opcode.MOD, ast.OpPow: opcode.POW,
	ast.OpEq: opcode.EQ, ast.OpNeq: opcode.NEQ, ast.OpLt: opcode.LT,
	ast.OpLe: opcode.LE, ast.OpGt: opcode.GT, ast.OpGe: opcode.GE, ast.OpIs: opcode.IS,
	ast.OpBAnd: opcode.BAND, ast.OpBOr: opcode.BOR, ast.OpBXor: opcode.BXOR,
	ast.OpShl: opcode.SHL, ast.OpShr: opcode.SHR,
}

func (c *Compiler) compileBinary(n *ast.Binary, pos token.Pos) {
	c.compileExpr(n.Left)
	c.compileExpr(n.Right)
	op, ok := binaryOpcodes[n.Op]
	if !ok {
		c.errorf(pos, "internal: unknown binary operator %q", n.Op)
		return
	}
	c.emit(op, pos.Line)
}

// compileLogical lowers `and`/`or` to short-circuiting jumps rather than
// opcodes.
func (c *Compiler) compileLogical(n *ast.Logical, pos token.Pos) {
	c.compileExpr(n.Left)
	if n.Op == token.AND {
		jmp := c.emitJump(opcode.JUMP_IF_FALSE, pos.Line)
		c.emit(opcode.POP, pos.Line)
		c.compileExpr(n.Right)
		c.patchJump(jmp)
		return
	}
	jmp := c.emitJump(opcode.JUMP_IF_TRUE, pos.Line)
	c.emit(opcode.POP, pos.Line)
	c.compileExpr(n.Right)
	c.patchJump(jmp)
}

func (c *Compiler) compileTernary(n *ast.Ternary, pos token.Pos) {
	c.compileExpr(n.Cond)
	elseJmp := c.emitJump(opcode.JUMP_IF_FALSE, pos.Line)
	c.emit(opcode.POP, pos.Line)
	c.compileExpr(n.Then)
	endJmp := c.emitJump(opcode.JUMP, pos.Line)
	c.patchJump(elseJmp)
	c.emit(opcode.POP, pos.Line)
	c.compileExpr(n.Else)
	c.patchJump(endJmp)
}

func (c *Compiler) compileAssign(n *ast.Assign, pos token.Pos) {
	c.compileExpr(n.Value)
	c.compileStoreTo(n.Target, pos)
}

// compileStoreTo stores the value already on top of the stack into
// target, leaving that same value as the sole net addition to the
// stack (assignment is an expression that evaluates to the assigned
// value). SET_FIELD/SET_INDEX are defined to expect the value pushed
// first and the receiver/key pushed after, so no stack shuffling is
// needed here.
func (c *Compiler) compileStoreTo(target ast.Expr, pos token.Pos) {
	switch t := target.(type) {
	case *ast.Ident:
		c.emit(opcode.DUP, pos.Line)
		c.emitStoreVar(pos, t.Name)
	case *ast.Member:
		c.compileExpr(t.Receiver)
		c.emitOp2(opcode.SET_FIELD, c.addStringConst(t.Name), pos.Line)
	case *ast.Index:
		c.compileExpr(t.Receiver)
		c.compileExpr(t.Key)
		c.emit(opcode.SET_INDEX, pos.Line)
	default:
		c.errorf(pos, "invalid assignment target")
	}
}

// compileUnpackAssign compiles `a, b, c = expr`. UNPACK leaves
// len(Targets) values on the stack in order, with the last target's
// value on top, so targets are stored from last to first. Every target
// but the first is stored and popped; the first is stored and left, so
// the whole expression evaluates to its value.
func (c *Compiler) compileUnpackAssign(n *ast.UnpackAssign, pos token.Pos) {
	c.compileExpr(n.Value)
	c.emitOp1(opcode.UNPACK, byte(len(n.Targets)), pos.Line)
	for i := len(n.Targets) - 1; i >= 1; i-- {
		c.compileStoreTo(n.Targets[i], pos)
		c.emit(opcode.POP, pos.Line)
	}
	c.compileStoreTo(n.Targets[0], pos)
}

func (c *Compiler) compileCall(n *ast.Call, pos token.Pos) {
	if sup, ok := n.Callee.(*ast.Member); ok {
		if _, isSuper := sup.Receiver.(*ast.Super); isSuper {
			if c.cur.class == nil {
				c.errorf(pos, "'super' used outside a method")
			} else if !c.cur.class.hasSuper {
				c.errorf(pos, "class %q has no superclass", c.cur.class.name)
			}
			c.emitLoadVar(pos, "self")
			for _, a := range n.Args {
				c.compileExpr(a)
			}
			c.emitOp2(opcode.SUPER_INVOKE, c.addStringConst(sup.Name), pos.Line)
			c.emitByte(byte(len(n.Args)), pos.Line)
			return
		}
	}
	if mem, ok := n.Callee.(*ast.Member); ok {
		c.compileExpr(mem.Receiver)
		for _, a := range n.Args {
			c.compileExpr(a)
		}
		c.emitOp2(opcode.INVOKE, c.addStringConst(mem.Name), pos.Line)
		c.emitByte(byte(len(n.Args)), pos.Line)
		return
	}
	c.compileExpr(n.Callee)
	for _, a := range n.Args {
		c.compileExpr(a)
	}
	c.emitOp1(opcode.CALL, byte(len(n.Args)), pos.Line)
}
