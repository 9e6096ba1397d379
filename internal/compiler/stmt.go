package compiler

import (
	"strings"

	"jstar/internal/ast"
	"jstar/internal/opcode"
	"jstar/internal/token"
)

func (c *Compiler) compileStmt(s ast.Stmt) {
	pos := s.Position()
	switch n := s.(type) {
	case *ast.ExprStmt:
		c.compileExpr(n.X)
		c.emit(opcode.POP, pos.Line)
	case *ast.VarDecl:
		c.compileVarDecl(n, pos)
	case *ast.FunDecl:
		c.compileFunDecl(n, pos)
	case *ast.NativeDecl:
		c.compileNativeDecl(n, "", pos)
	case *ast.ClassDecl:
		c.compileClassDecl(n, pos)
	case *ast.Block:
		c.beginScope()
		for _, st := range n.Stmts {
			c.compileStmt(st)
		}
		c.endScope(pos)
	case *ast.If:
		c.compileIf(n, pos)
	case *ast.While:
		c.compileWhile(n, pos)
	case *ast.For:
		c.compileFor(n, pos)
	case *ast.ForIn:
		c.compileForIn(n, pos)
	case *ast.Try:
		c.compileTry(n, pos)
	case *ast.Raise:
		c.compileExpr(n.Value)
		c.emit(opcode.RAISE, pos.Line)
	case *ast.With:
		c.compileWith(n, pos)
	case *ast.Return:
		if n.Value != nil {
			c.compileExpr(n.Value)
		} else {
			c.emit(opcode.LOAD_NULL, pos.Line)
		}
		c.emit(opcode.RETURN, pos.Line)
	case *ast.Break:
		c.compileBreak(pos)
	case *ast.Continue:
		c.compileContinue(pos)
	case *ast.Import:
		c.compileImport(n, pos)
	default:
		c.errorf(pos, "internal: unhandled statement node %T", s)
	}
}

func (c *Compiler) compileVarDecl(n *ast.VarDecl, pos token.Pos) {
	if n.Init != nil {
		c.compileExpr(n.Init)
	} else {
		c.emit(opcode.LOAD_NULL, pos.Line)
	}
	if c.cur.depth == 0 {
		nameConst := c.addStringConst(n.Name)
		c.emitOp2(opcode.DEF_GLOBAL, nameConst, pos.Line)
		return
	}
	c.declareLocal(pos, n.Name)
}

// compileFunDecl compiles a named function/method declaration. At depth
// 0 it defines a global bound to the closure; nested, it declares a
// local the same way VarDecl does. Decorators apply innermost-first:
// the literal decorator list is written outer-to-inner in source, so
// the LAST decorator listed wraps the raw function first.
func (c *Compiler) compileFunDecl(n *ast.FunDecl, pos token.Pos) {
	c.compileFuncLit(n.Lit, false)
	for i := len(n.Decorators) - 1; i >= 0; i-- {
		c.compileExpr(n.Decorators[i])
		c.emit(opcode.SWAP, pos.Line)
		c.emitOp1(opcode.CALL, 1, pos.Line)
	}
	if c.cur.depth == 0 {
		nameConst := c.addStringConst(n.Lit.Name)
		c.emitOp2(opcode.DEF_GLOBAL, nameConst, pos.Line)
		return
	}
	c.declareLocal(pos, n.Lit.Name)
}

// compileNativeDecl handles a `native name(...)` signature. The host
// registers the native before the module body runs, under the same
// qualified name NATIVE_REF resolves ("name", or "Class.name" inside a
// class), so a bare top-level native declaration only needs to bind
// that pre-registered value; a method native is bound into its class by
// the METHOD the caller emits.
func (c *Compiler) compileNativeDecl(n *ast.NativeDecl, qualifier string, pos token.Pos) {
	key := n.Name
	if qualifier != "" {
		key = qualifier + "." + n.Name
	}
	c.emitOp2(opcode.NATIVE_REF, c.addStringConst(key), pos.Line)
	if qualifier != "" {
		return // caller (class.go) binds the pushed Native with METHOD
	}
	if c.cur.depth == 0 {
		c.emitOp2(opcode.DEF_GLOBAL, c.addStringConst(n.Name), pos.Line)
		return
	}
	c.declareLocal(pos, n.Name)
}

func (c *Compiler) compileIf(n *ast.If, pos token.Pos) {
	c.compileExpr(n.Cond)
	elseJump := c.emitJump(opcode.JUMP_IF_FALSE, pos.Line)
	c.emit(opcode.POP, pos.Line)
	c.compileStmt(n.Then)
	endJump := c.emitJump(opcode.JUMP, pos.Line)
	c.patchJump(elseJump)
	c.emit(opcode.POP, pos.Line)
	if n.Else != nil {
		c.compileStmt(n.Else)
	}
	c.patchJump(endJump)
}

func (c *Compiler) compileWhile(n *ast.While, pos token.Pos) {
	outerDepth := c.cur.depth
	loopStart := c.currentOffset()
	c.compileExpr(n.Cond)
	exitJump := c.emitJump(opcode.JUMP_IF_FALSE, pos.Line)
	c.emit(opcode.POP, pos.Line)

	lc := &loopCtx{continueTarget: loopStart, iterDepth: c.cur.depth, outerDepth: outerDepth}
	c.cur.loops = append(c.cur.loops, lc)
	c.beginScope()
	for _, st := range n.Body.Stmts {
		c.compileStmt(st)
	}
	c.endScope(pos)
	c.cur.loops = c.cur.loops[:len(c.cur.loops)-1]

	c.emitLoop(loopStart, pos.Line)
	c.patchJump(exitJump)
	c.emit(opcode.POP, pos.Line)
	for _, p := range lc.breakPatches {
		c.patchJump(p)
	}
}

// compileFor lowers the C-style loop into the classic
// init; jump cond; step: Step; cond: Cond ... body; jump step
// shape so a continue (which must run Step before re-testing Cond) is
// a plain backward jump to an address already known when the body
// compiles.
func (c *Compiler) compileFor(n *ast.For, pos token.Pos) {
	outerDepth := c.cur.depth
	c.beginScope()
	if n.Init != nil {
		c.compileStmt(n.Init)
	}
	initJump := c.emitJump(opcode.JUMP, pos.Line)

	stepLabel := c.currentOffset()
	if n.Step != nil {
		c.compileExpr(n.Step)
		c.emit(opcode.POP, pos.Line)
	}

	condLabel := c.currentOffset()
	c.patchJump(initJump)
	_ = condLabel
	hasCond := n.Cond != nil
	var exitJump int
	if hasCond {
		c.compileExpr(n.Cond)
		exitJump = c.emitJump(opcode.JUMP_IF_FALSE, pos.Line)
		c.emit(opcode.POP, pos.Line)
	}

	lc := &loopCtx{continueTarget: stepLabel, iterDepth: c.cur.depth, outerDepth: outerDepth}
	c.cur.loops = append(c.cur.loops, lc)
	c.beginScope()
	for _, st := range n.Body.Stmts {
		c.compileStmt(st)
	}
	c.endScope(pos)
	c.cur.loops = c.cur.loops[:len(c.cur.loops)-1]

	c.emitLoop(stepLabel, pos.Line)
	if hasCond {
		c.patchJump(exitJump)
		c.emit(opcode.POP, pos.Line)
	}
	for _, p := range lc.breakPatches {
		c.patchJump(p)
	}
	c.endScope(pos)
}

// compileForIn desugars `for x in iterable` into FOR_PREP (calls the
// iterable's iterator protocol once) followed by a FOR_ITER/LOOP pair
// that fetches one element per pass and binds it to a fresh per-
// iteration local named x.
func (c *Compiler) compileForIn(n *ast.ForIn, pos token.Pos) {
	outerDepth := c.cur.depth
	c.beginScope()
	c.compileExpr(n.Iterable)
	c.declareLocal(pos, "$seq")
	c.emit(opcode.FOR_PREP, pos.Line)
	c.declareLocal(pos, "$iter")

	loopStart := c.currentOffset()
	exitJump := c.emitJump(opcode.FOR_ITER, pos.Line)

	lc := &loopCtx{continueTarget: loopStart, iterDepth: c.cur.depth, outerDepth: outerDepth}
	c.cur.loops = append(c.cur.loops, lc)
	c.beginScope()
	c.declareLocal(pos, n.Var)
	for _, st := range n.Body.Stmts {
		c.compileStmt(st)
	}
	c.endScope(pos)
	c.cur.loops = c.cur.loops[:len(c.cur.loops)-1]

	c.emitLoop(loopStart, pos.Line)
	c.patchJump(exitJump)
	for _, p := range lc.breakPatches {
		c.patchJump(p)
	}
	c.endScope(pos)
}

func (c *Compiler) compileBreak(pos token.Pos) {
	if len(c.cur.loops) == 0 {
		c.errorf(pos, "'break' outside a loop")
		return
	}
	lc := c.cur.loops[len(c.cur.loops)-1]
	c.emitScopeCleanup(lc.iterDepth, pos)
	lc.breakPatches = append(lc.breakPatches, c.emitJump(opcode.JUMP, pos.Line))
}

func (c *Compiler) compileContinue(pos token.Pos) {
	if len(c.cur.loops) == 0 {
		c.errorf(pos, "'continue' outside a loop")
		return
	}
	lc := c.cur.loops[len(c.cur.loops)-1]
	c.emitScopeCleanup(lc.iterDepth, pos)
	c.emitLoop(lc.continueTarget, pos.Line)
}

// emitScopeCleanup pops (or closes, if captured) every local declared
// deeper than targetDepth, without removing them from the locals array:
// the code textually following a break/continue still runs in the
// original scope, so the compiler's static bookkeeping must stay intact
// even though this particular control-flow edge needs the runtime stack
// unwound early.
func (c *Compiler) emitScopeCleanup(targetDepth int, pos token.Pos) {
	fs := c.cur
	for i := len(fs.locals) - 1; i >= 0 && fs.locals[i].depth > targetDepth; i-- {
		if fs.locals[i].captured {
			c.emit(opcode.CLOSE_UPVALUE, pos.Line)
		} else {
			c.emit(opcode.POP, pos.Line)
		}
	}
}

// compileTry compiles the protected block and its except arms, wrapping
// both in an outer catch-all when an ensure clause is present so the
// ensure body runs on every exit path (normal, handled exception, or
// unhandled exception re-raised to an outer frame).
func (c *Compiler) compileTry(n *ast.Try, pos token.Pos) {
	if n.Ensure == nil {
		c.compileTryCore(n.Body, n.Excepts, pos)
		return
	}

	outerPatch := c.emitTryPush(pos.Line)
	c.compileTryCore(n.Body, n.Excepts, pos)
	c.emit(opcode.TRY_POP, pos.Line)
	c.emit(opcode.ENSURE_ENTER, pos.Line)
	c.compileEnsureBody(n.Ensure, pos)
	c.emit(opcode.ENSURE_EXIT, pos.Line)
	skip := c.emitJump(opcode.JUMP, pos.Line)

	c.patchJump(outerPatch)
	c.emit(opcode.ENSURE_ENTER, pos.Line)
	c.compileEnsureBody(n.Ensure, pos)
	c.emit(opcode.ENSURE_EXIT, pos.Line)
	c.emit(opcode.RAISE, pos.Line)

	c.patchJump(skip)
}

func (c *Compiler) compileEnsureBody(b *ast.Block, pos token.Pos) {
	c.beginScope()
	for _, st := range b.Stmts {
		c.compileStmt(st)
	}
	c.endScope(pos)
}

// compileTryCore compiles the protected block and except chain without
// any ensure wrapping. On entry to the handler section, the stack holds
// exactly the raised value; each except clause tests it with IS and
// either binds+runs its body or falls through to the next. An
// exception matching no clause is re-raised.
func (c *Compiler) compileTryCore(body *ast.Block, excepts []ast.ExceptClause, pos token.Pos) {
	tryPatch := c.emitTryPush(pos.Line)
	c.beginScope()
	for _, st := range body.Stmts {
		c.compileStmt(st)
	}
	c.endScope(pos)
	c.emit(opcode.TRY_POP, pos.Line)
	doneJump := c.emitJump(opcode.JUMP, pos.Line)

	c.patchJump(tryPatch)
	var endJumps []int
	for _, ex := range excepts {
		c.emit(opcode.DUP, pos.Line)
		c.compileExpr(ex.Class)
		c.emit(opcode.IS, pos.Line)
		nextPatch := c.emitJump(opcode.JUMP_IF_FALSE, pos.Line)
		c.emit(opcode.POP, pos.Line)

		c.beginScope()
		if ex.BindName != "" {
			c.declareLocal(ex.Pos, ex.BindName)
		} else {
			c.emit(opcode.POP, pos.Line)
		}
		for _, st := range ex.Body.Stmts {
			c.compileStmt(st)
		}
		c.endScope(pos)
		endJumps = append(endJumps, c.emitJump(opcode.JUMP, pos.Line))

		c.patchJump(nextPatch)
		c.emit(opcode.POP, pos.Line)
	}
	c.emit(opcode.RAISE, pos.Line)

	for _, j := range endJumps {
		c.patchJump(j)
	}
	c.patchJump(doneJump)
}

// emitTryPush emits TRY_PUSH with a placeholder handler-offset operand
// (patched like any other jump) followed by the live local count, which
// the VM uses to truncate the value stack back to this point before
// dispatching to the handler.
func (c *Compiler) emitTryPush(line int) int {
	c.emit(opcode.TRY_PUSH, line)
	p := len(c.cur.proto.Code)
	c.emitUint16(0, line)
	c.emitUint16(uint16(len(c.cur.locals)), line)
	return p
}

// compileWith desugars `with e as x ... end` into a resource bound to a
// local, a protected body, and a close() call run on every exit path —
// the same catch-all-then-reraise shape compileTry uses for ensure.
func (c *Compiler) compileWith(n *ast.With, pos token.Pos) {
	c.beginScope()
	c.compileExpr(n.Resource)
	varName := n.Var
	if varName == "" {
		varName = "$with"
	}
	c.declareLocal(pos, varName)

	outerPatch := c.emitTryPush(pos.Line)
	c.beginScope()
	for _, st := range n.Body.Stmts {
		c.compileStmt(st)
	}
	c.endScope(pos)
	c.emit(opcode.TRY_POP, pos.Line)
	c.emitCloseCall(varName, pos)
	skip := c.emitJump(opcode.JUMP, pos.Line)

	c.patchJump(outerPatch)
	c.emitCloseCall(varName, pos)
	c.emit(opcode.RAISE, pos.Line)

	c.patchJump(skip)
	c.endScope(pos)
}

func (c *Compiler) emitCloseCall(varName string, pos token.Pos) {
	c.emitLoadVar(pos, varName)
	c.emitOp2(opcode.INVOKE, c.addStringConst("close"), pos.Line)
	c.emitByte(0, pos.Line)
	c.emit(opcode.POP, pos.Line)
}

// compileImport lowers the three import forms to IMPORT/IMPORT_AS/
// IMPORT_FROM. A bare `import a.b.c` binds the first path segment as a
// global referring to the loaded (sub)module; deeper segments are
// resolved as attribute access on that binding at runtime.
func (c *Compiler) compileImport(n *ast.Import, pos token.Pos) {
	path := strings.Join(n.Path, ".")
	pathConst := c.addStringConst(path)

	switch {
	case n.As != "":
		aliasConst := c.addStringConst(n.As)
		c.emit(opcode.IMPORT_AS, pos.Line)
		c.emitUint16(pathConst, pos.Line)
		c.emitUint16(aliasConst, pos.Line)
	case len(n.Names) > 0:
		c.emitOp2(opcode.IMPORT_FROM, pathConst, pos.Line)
		for i, name := range n.Names {
			nameConst := c.addStringConst(name)
			if i < len(n.Names)-1 {
				c.emit(opcode.DUP, pos.Line)
			}
			c.emitOp2(opcode.GET_FIELD, nameConst, pos.Line)
			c.emitOp2(opcode.DEF_GLOBAL, nameConst, pos.Line)
		}
	default:
		c.emitOp2(opcode.IMPORT, pathConst, pos.Line)
		nameConst := c.addStringConst(n.Path[0])
		c.emitOp2(opcode.DEF_GLOBAL, nameConst, pos.Line)
	}
}
