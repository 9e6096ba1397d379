package compiler

import (
	"jstar/internal/opcode"
	"jstar/internal/token"
	"jstar/value"
)

func upvalDescOf(fromLocal bool, index uint8) value.UpvalDesc {
	return value.UpvalDesc{FromLocal: fromLocal, Index: index}
}

func (c *Compiler) beginScope() { c.cur.depth++ }

// endScope pops every local declared at the scope being left, emitting
// CLOSE_UPVALUE for any that were captured so still-open upvalues are
// lifted to the heap before their slot is reused.
func (c *Compiler) endScope(pos token.Pos) {
	fs := c.cur
	fs.depth--
	for len(fs.locals) > 0 && fs.locals[len(fs.locals)-1].depth > fs.depth {
		last := fs.locals[len(fs.locals)-1]
		if last.captured {
			c.emit(opcode.CLOSE_UPVALUE, pos.Line)
		} else {
			c.emit(opcode.POP, pos.Line)
		}
		fs.locals = fs.locals[:len(fs.locals)-1]
	}
}

// declareLocal adds name as a new local in the current scope, reporting
// a compile error on redeclaration within the same scope.
func (c *Compiler) declareLocal(pos token.Pos, name string) int {
	fs := c.cur
	for i := len(fs.locals) - 1; i >= 0; i-- {
		l := fs.locals[i]
		if l.depth < fs.depth {
			break
		}
		if l.name == name {
			c.errorf(pos, "variable %q already declared in this scope", name)
		}
	}
	fs.locals = append(fs.locals, local{name: name, depth: fs.depth})
	return len(fs.locals) - 1
}

func resolveLocal(fs *funcScope, name string) (int, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i, true
		}
	}
	return -1, false
}

// resolveUpvalue recursively resolves name starting at fs's parent,
// adding upvalue entries at every intermediate level and marking the
// captured local.
func resolveUpvalue(fs *funcScope, name string) (int, bool) {
	if fs.parent == nil {
		return -1, false
	}
	if idx, ok := resolveLocal(fs.parent, name); ok {
		fs.parent.locals[idx].captured = true
		return addUpvalue(fs, name, true, uint8(idx)), true
	}
	if idx, ok := resolveUpvalue(fs.parent, name); ok {
		return addUpvalue(fs, name, false, uint8(idx)), true
	}
	return -1, false
}

func addUpvalue(fs *funcScope, name string, fromLocal bool, index uint8) int {
	for i, u := range fs.upvals {
		if u.fromLocal == fromLocal && u.index == index {
			return i
		}
	}
	fs.upvals = append(fs.upvals, upvalEntry{name: name, fromLocal: fromLocal, index: index})
	fs.proto.Upvalues = append(fs.proto.Upvalues, upvalDescOf(fromLocal, index))
	return len(fs.upvals) - 1
}

// varKind identifies where a resolved variable lives, so callers can
// pick GET/SET_LOCAL, GET/SET_UPVALUE, or GET/SET_GLOBAL.
type varKind int

const (
	varLocal varKind = iota
	varUpvalue
	varGlobal
)

func (c *Compiler) resolveVar(name string) (varKind, int) {
	if idx, ok := resolveLocal(c.cur, name); ok {
		return varLocal, idx
	}
	if idx, ok := resolveUpvalue(c.cur, name); ok {
		return varUpvalue, idx
	}
	return varGlobal, 0
}

func (c *Compiler) emitLoadVar(pos token.Pos, name string) {
	kind, idx := c.resolveVar(name)
	switch kind {
	case varLocal:
		c.emitOp1(opcode.GET_LOCAL, byte(idx), pos.Line)
	case varUpvalue:
		c.emitOp1(opcode.GET_UPVALUE, byte(idx), pos.Line)
	case varGlobal:
		c.emitOp2(opcode.GET_GLOBAL, c.addStringConst(name), pos.Line)
	}
}

func (c *Compiler) emitStoreVar(pos token.Pos, name string) {
	kind, idx := c.resolveVar(name)
	switch kind {
	case varLocal:
		c.emitOp1(opcode.SET_LOCAL, byte(idx), pos.Line)
	case varUpvalue:
		c.emitOp1(opcode.SET_UPVALUE, byte(idx), pos.Line)
	case varGlobal:
		c.emitOp2(opcode.SET_GLOBAL, c.addStringConst(name), pos.Line)
	}
}
