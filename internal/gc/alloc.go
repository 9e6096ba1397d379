package gc

import "jstar/value"

// Intern returns the canonical String object for s: intern(s) == intern(s)
// by identity. The intern table is weakly
// held: Collect drops an entry whenever its String isn't independently
// reachable.
func (h *Heap) Intern(s string) *value.String {
	if str, ok := h.intern[s]; ok {
		return str
	}
	str := value.NewString(s, value.FNV1a32(s))
	h.intern[s] = str
	h.register(str, uintptr(24+len(s)))
	return str
}

func (h *Heap) NewList(elems []value.Value) *value.List {
	l := value.NewList(elems)
	h.register(l, uintptr(24+16*len(elems)))
	return l
}

func (h *Heap) NewTuple(elems []value.Value) *value.Tuple {
	t := value.NewTuple(elems)
	h.register(t, uintptr(24+16*len(elems)))
	return t
}

func (h *Heap) NewTable() *value.Table {
	t := value.NewTable()
	h.register(t, 128)
	return t
}

func (h *Heap) NewFuncProto(name, modulePath string) *value.FuncProto {
	p := value.NewFuncProto(name, modulePath)
	h.register(p, 64)
	return p
}

func (h *Heap) NewNative(name string, arity int, vararg bool, fn value.NativeFunc) *value.Native {
	n := &value.Native{Name: name, Arity: arity, Vararg: vararg, Fn: fn}
	h.register(n, 48)
	return n
}

func (h *Heap) NewClosure(proto *value.FuncProto) *value.Closure {
	c := value.NewClosure(proto)
	h.register(c, uintptr(32+8*len(proto.Upvalues)))
	return c
}

func (h *Heap) NewUpvalue(stack []value.Value, idx int) *value.Upvalue {
	u := &value.Upvalue{Stack: stack, StackIdx: idx}
	h.register(u, 32)
	return u
}

func (h *Heap) NewClass(name string, super *value.Class) *value.Class {
	c := value.NewClass(name, super)
	h.register(c, 96)
	return c
}

func (h *Heap) NewInstance(class *value.Class) *value.Instance {
	i := value.NewInstance(class)
	h.register(i, 80)
	return i
}

func (h *Heap) NewModule(name, path string) *value.Module {
	m := value.NewModule(name, path)
	h.register(m, 128)
	return m
}

func (h *Heap) NewBoundMethod(recv, method value.Value) *value.BoundMethod {
	b := &value.BoundMethod{Receiver: recv, Method: method}
	h.register(b, 32)
	return b
}

func (h *Heap) NewGenerator(cl *value.Closure) *value.Generator {
	g := value.NewGenerator(cl)
	h.register(g, 64)
	return g
}

func (h *Heap) NewUserdata(tag string, size int) *value.Userdata {
	u := value.NewUserdata(tag, size)
	h.register(u, uintptr(32+size))
	return u
}

func (h *Heap) NewSpread(elems []value.Value) *value.Spread {
	s := &value.Spread{Elems: elems}
	h.register(s, uintptr(24+16*len(elems)))
	return s
}

func (h *Heap) NewStackTrace() *value.StackTrace {
	s := value.NewStackTrace()
	h.register(s, 32)
	return s
}
