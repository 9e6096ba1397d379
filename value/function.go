package value

// UpvalDesc describes, for one captured variable, whether a Closure's
// upvalue slot comes from the immediately enclosing function's locals or
// from one of its own upvalues.
type UpvalDesc struct {
	FromLocal bool
	Index     uint8
}

// FuncProto is the compiled, immutable form of a function: bytecode plus
// everything needed to execute it, but no captured state. Closures (and
// the top-level "script function" the compiler always produces) are
// what the VM actually calls.
type FuncProto struct {
	Header
	Name        string
	ModulePath  string // source path, used in stack traces
	Arity       int
	Defaults    []Value // parallel to all params (a method's receiver slot included); NullVal entries are "no default" placeholders checked via HasDefault
	HasDefault  []bool
	Vararg      bool
	IsGenerator bool

	Code      []byte
	Lines     []int // one entry per byte of Code, run-length compressed at serialize time only
	Constants []Value
	Upvalues  []UpvalDesc
	NumLocals int // locals slots this function needs, including its arguments
}

func NewFuncProto(name, modulePath string) *FuncProto {
	return &FuncProto{Name: name, ModulePath: modulePath}
}

func (f *FuncProto) Kind() ObjKind { return ObjFunction }
func (f *FuncProto) String() string {
	if f.Name == "" {
		return "<fun anonymous>"
	}
	return "<fun " + f.Name + ">"
}
func (f *FuncProto) Trace(push func(Value)) {
	for _, c := range f.Constants {
		push(c)
	}
}

// LineFor returns the source line paired with instruction offset off.
func (f *FuncProto) LineFor(off int) int {
	if off < 0 || off >= len(f.Lines) {
		if len(f.Lines) == 0 {
			return 0
		}
		return f.Lines[len(f.Lines)-1]
	}
	return f.Lines[off]
}

// NativeFunc is the Go function a Native object wraps. args is exactly
// Arity long (or >= Arity with the tail gathered into a vararg tuple
// already, by VM convention); it returns the call's result or an error
// that the VM turns into a raised exception.
type NativeFunc func(args []Value) (Value, error)

// Native is a host function bound into a module or class, callable with
// the same convention as a Closure but without a bytecode body.
type Native struct {
	Header
	Name       string
	Arity      int
	Vararg     bool
	Defaults   []Value
	HasDefault []bool
	Fn         NativeFunc
}

func (n *Native) Kind() ObjKind          { return ObjNative }
func (n *Native) String() string         { return "<native " + n.Name + ">" }
func (n *Native) Trace(push func(Value)) {}

// Upvalue aliases an enclosing function's local. While open it points at
// a live VM stack slot (Stack/StackIdx); once its frame returns, the VM
// closes it by copying the value into Closed and clearing Stack.
type Upvalue struct {
	Header
	Stack    []Value // the owning coroutine's value stack, nil once closed
	StackIdx int
	Closed   Value
	// Next chains open upvalues in descending stack-position order, the
	// intrusive list the language describes attached to each coroutine.
	Next *Upvalue
}

func (u *Upvalue) Kind() ObjKind { return ObjUpvalue }
func (u *Upvalue) String() string {
	return "<upvalue>"
}
func (u *Upvalue) Trace(push func(Value)) {
	if u.Stack == nil {
		push(u.Closed)
	}
}

func (u *Upvalue) Get() Value {
	if u.Stack != nil {
		return u.Stack[u.StackIdx]
	}
	return u.Closed
}

func (u *Upvalue) Set(v Value) {
	if u.Stack != nil {
		u.Stack[u.StackIdx] = v
		return
	}
	u.Closed = v
}

func (u *Upvalue) Close() {
	if u.Stack == nil {
		return
	}
	u.Closed = u.Stack[u.StackIdx]
	u.Stack = nil
	u.Next = nil
}

// Closure pairs a FuncProto with its captured Upvalues; it is the only
// callable object the VM produces at runtime for guest-defined functions.
type Closure struct {
	Header
	Proto    *FuncProto
	Upvalues []*Upvalue
	// Module is the module this closure was defined in; GET_GLOBAL and
	// DEF_GLOBAL inside its body resolve against this module's globals.
	Module *Module
	// HomeClass is set by METHOD when this closure is bound into a class's
	// method table; SUPER_INVOKE uses HomeClass.Super as the starting
	// point for resolving `super.name(...)`. Nil for closures that are
	// not class methods.
	HomeClass *Class
}

func NewClosure(proto *FuncProto) *Closure {
	return &Closure{Proto: proto, Upvalues: make([]*Upvalue, len(proto.Upvalues))}
}

func (c *Closure) Kind() ObjKind { return ObjClosure }
func (c *Closure) String() string {
	return c.Proto.String()
}
func (c *Closure) Trace(push func(Value)) {
	push(ObjVal(c.Proto))
	for _, uv := range c.Upvalues {
		if uv != nil {
			push(ObjVal(uv))
		}
	}
	if c.Module != nil {
		push(ObjVal(c.Module))
	}
	if c.HomeClass != nil {
		push(ObjVal(c.HomeClass))
	}
}

// BoundMethod pairs a receiver with the callable found on its class,
// produced by BIND_METHOD and by field access that resolves to a method
// name.
type BoundMethod struct {
	Header
	Receiver Value
	Method   Value // a *Closure or *Native
}

func (b *BoundMethod) Kind() ObjKind { return ObjBoundMethod }
func (b *BoundMethod) String() string {
	return "<bound method>"
}
func (b *BoundMethod) Trace(push func(Value)) {
	push(b.Receiver)
	push(b.Method)
}
