// Package vm implements the bytecode interpreter: one contiguous value
// stack, a call-frame stack, open-upvalue bookkeeping, the exception
// handler machinery, generators, and the import pipeline. It is the
// runtime half of the compiler/vm pair sharing internal/opcode.
package vm

import (
	"io"
	"os"
	"sync/atomic"

	"jstar/internal/gc"
	"jstar/internal/module"
	"jstar/internal/token"
	"jstar/value"
)

// ErrorFunc receives syntax and compile errors produced while a VM
// compiles imported or evaluated source.
type ErrorFunc func(path string, pos token.Pos, msg string)

// Config is the embedding API's VM construction parameter block.
type Config struct {
	StackSize        int // initial value-stack capacity in slots
	MaxFrames        int // call depth limit; exceeding it raises StackOverflowException
	InitialGCThreshold uintptr
	HeapGrowRate     float64
	GCStress         bool
	OnError          ErrorFunc
	Import           module.ImportCallback
	Stdout           io.Writer
	HostData         any
}

func DefaultConfig() Config {
	return Config{
		StackSize: 1024,
		MaxFrames: 1000,
	}
}

// handler is one runtime record stacked by TRY_PUSH: where to resume and
// what absolute stack depth to unwind to before pushing the raised value.
type handler struct {
	ip    int
	depth int
}

// frame is one active call: the closure being run, its instruction
// pointer, the stack index of local slot 0, and the slot the call's
// result replaces when it returns.
type frame struct {
	closure *value.Closure
	ip      int
	base    int
	retSlot int
	handlers []handler

	// gen is non-nil while this frame is a resumed generator body.
	gen *value.Generator
	// construct marks a constructor frame: its return value is discarded
	// and instance is pushed instead.
	construct bool
	instance  value.Value
}

// VM is one single-threaded interpreter instance. It owns its heap,
// module registry, and stacks exclusively; hosts must not call into one
// VM from multiple OS threads.
type VM struct {
	cfg  Config
	heap *gc.Heap

	stack []value.Value
	sp    int

	frames []frame
	// syncBases records, for every in-flight nested run (native calling
	// back into the VM, operator overload dispatch, generator resume),
	// the frame depth that run must not unwind past.
	syncBases []int

	openUpvals *value.Upvalue

	registry *module.Registry
	core     *value.Module
	// natives holds host-registered natives awaiting a NATIVE_REF in the
	// given module, keyed by the declaration's qualified name.
	natives map[*value.Module]map[string]*value.Native

	importPaths *value.List

	breakFlag atomic.Bool
	lastExc   value.Value

	// deserializeFn loads serialized bytecode for .jsc imports; wired by
	// the embedding layer so vm stays decoupled from the container
	// format.
	deserializeFn func(data []byte, path string) (*value.FuncProto, error)

	builtins builtinClasses
}

var _ module.Runtime = (*VM)(nil)

// New creates a VM, its heap, and the __core__ module with the
// built-in globals (print, the exception hierarchy, the builtin type
// classes, and importPaths).
func New(cfg Config) *VM {
	def := DefaultConfig()
	if cfg.StackSize <= 0 {
		cfg.StackSize = def.StackSize
	}
	if cfg.MaxFrames <= 0 {
		cfg.MaxFrames = def.MaxFrames
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	vm := &VM{
		cfg: cfg,
		heap: gc.New(gc.Config{
			InitialThreshold: cfg.InitialGCThreshold,
			HeapGrowRate:     cfg.HeapGrowRate,
			Stress:           cfg.GCStress,
		}),
		stack:    make([]value.Value, cfg.StackSize),
		registry: module.NewRegistry(),
		natives:  make(map[*value.Module]map[string]*value.Native),
	}
	vm.initCore()
	return vm
}

// Free drops every reference the VM holds so a final collection can
// reclaim the whole heap. The VM must not be used afterwards.
func (vm *VM) Free() {
	vm.sp = 0
	vm.frames = nil
	vm.openUpvals = nil
	vm.lastExc = value.NullVal()
	vm.registry = module.NewRegistry()
	vm.heap.Collect(vm)
}

func (vm *VM) Heap() *gc.Heap            { return vm.heap }
func (vm *VM) Stdout() io.Writer         { return vm.cfg.Stdout }
func (vm *VM) HostData() any             { return vm.cfg.HostData }
func (vm *VM) ImportPaths() *value.List  { return vm.importPaths }
func (vm *VM) Registry() *module.Registry { return vm.registry }
func (vm *VM) CoreModule() *value.Module { return vm.core }

// Interrupt sets the eval-break flag. It is the only VM entry point
// that is safe to call from a signal handler or another goroutine: a
// single atomic store, polled at backward jumps and call boundaries.
func (vm *VM) Interrupt() { vm.breakFlag.Store(true) }

// ---- value stack ----

func (vm *VM) push(v value.Value) {
	if vm.sp == len(vm.stack) {
		vm.growStack(vm.sp + 1)
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() value.Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(n int) value.Value {
	return vm.stack[vm.sp-1-n]
}

// EnsureStack guarantees capacity for n more pushes without another
// relocation, for hosts about to push a batch of values.
func (vm *VM) EnsureStack(n int) {
	if vm.sp+n > len(vm.stack) {
		vm.growStack(vm.sp + n)
	}
}

// growStack relocates the value stack. Open upvalues alias stack slots
// through their own slice header, so each one is re-pointed at the new
// backing array; frames hold integer indices and need no adjustment.
func (vm *VM) growStack(need int) {
	newCap := len(vm.stack) * 2
	if newCap < need {
		newCap = need
	}
	newStack := make([]value.Value, newCap)
	copy(newStack, vm.stack[:vm.sp])
	vm.stack = newStack
	for uv := vm.openUpvals; uv != nil; uv = uv.Next {
		uv.Stack = vm.stack
	}
}

// Depth reports the current value stack depth (the embedding API's
// notion of slot count).
func (vm *VM) Depth() int { return vm.sp }

// ---- GC glue ----

// MarkRoots implements gc.Roots: the VM stack, call frames, module
// registry, open upvalues, the current exception, and importPaths.
func (vm *VM) MarkRoots(push func(value.Value)) {
	for i := 0; i < vm.sp; i++ {
		push(vm.stack[i])
	}
	for i := range vm.frames {
		fr := &vm.frames[i]
		if fr.closure != nil {
			push(value.ObjVal(fr.closure))
		}
		if fr.gen != nil {
			push(value.ObjVal(fr.gen))
		}
		push(fr.instance)
	}
	for uv := vm.openUpvals; uv != nil; uv = uv.Next {
		push(value.ObjVal(uv))
	}
	vm.registry.Each(func(_ string, m *value.Module) {
		push(value.ObjVal(m))
	})
	for _, byName := range vm.natives {
		for _, n := range byName {
			push(value.ObjVal(n))
		}
	}
	push(vm.lastExc)
	if vm.importPaths != nil {
		push(value.ObjVal(vm.importPaths))
	}
}

// maybeCollect runs a collection if the heap crossed its threshold (or
// stress mode is on). Called before every allocation the VM performs.
func (vm *VM) maybeCollect() {
	if vm.heap.NeedsCollect() {
		vm.heap.Collect(vm)
	}
}

func (vm *VM) allocString(s string) *value.String {
	vm.maybeCollect()
	return vm.heap.Intern(s)
}

func (vm *VM) allocList(elems []value.Value) *value.List {
	vm.maybeCollect()
	return vm.heap.NewList(elems)
}

func (vm *VM) allocTuple(elems []value.Value) *value.Tuple {
	vm.maybeCollect()
	return vm.heap.NewTuple(elems)
}

func (vm *VM) allocTable() *value.Table {
	vm.maybeCollect()
	return vm.heap.NewTable()
}

func (vm *VM) allocClosure(proto *value.FuncProto) *value.Closure {
	vm.maybeCollect()
	return vm.heap.NewClosure(proto)
}

func (vm *VM) allocClass(name string, super *value.Class) *value.Class {
	vm.maybeCollect()
	return vm.heap.NewClass(name, super)
}

func (vm *VM) allocInstance(cls *value.Class) *value.Instance {
	vm.maybeCollect()
	return vm.heap.NewInstance(cls)
}

func (vm *VM) allocModule(name, path string) *value.Module {
	vm.maybeCollect()
	return vm.heap.NewModule(name, path)
}

func (vm *VM) allocBoundMethod(recv, method value.Value) *value.BoundMethod {
	vm.maybeCollect()
	return vm.heap.NewBoundMethod(recv, method)
}

func (vm *VM) allocGenerator(cl *value.Closure) *value.Generator {
	vm.maybeCollect()
	return vm.heap.NewGenerator(cl)
}

func (vm *VM) allocNative(name string, arity int, vararg bool, fn value.NativeFunc) *value.Native {
	vm.maybeCollect()
	return vm.heap.NewNative(name, arity, vararg, fn)
}

func (vm *VM) allocUpvalue(idx int) *value.Upvalue {
	vm.maybeCollect()
	return vm.heap.NewUpvalue(vm.stack, idx)
}

func (vm *VM) allocStackTrace() *value.StackTrace {
	vm.maybeCollect()
	return vm.heap.NewStackTrace()
}

// Collect forces a full GC cycle, for debug.gc() and tests.
func (vm *VM) Collect() { vm.heap.Collect(vm) }

// ---- upvalues ----

// captureUpvalue returns the open upvalue for stack slot idx, creating
// and inserting it into the descending-ordered open list if needed.
func (vm *VM) captureUpvalue(idx int) *value.Upvalue {
	var prev *value.Upvalue
	uv := vm.openUpvals
	for uv != nil && uv.StackIdx > idx {
		prev = uv
		uv = uv.Next
	}
	if uv != nil && uv.StackIdx == idx {
		return uv
	}
	created := vm.allocUpvalue(idx)
	created.Next = uv
	if prev == nil {
		vm.openUpvals = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue pointing at slot from or
// above, lifting the slot's value into the upvalue before the slot is
// popped or overwritten.
func (vm *VM) closeUpvalues(from int) {
	for vm.openUpvals != nil && vm.openUpvals.StackIdx >= from {
		uv := vm.openUpvals
		vm.openUpvals = uv.Next
		uv.Close()
	}
}
