// Package module implements the VM's module registry and the types the
// import subsystem exchanges with the host: the import callback, its
// result, and the native registry a host can attach to a module. The VM
// itself never touches the filesystem; Resolver (resolver.go) is the
// reference host-side implementation of the callback that cmd/jstar and
// the REPL wire in.
package module

import (
	"io"

	"jstar/internal/gc"
	"jstar/value"
)

// Distinguished module names. CoreModule holds the built-ins (including
// the mutable importPaths list); MainModule is the entry point.
const (
	CoreModule = "__core__"
	MainModule = "__main__"
)

// Registry maps dotted module names to their live Module objects. A
// module is inserted before its top-level function runs so that cyclic
// imports observe the partially-initialized module instead of
// re-entering the loader.
type Registry struct {
	mods map[string]*value.Module
}

func NewRegistry() *Registry {
	return &Registry{mods: make(map[string]*value.Module)}
}

func (r *Registry) Get(name string) (*value.Module, bool) {
	m, ok := r.mods[name]
	return m, ok
}

func (r *Registry) Put(name string, m *value.Module) {
	r.mods[name] = m
}

// Remove unregisters a module whose top-level function raised, so a
// later import retries the load instead of binding a half-run module.
func (r *Registry) Remove(name string) {
	delete(r.mods, name)
}

// Each visits every registered module; the GC uses it to root the
// registry.
func (r *Registry) Each(fn func(name string, m *value.Module)) {
	for name, m := range r.mods {
		fn(name, m)
	}
}

// ImportResult is what the host's import callback hands back for a
// resolved module: either source text or serialized bytecode, the
// canonical path the module was found at, and an optional native
// registry to bind before the module body runs.
type ImportResult struct {
	Source     []byte
	IsBytecode bool
	Path       string
	Natives    *NativeRegistry
}

// ImportCallback resolves a dotted module name. Returning (nil, nil)
// means "not found"; a non-nil error aborts the import with an
// ImportException carrying the error's message.
type ImportCallback func(name string) (*ImportResult, error)

// NativeFn is the Go implementation of one native function or method.
// rt exposes the owning VM's services so natives can allocate, convert
// values, and write output without importing internal/vm.
type NativeFn func(rt Runtime, args []value.Value) (value.Value, error)

// Runtime is the slice of the VM natives see. Implemented by *vm.VM.
type Runtime interface {
	Heap() *gc.Heap
	Stdout() io.Writer
	// StringOf renders v the way print does, dispatching a __string__
	// overload when v is a class instance.
	StringOf(v value.Value) (string, error)
	// ImportPaths is the mutable search-path list exposed to guests as
	// __core__.importPaths.
	ImportPaths() *value.List
	// CallValue invokes a guest callable with args and returns its
	// result, for natives that take guest callbacks.
	CallValue(callee value.Value, args []value.Value) (value.Value, error)
	// Collect forces a full GC cycle (debug.gc()).
	Collect()
}

// NativeEntry declares one host function for binding. Name is either a
// bare function name (bound to the module's globals) or "Class.method"
// (bound into the named class's method table; the class must already be
// defined by the time the binding runs).
type NativeEntry struct {
	Name   string
	Arity  int
	Vararg bool
	Fn     NativeFn
}

// NativeRegistry is the ordered list of natives a host attaches to one
// module.
type NativeRegistry struct {
	Entries []NativeEntry
}

func (nr *NativeRegistry) Register(name string, arity int, fn NativeFn) {
	nr.Entries = append(nr.Entries, NativeEntry{Name: name, Arity: arity, Fn: fn})
}

func (nr *NativeRegistry) RegisterVararg(name string, arity int, fn NativeFn) {
	nr.Entries = append(nr.Entries, NativeEntry{Name: name, Arity: arity, Vararg: true, Fn: fn})
}
