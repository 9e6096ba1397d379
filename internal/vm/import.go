package vm

import (
	"strings"

	"jstar/internal/compiler"
	"jstar/value"
)

// opImport implements `import a.b.c`: every prefix module is imported
// in order, each child bound as a global of its parent under its own
// segment name, and the first segment's module pushed for the DEF_GLOBAL
// the compiler emits after IMPORT.
func (vm *VM) opImport(fr *frame, path string) error {
	segments := strings.Split(path, ".")
	var first, parent *value.Module
	for i := range segments {
		name := strings.Join(segments[:i+1], ".")
		mod, err := vm.importModule(name)
		if err != nil {
			return err
		}
		if parent != nil {
			parent.Globals.Set(value.ObjVal(vm.allocString(segments[i])), value.ObjVal(mod))
		}
		if first == nil {
			first = mod
		}
		parent = mod
	}
	vm.push(value.ObjVal(first))
	return nil
}

// opImportAs implements `import a.b.c as alias`: the leaf module is
// bound directly under alias in the importing module.
func (vm *VM) opImportAs(fr *frame, path, alias string) error {
	importer := fr.closure.Module
	mod, err := vm.importLeaf(path)
	if err != nil {
		return err
	}
	importer.Globals.Set(value.ObjVal(vm.allocString(alias)), value.ObjVal(mod))
	return nil
}

// opImportFrom implements `import a.b.c for x, y`: the leaf module is
// pushed; the compiler follows with GET_FIELD/DEF_GLOBAL pairs.
func (vm *VM) opImportFrom(fr *frame, path string) error {
	mod, err := vm.importLeaf(path)
	if err != nil {
		return err
	}
	vm.push(value.ObjVal(mod))
	return nil
}

func (vm *VM) importLeaf(path string) (*value.Module, error) {
	segments := strings.Split(path, ".")
	var mod *value.Module
	for i := range segments {
		name := strings.Join(segments[:i+1], ".")
		m, err := vm.importModule(name)
		if err != nil {
			return nil, err
		}
		mod = m
	}
	return mod, nil
}

// importModule loads one dotted module name: registry hit, else resolve
// through the host callback, compile or deserialize, register the
// module before its body runs (cyclic imports see the partial module),
// bind natives, and execute the top-level function. A failed body
// removes the module so a later import retries.
func (vm *VM) importModule(name string) (*value.Module, error) {
	if m, ok := vm.registry.Get(name); ok {
		return m, nil
	}
	if vm.cfg.Import == nil {
		return nil, vm.raisedf(vm.builtins.importExc, "no import callback: cannot resolve %q", name)
	}
	res, err := vm.cfg.Import(name)
	if err != nil {
		return nil, vm.raisedf(vm.builtins.importExc, "importing %q: %s", name, err.Error())
	}
	if res == nil {
		return nil, vm.raisedf(vm.builtins.importExc, "cannot resolve module %q", name)
	}

	var proto *value.FuncProto
	if res.IsBytecode {
		proto, err = vm.deserialize(res.Source, res.Path)
		if err != nil {
			return nil, vm.raisedf(vm.builtins.importExc, "loading %q: %s", name, err.Error())
		}
	} else {
		compiled, ok := compiler.CompileSource(vm.heap, res.Path, string(res.Source), compiler.ErrorFunc(vm.cfg.OnError))
		if !ok {
			return nil, vm.raisedf(vm.builtins.importExc, "module %q failed to compile", name)
		}
		proto = compiled
	}

	mod := vm.allocModule(name, res.Path)
	vm.registry.Put(name, mod)
	vm.RegisterNatives(mod, res.Natives)

	if err := vm.runModuleBody(mod, proto); err != nil {
		vm.registry.Remove(name)
		return nil, err
	}
	return mod, nil
}

// runModuleBody executes a module's top-level function to completion in
// a nested run.
func (vm *VM) runModuleBody(mod *value.Module, proto *value.FuncProto) error {
	cl := vm.allocClosure(proto)
	cl.Module = mod
	_, err := vm.CallValue(value.ObjVal(cl), nil)
	return err
}

// ---- top-level evaluate entry points ----

// GetOrCreateModule returns the registered module for name, creating
// and registering an empty one if needed (the REPL and the embedding
// API evaluate repeatedly into one persistent module).
func (vm *VM) GetOrCreateModule(name string) *value.Module {
	if m, ok := vm.registry.Get(name); ok {
		return m
	}
	m := vm.allocModule(name, "")
	vm.registry.Put(name, m)
	return m
}

// EvalSource compiles src and runs it in the named module. Syntax and
// compile errors are reported through the configured error callback and
// returned as a plain error; runtime failures return *UncaughtError.
func (vm *VM) EvalSource(moduleName, path, src string) error {
	proto, ok := compiler.CompileSource(vm.heap, path, src, compiler.ErrorFunc(vm.cfg.OnError))
	if !ok {
		return &CompileFailed{Path: path}
	}
	return vm.EvalProto(moduleName, proto)
}

// EvalProto runs an already-compiled prototype in the named module.
func (vm *VM) EvalProto(moduleName string, proto *value.FuncProto) error {
	mod := vm.GetOrCreateModule(moduleName)
	return vm.runModuleBody(mod, proto)
}

// CompileFailed reports that source failed to lex, parse, or compile;
// the details already went to the error callback.
type CompileFailed struct {
	Path string
}

func (e *CompileFailed) Error() string { return "compilation of " + e.Path + " failed" }

// deserialize is wired by the embedding layer (SetDeserializer) to
// internal/bytecode.Deserialize, keeping vm decoupled from the
// container format.
func (vm *VM) deserialize(data []byte, path string) (*value.FuncProto, error) {
	if vm.deserializeFn == nil {
		return nil, vm.raisedf(vm.builtins.importExc, "bytecode loading not configured")
	}
	return vm.deserializeFn(data, path)
}

// SetDeserializer installs the bytecode loader used for .jsc imports.
func (vm *VM) SetDeserializer(fn func(data []byte, path string) (*value.FuncProto, error)) {
	vm.deserializeFn = fn
}
