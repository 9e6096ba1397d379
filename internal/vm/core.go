package vm

import (
	"fmt"
	"strings"

	"jstar/internal/module"
	"jstar/value"
)

// builtinClasses caches the classes __core__ publishes so opcode
// handlers can reach them without a globals lookup.
type builtinClasses struct {
	exception        *value.Class
	typeExc          *value.Class
	nameExc          *value.Class
	fieldExc         *value.Class
	indexExc         *value.Class
	stackOverflowExc *value.Class
	interruptedExc   *value.Class
	importExc        *value.Class

	numberCls    *value.Class
	boolCls      *value.Class
	nullCls      *value.Class
	stringCls    *value.Class
	listCls      *value.Class
	tupleCls     *value.Class
	tableCls     *value.Class
	functionCls  *value.Class
	generatorCls *value.Class
	classCls     *value.Class
	moduleCls    *value.Class
	handleCls    *value.Class
}

// initCore builds the __core__ module: print and type, the Exception
// hierarchy, one type class per builtin value kind (the targets of the
// `is` operator), and the mutable importPaths list.
func (vm *VM) initCore() {
	core := vm.heap.NewModule(module.CoreModule, "")
	vm.core = core
	vm.registry.Put(module.CoreModule, core)

	vm.importPaths = vm.heap.NewList(nil)
	vm.defineCore("importPaths", value.ObjVal(vm.importPaths))

	vm.builtins.exception = vm.defineExceptionClass("Exception", nil)
	vm.builtins.typeExc = vm.defineExceptionClass("TypeException", vm.builtins.exception)
	vm.builtins.nameExc = vm.defineExceptionClass("NameException", vm.builtins.exception)
	vm.builtins.fieldExc = vm.defineExceptionClass("FieldException", vm.builtins.exception)
	vm.builtins.indexExc = vm.defineExceptionClass("IndexException", vm.builtins.exception)
	vm.builtins.stackOverflowExc = vm.defineExceptionClass("StackOverflowException", vm.builtins.exception)
	vm.builtins.interruptedExc = vm.defineExceptionClass("InterruptedException", vm.builtins.exception)
	vm.builtins.importExc = vm.defineExceptionClass("ImportException", vm.builtins.exception)

	vm.builtins.numberCls = vm.defineTypeClass("Number")
	vm.builtins.boolCls = vm.defineTypeClass("Boolean")
	vm.builtins.nullCls = vm.defineTypeClass("Null")
	vm.builtins.stringCls = vm.defineTypeClass("String")
	vm.builtins.listCls = vm.defineTypeClass("List")
	vm.builtins.tupleCls = vm.defineTypeClass("Tuple")
	vm.builtins.tableCls = vm.defineTypeClass("Table")
	vm.builtins.functionCls = vm.defineTypeClass("Function")
	vm.builtins.generatorCls = vm.defineTypeClass("Generator")
	vm.builtins.classCls = vm.defineTypeClass("Class")
	vm.builtins.moduleCls = vm.defineTypeClass("Module")
	vm.builtins.handleCls = vm.defineTypeClass("Handle")

	vm.defineCoreNative("print", 1, true, vm.nativePrint)
	vm.defineCoreNative("type", 1, false, vm.nativeType)
}

func (vm *VM) defineCore(name string, v value.Value) {
	vm.core.Globals.Set(value.ObjVal(vm.heap.Intern(name)), v)
}

func (vm *VM) defineTypeClass(name string) *value.Class {
	cls := vm.heap.NewClass(name, nil)
	vm.defineCore(name, value.ObjVal(cls))
	return cls
}

// defineExceptionClass builds one class of the exception hierarchy with
// the native construct/msg/err surface guest code relies on.
func (vm *VM) defineExceptionClass(name string, super *value.Class) *value.Class {
	cls := vm.heap.NewClass(name, super)
	if super == nil {
		msgKey := value.ObjVal(vm.heap.Intern("_msg"))

		construct := vm.heap.NewNative("construct", 2, false, func(args []value.Value) (value.Value, error) {
			inst, ok := asInstance(args[0])
			if !ok {
				return value.NullVal(), fmt.Errorf("construct called on non-instance")
			}
			inst.Fields.Set(msgKey, args[1])
			return value.NullVal(), nil
		})
		construct.Defaults = []value.Value{value.NullVal()}
		construct.HasDefault = []bool{true}
		cls.Methods.Set(value.ObjVal(vm.heap.Intern("construct")), value.ObjVal(construct))

		msg := vm.heap.NewNative("msg", 1, false, func(args []value.Value) (value.Value, error) {
			inst, ok := asInstance(args[0])
			if !ok {
				return value.NullVal(), fmt.Errorf("msg called on non-instance")
			}
			m, _ := inst.Fields.Get(msgKey)
			return m, nil
		})
		cls.Methods.Set(value.ObjVal(vm.heap.Intern("msg")), value.ObjVal(msg))

		str := vm.heap.NewNative("__string__", 1, false, func(args []value.Value) (value.Value, error) {
			inst, _ := asInstance(args[0])
			m, found := inst.Fields.Get(msgKey)
			if !found || m.IsNull() {
				return value.ObjVal(vm.allocString(inst.Class.Name)), nil
			}
			return value.ObjVal(vm.allocString(inst.Class.Name + ": " + m.String())), nil
		})
		cls.Methods.Set(value.ObjVal(vm.heap.Intern("__string__")), value.ObjVal(str))
	}
	vm.defineCore(name, value.ObjVal(cls))
	return cls
}

func (vm *VM) defineCoreNative(name string, arity int, vararg bool, fn value.NativeFunc) {
	n := vm.heap.NewNative(name, arity, vararg, fn)
	vm.defineCore(name, value.ObjVal(n))
}

// nativePrint writes its arguments separated by spaces, newline
// terminated, dispatching __string__ overloads. Declared vararg, so
// args[0] is the gathered argument tuple.
func (vm *VM) nativePrint(args []value.Value) (value.Value, error) {
	var b strings.Builder
	if rest, ok := args[0].AsObj().(*value.Tuple); args[0].IsObj() && ok {
		for i, v := range rest.Elems {
			s, err := vm.StringOf(v)
			if err != nil {
				return value.NullVal(), err
			}
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(s)
		}
	}
	b.WriteByte('\n')
	fmt.Fprint(vm.cfg.Stdout, b.String())
	return value.NullVal(), nil
}

func (vm *VM) nativeType(args []value.Value) (value.Value, error) {
	return value.ObjVal(vm.classOf(args[0])), nil
}

// RegisterNatives installs a host native registry into mod: bare names
// bind immediately as module globals; qualified "Class.method" names
// wait in the pending table for the NATIVE_REF their `native`
// declaration compiles to.
func (vm *VM) RegisterNatives(mod *value.Module, reg *module.NativeRegistry) {
	if reg == nil {
		return
	}
	pending := vm.natives[mod]
	if pending == nil {
		pending = make(map[string]*value.Native)
		vm.natives[mod] = pending
	}
	for _, e := range reg.Entries {
		fn := e.Fn
		native := vm.allocNative(e.Name, e.Arity, e.Vararg, func(args []value.Value) (value.Value, error) {
			return fn(vm, args)
		})
		if i := strings.IndexByte(e.Name, '.'); i >= 0 {
			native.Name = e.Name[i+1:]
			pending[e.Name] = native
			continue
		}
		pending[e.Name] = native
		mod.Globals.Set(value.ObjVal(vm.allocString(e.Name)), value.ObjVal(native))
	}
}

// nativeRef resolves a `native` declaration to its pre-registered host
// function; arity for methods includes the implicit receiver.
func (vm *VM) nativeRef(fr *frame, qualified string) error {
	pending := vm.natives[fr.closure.Module]
	n, ok := pending[qualified]
	if !ok {
		return vm.raisedf(vm.builtins.nameExc,
			"no native registered for %q in module %s", qualified, fr.closure.Module.Name)
	}
	if strings.IndexByte(qualified, '.') >= 0 {
		// Bound as a method: account for the receiver slot.
		method := vm.allocNative(n.Name, n.Arity+1, n.Vararg, n.Fn)
		vm.push(value.ObjVal(method))
		return nil
	}
	vm.push(value.ObjVal(n))
	return nil
}
