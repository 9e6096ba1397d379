package vm

import (
	"jstar/internal/module"
	"jstar/value"
)

// Exported stack primitives backing the embedding API. Slots are
// absolute indices from the stack bottom when non-negative, or offsets
// from the top when negative (-1 is the topmost value).

func (vm *VM) Push(v value.Value) { vm.push(v) }

func (vm *VM) Pop() value.Value { return vm.pop() }

func (vm *VM) PopN(n int) {
	vm.sp -= n
}

func (vm *VM) Dup() { vm.push(vm.peek(0)) }

func (vm *VM) slotIndex(slot int) int {
	if slot < 0 {
		return vm.sp + slot
	}
	return slot
}

func (vm *VM) Get(slot int) value.Value { return vm.stack[vm.slotIndex(slot)] }

func (vm *VM) Set(slot int, v value.Value) { vm.stack[vm.slotIndex(slot)] = v }

// Intern builds (or finds) the canonical string value for s.
func (vm *VM) Intern(s string) value.Value { return value.ObjVal(vm.allocString(s)) }

// NewList, NewTuple, and NewTable allocate empty guest collections for
// hosts assembling structured values slot by slot.
func (vm *VM) NewList() value.Value { return value.ObjVal(vm.allocList(nil)) }

func (vm *VM) NewTuple(elems []value.Value) value.Value {
	return value.ObjVal(vm.allocTuple(elems))
}

func (vm *VM) NewTable() value.Value {
	t := vm.allocTable()
	t.HashFunc = vm.instanceHash
	return value.ObjVal(t)
}

// NewUserdata allocates a host-owned buffer with an optional finalizer
// run when the GC collects it.
func (vm *VM) NewUserdata(tag string, size int, finalize value.Finalizer) *value.Userdata {
	vm.maybeCollect()
	u := vm.heap.NewUserdata(tag, size)
	u.Finalize = finalize
	return u
}

// Call pops nargs arguments and the callable beneath them, invokes it,
// and pushes the single result: the stack ends exactly one deeper than
// it was before callee and arguments were pushed, minus those inputs.
func (vm *VM) Call(nargs int) error {
	calleeIdx := vm.sp - nargs - 1
	res, err := vm.finishCall(calleeIdx, nargs)
	if err != nil {
		if u, ok := err.(*UncaughtError); ok {
			vm.push(u.Val)
		}
		return err
	}
	vm.push(res)
	return nil
}

// CallMethod invokes method name on the receiver sitting below nargs
// arguments, replacing receiver and arguments with the result.
func (vm *VM) CallMethod(name string, nargs int) error {
	before := len(vm.frames)
	recvIdx := vm.sp - nargs - 1
	if err := vm.invoke(name, nargs); err != nil {
		vm.sp = recvIdx
		if r, ok := err.(*RaisedError); ok {
			vm.lastExc = r.Val
			vm.push(r.Val)
		}
		return err
	}
	if len(vm.frames) > before {
		vm.syncBases = append(vm.syncBases, before)
		err := vm.run(before)
		vm.syncBases = vm.syncBases[:len(vm.syncBases)-1]
		if err != nil {
			vm.sp = recvIdx
			if u, ok := err.(*UncaughtError); ok {
				vm.push(u.Val)
			}
			return err
		}
	}
	return nil
}

// Raise raises the value on top of the stack as a guest exception. The
// error return carries it to the host; guest frames between the host
// boundary and the nearest handler have already unwound.
func (vm *VM) Raise() error {
	exc := vm.pop()
	return vm.raise(exc)
}

// GetGlobal pushes the named global of a module onto the stack.
func (vm *VM) GetGlobal(moduleName, name string) bool {
	mod, ok := vm.registry.Get(moduleName)
	if !ok {
		return false
	}
	v, ok := mod.Globals.Get(value.ObjVal(vm.allocString(name)))
	if !ok {
		return false
	}
	vm.push(v)
	return true
}

// SetGlobal pops the top of the stack into the named global.
func (vm *VM) SetGlobal(moduleName, name string) bool {
	mod, ok := vm.registry.Get(moduleName)
	if !ok {
		return false
	}
	mod.Globals.Set(value.ObjVal(vm.allocString(name)), vm.pop())
	return true
}

// RegisterNative binds a host function as a global of the named module
// (created if absent).
func (vm *VM) RegisterNative(moduleName, name string, arity int, vararg bool, fn module.NativeFn) {
	mod := vm.GetOrCreateModule(moduleName)
	reg := &module.NativeRegistry{}
	if vararg {
		reg.RegisterVararg(name, arity, fn)
	} else {
		reg.Register(name, arity, fn)
	}
	vm.RegisterNatives(mod, reg)
}

// BindNativeMethod installs a host function into a class's method
// table, the bindNative hook class setup uses. The class must sit on
// top of the stack; arity counts declared parameters, the receiver is
// implicit.
func (vm *VM) BindNativeMethod(name string, arity int, vararg bool, fn module.NativeFn) bool {
	cls, ok := vm.peek(0).AsObj().(*value.Class)
	if !vm.peek(0).IsObj() || !ok {
		return false
	}
	native := vm.allocNative(name, arity+1, vararg, func(args []value.Value) (value.Value, error) {
		return fn(vm, args)
	})
	cls.Methods.Set(value.ObjVal(vm.allocString(name)), value.ObjVal(native))
	return true
}
