package jstar

import (
	"jstar/internal/module"
	"jstar/value"
)

// Stack-oriented value exchange: the host pushes inputs, invokes an
// operation, and reads outputs from well-defined slot positions. Slots
// are absolute from the stack bottom when non-negative, or offsets from
// the top when negative (-1 is the topmost value).

func (j *VM) PushNumber(n float64) { j.rt.Push(value.NumberVal(n)) }
func (j *VM) PushBool(b bool)      { j.rt.Push(value.BoolVal(b)) }
func (j *VM) PushNull()            { j.rt.Push(value.NullVal()) }
func (j *VM) PushString(s string)  { j.rt.Push(j.rt.Intern(s)) }
func (j *VM) PushHandle(h any)     { j.rt.Push(value.HandleVal(h)) }
func (j *VM) PushValue(v value.Value) { j.rt.Push(v) }

func (j *VM) Pop() value.Value { return j.rt.Pop() }
func (j *VM) PopN(n int)       { j.rt.PopN(n) }
func (j *VM) Dup()             { j.rt.Dup() }

// StackSize reports the current stack depth.
func (j *VM) StackSize() int { return j.rt.Depth() }

// EnsureStack guarantees room for n more pushes without relocation.
func (j *VM) EnsureStack(n int) { j.rt.EnsureStack(n) }

// ---- slot queries ----

func (j *VM) IsNumber(slot int) bool { return j.rt.Get(slot).IsNumber() }
func (j *VM) IsBool(slot int) bool   { return j.rt.Get(slot).IsBool() }
func (j *VM) IsNull(slot int) bool   { return j.rt.Get(slot).IsNull() }
func (j *VM) IsHandle(slot int) bool { return j.rt.Get(slot).IsHandle() }
func (j *VM) IsString(slot int) bool { return j.rt.Get(slot).IsObjType(value.ObjString) }
func (j *VM) IsList(slot int) bool   { return j.rt.Get(slot).IsObjType(value.ObjList) }
func (j *VM) IsTuple(slot int) bool  { return j.rt.Get(slot).IsObjType(value.ObjTuple) }
func (j *VM) IsTable(slot int) bool  { return j.rt.Get(slot).IsObjType(value.ObjTable) }
func (j *VM) IsInstance(slot int) bool {
	return j.rt.Get(slot).IsObjType(value.ObjInstance)
}

// ---- slot conversions ----

func (j *VM) ToNumber(slot int) (float64, bool) {
	v := j.rt.Get(slot)
	if !v.IsNumber() {
		return 0, false
	}
	return v.AsNumber(), true
}

func (j *VM) ToBool(slot int) bool { return j.rt.Get(slot).Truthy() }

func (j *VM) ToString(slot int) (string, bool) {
	v := j.rt.Get(slot)
	if s, ok := v.AsObj().(*value.String); v.IsObj() && ok {
		return s.Bytes, true
	}
	return "", false
}

func (j *VM) ToHandle(slot int) (any, bool) {
	v := j.rt.Get(slot)
	if !v.IsHandle() {
		return nil, false
	}
	return v.AsHandle(), true
}

// GetValue reads a slot as a raw value for hosts working with the
// value package directly.
func (j *VM) GetValue(slot int) value.Value { return j.rt.Get(slot) }

// ---- collection manipulation by slot ----

// ListAppend pops the top value and appends it to the list at slot.
func (j *VM) ListAppend(slot int) bool {
	l, ok := j.rt.Get(slot).AsObj().(*value.List)
	if !j.rt.Get(slot).IsObj() || !ok {
		return false
	}
	l.Elems = append(l.Elems, j.rt.Pop())
	return true
}

// ListGet pushes element i of the list or tuple at slot.
func (j *VM) ListGet(slot, i int) bool {
	v := j.rt.Get(slot)
	var elems []value.Value
	if v.IsObj() {
		switch o := v.AsObj().(type) {
		case *value.List:
			elems = o.Elems
		case *value.Tuple:
			elems = o.Elems
		}
	}
	if elems == nil || i < 0 || i >= len(elems) {
		return false
	}
	j.rt.Push(elems[i])
	return true
}

// ListLen reports the element count of the list or tuple at slot.
func (j *VM) ListLen(slot int) (int, bool) {
	v := j.rt.Get(slot)
	if v.IsObj() {
		switch o := v.AsObj().(type) {
		case *value.List:
			return len(o.Elems), true
		case *value.Tuple:
			return len(o.Elems), true
		}
	}
	return 0, false
}

// TableGet pops the key and pushes table[key] (null if absent).
func (j *VM) TableGet(slot int) bool {
	t, ok := j.rt.Get(slot).AsObj().(*value.Table)
	if !j.rt.Get(slot).IsObj() || !ok {
		return false
	}
	key := j.rt.Pop()
	v, _ := t.Get(key)
	j.rt.Push(v)
	return true
}

// TableSet pops key then value and stores value under key.
func (j *VM) TableSet(slot int) bool {
	t, ok := j.rt.Get(slot).AsObj().(*value.Table)
	if !j.rt.Get(slot).IsObj() || !ok {
		return false
	}
	key := j.rt.Pop()
	val := j.rt.Pop()
	t.Set(key, val)
	return true
}

// InstanceGetField pushes the named field of the instance at slot.
func (j *VM) InstanceGetField(slot int, name string) bool {
	inst, ok := j.rt.Get(slot).AsObj().(*value.Instance)
	if !j.rt.Get(slot).IsObj() || !ok {
		return false
	}
	v, found := inst.Fields.Get(j.rt.Intern(name))
	if !found {
		return false
	}
	j.rt.Push(v)
	return true
}

// InstanceSetField pops the top value into the named field of the
// instance at slot.
func (j *VM) InstanceSetField(slot int, name string) bool {
	inst, ok := j.rt.Get(slot).AsObj().(*value.Instance)
	if !j.rt.Get(slot).IsObj() || !ok {
		return false
	}
	inst.Fields.Set(j.rt.Intern(name), j.rt.Pop())
	return true
}

// ---- calls, globals, natives ----

// Call invokes the callable sitting below nargs arguments; on Success
// the callee and arguments are replaced by the single result.
func (j *VM) Call(nargs int) Result {
	if err := j.rt.Call(nargs); err != nil {
		return RuntimeErr
	}
	return Success
}

// CallMethod invokes method name on the receiver below nargs
// arguments.
func (j *VM) CallMethod(name string, nargs int) Result {
	if err := j.rt.CallMethod(name, nargs); err != nil {
		return RuntimeErr
	}
	return Success
}

// Raise raises the top of the stack as a guest exception; the host
// receives RuntimeErr unless a guest handler (from an outer Call in
// progress) catches it.
func (j *VM) Raise() Result {
	if err := j.rt.Raise(); err != nil {
		return RuntimeErr
	}
	return Success
}

// GetGlobal pushes module's named global; false if either is missing.
func (j *VM) GetGlobal(moduleName, name string) bool {
	return j.rt.GetGlobal(moduleName, name)
}

// SetGlobal pops the top of the stack into module's named global.
func (j *VM) SetGlobal(moduleName, name string) bool {
	return j.rt.SetGlobal(moduleName, name)
}

// RegisterNative binds fn as a global function of the named module.
func (j *VM) RegisterNative(moduleName, name string, arity int, fn module.NativeFn) {
	j.rt.RegisterNative(moduleName, name, arity, false, fn)
}

// RegisterNativeVararg binds fn with trailing arguments gathered into a
// tuple.
func (j *VM) RegisterNativeVararg(moduleName, name string, arity int, fn module.NativeFn) {
	j.rt.RegisterNative(moduleName, name, arity, true, fn)
}

// BindNativeMethod installs fn as a method of the class on top of the
// stack.
func (j *VM) BindNativeMethod(name string, arity int, fn module.NativeFn) bool {
	return j.rt.BindNativeMethod(name, arity, false, fn)
}
