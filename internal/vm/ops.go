package vm

import (
	"math"
	"strings"
	"unicode/utf8"

	"jstar/internal/opcode"
	"jstar/value"
)

func typeName(v value.Value) string {
	switch v.Kind() {
	case value.Null:
		return "Null"
	case value.Bool:
		return "Boolean"
	case value.Number:
		return "Number"
	case value.Handle:
		return "Handle"
	case value.Object:
		if inst, ok := v.AsObj().(*value.Instance); ok {
			return inst.Class.Name
		}
		return v.AsObj().Kind().String()
	}
	return "Unknown"
}

// overloadName maps an operator opcode to the method an instance left
// operand dispatches to.
var overloadName = map[opcode.Op]string{
	opcode.ADD: "__add__", opcode.SUB: "__sub__", opcode.MUL: "__mul__",
	opcode.DIV: "__div__", opcode.MOD: "__mod__", opcode.POW: "__pow__",
	opcode.EQ: "__eq__", opcode.LT: "__lt__", opcode.LE: "__le__",
}

// CallValue pushes callee and args onto the value stack and runs the
// interpreter until the call completes, returning its result. This is
// the nested-execution primitive behind operator overloads, the
// iterator protocol on instances, generator resume, and the embedding
// API's Call; it is also module.Runtime's callback hook for natives.
func (vm *VM) CallValue(callee value.Value, args []value.Value) (value.Value, error) {
	vm.EnsureStack(len(args) + 1)
	calleeIdx := vm.sp
	vm.push(callee)
	for _, a := range args {
		vm.push(a)
	}
	return vm.finishCall(calleeIdx, len(args))
}

// finishCall completes a call whose callee and arguments are already on
// the stack, running nested frames to completion and popping the
// result.
func (vm *VM) finishCall(calleeIdx, nargs int) (value.Value, error) {
	before := len(vm.frames)
	if err := vm.callValueAt(calleeIdx, nargs); err != nil {
		vm.sp = calleeIdx
		return value.NullVal(), err
	}
	if len(vm.frames) > before {
		vm.syncBases = append(vm.syncBases, before)
		err := vm.run(before)
		vm.syncBases = vm.syncBases[:len(vm.syncBases)-1]
		if err != nil {
			vm.sp = calleeIdx
			return value.NullVal(), err
		}
	}
	res := vm.stack[calleeIdx]
	vm.sp = calleeIdx
	return res, nil
}

// callOverload invokes name on recv (an instance) with args, for
// operator dispatch.
func (vm *VM) callOverload(recv value.Value, name string, args ...value.Value) (value.Value, error) {
	inst, _ := asInstance(recv)
	m, ok := inst.Class.Resolve(value.ObjVal(vm.allocString(name)))
	if !ok {
		return value.NullVal(), vm.typeErrorf("instance of %s does not support %s", inst.Class.Name, name)
	}
	return vm.CallValue(value.ObjVal(vm.allocBoundMethod(recv, m)), args)
}

func (vm *VM) binaryOp(op opcode.Op) error {
	b := vm.pop()
	a := vm.pop()

	if a.IsNumber() && b.IsNumber() {
		x, y := a.AsNumber(), b.AsNumber()
		var r float64
		switch op {
		case opcode.ADD:
			r = x + y
		case opcode.SUB:
			r = x - y
		case opcode.MUL:
			r = x * y
		case opcode.DIV:
			r = x / y
		case opcode.MOD:
			r = math.Mod(x, y)
		case opcode.POW:
			r = math.Pow(x, y)
		case opcode.BAND:
			return vm.pushInt(int64(x) & int64(y))
		case opcode.BOR:
			return vm.pushInt(int64(x) | int64(y))
		case opcode.BXOR:
			return vm.pushInt(int64(x) ^ int64(y))
		case opcode.SHL:
			return vm.pushInt(int64(x) << (uint64(y) & 63))
		case opcode.SHR:
			return vm.pushInt(int64(x) >> (uint64(y) & 63))
		}
		vm.push(value.NumberVal(r))
		return nil
	}

	if op == opcode.ADD {
		if sa, ok := asString(a); ok {
			if sb, ok2 := asString(b); ok2 {
				vm.push(value.ObjVal(vm.allocString(sa + sb)))
				return nil
			}
		}
		if la, ok := asListElems(a); ok {
			if lb, ok2 := asListElems(b); ok2 {
				joined := append(append([]value.Value(nil), la...), lb...)
				vm.push(value.ObjVal(vm.allocList(joined)))
				return nil
			}
		}
	}

	if _, ok := asInstance(a); ok {
		if name, has := overloadName[op]; has {
			res, err := vm.callOverload(a, name, b)
			if err != nil {
				return err
			}
			vm.push(res)
			return nil
		}
	}

	return vm.typeErrorf("unsupported operand types for %s: %s and %s",
		op, typeName(a), typeName(b))
}

func (vm *VM) pushInt(n int64) error {
	vm.push(value.NumberVal(float64(n)))
	return nil
}

func asString(v value.Value) (string, bool) {
	if v.IsObjType(value.ObjString) {
		return v.AsObj().(*value.String).Bytes, true
	}
	return "", false
}

func asListElems(v value.Value) ([]value.Value, bool) {
	if v.IsObjType(value.ObjList) {
		return v.AsObj().(*value.List).Elems, true
	}
	return nil, false
}

func (vm *VM) negate() error {
	v := vm.pop()
	if !v.IsNumber() {
		return vm.typeErrorf("cannot negate %s", typeName(v))
	}
	vm.push(value.NumberVal(-v.AsNumber()))
	return nil
}

func (vm *VM) bitwiseNot() error {
	v := vm.pop()
	if !v.IsNumber() {
		return vm.typeErrorf("cannot apply '~' to %s", typeName(v))
	}
	return vm.pushInt(^int64(v.AsNumber()))
}

// length implements '#' (element count; runes for strings) and '##'
// (byte count for strings, element count elsewhere).
func (vm *VM) length(bytes bool) error {
	v := vm.pop()
	if v.IsObj() {
		switch o := v.AsObj().(type) {
		case *value.String:
			if bytes {
				return vm.pushInt(int64(len(o.Bytes)))
			}
			return vm.pushInt(int64(utf8.RuneCountInString(o.Bytes)))
		case *value.List:
			return vm.pushInt(int64(len(o.Elems)))
		case *value.Tuple:
			return vm.pushInt(int64(len(o.Elems)))
		case *value.Table:
			return vm.pushInt(int64(o.Len()))
		}
	}
	return vm.typeErrorf("%s has no length", typeName(v))
}

func (vm *VM) compareOp(op opcode.Op) error {
	b := vm.pop()
	a := vm.pop()

	switch op {
	case opcode.EQ, opcode.NEQ:
		eq := value.Equals(a, b)
		if !eq {
			if sa, ok := asString(a); ok {
				if sb, ok2 := asString(b); ok2 {
					eq = sa == sb
				}
			} else if _, isInst := asInstance(a); isInst {
				res, err := vm.tryOverload(a, "__eq__", b)
				if err != nil {
					return err
				}
				if res != nil {
					eq = res.Truthy()
				}
			}
		}
		if op == opcode.NEQ {
			eq = !eq
		}
		vm.push(value.BoolVal(eq))
		return nil
	}

	if a.IsNumber() && b.IsNumber() {
		x, y := a.AsNumber(), b.AsNumber()
		vm.push(value.BoolVal(compareResult(op, x < y, x <= y, x > y, x >= y)))
		return nil
	}
	if sa, ok := asString(a); ok {
		if sb, ok2 := asString(b); ok2 {
			c := strings.Compare(sa, sb)
			vm.push(value.BoolVal(compareResult(op, c < 0, c <= 0, c > 0, c >= 0)))
			return nil
		}
	}
	if _, ok := asInstance(a); ok {
		name := "__lt__"
		flip := false
		switch op {
		case opcode.LE:
			name = "__le__"
		case opcode.GT:
			name = "__le__"
			flip = true
		case opcode.GE:
			name = "__lt__"
			flip = true
		}
		res, err := vm.callOverload(a, name, b)
		if err != nil {
			return err
		}
		vm.push(value.BoolVal(res.Truthy() != flip))
		return nil
	}
	return vm.typeErrorf("cannot compare %s with %s", typeName(a), typeName(b))
}

func compareResult(op opcode.Op, lt, le, gt, ge bool) bool {
	switch op {
	case opcode.LT:
		return lt
	case opcode.LE:
		return le
	case opcode.GT:
		return gt
	case opcode.GE:
		return ge
	}
	return false
}

// tryOverload is callOverload without the "missing method" error:
// returns nil result when the class does not define name.
func (vm *VM) tryOverload(recv value.Value, name string, args ...value.Value) (*value.Value, error) {
	inst, _ := asInstance(recv)
	m, ok := inst.Class.Resolve(value.ObjVal(vm.allocString(name)))
	if !ok {
		return nil, nil
	}
	res, err := vm.CallValue(value.ObjVal(vm.allocBoundMethod(recv, m)), args)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// isOp implements `a is B`: B must be a class; the result is whether
// a's class (builtin kinds map to the core type classes) is B or a
// descendant of B.
func (vm *VM) isOp() error {
	b := vm.pop()
	a := vm.pop()
	cls, ok := b.AsObj().(*value.Class)
	if !b.IsObj() || !ok {
		return vm.typeErrorf("right operand of 'is' must be a class, got %s", typeName(b))
	}
	vm.push(value.BoolVal(vm.classOf(a).IsSubclassOf(cls)))
	return nil
}

// classOf maps any value to its class for `is` dispatch.
func (vm *VM) classOf(v value.Value) *value.Class {
	switch v.Kind() {
	case value.Null:
		return vm.builtins.nullCls
	case value.Bool:
		return vm.builtins.boolCls
	case value.Number:
		return vm.builtins.numberCls
	case value.Handle:
		return vm.builtins.handleCls
	}
	switch o := v.AsObj().(type) {
	case *value.Instance:
		return o.Class
	case *value.String:
		return vm.builtins.stringCls
	case *value.List:
		return vm.builtins.listCls
	case *value.Tuple:
		return vm.builtins.tupleCls
	case *value.Table:
		return vm.builtins.tableCls
	case *value.Closure, *value.Native, *value.BoundMethod:
		return vm.builtins.functionCls
	case *value.Generator:
		return vm.builtins.generatorCls
	case *value.Class:
		return vm.builtins.classCls
	case *value.Module:
		return vm.builtins.moduleCls
	default:
		return vm.builtins.nullCls
	}
}

// StringOf renders v for print and string concatenation, dispatching a
// __string__ overload on instances. Implements module.Runtime.
func (vm *VM) StringOf(v value.Value) (string, error) {
	if _, ok := asInstance(v); ok {
		res, err := vm.tryOverload(v, "__string__")
		if err != nil {
			return "", err
		}
		if res != nil {
			if s, isStr := asString(*res); isStr {
				return s, nil
			}
			return res.String(), nil
		}
	}
	return v.String(), nil
}

// instanceHash is installed as Table.HashFunc on VM-allocated tables:
// instance keys with a __hash__ overload hash through it; everything
// else falls back to the table's builtin hashing.
func (vm *VM) instanceHash(k value.Value) (uint64, bool) {
	if _, ok := asInstance(k); !ok {
		return 0, false
	}
	res, err := vm.tryOverload(k, "__hash__")
	if err != nil || res == nil || !res.IsNumber() {
		return 0, false
	}
	return uint64(int64(res.AsNumber())), true
}

// ---- field access ----

func (vm *VM) getField(name string) error {
	recv := vm.pop()
	nameKey := value.ObjVal(vm.allocString(name))

	if recv.IsObj() {
		switch o := recv.AsObj().(type) {
		case *value.Instance:
			if f, ok := o.Fields.Get(nameKey); ok {
				vm.push(f)
				return nil
			}
			if m, ok := o.Class.Resolve(nameKey); ok {
				vm.push(value.ObjVal(vm.allocBoundMethod(recv, m)))
				return nil
			}
			res, err := vm.tryOverload(recv, "__get__", nameKey)
			if err != nil {
				return err
			}
			if res != nil {
				vm.push(*res)
				return nil
			}
			return vm.raisedf(vm.builtins.fieldExc,
				"instance of %s has no field %q", o.Class.Name, name)

		case *value.Module:
			if g, ok := o.Globals.Get(nameKey); ok {
				vm.push(g)
				return nil
			}
			return vm.raisedf(vm.builtins.nameExc,
				"module %s has no global %q", o.Name, name)

		case *value.Class:
			if m, ok := o.Resolve(nameKey); ok {
				vm.push(m)
				return nil
			}
			if name == "name" {
				vm.push(value.ObjVal(vm.allocString(o.Name)))
				return nil
			}
			return vm.raisedf(vm.builtins.fieldExc, "class %s has no method %q", o.Name, name)

		case *value.Generator:
			if name == "state" {
				vm.push(value.ObjVal(vm.allocString(o.State.String())))
				return nil
			}
		}
	}
	return vm.raisedf(vm.builtins.fieldExc, "%s has no field %q", typeName(recv), name)
}

// setField stores with the assignment convention: the value sits below
// the receiver and stays on the stack as the expression's result.
func (vm *VM) setField(name string) error {
	recv := vm.pop()
	val := vm.peek(0)
	nameKey := value.ObjVal(vm.allocString(name))

	if recv.IsObj() {
		switch o := recv.AsObj().(type) {
		case *value.Instance:
			o.Fields.Set(nameKey, val)
			return nil
		case *value.Module:
			o.Globals.Set(nameKey, val)
			return nil
		}
	}
	return vm.typeErrorf("cannot set field %q on %s", name, typeName(recv))
}

// ---- indexing ----

func (vm *VM) getIndex() error {
	key := vm.pop()
	recv := vm.pop()

	if recv.IsObj() {
		switch o := recv.AsObj().(type) {
		case *value.List:
			i, err := vm.seqIndex(key, len(o.Elems))
			if err != nil {
				return err
			}
			vm.push(o.Elems[i])
			return nil
		case *value.Tuple:
			i, err := vm.seqIndex(key, len(o.Elems))
			if err != nil {
				return err
			}
			vm.push(o.Elems[i])
			return nil
		case *value.String:
			runes := []rune(o.Bytes)
			i, err := vm.seqIndex(key, len(runes))
			if err != nil {
				return err
			}
			vm.push(value.ObjVal(vm.allocString(string(runes[i]))))
			return nil
		case *value.Table:
			v, _ := o.Get(key)
			vm.push(v)
			return nil
		case *value.Instance:
			res, err := vm.callOverload(recv, "__get__", key)
			if err != nil {
				return err
			}
			vm.push(res)
			return nil
		}
	}
	return vm.typeErrorf("%s is not indexable", typeName(recv))
}

func (vm *VM) setIndex() error {
	key := vm.pop()
	recv := vm.pop()
	val := vm.peek(0)

	if recv.IsObj() {
		switch o := recv.AsObj().(type) {
		case *value.List:
			i, err := vm.seqIndex(key, len(o.Elems))
			if err != nil {
				return err
			}
			o.Elems[i] = val
			return nil
		case *value.Table:
			o.Set(key, val)
			return nil
		case *value.Instance:
			_, err := vm.callOverload(recv, "__set__", key, val)
			return err
		}
	}
	return vm.typeErrorf("%s does not support indexed assignment", typeName(recv))
}

// seqIndex validates a sequence index: an integral number in
// [-length, length); negative indices count from the end.
func (vm *VM) seqIndex(key value.Value, length int) (int, error) {
	if !key.IsNumber() {
		return 0, vm.raisedf(vm.builtins.indexExc, "index must be a number, got %s", typeName(key))
	}
	f := key.AsNumber()
	i := int(f)
	if float64(i) != f {
		return 0, vm.raisedf(vm.builtins.indexExc, "index must be an integer, got %g", f)
	}
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		return 0, vm.raisedf(vm.builtins.indexExc, "index %d out of bounds for length %d", int(f), length)
	}
	return i, nil
}

// ---- globals ----

func (vm *VM) getGlobal(fr *frame, name string) error {
	key := value.ObjVal(vm.allocString(name))
	if g, ok := fr.closure.Module.Globals.Get(key); ok {
		vm.push(g)
		return nil
	}
	if g, ok := vm.core.Globals.Get(key); ok {
		vm.push(g)
		return nil
	}
	return vm.raisedf(vm.builtins.nameExc, "name %q is not defined", name)
}

func (vm *VM) setGlobal(fr *frame, name string) error {
	key := value.ObjVal(vm.allocString(name))
	if _, ok := fr.closure.Module.Globals.Get(key); ok {
		fr.closure.Module.Globals.Set(key, vm.pop())
		return nil
	}
	return vm.raisedf(vm.builtins.nameExc, "assignment to undefined name %q", name)
}
