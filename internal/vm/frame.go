package vm

import "jstar/value"

// expandSpread splices any Spread markers sitting in stack[argStart:sp]
// into their elements and returns the new argument count. SPREAD pushes
// the marker; the consuming CALL/MAKE_LIST/MAKE_TUPLE calls this before
// counting operands.
func (vm *VM) expandSpread(argStart int) int {
	hasSpread := false
	for i := argStart; i < vm.sp; i++ {
		if vm.stack[i].IsObjType(value.ObjSpread) {
			hasSpread = true
			break
		}
	}
	if !hasSpread {
		return vm.sp - argStart
	}
	expanded := make([]value.Value, 0, vm.sp-argStart)
	for i := argStart; i < vm.sp; i++ {
		v := vm.stack[i]
		if v.IsObjType(value.ObjSpread) {
			expanded = append(expanded, v.AsObj().(*value.Spread).Elems...)
		} else {
			expanded = append(expanded, v)
		}
	}
	vm.sp = argStart
	vm.EnsureStack(len(expanded))
	for _, v := range expanded {
		vm.push(v)
	}
	return len(expanded)
}

// prepareArgs pads or rejects the provided arguments at stack[base:sp]
// against the callee's declared arity, filling missing trailing
// parameters from the default table and gathering varargs into a tuple.
// On success sp == base + expected.
func (vm *VM) prepareArgs(name string, expected int, vararg bool,
	defaults []value.Value, hasDefault []bool, base int) error {

	provided := vm.sp - base
	fixed := expected
	if vararg {
		fixed = expected - 1
	}

	if provided < fixed {
		// Defaults align with the trailing declared parameters.
		offset := expected - len(defaults)
		for j := provided; j < fixed; j++ {
			di := j - offset
			if di < 0 || di >= len(hasDefault) || !hasDefault[di] {
				return vm.raisedf(vm.builtins.typeExc,
					"too few arguments for %s: expected %d, got %d", name, fixed, provided)
			}
			vm.push(defaults[di])
		}
		provided = fixed
	}

	if vararg {
		extra := vm.stackSlice(base+fixed, vm.sp)
		tup := vm.allocTuple(append([]value.Value(nil), extra...))
		vm.sp = base + fixed
		vm.push(value.ObjVal(tup))
		return nil
	}

	if provided > expected {
		return vm.raisedf(vm.builtins.typeExc,
			"too many arguments for %s: expected %d, got %d", name, expected, provided)
	}
	return nil
}

func (vm *VM) stackSlice(from, to int) []value.Value {
	return vm.stack[from:to]
}

// pushFrame arranges a bytecode call. base is the stack index of local
// slot 0 (the receiver for methods, the first argument otherwise);
// retSlot is where RETURN leaves the result.
func (vm *VM) pushFrame(cl *value.Closure, base, retSlot int, construct bool, instance value.Value) error {
	if len(vm.frames) >= vm.cfg.MaxFrames {
		return vm.raisedf(vm.builtins.stackOverflowExc, "call stack overflow")
	}
	vm.frames = append(vm.frames, frame{
		closure:   cl,
		base:      base,
		retSlot:   retSlot,
		construct: construct,
		instance:  instance,
	})
	return nil
}

// callClosure validates arguments and either pushes a frame or, for a
// generator prototype, captures the padded arguments into a fresh
// suspended Generator without executing the body.
func (vm *VM) callClosure(cl *value.Closure, base, retSlot int, construct bool, instance value.Value) error {
	proto := cl.Proto
	if err := vm.prepareArgs(proto.Name, proto.Arity, proto.Vararg,
		proto.Defaults, proto.HasDefault, base); err != nil {
		return err
	}
	if proto.IsGenerator {
		g := vm.allocGenerator(cl)
		g.StackSeg = append([]value.Value(nil), vm.stackSlice(base, vm.sp)...)
		vm.sp = retSlot
		vm.push(value.ObjVal(g))
		return nil
	}
	return vm.pushFrame(cl, base, retSlot, construct, instance)
}

// callNative runs a host function synchronously. On success exactly one
// value replaces the callee; a Go error becomes a raised exception.
func (vm *VM) callNative(n *value.Native, base, retSlot int) error {
	if err := vm.prepareArgs(n.Name, n.Arity, n.Vararg, n.Defaults, n.HasDefault, base); err != nil {
		return err
	}
	args := vm.stackSlice(base, vm.sp)
	res, err := n.Fn(args)
	if err != nil {
		switch err.(type) {
		case *RaisedError, *errPropagate, *UncaughtError:
			// Already carries the guest exception; don't re-wrap it.
			return err
		}
		return &RaisedError{Val: vm.newException(vm.builtins.exception, err.Error())}
	}
	vm.sp = retSlot
	vm.push(res)
	return nil
}

// callValueAt dispatches a CALL: the callee sits at calleeIdx with
// nargs arguments above it.
func (vm *VM) callValueAt(calleeIdx, nargs int) error {
	callee := vm.stack[calleeIdx]
	if !callee.IsObj() {
		return vm.typeErrorf("%s is not callable", typeName(callee))
	}
	switch o := callee.AsObj().(type) {
	case *value.Closure:
		return vm.callClosure(o, calleeIdx+1, calleeIdx, false, value.NullVal())

	case *value.Native:
		return vm.callNative(o, calleeIdx+1, calleeIdx)

	case *value.Class:
		inst := vm.allocInstance(o)
		ctor, hasCtor := o.Resolve(value.ObjVal(vm.allocString("construct")))
		if !hasCtor {
			if nargs != 0 {
				return vm.typeErrorf("class %s has no constructor but was called with %d arguments", o.Name, nargs)
			}
			vm.sp = calleeIdx
			vm.push(value.ObjVal(inst))
			return nil
		}
		vm.stack[calleeIdx] = value.ObjVal(inst)
		switch m := ctor.AsObj().(type) {
		case *value.Closure:
			return vm.callClosure(m, calleeIdx, calleeIdx, true, value.ObjVal(inst))
		case *value.Native:
			if err := vm.callNative(m, calleeIdx, calleeIdx); err != nil {
				return err
			}
			vm.stack[calleeIdx] = value.ObjVal(inst)
			return nil
		default:
			return vm.typeErrorf("constructor of %s is not callable", o.Name)
		}

	case *value.BoundMethod:
		vm.stack[calleeIdx] = o.Receiver
		return vm.callCallable(o.Method, calleeIdx, calleeIdx)

	case *value.Instance:
		call, ok := o.Class.Resolve(value.ObjVal(vm.allocString("__call__")))
		if !ok {
			return vm.typeErrorf("instance of %s is not callable", o.Class.Name)
		}
		return vm.callCallable(call, calleeIdx, calleeIdx)

	default:
		return vm.typeErrorf("%s is not callable", typeName(callee))
	}
}

// callCallable invokes a resolved method value with the receiver
// already in place at base.
func (vm *VM) callCallable(m value.Value, base, retSlot int) error {
	switch c := m.AsObj().(type) {
	case *value.Closure:
		return vm.callClosure(c, base, retSlot, false, value.NullVal())
	case *value.Native:
		return vm.callNative(c, base, retSlot)
	default:
		return vm.typeErrorf("%s is not callable", typeName(m))
	}
}

// invoke implements INVOKE: field lookup first, then the class method
// table (and its ancestors).
func (vm *VM) invoke(name string, nargs int) error {
	recvIdx := vm.sp - nargs - 1
	recv := vm.stack[recvIdx]
	nameKey := value.ObjVal(vm.allocString(name))

	if recv.IsObj() {
		switch o := recv.AsObj().(type) {
		case *value.Instance:
			if field, ok := o.Fields.Get(nameKey); ok {
				vm.stack[recvIdx] = field
				return vm.callValueAt(recvIdx, nargs)
			}
			if m, ok := o.Class.Resolve(nameKey); ok {
				return vm.callCallable(m, recvIdx, recvIdx)
			}
			return vm.raisedf(vm.builtins.fieldExc,
				"instance of %s has no method %q", o.Class.Name, name)

		case *value.Module:
			g, ok := o.Globals.Get(nameKey)
			if !ok {
				return vm.raisedf(vm.builtins.nameExc,
					"module %s has no global %q", o.Name, name)
			}
			vm.stack[recvIdx] = g
			return vm.callValueAt(recvIdx, nargs)

		case *value.Class:
			// Calling through the class yields the unbound callable: no
			// implicit receiver, so static methods work and instance
			// methods need an explicit self argument.
			m, ok := o.Resolve(nameKey)
			if !ok {
				return vm.raisedf(vm.builtins.fieldExc, "class %s has no method %q", o.Name, name)
			}
			vm.stack[recvIdx] = m
			return vm.callValueAt(recvIdx, nargs)
		}
	}

	return vm.invokeBuiltin(recvIdx, name, nargs)
}

// superInvoke starts method resolution at the parent of the statically
// enclosing class of the running method.
func (vm *VM) superInvoke(name string, nargs int) error {
	fr := &vm.frames[len(vm.frames)-1]
	home := fr.closure.HomeClass
	if home == nil || home.Super == nil {
		return vm.typeErrorf("'super' used outside a subclass method")
	}
	recvIdx := vm.sp - nargs - 1
	m, ok := home.Super.Resolve(value.ObjVal(vm.allocString(name)))
	if !ok {
		return vm.raisedf(vm.builtins.fieldExc,
			"superclass of %s has no method %q", home.Name, name)
	}
	return vm.callCallable(m, recvIdx, recvIdx)
}
