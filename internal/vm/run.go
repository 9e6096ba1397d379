package vm

import (
	"jstar/internal/opcode"
	"jstar/value"
)

// run is the evaluate loop. It interprets the top frame until the frame
// count drops back to minFrames (a RETURN/YIELD from the outermost
// frame this run owns), dispatching raised exceptions as it goes. A Go
// switch is used for dispatch; the structure keeps each opcode's body
// small enough that a computed-goto port is mechanical.
func (vm *VM) run(minFrames int) error {
	for len(vm.frames) > minFrames {
		fr := &vm.frames[len(vm.frames)-1]
		code := fr.closure.Proto.Code
		op := opcode.Op(code[fr.ip])
		fr.ip++

		var err error
		switch op {

		// ---- constants ----
		case opcode.LOAD_CONST:
			vm.push(fr.closure.Proto.Constants[vm.readU16(fr)])
		case opcode.LOAD_NULL:
			vm.push(value.NullVal())
		case opcode.LOAD_TRUE:
			vm.push(value.BoolVal(true))
		case opcode.LOAD_FALSE:
			vm.push(value.BoolVal(false))
		case opcode.LOAD_NUMBER_SMALL:
			vm.push(value.NumberVal(float64(int8(code[fr.ip]))))
			fr.ip++

		// ---- stack ----
		case opcode.POP:
			vm.pop()
		case opcode.DUP:
			vm.push(vm.peek(0))
		case opcode.SWAP:
			vm.stack[vm.sp-1], vm.stack[vm.sp-2] = vm.stack[vm.sp-2], vm.stack[vm.sp-1]

		// ---- variables ----
		case opcode.GET_LOCAL:
			vm.push(vm.stack[fr.base+int(code[fr.ip])])
			fr.ip++
		case opcode.SET_LOCAL:
			vm.stack[fr.base+int(code[fr.ip])] = vm.pop()
			fr.ip++
		case opcode.GET_UPVALUE:
			vm.push(fr.closure.Upvalues[code[fr.ip]].Get())
			fr.ip++
		case opcode.SET_UPVALUE:
			fr.closure.Upvalues[code[fr.ip]].Set(vm.pop())
			fr.ip++
		case opcode.GET_GLOBAL:
			err = vm.getGlobal(fr, vm.constString(fr, vm.readU16(fr)))
		case opcode.SET_GLOBAL:
			err = vm.setGlobal(fr, vm.constString(fr, vm.readU16(fr)))
		case opcode.DEF_GLOBAL:
			name := vm.constString(fr, vm.readU16(fr))
			fr.closure.Module.Globals.Set(value.ObjVal(vm.allocString(name)), vm.pop())
		case opcode.CLOSE_UPVALUE:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		// ---- fields / indexing ----
		case opcode.GET_FIELD:
			err = vm.getField(vm.constString(fr, vm.readU16(fr)))
		case opcode.SET_FIELD:
			err = vm.setField(vm.constString(fr, vm.readU16(fr)))
		case opcode.GET_INDEX:
			err = vm.getIndex()
		case opcode.SET_INDEX:
			err = vm.setIndex()

		// ---- arithmetic / logic ----
		case opcode.ADD, opcode.SUB, opcode.MUL, opcode.DIV, opcode.MOD, opcode.POW,
			opcode.BAND, opcode.BOR, opcode.BXOR, opcode.SHL, opcode.SHR:
			err = vm.binaryOp(op)
		case opcode.NEG:
			err = vm.negate()
		case opcode.NOT:
			vm.push(value.BoolVal(!vm.pop().Truthy()))
		case opcode.BNOT:
			err = vm.bitwiseNot()
		case opcode.LEN:
			err = vm.length(false)
		case opcode.LEN2:
			err = vm.length(true)

		// ---- comparison ----
		case opcode.EQ, opcode.NEQ, opcode.LT, opcode.LE, opcode.GT, opcode.GE:
			err = vm.compareOp(op)
		case opcode.IS:
			err = vm.isOp()

		// ---- jumps ----
		case opcode.JUMP:
			fr.ip += int(vm.readU16(fr))
		case opcode.JUMP_IF_FALSE:
			d := int(vm.readU16(fr))
			if !vm.peek(0).Truthy() {
				fr.ip += d
			}
		case opcode.JUMP_IF_TRUE:
			d := int(vm.readU16(fr))
			if vm.peek(0).Truthy() {
				fr.ip += d
			}
		case opcode.LOOP:
			fr.ip -= int(vm.readU16(fr))
			err = vm.checkBreak()

		// ---- calls ----
		case opcode.CALL:
			nargs := int(code[fr.ip])
			fr.ip++
			if err = vm.checkBreak(); err == nil {
				nargs = vm.expandSpread(vm.sp - nargs)
				err = vm.callValueAt(vm.sp-nargs-1, nargs)
			}
		case opcode.INVOKE:
			name := vm.constString(fr, vm.readU16(fr))
			nargs := int(code[fr.ip])
			fr.ip++
			if err = vm.checkBreak(); err == nil {
				nargs = vm.expandSpread(vm.sp - nargs)
				err = vm.invoke(name, nargs)
			}
		case opcode.SUPER_INVOKE:
			name := vm.constString(fr, vm.readU16(fr))
			nargs := int(code[fr.ip])
			fr.ip++
			if err = vm.checkBreak(); err == nil {
				nargs = vm.expandSpread(vm.sp - nargs)
				err = vm.superInvoke(name, nargs)
			}
		case opcode.RETURN:
			vm.doReturn()
		case opcode.YIELD:
			vm.doYield()

		// ---- construction ----
		case opcode.MAKE_CLOSURE:
			vm.makeClosure(fr)
		case opcode.MAKE_LIST:
			n := int(vm.readU16(fr))
			n = vm.expandSpread(vm.sp - n)
			elems := append([]value.Value(nil), vm.stackSlice(vm.sp-n, vm.sp)...)
			vm.sp -= n
			vm.push(value.ObjVal(vm.allocList(elems)))
		case opcode.MAKE_TUPLE:
			n := int(vm.readU16(fr))
			n = vm.expandSpread(vm.sp - n)
			elems := append([]value.Value(nil), vm.stackSlice(vm.sp-n, vm.sp)...)
			vm.sp -= n
			vm.push(value.ObjVal(vm.allocTuple(elems)))
		case opcode.MAKE_TABLE:
			t := vm.allocTable()
			t.HashFunc = vm.instanceHash
			vm.push(value.ObjVal(t))
		case opcode.MAKE_CLASS:
			name := vm.constString(fr, vm.readU16(fr))
			vm.push(value.ObjVal(vm.allocClass(name, nil)))
		case opcode.INHERIT:
			err = vm.inherit()
		case opcode.METHOD:
			name := vm.constString(fr, vm.readU16(fr))
			method := vm.pop()
			cls := vm.peek(0).AsObj().(*value.Class)
			if cl, ok := method.AsObj().(*value.Closure); method.IsObj() && ok {
				cl.HomeClass = cls
			}
			cls.Methods.Set(value.ObjVal(vm.allocString(name)), method)
		case opcode.BIND_METHOD:
			method := vm.pop()
			recv := vm.pop()
			vm.push(value.ObjVal(vm.allocBoundMethod(recv, method)))

		// ---- iteration ----
		case opcode.FOR_PREP:
			vm.push(value.NullVal())
		case opcode.FOR_ITER:
			d := int(vm.readU16(fr))
			err = vm.forIter(d)

		// ---- exceptions ----
		case opcode.TRY_PUSH:
			insOff := fr.ip - 1
			delta := int(vm.readU16(fr))
			locals := int(vm.readU16(fr))
			fr.handlers = append(fr.handlers, handler{
				ip:    insOff + 3 + delta,
				depth: fr.base + locals,
			})
		case opcode.TRY_POP:
			fr.handlers = fr.handlers[:len(fr.handlers)-1]
		case opcode.RAISE:
			err = &RaisedError{Val: vm.pop()}
		case opcode.ENSURE_ENTER, opcode.ENSURE_EXIT:
			// The compiler lowers ensure into explicit control flow; these
			// opcodes delimit it for disassembly readers only.

		// ---- unpack / spread ----
		case opcode.UNPACK:
			n := int(code[fr.ip])
			fr.ip++
			err = vm.unpack(n)
		case opcode.SPREAD:
			err = vm.spread()

		// ---- import ----
		case opcode.IMPORT:
			err = vm.opImport(fr, vm.constString(fr, vm.readU16(fr)))
		case opcode.IMPORT_AS:
			path := vm.constString(fr, vm.readU16(fr))
			alias := vm.constString(fr, vm.readU16(fr))
			err = vm.opImportAs(fr, path, alias)
		case opcode.IMPORT_FROM:
			err = vm.opImportFrom(fr, vm.constString(fr, vm.readU16(fr)))

		case opcode.NATIVE_REF:
			name := vm.constString(fr, vm.readU16(fr))
			err = vm.nativeRef(fr, name)

		default:
			err = vm.typeErrorf("unknown opcode %d", byte(op))
		}

		if err != nil {
			if rerr := vm.raiseErr(err); rerr != nil {
				return rerr
			}
		}
	}
	return nil
}

func (vm *VM) readU16(fr *frame) uint16 {
	code := fr.closure.Proto.Code
	v := uint16(code[fr.ip])<<8 | uint16(code[fr.ip+1])
	fr.ip += 2
	return v
}

func (vm *VM) constString(fr *frame, idx uint16) string {
	c := fr.closure.Proto.Constants[idx]
	if s, ok := c.AsObj().(*value.String); c.IsObj() && ok {
		return s.Bytes
	}
	return c.String()
}

// checkBreak polls the eval-break flag at backward jumps and call
// boundaries, the VM's only asynchronous cancellation channel.
func (vm *VM) checkBreak() error {
	if vm.breakFlag.Swap(false) {
		return vm.raisedf(vm.builtins.interruptedExc, "execution interrupted")
	}
	return nil
}

func (vm *VM) doReturn() {
	result := vm.pop()
	fr := vm.frames[len(vm.frames)-1]
	vm.closeUpvalues(fr.base)
	if fr.gen != nil {
		fr.gen.State = value.GenDone
		fr.gen.StackSeg = nil
	}
	vm.sp = fr.retSlot
	if fr.construct {
		vm.push(fr.instance)
	} else {
		vm.push(result)
	}
	vm.frames = vm.frames[:len(vm.frames)-1]
}

// doYield suspends the top frame into its generator: the live stack
// segment is copied out, the handler stack saved base-relative, and the
// yielded value handed to the caller in the frame's result slot.
func (vm *VM) doYield() {
	yielded := vm.pop()
	fr := vm.frames[len(vm.frames)-1]
	g := fr.gen
	vm.closeUpvalues(fr.base)
	g.StackSeg = append([]value.Value(nil), vm.stackSlice(fr.base, vm.sp)...)
	g.Handlers = g.Handlers[:0]
	for _, h := range fr.handlers {
		g.Handlers = append(g.Handlers, value.SavedHandler{IP: h.ip, RelDepth: h.depth - fr.base})
	}
	g.ResumeOff = fr.ip
	g.State = value.GenSuspended
	g.LastYield = yielded
	vm.sp = fr.retSlot
	vm.push(yielded)
	vm.frames = vm.frames[:len(vm.frames)-1]
}

// makeClosure decodes MAKE_CLOSURE's inline capture descriptors and
// builds the runtime Closure, capturing parent locals as open upvalues.
func (vm *VM) makeClosure(fr *frame) {
	proto := fr.closure.Proto.Constants[vm.readU16(fr)].AsObj().(*value.FuncProto)
	code := fr.closure.Proto.Code
	n := int(code[fr.ip])
	fr.ip++
	cl := vm.allocClosure(proto)
	cl.Module = fr.closure.Module
	for i := 0; i < n; i++ {
		fromLocal := code[fr.ip] != 0
		idx := int(code[fr.ip+1])
		fr.ip += 2
		if fromLocal {
			cl.Upvalues[i] = vm.captureUpvalue(fr.base + idx)
		} else {
			cl.Upvalues[i] = fr.closure.Upvalues[idx]
		}
	}
	vm.push(value.ObjVal(cl))
}

func (vm *VM) inherit() error {
	super := vm.pop()
	cls := vm.peek(0).AsObj().(*value.Class)
	sc, ok := super.AsObj().(*value.Class)
	if !super.IsObj() || !ok {
		return vm.typeErrorf("superclass of %s must be a class, got %s", cls.Name, typeName(super))
	}
	cls.Super = sc
	return nil
}

func (vm *VM) unpack(n int) error {
	v := vm.pop()
	var elems []value.Value
	if v.IsObj() {
		switch o := v.AsObj().(type) {
		case *value.Tuple:
			elems = o.Elems
		case *value.List:
			elems = o.Elems
		}
	}
	if elems == nil {
		return vm.typeErrorf("cannot unpack %s", typeName(v))
	}
	if len(elems) != n {
		return vm.typeErrorf("unpack expected %d values, got %d", n, len(elems))
	}
	vm.EnsureStack(n)
	for _, e := range elems {
		vm.push(e)
	}
	return nil
}

func (vm *VM) spread() error {
	v := vm.pop()
	var elems []value.Value
	if v.IsObj() {
		switch o := v.AsObj().(type) {
		case *value.List:
			elems = o.Elems
		case *value.Tuple:
			elems = o.Elems
		}
	}
	if elems == nil {
		return vm.typeErrorf("cannot spread %s", typeName(v))
	}
	vm.maybeCollect()
	s := vm.heap.NewSpread(append([]value.Value(nil), elems...))
	vm.push(value.ObjVal(s))
	return nil
}
