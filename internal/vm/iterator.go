package vm

import (
	"strings"
	"unicode/utf8"

	"jstar/value"
)

// forIter advances one `for x in seq` iteration. The loop's two hidden
// locals sit on top of the stack: the sequence below, the iterator
// state above. The protocol is __iter__(prev) -> next state (falsy to
// stop), then __next__(state) -> element; builtin sequences run it
// inline with an integer state and no allocation. The top frame is
// re-fetched after iterNext: resuming a generator or dispatching to a
// guest __iter__ can grow (and relocate) the frame stack.
func (vm *VM) forIter(exitJump int) error {
	state := vm.peek(0)
	seq := vm.peek(1)

	newState, element, hasNext, err := vm.iterNext(seq, state)
	if err != nil {
		return err
	}
	if !hasNext {
		vm.frames[len(vm.frames)-1].ip += exitJump
		return nil
	}
	vm.stack[vm.sp-1] = newState
	vm.push(element)
	return nil
}

func (vm *VM) iterNext(seq, state value.Value) (newState, element value.Value, hasNext bool, err error) {
	if seq.IsObj() {
		switch o := seq.AsObj().(type) {
		case *value.List:
			return indexIter(o.Elems, state)
		case *value.Tuple:
			return indexIter(o.Elems, state)
		case *value.String:
			return vm.stringIter(o.Bytes, state)
		case *value.Table:
			return tableIter(o, state)
		case *value.Generator:
			res, done, rerr := vm.resumeGenerator(o)
			if rerr != nil {
				return value.NullVal(), value.NullVal(), false, rerr
			}
			if done {
				return value.NullVal(), value.NullVal(), false, nil
			}
			return seq, res, true, nil
		case *value.Instance:
			return vm.instanceIter(seq, state)
		}
	}
	return value.NullVal(), value.NullVal(), false,
		vm.typeErrorf("%s is not iterable", typeName(seq))
}

// indexIter is the no-allocation integer-state path shared by lists and
// tuples.
func indexIter(elems []value.Value, state value.Value) (value.Value, value.Value, bool, error) {
	next := 0
	if state.IsNumber() {
		next = int(state.AsNumber()) + 1
	}
	if next >= len(elems) {
		return value.NullVal(), value.NullVal(), false, nil
	}
	return value.NumberVal(float64(next)), elems[next], true, nil
}

// stringIter iterates runes with the byte offset as state.
func (vm *VM) stringIter(s string, state value.Value) (value.Value, value.Value, bool, error) {
	off := 0
	if state.IsNumber() {
		prev := int(state.AsNumber())
		_, w := decodeRune(s[prev:])
		off = prev + w
	}
	if off >= len(s) {
		return value.NullVal(), value.NullVal(), false, nil
	}
	r, _ := decodeRune(s[off:])
	return value.NumberVal(float64(off)), value.ObjVal(vm.allocString(string(r))), true, nil
}

func decodeRune(s string) (rune, int) {
	return utf8.DecodeRuneInString(s)
}

// tableIter walks the table's keys with the open-addressing slot index
// as state.
func tableIter(t *value.Table, state value.Value) (value.Value, value.Value, bool, error) {
	from := 0
	if state.IsNumber() {
		from = int(state.AsNumber()) + 1
	}
	slot, key, ok := t.NextKey(from)
	if !ok {
		return value.NullVal(), value.NullVal(), false, nil
	}
	return value.NumberVal(float64(slot)), key, true, nil
}

// instanceIter runs the guest-level protocol on a class instance.
func (vm *VM) instanceIter(seq, state value.Value) (value.Value, value.Value, bool, error) {
	next, err := vm.callOverload(seq, "__iter__", state)
	if err != nil {
		return value.NullVal(), value.NullVal(), false, err
	}
	if !next.Truthy() {
		return value.NullVal(), value.NullVal(), false, nil
	}
	element, err := vm.callOverload(seq, "__next__", next)
	if err != nil {
		return value.NullVal(), value.NullVal(), false, err
	}
	return next, element, true, nil
}

// resumeGenerator splices g's saved stack segment back onto the value
// stack, reinstalls its frame and handlers, and runs until the body
// yields again or returns. yield and resume are symmetric copies
// between the generator's owned segment and the active stack.
func (vm *VM) resumeGenerator(g *value.Generator) (value.Value, bool, error) {
	switch g.State {
	case value.GenDone:
		return value.NullVal(), true, nil
	case value.GenRunning:
		return value.NullVal(), false, vm.typeErrorf("generator %s is already running", g.Closure.Proto.Name)
	}

	retSlot := vm.sp
	vm.EnsureStack(len(g.StackSeg) + 2)
	vm.push(value.NullVal()) // result slot
	base := vm.sp
	for _, v := range g.StackSeg {
		vm.push(v)
	}
	if g.ResumeOff > 0 {
		// The suspended code continues just past its YIELD and expects the
		// yield expression's value on top; __next__ sends null.
		vm.push(value.NullVal())
	}

	if err := vm.pushFrame(g.Closure, base, retSlot, false, value.NullVal()); err != nil {
		vm.sp = retSlot
		return value.NullVal(), false, err
	}
	fr := &vm.frames[len(vm.frames)-1]
	fr.ip = g.ResumeOff
	fr.gen = g
	for _, h := range g.Handlers {
		fr.handlers = append(fr.handlers, handler{ip: h.IP, depth: h.RelDepth + base})
	}
	g.State = value.GenRunning

	before := len(vm.frames) - 1
	vm.syncBases = append(vm.syncBases, before)
	err := vm.run(before)
	vm.syncBases = vm.syncBases[:len(vm.syncBases)-1]
	if err != nil {
		g.State = value.GenDone
		vm.sp = retSlot
		return value.NullVal(), false, err
	}

	res := vm.stack[retSlot]
	vm.sp = retSlot
	done := g.State == value.GenDone
	if !done {
		g.LastYield = res
	}
	return res, done, nil
}

// invokeBuiltin dispatches INVOKE on non-instance receivers: the small
// method surface lists, strings, tables, tuples, and generators carry
// natively.
func (vm *VM) invokeBuiltin(recvIdx int, name string, nargs int) error {
	recv := vm.stack[recvIdx]
	args := vm.stackSlice(recvIdx+1, vm.sp)

	finish := func(res value.Value, err error) error {
		if err != nil {
			return err
		}
		vm.sp = recvIdx
		vm.push(res)
		return nil
	}

	if recv.IsObj() {
		switch o := recv.AsObj().(type) {
		case *value.List:
			switch name {
			case "add":
				if len(args) != 1 {
					return vm.typeErrorf("add expects 1 argument, got %d", len(args))
				}
				o.Elems = append(o.Elems, args[0])
				return finish(recv, nil)
			case "pop":
				if len(o.Elems) == 0 {
					return vm.raisedf(vm.builtins.indexExc, "pop from empty list")
				}
				last := o.Elems[len(o.Elems)-1]
				o.Elems = o.Elems[:len(o.Elems)-1]
				return finish(last, nil)
			case "insert":
				if len(args) != 2 {
					return vm.typeErrorf("insert expects 2 arguments, got %d", len(args))
				}
				i, err := vm.seqIndex(args[0], len(o.Elems)+1)
				if err != nil {
					return err
				}
				o.Elems = append(o.Elems, value.NullVal())
				copy(o.Elems[i+1:], o.Elems[i:])
				o.Elems[i] = args[1]
				return finish(recv, nil)
			case "clear":
				o.Elems = o.Elems[:0]
				return finish(recv, nil)
			case "len":
				return finish(value.NumberVal(float64(len(o.Elems))), nil)
			}

		case *value.Tuple:
			if name == "len" {
				return finish(value.NumberVal(float64(len(o.Elems))), nil)
			}

		case *value.String:
			switch name {
			case "len":
				return finish(value.NumberVal(float64(len([]rune(o.Bytes)))), nil)
			case "contains":
				if len(args) == 1 {
					if sub, ok := asString(args[0]); ok {
						return finish(value.BoolVal(containsStr(o.Bytes, sub)), nil)
					}
				}
				return vm.typeErrorf("contains expects a string argument")
			}

		case *value.Table:
			switch name {
			case "len":
				return finish(value.NumberVal(float64(o.Len())), nil)
			case "contains":
				if len(args) != 1 {
					return vm.typeErrorf("contains expects 1 argument, got %d", len(args))
				}
				_, ok := o.Get(args[0])
				return finish(value.BoolVal(ok), nil)
			case "delete":
				if len(args) != 1 {
					return vm.typeErrorf("delete expects 1 argument, got %d", len(args))
				}
				return finish(value.BoolVal(o.Delete(args[0])), nil)
			case "keys":
				var keys []value.Value
				o.Each(func(k, _ value.Value) bool {
					keys = append(keys, k)
					return true
				})
				return finish(value.ObjVal(vm.allocList(keys)), nil)
			case "values":
				var vals []value.Value
				o.Each(func(_, v value.Value) bool {
					vals = append(vals, v)
					return true
				})
				return finish(value.ObjVal(vm.allocList(vals)), nil)
			}

		case *value.Generator:
			switch name {
			case "__next__":
				res, _, err := vm.resumeGenerator(o)
				return finish(res, err)
			case "isDone":
				return finish(value.BoolVal(o.State == value.GenDone), nil)
			}
		}
	}

	return vm.raisedf(vm.builtins.fieldExc, "%s has no method %q", typeName(recv), name)
}

func containsStr(s, sub string) bool {
	return strings.Contains(s, sub)
}
