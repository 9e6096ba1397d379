package vm

import (
	"fmt"
	"strings"

	"jstar/value"
)

// RaisedError transports a guest exception value through Go error
// returns without losing the value itself: the exception object must
// stay addressable on the guest stack, so the Go error is only a
// carrier, never the representation.
type RaisedError struct {
	Val value.Value
}

func (e *RaisedError) Error() string {
	if inst, ok := asInstance(e.Val); ok {
		if msg, found := inst.Fields.Get(value.ObjVal(value.NewString("_msg", value.FNV1a32("_msg")))); found {
			return inst.Class.Name + ": " + msg.String()
		}
		return inst.Class.Name
	}
	return e.Val.String()
}

// UncaughtError is returned by the top-level evaluate entry points when
// a runtime exception escapes every guest handler. The exception value
// remains reachable via VM.LastException.
type UncaughtError struct {
	Val   value.Value
	Trace string
}

func (e *UncaughtError) Error() string { return e.Trace }

// errPropagate unwinds a nested run (callSync) whose exception is
// handled by a frame beneath the sync boundary; the boundary's caller
// re-raises it in the outer context.
type errPropagate struct {
	val value.Value
}

func (e *errPropagate) Error() string { return "exception unwinding past call boundary" }

// LastException returns the most recent uncaught exception value, for
// the embedding API's RUNTIME_ERR path.
func (vm *VM) LastException() value.Value { return vm.lastExc }

func asInstance(v value.Value) (*value.Instance, bool) {
	if !v.IsObjType(value.ObjInstance) {
		return nil, false
	}
	return v.AsObj().(*value.Instance), true
}

// newException builds an instance of cls carrying msg in its _msg
// field, the slot the built-in msg() method reads.
func (vm *VM) newException(cls *value.Class, msg string) value.Value {
	inst := vm.allocInstance(cls)
	inst.Fields.Set(value.ObjVal(vm.allocString("_msg")), value.ObjVal(vm.allocString(msg)))
	return value.ObjVal(inst)
}

func (vm *VM) raisedf(cls *value.Class, format string, args ...any) error {
	return &RaisedError{Val: vm.newException(cls, fmt.Sprintf(format, args...))}
}

func (vm *VM) typeErrorf(format string, args ...any) error {
	return vm.raisedf(vm.builtins.typeExc, format, args...)
}

// attachTrace records the active call chain on exc's _traceback field
// at raise time, once: a re-raise (ensure blocks re-raising, handlers
// rethrowing) keeps the original trace.
func (vm *VM) attachTrace(exc value.Value) {
	inst, ok := asInstance(exc)
	if !ok || !inst.Class.IsSubclassOf(vm.builtins.exception) {
		return
	}
	key := value.ObjVal(vm.allocString("_traceback"))
	if _, has := inst.Fields.Get(key); has {
		return
	}
	st := vm.allocStackTrace()
	for i := len(vm.frames) - 1; i >= 0; i-- {
		fr := &vm.frames[i]
		if fr.closure == nil {
			continue
		}
		proto := fr.closure.Proto
		modName := "?"
		if fr.closure.Module != nil {
			modName = fr.closure.Module.Name
		}
		st.Frames = append(st.Frames, value.StackFrame{
			Module:   modName,
			Function: proto.Name,
			Line:     proto.LineFor(fr.ip - 1),
		})
	}
	inst.Fields.Set(key, value.ObjVal(st))
}

// raise dispatches exc to the innermost try handler. It unwinds frames
// (closing their upvalues) until a handler is found, truncates the
// value stack to the handler's recorded depth, pushes exc, and resumes
// at the handler's offset. A handler beneath the current sync boundary
// cannot be entered from this nested run; the exception propagates out
// through errPropagate instead. With no handler anywhere, the VM
// surfaces an UncaughtError.
func (vm *VM) raise(exc value.Value) error {
	vm.attachTrace(exc)
	base := vm.curSyncBase()
	for len(vm.frames) > base {
		fr := &vm.frames[len(vm.frames)-1]
		if n := len(fr.handlers); n > 0 {
			h := fr.handlers[n-1]
			fr.handlers = fr.handlers[:n-1]
			vm.closeUpvalues(h.depth)
			vm.sp = h.depth
			vm.push(exc)
			fr.ip = h.ip
			return nil
		}
		vm.closeUpvalues(fr.base)
		if fr.gen != nil {
			fr.gen.State = value.GenDone
			fr.gen.StackSeg = nil
		}
		vm.sp = fr.retSlot
		vm.frames = vm.frames[:len(vm.frames)-1]
	}
	if base > 0 {
		return &errPropagate{val: exc}
	}
	vm.lastExc = exc
	return &UncaughtError{Val: exc, Trace: vm.formatUncaught(exc)}
}

// raiseErr converts any Go error produced while executing an opcode into
// a guest exception and dispatches it. RaisedError and errPropagate
// already carry a guest value; anything else (native failures, import
// callback errors) becomes a plain Exception.
func (vm *VM) raiseErr(err error) error {
	switch e := err.(type) {
	case *RaisedError:
		return vm.raise(e.Val)
	case *errPropagate:
		return vm.raise(e.val)
	case *UncaughtError:
		return e
	default:
		return vm.raise(vm.newException(vm.builtins.exception, err.Error()))
	}
}

func (vm *VM) curSyncBase() int {
	if n := len(vm.syncBases); n > 0 {
		return vm.syncBases[n-1]
	}
	return 0
}

// FormatException renders exc with its recorded traceback, the form
// the embedding API exposes for the RUNTIME_ERR path.
func (vm *VM) FormatException(exc value.Value) string {
	return vm.formatUncaught(exc)
}

// formatUncaught renders the traceback the reference CLI prints for an
// exception that escaped every handler.
func (vm *VM) formatUncaught(exc value.Value) string {
	var b strings.Builder
	b.WriteString("Traceback (most recent call last):\n")
	if inst, ok := asInstance(exc); ok {
		if tb, found := inst.Fields.Get(value.ObjVal(vm.allocString("_traceback"))); found {
			if st, isTrace := tb.AsObj().(*value.StackTrace); tb.IsObj() && isTrace {
				for i := len(st.Frames) - 1; i >= 0; i-- {
					f := st.Frames[i]
					fmt.Fprintf(&b, "  [line %d] module %s in %s\n", f.Line, f.Module, f.Function)
				}
			}
		}
		msg := ""
		if m, found := inst.Fields.Get(value.ObjVal(vm.allocString("_msg"))); found && !m.IsNull() {
			msg = m.String()
		}
		fmt.Fprintf(&b, "%s: %s", inst.Class.Name, msg)
		return b.String()
	}
	fmt.Fprintf(&b, "Exception: %s", exc.String())
	return b.String()
}
