// Package value defines J*'s tagged Value representation and the heap
// Object variants it can point to. The original tree-walker represents
// every runtime value as a GoMixObject interface with GetType/ToString/
// ToObject; this package keeps that interface shape for heap objects
// (see Obj below) but splits out a small tagged struct for Value itself
// so that number/bool/null can live on the Go stack without an
// allocation, the way a native VM's tagged-union representation would.
package value

import "fmt"

// Kind discriminates a Value's representation.
type Kind byte

const (
	Null Kind = iota
	Bool
	Number
	Handle
	Object
)

// Value is J*'s tagged runtime value. Equality on Null/Bool/Number is by
// content; equality on Handle is by pointer; equality on Object is by
// identity unless an __eq__ overload is invoked by the VM.
type Value struct {
	kind   Kind
	num    float64
	handle any // opaque host pointer, only meaningful when kind == Handle
	obj    Obj
}

func NullVal() Value            { return Value{kind: Null} }
func BoolVal(b bool) Value      { return Value{kind: Bool, num: boolToFloat(b)} }
func NumberVal(n float64) Value { return Value{kind: Number, num: n} }
func HandleVal(h any) Value     { return Value{kind: Handle, handle: h} }
func ObjVal(o Obj) Value        { return Value{kind: Object, obj: o} }

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == Null }
func (v Value) IsBool() bool   { return v.kind == Bool }
func (v Value) IsNumber() bool { return v.kind == Number }
func (v Value) IsHandle() bool { return v.kind == Handle }
func (v Value) IsObj() bool    { return v.kind == Object }

func (v Value) AsBool() bool     { return v.num != 0 }
func (v Value) AsNumber() float64 { return v.num }
func (v Value) AsHandle() any    { return v.handle }
func (v Value) AsObj() Obj       { return v.obj }

// IsObjType reports whether v is a heap object of the given ObjKind.
func (v Value) IsObjType(k ObjKind) bool {
	return v.kind == Object && v.obj != nil && v.obj.Kind() == k
}

// Truthy implements J*'s truthiness rule: null and false are falsy,
// every other value (including 0 and "") is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case Null:
		return false
	case Bool:
		return v.AsBool()
	default:
		return true
	}
}

// Equals implements bitwise/identity equality: non-object values compare
// by content, objects by pointer identity. The
// VM layers __eq__ overload dispatch on top of this for instances.
func Equals(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case Null:
		return true
	case Bool, Number:
		return a.num == b.num
	case Handle:
		return a.handle == b.handle
	case Object:
		return a.obj == b.obj
	}
	return false
}

// String renders v the way the REPL and `print` would: the raw string
// for strings, otherwise a type-tagged form in the style of the
// original tree-walker's ToObject() convention.
func (v Value) String() string {
	switch v.kind {
	case Null:
		return "null"
	case Bool:
		return fmt.Sprintf("%t", v.AsBool())
	case Number:
		return formatNumber(v.num)
	case Handle:
		return fmt.Sprintf("<handle %p>", v.handle)
	case Object:
		if v.obj == nil {
			return "null"
		}
		return v.obj.String()
	}
	return "?"
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) && n < 1e15 && n > -1e15 {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}
