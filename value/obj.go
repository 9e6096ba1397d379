package value

// ObjKind discriminates the heap object variants a Value can point to.
type ObjKind byte

const (
	ObjString ObjKind = iota
	ObjList
	ObjTuple
	ObjTable
	ObjFunction
	ObjNative
	ObjClosure
	ObjUpvalue
	ObjClass
	ObjInstance
	ObjModule
	ObjBoundMethod
	ObjGenerator
	ObjUserdata
	ObjStackTrace
	// ObjSpread never escapes the VM: SPREAD wraps a sequence in it so
	// MAKE_LIST/MAKE_TUPLE/CALL can splice the elements when collecting
	// their operands.
	ObjSpread
)

func (k ObjKind) String() string {
	switch k {
	case ObjString:
		return "String"
	case ObjList:
		return "List"
	case ObjTuple:
		return "Tuple"
	case ObjTable:
		return "Table"
	case ObjFunction:
		return "Function"
	case ObjNative:
		return "Native"
	case ObjClosure:
		return "Closure"
	case ObjUpvalue:
		return "Upvalue"
	case ObjClass:
		return "Class"
	case ObjInstance:
		return "Instance"
	case ObjModule:
		return "Module"
	case ObjBoundMethod:
		return "BoundMethod"
	case ObjGenerator:
		return "Generator"
	case ObjUserdata:
		return "Userdata"
	case ObjStackTrace:
		return "StackTrace"
	case ObjSpread:
		return "Spread"
	}
	return "Unknown"
}

// Header is embedded in every heap object. It carries the tri-color mark
// bit and the intrusive "all objects" list pointer the GC's sweep phase
// walks, so the allocator never needs a separate object registry.
type Header struct {
	Marked bool
	Next   Obj
	Size   uintptr // approximate bytes charged to the allocator's threshold
}

// Obj is implemented by every heap object variant. Trace enumerates the
// Values an object directly owns so the GC's mark phase can push them
// onto its gray worklist without a reflection-based walk.
type Obj interface {
	Kind() ObjKind
	String() string
	GCHeader() *Header
	Trace(push func(Value))
}

func (h *Header) GCHeader() *Header { return h }
