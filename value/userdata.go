package value

import "strconv"

// Finalizer runs once, during a sweep that collects the Userdata that
// owns it.
type Finalizer func(*Userdata)

// Userdata is a host-owned opaque buffer with an optional finalizer,
// used by stdlib native shims (file handles, regex programs, etc.) to
// attach Go-side resources to a guest-visible value.
type Userdata struct {
	Header
	Tag      string
	Data     []byte
	Host     any // arbitrary host-side payload, e.g. an *os.File
	Finalize Finalizer
}

func NewUserdata(tag string, size int) *Userdata {
	return &Userdata{Tag: tag, Data: make([]byte, size)}
}

func (u *Userdata) Kind() ObjKind { return ObjUserdata }
func (u *Userdata) String() string {
	return "<userdata " + u.Tag + ">"
}
func (u *Userdata) Trace(push func(Value)) {}

// StackFrame is one (module, function, line) record in a StackTrace.
type StackFrame struct {
	Module   string
	Function string
	Line     int
}

// StackTrace is attached to raised exceptions so the host can format a
// backtrace via the embedding API.
type StackTrace struct {
	Header
	Frames []StackFrame
}

func NewStackTrace() *StackTrace { return &StackTrace{} }

func (s *StackTrace) Kind() ObjKind { return ObjStackTrace }
func (s *StackTrace) String() string {
	out := ""
	for _, f := range s.Frames {
		out += f.Module + "." + f.Function + ":" + strconv.Itoa(f.Line) + "\n"
	}
	return out
}
func (s *StackTrace) Trace(push func(Value)) {}
