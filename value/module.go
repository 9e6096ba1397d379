package value

// Module is the unit of compilation and the unit of import resolution.
// Every module owns its own globals table; two
// names are distinguished by the VM rather than by any field here:
// "__core__" (built-ins, including the mutable importPaths list) and
// "__main__" (the entry point).
type Module struct {
	Header
	Name    string
	Path    string // resolved source/bytecode path, empty for the REPL
	Globals *Table
}

func NewModule(name, path string) *Module {
	return &Module{Name: name, Path: path, Globals: NewTable()}
}

func (m *Module) Kind() ObjKind { return ObjModule }
func (m *Module) String() string {
	return "<module " + m.Name + ">"
}
func (m *Module) Trace(push func(Value)) {
	m.Globals.Each(func(k, v Value) bool {
		push(k)
		push(v)
		return true
	})
}
