package value

// Class is a guest-defined type: a name, an optional superclass, and a
// method table (name -> Closure/Native). The method table is never
// mutated after class creation except through bindNative during
// embedding-API setup.
type Class struct {
	Header
	Name    string
	Super   *Class
	Methods *Table // string-keyed Value -> Value (callable)
}

func NewClass(name string, super *Class) *Class {
	return &Class{Name: name, Super: super, Methods: NewTable()}
}

func (c *Class) Kind() ObjKind { return ObjClass }
func (c *Class) String() string {
	return "<class " + c.Name + ">"
}
func (c *Class) Trace(push func(Value)) {
	if c.Super != nil {
		push(ObjVal(c.Super))
	}
	c.Methods.Each(func(k, v Value) bool {
		push(k)
		push(v)
		return true
	})
}

// Resolve looks up a method by name, searching c then its ancestors in
// linear order (the order INVOKE and SUPER_INVOKE both use).
func (c *Class) Resolve(name Value) (Value, bool) {
	for cur := c; cur != nil; cur = cur.Super {
		if v, ok := cur.Methods.Get(name); ok {
			return v, true
		}
	}
	return NullVal(), false
}

// IsSubclassOf implements the `is` operator: c is itself or a descendant
// of other.
func (c *Class) IsSubclassOf(other *Class) bool {
	for cur := c; cur != nil; cur = cur.Super {
		if cur == other {
			return true
		}
	}
	return false
}

// Instance is a live object: a class pointer plus a per-instance field
// table. Fields are looked up before methods by INVOKE: an instance
// field shadows a same-named method.
type Instance struct {
	Header
	Class  *Class
	Fields *Table
}

func NewInstance(class *Class) *Instance {
	return &Instance{Class: class, Fields: NewTable()}
}

func (i *Instance) Kind() ObjKind { return ObjInstance }
func (i *Instance) String() string {
	return "<instance of " + i.Class.Name + ">"
}
func (i *Instance) Trace(push func(Value)) {
	push(ObjVal(i.Class))
	i.Fields.Each(func(k, v Value) bool {
		push(k)
		push(v)
		return true
	})
}
