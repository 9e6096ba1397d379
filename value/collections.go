package value

import "fmt"

// List is a growable ordered sequence, the mutable counterpart to
// Tuple. It backs both the `[...]` literal and the builtin list type.
type List struct {
	Header
	Elems []Value
}

func NewList(elems []Value) *List { return &List{Elems: elems} }

func (l *List) Kind() ObjKind { return ObjList }
func (l *List) String() string {
	return formatSeq("[", "]", l.Elems)
}
func (l *List) Trace(push func(Value)) {
	for _, v := range l.Elems {
		push(v)
	}
}

// Tuple is a fixed-length ordered sequence; immutable in shape, though
// its contents can themselves be mutable objects.
type Tuple struct {
	Header
	Elems []Value
}

func NewTuple(elems []Value) *Tuple { return &Tuple{Elems: elems} }

func (t *Tuple) Kind() ObjKind { return ObjTuple }
func (t *Tuple) String() string {
	return formatSeq("(", ")", t.Elems)
}
func (t *Tuple) Trace(push func(Value)) {
	for _, v := range t.Elems {
		push(v)
	}
}

func formatSeq(open, close string, elems []Value) string {
	s := open
	for i, e := range elems {
		if i > 0 {
			s += ", "
		}
		s += e.String()
	}
	return s + close
}

// Spread wraps a sequence's elements between a SPREAD instruction and
// the MAKE_LIST/MAKE_TUPLE/CALL that consumes them. It exists only on
// the VM stack, never in a guest-visible location.
type Spread struct {
	Header
	Elems []Value
}

func (s *Spread) Kind() ObjKind  { return ObjSpread }
func (s *Spread) String() string { return "<spread>" }
func (s *Spread) Trace(push func(Value)) {
	for _, v := range s.Elems {
		push(v)
	}
}

// tableEntry is one open-addressed slot. present unset marks an empty
// slot; tombstone marks a deleted slot so probing past it keeps working.
type tableEntry struct {
	key       Value
	val       Value
	present   bool
	tombstone bool
}

// Table is an open-addressed mapping from value to value; insertion
// order is not observable. HashFunc lets internal/vm supply instance
// __hash__ dispatch without this package depending on the VM.
type Table struct {
	Header
	entries  []tableEntry
	count    int
	HashFunc func(Value) (uint64, bool) // non-primitive key hashing hook; ok=false falls back to identity
}

func NewTable() *Table {
	return &Table{entries: make([]tableEntry, 8)}
}

func (t *Table) Kind() ObjKind { return ObjTable }
func (t *Table) Len() int      { return t.count }

func (t *Table) String() string {
	s := "{"
	first := true
	for _, e := range t.entries {
		if !e.present {
			continue
		}
		if !first {
			s += ", "
		}
		first = false
		s += e.key.String() + ": " + e.val.String()
	}
	return s + "}"
}

func (t *Table) Trace(push func(Value)) {
	for _, e := range t.entries {
		if e.present {
			push(e.key)
			push(e.val)
		}
	}
}

func (t *Table) hashOf(k Value) uint64 {
	if t.HashFunc != nil {
		if h, ok := t.HashFunc(k); ok {
			return h
		}
	}
	switch k.Kind() {
	case Number:
		return uint64(FNV1a32(formatNumber(k.AsNumber())))
	case Bool:
		if k.AsBool() {
			return 1
		}
		return 0
	case Null:
		return 0
	case Object:
		if s, ok := k.AsObj().(*String); ok {
			return uint64(s.Hash)
		}
		return uint64(FNV1a32(fmt.Sprintf("%p", k.AsObj())))
	}
	return 0
}

func (t *Table) find(k Value) (int, bool) {
	if len(t.entries) == 0 {
		return -1, false
	}
	mask := uint64(len(t.entries) - 1)
	idx := t.hashOf(k) & mask
	firstTomb := -1
	for i := uint64(0); i < uint64(len(t.entries)); i++ {
		slot := (idx + i) & mask
		e := &t.entries[slot]
		if !e.present {
			if e.tombstone {
				if firstTomb == -1 {
					firstTomb = int(slot)
				}
				continue
			}
			if firstTomb != -1 {
				return firstTomb, false
			}
			return int(slot), false
		}
		if keyEquals(e.key, k) {
			return int(slot), true
		}
	}
	if firstTomb != -1 {
		return firstTomb, false
	}
	return -1, false
}

// keyEquals compares table keys. Strings compare by content so that a
// key built outside the owning heap's intern table (host-side lookups,
// deserialized constants) still finds the interned entry.
func keyEquals(a, b Value) bool {
	if a.IsObjType(ObjString) && b.IsObjType(ObjString) {
		return a.AsObj().(*String).Bytes == b.AsObj().(*String).Bytes
	}
	return Equals(a, b)
}

func (t *Table) Get(k Value) (Value, bool) {
	idx, found := t.find(k)
	if !found {
		return NullVal(), false
	}
	return t.entries[idx].val, true
}

func (t *Table) Set(k, v Value) {
	if t.count+1 > len(t.entries)*3/4 {
		t.grow()
	}
	idx, found := t.find(k)
	if idx == -1 {
		t.grow()
		idx, _ = t.find(k)
	}
	if !found {
		t.count++
	}
	t.entries[idx] = tableEntry{key: k, val: v, present: true}
}

func (t *Table) Delete(k Value) bool {
	idx, found := t.find(k)
	if !found {
		return false
	}
	t.entries[idx] = tableEntry{present: false, tombstone: true}
	t.count--
	return true
}

func (t *Table) grow() {
	old := t.entries
	newCap := len(old) * 2
	if newCap == 0 {
		newCap = 8
	}
	t.entries = make([]tableEntry, newCap)
	t.count = 0
	for _, e := range old {
		if e.present {
			t.Set(e.key, e.val)
		}
	}
}

// NextKey returns the first live key at or after slot index from, with
// its slot index, for the VM's integer-state table iteration.
func (t *Table) NextKey(from int) (int, Value, bool) {
	for i := from; i < len(t.entries); i++ {
		if t.entries[i].present {
			return i, t.entries[i].key, true
		}
	}
	return 0, NullVal(), false
}

// Each calls fn for every live entry; fn returning false stops iteration.
func (t *Table) Each(fn func(k, v Value) bool) {
	for _, e := range t.entries {
		if e.present {
			if !fn(e.key, e.val) {
				return
			}
		}
	}
}
