package gc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"jstar/value"
)

type fakeRoots struct {
	vals []value.Value
}

func (f fakeRoots) MarkRoots(push func(value.Value)) {
	for _, v := range f.vals {
		push(v)
	}
}

func TestIntern_IdentityEquality(t *testing.T) {
	h := New(DefaultConfig())
	a := h.Intern("hello")
	b := h.Intern("hello")
	assert.True(t, a == b, "interned strings with equal content must be pointer-identical")

	c := h.Intern("world")
	assert.False(t, a == c)
}

func TestCollect_KeepsReachable_FreesUnreachable(t *testing.T) {
	h := New(DefaultConfig())
	kept := h.NewList(nil)
	h.NewList(nil) // unreachable, should be freed

	roots := fakeRoots{vals: []value.Value{value.ObjVal(kept)}}
	h.Collect(roots)

	found := false
	for cur := h.all; cur != nil; cur = cur.GCHeader().Next {
		if cur == value.Obj(kept) {
			found = true
		}
	}
	assert.True(t, found, "reachable object must survive collection")
}

func TestCollect_InternTableIsWeak(t *testing.T) {
	h := New(DefaultConfig())
	h.Intern("transient")
	h.Collect(fakeRoots{})
	_, stillThere := h.intern["transient"]
	assert.False(t, stillThere, "unreferenced interned string should be swept")
}

func TestNeedsCollect_ThresholdAndStress(t *testing.T) {
	h := New(Config{InitialThreshold: 8, HeapGrowRate: 2})
	assert.False(t, h.NeedsCollect())
	h.NewTable()
	assert.True(t, h.NeedsCollect())

	stressed := New(Config{InitialThreshold: 1 << 30, HeapGrowRate: 2, Stress: true})
	assert.True(t, stressed.NeedsCollect())
}
