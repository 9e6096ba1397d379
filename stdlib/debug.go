package stdlib

import (
	"github.com/dustin/go-humanize"

	"jstar/internal/module"
	"jstar/value"
)

const debugSource = `
native gc()
native stats()
native allocated()
`

func debugNatives() *module.NativeRegistry {
	reg := &module.NativeRegistry{}

	reg.Register("gc", 0, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		rt.Collect()
		return value.NumberVal(float64(rt.Heap().LastFreed())), nil
	})

	reg.Register("allocated", 0, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		return value.NumberVal(float64(rt.Heap().Allocated())), nil
	})

	reg.Register("stats", 0, func(rt module.Runtime, args []value.Value) (value.Value, error) {
		heap := rt.Heap()
		t := heap.NewTable()
		set := func(k string, v value.Value) {
			t.Set(value.ObjVal(heap.Intern(k)), v)
		}
		set("allocated", value.NumberVal(float64(heap.Allocated())))
		set("allocatedHuman", value.ObjVal(heap.Intern(humanize.Bytes(uint64(heap.Allocated())))))
		set("threshold", value.NumberVal(float64(heap.Threshold())))
		set("collections", value.NumberVal(float64(heap.Collections())))
		set("lastFreed", value.NumberVal(float64(heap.LastFreed())))
		return value.ObjVal(t), nil
	})

	return reg
}
