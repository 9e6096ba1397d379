// Package gc implements J*'s object heap: an allocator that tracks bytes
// charged against a growable threshold, a weakly-held string intern
// table, and a non-moving tri-color mark-and-sweep collector. It is
// modeled on scope/scope.go's lifecycle conventions (lazily-initialized
// maps, explicit ownership) adapted from a tree-walking scope chain to
// a heap object registry tracked by a tracing collector.
package gc

import "jstar/value"

// Roots is implemented by the VM so the collector can walk every live
// root without gc
// importing internal/vm.
type Roots interface {
	MarkRoots(push func(value.Value))
}

// Config mirrors the embedding API's VM construction parameters that
// concern the heap.
type Config struct {
	InitialThreshold uintptr
	HeapGrowRate     float64
	// Stress forces a collection on every allocation, the debug-build
	// mode the language calls for.
	Stress bool
}

func DefaultConfig() Config {
	return Config{InitialThreshold: 1 << 20, HeapGrowRate: 2.0}
}

// Heap owns every object allocated by one VM instance. Objects form a
// single intrusive linked list via Header.Next so sweep never needs a
// separate registry slice.
type Heap struct {
	cfg       Config
	allocated uintptr
	threshold uintptr
	all       value.Obj
	intern    map[string]*value.String

	collections int
	lastFreed   int
}

func New(cfg Config) *Heap {
	if cfg.InitialThreshold == 0 {
		cfg = DefaultConfig()
	}
	return &Heap{cfg: cfg, threshold: cfg.InitialThreshold, intern: make(map[string]*value.String)}
}

// Allocated returns the bytes currently charged to this heap, used by
// stdlib/debug.go's debug.stats().
func (h *Heap) Allocated() uintptr { return h.allocated }
func (h *Heap) Threshold() uintptr { return h.threshold }
func (h *Heap) Collections() int   { return h.collections }

// register links o into the heap's object list and charges size bytes
// against the allocation threshold.
func (h *Heap) register(o value.Obj, size uintptr) {
	hdr := o.GCHeader()
	hdr.Size = size
	hdr.Next = h.all
	h.all = o
	h.allocated += size
}

// NeedsCollect reports whether the next allocation site should trigger
// Collect, either because the threshold was crossed or stress mode is on.
func (h *Heap) NeedsCollect() bool {
	return h.cfg.Stress || h.allocated >= h.threshold
}

// Collect runs one full mark-and-sweep cycle rooted at roots, then
// grows the threshold proportionally to what's still live:
// threshold = allocated_bytes x heap_grow_rate.
func (h *Heap) Collect(roots Roots) {
	h.collections++
	gray := make([]value.Obj, 0, 64)
	push := func(v value.Value) {
		if !v.IsObj() {
			return
		}
		o := v.AsObj()
		if o == nil {
			return
		}
		hdr := o.GCHeader()
		if hdr.Marked {
			return
		}
		hdr.Marked = true
		gray = append(gray, o)
	}
	roots.MarkRoots(push)
	for len(gray) > 0 {
		o := gray[len(gray)-1]
		gray = gray[:len(gray)-1]
		o.Trace(push)
	}

	var survivors value.Obj
	var tail value.Obj
	var freed, keep uintptr
	for cur := h.all; cur != nil; {
		next := cur.GCHeader().Next
		hdr := cur.GCHeader()
		if hdr.Marked {
			hdr.Marked = false
			hdr.Next = nil
			if survivors == nil {
				survivors = cur
			} else {
				tail.GCHeader().Next = cur
			}
			tail = cur
			keep += hdr.Size
		} else {
			if ud, ok := cur.(*value.Userdata); ok && ud.Finalize != nil {
				ud.Finalize(ud)
			}
			if s, ok := cur.(*value.String); ok {
				delete(h.intern, s.Bytes)
			}
			freed += hdr.Size
		}
		cur = next
	}
	h.all = survivors
	h.allocated = keep
	h.lastFreed = int(freed)
	h.threshold = uintptr(float64(h.allocated) * h.cfg.HeapGrowRate)
	if h.threshold < h.cfg.InitialThreshold {
		h.threshold = h.cfg.InitialThreshold
	}
}

// LastFreed reports the bytes reclaimed by the most recent Collect, for
// debug.stats().
func (h *Heap) LastFreed() int { return h.lastFreed }
