// Package allocator implements the combined facade (spec.md §4.6): it
// dispatches user requests between the primary size-classed allocator and
// the secondary large-object allocator, and is the only package most
// callers need to import directly.
package allocator

import (
	"unsafe"

	"github.com/blockalloc/blockalloc/primary"
	"github.com/blockalloc/blockalloc/secondary"
	"github.com/blockalloc/blockalloc/sizeclass"
	"github.com/blockalloc/blockalloc/tcache"
)

// Heap owns one primary and one secondary allocator built against the same
// size-class schedule. Callers drive it through a *tcache.Cache they own
// exclusively — typically one per goroutine.
type Heap struct {
	schedule  *sizeclass.Schedule
	primary   *primary.Allocator
	secondary *secondary.Allocator
}

// New builds a Heap for the given size-class schedule, reserving the
// primary's whole address-space arena immediately.
func New(schedule *sizeclass.Schedule) *Heap {
	return &Heap{
		schedule:  schedule,
		primary:   primary.New(schedule),
		secondary: secondary.New(),
	}
}

// overflows reports whether a+b overflows a non-negative int sum.
func overflows(a, b int) bool {
	return a+b < a
}

// Allocate serves size bytes aligned to alignment, routing through cache
// when the primary can serve the request and through the secondary
// otherwise. size==0 is treated as size==1 so callers relying on a non-null
// result for zero-size requests keep working. Returns nil only on the two
// overflow conditions spec.md §7 allows to surface as failure rather than
// abort.
func (h *Heap) Allocate(cache *tcache.Cache, size, alignment int, cleared bool) unsafe.Pointer {
	if size == 0 {
		size = 1
	}
	if overflows(size, alignment) {
		return nil
	}
	if alignment > 8 {
		size = roundUp(size, alignment)
	}

	var p unsafe.Pointer
	if h.primary.CanAllocate(size, alignment) {
		class, ok := h.schedule.ClassOf(size)
		if !ok {
			panic("allocator: CanAllocate reported true but ClassOf rejected size")
		}
		p = cache.Allocate(h.primary, class)
	} else {
		var ok bool
		p, ok = h.secondary.Allocate(size, alignment)
		if !ok {
			return nil
		}
	}

	if alignment > 8 && uintptr(p)%uintptr(alignment) != 0 {
		panic("allocator: Allocate: returned pointer violates requested alignment")
	}
	if cleared && p != nil {
		clearBytes(p, h.actualSize(p))
	}
	return p
}

// Deallocate frees p, a no-op if p is nil. The block is routed back to
// whichever allocator owns it.
func (h *Heap) Deallocate(cache *tcache.Cache, p unsafe.Pointer) {
	if p == nil {
		return
	}
	if h.primary.PointerIsMine(p) {
		class := h.primary.ClassID(p)
		cache.Deallocate(h.primary, class, p)
		return
	}
	h.secondary.Deallocate(p)
}

// Reallocate resizes p to newSize, always by copying into a fresh block and
// freeing the old one; it never shrinks in place. p==nil behaves as
// Allocate; newSize==0 behaves as Deallocate and returns nil.
func (h *Heap) Reallocate(cache *tcache.Cache, p unsafe.Pointer, newSize, alignment int) unsafe.Pointer {
	if p == nil {
		return h.Allocate(cache, newSize, alignment, false)
	}
	if newSize == 0 {
		h.Deallocate(cache, p)
		return nil
	}
	if !h.PointerIsMine(p) {
		panic("allocator: Reallocate: pointer not owned by this heap")
	}
	old := h.GetActuallyAllocatedSize(p)

	q := h.Allocate(cache, newSize, alignment, false)
	if q == nil {
		return nil
	}
	n := old
	if newSize < n {
		n = newSize
	}
	copyBytes(q, p, n)
	h.Deallocate(cache, p)
	return q
}

// PointerIsMine reports whether p was produced by either of this heap's
// allocators.
func (h *Heap) PointerIsMine(p unsafe.Pointer) bool {
	return h.primary.PointerIsMine(p) || h.secondary.PointerIsMine(p)
}

// GetMetadata returns the address of p's fixed metadata region.
func (h *Heap) GetMetadata(p unsafe.Pointer) unsafe.Pointer {
	if h.primary.PointerIsMine(p) {
		return h.primary.Metadata(p)
	}
	return h.secondary.GetMetadata(p)
}

// GetBlockBegin returns the user base of the block containing p, or nil if
// p belongs to neither allocator. A secondary block is found from any
// pointer into it; a primary block only from its base, since dispatch goes
// through the primary's exact-base PointerIsMine, so an interior pointer
// into a primary block yields nil.
func (h *Heap) GetBlockBegin(p unsafe.Pointer) unsafe.Pointer {
	if h.primary.PointerIsMine(p) {
		return h.primary.BlockBegin(p)
	}
	return h.secondary.GetBlockBegin(p)
}

// GetActuallyAllocatedSize returns p's usable capacity, which may exceed
// the size originally requested.
func (h *Heap) GetActuallyAllocatedSize(p unsafe.Pointer) int {
	return h.actualSize(p)
}

func (h *Heap) actualSize(p unsafe.Pointer) int {
	if h.primary.PointerIsMine(p) {
		return h.primary.Size(p)
	}
	return h.secondary.GetActuallyAllocatedSize(p)
}

// TotalMemoryUsed sums the bytes the primary has carved from its class
// regions and the secondary's TotalMemoryUsed.
func (h *Heap) TotalMemoryUsed() int64 {
	return h.primary.TotalMemoryUsed() + h.secondary.TotalMemoryUsed()
}

// SwallowCache drains a goroutine's cache back into the primary. Call this
// before the goroutine exits, or when otherwise reclaiming ownership of a
// Cache whose owner is known-quiescent.
func (h *Heap) SwallowCache(cache *tcache.Cache) {
	cache.Drain(h.primary)
}

// TestOnlyUnmap tears down the primary's address-space reservation. It is
// undefined behavior to call this with any live allocation still
// outstanding.
func (h *Heap) TestOnlyUnmap() {
	h.primary.TestOnlyUnmap()
}

func roundUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

func clearBytes(p unsafe.Pointer, n int) {
	b := unsafe.Slice((*byte)(p), n)
	for i := range b {
		b[i] = 0
	}
}

func copyBytes(dst, src unsafe.Pointer, n int) {
	d := unsafe.Slice((*byte)(dst), n)
	s := unsafe.Slice((*byte)(src), n)
	copy(d, s)
}
