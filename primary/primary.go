// Package primary implements the size-classed allocator (spec.md §4.3): a
// fixed-partition 64-bit arena carved into one fixed-size region per class,
// with a per-class free list and bump pointer serving bulk transfers to and
// from per-thread caches.
package primary

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/blockalloc/blockalloc/freelist"
	"github.com/blockalloc/blockalloc/internal/spinlock"
	"github.com/blockalloc/blockalloc/internal/sysmem"
	"github.com/blockalloc/blockalloc/sizeclass"
)

// classState is the back end for one size class: a spin-lock-guarded free
// list of already-returned blocks, plus a monotonic bump index for slots
// never yet handed out. Both bulk_allocate and bulk_deallocate hold only
// this class's mutex, giving every class independent concurrency.
type classState struct {
	mu       spinlock.Mutex
	free     freelist.List
	layout   classLayout
	bumpNext int
	handedOut int64 // atomic; for TotalMemoryUsed, read outside the lock
}

// Allocator is the primary size-classed allocator.
type Allocator struct {
	schedule *sizeclass.Schedule
	raw      unsafe.Pointer // the unaligned mapping returned by sysmem.MapPages
	rawSize  int
	base     unsafe.Pointer // raw, trimmed up to a MaxSize()-aligned address
	classes  []classState
}

// New reserves schedule.NumClasses()*regionStride bytes of address space,
// aligned to schedule.MaxSize(), and carves it into one fixed region per
// class. The reservation is virtual only; pages are demand-paged as classes
// actually bump-allocate into them.
func New(schedule *sizeclass.Schedule) *Allocator {
	n := schedule.NumClasses()
	maxSize := schedule.MaxSize()
	total := n * regionStride

	// Over-allocate by maxSize and trim so the usable region starts at a
	// maxSize-aligned address — the same trick spec.md §4.4 specifies for
	// the secondary's per-call mapping, applied once here to the whole
	// arena so every class's block area (see region.go) inherits the
	// alignment for free.
	raw := sysmem.MapPages(total+maxSize, "primary-arena")
	rawAddr := uintptr(raw)
	alignedAddr := (rawAddr + uintptr(maxSize) - 1) &^ (uintptr(maxSize) - 1)
	base := unsafe.Pointer(alignedAddr)

	a := &Allocator{
		schedule: schedule,
		raw:      raw,
		rawSize:  total + maxSize,
		base:     base,
		classes:  make([]classState, n),
	}
	for k := 0; k < n; k++ {
		classBase := unsafe.Add(base, k*regionStride)
		a.classes[k].layout = buildLayout(schedule, classBase, k)
	}
	return a
}

// Schedule returns the size-class schedule this primary was built with.
func (a *Allocator) Schedule() *sizeclass.Schedule { return a.schedule }

// CanAllocate reports whether this primary can serve a request of size
// bytes with the given alignment: alignment must not exceed the class's
// block size, and size must not exceed the schedule's max size.
func (a *Allocator) CanAllocate(size, alignment int) bool {
	class, ok := a.schedule.ClassOf(size)
	if !ok {
		return false
	}
	return alignment <= a.schedule.SizeOf(class)
}

// BulkAllocate refills outList with blocks of the given class: up to
// MaxCached(class) of them, drawn first from the class's free list and then
// from its bump region. Postcondition: outList is non-empty.
func (a *Allocator) BulkAllocate(class int, outList *freelist.List) {
	cs := &a.classes[class]
	want := a.schedule.MaxCached(class)

	cs.mu.Lock()
	defer cs.mu.Unlock()

	if avail := cs.free.Size(); avail > 0 {
		n := want
		if n > avail {
			n = avail
		}
		outList.SpliceFrontN(&cs.free, n)
		want -= n
	}
	carved := 0
	for want > 0 && cs.bumpNext < cs.layout.blockCount {
		outList.PushFront(cs.layout.blockAt(cs.bumpNext))
		cs.bumpNext++
		want--
		carved++
	}
	if outList.Empty() {
		panic(fmt.Sprintf("primary: class %d exhausted (region budget %d blocks)", class, cs.layout.blockCount))
	}
	if carved > 0 {
		atomic.AddInt64(&cs.handedOut, int64(carved))
	}
}

// BulkDeallocate absorbs every block in inList into class's back-end free
// pool. Postcondition: inList is empty. The blocks become reusable by any
// thread's future BulkAllocate on this class.
func (a *Allocator) BulkDeallocate(class int, inList *freelist.List) {
	cs := &a.classes[class]
	n := inList.Size()
	cs.mu.Lock()
	cs.free.SpliceFrontN(inList, n)
	cs.mu.Unlock()
}

// classAndLayout returns the class index that owns p, or ok=false if p is
// outside this primary's whole reservation.
func (a *Allocator) classAndLayout(p unsafe.Pointer) (int, *classLayout, bool) {
	off := uintptr(p) - uintptr(a.base)
	if uintptr(p) < uintptr(a.base) || off >= uintptr(len(a.classes)*regionStride) {
		return 0, nil, false
	}
	class := int(off) / regionStride
	return class, &a.classes[class].layout, true
}

// PointerIsMine reports whether p is exactly a block base inside one of
// this primary's class block areas. It does not check whether that slot
// has been carved or handed out yet, and interior pointers report false.
// It is O(1) and safe to call on arbitrary pointers, including ones from
// unrelated memory.
func (a *Allocator) PointerIsMine(p unsafe.Pointer) bool {
	_, layout, ok := a.classAndLayout(p)
	if !ok {
		return false
	}
	_, ok = layout.indexOfExact(p)
	return ok
}

// ClassID returns the class of a pointer this primary owns. It panics if p
// is not exactly a block base this primary produced.
func (a *Allocator) ClassID(p unsafe.Pointer) int {
	class, layout, ok := a.classAndLayout(p)
	if !ok {
		panic("primary: ClassID: pointer not owned by this primary")
	}
	if _, ok := layout.indexOfExact(p); !ok {
		panic("primary: ClassID: pointer is not a block base")
	}
	return class
}

// Size returns the user-visible block size backing p.
func (a *Allocator) Size(p unsafe.Pointer) int {
	class := a.ClassID(p)
	return a.schedule.SizeOf(class)
}

// BlockBegin returns the user base of the block containing p — the
// smallest address still inside that block — for any pointer into a live
// or free block this primary owns, including interior pointers.
func (a *Allocator) BlockBegin(p unsafe.Pointer) unsafe.Pointer {
	_, layout, ok := a.classAndLayout(p)
	if !ok {
		panic("primary: BlockBegin: pointer not owned by this primary")
	}
	idx, ok := layout.indexOfFloor(p)
	if !ok {
		panic("primary: BlockBegin: pointer outside the class's block area")
	}
	return layout.blockAt(idx)
}

// Metadata returns the address of p's fixed-size, per-block metadata
// region: one machine word, adjacent to the block array and addressable in
// O(1) from any pointer into the block.
func (a *Allocator) Metadata(p unsafe.Pointer) unsafe.Pointer {
	_, layout, ok := a.classAndLayout(p)
	if !ok {
		panic("primary: Metadata: pointer not owned by this primary")
	}
	idx, ok := layout.indexOfFloor(p)
	if !ok {
		panic("primary: Metadata: pointer outside the class's block area")
	}
	return layout.metadataAt(idx)
}

// TotalMemoryUsed reports the bytes of every block ever carved from the
// classes' bump regions, whether that block is now in use, in a cache or
// back on a free list. It never decreases, and it does not count the
// reserved but uncarved rest of each class region.
func (a *Allocator) TotalMemoryUsed() int64 {
	var total int64
	for k := range a.classes {
		n := atomic.LoadInt64(&a.classes[k].handedOut)
		total += n * int64(a.schedule.SizeOf(k))
	}
	return total
}

// ClassOccupancy reports the number of blocks of class that have ever been
// carved from its bump region, handed out via BulkAllocate. Together with
// SizeOf(class) this is the per-class breakdown TotalMemoryUsed sums.
func (a *Allocator) ClassOccupancy(class int) int64 {
	a.schedule.SizeOf(class) // panics if class is out of range
	return atomic.LoadInt64(&a.classes[class].handedOut)
}

// TestOnlyUnmap tears down the primary's whole address-space reservation.
// It is undefined behavior to call this with any live allocation still
// outstanding; it exists solely so test harnesses can release address
// space between runs.
func (a *Allocator) TestOnlyUnmap() {
	sysmem.UnmapPages(a.raw, a.rawSize)
}
