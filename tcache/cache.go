// Package tcache implements the per-thread (per-goroutine) front-end cache
// (spec.md §4.5): bounded LIFO runs of free blocks per class, exchanged
// with the primary allocator's back end in bulk to amortize its per-class
// lock.
package tcache

import (
	"fmt"
	"unsafe"

	"github.com/blockalloc/blockalloc/freelist"
	"github.com/blockalloc/blockalloc/sizeclass"
)

// BackEnd is the subset of the primary allocator a Cache needs. It is an
// interface, not a concrete *primary.Allocator, so a Cache can be driven
// against a fake in tests without pulling in primary's mmap-backed arena.
type BackEnd interface {
	BulkAllocate(class int, outList *freelist.List)
	BulkDeallocate(class int, inList *freelist.List)
	Schedule() *sizeclass.Schedule
}

// Cache is a per-thread front end: a fixed array of free lists, one per
// possible class. The zero value is valid and empty — this is what makes a
// Cache safe to embed in a goroutine-local value with no constructor call,
// matching spec.md §3's "POD" requirement for what would be thread-local
// storage in a non-Go implementation.
//
// A Cache must never be shared across goroutines; the owning goroutine is
// solely responsible for calling Drain before it exits.
type Cache struct {
	lists [sizeclass.MaxClasses]freelist.List
}

// Allocate returns one block of class, refilling from primary via
// BulkAllocate if the class's list is currently empty.
func (c *Cache) Allocate(primary BackEnd, class int) unsafe.Pointer {
	list := &c.lists[class]
	if list.Empty() {
		primary.BulkAllocate(class, list)
		if list.Empty() {
			panic(fmt.Sprintf("tcache: Allocate: primary refilled class %d but left the list empty", class))
		}
	}
	return list.PopFront()
}

// Deallocate pushes p onto class's list. If the list's length reaches
// 2*MaxCached(class), half of it (the front — hottest — half) is drained
// into the primary via BulkDeallocate.
func (c *Cache) Deallocate(primary BackEnd, class int, p unsafe.Pointer) {
	list := &c.lists[class]
	list.PushFront(p)

	limit := 2 * primary.Schedule().MaxCached(class)
	if list.Size() < limit {
		return
	}
	var drained freelist.List
	drained.SpliceFrontN(list, list.Size()/2)
	primary.BulkDeallocate(class, &drained)
}

// Drain empties every class's list back into the primary. All lists are
// empty afterward; call this on thread/goroutine detach.
func (c *Cache) Drain(primary BackEnd) {
	for class := range c.lists {
		list := &c.lists[class]
		if list.Empty() {
			continue
		}
		primary.BulkDeallocate(class, list)
	}
}

// Len reports the current length of class's list, for tests and diagnostics.
func (c *Cache) Len(class int) int {
	return c.lists[class].Size()
}
