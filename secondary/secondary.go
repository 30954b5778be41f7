// Package secondary implements the page-granular large-object allocator
// (spec.md §4.4): every allocation is its own mmap, fronted by a header page
// and threaded into one process-wide doubly-linked registry guarded by a
// spin mutex.
package secondary

import (
	"fmt"
	"unsafe"

	"github.com/blockalloc/blockalloc/internal/spinlock"
	"github.com/blockalloc/blockalloc/internal/sysmem"
)

var headerSize = int(unsafe.Sizeof(header{}))

// Allocator is the secondary large-object allocator. The zero value is an
// empty, usable allocator; New returns one.
type Allocator struct {
	mu   spinlock.Mutex
	head *header
}

// New returns an empty secondary allocator.
func New() *Allocator {
	return &Allocator{}
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

func roundUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}

// Allocate serves size bytes aligned to alignment via a fresh, dedicated
// mapping. It returns (nil, false) only on the one recoverable condition
// spec.md §7 lists for this path: the requested size overflows map_size
// arithmetic. Any other failure (a bad alignment, a failing mmap) panics —
// those are programming errors or unrecoverable OS conditions, not data the
// caller can act on.
func (a *Allocator) Allocate(size, alignment int) (unsafe.Pointer, bool) {
	if !isPowerOfTwo(alignment) {
		panic(fmt.Sprintf("secondary: Allocate: alignment %d is not a power of two", alignment))
	}
	pageSize := sysmem.PageSize()

	mapSize := roundUp(size, pageSize) + pageSize
	if alignment > pageSize {
		mapSize += alignment
	}
	if mapSize < size {
		return nil, false
	}

	mapBeg := sysmem.MapPages(mapSize, "secondary-block")

	res := unsafe.Add(mapBeg, pageSize)
	if rem := uintptr(res) % uintptr(alignment); rem != 0 {
		res = unsafe.Add(res, alignment-int(rem))
	}
	if uintptr(res)+uintptr(size) > uintptr(mapBeg)+uintptr(mapSize) {
		panic("secondary: Allocate: alignment slack arithmetic did not leave room for the request")
	}

	h := headerOf(res, pageSize)
	*h = header{mapBeg: mapBeg, mapSize: mapSize, userSize: size}

	a.mu.Lock()
	h.next = a.head
	if a.head != nil {
		a.head.prev = h
	}
	a.head = h
	a.mu.Unlock()

	return res, true
}

// Deallocate unlinks p's header from the registry and unmaps its backing
// pages. The unmap happens after the critical section so the mutex is never
// held across a syscall.
func (a *Allocator) Deallocate(p unsafe.Pointer) {
	pageSize := sysmem.PageSize()
	h := headerOf(p, pageSize)

	a.mu.Lock()
	if h.prev != nil {
		h.prev.next = h.next
	} else {
		a.head = h.next
	}
	if h.next != nil {
		h.next.prev = h.prev
	}
	a.mu.Unlock()

	sysmem.UnmapPages(h.mapBeg, h.mapSize)
}

// PointerIsMine reports whether p is exactly the user base of a live
// secondary block. It fast-rejects any pointer that isn't page-size
// aligned — every user base this allocator hands out is, since map_beg is
// itself page-aligned and alignment slack always preserves that — before
// falling back to an O(n) scan of the registry.
func (a *Allocator) PointerIsMine(p unsafe.Pointer) bool {
	pageSize := sysmem.PageSize()
	if uintptr(p)%uintptr(pageSize) != 0 {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for h := a.head; h != nil; h = h.next {
		if unsafe.Add(unsafe.Pointer(h), pageSize) == p {
			return true
		}
	}
	return false
}

// GetBlockBegin scans the registry for a header whose user range contains
// p, returning its base or nil. Unlike PointerIsMine, p may be interior to
// the block.
func (a *Allocator) GetBlockBegin(p unsafe.Pointer) unsafe.Pointer {
	pageSize := sysmem.PageSize()
	target := uintptr(p)

	a.mu.Lock()
	defer a.mu.Unlock()
	for h := a.head; h != nil; h = h.next {
		base := uintptr(unsafe.Pointer(h)) + uintptr(pageSize)
		if target >= base && target < base+uintptr(h.userSize) {
			return unsafe.Pointer(base)
		}
	}
	return nil
}

// GetMetadata returns the address of p's metadata region: the bytes
// immediately past the header within the header page, at least
// page_size/2 bytes. p must be exactly a block's user base.
func (a *Allocator) GetMetadata(p unsafe.Pointer) unsafe.Pointer {
	h := headerOf(p, sysmem.PageSize())
	return unsafe.Add(unsafe.Pointer(h), headerSize)
}

// GetActuallyAllocatedSize returns the page-rounded capacity backing p.
func (a *Allocator) GetActuallyAllocatedSize(p unsafe.Pointer) int {
	pageSize := sysmem.PageSize()
	h := headerOf(p, pageSize)
	return roundUp(h.userSize, pageSize)
}

// TotalMemoryUsed sums, for every outstanding block, its page-rounded user
// size plus its header page. Alignment slack added to a mapping is not
// counted; Stats().TotalMappedBytes includes it.
func (a *Allocator) TotalMemoryUsed() int64 {
	pageSize := sysmem.PageSize()
	var total int64
	a.mu.Lock()
	defer a.mu.Unlock()
	for h := a.head; h != nil; h = h.next {
		total += int64(roundUp(h.userSize, pageSize) + pageSize)
	}
	return total
}

// Stats summarizes the registry for diagnostics beyond a single byte count.
type Stats struct {
	NumAllocations   int
	TotalUserBytes   int64
	TotalMappedBytes int64
}

// Stats reports the registry's current occupancy. It walks the same list
// under the same mutex as TotalMemoryUsed, restoring the richer snapshot
// the original large-object allocator exposed.
func (a *Allocator) Stats() Stats {
	var s Stats
	a.mu.Lock()
	defer a.mu.Unlock()
	for h := a.head; h != nil; h = h.next {
		s.NumAllocations++
		s.TotalUserBytes += int64(h.userSize)
		s.TotalMappedBytes += int64(h.mapSize)
	}
	return s
}
