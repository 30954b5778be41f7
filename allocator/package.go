package allocator

import (
	"unsafe"

	"github.com/blockalloc/blockalloc/sizeclass"
	"github.com/blockalloc/blockalloc/tcache"
)

var defaultHeap *Heap

// Init builds the package-level default Heap against schedule. Call it
// once before any of the package-level functions below — spec.md §6's
// init(), "call once before first use".
func Init(schedule *sizeclass.Schedule) {
	defaultHeap = New(schedule)
}

func checkInit() *Heap {
	if defaultHeap == nil {
		panic("allocator: Init has not been called")
	}
	return defaultHeap
}

// Allocate calls Heap.Allocate on the default Heap.
func Allocate(cache *tcache.Cache, size, alignment int, cleared bool) unsafe.Pointer {
	return checkInit().Allocate(cache, size, alignment, cleared)
}

// Deallocate calls Heap.Deallocate on the default Heap.
func Deallocate(cache *tcache.Cache, p unsafe.Pointer) {
	checkInit().Deallocate(cache, p)
}

// Reallocate calls Heap.Reallocate on the default Heap.
func Reallocate(cache *tcache.Cache, p unsafe.Pointer, newSize, alignment int) unsafe.Pointer {
	return checkInit().Reallocate(cache, p, newSize, alignment)
}

// PointerIsMine calls Heap.PointerIsMine on the default Heap.
func PointerIsMine(p unsafe.Pointer) bool {
	return checkInit().PointerIsMine(p)
}

// TotalMemoryUsed calls Heap.TotalMemoryUsed on the default Heap.
func TotalMemoryUsed() int64 {
	return checkInit().TotalMemoryUsed()
}

// SwallowCache calls Heap.SwallowCache on the default Heap.
func SwallowCache(cache *tcache.Cache) {
	checkInit().SwallowCache(cache)
}

// TestOnlyUnmap calls Heap.TestOnlyUnmap on the default Heap, spec.md §6's
// test_only_unmap().
func TestOnlyUnmap() {
	checkInit().TestOnlyUnmap()
}
