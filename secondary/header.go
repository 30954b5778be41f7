package secondary

import "unsafe"

// header sits at the start of the page immediately before a large object's
// user base. It is the only part of the mapping the allocator itself reads
// or writes; everything after it in the header page is the client's
// metadata region.
type header struct {
	mapBeg   unsafe.Pointer
	mapSize  int
	userSize int
	next     *header
	prev     *header
}

func headerAt(p unsafe.Pointer) *header {
	return (*header)(p)
}

// headerOf derives a block's header address from its user base: the
// page-aligned address one page below it. The user base sits somewhere in
// [mapBeg+pageSize, mapBeg+pageSize+alignment), so the header is the
// mapping's first page when no alignment slack was applied, and a later
// page inside the same mapping when it was.
func headerOf(userBase unsafe.Pointer, pageSize int) *header {
	return headerAt(unsafe.Add(userBase, -pageSize))
}
