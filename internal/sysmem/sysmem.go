// Package sysmem implements the platform collaborators spec.md §6 assumes
// are provided externally: page_size, map_pages, and unmap_pages. They are
// the only places in this module that touch the OS; every other package
// reaches raw memory exclusively through them.
package sysmem

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

var (
	pageSizeOnce sync.Once
	pageSize     int
)

// PageSize returns the platform's page size in bytes. It is constant for
// the process lifetime and is always a power of two >= 4096.
func PageSize() int {
	pageSizeOnce.Do(func() {
		pageSize = unix.Getpagesize()
	})
	return pageSize
}

// RoundUpToPage rounds n up to the nearest multiple of PageSize().
func RoundUpToPage(n int) int {
	ps := PageSize()
	return (n + ps - 1) &^ (ps - 1)
}

// MapPages returns a fresh, zero-filled, page-aligned anonymous mapping of
// nBytes. It aborts the process on failure — there is no recoverable error
// for an out-of-address-space or out-of-memory condition at this layer,
// matching spec.md §7's "Mapping syscall failure → Abort" row. tag is a
// diagnostic label; it appears in the failure message, and the mapping
// itself is not named with it.
func MapPages(nBytes int, tag string) unsafe.Pointer {
	if nBytes <= 0 {
		panic("sysmem: MapPages: nBytes must be positive")
	}
	b, err := unix.Mmap(-1, 0, nBytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		panic(fmt.Errorf("sysmem: map_pages(%d, %q) failed: %w", nBytes, tag, err))
	}
	tagMapping(b, tag)
	return unsafe.Pointer(&b[0])
}

// UnmapPages releases a mapping previously returned by MapPages. It aborts
// the process on failure.
func UnmapPages(addr unsafe.Pointer, nBytes int) {
	b := unsafe.Slice((*byte)(addr), nBytes)
	if err := unix.Munmap(b); err != nil {
		panic(fmt.Errorf("sysmem: unmap_pages(%p, %d) failed: %w", addr, nBytes, err))
	}
}
