package primary

import (
	"unsafe"

	"github.com/blockalloc/blockalloc/sizeclass"
)

// regionStride is the address-space budget reserved for each size class.
// It is a reservation, not a commitment: anonymous mmap pages are
// demand-paged on Linux, so this costs no physical memory until a class
// actually carves blocks out of it. It must be a multiple of every
// schedule's MaxSize() so that every class region — and the block area at
// its head — stays aligned to MaxSize(). 64 MiB divides evenly into both
// published schedules' MaxSize (2 MiB and 32 KiB).
const regionStride = 64 << 20

// metadataWordSize is the size, in bytes, of the fixed per-block metadata
// slot. spec.md requires only "at least one machine word"; one word keeps
// the metadata area small relative to the block area for every class.
const metadataWordSize = 8

// classLayout is the closed-form geometry of one class's region: a block
// area of blockCount tightly-packed, block-size-aligned slots, immediately
// followed by a metadata area of blockCount metadataWordSize slots.
type classLayout struct {
	blockSize    int
	blockCount   int
	blockBase    unsafe.Pointer
	metadataBase unsafe.Pointer
}

func buildLayout(schedule *sizeclass.Schedule, classRegionBase unsafe.Pointer, class int) classLayout {
	blockSize := schedule.SizeOf(class)
	blockCount := regionStride / (blockSize + metadataWordSize)
	if blockCount < 1 {
		blockCount = 1
	}
	return classLayout{
		blockSize:    blockSize,
		blockCount:   blockCount,
		blockBase:    classRegionBase,
		metadataBase: unsafe.Add(classRegionBase, blockCount*blockSize),
	}
}

func (l classLayout) blockAt(idx int) unsafe.Pointer {
	return unsafe.Add(l.blockBase, idx*l.blockSize)
}

func (l classLayout) metadataAt(idx int) unsafe.Pointer {
	return unsafe.Add(l.metadataBase, idx*metadataWordSize)
}

// indexOfExact returns the block index of p within this class's block
// area, and whether p is exactly a block base — used by pointer_is_mine and
// class_id, which accept only block bases.
func (l classLayout) indexOfExact(p unsafe.Pointer) (int, bool) {
	idx, ok := l.indexOfFloor(p)
	if !ok {
		return 0, false
	}
	if l.blockAt(idx) != p {
		return 0, false
	}
	return idx, true
}

// indexOfFloor returns the index of the block that contains p, flooring an
// interior pointer down to its block's start — used by block_begin and
// metadata, which spec.md requires to accept any pointer into the block.
func (l classLayout) indexOfFloor(p unsafe.Pointer) (int, bool) {
	off := uintptr(p) - uintptr(l.blockBase)
	if off >= uintptr(l.blockCount*l.blockSize) {
		return 0, false
	}
	return int(off) / l.blockSize, true
}
