package allocator

import (
	"encoding/binary"

	"github.com/bytedance/gopkg/lang/dirtmake"

	"github.com/blockalloc/blockalloc/secondary"
)

// Stats aggregates occupancy across both of a Heap's back ends. It
// restores the richer diagnostic surface original_source's combined
// allocator exposed (beyond the single total_memory_used spec.md keeps),
// trimmed to the read-only half that has a Go analogue.
type Stats struct {
	PrimaryBytesUsed int64
	Secondary        secondary.Stats
}

// Stats snapshots both back ends' occupancy.
func (h *Heap) Stats() Stats {
	return Stats{
		PrimaryBytesUsed: h.primary.TotalMemoryUsed(),
		Secondary:        h.secondary.Stats(),
	}
}

// OccupancySnapshot packs every primary class's handed-out count into a
// flat buffer, 8 bytes per class in little-endian, class 0 first. The
// buffer is allocated with dirtmake since every byte is overwritten by this
// function before any caller reads it back — there is nothing for a
// zeroing make to protect here.
func (h *Heap) OccupancySnapshot() []byte {
	n := h.schedule.NumClasses()
	buf := dirtmake.Bytes(n*8, n*8)
	for class := 0; class < n; class++ {
		binary.LittleEndian.PutUint64(buf[class*8:], uint64(h.primary.ClassOccupancy(class)))
	}
	return buf
}
