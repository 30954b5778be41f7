package allocator

import (
	"sync/atomic"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockalloc/blockalloc/internal/workerpool"
	"github.com/blockalloc/blockalloc/sizeclass"
	"github.com/blockalloc/blockalloc/tcache"
)

func newTestHeap(t *testing.T) *Heap {
	h := New(sizeclass.Compact)
	t.Cleanup(h.TestOnlyUnmap)
	return h
}

// S5 from spec.md §8.
func TestS5Scenario(t *testing.T) {
	h := newTestHeap(t)
	var cache tcache.Cache

	p := h.Allocate(&cache, 0, 8, false)
	require.NotNil(t, p)
	assert.GreaterOrEqual(t, h.GetActuallyAllocatedSize(p), 1)
}

// S6 from spec.md §8.
func TestS6Scenario(t *testing.T) {
	h := newTestHeap(t)
	var cache tcache.Cache

	p := h.Reallocate(&cache, nil, 100, 8)
	require.NotNil(t, p)

	b := unsafe.Slice((*byte)(p), 100)
	for i := range b {
		b[i] = byte(i)
	}

	q := h.Reallocate(&cache, p, 0, 8)
	assert.Nil(t, q)

	p = h.Allocate(&cache, 100, 8, false)
	require.NotNil(t, p)
	b = unsafe.Slice((*byte)(p), 100)
	for i := range b {
		b[i] = byte(i)
	}

	r := h.Reallocate(&cache, p, 200, 8)
	require.NotNil(t, r)
	assert.GreaterOrEqual(t, h.GetActuallyAllocatedSize(r), 200)

	got := unsafe.Slice((*byte)(r), 100)
	for i, v := range got {
		assert.Equal(t, byte(i), v)
	}
}

// Invariant 4: ownership partition.
func TestOwnershipPartition(t *testing.T) {
	h := newTestHeap(t)
	var cache tcache.Cache

	sizes := []int{8, 100, 4096, 1 << 16}
	for _, sz := range sizes {
		p := h.Allocate(&cache, sz, 8, false)
		require.NotNil(t, p)
		assert.True(t, h.PointerIsMine(p))
		assert.NotEqual(t, h.primary.PointerIsMine(p), h.secondary.PointerIsMine(p))
		defer h.Deallocate(&cache, p)
	}
}

// Invariant 6: metadata exclusivity, across both back ends.
func TestMetadataExclusivityAcrossBackEnds(t *testing.T) {
	h := newTestHeap(t)
	var cache tcache.Cache

	for _, sz := range []int{16, 1 << 16} {
		p := h.Allocate(&cache, sz, 8, false)
		require.NotNil(t, p)

		begin := uintptr(h.GetBlockBegin(p))
		size := uintptr(h.GetActuallyAllocatedSize(p))
		meta := uintptr(h.GetMetadata(p))
		assert.False(t, meta >= begin && meta < begin+size)

		h.Deallocate(&cache, p)
	}
}

func TestAllocateClearedZeroesBlock(t *testing.T) {
	h := newTestHeap(t)
	var cache tcache.Cache

	p := h.Allocate(&cache, 200, 8, false)
	require.NotNil(t, p)
	b := unsafe.Slice((*byte)(p), 200)
	for i := range b {
		b[i] = 0xFF
	}
	h.Deallocate(&cache, p)

	q := h.Allocate(&cache, 200, 8, true)
	require.NotNil(t, q)
	bq := unsafe.Slice((*byte)(q), 200)
	for i, v := range bq {
		require.Equal(t, byte(0), v, "byte %d not cleared", i)
	}
}

// Stress, spec.md §8: T goroutines mixing alloc/dealloc across both back
// ends; bytes outstanding, tracked by matching alloc/dealloc events rather
// than by total_memory_used (which only ever grows for the primary), must
// return to zero once every cache is swallowed.
func TestStressNoLeaks(t *testing.T) {
	h := newTestHeap(t)
	const workers = 8
	const opsPerWorker = 2000

	var outstanding int64
	workerpool.Run(workers, nil, func(workerID int) {
		var cache tcache.Cache
		var live []unsafe.Pointer

		sizes := []int{8, 64, 500, 5000, 1 << 16, 3 << 20}
		for i := 0; i < opsPerWorker; i++ {
			sz := sizes[(workerID+i)%len(sizes)]
			p := h.Allocate(&cache, sz, 8, false)
			if p == nil {
				continue
			}
			atomic.AddInt64(&outstanding, int64(h.GetActuallyAllocatedSize(p)))
			live = append(live, p)
			if len(live) > 32 {
				freeHead(h, &cache, &live, &outstanding)
			}
		}
		for len(live) > 0 {
			freeHead(h, &cache, &live, &outstanding)
		}
		h.SwallowCache(&cache)
	})

	assert.Equal(t, int64(0), outstanding)
	assert.Equal(t, int64(0), h.secondary.TotalMemoryUsed())
}

func freeHead(h *Heap, cache *tcache.Cache, live *[]unsafe.Pointer, outstanding *int64) {
	p := (*live)[0]
	atomic.AddInt64(outstanding, -int64(h.GetActuallyAllocatedSize(p)))
	h.Deallocate(cache, p)
	*live = (*live)[1:]
}
