package sysmem

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageSizeIsPowerOfTwoAndAtLeast4KiB(t *testing.T) {
	ps := PageSize()
	require.GreaterOrEqual(t, ps, 4096)
	assert.Equal(t, 0, ps&(ps-1))
}

func TestRoundUpToPage(t *testing.T) {
	ps := PageSize()
	assert.Equal(t, ps, RoundUpToPage(1))
	assert.Equal(t, ps, RoundUpToPage(ps))
	assert.Equal(t, 2*ps, RoundUpToPage(ps+1))
}

func TestMapPagesIsZeroFilledAndWritable(t *testing.T) {
	ps := PageSize()
	addr := MapPages(ps, "test")
	defer UnmapPages(addr, ps)

	b := unsafe.Slice((*byte)(addr), ps)
	for i, v := range b {
		require.Equal(t, byte(0), v, "byte %d not zero", i)
	}
	b[0] = 0xFF
	assert.Equal(t, byte(0xFF), b[0])
}

func TestMapPagesRejectsNonPositiveSize(t *testing.T) {
	assert.Panics(t, func() { MapPages(0, "bad") })
	assert.Panics(t, func() { MapPages(-1, "bad") })
}
