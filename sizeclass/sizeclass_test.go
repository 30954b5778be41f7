package sizeclass

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScheduleShape(t *testing.T) {
	assert.Equal(t, 256, Default.NumClasses())
	assert.Equal(t, 16, Default.MinSize())
	assert.Equal(t, 1<<21, Default.MaxSize())
}

func TestCompactScheduleShape(t *testing.T) {
	assert.Equal(t, 32, Compact.NumClasses())
	assert.Equal(t, 8, Compact.MinSize())
	assert.Equal(t, 1<<15, Compact.MaxSize())
}

// S1 from spec.md §8.
func TestS1EndToEndScenario(t *testing.T) {
	c, ok := Default.ClassOf(1)
	require.True(t, ok)
	assert.Equal(t, 0, c)
	assert.Equal(t, 16, Default.SizeOf(0))

	c, ok = Default.ClassOf(16)
	require.True(t, ok)
	assert.Equal(t, 0, c)

	c, ok = Default.ClassOf(17)
	require.True(t, ok)
	assert.Equal(t, 1, c)
	assert.Equal(t, 32, Default.SizeOf(1))

	c, ok = Default.ClassOf(1 << 21)
	require.True(t, ok)
	assert.Equal(t, 255, c)
	assert.Equal(t, 1<<21, Default.SizeOf(255))
}

func TestClassOfRejectsOversize(t *testing.T) {
	_, ok := Default.ClassOf(1<<21 + 1)
	assert.False(t, ok)
	_, ok = Compact.ClassOf(1<<15 + 1)
	assert.False(t, ok)
}

// Invariant 1: size round-trip. For all s in [minSize, maxSize],
// size_of(class_of(s)) >= s and the overshoot is less than the schedule's
// largest step.
func TestSizeRoundTripInvariant(t *testing.T) {
	for _, sched := range []*Schedule{Default, Compact} {
		maxStep := 0
		for i := 0; i < numBrackets; i++ {
			if sched.params.Steps[i] > maxStep {
				maxStep = sched.params.Steps[i]
			}
		}
		step := 37 // prime stride to sample without scanning every byte
		for s := sched.MinSize(); s <= sched.MaxSize(); s += step {
			class, ok := sched.ClassOf(s)
			require.True(t, ok)
			got := sched.SizeOf(class)
			assert.GreaterOrEqual(t, got, s)
			assert.Less(t, got-s, maxStep)
		}
	}
}

// Invariant 2: class monotonicity and strictly increasing size_of.
func TestMonotonicityInvariant(t *testing.T) {
	for _, sched := range []*Schedule{Default, Compact} {
		prevSize := -1
		for k := 0; k < sched.NumClasses(); k++ {
			sz := sched.SizeOf(k)
			assert.Greater(t, sz, prevSize)
			prevSize = sz
		}

		c1, _ := sched.ClassOf(10)
		c2, _ := sched.ClassOf(sched.MaxSize())
		assert.LessOrEqual(t, c1, c2)
	}
}

func TestMaxCachedBounds(t *testing.T) {
	assert.Equal(t, 256, Default.MaxCached(0))
	assert.Equal(t, 1, Default.MaxCached(255))
}

func TestNewRejectsBadParams(t *testing.T) {
	bad := Default.params
	bad.Steps[0] = 3 // not a power of two
	_, err := New(bad)
	assert.Error(t, err)

	bad = Default.params
	bad.Breakpoints[1] = bad.Breakpoints[0] // not strictly increasing
	_, err = New(bad)
	assert.Error(t, err)

	bad = Default.params
	bad.CacheBudget[0] = 0
	_, err = New(bad)
	assert.Error(t, err)
}
