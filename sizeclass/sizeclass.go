// Package sizeclass implements the size-class schedule that the primary
// allocator discretizes requested sizes into. It is pure and stateless: a
// Schedule is a small table of breakpoints computed once at construction,
// and every lookup afterwards is closed-form arithmetic.
package sizeclass

import "fmt"

// MaxClasses is the hard ceiling on the number of classes a Schedule may
// define. The per-thread cache sizes its class array to this constant so it
// stays independent of which Schedule is in use.
const MaxClasses = 256

// numBreakpoints is the number of size breakpoints l0..l5. There are one
// fewer brackets (step sizes s0..s4, cache budgets c0..c4) than breakpoints.
const numBreakpoints = 6
const numBrackets = numBreakpoints - 1

// Params is the raw configuration of a size-class schedule: six breakpoints,
// five step sizes, and five per-class cache budgets.
type Params struct {
	Breakpoints [numBreakpoints]int
	Steps       [numBrackets]int
	CacheBudget [numBrackets]int
}

// Schedule is a validated, immutable size-class map.
//
//	size(k) = l0 + s0*k                   for k <= u0
//	        = li + si*(k - u(i-1))        for u(i-1) < k <= ui,  i = 1..4
type Schedule struct {
	params     Params
	thresholds [numBrackets]int // u0..u4: cumulative class count up to each breakpoint
	numClasses int
	minSize    int
	maxSize    int
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// New validates params against the invariants in spec.md §3 and builds a
// Schedule. A bad Params is a programming error in configuration, not a
// runtime condition, hence the error return rather than a panic — callers
// constructing a Schedule from a literal (as Default and Compact do) panic
// at package init via must().
func New(p Params) (*Schedule, error) {
	for i, s := range p.Steps {
		if !isPowerOfTwo(s) {
			return nil, fmt.Errorf("sizeclass: step s%d=%d is not a power of two", i, s)
		}
	}
	if !isPowerOfTwo(p.Breakpoints[numBreakpoints-1]) {
		return nil, fmt.Errorf("sizeclass: l%d=%d is not a power of two", numBreakpoints-1, p.Breakpoints[numBreakpoints-1])
	}
	for i := 0; i < numBreakpoints-1; i++ {
		if p.Breakpoints[i] >= p.Breakpoints[i+1] {
			return nil, fmt.Errorf("sizeclass: breakpoints must be strictly increasing, l%d=%d >= l%d=%d",
				i, p.Breakpoints[i], i+1, p.Breakpoints[i+1])
		}
	}
	for i := 0; i < numBrackets; i++ {
		span := p.Breakpoints[i+1] - p.Breakpoints[i]
		if span%p.Steps[i] != 0 {
			return nil, fmt.Errorf("sizeclass: span l%d-l%d=%d is not a multiple of s%d=%d",
				i+1, i, span, i, p.Steps[i])
		}
		if p.CacheBudget[i] <= 0 {
			return nil, fmt.Errorf("sizeclass: cache budget c%d=%d must be positive", i, p.CacheBudget[i])
		}
	}

	s := &Schedule{params: p}
	classCount := 1 // class 0 sits at l0 before any bracket is walked
	for i := 0; i < numBrackets; i++ {
		span := p.Breakpoints[i+1] - p.Breakpoints[i]
		classCount += span / p.Steps[i]
		s.thresholds[i] = classCount - 1
	}
	if !isPowerOfTwo(classCount) {
		return nil, fmt.Errorf("sizeclass: resulting class count %d is not a power of two", classCount)
	}
	if classCount > MaxClasses {
		return nil, fmt.Errorf("sizeclass: resulting class count %d exceeds MaxClasses=%d", classCount, MaxClasses)
	}
	s.numClasses = classCount
	s.minSize = p.Breakpoints[0]
	s.maxSize = p.Breakpoints[numBreakpoints-1]
	return s, nil
}

func must(s *Schedule, err error) *Schedule {
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schedule) checkClass(class int) {
	if class < 0 || class >= s.numClasses {
		panic(fmt.Sprintf("sizeclass: class %d out of range [0,%d)", class, s.numClasses))
	}
}

// SizeOf returns the block size, in bytes, of the given class id.
// It panics if class is outside [0, NumClasses()).
func (s *Schedule) SizeOf(class int) int {
	s.checkClass(class)
	p := &s.params
	if class <= s.thresholds[0] {
		return p.Breakpoints[0] + p.Steps[0]*class
	}
	for i := 1; i < numBrackets; i++ {
		if class <= s.thresholds[i] {
			return p.Breakpoints[i] + p.Steps[i]*(class-s.thresholds[i-1])
		}
	}
	panic("sizeclass: unreachable")
}

// ClassOf returns the smallest class id whose size is >= size, rounding up.
// The second return is false if size exceeds MaxSize() — the caller is not
// primary-eligible for that size and should route to the secondary
// allocator instead.
func (s *Schedule) ClassOf(size int) (int, bool) {
	if size <= 0 {
		size = 1
	}
	if size > s.maxSize {
		return 0, false
	}
	p := &s.params
	if size <= p.Breakpoints[0] {
		return 0, true
	}
	for i := 0; i < numBrackets; i++ {
		if size <= p.Breakpoints[i+1] {
			steps := (size - p.Breakpoints[i] + p.Steps[i] - 1) / p.Steps[i]
			if i == 0 {
				return steps, true
			}
			return s.thresholds[i-1] + steps, true
		}
	}
	return s.numClasses - 1, true
}

// MaxCached returns the per-class run budget used by the per-thread cache's
// overflow/drain bound (2*MaxCached(class)) and by BulkAllocate's refill
// target.
func (s *Schedule) MaxCached(class int) int {
	s.checkClass(class)
	for i := 0; i < numBrackets; i++ {
		if class <= s.thresholds[i] {
			return s.params.CacheBudget[i]
		}
	}
	return s.params.CacheBudget[numBrackets-1]
}

// NumClasses returns the total number of classes in this schedule.
func (s *Schedule) NumClasses() int { return s.numClasses }

// MinSize returns the smallest size served by this schedule (class 0's size).
func (s *Schedule) MinSize() int { return s.minSize }

// MaxSize returns the largest size served by this schedule; sizes beyond
// this are not primary-eligible.
func (s *Schedule) MaxSize() int { return s.maxSize }
