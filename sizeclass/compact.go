package sizeclass

// Compact is the schedule used for memory-constrained shadowing: at most 32
// classes, granularity from 8 bytes up to 4 KiB, max size 32 KiB.
var Compact = must(New(Params{
	Breakpoints: [numBreakpoints]int{1 << 3, 1 << 4, 1 << 7, 1 << 8, 1 << 12, 1 << 15},
	Steps:       [numBrackets]int{1 << 3, 1 << 4, 1 << 7, 1 << 8, 1 << 12},
	CacheBudget: [numBrackets]int{256, 64, 16, 4, 1},
}))
