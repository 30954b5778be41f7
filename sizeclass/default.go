package sizeclass

// Default is the schedule used when shadowing typical heap traffic: 256
// classes, granularity ranging from 16 bytes up to 32 KiB, max size 2 MiB.
var Default = must(New(Params{
	Breakpoints: [numBreakpoints]int{1 << 4, 1 << 9, 1 << 12, 1 << 15, 1 << 18, 1 << 21},
	Steps:       [numBrackets]int{1 << 4, 1 << 6, 1 << 9, 1 << 12, 1 << 15},
	CacheBudget: [numBrackets]int{256, 64, 16, 4, 1},
}))
