// Package freelist implements an intrusive, singly-linked LIFO list of free
// blocks. The link lives in the first machine word of the block's own
// storage, so pushing a block costs one store and no allocation. None of
// List's methods take a lock: callers (tcache for single-thread access,
// primary for access already serialized by a per-class mutex) supply all
// required discipline.
package freelist

import "unsafe"

// List is a LIFO singly-linked list of free blocks. The zero value is a
// valid, empty list.
type List struct {
	head unsafe.Pointer
	len  int
}

func next(p unsafe.Pointer) unsafe.Pointer {
	return *(*unsafe.Pointer)(p)
}

func setNext(p, n unsafe.Pointer) {
	*(*unsafe.Pointer)(p) = n
}

// Empty reports whether the list has no blocks.
func (l *List) Empty() bool { return l.head == nil }

// Size returns the number of blocks currently in the list.
func (l *List) Size() int { return l.len }

// Front returns the block at the head of the list without removing it, or
// nil if the list is empty.
func (l *List) Front() unsafe.Pointer { return l.head }

// PushFront links p onto the front of the list. p must point to a block at
// least one machine word in size and must not already be linked elsewhere.
func (l *List) PushFront(p unsafe.Pointer) {
	setNext(p, l.head)
	l.head = p
	l.len++
}

// PopFront unlinks and returns the block at the front of the list, or nil
// if the list is empty.
func (l *List) PopFront() unsafe.Pointer {
	if l.head == nil {
		return nil
	}
	p := l.head
	l.head = next(p)
	l.len--
	return p
}

// Clear empties the list in O(1); it does not touch the unlinked blocks.
func (l *List) Clear() {
	l.head = nil
	l.len = 0
}

// SpliceFrontN moves exactly n nodes from the front of src to the front of
// l, preserving their relative order, in O(n) and without allocation. It
// panics if src holds fewer than n nodes.
func (l *List) SpliceFrontN(src *List, n int) {
	if n == 0 {
		return
	}
	if n > src.len {
		panic("freelist: SpliceFrontN: src has fewer than n nodes")
	}
	first := src.head
	last := first
	for i := 1; i < n; i++ {
		last = next(last)
	}
	rest := next(last)

	src.head = rest
	src.len -= n

	setNext(last, l.head)
	l.head = first
	l.len += n
}
