package core

import "sync/atomic"

// IDAllocator hands out process-unique block ids. One allocator is owned by
// each engine; there is no package-level counter.
type IDAllocator struct {
	next atomic.Uint64
}

// Next returns the next id, starting at 1.
func (a *IDAllocator) Next() uint64 {
	return a.next.Add(1)
}
