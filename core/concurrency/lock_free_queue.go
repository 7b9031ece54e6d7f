// File: core/concurrency/lock_free_queue.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded MPMC queue (Vyukov sequence-number scheme). The scheduler uses it
// as the inbox for wakes arriving from goroutines other than the loop.

package concurrency

import "sync/atomic"

const cacheLinePad = 64

// LockFreeQueue is a bounded multi-producer multi-consumer queue.
type LockFreeQueue[T any] struct {
	head  atomic.Uint64
	_     [cacheLinePad]byte
	tail  atomic.Uint64
	_     [cacheLinePad]byte
	mask  uint64
	cells []cell[T]
}

type cell[T any] struct {
	seq  atomic.Uint64
	data T
}

// NewLockFreeQueue creates a queue with capacity rounded up to a power of two.
func NewLockFreeQueue[T any](capacity int) *LockFreeQueue[T] {
	size := 2
	for size < capacity {
		size <<= 1
	}
	q := &LockFreeQueue[T]{
		mask:  uint64(size - 1),
		cells: make([]cell[T], size),
	}
	for i := range q.cells {
		q.cells[i].seq.Store(uint64(i))
	}
	return q
}

// Cap returns the queue capacity.
func (q *LockFreeQueue[T]) Cap() int { return len(q.cells) }

// Enqueue appends v, returning false when the queue is full.
func (q *LockFreeQueue[T]) Enqueue(v T) bool {
	for {
		pos := q.tail.Load()
		c := &q.cells[pos&q.mask]
		switch d := int64(c.seq.Load()) - int64(pos); {
		case d == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				c.data = v
				c.seq.Store(pos + 1)
				return true
			}
		case d < 0:
			return false
		}
	}
}

// Dequeue removes the oldest element; ok is false when the queue is empty.
func (q *LockFreeQueue[T]) Dequeue() (v T, ok bool) {
	for {
		pos := q.head.Load()
		c := &q.cells[pos&q.mask]
		switch d := int64(c.seq.Load()) - int64(pos+1); {
		case d == 0:
			if q.head.CompareAndSwap(pos, pos+1) {
				v = c.data
				var zero T
				c.data = zero
				c.seq.Store(pos + q.mask + 1)
				return v, true
			}
		case d < 0:
			return v, false
		}
	}
}
