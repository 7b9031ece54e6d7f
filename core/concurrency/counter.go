// File: core/concurrency/counter.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// In-flight counter with a single waiter, used to drain connections before
// stopping the scheduler.

package concurrency

import (
	"sync"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/future"
)

// Counter tracks in-flight work. It is touched by the scheduler goroutine
// and possibly others, hence the mutex.
type Counter struct {
	mu    sync.Mutex
	count int
	waker api.Waker
	armed bool
}

// Increment adds one unit of in-flight work.
func (c *Counter) Increment() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

// Decrement removes one unit. When the count reaches zero the stored
// waiter, if any, is woken and cleared. Decrementing at zero returns
// ErrCounterUnderflow and leaves the count at zero.
func (c *Counter) Decrement() error {
	c.mu.Lock()
	if c.count == 0 {
		c.mu.Unlock()
		return api.ErrCounterUnderflow
	}
	c.count--
	var (
		w    api.Waker
		wake bool
	)
	if c.count == 0 && c.armed {
		w, wake = c.waker, true
		c.waker, c.armed = api.Waker{}, false
	}
	c.mu.Unlock()

	if wake {
		w.WakeRemote()
	}
	return nil
}

// Count returns the current value.
func (c *Counter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// WaitForZero returns a future that completes once the count is zero.
// Each pending poll replaces the stored waker; only one waiter is kept.
func (c *Counter) WaitForZero() api.Future[struct{}] {
	return future.PollFn(func(w api.Waker) (struct{}, bool) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.count == 0 {
			return struct{}{}, true
		}
		c.waker, c.armed = w, true
		return struct{}{}, false
	})
}
