// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package future

import (
	"os"
	"os/signal"
	"runtime"
	"sync"
	"time"

	"github.com/momentics/hioload-rt/api"
)

// completion is the only state shared between the scheduler goroutine and
// a foreign one: a done flag, the result and at most one parked waker.
type completion[T any] struct {
	mu    sync.Mutex
	done  bool
	value T
	waker api.Waker
	armed bool
}

// complete stores v and wakes the parked task, if any. Any goroutine.
func (c *completion[T]) complete(v T) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done, c.value = true, v
	w, armed := c.waker, c.armed
	c.armed = false
	c.mu.Unlock()

	if armed {
		w.WakeRemote()
	}
}

func (c *completion[T]) Poll(w api.Waker) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return c.value, true
	}
	c.waker, c.armed = w, true
	var zero T
	return zero, false
}

// Blocking runs work on a dedicated OS thread and resolves to its result.
// The thread exits with the work; it is never reused.
func Blocking[T any](work func() T) api.Future[T] {
	c := &completion[T]{}
	go func() {
		runtime.LockOSThread()
		c.complete(work())
	}()
	return c
}

// SpawnBlocking runs work on a dedicated OS thread and resolves once it
// returns.
func SpawnBlocking(work func()) api.Future[struct{}] {
	return Blocking(func() struct{} {
		work()
		return struct{}{}
	})
}

// Sleep resolves after d. The runtime timer fires on its own goroutine and
// wakes the task remotely, so no thread is parked for the duration.
func Sleep(d time.Duration) api.Future[struct{}] {
	c := &completion[struct{}]{}
	time.AfterFunc(d, func() { c.complete(struct{}{}) })
	return c
}

// Signal resolves with the first of sigs delivered to the process, or with
// nil once stop is closed. With no sigs it only watches stop.
func Signal(stop <-chan struct{}, sigs ...os.Signal) api.Future[os.Signal] {
	var ch chan os.Signal
	if len(sigs) > 0 {
		ch = make(chan os.Signal, 1)
		signal.Notify(ch, sigs...)
	}
	return Blocking(func() os.Signal {
		if ch != nil {
			defer signal.Stop(ch)
		}
		select {
		case sig := <-ch:
			return sig
		case <-stop:
			return nil
		}
	})
}
