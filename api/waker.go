// File: api/waker.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

import "fmt"

// TaskID addresses a scheduler slot. The generation guards against a stale
// waker re-scheduling a task that reused the same slot.
type TaskID struct {
	Index      uint32
	Generation uint32
}

func (id TaskID) String() string {
	return fmt.Sprintf("%d#%d", id.Index, id.Generation)
}

// WakeSink is implemented by whatever owns the task slots.
type WakeSink interface {
	// WakeLocal re-enqueues id. Scheduler goroutine only.
	WakeLocal(id TaskID)
	// WakeRemote re-enqueues id from any goroutine.
	WakeRemote(id TaskID)
}

// Waker identifies one suspended task. It carries nothing but the task
// index and the sink that owns it; copies are independent.
type Waker struct {
	id   TaskID
	sink WakeSink
}

// NewWaker binds id to sink.
func NewWaker(id TaskID, sink WakeSink) Waker {
	return Waker{id: id, sink: sink}
}

// ID returns the task this waker schedules.
func (w Waker) ID() TaskID { return w.id }

// Valid reports whether the waker is bound to a sink.
func (w Waker) Valid() bool { return w.sink != nil }

// Wake re-enqueues the task. Must be called from the scheduler goroutine.
func (w Waker) Wake() {
	if w.sink != nil {
		w.sink.WakeLocal(w.id)
	}
}

// WakeRemote re-enqueues the task from an arbitrary goroutine and
// interrupts a blocked reactor wait.
func (w Waker) WakeRemote() {
	if w.sink != nil {
		w.sink.WakeRemote(w.id)
	}
}
