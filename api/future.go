// File: api/future.go
// Package api
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Poll-based future contract shared by the scheduler, the reactor and the
// combinator library.

package api

// Future is a unit of deferred computation advanced by polling.
//
// Poll returns (value, true) once the computation is complete; the future
// must not be polled again after that. Returning (zero, false) means the
// implementation has already arranged for w to be woken once progress is
// possible. Implementations tolerate spurious extra polls but never rely
// on them.
type Future[T any] interface {
	Poll(w Waker) (T, bool)
}

// Task is the type-erased future owned by a scheduler slot.
// A non-nil result marks the task as failed; it never stops the scheduler.
type Task = Future[error]

// Spawner accepts new top-level tasks.
type Spawner interface {
	Spawn(t Task) TaskID
}
