// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package future

import "github.com/momentics/hioload-rt/api"

// PollFunc has the signature of api.Future.Poll.
type PollFunc[T any] func(w api.Waker) (T, bool)

// Poll calls f.
func (f PollFunc[T]) Poll(w api.Waker) (T, bool) {
	return f(w)
}

// PollFn wraps a closure as a future. Hand-written state machines that do
// not need a combinator chain start here.
func PollFn[T any](f func(w api.Waker) (T, bool)) api.Future[T] {
	return PollFunc[T](f)
}

// Ready returns a future that completes immediately with v.
func Ready[T any](v T) api.Future[T] {
	return PollFunc[T](func(api.Waker) (T, bool) { return v, true })
}

// Map transforms the output of f once it completes.
func Map[A, B any](f api.Future[A], fn func(A) B) api.Future[B] {
	return PollFunc[B](func(w api.Waker) (B, bool) {
		v, ok := f.Poll(w)
		if !ok {
			var zero B
			return zero, false
		}
		return fn(v), true
	})
}
