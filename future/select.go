// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package future

import "github.com/momentics/hioload-rt/api"

// Side tags which branch of a Select completed.
type Side uint8

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// Either holds the output of the Select branch that won. Only the field
// matching Side is meaningful.
type Either[L, R any] struct {
	Side  Side
	Left  L
	Right R
}

// IsLeft reports whether the left branch won.
func (e Either[L, R]) IsLeft() bool { return e.Side == Left }

// Select polls left, then right, and completes with whichever finishes
// first. Left wins a tie. The loser is dropped without any cancellation
// signal: if it holds a reactor registration or a blocking thread, its
// owner must release that separately.
func Select[L, R any](left api.Future[L], right api.Future[R]) api.Future[Either[L, R]] {
	return PollFunc[Either[L, R]](func(w api.Waker) (Either[L, R], bool) {
		if v, ok := left.Poll(w); ok {
			return Either[L, R]{Side: Left, Left: v}, true
		}
		if v, ok := right.Poll(w); ok {
			return Either[L, R]{Side: Right, Right: v}, true
		}
		return Either[L, R]{}, false
	})
}
