// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package future

import "github.com/momentics/hioload-rt/api"

// chain is a two-state union: first{left, transition} then second{right}.
type chain[A, B any] struct {
	left       api.Future[A]
	transition func(A) api.Future[B]
	right      api.Future[B]
	second     bool
}

// Chain polls left to completion, feeds its output to transition and then
// polls the future it returns. transition runs exactly once; the second
// future is polled in the same call that completes the first, so no wakeup
// is lost across the switch.
func Chain[A, B any](left api.Future[A], transition func(A) api.Future[B]) api.Future[B] {
	return &chain[A, B]{left: left, transition: transition}
}

func (c *chain[A, B]) Poll(w api.Waker) (B, bool) {
	if !c.second {
		v, ok := c.left.Poll(w)
		if !ok {
			var zero B
			return zero, false
		}
		next := c.transition
		c.left, c.transition = nil, nil
		c.right = next(v)
		c.second = true
	}
	return c.right.Poll(w)
}
