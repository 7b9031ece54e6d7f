// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Descriptor → waker registry driven by an api.Multiplexer.

package reactor

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/control"
)

const defaultEventBatch = 1024

// Reactor is owned by the scheduler goroutine. Only Notify may be called
// from elsewhere.
type Reactor struct {
	mux     api.Multiplexer
	wakers  map[int]api.Waker
	ready   []int
	woken   map[int]struct{}
	log     zerolog.Logger
	metrics *control.Metrics
}

// Option customizes a Reactor.
type Option func(*Reactor)

// WithLogger sets the reactor logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Reactor) { r.log = l.With().Str("component", "reactor").Logger() }
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *control.Metrics) Option {
	return func(r *Reactor) { r.metrics = m }
}

// New wraps mux. The reactor takes ownership and closes it in Close.
func New(mux api.Multiplexer, opts ...Option) *Reactor {
	r := &Reactor{
		mux:    mux,
		wakers: make(map[int]api.Waker),
		ready:  make([]int, 0, defaultEventBatch),
		woken:  make(map[int]struct{}),
		log:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Add registers fd for read and write readiness and records w. Adding an
// fd that is already registered only replaces its waker.
func (r *Reactor) Add(fd int, w api.Waker) error {
	if _, ok := r.wakers[fd]; !ok {
		if err := r.mux.Register(fd, api.InterestReadWrite); err != nil {
			return fmt.Errorf("reactor add fd %d: %w", fd, err)
		}
		r.log.Trace().Int("fd", fd).Stringer("task", w.ID()).Msg("registered")
	}
	r.wakers[fd] = w
	r.metrics.SetRegistrations(len(r.wakers))
	return nil
}

// Remove deregisters fd and drops its waker. Removing an unknown fd is a
// no-op. Call it before closing the descriptor.
//
// The waker is kept when the multiplexer still holds fd, so a failed
// Remove can be retried.
func (r *Reactor) Remove(fd int) error {
	if _, ok := r.wakers[fd]; !ok {
		return nil
	}
	err := r.mux.Deregister(fd)
	if err != nil && !errors.Is(err, api.ErrNotRegistered) && !errors.Is(err, api.ErrMultiplexerClosed) {
		return fmt.Errorf("reactor remove fd %d: %w", fd, err)
	}
	delete(r.wakers, fd)
	r.metrics.SetRegistrations(len(r.wakers))
	r.log.Trace().Int("fd", fd).Msg("deregistered")
	return nil
}

// Registered reports whether fd currently has a waker.
func (r *Reactor) Registered(fd int) bool {
	_, ok := r.wakers[fd]
	return ok
}

// Len returns the number of registered descriptors.
func (r *Reactor) Len() int { return len(r.wakers) }

// WaitAndWake blocks until at least one registered descriptor is ready or
// Notify is called, then wakes the waker of each ready descriptor once.
// Readiness reported for a descriptor nobody waits on is dropped. Any
// error returned is fatal for the runtime.
func (r *Reactor) WaitAndWake() error {
	ready, err := r.mux.Wait(-1, r.ready[:0])
	if err != nil {
		return fmt.Errorf("reactor wait: %w", err)
	}
	r.metrics.ReactorWaited(len(ready))

	clear(r.woken)
	for _, fd := range ready {
		if _, dup := r.woken[fd]; dup {
			continue
		}
		r.woken[fd] = struct{}{}
		if w, ok := r.wakers[fd]; ok {
			w.Wake()
		}
	}
	return nil
}

// Notify interrupts a concurrent WaitAndWake. Safe from any goroutine.
func (r *Reactor) Notify() error {
	return r.mux.Wakeup()
}

// Close drops every registration and closes the multiplexer.
func (r *Reactor) Close() error {
	clear(r.wakers)
	r.metrics.SetRegistrations(0)
	return r.mux.Close()
}
