// File: core/concurrency/scheduler.go
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scheduler is a single-threaded cooperative task runner. It owns a slot
// arena of type-erased futures and a FIFO run-queue of task ids, and blocks
// in the reactor only when nothing is runnable.

package concurrency

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/control"
)

const defaultInboxCapacity = 4096

// Driver is the blocking side of the reactor as seen by the scheduler.
type Driver interface {
	// WaitAndWake blocks until I/O readiness or Notify, waking ready tasks.
	WaitAndWake() error
	// Notify interrupts a blocked WaitAndWake from any goroutine.
	Notify() error
}

// slot holds one task. generation increases every time the slot is freed,
// which invalidates wakers still pointing at the old occupant.
type slot struct {
	task       api.Task
	generation uint32
	live       bool
	queued     bool
}

var (
	_ api.WakeSink = (*Scheduler)(nil)
	_ api.Spawner  = (*Scheduler)(nil)
)

// Scheduler runs tasks on the goroutine that calls Run. Spawn, WakeLocal,
// Len and Pending belong to that goroutine (or to setup code before Run);
// WakeRemote and Shutdown are safe from anywhere.
type Scheduler struct {
	driver Driver
	slots  []slot
	free   []uint32
	runq   *queue.Queue // of api.TaskID
	inbox  *LockFreeQueue[api.TaskID]

	// overflow takes remote wakes while inbox is full.
	overflowMu  sync.Mutex
	overflow    []api.TaskID
	hasOverflow atomic.Bool

	shutdown atomic.Bool
	started  atomic.Bool
	doneCh   chan struct{}

	log     zerolog.Logger
	metrics *control.Metrics
	inboxN  int
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l.With().Str("component", "scheduler").Logger() }
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *control.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithInboxCapacity sizes the cross-goroutine wake inbox.
func WithInboxCapacity(n int) Option {
	return func(s *Scheduler) { s.inboxN = n }
}

// NewScheduler creates a scheduler that parks in driver when idle.
func NewScheduler(driver Driver, opts ...Option) *Scheduler {
	s := &Scheduler{
		driver: driver,
		runq:   queue.New(),
		doneCh: make(chan struct{}),
		log:    zerolog.Nop(),
		inboxN: defaultInboxCapacity,
	}
	for _, o := range opts {
		o(s)
	}
	s.inbox = NewLockFreeQueue[api.TaskID](s.inboxN)
	return s
}

// Spawn stores t in a free slot and enqueues it. Calling Spawn from inside
// a task's Poll is safe: the new task is polled on a later queue pop,
// never re-entrantly.
func (s *Scheduler) Spawn(t api.Task) api.TaskID {
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = uint32(len(s.slots))
		s.slots = append(s.slots, slot{})
	}
	sl := &s.slots[idx]
	sl.task, sl.live, sl.queued = t, true, true
	id := api.TaskID{Index: idx, Generation: sl.generation}
	s.runq.Add(id)
	s.metrics.TaskSpawned()
	s.log.Trace().Stringer("task", id).Msg("spawned")
	return id
}

// lookup returns the slot for id, or nil if the task is gone.
func (s *Scheduler) lookup(id api.TaskID) *slot {
	if int(id.Index) >= len(s.slots) {
		return nil
	}
	sl := &s.slots[id.Index]
	if !sl.live || sl.generation != id.Generation {
		return nil
	}
	return sl
}

// WakeLocal re-enqueues id unless it is already queued or finished.
// Scheduler goroutine only.
func (s *Scheduler) WakeLocal(id api.TaskID) {
	sl := s.lookup(id)
	if sl == nil || sl.queued {
		return
	}
	sl.queued = true
	s.runq.Add(id)
	s.metrics.Woken(false)
}

// WakeRemote hands id to the scheduler from any goroutine and interrupts
// a blocked reactor wait. It never blocks, so the scheduler goroutine may
// call it too. Wakes arriving after Run returned are dropped.
func (s *Scheduler) WakeRemote(id api.TaskID) {
	if s.stopped() {
		return
	}
	if !s.inbox.Enqueue(id) {
		s.overflowMu.Lock()
		s.overflow = append(s.overflow, id)
		s.hasOverflow.Store(true)
		s.overflowMu.Unlock()
		s.metrics.InboxOverflowed()
	}
	if err := s.driver.Notify(); err != nil && !errors.Is(err, api.ErrMultiplexerClosed) {
		s.log.Error().Err(err).Stringer("task", id).Msg("remote wake notify failed")
	}
}

func (s *Scheduler) stopped() bool {
	select {
	case <-s.doneCh:
		return true
	default:
		return false
	}
}

func (s *Scheduler) drainInbox() {
	for {
		id, ok := s.inbox.Dequeue()
		if !ok {
			break
		}
		s.wakeDrained(id)
	}
	if !s.hasOverflow.Load() {
		return
	}
	s.overflowMu.Lock()
	spilled := s.overflow
	s.overflow = nil
	s.hasOverflow.Store(false)
	s.overflowMu.Unlock()
	for _, id := range spilled {
		s.wakeDrained(id)
	}
}

func (s *Scheduler) wakeDrained(id api.TaskID) {
	sl := s.lookup(id)
	if sl == nil || sl.queued {
		return
	}
	sl.queued = true
	s.runq.Add(id)
	s.metrics.Woken(true)
}

// Run drives tasks until Shutdown has been requested and the run-queue is
// empty. It returns nil on a requested stop and an error only when the
// reactor fails. Run may be called once.
//
// Loop states: draining (queue non-empty), waiting (queue empty, blocked in
// the reactor) and stopped.
func (s *Scheduler) Run() error {
	if !s.started.CompareAndSwap(false, true) {
		return api.ErrSchedulerRunning
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.doneCh)

	s.log.Debug().Msg("scheduler started")
	for {
		s.drainInbox()
		if s.runq.Length() > 0 {
			id := s.runq.Remove().(api.TaskID)
			s.poll(id)
			continue
		}
		if s.shutdown.Load() {
			s.log.Debug().Int("abandoned", s.Len()).Msg("scheduler stopped")
			return nil
		}
		if err := s.driver.WaitAndWake(); err != nil {
			s.log.Error().Err(err).Msg("reactor failed")
			return fmt.Errorf("scheduler: %w", err)
		}
	}
}

func (s *Scheduler) poll(id api.TaskID) {
	sl := s.lookup(id)
	if sl == nil {
		return
	}
	sl.queued = false
	t := sl.task

	s.metrics.Polled()
	err, done := s.pollTask(id, t)
	if !done {
		return
	}

	// Polling may have grown s.slots; re-resolve.
	sl = &s.slots[id.Index]
	sl.task, sl.live, sl.queued = nil, false, false
	sl.generation++
	s.free = append(s.free, id.Index)

	switch {
	case err == nil:
		s.metrics.TaskFinished(false)
		s.log.Trace().Stringer("task", id).Msg("task completed")
	case errors.Is(err, api.ErrClientDisconnected):
		s.metrics.TaskFinished(false)
		s.log.Debug().Stringer("task", id).Err(err).Msg("task ended early")
	default:
		s.metrics.TaskFinished(true)
		s.log.Error().Stringer("task", id).Err(err).Msg("task failed")
	}
}

// pollTask polls t, converting a panic into a task failure.
func (s *Scheduler) pollTask(id api.TaskID, t api.Task) (err error, done bool) {
	defer func() {
		if r := recover(); r != nil {
			err, done = fmt.Errorf("task %s panicked: %v", id, r), true
		}
	}()
	return t.Poll(api.NewWaker(id, s))
}

// Shutdown asks Run to return once the run-queue is empty. In-flight tasks
// are not cancelled; tasks still parked in the reactor are abandoned.
func (s *Scheduler) Shutdown() {
	if s.shutdown.CompareAndSwap(false, true) {
		s.log.Debug().Msg("shutdown requested")
	}
	_ = s.driver.Notify()
}

// ShuttingDown reports whether Shutdown has been called.
func (s *Scheduler) ShuttingDown() bool { return s.shutdown.Load() }

// Done is closed when Run returns.
func (s *Scheduler) Done() <-chan struct{} { return s.doneCh }

// Len returns the number of live tasks.
func (s *Scheduler) Len() int { return len(s.slots) - len(s.free) }

// Pending returns the run-queue length.
func (s *Scheduler) Pending() int { return s.runq.Length() }
