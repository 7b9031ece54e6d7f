package concurrency_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/core/concurrency"
	"github.com/momentics/hioload-rt/fake"
	"github.com/momentics/hioload-rt/future"
	"github.com/momentics/hioload-rt/reactor"
)

func newScheduler(t *testing.T) (*concurrency.Scheduler, *fake.Multiplexer) {
	t.Helper()
	mux := fake.NewMultiplexer()
	r := reactor.New(mux)
	t.Cleanup(func() { _ = r.Close() })
	return concurrency.NewScheduler(r), mux
}

// runAsync runs s on its own goroutine and returns a channel with Run's result.
func runAsync(s *concurrency.Scheduler) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run() }()
	return errCh
}

func waitRun(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
		return nil
	}
}

func done(fn func()) api.Task {
	return future.PollFn(func(api.Waker) (error, bool) {
		fn()
		return nil, true
	})
}

func TestScheduler_FIFO(t *testing.T) {
	s, _ := newScheduler(t)
	var order []string
	for _, name := range []string{"a", "b", "c"} {
		name := name
		s.Spawn(done(func() { order = append(order, name) }))
	}
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, 3, s.Pending())

	s.Shutdown()
	require.NoError(t, s.Run())
	if diff := cmp.Diff([]string{"a", "b", "c"}, order); diff != "" {
		t.Errorf("poll order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_RecursiveSpawnIsNotReentrant(t *testing.T) {
	s, _ := newScheduler(t)
	var order []string
	inParent := false
	s.Spawn(future.PollFn(func(api.Waker) (error, bool) {
		inParent = true
		s.Spawn(done(func() {
			assert.False(t, inParent, "child polled inside parent's poll")
			order = append(order, "child")
		}))
		order = append(order, "parent")
		inParent = false
		return nil, true
	}))
	s.Spawn(done(func() { order = append(order, "sibling") }))

	s.Shutdown()
	require.NoError(t, s.Run())
	assert.Equal(t, []string{"parent", "sibling", "child"}, order)
}

func TestScheduler_LocalWakeDedup(t *testing.T) {
	s, _ := newScheduler(t)
	polls := 0
	s.Spawn(future.PollFn(func(w api.Waker) (error, bool) {
		polls++
		if polls == 1 {
			w.Wake()
			w.Wake()
			assert.Equal(t, 1, s.Pending())
			return nil, false
		}
		return nil, true
	}))
	s.Shutdown()
	require.NoError(t, s.Run())
	assert.Equal(t, 2, polls)
}

func TestScheduler_StaleWakerIgnored(t *testing.T) {
	s, _ := newScheduler(t)
	var stale api.Waker
	first := s.Spawn(future.PollFn(func(w api.Waker) (error, bool) {
		stale = w
		return nil, true
	}))

	var reused api.TaskID
	reusedPolls := 0
	s.Spawn(done(func() {
		reused = s.Spawn(future.PollFn(func(api.Waker) (error, bool) {
			reusedPolls++
			return nil, false
		}))
		stale.Wake()
	}))

	s.Shutdown()
	require.NoError(t, s.Run())
	assert.Equal(t, first.Index, reused.Index, "slot should be reused")
	assert.NotEqual(t, first.Generation, reused.Generation)
	assert.Equal(t, 1, reusedPolls, "stale waker must not re-enqueue the new occupant")
	assert.Equal(t, 1, s.Len(), "parked task is abandoned, not dropped")
}

func TestScheduler_RemoteWake(t *testing.T) {
	s, _ := newScheduler(t)
	polls := 0
	s.Spawn(future.PollFn(func(w api.Waker) (error, bool) {
		polls++
		if polls == 1 {
			go func() {
				time.Sleep(10 * time.Millisecond)
				w.WakeRemote()
			}()
			return nil, false
		}
		s.Shutdown()
		return nil, true
	}))

	require.NoError(t, waitRun(t, runAsync(s)))
	assert.Equal(t, 2, polls)
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Run returned")
	}
}

func TestScheduler_RemoteWakesBeyondInboxCapacity(t *testing.T) {
	mux := fake.NewMultiplexer()
	r := reactor.New(mux)
	t.Cleanup(func() { _ = r.Close() })
	s := concurrency.NewScheduler(r, concurrency.WithInboxCapacity(2))

	const tasks = 32
	var finished atomic.Int32
	wakers := make(chan api.Waker, tasks)
	for i := 0; i < tasks; i++ {
		polled := false
		s.Spawn(future.PollFn(func(w api.Waker) (error, bool) {
			if !polled {
				polled = true
				wakers <- w
				return nil, false
			}
			if finished.Add(1) == tasks {
				s.Shutdown()
			}
			return nil, true
		}))
	}

	errCh := runAsync(s)
	var all []api.Waker
	for i := 0; i < tasks; i++ {
		all = append(all, <-wakers)
	}
	for _, w := range all {
		go w.WakeRemote()
	}

	require.NoError(t, waitRun(t, errCh))
	assert.EqualValues(t, tasks, finished.Load())
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_SpawnBlocking(t *testing.T) {
	s, _ := newScheduler(t)
	var ran atomic.Bool
	s.Spawn(future.Chain(
		future.SpawnBlocking(func() {
			time.Sleep(5 * time.Millisecond)
			ran.Store(true)
		}),
		func(struct{}) api.Future[error] {
			s.Shutdown()
			return future.Ready[error](nil)
		},
	))
	require.NoError(t, waitRun(t, runAsync(s)))
	assert.True(t, ran.Load())
}

func TestScheduler_ShutdownFromOtherGoroutine(t *testing.T) {
	s, _ := newScheduler(t)
	s.Spawn(future.PollFn(func(api.Waker) (error, bool) { return nil, false }))
	errCh := runAsync(s)
	time.Sleep(10 * time.Millisecond)
	s.Shutdown()
	require.NoError(t, waitRun(t, errCh))
	assert.True(t, s.ShuttingDown())
	assert.Equal(t, 1, s.Len())
}

func TestScheduler_TaskFailuresDoNotStopLoop(t *testing.T) {
	s, _ := newScheduler(t)
	ran := false
	s.Spawn(future.Ready[error](errors.New("boom")))
	s.Spawn(future.Ready[error](api.ErrClientDisconnected))
	s.Spawn(future.PollFn(func(api.Waker) (error, bool) { panic("task panic") }))
	s.Spawn(done(func() { ran = true }))

	s.Shutdown()
	require.NoError(t, s.Run())
	assert.True(t, ran)
	assert.Equal(t, 0, s.Len())
}

func TestScheduler_RunTwice(t *testing.T) {
	s, _ := newScheduler(t)
	s.Shutdown()
	require.NoError(t, s.Run())
	assert.ErrorIs(t, s.Run(), concurrency.ErrSchedulerRunning)
}

func TestScheduler_ReactorFailureIsFatal(t *testing.T) {
	s, mux := newScheduler(t)
	require.NoError(t, mux.Close())
	err := waitRun(t, runAsync(s))
	assert.ErrorIs(t, err, api.ErrMultiplexerClosed)
}

func TestScheduler_ReadinessWakesTask(t *testing.T) {
	mux := fake.NewMultiplexer()
	r := reactor.New(mux)
	t.Cleanup(func() { _ = r.Close() })
	s := concurrency.NewScheduler(r)

	const fd = 42
	polls := 0
	s.Spawn(future.PollFn(func(w api.Waker) (error, bool) {
		polls++
		if polls == 1 {
			require.NoError(t, r.Add(fd, w))
			return nil, false
		}
		require.NoError(t, r.Remove(fd))
		s.Shutdown()
		return nil, true
	}))

	errCh := runAsync(s)
	require.Eventually(t, func() bool {
		_, ok := mux.Registered(fd)
		return ok
	}, time.Second, time.Millisecond)
	mux.Ready(fd)
	require.NoError(t, waitRun(t, errCh))
	assert.Equal(t, 2, polls)
	assert.Equal(t, 0, mux.Len())
}
