// File: server/run.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Accept loop and the graceful shutdown sequence, both running as tasks
// on the server's scheduler.

package server

import (
	"errors"
	"os"
	"syscall"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/future"
	"github.com/momentics/hioload-rt/internal/transport"
)

// acceptBudget caps accepts per poll so a connection flood cannot starve
// the handlers. The loop re-wakes itself when it runs out.
const acceptBudget = 128

// lifecycle is the root task:
//
//	select(signal, accept) -> stop accepting -> select(timer, drained) -> stop scheduler
func (s *Server) lifecycle() api.Task {
	var sigs []os.Signal
	if s.cfg.HandleSignals {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	trigger := future.Select(future.Signal(s.stopCh, sigs...), s.acceptLoop())

	return future.Chain(trigger, func(e future.Either[os.Signal, error]) api.Future[error] {
		switch {
		case !e.IsLeft():
			s.fatal = e.Right
			s.log.Error().Err(e.Right).Msg("accept loop failed")
		case e.Left != nil:
			s.log.Info().Stringer("signal", e.Left).Msg("signal received")
		default:
			s.log.Info().Msg("shutdown requested")
		}
		s.stopAccepting()

		s.log.Info().Int("in_flight", s.tasks.Count()).Msg("draining connections")
		drain := future.Select(future.Sleep(s.cfg.ShutdownTimeout), s.tasks.WaitForZero())
		return future.Map(drain, func(d future.Either[struct{}, struct{}]) error {
			if d.IsLeft() {
				s.metrics.ShutdownTimedOut()
				s.log.Warn().Err(api.ErrShutdownTimeout).Int("in_flight", s.tasks.Count()).Msg("drain incomplete")
			}
			s.log.Info().Msg("stopping scheduler")
			s.sched.Shutdown()
			return nil
		})
	})
}

// acceptLoop registers the listener on first poll, then accepts until the
// backlog is empty. It completes only on a listener failure.
func (s *Server) acceptLoop() api.Future[error] {
	registered := false
	return future.PollFn(func(w api.Waker) (error, bool) {
		fd := s.ln.FD()
		if !registered {
			if err := s.reactor.Add(fd, w); err != nil {
				return api.NewConnError(api.PhaseRegister, fd, err), true
			}
			registered = true
		}
		for i := 0; i < acceptBudget; i++ {
			stream, err := s.ln.Accept()
			switch {
			case errors.Is(err, api.ErrWouldBlock):
				return nil, false
			case err != nil:
				return api.NewConnError(api.PhaseAccept, fd, err), true
			}
			s.spawnConn(stream)
		}
		w.Wake()
		return nil, false
	})
}

func (s *Server) spawnConn(st *transport.Stream) {
	s.tasks.Increment()
	s.conns[st.FD()] = st
	s.metrics.ConnOpened()
	s.log.Debug().Int("fd", st.FD()).Stringer("remote", st.RemoteAddr()).Msg("connection accepted")

	h := newHandler(s.cfg.Handler, st, s.reactor, s.bufs, s.log,
		func(fd int) { delete(s.conns, fd) })
	s.sched.Spawn(future.Map(h, s.connDone))
}

// connDone accounts for a finished connection and passes err on to the
// scheduler, which logs it.
func (s *Server) connDone(err error) error {
	s.metrics.ConnClosed()
	var ce *api.ConnError
	switch {
	case errors.Is(err, api.ErrClientDisconnected):
		s.metrics.ClientDisconnected()
	case errors.As(err, &ce):
		s.metrics.ConnError(ce.Phase.String())
	}
	if derr := s.tasks.Decrement(); derr != nil {
		s.log.Error().Err(derr).Msg("in-flight counter")
	}
	return err
}

// stopAccepting deregisters and closes the listener and releases the
// signal watcher. Idempotent.
func (s *Server) stopAccepting() {
	if fd := s.ln.FD(); fd >= 0 {
		if err := s.reactor.Remove(fd); err != nil {
			s.log.Warn().Err(err).Msg("listener deregister failed")
		}
		if err := s.ln.Close(); err != nil {
			s.log.Warn().Err(err).Msg("listener close failed")
		}
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
}
