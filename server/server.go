// File: server/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server wires the listener, the reactor and the scheduler into the toy
// HTTP server and owns their lifetime.

package server

import (
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-rt/affinity"
	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/control"
	"github.com/momentics/hioload-rt/core/concurrency"
	"github.com/momentics/hioload-rt/internal/transport"
	"github.com/momentics/hioload-rt/pool"
	"github.com/momentics/hioload-rt/reactor"
)

var ErrAlreadyRunning = errors.New("server already running")

var _ api.GracefulShutdown = (*Server)(nil)

// Server answers every request on its listener with a canned 200 OK.
type Server struct {
	cfg     *Config
	log     zerolog.Logger
	metrics *control.Metrics
	probes  *control.DebugProbes

	reactor *reactor.Reactor
	sched   *concurrency.Scheduler
	ln      *transport.Listener
	addr    net.Addr
	bufs    *pool.BytePool

	// Loop-owned.
	tasks concurrency.Counter
	conns map[int]*transport.Stream
	fatal error

	running  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewServer binds the listener and prepares the runtime. Nothing runs
// until Run.
func NewServer(cfg *Config, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		log:    zerolog.Nop(),
		conns:  make(map[int]*transport.Stream),
		bufs:   pool.NewBytePool(cfg.ReadBufferSize),
		stopCh: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}

	mux, err := reactor.NewMultiplexer()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	s.reactor = reactor.New(mux, reactor.WithLogger(s.log), reactor.WithMetrics(s.metrics))
	s.sched = concurrency.NewScheduler(s.reactor,
		concurrency.WithLogger(s.log),
		concurrency.WithMetrics(s.metrics),
		concurrency.WithInboxCapacity(cfg.InboxCapacity),
	)

	ln, err := transport.Listen(cfg.ListenAddr)
	if err != nil {
		_ = s.reactor.Close()
		return nil, fmt.Errorf("server: %w", err)
	}
	s.ln, s.addr = ln, ln.Addr()
	s.log = s.log.With().Str("component", "server").Logger()

	if s.probes != nil {
		s.registerProbes(s.probes)
	}
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr { return s.addr }

// Run serves until a shutdown signal, a Shutdown call or a listener
// failure, then drains in-flight connections for up to ShutdownTimeout.
// It blocks the calling goroutine, which becomes the runtime's only
// thread. Connections still open after the drain are closed.
func (s *Server) Run() error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	s.log.Info().
		Stringer("addr", s.addr).
		Str("handler", string(s.cfg.Handler)).
		Dur("shutdown_timeout", s.cfg.ShutdownTimeout).
		Msg("listening")

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if s.cfg.CPU >= 0 {
		if err := affinity.SetAffinity(s.cfg.CPU); err != nil {
			s.log.Warn().Err(err).Int("cpu", s.cfg.CPU).Msg("loop thread not pinned")
		} else {
			s.log.Debug().Int("cpu", s.cfg.CPU).Msg("loop thread pinned")
		}
	}

	s.sched.Spawn(s.lifecycle())
	runErr := s.sched.Run()

	s.closeLeftovers()
	s.stopAccepting()
	if err := s.reactor.Close(); err != nil {
		s.log.Warn().Err(err).Msg("reactor close failed")
	}
	if s.probes != nil {
		s.probes.LogState(s.log.Debug())
	}

	if err := errors.Join(runErr, s.fatal); err != nil {
		s.log.Error().Err(err).Msg("server stopped with error")
		return err
	}
	s.log.Info().Msg("graceful shutdown complete")
	return nil
}

// Shutdown starts the graceful shutdown sequence. Safe from any goroutine
// and idempotent; it does not wait for Run to return (see Done).
func (s *Server) Shutdown() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	return nil
}

// Done is closed when the scheduler loop has exited.
func (s *Server) Done() <-chan struct{} { return s.sched.Done() }

// closeLeftovers releases connections abandoned by a timed-out drain.
func (s *Server) closeLeftovers() {
	if len(s.conns) == 0 {
		return
	}
	s.log.Warn().Int("connections", len(s.conns)).Msg("closing connections left after shutdown")
	for fd, c := range s.conns {
		_ = s.reactor.Remove(fd)
		_ = c.Close()
		s.metrics.ConnClosed()
		delete(s.conns, fd)
	}
}

func (s *Server) registerProbes(dp *control.DebugProbes) {
	control.RegisterPlatformProbes(dp)
	dp.RegisterProbe("server.addr", func() any { return s.addr.String() })
	dp.RegisterProbe("server.in_flight", func() any { return s.tasks.Count() })
	dp.RegisterProbe("server.open_conns", func() any { return len(s.conns) })
	dp.RegisterProbe("scheduler.tasks", func() any { return s.sched.Len() })
	dp.RegisterProbe("scheduler.pending", func() any { return s.sched.Pending() })
	dp.RegisterProbe("reactor.registrations", func() any { return s.reactor.Len() })
}
