// File: server/options.go
// Package server defines functional options for the Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-rt/control"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the logger shared by the server, scheduler and reactor.
func WithLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithMetrics attaches prometheus collectors.
func WithMetrics(m *control.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithDebugProbes registers runtime probes (live tasks, registrations,
// in-flight connections) on dp.
func WithDebugProbes(dp *control.DebugProbes) ServerOption {
	return func(s *Server) {
		s.probes = dp
	}
}
