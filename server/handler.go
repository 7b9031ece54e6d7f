// File: server/handler.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection handler as an explicit state machine.

package server

import "github.com/momentics/hioload-rt/api"

type connState uint8

const (
	stateStart connState = iota
	stateRead
	stateWrite
	stateFlush
	stateDone
)

func (s connState) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateRead:
		return "read"
	case stateWrite:
		return "write"
	case stateFlush:
		return "flush"
	case stateDone:
		return "done"
	}
	return "unknown"
}

// stateHandler serves one connection. States only move forward; once in
// stateDone the registration and the socket are released.
type stateHandler struct {
	io    *connIO
	state connState
	err   error
}

var _ api.Task = (*stateHandler)(nil)

func newStateHandler(c *connIO) *stateHandler {
	return &stateHandler{io: c}
}

// Poll advances as far as the socket allows. Re-polling while suspended
// repeats the pending I/O attempt and nothing else.
func (h *stateHandler) Poll(w api.Waker) (error, bool) {
	for {
		var (
			done bool
			err  error
		)
		switch h.state {
		case stateStart:
			done, err = true, h.io.register(w)
		case stateRead:
			done, err = h.io.readRequest()
		case stateWrite:
			done, err = h.io.writeResponse()
		case stateFlush:
			done, err = h.io.flush()
		case stateDone:
			return h.err, true
		}
		if !done {
			return nil, false
		}
		if err != nil {
			h.io.log.Trace().Stringer("state", h.state).Err(err).Msg("connection ended")
			h.done(err)
			continue
		}
		h.state++
		if h.state == stateDone {
			h.done(nil)
		}
	}
}

func (h *stateHandler) done(err error) {
	h.state, h.err = stateDone, err
	h.io.finish()
}
