// File: server/handler_chain.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection handler composed from chained poll closures.

package server

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/future"
	"github.com/momentics/hioload-rt/pool"
)

// ioStep adapts a connIO step to a future.
func ioStep(step func() (bool, error)) api.Future[error] {
	return future.PollFn(func(api.Waker) (error, bool) {
		done, err := step()
		return err, done
	})
}

// then runs next only if the previous stage succeeded.
func then(prev api.Future[error], next func() api.Future[error]) api.Future[error] {
	return future.Chain(prev, func(err error) api.Future[error] {
		if err != nil {
			return future.Ready(err)
		}
		return next()
	})
}

func newChainHandler(c *connIO) api.Task {
	register := future.PollFn(func(w api.Waker) (error, bool) {
		return c.register(w), true
	})
	handled := then(register, func() api.Future[error] {
		return then(ioStep(c.readRequest), func() api.Future[error] {
			return then(ioStep(c.writeResponse), func() api.Future[error] {
				return ioStep(c.flush)
			})
		})
	})
	return future.Map(handled, func(err error) error {
		c.finish()
		return err
	})
}

// newHandler builds the connection task for mode. onFinish, if set, runs
// once after the socket is closed.
func newHandler(mode HandlerMode, conn Conn, reg Registrar, bufs *pool.BytePool, log zerolog.Logger, onFinish func(fd int)) api.Task {
	c := newConnIO(conn, reg, bufs, log)
	c.onFinish = onFinish
	var h api.Task
	if mode == HandlerChain {
		h = newChainHandler(c)
	} else {
		h = newStateHandler(c)
	}
	return &guardedHandler{h: h, c: c}
}

// guardedHandler turns a panic inside the handler into a completed task,
// so the socket is still released and the connection accounted for.
type guardedHandler struct {
	h api.Task
	c *connIO
}

func (g *guardedHandler) Poll(w api.Waker) (err error, done bool) {
	defer func() {
		if r := recover(); r != nil {
			g.c.finish()
			err, done = fmt.Errorf("connection handler fd %d panicked: %v", g.c.conn.FD(), r), true
		}
	}()
	return g.h.Poll(w)
}
