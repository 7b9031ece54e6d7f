// File: server/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection I/O steps shared by both handler implementations.

package server

import (
	"bytes"
	"errors"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/pool"
)

const cannedResponse = "HTTP/1.1 200 OK\r\nContent-Length: 12\nConnection: close\r\n\r\nHello world!"

var requestTerminator = []byte("\r\n\r\n")

// Conn is a non-blocking connection. Read and Write return
// api.ErrWouldBlock instead of blocking; Read returns 0 at end of stream.
type Conn interface {
	FD() int
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Flush() error
	Close() error
}

// Registrar is the reactor surface a handler needs.
type Registrar interface {
	Add(fd int, w api.Waker) error
	Remove(fd int) error
}

// connIO carries one connection through register, read, write and flush.
// Every step returns (done, err): done=false means suspended with the
// waker armed; done=true with a non-nil err ends the connection.
type connIO struct {
	conn Conn
	reg  Registrar
	log  zerolog.Logger
	bufs *pool.BytePool

	buf     []byte
	read    int
	written int

	registered bool
	finished   bool
	onFinish   func(fd int)
}

func newConnIO(conn Conn, reg Registrar, bufs *pool.BytePool, log zerolog.Logger) *connIO {
	return &connIO{
		conn: conn,
		reg:  reg,
		log:  log.With().Int("fd", conn.FD()).Logger(),
		bufs: bufs,
		buf:  bufs.GetBuffer(),
	}
}

func (c *connIO) fail(phase api.ConnPhase, err error) error {
	return api.NewConnError(phase, c.conn.FD(), err)
}

// register subscribes the connection for readiness on behalf of w.
func (c *connIO) register(w api.Waker) error {
	if err := c.reg.Add(c.conn.FD(), w); err != nil {
		return c.fail(api.PhaseRegister, err)
	}
	c.registered = true
	return nil
}

// readRequest reads until the bytes read so far end with a blank line.
func (c *connIO) readRequest() (bool, error) {
	for {
		if c.read == len(c.buf) {
			return true, c.fail(api.PhaseRead, api.ErrRequestTooLarge)
		}
		n, err := c.conn.Read(c.buf[c.read:])
		switch {
		case errors.Is(err, api.ErrWouldBlock):
			return false, nil
		case err != nil:
			return true, c.fail(api.PhaseRead, err)
		case n == 0:
			return true, api.ErrClientDisconnected
		}
		c.read += n
		if bytes.HasSuffix(c.buf[:c.read], requestTerminator) {
			c.log.Debug().Bytes("request", firstLine(c.buf[:c.read])).Int("bytes", c.read).Msg("request received")
			return true, nil
		}
	}
}

// writeResponse writes the canned response, resuming after partial writes.
func (c *connIO) writeResponse() (bool, error) {
	for c.written < len(cannedResponse) {
		n, err := c.conn.Write([]byte(cannedResponse[c.written:]))
		switch {
		case errors.Is(err, api.ErrWouldBlock):
			return false, nil
		case err != nil:
			return true, c.fail(api.PhaseWrite, err)
		case n == 0:
			return true, api.ErrClientDisconnected
		}
		c.written += n
	}
	return true, nil
}

func (c *connIO) flush() (bool, error) {
	err := c.conn.Flush()
	switch {
	case errors.Is(err, api.ErrWouldBlock):
		return false, nil
	case err != nil:
		return true, c.fail(api.PhaseFlush, err)
	}
	return true, nil
}

// finish drops the reactor registration, closes the socket and recycles
// the request buffer. Only the first call has any effect.
func (c *connIO) finish() {
	if c.finished {
		return
	}
	c.finished = true
	fd := c.conn.FD()
	if c.registered {
		if err := c.reg.Remove(fd); err != nil {
			c.log.Warn().Err(err).Msg("deregister failed")
		}
		c.registered = false
	}
	if err := c.conn.Close(); err != nil {
		c.log.Debug().Err(err).Msg("close failed")
	}
	c.bufs.PutBuffer(c.buf)
	c.buf = nil
	if c.onFinish != nil {
		c.onFinish(fd)
	}
}

func firstLine(b []byte) []byte {
	if i := bytes.IndexByte(b, '\r'); i >= 0 {
		return b[:i]
	}
	return b
}
