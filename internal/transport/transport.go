// Package transport
// Author: momentics <momentics@gmail.com>
//
// Platform-independent listener and stream types. The system calls behind
// them live in transport_linux.go.

package transport

import (
	"errors"
	"fmt"
	"net"

	"github.com/momentics/hioload-rt/api"
)

// Listener is a non-blocking listening TCP socket.
type Listener struct {
	fd   int
	addr *net.TCPAddr
}

// Listen binds and listens on addr ("host:port"; port 0 picks a free one).
func Listen(addr string) (*Listener, error) {
	ta, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve %q: %w", addr, err)
	}
	fd, bound, err := sysListen(ta)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &Listener{fd: fd, addr: bound}, nil
}

// FD returns the descriptor to register with the reactor.
func (l *Listener) FD() int { return l.fd }

// Addr returns the bound address, with the real port when listening on :0.
func (l *Listener) Addr() net.Addr { return l.addr }

// Accept takes one pending connection. It returns api.ErrWouldBlock when
// the backlog is empty.
func (l *Listener) Accept() (*Stream, error) {
	if l.fd < 0 {
		return nil, net.ErrClosed
	}
	fd, remote, err := sysAccept(l.fd)
	if err != nil {
		return nil, err
	}
	return &Stream{fd: fd, remote: remote}, nil
}

// Close closes the socket. The caller deregisters it from the reactor
// first. Closing twice is a no-op.
func (l *Listener) Close() error {
	if l.fd < 0 {
		return nil
	}
	fd := l.fd
	l.fd = -1
	return sysClose(fd)
}

// Stream is an accepted non-blocking TCP connection.
type Stream struct {
	fd     int
	remote *net.TCPAddr
}

// FD returns the descriptor to register with the reactor.
func (s *Stream) FD() int { return s.fd }

// RemoteAddr returns the peer address, or nil if unknown.
func (s *Stream) RemoteAddr() net.Addr {
	if s.remote == nil {
		return nil
	}
	return s.remote
}

// Read reads into p. It returns (0, nil) when the peer closed its side and
// api.ErrWouldBlock when no data is available.
func (s *Stream) Read(p []byte) (int, error) {
	if s.fd < 0 {
		return 0, net.ErrClosed
	}
	return sysRead(s.fd, p)
}

// Write writes from p, possibly partially. It returns api.ErrWouldBlock
// when the send buffer is full.
func (s *Stream) Write(p []byte) (int, error) {
	if s.fd < 0 {
		return 0, net.ErrClosed
	}
	return sysWrite(s.fd, p)
}

// Flush is a no-op: writes go straight to the kernel.
func (s *Stream) Flush() error { return nil }

// Close closes the connection. Closing twice is a no-op.
func (s *Stream) Close() error {
	if s.fd < 0 {
		return nil
	}
	fd := s.fd
	s.fd = -1
	return sysClose(fd)
}

// IsWouldBlock reports whether err means "retry after readiness".
func IsWouldBlock(err error) bool { return errors.Is(err, api.ErrWouldBlock) }
