// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by the runtime and the servers built on it.

package api

import (
	"errors"
	"fmt"
)

// Common errors used across the library.
var (
	// ErrWouldBlock is the normal suspend signal of a non-blocking syscall.
	// It is absorbed where it occurs and surfaces only as Poll returning false.
	ErrWouldBlock = errors.New("operation would block")

	// ErrClientDisconnected marks a peer that closed before the exchange
	// finished. Benign: it ends one task only.
	ErrClientDisconnected = errors.New("client disconnected unexpectedly")

	// ErrShutdownTimeout reports that the graceful shutdown deadline elapsed
	// with tasks still in flight. The shutdown proceeds anyway.
	ErrShutdownTimeout = errors.New("graceful shutdown timed out")

	ErrNotSupported      = errors.New("operation not supported")
	ErrCounterUnderflow  = errors.New("counter decremented below zero")
	ErrRequestTooLarge   = errors.New("request exceeds read buffer")
	ErrSchedulerRunning  = errors.New("scheduler already running")
	ErrMultiplexerClosed = errors.New("multiplexer closed")
	ErrAlreadyRegistered = errors.New("descriptor already registered")
	ErrNotRegistered     = errors.New("descriptor not registered")
)

// ConnPhase names the connection step an error happened in.
type ConnPhase int

const (
	PhaseAccept ConnPhase = iota
	PhaseRegister
	PhaseRead
	PhaseWrite
	PhaseFlush
)

func (p ConnPhase) String() string {
	switch p {
	case PhaseAccept:
		return "accept"
	case PhaseRegister:
		return "register"
	case PhaseRead:
		return "read"
	case PhaseWrite:
		return "write"
	case PhaseFlush:
		return "flush"
	default:
		return "unknown"
	}
}

// ConnError is a fatal per-connection I/O error. It terminates the owning
// task; the listener and every other connection are unaffected.
type ConnError struct {
	Phase ConnPhase
	FD    int
	Err   error
}

// Error implements the error interface.
func (e *ConnError) Error() string {
	return fmt.Sprintf("%s (fd=%d): %v", e.Phase, e.FD, e.Err)
}

// Unwrap exposes the underlying OS error.
func (e *ConnError) Unwrap() error { return e.Err }

// NewConnError wraps err with its phase and descriptor.
func NewConnError(phase ConnPhase, fd int, err error) *ConnError {
	return &ConnError{Phase: phase, FD: fd, Err: err}
}
