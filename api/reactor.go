// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Narrow contract between the reactor and an OS readiness-multiplexing
// backend (epoll on Linux, an in-memory fake in tests).

package api

// Interest is the readiness a descriptor is registered for.
type Interest uint8

const (
	InterestRead Interest = 1 << iota
	InterestWrite

	InterestReadWrite = InterestRead | InterestWrite
)

func (i Interest) String() string {
	switch i {
	case InterestRead:
		return "read"
	case InterestWrite:
		return "write"
	case InterestReadWrite:
		return "read|write"
	default:
		return "none"
	}
}

// Multiplexer is the OS readiness facility seen by the reactor.
type Multiplexer interface {
	// Register starts watching fd. Registering an fd twice is an error.
	Register(fd int, interest Interest) error

	// Deregister stops watching fd.
	Deregister(fd int) error

	// Wait blocks up to timeoutMs (negative means forever) and appends the
	// ready descriptors to buf. An interrupted or woken wait returns an
	// empty slice and a nil error.
	Wait(timeoutMs int, buf []int) ([]int, error)

	// Wakeup interrupts a concurrent Wait. Safe from any goroutine.
	Wakeup() error

	// Close releases the backend.
	Close() error
}
