// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

// Package fake provides in-memory stand-ins for OS facilities used by the
// runtime, for deterministic tests.
package fake

import (
	"fmt"
	"sync"
	"time"

	"github.com/momentics/hioload-rt/api"
)

var _ api.Multiplexer = (*Multiplexer)(nil)

// Multiplexer is a readiness multiplexer driven by the test. Readiness is
// injected with Ready; Wait hands out every pending descriptor that is
// still registered, mirroring how the kernel forgets removed descriptors.
type Multiplexer struct {
	mu         sync.Mutex
	registered map[int]api.Interest
	pending    []int
	kick       chan struct{}
	closed     bool
	waits      int
	deregErr   error
}

// NewMultiplexer returns an empty fake.
func NewMultiplexer() *Multiplexer {
	return &Multiplexer{
		registered: make(map[int]api.Interest),
		kick:       make(chan struct{}, 1),
	}
}

func (m *Multiplexer) Register(fd int, interest api.Interest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return api.ErrMultiplexerClosed
	}
	if _, ok := m.registered[fd]; ok {
		return fmt.Errorf("fake: fd %d: %w", fd, api.ErrAlreadyRegistered)
	}
	m.registered[fd] = interest
	return nil
}

func (m *Multiplexer) Deregister(fd int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return api.ErrMultiplexerClosed
	}
	if m.deregErr != nil {
		return m.deregErr
	}
	if _, ok := m.registered[fd]; !ok {
		return fmt.Errorf("fake: fd %d: %w", fd, api.ErrNotRegistered)
	}
	delete(m.registered, fd)
	return nil
}

func (m *Multiplexer) Wait(timeoutMs int, buf []int) ([]int, error) {
	var timer <-chan time.Time
	if timeoutMs > 0 {
		t := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
		defer t.Stop()
		timer = t.C
	}

	m.mu.Lock()
	m.waits++
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return buf, api.ErrMultiplexerClosed
		}
		if len(m.pending) > 0 {
			for _, fd := range m.pending {
				if _, ok := m.registered[fd]; ok {
					buf = append(buf, fd)
				}
			}
			m.pending = m.pending[:0]
			m.mu.Unlock()
			return buf, nil
		}
		m.mu.Unlock()

		if timeoutMs == 0 {
			return buf, nil
		}
		select {
		case <-m.kick:
			m.mu.Lock()
			woken := len(m.pending) == 0
			m.mu.Unlock()
			if woken {
				return buf, nil
			}
		case <-timer:
			return buf, nil
		}
	}
}

func (m *Multiplexer) Wakeup() error {
	select {
	case m.kick <- struct{}{}:
	default:
	}
	return nil
}

func (m *Multiplexer) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.Wakeup()
}

// Ready marks fds as ready and releases a blocked Wait.
func (m *Multiplexer) Ready(fds ...int) {
	m.mu.Lock()
	m.pending = append(m.pending, fds...)
	m.mu.Unlock()
	_ = m.Wakeup()
}

// FailDeregister makes every Deregister return err until called with nil.
// The registration is left in place, as the kernel would.
func (m *Multiplexer) FailDeregister(err error) {
	m.mu.Lock()
	m.deregErr = err
	m.mu.Unlock()
}

// Registered reports whether fd is registered and with which interest.
func (m *Multiplexer) Registered(fd int) (api.Interest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.registered[fd]
	return i, ok
}

// Len returns the number of registered descriptors.
func (m *Multiplexer) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registered)
}

// Waits returns how many times Wait was entered.
func (m *Multiplexer) Waits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waits
}
