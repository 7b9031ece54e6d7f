//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux epoll(7)-based multiplexer with an eventfd(2) for cross-thread
// wakeups.

package reactor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-rt/api"
)

const maxEpollEvents = 256

// epollMux is an edge-triggered epoll instance. Wait is called by the
// scheduler goroutine only; Wakeup may race with it.
type epollMux struct {
	epfd   int
	wakefd int
	events [maxEpollEvents]unix.EpollEvent
	closed atomic.Bool
}

// NewMultiplexer creates the platform multiplexer.
func NewMultiplexer() (api.Multiplexer, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, &ev); err != nil {
		_ = unix.Close(wakefd)
		_ = unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add eventfd: %w", err)
	}
	return &epollMux{epfd: epfd, wakefd: wakefd}, nil
}

func interestToEpoll(i api.Interest) uint32 {
	ev := uint32(unix.EPOLLET | unix.EPOLLRDHUP)
	if i&api.InterestRead != 0 {
		ev |= unix.EPOLLIN
	}
	if i&api.InterestWrite != 0 {
		ev |= unix.EPOLLOUT
	}
	return ev
}

func (m *epollMux) Register(fd int, interest api.Interest) error {
	if m.closed.Load() {
		return api.ErrMultiplexerClosed
	}
	ev := unix.EpollEvent{Events: interestToEpoll(interest), Fd: int32(fd)}
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

func (m *epollMux) Deregister(fd int) error {
	if m.closed.Load() {
		return api.ErrMultiplexerClosed
	}
	switch err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, fd, nil); {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.EBADF):
		return fmt.Errorf("epoll ctl del fd %d: %w", fd, api.ErrNotRegistered)
	case err != nil:
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

func (m *epollMux) Wait(timeoutMs int, buf []int) ([]int, error) {
	if m.closed.Load() {
		return buf, api.ErrMultiplexerClosed
	}
	if timeoutMs < 0 {
		timeoutMs = -1
	}
	n, err := unix.EpollWait(m.epfd, m.events[:], timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return buf, nil
		}
		return buf, fmt.Errorf("epoll wait: %w", err)
	}
	for i := 0; i < n; i++ {
		fd := int(m.events[i].Fd)
		if fd == m.wakefd {
			m.drainWakeup()
			continue
		}
		buf = append(buf, fd)
	}
	return buf, nil
}

func (m *epollMux) drainWakeup() {
	var b [8]byte
	for {
		if _, err := unix.Read(m.wakefd, b[:]); err != nil {
			return
		}
	}
}

func (m *epollMux) Wakeup() error {
	if m.closed.Load() {
		return api.ErrMultiplexerClosed
	}
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 1)
	if _, err := unix.Write(m.wakefd, b[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (m *epollMux) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	return errors.Join(unix.Close(m.wakefd), unix.Close(m.epfd))
}
