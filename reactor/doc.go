// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor bridges OS readiness notification to the waker model.
//
// A Reactor maps file descriptors to the waker of the task interested in
// them. The scheduler calls WaitAndWake when its run-queue is empty; that
// call is the only place the runtime blocks. The OS facility sits behind
// api.Multiplexer: epoll on Linux, fake.Multiplexer in tests.
//
// A descriptor must be removed before it is closed. Otherwise the kernel
// may hand the same number to a new socket and the stale entry would wake
// the wrong task.
package reactor
