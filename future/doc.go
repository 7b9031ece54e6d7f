// Package future
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Poll-based future combinators for the single-threaded scheduler in
// core/concurrency.
//
// A future is inert until polled. Every combinator here keeps its progress
// in explicit fields between polls, so a future that reports "not ready"
// and is polled again before its waker fires returns to the same state.
//
// Sequencing uses Chain, closures become futures with PollFn, Select races
// two futures, and SpawnBlocking moves blocking work to a dedicated OS
// thread that reports back through WakeRemote. None of the combinators
// supports cancellation: a future that loses a Select is simply dropped,
// and any resource it registered must be released by its owner.
package future
