// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "github.com/momentics/hioload-rt/api"

var (
	// ErrSchedulerRunning is returned by a second call to Scheduler.Run.
	ErrSchedulerRunning = api.ErrSchedulerRunning

	// ErrCounterUnderflow is returned by Counter.Decrement at zero.
	ErrCounterUnderflow = api.ErrCounterUnderflow
)
