// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown is implemented by components that can stop accepting
// work and drain what is in flight.
type GracefulShutdown interface {
	// Shutdown requests a graceful stop. It does not wait for completion.
	Shutdown() error
}
