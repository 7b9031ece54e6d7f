// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking TCP sockets over raw file descriptors. Every call returns
// api.ErrWouldBlock instead of parking the caller, so the owner registers
// the descriptor with the reactor and retries on readiness. Linux only;
// other platforms get constructors returning api.ErrNotSupported.

package transport
