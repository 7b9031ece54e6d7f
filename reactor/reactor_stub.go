//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import (
	"fmt"

	"github.com/momentics/hioload-rt/api"
)

// NewMultiplexer returns an error for unsupported platforms.
func NewMultiplexer() (api.Multiplexer, error) {
	return nil, fmt.Errorf("reactor: %w on this platform", api.ErrNotSupported)
}
