//go:build !linux

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"net"

	"github.com/momentics/hioload-rt/api"
)

func sysListen(*net.TCPAddr) (int, *net.TCPAddr, error) { return -1, nil, api.ErrNotSupported }
func sysAccept(int) (int, *net.TCPAddr, error)          { return -1, nil, api.ErrNotSupported }
func sysRead(int, []byte) (int, error)                  { return 0, api.ErrNotSupported }
func sysWrite(int, []byte) (int, error)                 { return 0, api.ErrNotSupported }
func sysClose(int) error                                { return api.ErrNotSupported }
