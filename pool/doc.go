// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable fixed-size byte buffers for per-connection request reads.
// See bytepool.go and objpool.go.
package pool
