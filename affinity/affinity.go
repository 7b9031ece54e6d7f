// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files (affinity_linux.go, affinity_stub.go) guarded by build tags.

package affinity

// SetAffinity pins the calling OS thread to logical CPU cpuID. The caller
// must hold runtime.LockOSThread, otherwise the pin lands on whichever
// thread happens to run the goroutine. The pin outlives UnlockOSThread.
// On unsupported platforms returns api.ErrNotSupported.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}

// Allowed returns the CPUs the calling thread may run on, in ascending order.
func Allowed() ([]int, error) {
	return allowedPlatform()
}
