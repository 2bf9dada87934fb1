//go:build linux

package telemetry

import "golang.org/x/sys/unix"

// memoryTotal returns the physical memory size in bytes.
func memoryTotal() uint64 {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return 0
	}
	return uint64(si.Totalram) * uint64(si.Unit)
}
