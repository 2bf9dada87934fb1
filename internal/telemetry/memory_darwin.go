//go:build darwin

package telemetry

import "golang.org/x/sys/unix"

// memoryTotal returns the physical memory size in bytes.
func memoryTotal() uint64 {
	size, err := unix.SysctlUint64("hw.memsize")
	if err != nil {
		return 0
	}
	return size
}
