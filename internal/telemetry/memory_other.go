//go:build !linux && !darwin && !windows

package telemetry

// memoryTotal is unknown on platforms without a probe.
func memoryTotal() uint64 {
	return 0
}
