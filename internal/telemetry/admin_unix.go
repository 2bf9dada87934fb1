//go:build !windows

package telemetry

import "os"

// isAdmin reports whether the process runs as root.
func isAdmin() bool {
	return os.Geteuid() == 0
}
