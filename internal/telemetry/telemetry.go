// Package telemetry gathers point-in-time host facts for the bridge's
// config messages.
package telemetry

import (
	"os"
	"runtime"
)

// Snapshot is an immutable report of host platform, privilege, and
// resource facts. Computed fresh per request, never cached.
type Snapshot struct {
	Platform    string // GOOS name: linux, darwin, windows
	Arch        string // GOARCH name: amd64, arm64, ...
	Hostname    string
	IsAdmin     bool   // root on POSIX, elevated token on Windows
	MemoryTotal uint64 // bytes of physical memory, 0 if unknown
}

// Collect produces a fresh snapshot.
func Collect() Snapshot {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return Snapshot{
		Platform:    runtime.GOOS,
		Arch:        runtime.GOARCH,
		Hostname:    hostname,
		IsAdmin:     isAdmin(),
		MemoryTotal: memoryTotal(),
	}
}
