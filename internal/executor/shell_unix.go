//go:build !windows

package executor

import "os"

// shellCommand returns the interactive shell binary and its
// single-argument command flag.
func (e *Executor) shellCommand() (string, string) {
	if e.cfg.Shell != "" {
		return e.cfg.Shell, "-c"
	}
	if shell := os.Getenv("SHELL"); shell != "" {
		return shell, "-c"
	}
	return "/bin/sh", "-c"
}
