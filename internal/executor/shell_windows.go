//go:build windows

package executor

// shellCommand returns the interactive shell binary and its
// single-argument command flag.
func (e *Executor) shellCommand() (string, string) {
	if e.cfg.Shell != "" {
		return e.cfg.Shell, "-Command"
	}
	return "powershell", "-Command"
}
