// Package workdir resolves paths against a connection-scoped working
// directory and performs the bridge's file operations.
package workdir

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Resolve resolves p against base. Absolute paths pass through; the
// result is cleaned. base must be absolute.
func Resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Clean(filepath.Join(base, p))
}

// ChangeDir resolves target against base and verifies it is an
// existing directory. Returns the new absolute working directory.
func ChangeDir(base, target string) (string, error) {
	resolved := Resolve(base, target)

	info, err := os.Stat(resolved)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("Directory not found: %s", target)
	}

	return resolved, nil
}

// ReadFile resolves path against base and returns the file's full
// contents.
func ReadFile(base, path string) (string, error) {
	resolved := Resolve(base, path)

	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", resolved, err)
	}
	return string(data), nil
}

// WriteFile resolves filename against base, creates missing parent
// directories, and writes content. Returns the resolved path.
func WriteFile(base, filename, content string) (string, error) {
	resolved := Resolve(base, filename)

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("failed to create parent directories for %s: %w", resolved, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", resolved, err)
	}
	return resolved, nil
}

// OpenWithDefaultHandler opens a path or URL with the platform's
// default handler. Fire-and-forget: the spawned opener is not waited
// on and produces no reply.
func OpenWithDefaultHandler(base, target string) error {
	if strings.TrimSpace(target) == "" {
		return fmt.Errorf("empty open target")
	}

	// URLs go through untouched; everything else resolves like a path.
	if !looksLikeURL(target) {
		target = Resolve(base, target)
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", target)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", target)
	default:
		cmd = exec.Command("xdg-open", target)
	}
	return cmd.Start()
}

func looksLikeURL(s string) bool {
	return strings.Contains(s, "://")
}

// DefaultBase returns the initial working directory for new
// connections: the configured directory if set, otherwise the process
// cwd.
func DefaultBase(configured string) (string, error) {
	if configured != "" {
		abs, err := filepath.Abs(configured)
		if err != nil {
			return "", fmt.Errorf("invalid working directory %s: %w", configured, err)
		}
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			return "", fmt.Errorf("working directory %s is not a directory", abs)
		}
		return abs, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to determine process cwd: %w", err)
	}
	return cwd, nil
}
