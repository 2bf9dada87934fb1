// Package executor spawns host-shell processes for the bridge and
// streams their output back to the caller.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/aurelia-ai/hostbridge/internal/logging"
	"github.com/aurelia-ai/hostbridge/internal/metrics"
)

// Sink receives a command's streamed output. Stdout and Stderr may be
// called many times, in the order the process emitted the data; Exit
// is called exactly once, last.
type Sink interface {
	Stdout(chunk string)
	Stderr(chunk string)
	Exit(code int)
}

// Config tunes the executor.
type Config struct {
	// Shell overrides the platform shell binary.
	Shell string

	// Timeout bounds each command. Zero means unbounded.
	Timeout time.Duration

	// ChunkSize is the read buffer size for each output stream.
	ChunkSize int
}

// Executor runs shell commands. One host-shell process is spawned per
// command; concurrent Run calls are independent.
type Executor struct {
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates an executor. A nil logger discards output.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Executor {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 4096
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	if m == nil {
		m = metrics.Default()
	}
	return &Executor{
		cfg:     cfg,
		logger:  logger.With(logging.KeyComponent, "executor"),
		metrics: m,
	}
}

// IsBuiltinCD reports whether command is the builtin cd, and if so
// returns its target. Compound commands ("cd x && make") are not
// builtins and go to the shell.
func IsBuiltinCD(command string) (string, bool) {
	trimmed := strings.TrimSpace(command)
	if trimmed == "cd" {
		return "", true
	}
	if !strings.HasPrefix(trimmed, "cd ") {
		return "", false
	}

	target := strings.TrimSpace(trimmed[len("cd "):])
	if target == "" || strings.ContainsAny(target, "&|;<>$`") {
		return "", false
	}

	// Quoted targets keep their inner spaces.
	if len(target) >= 2 {
		if (target[0] == '"' && target[len(target)-1] == '"') ||
			(target[0] == '\'' && target[len(target)-1] == '\'') {
			target = target[1 : len(target)-1]
		}
	}
	return target, true
}

// Run executes command in dir, streaming output into sink. It blocks
// until the process ends and the Exit code has been delivered; callers
// wanting concurrency run it in a goroutine.
func (e *Executor) Run(ctx context.Context, command, dir string, sink Sink) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	shell, flag := e.shellCommand()
	cmd := exec.CommandContext(ctx, shell, flag, command)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		sink.Stderr(fmt.Sprintf("failed to open stdout: %v", err))
		sink.Exit(-1)
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		sink.Stderr(fmt.Sprintf("failed to open stderr: %v", err))
		sink.Exit(-1)
		return
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		sink.Stderr(fmt.Sprintf("failed to spawn %s: %v", shell, err))
		sink.Exit(-1)
		return
	}

	e.metrics.RecordCommandStart()
	e.logger.Debug("command started",
		logging.KeyWorkdir, dir,
		"shell", shell,
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.pump(stdout, sink.Stdout)
	}()
	go func() {
		defer wg.Done()
		e.pump(stderr, sink.Stderr)
	}()

	// Both pipes must drain before Wait, and before the exit code is
	// emitted: the exit message is terminal for the request.
	wg.Wait()
	waitErr := cmd.Wait()

	code := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			sink.Stderr(fmt.Sprintf("command timed out after %v", e.cfg.Timeout))
			code = -1
		case errors.As(waitErr, &exitErr):
			code = exitErr.ExitCode()
		default:
			sink.Stderr(waitErr.Error())
			code = -1
		}
	}

	e.metrics.RecordCommandEnd(time.Since(start).Seconds())
	e.logger.Debug("command finished",
		logging.KeyExitCode, code,
		logging.KeyDuration, time.Since(start),
	)

	sink.Exit(code)
}

// pump forwards r to emit in ChunkSize pieces until EOF.
func (e *Executor) pump(r io.Reader, emit func(string)) {
	buf := make([]byte, e.cfg.ChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			emit(string(buf[:n]))
		}
		if err != nil {
			return
		}
	}
}
