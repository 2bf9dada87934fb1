package executor

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aurelia-ai/hostbridge/internal/metrics"
)

// recordingSink collects everything a Run call emits.
type recordingSink struct {
	mu     sync.Mutex
	stdout strings.Builder
	stderr strings.Builder
	exits  []int
}

func (s *recordingSink) Stdout(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stdout.WriteString(chunk)
}

func (s *recordingSink) Stderr(chunk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stderr.WriteString(chunk)
}

func (s *recordingSink) Exit(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exits = append(s.exits, code)
}

func (s *recordingSink) snapshot() (string, string, []int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stdout.String(), s.stderr.String(), append([]int(nil), s.exits...)
}

func newTestExecutor(cfg Config) *Executor {
	m := metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	return New(cfg, nil, m)
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test drives a POSIX shell")
	}
}

func TestRun_Stdout(t *testing.T) {
	skipOnWindows(t)

	e := newTestExecutor(Config{})
	sink := &recordingSink{}

	e.Run(context.Background(), "echo hello", t.TempDir(), sink)

	stdout, _, exits := sink.snapshot()
	if stdout != "hello\n" {
		t.Errorf("stdout = %q, want %q", stdout, "hello\n")
	}
	if len(exits) != 1 || exits[0] != 0 {
		t.Errorf("exits = %v, want [0]", exits)
	}
}

func TestRun_StderrAndExitCode(t *testing.T) {
	skipOnWindows(t)

	e := newTestExecutor(Config{})
	sink := &recordingSink{}

	e.Run(context.Background(), "echo oops >&2; exit 3", t.TempDir(), sink)

	_, stderr, exits := sink.snapshot()
	if stderr != "oops\n" {
		t.Errorf("stderr = %q, want %q", stderr, "oops\n")
	}
	if len(exits) != 1 || exits[0] != 3 {
		t.Errorf("exits = %v, want [3]", exits)
	}
}

func TestRun_ExitIsLastAndExactlyOnce(t *testing.T) {
	skipOnWindows(t)

	e := newTestExecutor(Config{})

	var mu sync.Mutex
	var order []string
	sink := &callbackSink{
		onStdout: func(string) { mu.Lock(); order = append(order, "out"); mu.Unlock() },
		onStderr: func(string) { mu.Lock(); order = append(order, "err"); mu.Unlock() },
		onExit:   func(int) { mu.Lock(); order = append(order, "exit"); mu.Unlock() },
	}

	e.Run(context.Background(), "echo a; echo b >&2; echo c", t.TempDir(), sink)

	mu.Lock()
	defer mu.Unlock()
	if len(order) == 0 || order[len(order)-1] != "exit" {
		t.Fatalf("exit must be last, got order %v", order)
	}
	exits := 0
	for _, o := range order {
		if o == "exit" {
			exits++
		}
	}
	if exits != 1 {
		t.Errorf("exit fired %d times, want 1", exits)
	}
}

func TestRun_WorkingDirectory(t *testing.T) {
	skipOnWindows(t)

	dir := t.TempDir()
	e := newTestExecutor(Config{})
	sink := &recordingSink{}

	e.Run(context.Background(), "pwd", dir, sink)

	stdout, _, _ := sink.snapshot()
	if strings.TrimSpace(stdout) != dir {
		t.Errorf("pwd = %q, want %q", strings.TrimSpace(stdout), dir)
	}
}

func TestRun_Timeout(t *testing.T) {
	skipOnWindows(t)

	e := newTestExecutor(Config{Timeout: 100 * time.Millisecond})
	sink := &recordingSink{}

	start := time.Now()
	e.Run(context.Background(), "sleep 5", t.TempDir(), sink)
	elapsed := time.Since(start)

	if elapsed > 3*time.Second {
		t.Fatalf("timeout did not kill the process, took %v", elapsed)
	}

	_, stderr, exits := sink.snapshot()
	if !strings.Contains(stderr, "timed out") {
		t.Errorf("stderr = %q, want timeout notice", stderr)
	}
	if len(exits) != 1 || exits[0] != -1 {
		t.Errorf("exits = %v, want [-1]", exits)
	}
}

func TestRun_ChunkOrderPreserved(t *testing.T) {
	skipOnWindows(t)

	e := newTestExecutor(Config{ChunkSize: 8})
	sink := &recordingSink{}

	e.Run(context.Background(), "for i in 1 2 3 4 5; do echo line$i; done", t.TempDir(), sink)

	stdout, _, _ := sink.snapshot()
	want := "line1\nline2\nline3\nline4\nline5\n"
	if stdout != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
}

func TestRun_Concurrent(t *testing.T) {
	skipOnWindows(t)

	e := newTestExecutor(Config{})
	dir := t.TempDir()

	var wg sync.WaitGroup
	sinks := make([]*recordingSink, 4)
	for i := range sinks {
		sinks[i] = &recordingSink{}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e.Run(context.Background(), "echo worker"+string(rune('0'+i)), dir, sinks[i])
		}(i)
	}
	wg.Wait()

	for i, sink := range sinks {
		stdout, _, exits := sink.snapshot()
		want := "worker" + string(rune('0'+i)) + "\n"
		if stdout != want {
			t.Errorf("sink %d stdout = %q, want %q", i, stdout, want)
		}
		if len(exits) != 1 || exits[0] != 0 {
			t.Errorf("sink %d exits = %v, want [0]", i, exits)
		}
	}
}

func TestIsBuiltinCD(t *testing.T) {
	tests := []struct {
		command string
		target  string
		ok      bool
	}{
		{"cd /tmp", "/tmp", true},
		{"cd projects", "projects", true},
		{"  cd ..  ", "..", true},
		{"cd", "", true},
		{`cd "My Documents"`, "My Documents", true},
		{"cd 'a dir'", "a dir", true},
		{"cd /tmp && ls", "", false},
		{"cd $HOME", "", false},
		{"cdecho", "", false},
		{"ls -la", "", false},
		{"", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.command, func(t *testing.T) {
			target, ok := IsBuiltinCD(tc.command)
			if ok != tc.ok || target != tc.target {
				t.Errorf("IsBuiltinCD(%q) = (%q, %v), want (%q, %v)",
					tc.command, target, ok, tc.target, tc.ok)
			}
		})
	}
}

// callbackSink routes sink calls to closures.
type callbackSink struct {
	onStdout func(string)
	onStderr func(string)
	onExit   func(int)
}

func (s *callbackSink) Stdout(chunk string) { s.onStdout(chunk) }
func (s *callbackSink) Stderr(chunk string) { s.onStderr(chunk) }
func (s *callbackSink) Exit(code int)       { s.onExit(code) }
