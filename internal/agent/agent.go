// Package agent implements the host-side bridge: a loopback listener
// that authorizes clients, executes their commands, and streams
// results back over a single long-lived socket per client.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/aurelia-ai/hostbridge/internal/config"
	"github.com/aurelia-ai/hostbridge/internal/executor"
	"github.com/aurelia-ai/hostbridge/internal/logging"
	"github.com/aurelia-ai/hostbridge/internal/metrics"
	"github.com/aurelia-ai/hostbridge/internal/workdir"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"nhooyr.io/websocket"
)

const maxFrameSize = 32 << 20

// ErrNoPortAvailable is returned when every candidate port is already
// bound by another process.
var ErrNoPortAvailable = errors.New("agent: all candidate ports in use")

// Server is the host agent. It binds the first free candidate port and
// serves the bridge endpoint plus optional Prometheus exposition.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	exec    *executor.Executor
	baseDir string

	httpServer *http.Server
	listener   net.Listener
	port       int

	mu     sync.Mutex
	closed bool
}

// NewServer creates an agent from a validated configuration.
func NewServer(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*Server, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if m == nil {
		m = metrics.Default()
	}

	baseDir, err := workdir.DefaultBase(cfg.Bridge.WorkingDirectory)
	if err != nil {
		return nil, err
	}

	exec := executor.New(executor.Config{
		Shell:     cfg.Exec.Shell,
		Timeout:   cfg.Exec.CommandTimeout,
		ChunkSize: cfg.Exec.ChunkSize,
	}, logger, m)

	return &Server{
		cfg:     cfg,
		logger:  logger.With(logging.KeyComponent, "agent"),
		metrics: m,
		exec:    exec,
		baseDir: baseDir,
	}, nil
}

// Listen walks the candidate port list in order and binds the first
// port not already in use. Ports held by other processes are skipped;
// any other bind error is fatal. Returns the bound port.
func (s *Server) Listen() (int, error) {
	host := s.cfg.Bridge.Host
	if host == "" {
		host = "127.0.0.1"
	}
	ports := s.cfg.Bridge.Ports
	if len(ports) == 0 {
		ports = config.DefaultPorts
	}

	for _, port := range ports {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err != nil {
			if errors.Is(err, syscall.EADDRINUSE) {
				s.logger.Debug("candidate port occupied", logging.KeyPort, port)
				continue
			}
			return 0, fmt.Errorf("bind %s:%d: %w", host, port, err)
		}

		s.listener = ln
		s.port = port
		s.logger.Info("listening", logging.KeyLocalAddr, ln.Addr().String())
		return port, nil
	}

	return 0, fmt.Errorf("%w: %v", ErrNoPortAvailable, ports)
}

// Port returns the bound port, 0 before Listen.
func (s *Server) Port() int {
	return s.port
}

// Run serves connections until ctx ends or Shutdown is called. It
// binds a port first if Listen has not been called.
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if _, err := s.Listen(); err != nil {
			return err
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/bridge", s.handleBridge)
	if s.cfg.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:      mux,
		BaseContext:  func(net.Listener) context.Context { return ctx },
		ReadTimeout:  0, // long-lived sockets
		WriteTimeout: 0,
	}
	srv := s.httpServer
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()

	err := srv.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and closes the listener.
// Existing connections are torn down by the HTTP server close.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	srv := s.httpServer
	s.mu.Unlock()

	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
		}
	} else if s.listener != nil {
		s.listener.Close()
	}
	s.logger.Info("agent stopped")
}

// handleBridge upgrades an HTTP request to the bridge socket and
// serves it until the peer disconnects.
func (s *Server) handleBridge(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Local non-browser clients; the loopback bind plus the token
		// handshake are the trust boundary, not the Origin header.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("upgrade failed",
			logging.KeyRemoteAddr, r.RemoteAddr,
			logging.KeyError, err)
		return
	}
	ws.SetReadLimit(maxFrameSize)

	c := newConnection(s, ws, r.RemoteAddr)
	c.serve(r.Context())
}
