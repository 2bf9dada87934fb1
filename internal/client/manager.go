package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aurelia-ai/hostbridge/internal/config"
	"github.com/aurelia-ai/hostbridge/internal/logging"
	"github.com/aurelia-ai/hostbridge/internal/metrics"
	"github.com/aurelia-ai/hostbridge/internal/protocol"
	"nhooyr.io/websocket"
)

// State represents the link lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthorizing
	StateAuthorized
	StateBackoff
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthorizing:
		return "authorizing"
	case StateAuthorized:
		return "authorized"
	case StateBackoff:
		return "backoff"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const maxFrameSize = 32 << 20

// PushHandler receives server messages not tied to any in-flight
// request: workdir announcements, unsolicited telemetry, late chunks.
type PushHandler func(*protocol.Message)

// Manager owns the client side of the bridge link: it discovers the
// agent across the candidate port range, authorizes, correlates
// requests, and reconnects with backoff when the link drops.
type Manager struct {
	cfg        config.ClientConfig
	logger     *slog.Logger
	metrics    *metrics.Metrics
	correlator *Correlator
	backoff    *Backoff
	onPush     PushHandler

	state atomic.Int32

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  bool

	authMu   sync.Mutex
	authedCh chan struct{}
}

// NewManager creates a link manager. The manager is inert until Run.
func NewManager(cfg config.ClientConfig, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if m == nil {
		m = metrics.Default()
	}
	if len(cfg.Ports) == 0 {
		cfg.Ports = config.DefaultPorts
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	mgr := &Manager{
		cfg:        cfg,
		logger:     logger.With(logging.KeyComponent, "client"),
		metrics:    m,
		correlator: NewCorrelator(cfg.RequestTimeout, logger, m),
		backoff: NewBackoff(BackoffConfig{
			InitialDelay: cfg.Reconnect.InitialDelay,
			MaxDelay:     cfg.Reconnect.MaxDelay,
			Multiplier:   cfg.Reconnect.Multiplier,
			Jitter:       cfg.Reconnect.Jitter,
			MaxRetries:   cfg.Reconnect.MaxRetries,
		}),
		authedCh: make(chan struct{}),
	}
	return mgr
}

// OnPush registers the handler for uncorrelated server messages. Must
// be called before Run.
func (m *Manager) OnPush(h PushHandler) {
	m.onPush = h
}

// State returns the current link state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		m.logger.Debug("link state changed",
			logging.KeyState, s.String(),
			"previous", old.String())
	}
}

// Run drives the connection lifecycle until ctx ends, Close is called,
// or MaxRetries is exhausted. Each cycle sweeps the candidate
// ports in order; a connection resets the backoff schedule, and every
// failed sweep consumes one backoff delay.
func (m *Manager) Run(ctx context.Context) error {
	for {
		if m.isClosed() {
			return ErrManagerClosed
		}

		connected := false
		for _, port := range m.cfg.Ports {
			if err := ctx.Err(); err != nil {
				m.setState(StateDisconnected)
				return err
			}

			m.setState(StateConnecting)
			conn, err := m.dial(ctx, port)
			if err != nil {
				m.logger.Debug("candidate port unavailable",
					logging.KeyPort, port,
					logging.KeyError, err)
				continue
			}

			m.logger.Info("connected to agent", logging.KeyPort, port)
			m.backoff.Reset()
			connected = true

			err = m.serve(ctx, conn)
			m.correlator.Abort(ErrConnectionClosed)
			m.setState(StateDisconnected)
			if m.isClosed() || ctx.Err() != nil {
				return err
			}
			if errors.Is(err, ErrAuthRejected) {
				// Retrying with the same rejected token cannot succeed.
				return err
			}
			m.logger.Warn("link lost, restarting discovery", logging.KeyError, err)
			break
		}

		if connected {
			continue
		}

		m.setState(StateBackoff)
		if err := m.backoff.Wait(ctx); err != nil {
			m.setState(StateDisconnected)
			return err
		}
	}
}

// dial attempts a single candidate port.
func (m *Manager) dial(ctx context.Context, port int) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	defer cancel()

	url := fmt.Sprintf("ws://%s:%d/bridge", m.cfg.Host, port)
	conn, resp, err := websocket.Dial(dialCtx, url, nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	conn.SetReadLimit(maxFrameSize)
	return conn, nil
}

// serve runs the handshake and read loop of one established
// connection. It returns when the connection drops or ctx ends.
func (m *Manager) serve(ctx context.Context, conn *websocket.Conn) error {
	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		// Replace the (possibly closed) gate so waiters block until the
		// next session authorizes instead of spinning.
		m.authMu.Lock()
		m.authedCh = make(chan struct{})
		m.authMu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	m.setState(StateAuthorizing)
	if m.cfg.Token != "" {
		if err := m.writeMessage(ctx, &protocol.Message{
			Type:  protocol.KindAuth,
			Token: m.cfg.Token,
		}); err != nil {
			return fmt.Errorf("send auth: %w", err)
		}
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			m.metrics.RecordProtocolFault()
			m.logger.Warn("dropping malformed frame", logging.KeyError, err)
			continue
		}
		m.metrics.RecordMessageReceived(string(msg.Type))

		switch msg.Type {
		case protocol.KindAuthSuccess:
			m.markAuthorized()
		case protocol.KindAuthFail:
			m.logger.Error("agent rejected authorization")
			return ErrAuthRejected
		default:
			if m.correlator.Dispatch(msg) {
				continue
			}
			if m.onPush != nil {
				m.onPush(msg)
			} else {
				m.logger.Debug("dropping uncorrelated message",
					logging.KeyKind, string(msg.Type))
			}
		}
	}
}

func (m *Manager) markAuthorized() {
	m.setState(StateAuthorized)
	m.authMu.Lock()
	select {
	case <-m.authedCh:
	default:
		close(m.authedCh)
	}
	m.authMu.Unlock()
	m.logger.Info("authorized")
}

// WaitAuthorized blocks until the link reaches the authorized state.
func (m *Manager) WaitAuthorized(ctx context.Context) error {
	for {
		m.authMu.Lock()
		ch := m.authedCh
		m.authMu.Unlock()

		if m.State() == StateAuthorized {
			return nil
		}
		select {
		case <-ch:
			if m.State() == StateAuthorized {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writeMessage serializes and sends one frame. Writes are serialized;
// the websocket connection does not allow concurrent writers.
func (m *Manager) writeMessage(ctx context.Context, msg *protocol.Message) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return err
	}
	m.metrics.RecordMessageSent(string(msg.Type))
	return nil
}

// roundTrip sends a tagged request and waits for its aggregated result.
func (m *Manager) roundTrip(ctx context.Context, msg *protocol.Message) (*Result, error) {
	if err := m.WaitAuthorized(ctx); err != nil {
		return nil, err
	}

	p := m.correlator.Track()
	msg.RequestID = p.ID

	if err := m.writeMessage(ctx, msg); err != nil {
		m.correlator.forget(p)
		return nil, err
	}
	return m.correlator.Wait(ctx, p)
}

// Execute runs a shell command (or builtin cd) on the host and returns
// the aggregated output once the process exits.
func (m *Manager) Execute(ctx context.Context, command string) (*Result, error) {
	return m.roundTrip(ctx, &protocol.Message{
		Type:    protocol.KindCommand,
		Content: command,
	})
}

// ReadFile reads a file relative to the agent's working directory.
func (m *Manager) ReadFile(ctx context.Context, path string) (string, error) {
	res, err := m.roundTrip(ctx, &protocol.Message{
		Type: protocol.KindRead,
		Path: path,
	})
	if err != nil {
		return "", err
	}
	if res.Terminal != nil && res.Terminal.Type == protocol.KindFileContent {
		return res.Terminal.Content, nil
	}
	return "", fmt.Errorf("read %s: %s", path, readFailure(res))
}

// WriteFile writes content to a file relative to the agent's working
// directory, creating parent directories as needed.
func (m *Manager) WriteFile(ctx context.Context, filename, content string) error {
	res, err := m.roundTrip(ctx, &protocol.Message{
		Type:     protocol.KindWrite,
		Filename: filename,
		Content:  content,
	})
	if err != nil {
		return err
	}
	if res.Terminal != nil && res.Terminal.Type == protocol.KindSystem {
		return nil
	}
	return fmt.Errorf("write %s: %s", filename, readFailure(res))
}

// Open asks the host to open a path or URL with its default handler.
// Fire-and-forget: the agent sends no reply.
func (m *Manager) Open(ctx context.Context, target string) error {
	if err := m.WaitAuthorized(ctx); err != nil {
		return err
	}
	return m.writeMessage(ctx, &protocol.Message{
		Type:   protocol.KindOpen,
		Target: target,
	})
}

// Telemetry requests a fresh host telemetry snapshot.
func (m *Manager) Telemetry(ctx context.Context) (*protocol.Message, error) {
	res, err := m.roundTrip(ctx, &protocol.Message{
		Type: protocol.KindGetConfig,
	})
	if err != nil {
		return nil, err
	}
	if res.Terminal == nil || res.Terminal.Type != protocol.KindConfig {
		return nil, fmt.Errorf("telemetry: %s", readFailure(res))
	}
	return res.Terminal, nil
}

// readFailure summarizes an unexpected terminal for error reporting.
func readFailure(res *Result) string {
	if res.Errors != "" {
		return res.Errors
	}
	if res.Terminal != nil && res.Terminal.Content != "" {
		return res.Terminal.Content
	}
	return "unexpected response"
}

// Close shuts the manager down. In-flight requests abort and Run
// returns.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	conn := m.conn
	m.mu.Unlock()

	m.backoff.Stop()
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}
	m.correlator.Abort(ErrManagerClosed)
	m.setState(StateClosed)
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
