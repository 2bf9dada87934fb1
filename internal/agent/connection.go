package agent

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/aurelia-ai/hostbridge/internal/executor"
	"github.com/aurelia-ai/hostbridge/internal/logging"
	"github.com/aurelia-ai/hostbridge/internal/metrics"
	"github.com/aurelia-ai/hostbridge/internal/protocol"
	"github.com/aurelia-ai/hostbridge/internal/telemetry"
	"github.com/aurelia-ai/hostbridge/internal/workdir"
	"nhooyr.io/websocket"
)

type connState int32

const (
	stateUnauthenticated connState = iota
	stateAuthorized
	stateClosed
)

// connection is one client socket. Each connection holds its own
// working directory; concurrent clients never observe each other's cd.
type connection struct {
	server  *Server
	conn    *websocket.Conn
	logger  *slog.Logger
	metrics *metrics.Metrics
	exec    *executor.Executor

	state   atomic.Int32
	writeMu sync.Mutex

	workMu  sync.Mutex
	workdir string
}

func newConnection(s *Server, ws *websocket.Conn, remoteAddr string) *connection {
	return &connection{
		server:  s,
		conn:    ws,
		logger:  s.logger.With(logging.KeyRemoteAddr, remoteAddr),
		metrics: s.metrics,
		exec:    s.exec,
		workdir: s.baseDir,
	}
}

func (c *connection) authorized() bool {
	return connState(c.state.Load()) == stateAuthorized
}

// serve is the connection's read loop. It runs the handshake, then
// dispatches decoded requests until the peer disconnects.
func (c *connection) serve(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("connection handler panic", logging.KeyError, r)
		}
		c.state.Store(int32(stateClosed))
		c.conn.Close(websocket.StatusNormalClosure, "")
		c.metrics.RecordConnectionClose()
		c.logger.Info("connection closed")
	}()

	c.metrics.RecordConnectionOpen()
	c.logger.Info("connection accepted")

	// No configured token means connections are implicitly trusted:
	// greet immediately instead of waiting for an auth frame.
	if c.server.cfg.Bridge.Token == "" {
		c.authorize(ctx)
	}

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		req, err := protocol.DecodeRequest(data)
		if err != nil {
			c.metrics.RecordProtocolFault()
			var unknown *protocol.UnknownKindError
			if errors.As(err, &unknown) {
				c.logger.Warn("dropping frame of unknown kind",
					logging.KeyKind, string(unknown.Kind))
			} else {
				c.logger.Warn("dropping malformed frame", logging.KeyError, err)
			}
			continue
		}

		c.metrics.RecordMessageReceived(kindOf(req))

		if auth, ok := req.(protocol.Auth); ok {
			if !c.handleAuth(ctx, auth) {
				return
			}
			continue
		}

		if !c.authorized() {
			// Pre-handshake traffic produces no side effects.
			c.logger.Warn("dropping request before authorization")
			continue
		}

		switch r := req.(type) {
		case protocol.Command:
			go c.handleCommand(ctx, r)
		case protocol.Read:
			c.handleRead(ctx, r)
		case protocol.Write:
			c.handleWrite(ctx, r)
		case protocol.Open:
			c.handleOpen(r)
		case protocol.GetConfig:
			c.handleGetConfig(ctx, r)
		}
	}
}

func kindOf(r protocol.Request) string {
	switch r.(type) {
	case protocol.Auth:
		return string(protocol.KindAuth)
	case protocol.Command:
		return string(protocol.KindCommand)
	case protocol.Read:
		return string(protocol.KindRead)
	case protocol.Write:
		return string(protocol.KindWrite)
	case protocol.Open:
		return string(protocol.KindOpen)
	case protocol.GetConfig:
		return string(protocol.KindGetConfig)
	default:
		return "unknown"
	}
}

// handleAuth validates the presented token. Returns false when the
// connection must close.
func (c *connection) handleAuth(ctx context.Context, req protocol.Auth) bool {
	if c.authorized() {
		// Re-auth on a live connection is harmless; just re-ack.
		c.send(ctx, protocol.NewAuthSuccess())
		return true
	}

	token := c.server.cfg.Bridge.Token
	if token != "" && subtle.ConstantTimeCompare([]byte(token), []byte(req.Token)) != 1 {
		c.metrics.RecordAuthFailure()
		c.logger.Warn("authorization failed")
		c.send(ctx, protocol.NewAuthFail())
		c.conn.Close(websocket.StatusPolicyViolation, "authorization failed")
		return false
	}

	c.authorize(ctx)
	return true
}

// authorize moves the connection to the authorized state and pushes
// the greeting sequence: auth_success, a telemetry snapshot, and the
// connection's working directory.
func (c *connection) authorize(ctx context.Context) {
	c.state.Store(int32(stateAuthorized))
	c.logger.Info("connection authorized")

	c.send(ctx, protocol.NewAuthSuccess())

	snap := telemetry.Collect()
	c.send(ctx, protocol.NewConfig("", snap.Platform, snap.Arch, snap.Hostname, snap.IsAdmin, snap.MemoryTotal))
	c.send(ctx, protocol.NewCwd("", c.workingDir()))
}

func (c *connection) workingDir() string {
	c.workMu.Lock()
	defer c.workMu.Unlock()
	return c.workdir
}

func (c *connection) setWorkingDir(dir string) {
	c.workMu.Lock()
	c.workdir = dir
	c.workMu.Unlock()
}

// handleCommand runs a shell command, or handles the cd builtin
// in-process so the directory change persists for the connection.
func (c *connection) handleCommand(ctx context.Context, req protocol.Command) {
	logger := c.logger.With(logging.KeyRequestID, req.RequestID)

	if target, ok := executor.IsBuiltinCD(req.Content); ok {
		c.changeDir(ctx, req.RequestID, target, logger)
		return
	}

	logger.Info("executing command", logging.KeyWorkdir, c.workingDir())
	sink := &wireSink{conn: c, ctx: ctx, requestID: req.RequestID}
	c.exec.Run(ctx, req.Content, c.workingDir(), sink)
}

// changeDir applies the cd builtin. A bare cd goes to the user's home
// directory. Failure leaves the working directory untouched.
func (c *connection) changeDir(ctx context.Context, requestID, target string, logger *slog.Logger) {
	if target == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			c.send(ctx, protocol.NewErrorChunk(requestID, "Directory not found: ~"))
			c.send(ctx, protocol.NewExit(requestID, 1))
			return
		}
		target = home
	}

	dir, err := workdir.ChangeDir(c.workingDir(), target)
	if err != nil {
		logger.Warn("cd failed", logging.KeyError, err)
		c.send(ctx, protocol.NewErrorChunk(requestID, err.Error()))
		c.send(ctx, protocol.NewExit(requestID, 1))
		return
	}

	c.setWorkingDir(dir)
	logger.Info("working directory changed", logging.KeyWorkdir, dir)
	c.send(ctx, protocol.NewCwd(requestID, dir))
	c.send(ctx, protocol.NewExit(requestID, 0))
}

func (c *connection) handleRead(ctx context.Context, req protocol.Read) {
	content, err := workdir.ReadFile(c.workingDir(), req.Path)
	if err != nil {
		c.metrics.RecordFileRead(false)
		c.logger.Warn("read failed", logging.KeyRequestID, req.RequestID, logging.KeyError, err)
		c.send(ctx, protocol.NewErrorChunk(req.RequestID, err.Error()))
		c.send(ctx, protocol.NewExit(req.RequestID, 1))
		return
	}

	c.metrics.RecordFileRead(true)
	c.send(ctx, protocol.NewFileContent(req.RequestID, content))
}

func (c *connection) handleWrite(ctx context.Context, req protocol.Write) {
	resolved, err := workdir.WriteFile(c.workingDir(), req.Filename, req.Content)
	if err != nil {
		c.metrics.RecordFileWrite(false)
		c.logger.Warn("write failed", logging.KeyRequestID, req.RequestID, logging.KeyError, err)
		c.send(ctx, protocol.NewErrorChunk(req.RequestID, err.Error()))
		c.send(ctx, protocol.NewExit(req.RequestID, 1))
		return
	}

	c.metrics.RecordFileWrite(true)
	c.send(ctx, protocol.NewSystem(req.RequestID, "File written: "+resolved))
}

// handleOpen spawns the platform opener and produces no reply, not
// even on failure.
func (c *connection) handleOpen(req protocol.Open) {
	if err := workdir.OpenWithDefaultHandler(c.workingDir(), req.Target); err != nil {
		c.logger.Warn("open failed", logging.KeyError, err)
	}
}

func (c *connection) handleGetConfig(ctx context.Context, req protocol.GetConfig) {
	snap := telemetry.Collect()
	c.send(ctx, protocol.NewConfig(req.RequestID, snap.Platform, snap.Arch, snap.Hostname, snap.IsAdmin, snap.MemoryTotal))
}

// send serializes and writes one frame. Writes are serialized because
// command pumps and the read loop share the socket.
func (c *connection) send(ctx context.Context, msg *protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		c.logger.Error("encode failed", logging.KeyKind, string(msg.Type), logging.KeyError, err)
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.logger.Debug("write failed", logging.KeyKind, string(msg.Type), logging.KeyError, err)
		return
	}
	c.metrics.RecordMessageSent(string(msg.Type))
}

// wireSink adapts executor output to tagged wire messages.
type wireSink struct {
	conn      *connection
	ctx       context.Context
	requestID string
}

func (s *wireSink) Stdout(chunk string) {
	s.conn.send(s.ctx, protocol.NewOutput(s.requestID, chunk))
}

func (s *wireSink) Stderr(chunk string) {
	s.conn.send(s.ctx, protocol.NewErrorChunk(s.requestID, chunk))
}

func (s *wireSink) Exit(code int) {
	s.conn.send(s.ctx, protocol.NewExit(s.requestID, code))
}
