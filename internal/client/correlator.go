package client

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aurelia-ai/hostbridge/internal/logging"
	"github.com/aurelia-ai/hostbridge/internal/metrics"
	"github.com/aurelia-ai/hostbridge/internal/protocol"
	"github.com/google/uuid"
)

// Result is the aggregated outcome of one correlated request. Output
// and Errors hold the concatenated streamed chunks in arrival order,
// Combined interleaves both streams as they arrived, and Terminal is
// the message that resolved the request.
type Result struct {
	Output   string
	Errors   string
	Combined string
	Terminal *protocol.Message
}

// ExitCode returns the process exit code carried by the terminal
// message, or -1 when the terminal carries none.
func (r *Result) ExitCode() int {
	if r.Terminal != nil && r.Terminal.Code != nil {
		return *r.Terminal.Code
	}
	return -1
}

// Content returns the terminal message's own payload, e.g. file
// contents for a read request or a status line for a write.
func (r *Result) Content() string {
	if r.Terminal == nil {
		return ""
	}
	return r.Terminal.Content
}

type outcome struct {
	result *Result
	err    error
}

// Pending tracks one in-flight request until its terminal message.
type Pending struct {
	ID string

	ch chan outcome

	mu       sync.Mutex
	out      strings.Builder
	errs     strings.Builder
	combined strings.Builder
	timer    *time.Timer
	resolved bool
}

// Correlator matches tagged responses to in-flight requests. Streaming
// kinds accumulate into the request's buffers; terminal kinds resolve
// the waiting caller exactly once. Messages without a known request id
// are left for the push handler.
type Correlator struct {
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	pending map[string]*Pending
}

// NewCorrelator creates a correlator. A zero timeout disables
// per-request deadlines.
func NewCorrelator(timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Correlator {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if m == nil {
		m = metrics.Default()
	}
	return &Correlator{
		timeout: timeout,
		logger:  logger,
		metrics: m,
		pending: make(map[string]*Pending),
	}
}

// Track registers a new in-flight request under a fresh unique id.
func (c *Correlator) Track() *Pending {
	p := &Pending{
		ID: uuid.NewString(),
		ch: make(chan outcome, 1),
	}

	c.mu.Lock()
	c.pending[p.ID] = p
	c.mu.Unlock()

	c.metrics.RecordRequestPending()

	if c.timeout > 0 {
		p.mu.Lock()
		p.timer = time.AfterFunc(c.timeout, func() {
			c.metrics.RecordRequestTimeout()
			c.resolve(p, nil, ErrRequestTimeout)
		})
		p.mu.Unlock()
	}
	return p
}

// Dispatch routes a tagged message to its pending request. It reports
// whether the message was consumed; the caller hands unconsumed
// messages to the push handler.
func (c *Correlator) Dispatch(msg *protocol.Message) bool {
	if msg.RequestID == "" {
		return false
	}

	c.mu.Lock()
	p, ok := c.pending[msg.RequestID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug("dropping response for unknown request",
			logging.KeyRequestID, msg.RequestID,
			logging.KeyKind, string(msg.Type))
		return false
	}

	switch {
	case protocol.IsStreaming(msg.Type):
		p.mu.Lock()
		if !p.resolved {
			if msg.Type == protocol.KindOutput {
				p.out.WriteString(msg.Content)
			} else {
				p.errs.WriteString(msg.Content)
			}
			p.combined.WriteString(msg.Content)
		}
		p.mu.Unlock()
		return true

	case protocol.IsTerminal(msg.Type):
		c.resolve(p, msg, nil)
		return true
	}

	c.logger.Debug("tagged message is neither streaming nor terminal",
		logging.KeyRequestID, msg.RequestID,
		logging.KeyKind, string(msg.Type))
	return false
}

// Wait blocks until the request resolves or ctx ends. A context
// cancellation abandons the request without consuming a late terminal.
func (c *Correlator) Wait(ctx context.Context, p *Pending) (*Result, error) {
	select {
	case o := <-p.ch:
		return o.result, o.err
	case <-ctx.Done():
		c.forget(p)
		return nil, ctx.Err()
	}
}

// Abort resolves every pending request with err. Used when the
// underlying connection drops.
func (c *Correlator) Abort(err error) {
	c.mu.Lock()
	aborted := make([]*Pending, 0, len(c.pending))
	for _, p := range c.pending {
		aborted = append(aborted, p)
	}
	c.mu.Unlock()

	for _, p := range aborted {
		c.resolve(p, nil, err)
	}
}

// resolve completes a pending request at most once, detaching it from
// the correlator and stopping its deadline timer. Later terminal or
// streamed messages for the same id are ignored.
func (c *Correlator) resolve(p *Pending, terminal *protocol.Message, err error) {
	p.mu.Lock()
	if p.resolved {
		p.mu.Unlock()
		return
	}
	p.resolved = true
	if p.timer != nil {
		p.timer.Stop()
	}
	o := outcome{err: err}
	if err == nil {
		o.result = &Result{
			Output:   p.out.String(),
			Errors:   p.errs.String(),
			Combined: p.combined.String(),
			Terminal: terminal,
		}
	}
	p.mu.Unlock()

	c.forget(p)
	p.ch <- o
}

func (c *Correlator) forget(p *Pending) {
	c.mu.Lock()
	_, tracked := c.pending[p.ID]
	delete(c.pending, p.ID)
	c.mu.Unlock()

	if tracked {
		c.metrics.RecordRequestResolved()
	}
}

// PendingCount returns the number of in-flight requests.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
