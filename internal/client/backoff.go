// Package client implements the bridge's client side: socket
// lifecycle, port discovery with backoff, and request correlation.
package client

import (
	"context"
	"math"
	"sync"
	"time"
)

// BackoffConfig contains configuration for reconnection delays.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
	MaxRetries   int // 0 means unlimited
}

// DefaultBackoffConfig returns sensible defaults for reconnection.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
		MaxRetries:   0,
	}
}

// Backoff tracks reconnection attempts for one logical link. It owns
// at most one live timer; Reset and Stop cancel it.
type Backoff struct {
	cfg BackoffConfig

	mu        sync.Mutex
	attempts  int
	nextDelay time.Duration
	timer     *time.Timer
	closed    bool
}

// NewBackoff creates a backoff tracker.
func NewBackoff(cfg BackoffConfig) *Backoff {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultBackoffConfig().InitialDelay
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = DefaultBackoffConfig().Multiplier
	}
	return &Backoff{
		cfg:       cfg,
		nextDelay: cfg.InitialDelay,
	}
}

// Wait blocks for the next backoff delay, advancing the schedule. It
// returns ctx.Err() if the context ends first, and ErrRetriesExhausted
// once MaxRetries attempts have been consumed.
func (b *Backoff) Wait(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrManagerClosed
	}
	if b.cfg.MaxRetries > 0 && b.attempts >= b.cfg.MaxRetries {
		b.mu.Unlock()
		return ErrRetriesExhausted
	}

	b.attempts++
	delay := addJitter(b.nextDelay, b.cfg.Jitter)

	next := time.Duration(float64(b.nextDelay) * b.cfg.Multiplier)
	if next > b.cfg.MaxDelay {
		next = b.cfg.MaxDelay
	}
	b.nextDelay = next

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.NewTimer(delay)
	timer := b.timer
	b.mu.Unlock()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}

// Reset clears the schedule after a successful connection.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.attempts = 0
	b.nextDelay = b.cfg.InitialDelay
}

// Stop cancels any pending delay permanently.
func (b *Backoff) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

// Attempts returns the number of delays consumed since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// DelayForAttempt calculates the un-jittered delay for the given
// attempt number (0-indexed).
func (b *Backoff) DelayForAttempt(attempt int) time.Duration {
	if attempt <= 0 {
		return b.cfg.InitialDelay
	}

	delay := float64(b.cfg.InitialDelay) * math.Pow(b.cfg.Multiplier, float64(attempt))
	if delay > float64(b.cfg.MaxDelay) {
		delay = float64(b.cfg.MaxDelay)
	}
	return time.Duration(delay)
}

// addJitter adds random jitter to a duration.
func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}

	jitterRange := float64(d) * jitter
	offset := (float64(time.Now().UnixNano()%1000)/1000.0 - 0.5) * 2 * jitterRange

	result := time.Duration(float64(d) + offset)
	if result < 0 {
		result = d
	}
	return result
}
