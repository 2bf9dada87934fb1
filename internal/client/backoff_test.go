package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoffDelaySchedule(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	})

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // capped
		30 * time.Second,
	}
	for attempt, w := range want {
		if got := b.DelayForAttempt(attempt); got != w {
			t.Errorf("DelayForAttempt(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestBackoffWaitAdvances(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	})

	for i := 1; i <= 3; i++ {
		if err := b.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() #%d error = %v", i, err)
		}
		if b.Attempts() != i {
			t.Errorf("Attempts() = %d after %d waits", b.Attempts(), i)
		}
	}

	b.Reset()
	if b.Attempts() != 0 {
		t.Errorf("Attempts() = %d after Reset, want 0", b.Attempts())
	}
}

func TestBackoffWaitContextCancel(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 10 * time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Wait(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Wait() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait() did not return after context cancellation")
	}
}

func TestBackoffMaxRetries(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     1 * time.Millisecond,
		Multiplier:   2.0,
		MaxRetries:   2,
	})

	for i := 0; i < 2; i++ {
		if err := b.Wait(context.Background()); err != nil {
			t.Fatalf("Wait() #%d error = %v", i+1, err)
		}
	}
	if err := b.Wait(context.Background()); !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Wait() error = %v, want ErrRetriesExhausted", err)
	}
}

func TestBackoffStop(t *testing.T) {
	b := NewBackoff(BackoffConfig{
		InitialDelay: 1 * time.Millisecond,
		MaxDelay:     1 * time.Millisecond,
		Multiplier:   2.0,
	})
	b.Stop()

	if err := b.Wait(context.Background()); !errors.Is(err, ErrManagerClosed) {
		t.Fatalf("Wait() after Stop error = %v, want ErrManagerClosed", err)
	}
}

func TestAddJitterBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 50; i++ {
		d := addJitter(base, 0.2)
		if d < 0 {
			t.Fatalf("addJitter returned negative duration %v", d)
		}
		if d < 70*time.Millisecond || d > 130*time.Millisecond {
			t.Errorf("addJitter(%v, 0.2) = %v, outside expected band", base, d)
		}
	}
	if d := addJitter(base, 0); d != base {
		t.Errorf("addJitter with zero jitter = %v, want %v", d, base)
	}
}
