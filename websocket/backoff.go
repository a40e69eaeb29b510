package websocket

import (
	"context"
	"time"
)

// Backoff yields the waits between whole session runs: the initial delay,
// then doubling, clamped at max.
type Backoff struct {
	max  time.Duration
	next time.Duration
}

func NewBackoff(initial, maxDelay time.Duration) *Backoff {
	if initial <= 0 {
		initial = DefaultReconnectDelay
	}
	if maxDelay < initial {
		maxDelay = initial
	}
	return &Backoff{
		max:  maxDelay,
		next: initial,
	}
}

func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

// sleepWithContext waits for d and reports false if ctx ended first.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
