package rest

import (
	"context"
	"time"
)

const (
	DefaultRateBurst  = 8
	DefaultRateRefill = 200 * time.Millisecond
)

// rateLimiter is a token bucket: burst tokens up front, one more every
// refill interval until the bucket is full again.
type rateLimiter struct {
	tokens chan struct{}
	refill time.Duration
	cancel context.CancelFunc
	done   chan struct{}
}

func newRateLimiter(burst int, refill time.Duration) *rateLimiter {
	if burst <= 0 {
		burst = DefaultRateBurst
	}
	if refill <= 0 {
		refill = DefaultRateRefill
	}

	r := &rateLimiter{
		tokens: make(chan struct{}, burst),
		refill: refill,
		done:   make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		r.tokens <- struct{}{}
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.refillLoop(workerCtx)

	return r
}

func (r *rateLimiter) refillLoop(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.refill)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case r.tokens <- struct{}{}:
			default:
			}
		}
	}
}

func (r *rateLimiter) acquire(ctx context.Context) error {
	select {
	case <-r.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *rateLimiter) stop() {
	r.cancel()
	<-r.done
}
