package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tradingiq/binance-collector/types"
)

type ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct {
	*time.Ticker
}

func (t timeTicker) C() <-chan time.Time {
	return t.Ticker.C
}

func newTimeTicker(d time.Duration) ticker {
	return timeTicker{time.NewTicker(d)}
}

// RefreshScheduler re-stamps and re-sends the payload every interval while
// the session is connected.
//
// Ticks are handled one at a time on a single goroutine. A tick that fires
// while the previous one is still sending is coalesced by the ticker, so at
// most one tick is ever queued and no two ticks overlap.
//
// A failed tick, whether re-signing or sending, is logged and stops the
// scheduler; the error is not returned to the session. A signing failure
// mid-session is handled like a send failure: the connection keeps serving
// until it drops, and the next connect attempt re-signs and returns
// ErrSignature from Session.Run if signing still fails.
type RefreshScheduler struct {
	interval  time.Duration
	payload   *types.Payload
	stamp     func() error
	transport Transport
	logger    *zap.Logger
	newTicker func(time.Duration) ticker

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	sends atomic.Int64
}

// stamp may be nil for payloads that carry no apiKey.
func newRefreshScheduler(interval time.Duration, payload *types.Payload, stamp func() error, transport Transport, logger *zap.Logger, newTicker func(time.Duration) ticker) *RefreshScheduler {
	if newTicker == nil {
		newTicker = newTimeTicker
	}
	return &RefreshScheduler{
		interval:  interval,
		payload:   payload,
		stamp:     stamp,
		transport: transport,
		logger:    logger,
		newTicker: newTicker,
	}
}

func (r *RefreshScheduler) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		return
	}

	workerCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})

	tk := r.newTicker(r.interval)
	go r.run(workerCtx, tk)
}

// Stop signals the scheduler and waits for its goroutine to exit. Once Stop
// returns no further send is issued. Safe to call more than once.
func (r *RefreshScheduler) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	if done == nil {
		return
	}

	r.stopOnce.Do(cancel)
	<-done
}

// Sends reports how many refresh sends completed.
func (r *RefreshScheduler) Sends() int64 {
	return r.sends.Load()
}

func (r *RefreshScheduler) run(ctx context.Context, tk ticker) {
	defer close(r.done)
	defer tk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tk.C():
			// both cases may be ready at once; cancellation wins
			if ctx.Err() != nil {
				return
			}

			r.logger.Debug("Refresh tick", zap.Duration("interval", r.interval))
			if err := r.tick(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				r.logger.Error("Refresh failed, stopping scheduler", zap.Error(err))
				return
			}
		}
	}
}

func (r *RefreshScheduler) tick(ctx context.Context) error {
	if r.stamp != nil {
		if err := r.stamp(); err != nil {
			return fmt.Errorf("failed to refresh signature: %w", err)
		}
		r.logger.Debug("Signature refreshed")
	}

	data, err := json.Marshal(r.payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := r.transport.Send(ctx, data); err != nil {
		return &SendError{Err: err}
	}

	r.sends.Add(1)
	return nil
}
