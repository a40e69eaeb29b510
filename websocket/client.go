package websocket

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/tradingiq/binance-collector/interfaces"
	"github.com/tradingiq/binance-collector/types"
)

// ReconnectingClient wraps session runs in the outer backoff layer. A run
// that fails is followed by a wait of Backoff.Next() and a fresh Session with
// a fresh reconnect counter, whose inner reconnect delay is the wait just
// taken. A run that completes, a signature failure, or a cancelled context
// ends the client.
type ReconnectingClient struct {
	cfg     SessionConfig
	payload *types.Payload
	logger  *zap.Logger
	opts    options

	stopOnce sync.Once
	stopped  chan struct{}

	mu      sync.RWMutex
	session *Session
	runs    int
}

type Client = ReconnectingClient

func NewReconnectingClient(cfg SessionConfig, payload *types.Payload, logger *zap.Logger, opts ...Option) *ReconnectingClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconnectingClient{
		cfg:     cfg,
		payload: payload,
		logger:  logger,
		opts:    buildOptions(cfg, opts),
		stopped: make(chan struct{}),
	}
}

func NewClient(cfg SessionConfig, payload *types.Payload, logger *zap.Logger, opts ...Option) *Client {
	return NewReconnectingClient(cfg, payload, logger, opts...)
}

func NewSessionClient(cfg SessionConfig, payload *types.Payload, logger *zap.Logger, opts ...Option) interfaces.SessionClient {
	return NewReconnectingClient(cfg, payload, logger, opts...)
}

// Run returns nil when a run completes or the client is stopped through ctx
// or Disconnect. It returns the run's error on ErrSignature, and on
// ErrExhaustedRetries once WithMaxRuns is reached.
func (c *ReconnectingClient) Run(ctx context.Context) error {
	if err := validateRun(c.cfg, c.payload); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-c.stopped:
			cancel()
		case <-ctx.Done():
		}
	}()

	backoff := NewBackoff(c.cfg.ReconnectDelay, MaxBackoff)
	cfg := c.cfg

	for run := 1; ; run++ {
		session := newSession(cfg, c.payload, c.logger.With(zap.Int("run", run)), c.opts)
		c.setSession(session, run)

		err := session.Run(ctx)
		if ctx.Err() != nil {
			c.logger.Info("Connection stopped by user")
			return nil
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrSignature) {
			return err
		}
		if c.opts.maxRuns > 0 && run >= c.opts.maxRuns {
			c.logger.Error("Giving up after session runs", zap.Int("runs", run), zap.Error(err))
			return err
		}

		delay := backoff.Next()
		cfg.ReconnectDelay = delay
		c.logger.Info("Waiting before next attempt", zap.Duration("delay", delay), zap.Error(err))

		if !c.opts.sleep(ctx, delay) {
			c.logger.Info("Connection stopped by user")
			return nil
		}
	}
}

// Disconnect stops the client, skipping any pending backoff wait.
func (c *ReconnectingClient) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.stopped)
	})
}

// Session returns the current session run, or nil before Run.
func (c *ReconnectingClient) Session() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *ReconnectingClient) Runs() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.runs
}

func (c *ReconnectingClient) setSession(s *Session, run int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	c.runs = run
}
