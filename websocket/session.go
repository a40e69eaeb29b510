package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tradingiq/binance-collector/signature"
	"github.com/tradingiq/binance-collector/types"
)

const (
	DefaultWebSocketURL = "wss://ws-api.binance.com:443/ws-api/v3"

	DefaultReconnectDelay       = 5 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultRefreshInterval      = 5 * time.Second
	DefaultDialTimeout          = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second

	MaxBackoff = 60 * time.Second
)

// SessionConfig is fixed for the lifetime of one session run.
type SessionConfig struct {
	URL                  string
	ReconnectCount       int
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	RefreshInterval      time.Duration

	// DisableLoop ends the session successfully after the first dispatched frame.
	DisableLoop bool

	// Diagnostic pretty-prints every decoded frame to stdout.
	Diagnostic bool

	DialTimeout  time.Duration
	WriteTimeout time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		URL:                  DefaultWebSocketURL,
		ReconnectDelay:       DefaultReconnectDelay,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		RefreshInterval:      DefaultRefreshInterval,
		DialTimeout:          DefaultDialTimeout,
		WriteTimeout:         DefaultWriteTimeout,
	}
}

func (c SessionConfig) Validate() error {
	switch {
	case c.URL == "":
		return errors.New("session config: url is empty")
	case c.MaxReconnectAttempts <= 0:
		return fmt.Errorf("session config: max reconnect attempts must be positive, got %d", c.MaxReconnectAttempts)
	case c.ReconnectCount < 0:
		return fmt.Errorf("session config: reconnect count must not be negative, got %d", c.ReconnectCount)
	case c.ReconnectDelay < 0:
		return fmt.Errorf("session config: reconnect delay must not be negative, got %s", c.ReconnectDelay)
	case c.RefreshInterval <= 0:
		return fmt.Errorf("session config: refresh interval must be positive, got %s", c.RefreshInterval)
	}
	return nil
}

// Session is one run of the connection state machine:
//
//	Idle -> Connecting -> Connected -> Reconnecting -> (Connecting | Terminated)
//
// Connect attempts are strictly sequential. The reconnect counter resets on
// every successful connect and grows on every failed connect or dropped
// connection; once it reaches MaxReconnectAttempts the run ends with
// ErrExhaustedRetries. A Session is single use.
type Session struct {
	cfg        SessionConfig
	payload    *types.Payload
	opts       options
	dispatcher *Dispatcher
	logger     *zap.Logger

	apiKey string
	signer signature.Signer

	mu             sync.RWMutex
	state          ConnectionState
	reconnectCount int
	refresh        *RefreshScheduler
}

func NewSession(cfg SessionConfig, payload *types.Payload, logger *zap.Logger, opts ...Option) *Session {
	return newSession(cfg, payload, logger, buildOptions(cfg, opts))
}

func newSession(cfg SessionConfig, payload *types.Payload, logger *zap.Logger, o options) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}

	dispatcher := NewDispatcher(o.handler, o.extra, logger)
	if cfg.Diagnostic {
		dispatcher.EnableDiagnostics(o.diagOut, o.diagColor)
	}

	return &Session{
		cfg:        cfg,
		payload:    payload,
		opts:       o,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (s *Session) State() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) ReconnectCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reconnectCount
}

// Run drives the session until it completes (one-shot mode), fails with
// ErrSignature or ErrExhaustedRetries, or ctx is cancelled, in which case
// ctx.Err() is returned.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionStarted
	}
	s.reconnectCount = s.cfg.ReconnectCount
	s.mu.Unlock()

	if err := s.prepare(ctx); err != nil {
		s.setState(StateTerminated)
		return err
	}

	var lastErr error
	for s.ReconnectCount() < s.cfg.MaxReconnectAttempts {
		s.setState(StateConnecting)

		done, err := s.connectAndServe(ctx)
		if done {
			s.setState(StateTerminated)
			s.logger.Info("Session completed")
			return nil
		}

		if ctx.Err() != nil {
			s.setState(StateTerminated)
			s.logger.Info("Session stopped")
			return ctx.Err()
		}

		if errors.Is(err, ErrSignature) {
			s.setState(StateTerminated)
			s.logger.Error("Session aborted", zap.Error(err))
			return err
		}

		lastErr = err
		s.setState(StateReconnecting)
		count := s.incrementReconnectCount()
		s.logger.Error("Connection attempt failed",
			zap.Error(err),
			zap.Int("reconnectCount", count),
			zap.Int("maxAttempts", s.cfg.MaxReconnectAttempts),
		)

		if count < s.cfg.MaxReconnectAttempts {
			s.logger.Info("Reconnecting", zap.Duration("delay", s.cfg.ReconnectDelay))
			if !s.opts.sleep(ctx, s.cfg.ReconnectDelay) {
				s.setState(StateTerminated)
				s.logger.Info("Session stopped")
				return ctx.Err()
			}
		}
	}

	s.setState(StateTerminated)
	s.logger.Error("Max reconnection attempts reached", zap.Int("maxAttempts", s.cfg.MaxReconnectAttempts))

	if lastErr == nil {
		return fmt.Errorf("%w: reconnect count %d already at limit %d", ErrExhaustedRetries, s.cfg.ReconnectCount, s.cfg.MaxReconnectAttempts)
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhaustedRetries, s.cfg.MaxReconnectAttempts, lastErr)
}

func validateRun(cfg SessionConfig, payload *types.Payload) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if payload == nil {
		return errors.New("session: payload is nil")
	}
	if _, err := json.Marshal(payload); err != nil {
		return fmt.Errorf("session: payload is not serializable: %w", err)
	}
	return nil
}

// prepare validates the configuration and, for signed payloads, resolves the
// credential before any connect attempt is made.
func (s *Session) prepare(ctx context.Context) error {
	if err := validateRun(s.cfg, s.payload); err != nil {
		return err
	}

	if !signature.NeedsSignature(s.payload) {
		return nil
	}

	if s.opts.credentials == nil {
		return fmt.Errorf("%w: payload carries an apiKey but no credential provider is configured", ErrSignature)
	}

	cred, err := s.opts.credentials.Credential(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignature, err)
	}

	signer, err := cred.Signer()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSignature, err)
	}

	// the server verifies the signature against the apiKey sent in the frame
	if key, _ := s.payload.APIKey(); key != cred.APIKey {
		return fmt.Errorf("%w: payload apiKey does not match the credential's api key", ErrSignature)
	}

	s.apiKey = cred.APIKey
	s.signer = signer
	return nil
}

func (s *Session) stamp() error {
	return signature.Stamp(s.payload, s.apiKey, s.signer, s.opts.now())
}

// connectAndServe performs one connect attempt and, on success, serves the
// connection until it fails. It reports done when a one-shot session has
// dispatched its frame.
func (s *Session) connectAndServe(ctx context.Context) (bool, error) {
	var stamp func() error
	if s.signer != nil {
		stamp = s.stamp
		if err := stamp(); err != nil {
			return false, fmt.Errorf("%w: %w", ErrSignature, err)
		}
	}

	transport, err := s.opts.dialer.Dial(ctx, s.cfg.URL)
	if err != nil {
		return false, &ConnectError{URL: s.cfg.URL, Err: err}
	}
	defer func() {
		if err := transport.Close(); err != nil {
			s.logger.Debug("Transport close returned error", zap.Error(err))
		}
	}()

	s.markConnected()
	s.logger.Info("Connected to Binance WebSocket", zap.String("url", s.cfg.URL))

	data, err := json.Marshal(s.payload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := transport.Send(ctx, data); err != nil {
		return false, &SendError{Err: err}
	}
	s.logger.Info("Sent request", zap.String("id", s.payload.ID()), zap.String("method", s.payload.Method()))

	refresh := newRefreshScheduler(s.cfg.RefreshInterval, s.payload, stamp, transport, s.logger, s.opts.newTicker)
	s.setRefresh(refresh)
	refresh.Start(ctx)
	// runs before the transport close above
	defer func() {
		refresh.Stop()
		s.setRefresh(nil)
	}()

	for {
		frame, err := transport.Receive(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to read message: %w", err)
		}

		if err := s.dispatcher.Dispatch(frame); err != nil {
			s.logger.Warn("Discarding inbound frame", zap.Error(err))
			continue
		}

		if s.cfg.DisableLoop {
			refresh.Stop()
			return true, nil
		}
	}
}

func (s *Session) setState(state ConnectionState) {
	s.mu.Lock()
	prev := s.state
	s.state = state
	s.mu.Unlock()

	if prev != state {
		s.logger.Info("Session state changed", zap.Stringer("from", prev), zap.Stringer("to", state))
	}
}

func (s *Session) markConnected() {
	s.mu.Lock()
	s.reconnectCount = 0
	s.mu.Unlock()
	s.setState(StateConnected)
}

func (s *Session) incrementReconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnectCount++
	return s.reconnectCount
}

func (s *Session) setRefresh(r *RefreshScheduler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = r
}

// refreshScheduler returns the scheduler of the live connection, if any.
func (s *Session) refreshScheduler() *RefreshScheduler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refresh
}
