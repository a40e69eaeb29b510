package websocket

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradingiq/binance-collector/credentials"
)

var errFakeClosed = errors.New("fake transport closed")

type fakeTransport struct {
	mu          sync.Mutex
	sent        [][]byte
	sendErr     error
	gate        chan struct{}
	inflight    int
	maxInflight int

	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport(frames ...string) *fakeTransport {
	t := &fakeTransport{
		frames: make(chan []byte, 16),
		closed: make(chan struct{}),
	}
	for _, f := range frames {
		t.frames <- []byte(f)
	}
	return t
}

func (t *fakeTransport) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	t.inflight++
	if t.inflight > t.maxInflight {
		t.maxInflight = t.inflight
	}
	gate := t.gate
	t.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight--
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sent = append(t.sent, append([]byte(nil), data...))
	return nil
}

func (t *fakeTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-t.frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.closed:
		return nil, errFakeClosed
	}
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
	})
	return nil
}

func (t *fakeTransport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

func (t *fakeTransport) MaxInflight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxInflight
}

func (t *fakeTransport) IsClosed() bool {
	select {
	case <-t.closed:
		return true
	default:
		return false
	}
}

// scriptedDialer hands out the scripted transports in order; a nil entry is
// a failed connect. Attempts past the script fail.
type scriptedDialer struct {
	mu       sync.Mutex
	script   []*fakeTransport
	attempts int
}

func (d *scriptedDialer) Dial(ctx context.Context, _ string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if d.attempts > len(d.script) || d.script[d.attempts-1] == nil {
		return nil, errors.New("connection refused")
	}
	return d.script[d.attempts-1], nil
}

func (d *scriptedDialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time, 8)}
}

func (m *manualTicker) C() <-chan time.Time {
	return m.ch
}

func (m *manualTicker) Stop() {
	m.stopped.Store(true)
}

func (m *manualTicker) Tick() {
	m.ch <- time.Now()
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) Sleep(ctx context.Context, d time.Duration) bool {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err() == nil
}

func (r *sleepRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func withSleep(sleep func(ctx context.Context, d time.Duration) bool) Option {
	return func(o *options) {
		o.sleep = sleep
	}
}

func withTicker(tk ticker) Option {
	return func(o *options) {
		o.newTicker = func(time.Duration) ticker { return tk }
	}
}

// steppingClock returns start, start+step, start+2*step, ...
func steppingClock(start, step time.Duration) func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		i := n.Add(1) - 1
		return time.UnixMilli(0).Add(start + time.Duration(i)*step)
	}
}

func hmacCredentials() credentials.Provider {
	return credentials.Static{Value: credentials.Credential{APIKey: "X", Secret: "abc"}}
}

func testConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.URL = "ws://test.invalid/ws-api/v3"
	cfg.ReconnectDelay = time.Millisecond
	cfg.RefreshInterval = time.Hour
	return cfg
}
