package websocket

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/tradingiq/binance-collector/credentials"
	"github.com/tradingiq/binance-collector/interfaces"
)

type options struct {
	dialer      Dialer
	credentials credentials.Provider
	handler     interfaces.MessageHandler
	extra       any
	diagOut     io.Writer
	diagColor   bool
	maxRuns     int

	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) bool
	newTicker func(time.Duration) ticker
}

type Option func(*options)

func buildOptions(cfg SessionConfig, opts []Option) options {
	o := options{
		diagOut:   os.Stdout,
		diagColor: true,
		now:       time.Now,
		sleep:     sleepWithContext,
		newTicker: newTimeTicker,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dialer == nil {
		o.dialer = NewNetDialer(cfg.DialTimeout, cfg.WriteTimeout)
	}
	return o
}

func WithDialer(dialer Dialer) Option {
	return func(o *options) {
		o.dialer = dialer
	}
}

func WithCredentials(provider credentials.Provider) Option {
	return func(o *options) {
		o.credentials = provider
	}
}

// WithHandler sets the handler and the opaque value passed along with every message.
func WithHandler(handler interfaces.MessageHandler, extra any) Option {
	return func(o *options) {
		o.handler = handler
		o.extra = extra
	}
}

// WithDiagnosticOutput redirects the diagnostic pretty-print used when
// SessionConfig.Diagnostic is set.
func WithDiagnosticOutput(out io.Writer, color bool) Option {
	return func(o *options) {
		o.diagOut = out
		o.diagColor = color
	}
}

// WithMaxRuns caps the number of session runs the ReconnectingClient makes.
// Zero, the default, retries forever.
func WithMaxRuns(n int) Option {
	return func(o *options) {
		o.maxRuns = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}
