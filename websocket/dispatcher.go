package websocket

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/logrusorgru/aurora"
	"go.uber.org/zap"

	"github.com/tradingiq/binance-collector/interfaces"
	"github.com/tradingiq/binance-collector/types"
)

// Dispatcher decodes inbound frames and hands them to the handler.
type Dispatcher struct {
	handler interfaces.MessageHandler
	extra   any
	logger  *zap.Logger

	diagnostic bool
	outMu      sync.Mutex
	out        io.Writer
	au         aurora.Aurora
}

func NewDispatcher(handler interfaces.MessageHandler, extra any, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		handler: handler,
		extra:   extra,
		logger:  logger,
		out:     os.Stdout,
		au:      aurora.NewAurora(true),
	}
}

// EnableDiagnostics pretty-prints every decoded message to out.
func (d *Dispatcher) EnableDiagnostics(out io.Writer, color bool) {
	d.outMu.Lock()
	defer d.outMu.Unlock()
	d.diagnostic = true
	if out != nil {
		d.out = out
	}
	d.au = aurora.NewAurora(color)
}

// Dispatch decodes frame and invokes the handler synchronously. A frame that
// does not decode returns a *DecodeError and never reaches the handler.
func (d *Dispatcher) Dispatch(frame []byte) error {
	var msg types.Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return &DecodeError{Frame: frame, Err: err}
	}
	if msg == nil {
		return &DecodeError{Frame: frame, Err: fmt.Errorf("frame is not a JSON object")}
	}

	d.print(msg)

	if d.handler != nil {
		d.handler.HandleMessage(msg, d.extra)
	}
	return nil
}

func (d *Dispatcher) print(msg types.Message) {
	d.outMu.Lock()
	defer d.outMu.Unlock()

	if !d.diagnostic {
		return
	}

	pretty, err := json.MarshalIndent(msg, "", "  ")
	if err != nil {
		d.logger.Debug("Failed to format message", zap.Error(err))
		return
	}

	status := d.au.Green(msg.Status())
	if msg.Err() != nil {
		status = d.au.Red(msg.Status())
	}

	fmt.Fprintf(d.out, "%s id=%s status=%v\n%s\n",
		d.au.Bold(d.au.Cyan("<<")),
		d.au.Yellow(msg.ID()),
		status,
		pretty,
	)
}
