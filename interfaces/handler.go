package interfaces

import "github.com/tradingiq/binance-collector/types"

// MessageHandler receives every decoded inbound frame together with the
// opaque value supplied when the session was created.
//
// HandleMessage runs on the session's receive goroutine. It must return
// promptly: while it runs no further frames are read.
type MessageHandler interface {
	HandleMessage(msg types.Message, extra any)
}

// HandlerFunc adapts a function into a MessageHandler.
type HandlerFunc func(msg types.Message, extra any)

func (f HandlerFunc) HandleMessage(msg types.Message, extra any) {
	f(msg, extra)
}
