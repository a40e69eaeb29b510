package websocket

import (
	"errors"
	"fmt"
)

var (
	// ErrSignature is fatal: the session cannot authenticate, so it is never retried.
	ErrSignature = errors.New("signature failed")

	// ErrExhaustedRetries ends a session run whose reconnect budget is spent.
	ErrExhaustedRetries = errors.New("reconnect attempts exhausted")

	ErrSessionStarted = errors.New("session already started")
)

// ConnectError reports a transport that could not be established.
type ConnectError struct {
	URL string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// SendError reports a failed write on an established transport.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send payload: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// DecodeError reports an inbound frame that is not a JSON object. The frame
// is discarded and the session carries on.
type DecodeError struct {
	Frame []byte
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode frame (%d bytes): %v", len(e.Frame), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func IsConnectError(err error) bool {
	var e *ConnectError
	return errors.As(err, &e)
}

func IsSendError(err error) bool {
	var e *SendError
	return errors.As(err, &e)
}

func IsDecodeError(err error) bool {
	var e *DecodeError
	return errors.As(err, &e)
}
