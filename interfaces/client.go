package interfaces

import "context"

// SessionClient runs an authenticated ws-api session until it completes,
// fails terminally, or the context is cancelled.
type SessionClient interface {
	Run(ctx context.Context) error

	Disconnect()
}
