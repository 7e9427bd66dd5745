// Package libbus carries the gateway wire traffic: request/reply calls
// and the at-least-once, unordered push channel. The Messenger interface
// has a NATS implementation for real deployments and an in-memory one
// for single-process and test use; the state mirror is written against
// the interface only.
package libbus

import (
	"context"
	"errors"
)

var (
	ErrConnectionClosed = errors.New("libbus: connection closed")
	ErrRequestTimeout   = errors.New("libbus: request timed out")
)

// Handler serves one request subject; the returned bytes are the reply.
type Handler func(ctx context.Context, data []byte) ([]byte, error)

// Subscription is a revocable stream or serve registration.
type Subscription interface {
	Unsubscribe() error
}

// Messenger is the transport seam between the state mirror and the
// gateway. Publish/Stream model the push channel (fire-and-forget,
// no ordering or delivery guarantees beyond at-least-once); Request/
// Serve model the synchronous call channel.
type Messenger interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Stream(ctx context.Context, subject string, ch chan<- []byte) (Subscription, error)
	Request(ctx context.Context, subject string, data []byte) ([]byte, error)
	Serve(ctx context.Context, subject string, handler Handler) (Subscription, error)
	Close() error
}

// Config selects the transport. An empty NATSURL means in-memory.
type Config struct {
	NATSURL      string
	NATSUser     string
	NATSPassword string
}

// NewPubSub returns a NATS-backed Messenger when cfg names a server,
// otherwise the in-memory Messenger.
func NewPubSub(ctx context.Context, cfg *Config) (Messenger, error) {
	if cfg == nil || cfg.NATSURL == "" {
		return NewInMem(), nil
	}
	return NewNATS(ctx, cfg)
}
