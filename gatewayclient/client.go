// Package gatewayclient implements the call primitive against the
// conversation gateway. Every operation is a request/reply exchange on
// the message bus carrying a JSON envelope `{ok, payload?, error?}`.
package gatewayclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/parley-dev/parley/libbus"
)

// Operation names understood by the gateway.
const (
	OpSessionsList     = "sessions.list"
	OpSessionsPatch    = "sessions.patch"
	OpChatSend         = "chat.send"
	OpChatHistory      = "chat.history"
	OpChatClear        = "chat.clear"
	OpChatCompact      = "chat.compact"
	OpChatContext      = "chat.context"
	OpChatAbort        = "chat.abort"
	OpChatCancelQueued = "chat.cancel_queued"
)

var (
	// ErrTransport marks a call that never produced a gateway reply.
	ErrTransport = errors.New("gatewayclient: transport failure")
	// ErrRejected marks a call the gateway answered with ok=false.
	ErrRejected = errors.New("gatewayclient: operation rejected")
	// ErrMalformedReply marks a reply that was not a valid envelope.
	ErrMalformedReply = errors.New("gatewayclient: malformed reply")
)

// Result is a decoded gateway reply envelope.
type Result struct {
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Caller issues gateway operations. Implementations must be safe for
// concurrent use.
type Caller interface {
	// Call issues one operation and decodes the reply envelope. The
	// returned error wraps ErrTransport, ErrMalformedReply, or
	// ErrRejected; on ErrRejected the Result still carries the
	// gateway's error string.
	Call(ctx context.Context, operation string, params any) (Result, error)
}

// subjectPrefix namespaces call subjects away from push subjects.
const subjectPrefix = "call."

type busCaller struct {
	ps libbus.Messenger
}

var _ Caller = (*busCaller)(nil)

// New creates a Caller that issues operations over the given bus.
func New(ps libbus.Messenger) Caller {
	return &busCaller{ps: ps}
}

func (c *busCaller) Call(ctx context.Context, operation string, params any) (Result, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return Result{}, fmt.Errorf("%w: encode %s params: %v", ErrTransport, operation, err)
	}

	reply, err := c.ps.Request(ctx, subjectPrefix+operation, body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrTransport, operation, err)
	}

	var res Result
	if err := json.Unmarshal(reply, &res); err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrMalformedReply, operation, err)
	}
	if !res.OK {
		return res, fmt.Errorf("%w: %s: %s", ErrRejected, operation, res.Error)
	}
	return res, nil
}
