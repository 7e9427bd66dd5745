package gatewayclient

import (
	"github.com/parley-dev/parley/sessiontype"
)

// SendParams is the chat.send request body. Seq is a client-assigned
// monotonic sequence number the gateway uses to drop duplicate sends
// on retry.
type SendParams struct {
	SessionKey string                    `json:"sessionKey"`
	Message    string                    `json:"message,omitempty"`
	Parts      []sessiontype.ContentPart `json:"parts,omitempty"`
	Model      string                    `json:"model,omitempty"`
	Seq        uint64                    `json:"seq"`
}

// SendReply is the chat.send success payload. Queued signals admission
// deferral: a turn is already in flight and the message waits server-side.
type SendReply struct {
	Queued bool   `json:"queued"`
	RunID  string `json:"runId,omitempty"`
}

// SessionParams addresses one session; used by chat.history, chat.clear,
// chat.compact, chat.context, chat.abort, and chat.cancel_queued.
type SessionParams struct {
	SessionKey string `json:"sessionKey"`
}

// HistoryReply is the chat.history success payload. The counts are
// pointers so an explicitly reported zero stays distinguishable from an
// omitted field; absent counts fall back to the transcript length.
type HistoryReply struct {
	Messages             []sessiontype.Message `json:"messages"`
	MessageCount         *int                  `json:"messageCount,omitempty"`
	LastSeenMessageCount *int                  `json:"lastSeenMessageCount,omitempty"`
}

// ListReply is the sessions.list success payload.
type ListReply struct {
	Sessions []sessiontype.SessionRecord `json:"sessions"`
}

// PatchParams is the sessions.patch request body. Pointer fields patch
// only when present.
type PatchParams struct {
	SessionKey string  `json:"sessionKey"`
	Label      *string `json:"label,omitempty"`
	Model      *string `json:"model,omitempty"`
	Archived   *bool   `json:"archived,omitempty"`
}

// PatchReply is the sessions.patch success payload: the session record
// as the gateway sees it after applying the patch.
type PatchReply struct {
	Session sessiontype.SessionRecord `json:"session"`
}

// ContextReply is the chat.context success payload: the token budget
// picture for one session.
type ContextReply struct {
	SessionTokens int `json:"sessionTokens"`
	ContextWindow int `json:"contextWindow"`
}
