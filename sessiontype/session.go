// Package sessiontype holds the shared data model for the gateway state
// mirror: sessions, messages, and the snapshot records that arrive from
// the server over calls and pushes.
package sessiontype

// DefaultSessionKey is the well-known session every client starts on when
// no active key has been persisted.
const DefaultSessionKey = "main"

// ChannelBinding ties a session to an external chat-channel conversation.
type ChannelBinding struct {
	ChannelType string `json:"channelType"`
	AccountID   string `json:"accountId"`
	ChatID      string `json:"chatId"`
}

// Session is one addressable conversation thread with an agent.
//
// Server-owned fields are only written through the registry merge path
// (version gate, count monotonicity). Client-local fields are never
// touched by a merge; they carry optimistic and streaming state that the
// server has no opinion on.
type Session struct {
	Key string `json:"key"`

	// Server-owned.
	Label                string          `json:"label,omitempty"`
	Model                string          `json:"model,omitempty"`
	Provider             string          `json:"provider,omitempty"`
	ProjectID            string          `json:"projectId,omitempty"`
	MessageCount         int             `json:"messageCount"`
	LastSeenMessageCount int             `json:"lastSeenMessageCount"`
	Preview              string          `json:"preview,omitempty"`
	CreatedAt            int64           `json:"createdAt"` // unix ms
	UpdatedAt            int64           `json:"updatedAt"` // unix ms
	Archived             bool            `json:"archived"`
	McpDisabled          bool            `json:"mcpDisabled"`
	ChannelBinding       *ChannelBinding `json:"channelBinding,omitempty"`
	ParentSessionKey     string          `json:"parentSessionKey,omitempty"`
	ForkPoint            *int            `json:"forkPoint,omitempty"`
	// Version is server-assigned and monotonic; 0 means unversioned.
	Version uint64 `json:"version"`

	// Client-local.
	Replying      bool   `json:"replying"`
	LocalUnread   int    `json:"localUnread"`
	StreamText    string `json:"streamText,omitempty"`
	SessionTokens int    `json:"sessionTokens"`
	ContextWindow int    `json:"contextWindow"`
	// DataVersion increments on every accepted mutation so consumers can
	// poll for change without diffing fields.
	DataVersion uint64 `json:"dataVersion"`
}

// SessionRecord is a server snapshot of one session as carried by
// `sessions.list` responses and session push events. Missing fields decode
// to zero values and are treated as absent/default by the merge.
type SessionRecord struct {
	Key                  string          `json:"key"`
	Label                string          `json:"label,omitempty"`
	Model                string          `json:"model,omitempty"`
	Provider             string          `json:"provider,omitempty"`
	ProjectID            string          `json:"projectId,omitempty"`
	MessageCount         int             `json:"messageCount"`
	LastSeenMessageCount int             `json:"lastSeenMessageCount"`
	Preview              string          `json:"preview,omitempty"`
	CreatedAt            int64           `json:"createdAt"`
	UpdatedAt            int64           `json:"updatedAt"`
	Archived             bool            `json:"archived"`
	McpDisabled          bool            `json:"mcpDisabled"`
	ChannelBinding       *ChannelBinding `json:"channelBinding,omitempty"`
	ParentSessionKey     string          `json:"parentSessionKey,omitempty"`
	ForkPoint            *int            `json:"forkPoint,omitempty"`
	Version              uint64          `json:"version"`
}
