// Package sessionstore persists the gateway-compatible session schema:
// one row per session and an append-only per-account message log whose
// position is the durable history index. It also keeps a small kv
// table used for the active-session pointer.
package sessionstore

import (
	"context"
	"encoding/json"
	"time"
)

// SessionRow is one persisted session.
type SessionRow struct {
	Key                  string `json:"key"`
	AccountID            string `json:"accountId"`
	Label                string `json:"label"`
	Model                string `json:"model"`
	Provider             string `json:"provider"`
	ProjectID            string `json:"projectId"`
	MessageCount         int    `json:"messageCount"`
	LastSeenMessageCount int    `json:"lastSeenMessageCount"`
	Preview              string `json:"preview"`
	Archived             bool   `json:"archived"`
	McpDisabled          bool   `json:"mcpDisabled"`
	ParentSessionKey     string `json:"parentSessionKey"`
	ForkPoint            *int   `json:"forkPoint,omitempty"`
	Version              uint64 `json:"version"`
	CreatedAt            int64  `json:"createdAt"` // unix ms
	UpdatedAt            int64  `json:"updatedAt"` // unix ms
}

// LogEntry is one appended message. Position is assigned by the log
// order at read time and corresponds to the history index.
type LogEntry struct {
	ID         string          `json:"id"`
	AccountID  string          `json:"accountId"`
	SessionKey string          `json:"sessionKey"`
	Payload    json.RawMessage `json:"payload"`
	AddedAt    time.Time       `json:"addedAt"`
}

// Store is the persistence surface for sessions and the message log.
type Store interface {
	// Session rows.
	UpsertSession(ctx context.Context, row *SessionRow) error
	GetSession(ctx context.Context, key string) (*SessionRow, error)
	ListSessions(ctx context.Context, accountID string) ([]*SessionRow, error)
	DeleteSession(ctx context.Context, key string) error

	// Append-only message log.
	AppendLog(ctx context.Context, entries ...*LogEntry) error
	ListLog(ctx context.Context, accountID, sessionKey string) ([]*LogEntry, error)
	CountLog(ctx context.Context, accountID, sessionKey string) (int, error)
	ClearLog(ctx context.Context, accountID, sessionKey string) error

	// Local kv state.
	SetKV(ctx context.Context, key string, value string) error
	GetKV(ctx context.Context, key string) (string, error)
}

// Schema is the Postgres schema.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
	key TEXT PRIMARY KEY,
	account_id TEXT NOT NULL DEFAULT '',
	label TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL DEFAULT '',
	project_id TEXT NOT NULL DEFAULT '',
	message_count INTEGER NOT NULL DEFAULT 0,
	last_seen_message_count INTEGER NOT NULL DEFAULT 0,
	preview TEXT NOT NULL DEFAULT '',
	archived BOOLEAN NOT NULL DEFAULT FALSE,
	mcp_disabled BOOLEAN NOT NULL DEFAULT FALSE,
	parent_session_key TEXT NOT NULL DEFAULT '',
	fork_point INTEGER,
	version BIGINT NOT NULL DEFAULT 0,
	created_at BIGINT NOT NULL DEFAULT 0,
	updated_at BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS message_log (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	session_key TEXT NOT NULL,
	payload JSONB NOT NULL,
	added_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_message_log_session
	ON message_log (account_id, session_key, added_at);

CREATE TABLE IF NOT EXISTS local_kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SchemaSQLite is the same schema in SQLite types.
const SchemaSQLite = `
CREATE TABLE IF NOT EXISTS sessions (
	key TEXT PRIMARY KEY,
	account_id TEXT NOT NULL DEFAULT '',
	label TEXT NOT NULL DEFAULT '',
	model TEXT NOT NULL DEFAULT '',
	provider TEXT NOT NULL DEFAULT '',
	project_id TEXT NOT NULL DEFAULT '',
	message_count INTEGER NOT NULL DEFAULT 0,
	last_seen_message_count INTEGER NOT NULL DEFAULT 0,
	preview TEXT NOT NULL DEFAULT '',
	archived INTEGER NOT NULL DEFAULT 0,
	mcp_disabled INTEGER NOT NULL DEFAULT 0,
	parent_session_key TEXT NOT NULL DEFAULT '',
	fork_point INTEGER,
	version INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS message_log (
	id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	session_key TEXT NOT NULL,
	payload TEXT NOT NULL,
	added_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_message_log_session
	ON message_log (account_id, session_key, added_at);

CREATE TABLE IF NOT EXISTS local_kv (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`
