package sessionstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/parley-dev/parley/libdbexec"
)

type store struct {
	Exec libdbexec.Exec
}

// New creates a session store over the given executor.
func New(exec libdbexec.Exec) Store {
	return &store{Exec: exec}
}

func (s *store) UpsertSession(ctx context.Context, row *SessionRow) error {
	now := time.Now().UnixMilli()
	if row.CreatedAt == 0 {
		row.CreatedAt = now
	}
	row.UpdatedAt = now

	_, err := s.Exec.ExecContext(ctx, `
		INSERT INTO sessions (
			key, account_id, label, model, provider, project_id,
			message_count, last_seen_message_count, preview, archived,
			mcp_disabled, parent_session_key, fork_point, version,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT(key) DO UPDATE SET
			account_id = EXCLUDED.account_id,
			label = EXCLUDED.label,
			model = EXCLUDED.model,
			provider = EXCLUDED.provider,
			project_id = EXCLUDED.project_id,
			message_count = EXCLUDED.message_count,
			last_seen_message_count = EXCLUDED.last_seen_message_count,
			preview = EXCLUDED.preview,
			archived = EXCLUDED.archived,
			mcp_disabled = EXCLUDED.mcp_disabled,
			parent_session_key = EXCLUDED.parent_session_key,
			fork_point = EXCLUDED.fork_point,
			version = EXCLUDED.version,
			updated_at = EXCLUDED.updated_at`,
		row.Key, row.AccountID, row.Label, row.Model, row.Provider, row.ProjectID,
		row.MessageCount, row.LastSeenMessageCount, row.Preview, row.Archived,
		row.McpDisabled, row.ParentSessionKey, row.ForkPoint, row.Version,
		row.CreatedAt, row.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

const sessionColumns = `key, account_id, label, model, provider, project_id,
	message_count, last_seen_message_count, preview, archived,
	mcp_disabled, parent_session_key, fork_point, version,
	created_at, updated_at`

func scanSession(scan func(dest ...any) error) (*SessionRow, error) {
	var row SessionRow
	err := scan(
		&row.Key, &row.AccountID, &row.Label, &row.Model, &row.Provider, &row.ProjectID,
		&row.MessageCount, &row.LastSeenMessageCount, &row.Preview, &row.Archived,
		&row.McpDisabled, &row.ParentSessionKey, &row.ForkPoint, &row.Version,
		&row.CreatedAt, &row.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *store) GetSession(ctx context.Context, key string) (*SessionRow, error) {
	r := s.Exec.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE key = $1`,
		key,
	)
	row, err := scanSession(r.Scan)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return row, nil
}

func (s *store) ListSessions(ctx context.Context, accountID string) ([]*SessionRow, error) {
	rows, err := s.Exec.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE account_id = $1
		ORDER BY updated_at DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []*SessionRow
	for rows.Next() {
		row, err := scanSession(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

func (s *store) DeleteSession(ctx context.Context, key string) error {
	result, err := s.Exec.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE key = $1`,
		key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return libdbexec.ErrNotFound
	}
	return nil
}

func (s *store) AppendLog(ctx context.Context, entries ...*LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	now := time.Now().UTC()
	valueStrings := make([]string, 0, len(entries))
	valueArgs := make([]any, 0, len(entries)*5)
	for i, entry := range entries {
		if entry.AddedAt.IsZero() {
			entry.AddedAt = now
		}
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d)",
			i*5+1, i*5+2, i*5+3, i*5+4, i*5+5))
		valueArgs = append(valueArgs, entry.ID, entry.AccountID, entry.SessionKey,
			[]byte(entry.Payload), entry.AddedAt)
	}

	stmt := fmt.Sprintf(`
		INSERT INTO message_log (id, account_id, session_key, payload, added_at)
		VALUES %s`,
		strings.Join(valueStrings, ","),
	)
	if _, err := s.Exec.ExecContext(ctx, stmt, valueArgs...); err != nil {
		return fmt.Errorf("failed to append log entries: %w", err)
	}
	return nil
}

func (s *store) ListLog(ctx context.Context, accountID, sessionKey string) ([]*LogEntry, error) {
	rows, err := s.Exec.QueryContext(ctx, `
		SELECT id, account_id, session_key, payload, added_at
		FROM message_log
		WHERE account_id = $1 AND session_key = $2
		ORDER BY added_at ASC`,
		accountID, sessionKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query log: %w", err)
	}
	defer rows.Close()

	var out []*LogEntry
	for rows.Next() {
		var entry LogEntry
		var payload []byte
		if err := rows.Scan(&entry.ID, &entry.AccountID, &entry.SessionKey, &payload, &entry.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entry.Payload = payload
		out = append(out, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

func (s *store) CountLog(ctx context.Context, accountID, sessionKey string) (int, error) {
	r := s.Exec.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM message_log
		WHERE account_id = $1 AND session_key = $2`,
		accountID, sessionKey,
	)
	var count int
	if err := r.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count log entries: %w", err)
	}
	return count, nil
}

func (s *store) ClearLog(ctx context.Context, accountID, sessionKey string) error {
	if _, err := s.Exec.ExecContext(ctx, `
		DELETE FROM message_log
		WHERE account_id = $1 AND session_key = $2`,
		accountID, sessionKey,
	); err != nil {
		return fmt.Errorf("failed to clear log: %w", err)
	}
	return nil
}

func (s *store) SetKV(ctx context.Context, key string, value string) error {
	if _, err := s.Exec.ExecContext(ctx, `
		INSERT INTO local_kv (key, value)
		VALUES ($1, $2)
		ON CONFLICT(key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	); err != nil {
		return fmt.Errorf("failed to set kv %q: %w", key, err)
	}
	return nil
}

func (s *store) GetKV(ctx context.Context, key string) (string, error) {
	r := s.Exec.QueryRowContext(ctx, `
		SELECT value
		FROM local_kv
		WHERE key = $1`,
		key,
	)
	var value string
	if err := r.Scan(&value); err != nil {
		return "", fmt.Errorf("failed to get kv %q: %w", key, err)
	}
	return value, nil
}
