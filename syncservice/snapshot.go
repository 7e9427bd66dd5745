package syncservice

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/parley-dev/parley/libkvstore"
	"github.com/parley-dev/parley/sessionstore"
	"github.com/parley-dev/parley/sessiontype"
)

// SnapshotStore persists session records for warm starts. Only
// server-owned fields go in; client-local state never survives a
// restart.
type SnapshotStore interface {
	SaveSessions(ctx context.Context, sessions []sessiontype.Session) error
	LoadSessions(ctx context.Context) ([]sessiontype.SessionRecord, error)
}

// record strips a session down to its server-owned fields.
func record(s sessiontype.Session) sessiontype.SessionRecord {
	return sessiontype.SessionRecord{
		Key:                  s.Key,
		Label:                s.Label,
		Model:                s.Model,
		Provider:             s.Provider,
		ProjectID:            s.ProjectID,
		MessageCount:         s.MessageCount,
		LastSeenMessageCount: s.LastSeenMessageCount,
		Preview:              s.Preview,
		CreatedAt:            s.CreatedAt,
		UpdatedAt:            s.UpdatedAt,
		Archived:             s.Archived,
		McpDisabled:          s.McpDisabled,
		ChannelBinding:       s.ChannelBinding,
		ParentSessionKey:     s.ParentSessionKey,
		ForkPoint:            s.ForkPoint,
		Version:              s.Version,
	}
}

const kvSnapshotKey = "snapshot:sessions"

type kvSnapshotStore struct {
	kv libkvstore.KVExec
}

var _ SnapshotStore = (*kvSnapshotStore)(nil)

// NewKVSnapshotStore keeps the whole session list as one JSON value in
// the kv backend.
func NewKVSnapshotStore(kv libkvstore.KVExec) SnapshotStore {
	return &kvSnapshotStore{kv: kv}
}

func (s *kvSnapshotStore) SaveSessions(ctx context.Context, sessions []sessiontype.Session) error {
	records := make([]sessiontype.SessionRecord, 0, len(sessions))
	for _, sess := range sessions {
		records = append(records, record(sess))
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode session snapshot: %w", err)
	}
	return s.kv.Set(ctx, kvSnapshotKey, raw)
}

func (s *kvSnapshotStore) LoadSessions(ctx context.Context) ([]sessiontype.SessionRecord, error) {
	raw, err := s.kv.Get(ctx, kvSnapshotKey)
	if err != nil {
		if err == libkvstore.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	var records []sessiontype.SessionRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode session snapshot: %w", err)
	}
	return records, nil
}

type dbSnapshotStore struct {
	store     sessionstore.Store
	accountID string
}

var _ SnapshotStore = (*dbSnapshotStore)(nil)

// NewDBSnapshotStore persists one row per session in the local database,
// so the snapshot doubles as the gateway-compatible session table.
func NewDBSnapshotStore(store sessionstore.Store, accountID string) SnapshotStore {
	return &dbSnapshotStore{store: store, accountID: accountID}
}

func (s *dbSnapshotStore) SaveSessions(ctx context.Context, sessions []sessiontype.Session) error {
	for _, sess := range sessions {
		row := &sessionstore.SessionRow{
			Key:                  sess.Key,
			AccountID:            s.accountID,
			Label:                sess.Label,
			Model:                sess.Model,
			Provider:             sess.Provider,
			ProjectID:            sess.ProjectID,
			MessageCount:         sess.MessageCount,
			LastSeenMessageCount: sess.LastSeenMessageCount,
			Preview:              sess.Preview,
			Archived:             sess.Archived,
			McpDisabled:          sess.McpDisabled,
			ParentSessionKey:     sess.ParentSessionKey,
			ForkPoint:            sess.ForkPoint,
			Version:              sess.Version,
			CreatedAt:            sess.CreatedAt,
			UpdatedAt:            sess.UpdatedAt,
		}
		if err := s.store.UpsertSession(ctx, row); err != nil {
			return fmt.Errorf("persist session %q: %w", sess.Key, err)
		}
	}
	return nil
}

func (s *dbSnapshotStore) LoadSessions(ctx context.Context) ([]sessiontype.SessionRecord, error) {
	rows, err := s.store.ListSessions(ctx, s.accountID)
	if err != nil {
		return nil, err
	}
	records := make([]sessiontype.SessionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, sessiontype.SessionRecord{
			Key:                  row.Key,
			Label:                row.Label,
			Model:                row.Model,
			Provider:             row.Provider,
			ProjectID:            row.ProjectID,
			MessageCount:         row.MessageCount,
			LastSeenMessageCount: row.LastSeenMessageCount,
			Preview:              row.Preview,
			Archived:             row.Archived,
			McpDisabled:          row.McpDisabled,
			ParentSessionKey:     row.ParentSessionKey,
			ForkPoint:            row.ForkPoint,
			Version:              row.Version,
			CreatedAt:            row.CreatedAt,
			UpdatedAt:            row.UpdatedAt,
		})
	}
	return records, nil
}
