package sessionstore_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/parley-dev/parley/libdbexec"
	"github.com/parley-dev/parley/sessionstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSQLite(t *testing.T) (context.Context, sessionstore.Store) {
	t.Helper()
	ctx := context.TODO()
	db, err := libdbexec.NewSQLiteDBManager(ctx, ":memory:", sessionstore.SchemaSQLite)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})
	return ctx, sessionstore.New(db.WithoutTransaction())
}

func TestUnit_UpsertAndGetSession(t *testing.T) {
	ctx, store := setupSQLite(t)

	fork := 12
	row := &sessionstore.SessionRow{
		Key:              "s1",
		AccountID:        "acc-1",
		Label:            "Research",
		Model:            "gpt-oss",
		MessageCount:     4,
		ParentSessionKey: "main",
		ForkPoint:        &fork,
		Version:          3,
	}
	require.NoError(t, store.UpsertSession(ctx, row))

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Research", got.Label)
	assert.Equal(t, 4, got.MessageCount)
	assert.Equal(t, uint64(3), got.Version)
	require.NotNil(t, got.ForkPoint)
	assert.Equal(t, 12, *got.ForkPoint)
	assert.NotZero(t, got.CreatedAt)

	row.Label = "Renamed"
	row.MessageCount = 5
	require.NoError(t, store.UpsertSession(ctx, row))

	got, err = store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Label)
	assert.Equal(t, 5, got.MessageCount)
}

func TestUnit_GetSessionNotFound(t *testing.T) {
	ctx, store := setupSQLite(t)

	_, err := store.GetSession(ctx, "missing")
	require.ErrorIs(t, err, libdbexec.ErrNotFound)
}

func TestUnit_ListSessionsScopedToAccount(t *testing.T) {
	ctx, store := setupSQLite(t)

	require.NoError(t, store.UpsertSession(ctx, &sessionstore.SessionRow{Key: "a", AccountID: "acc-1"}))
	require.NoError(t, store.UpsertSession(ctx, &sessionstore.SessionRow{Key: "b", AccountID: "acc-1"}))
	require.NoError(t, store.UpsertSession(ctx, &sessionstore.SessionRow{Key: "c", AccountID: "acc-2"}))

	rows, err := store.ListSessions(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	rows, err = store.ListSessions(ctx, "acc-3")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestUnit_DeleteSession(t *testing.T) {
	ctx, store := setupSQLite(t)

	require.NoError(t, store.UpsertSession(ctx, &sessionstore.SessionRow{Key: "s1"}))
	require.NoError(t, store.DeleteSession(ctx, "s1"))
	require.ErrorIs(t, store.DeleteSession(ctx, "s1"), libdbexec.ErrNotFound)
}

func TestUnit_LogAppendOrderAndCount(t *testing.T) {
	ctx, store := setupSQLite(t)

	now := time.Now().UTC()
	payload := func(text string) json.RawMessage {
		raw, err := json.Marshal(map[string]string{"role": "user", "content": text})
		require.NoError(t, err)
		return raw
	}
	require.NoError(t, store.AppendLog(ctx,
		&sessionstore.LogEntry{ID: uuid.NewString(), AccountID: "acc-1", SessionKey: "s1", Payload: payload("first"), AddedAt: now},
		&sessionstore.LogEntry{ID: uuid.NewString(), AccountID: "acc-1", SessionKey: "s1", Payload: payload("second"), AddedAt: now.Add(time.Millisecond)},
	))
	require.NoError(t, store.AppendLog(ctx,
		&sessionstore.LogEntry{ID: uuid.NewString(), AccountID: "acc-1", SessionKey: "other", Payload: payload("elsewhere"), AddedAt: now},
	))

	entries, err := store.ListLog(ctx, "acc-1", "s1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Contains(t, string(entries[0].Payload), "first")
	assert.Contains(t, string(entries[1].Payload), "second")

	count, err := store.CountLog(ctx, "acc-1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestUnit_ClearLog(t *testing.T) {
	ctx, store := setupSQLite(t)

	require.NoError(t, store.AppendLog(ctx, &sessionstore.LogEntry{
		ID: uuid.NewString(), AccountID: "acc-1", SessionKey: "s1", Payload: json.RawMessage(`{}`),
	}))
	require.NoError(t, store.ClearLog(ctx, "acc-1", "s1"))

	count, err := store.CountLog(ctx, "acc-1", "s1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUnit_ActiveKeyRoundTrip(t *testing.T) {
	ctx, store := setupSQLite(t)
	keystore := sessionstore.NewActiveKeyStore(store)

	key, err := keystore.LoadActiveKey(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)

	require.NoError(t, keystore.SaveActiveKey(ctx, "s2"))
	require.NoError(t, keystore.SaveActiveKey(ctx, "s3"))

	key, err = keystore.LoadActiveKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s3", key)
}
