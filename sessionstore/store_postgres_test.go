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

func setupPostgres(t *testing.T) (context.Context, sessionstore.Store) {
	t.Helper()
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.TODO()
	connStr, _, cleanup, err := libdbexec.SetupLocalInstance(ctx, "test", "test", "test")
	require.NoError(t, err)
	db, err := libdbexec.NewPostgresDBManager(ctx, connStr, sessionstore.Schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
		cleanup()
	})
	return ctx, sessionstore.New(db.WithoutTransaction())
}

func TestSystem_PostgresSessionRoundTrip(t *testing.T) {
	ctx, store := setupPostgres(t)

	require.NoError(t, store.UpsertSession(ctx, &sessionstore.SessionRow{
		Key:          "s1",
		AccountID:    "acc-1",
		Label:        "Main",
		MessageCount: 2,
		Version:      1,
	}))
	require.NoError(t, store.UpsertSession(ctx, &sessionstore.SessionRow{
		Key:          "s1",
		AccountID:    "acc-1",
		Label:        "Main (renamed)",
		MessageCount: 3,
		Version:      2,
	}))

	got, err := store.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Main (renamed)", got.Label)
	assert.Equal(t, uint64(2), got.Version)

	rows, err := store.ListSessions(ctx, "acc-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestSystem_PostgresLogIsAppendOnlyOrdered(t *testing.T) {
	ctx, store := setupPostgres(t)

	now := time.Now().UTC()
	for i, text := range []string{"one", "two", "three"} {
		raw, err := json.Marshal(map[string]any{"role": "user", "content": text})
		require.NoError(t, err)
		require.NoError(t, store.AppendLog(ctx, &sessionstore.LogEntry{
			ID:         uuid.NewString(),
			AccountID:  "acc-1",
			SessionKey: "s1",
			Payload:    raw,
			AddedAt:    now.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	entries, err := store.ListLog(ctx, "acc-1", "s1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Contains(t, string(entries[0].Payload), "one")
	assert.Contains(t, string(entries[2].Payload), "three")

	count, err := store.CountLog(ctx, "acc-1", "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
