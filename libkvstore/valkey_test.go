package libkvstore_test

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	libkv "github.com/parley-dev/parley/libkvstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/valkey"
)

func setupValkeyInstance(ctx context.Context) (string, testcontainers.Container, func(), error) {
	cleanup := func() {}

	container, err := valkey.Run(ctx, "docker.io/valkey/valkey:7.2.5")
	if err != nil {
		return "", nil, cleanup, err
	}

	cleanup = func() {
		timeout := time.Second
		if err := container.Stop(ctx, &timeout); err != nil {
			panic(err)
		}
	}

	conn, err := container.ConnectionString(ctx)
	if err != nil {
		return "", nil, cleanup, err
	}
	return conn, container, cleanup, nil
}

func setupExecutor(t *testing.T) (context.Context, libkv.KVExec) {
	t.Helper()
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()

	connStr, _, cleanup, err := setupValkeyInstance(ctx)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	u, err := url.Parse(connStr)
	require.NoError(t, err)

	manager, err := libkv.NewManager(libkv.Config{KVAddr: u.Host}, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	kv, err := manager.Executor(ctx)
	require.NoError(t, err)
	return ctx, kv
}

func TestSystem_ValkeyCRUD(t *testing.T) {
	ctx, kv := setupExecutor(t)

	key := "snapshot:sessions"
	value := json.RawMessage(`[{"key":"main","version":1}]`)

	require.NoError(t, kv.Set(ctx, key, value))

	retrieved, err := kv.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, value, retrieved)

	exists, err := kv.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, kv.Delete(ctx, key))

	_, err = kv.Get(ctx, key)
	assert.ErrorIs(t, err, libkv.ErrNotFound)

	exists, err = kv.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSystem_ValkeyTTL(t *testing.T) {
	ctx, kv := setupExecutor(t)

	key := "snapshot:active"
	require.NoError(t, kv.SetWithTTL(ctx, key, json.RawMessage(`"main"`), 2*time.Second))

	time.Sleep(3 * time.Second)

	_, err := kv.Get(ctx, key)
	assert.ErrorIs(t, err, libkv.ErrNotFound)
}

func TestSystem_ValkeyKeys(t *testing.T) {
	ctx, kv := setupExecutor(t)

	keys := []string{"snapshot:a", "snapshot:b", "snapshot:c"}
	for _, key := range keys {
		require.NoError(t, kv.Set(ctx, key, json.RawMessage(`"v"`)))
	}

	listed, err := kv.Keys(ctx, "snapshot:*")
	require.NoError(t, err)

	listedMap := make(map[string]bool)
	for _, k := range listed {
		listedMap[k] = true
	}
	for _, key := range keys {
		assert.True(t, listedMap[key])
	}
}

func TestSystem_ValkeyListOperations(t *testing.T) {
	ctx, kv := setupExecutor(t)

	listKey := "pending:s1"
	values := []json.RawMessage{
		json.RawMessage(`"item1"`),
		json.RawMessage(`"item2"`),
		json.RawMessage(`"item3"`),
	}
	for _, v := range values {
		require.NoError(t, kv.ListPush(ctx, listKey, v))
	}

	items, err := kv.ListRange(ctx, listKey, 0, -1)
	require.NoError(t, err)
	require.Len(t, items, len(values))

	// LPUSH yields reverse insertion order.
	for i, expected := range []string{"item3", "item2", "item1"} {
		var actual string
		require.NoError(t, json.Unmarshal(items[i], &actual))
		assert.Equal(t, expected, actual)
	}

	popped, err := kv.ListRPop(ctx, listKey)
	require.NoError(t, err)
	var poppedValue string
	require.NoError(t, json.Unmarshal(popped, &poppedValue))
	assert.Equal(t, "item1", poppedValue)

	length, err := kv.ListLength(ctx, listKey)
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}

func TestSystem_ValkeySetOperations(t *testing.T) {
	ctx, kv := setupExecutor(t)

	setKey := "seen:s1"
	members := []json.RawMessage{
		json.RawMessage(`"member1"`),
		json.RawMessage(`"member2"`),
		json.RawMessage(`"member3"`),
	}
	for _, m := range members {
		require.NoError(t, kv.SetAdd(ctx, setKey, m))
	}

	setMembers, err := kv.SetMembers(ctx, setKey)
	require.NoError(t, err)
	require.Len(t, setMembers, len(members))

	memberMap := make(map[string]bool)
	for _, m := range setMembers {
		var s string
		require.NoError(t, json.Unmarshal(m, &s))
		memberMap[s] = true
	}
	for _, expected := range []string{"member1", "member2", "member3"} {
		assert.True(t, memberMap[expected])
	}
}
