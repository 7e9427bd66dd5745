package pushsync_test

import (
	"context"
	"testing"
	"time"

	"github.com/parley-dev/parley/historycache"
	"github.com/parley-dev/parley/internal/pushsync"
	"github.com/parley-dev/parley/libbus"
	"github.com/parley-dev/parley/libdispatch"
	"github.com/parley-dev/parley/sessionregistry"
	"github.com/parley-dev/parley/sessiontype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	registry   sessionregistry.Service
	cache      historycache.Service
	dispatcher *libdispatch.Dispatcher
	router     *pushsync.Router
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		registry:   sessionregistry.New(context.Background(), nil),
		cache:      historycache.New(),
		dispatcher: libdispatch.New(),
	}
	h.router = pushsync.New(h.registry, h.cache, h.dispatcher, nil)
	return h
}

func TestUnit_SessionUpdatedFlatPayload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.router.Apply(ctx, pushsync.SubjectSessionUpdated,
		[]byte(`{"key":"s1","label":"Research","messageCount":4,"version":2}`))

	got, ok := h.registry.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "Research", got.Label)
	assert.Equal(t, 4, got.MessageCount)
	assert.Equal(t, uint64(2), got.Version)
}

func TestUnit_SessionUpdatedNestedPayload(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.router.Apply(ctx, pushsync.SubjectSessionUpdated,
		[]byte(`{"session":{"key":"s1","label":"Nested","archived":true,"version":1}}`))

	got, ok := h.registry.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "Nested", got.Label)
	assert.True(t, got.Archived)
}

func TestUnit_StaleSessionPushDiscarded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.router.Apply(ctx, pushsync.SubjectSessionUpdated,
		[]byte(`{"key":"s1","label":"Fresh","version":5}`))
	h.router.Apply(ctx, pushsync.SubjectSessionUpdated,
		[]byte(`{"key":"s1","label":"Stale","version":3}`))

	got, _ := h.registry.Get("s1")
	assert.Equal(t, "Fresh", got.Label)
}

func TestUnit_HistoryMessageUpserts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.router.Apply(ctx, pushsync.SubjectHistoryMessage,
		[]byte(`{"sessionKey":"s1","message":{"role":"user","content":"hello","historyIndex":0}}`))

	msgs := h.cache.Messages("s1")
	require.Len(t, msgs, 1)
	assert.Equal(t, sessiontype.RoleUser, msgs[0].Role)
	require.NotNil(t, msgs[0].HistoryIndex)
	assert.Equal(t, 0, *msgs[0].HistoryIndex)
}

func TestUnit_AssistantMessageOnInactiveSessionBumpsUnread(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.registry.SetActive(ctx, "active"))
	h.router.Apply(ctx, pushsync.SubjectHistoryMessage,
		[]byte(`{"sessionKey":"other","message":{"role":"assistant","content":"done","historyIndex":3}}`))
	h.router.Apply(ctx, pushsync.SubjectHistoryMessage,
		[]byte(`{"sessionKey":"active","message":{"role":"assistant","content":"done","historyIndex":3}}`))

	other, _ := h.registry.Get("other")
	assert.Equal(t, 1, other.LocalUnread)
	active, _ := h.registry.Get("active")
	assert.Equal(t, 0, active.LocalUnread)
}

func TestUnit_StreamThenCommitCollapses(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.router.Apply(ctx, pushsync.SubjectChatStream,
		[]byte(`{"sessionKey":"s1","runId":"run-9","text":"thinking ab"}`))
	h.router.Apply(ctx, pushsync.SubjectChatStream,
		[]byte(`{"sessionKey":"s1","runId":"run-9","text":"thinking about it"}`))

	msgs := h.cache.Messages("s1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "thinking about it", msgs[0].Content)
	got, _ := h.registry.Get("s1")
	assert.Equal(t, "thinking about it", got.StreamText)

	h.router.Apply(ctx, pushsync.SubjectHistoryMessage,
		[]byte(`{"sessionKey":"s1","message":{"role":"assistant","run_id":"run-9","content":"final","historyIndex":1}}`))

	msgs = h.cache.Messages("s1")
	require.Len(t, msgs, 1)
	assert.Equal(t, "final", msgs[0].Content)
}

func TestUnit_ChatStateClearsStreamText(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.router.Apply(ctx, pushsync.SubjectChatState,
		[]byte(`{"sessionKey":"s1","replying":true}`))
	got, _ := h.registry.Get("s1")
	assert.True(t, got.Replying)

	h.registry.SetStreamText(ctx, "s1", "partial")
	h.router.Apply(ctx, pushsync.SubjectChatState,
		[]byte(`{"sessionKey":"s1","replying":false}`))

	got, _ = h.registry.Get("s1")
	assert.False(t, got.Replying)
	assert.Empty(t, got.StreamText)
}

func TestUnit_MalformedPayloadsAreNoOps(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	payloads := [][]byte{
		[]byte(`not json at all`),
		[]byte(`{"label":"no key"}`),
		[]byte(`{"key":42}`),
		[]byte(`{"sessionKey":"s1"}`),
		[]byte(`{"sessionKey":"s1","message":"not an object"}`),
		[]byte(`[]`),
		nil,
	}
	for _, subject := range []string{
		pushsync.SubjectSessionUpdated,
		pushsync.SubjectHistoryMessage,
		pushsync.SubjectChatStream,
		pushsync.SubjectChatState,
	} {
		for _, payload := range payloads {
			h.router.Apply(ctx, subject, payload)
		}
	}

	assert.Empty(t, h.registry.List())
	assert.Equal(t, 0, h.cache.Len("s1"))
}

func TestUnit_AppliedPushNotifiesSubscribers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	var keys []string
	h.dispatcher.Subscribe(pushsync.TopicSessionsChanged, func(topic string, payload any) {
		keys = append(keys, payload.(string))
	})

	h.router.Apply(ctx, pushsync.SubjectSessionUpdated, []byte(`{"key":"s1","version":1}`))
	h.router.Apply(ctx, pushsync.SubjectSessionUpdated, []byte(`{"bogus":true}`))

	assert.Equal(t, []string{"s1"}, keys)
}

func TestUnit_StartRoutesBusEvents(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := newHarness(t)
	ps, cleanup, err := libbus.NewTestPubSub()
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, h.router.Start(ctx, ps))

	require.NoError(t, ps.Publish(ctx, pushsync.SubjectSessionUpdated,
		[]byte(`{"key":"s1","label":"via bus","version":1}`)))

	require.Eventually(t, func() bool {
		got, ok := h.registry.Get("s1")
		return ok && got.Label == "via bus"
	}, 2*time.Second, 10*time.Millisecond)
}
