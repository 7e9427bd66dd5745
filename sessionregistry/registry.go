// Package sessionregistry maintains the local mirror of the gateway's
// session set. Server-authoritative fields arrive through version-gated
// merges; client-local fields (replying, unread, stream text) are owned
// by this process and never overwritten by a merge. Push payloads are
// best-effort: malformed input is treated as absent and nothing panics.
package sessionregistry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/parley-dev/parley/sessiontype"
)

// ActiveKeyStore persists the active session key across restarts.
// Persistence is best-effort; a failing store never fails the mirror.
type ActiveKeyStore interface {
	LoadActiveKey(ctx context.Context) (string, error)
	SaveActiveKey(ctx context.Context, key string) error
}

// Service is the write surface of the session mirror. All mutation goes
// through these entry points; that is what enforces the merge
// invariants. Reads are safe from any goroutine and return copies.
type Service interface {
	// ReplaceAll applies an authoritative session list: records merge
	// into existing entries by key (entries keep their identity), new
	// keys are created, keys absent from the list are dropped, and the
	// incoming order is preserved.
	ReplaceAll(ctx context.Context, records []sessiontype.SessionRecord)
	// UpsertOne applies a single pushed session record; new keys append.
	UpsertOne(ctx context.Context, record sessiontype.SessionRecord)
	// BumpCount optimistically adjusts the message count. On the active
	// session it advances lastSeen to match so a user's own message
	// never shows up as unread.
	BumpCount(ctx context.Context, key string, delta int)
	// SyncCounts authoritatively overwrites both counters, bypassing
	// monotonicity. Use only after a destructive clear or when loading
	// a freshly fetched history on a session switch.
	SyncCounts(ctx context.Context, key string, messageCount, lastSeen int)
	// MarkSeen advances lastSeen to the current message count and drops
	// the local unread counter.
	MarkSeen(ctx context.Context, key string)
	// SetActive records and durably persists the active session key.
	SetActive(ctx context.Context, key string) error
	ActiveKey() string

	// Client-local field writes.
	SetReplying(ctx context.Context, key string, replying bool)
	SetStreamText(ctx context.Context, key string, text string)
	SetTokens(ctx context.Context, key string, sessionTokens, contextWindow int)
	BumpLocalUnread(ctx context.Context, key string)

	Get(key string) (sessiontype.Session, bool)
	List() []sessiontype.Session
	// DataVersionOf returns the change counter for one session
	// (0 if absent), the cheapest staleness probe a consumer can poll.
	DataVersionOf(key string) uint64
}

type registry struct {
	mu       sync.RWMutex
	byKey    map[string]*sessiontype.Session
	order    []*sessiontype.Session
	active   string
	keystore ActiveKeyStore
}

// New creates a session registry. keystore may be nil; SetActive then
// keeps the key in memory only.
func New(ctx context.Context, keystore ActiveKeyStore) Service {
	r := &registry{
		byKey:    make(map[string]*sessiontype.Session),
		keystore: keystore,
		active:   sessiontype.DefaultSessionKey,
	}
	if keystore != nil {
		if key, err := keystore.LoadActiveKey(ctx); err == nil && key != "" {
			r.active = key
		}
	}
	return r
}

func (r *registry) ReplaceAll(ctx context.Context, records []sessiontype.SessionRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(records))
	order := make([]*sessiontype.Session, 0, len(records))
	for _, rec := range records {
		if rec.Key == "" || seen[rec.Key] {
			continue
		}
		seen[rec.Key] = true
		entity := r.byKey[rec.Key]
		if entity == nil {
			entity = r.create(rec.Key)
		}
		r.merge(entity, rec)
		order = append(order, entity)
	}
	for key := range r.byKey {
		if !seen[key] {
			delete(r.byKey, key)
		}
	}
	r.order = order
}

func (r *registry) UpsertOne(ctx context.Context, record sessiontype.SessionRecord) {
	if record.Key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entity := r.byKey[record.Key]
	if entity == nil {
		entity = r.create(record.Key)
		r.order = append(r.order, entity)
	}
	r.merge(entity, record)
}

// merge applies a server record to an entity in place. The version gate
// is all-or-nothing: a payload whose version regresses against a
// non-zero held version is a reordered stale snapshot and is discarded
// wholesale. Count monotonicity is a secondary, field-local filter
// applied only once the version gate passes. Returns whether the
// payload was accepted.
func (r *registry) merge(entity *sessiontype.Session, rec sessiontype.SessionRecord) bool {
	if entity.Version != 0 && rec.Version != 0 && rec.Version < entity.Version {
		return false
	}

	entity.Label = rec.Label
	entity.Model = rec.Model
	entity.Provider = rec.Provider
	entity.ProjectID = rec.ProjectID
	entity.Preview = rec.Preview
	entity.Archived = rec.Archived
	entity.McpDisabled = rec.McpDisabled
	entity.ChannelBinding = rec.ChannelBinding
	entity.ParentSessionKey = rec.ParentSessionKey
	entity.ForkPoint = rec.ForkPoint
	if rec.CreatedAt != 0 {
		entity.CreatedAt = rec.CreatedAt
	}
	if rec.UpdatedAt != 0 {
		entity.UpdatedAt = rec.UpdatedAt
	}
	// Counters only ever move forward under an ordinary merge; a lower
	// count in an otherwise-accepted payload is a partial stale field,
	// not a rollback.
	if rec.MessageCount >= entity.MessageCount {
		entity.MessageCount = rec.MessageCount
	}
	if rec.LastSeenMessageCount >= entity.LastSeenMessageCount {
		entity.LastSeenMessageCount = rec.LastSeenMessageCount
	}
	if rec.Version != 0 {
		entity.Version = rec.Version
	}
	entity.DataVersion++
	return true
}

func (r *registry) BumpCount(ctx context.Context, key string, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity := r.ensure(key)
	entity.MessageCount += delta
	if entity.MessageCount < 0 {
		entity.MessageCount = 0
	}
	if key == r.active {
		entity.LastSeenMessageCount = entity.MessageCount
	}
	entity.DataVersion++
}

func (r *registry) SyncCounts(ctx context.Context, key string, messageCount, lastSeen int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity := r.ensure(key)
	entity.MessageCount = messageCount
	entity.LastSeenMessageCount = lastSeen
	entity.DataVersion++
}

func (r *registry) MarkSeen(ctx context.Context, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity := r.ensure(key)
	entity.LastSeenMessageCount = entity.MessageCount
	entity.LocalUnread = 0
	entity.DataVersion++
}

func (r *registry) SetActive(ctx context.Context, key string) error {
	r.mu.Lock()
	r.active = key
	r.ensure(key)
	r.mu.Unlock()

	if r.keystore == nil {
		return nil
	}
	if err := r.keystore.SaveActiveKey(ctx, key); err != nil {
		slog.WarnContext(ctx, "active key not persisted", "key", key, "error", err)
		return err
	}
	return nil
}

func (r *registry) ActiveKey() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

func (r *registry) SetReplying(ctx context.Context, key string, replying bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entity := r.ensure(key)
	entity.Replying = replying
	entity.DataVersion++
}

func (r *registry) SetStreamText(ctx context.Context, key string, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entity := r.ensure(key)
	entity.StreamText = text
	entity.DataVersion++
}

func (r *registry) SetTokens(ctx context.Context, key string, sessionTokens, contextWindow int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entity := r.ensure(key)
	entity.SessionTokens = sessionTokens
	entity.ContextWindow = contextWindow
	entity.DataVersion++
}

func (r *registry) BumpLocalUnread(ctx context.Context, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entity := r.ensure(key)
	entity.LocalUnread++
	entity.DataVersion++
}

func (r *registry) Get(key string) (sessiontype.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entity, ok := r.byKey[key]
	if !ok {
		return sessiontype.Session{}, false
	}
	return *entity, true
}

func (r *registry) List() []sessiontype.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]sessiontype.Session, 0, len(r.order))
	for _, entity := range r.order {
		out = append(out, *entity)
	}
	return out
}

func (r *registry) DataVersionOf(key string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entity, ok := r.byKey[key]; ok {
		return entity.DataVersion
	}
	return 0
}

// ensure returns the entity for key, creating it on first reference.
// Callers hold the write lock.
func (r *registry) ensure(key string) *sessiontype.Session {
	if entity, ok := r.byKey[key]; ok {
		return entity
	}
	entity := r.create(key)
	r.order = append(r.order, entity)
	return entity
}

func (r *registry) create(key string) *sessiontype.Session {
	entity := &sessiontype.Session{
		Key:       key,
		CreatedAt: time.Now().UnixMilli(),
	}
	r.byKey[key] = entity
	return entity
}
