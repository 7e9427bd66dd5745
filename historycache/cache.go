// Package historycache keeps the per-session message transcript mirror.
// Indexed records hold server-assigned durable positions and stay
// sorted ascending, unique per index. Indexless records are transient
// (optimistic or streaming) and deduplicate by role identity so the
// indexed version arriving later collapses onto the placeholder.
package historycache

import (
	"context"
	"sync"

	"github.com/parley-dev/parley/sessiontype"
)

// Service is the write surface of the history mirror. Every mutating
// call bumps the owning session's revision counter, including no-op
// replaces; consumers must tolerate redundant notifications.
type Service interface {
	// Replace authoritatively rebuilds one session's transcript.
	Replace(ctx context.Context, key string, messages []sessiontype.Message)
	// Upsert applies one message. explicitIndex overrides the message's
	// embedded history index when non-nil. With an index available the
	// record replaces an equal-index entry in place or inserts in sorted
	// position; without one it dedupes by role identity, else appends.
	Upsert(ctx context.Context, key string, message sessiontype.Message, explicitIndex *int)
	// RemoveTransient deletes the indexless record carrying the given
	// client sequence number and returns it. The whole removal happens
	// in one critical section, so records upserted concurrently are
	// never lost. The revision bumps whether or not a record matched.
	RemoveTransient(ctx context.Context, key string, seq uint64) (sessiontype.Message, bool)
	// Purge drops one session's transcript entirely.
	Purge(ctx context.Context, key string)
	// PurgeAll drops every session's transcript.
	PurgeAll(ctx context.Context)
	// RevisionOf returns the session's change counter, 0 when absent.
	// It is the sole primitive a consumer needs to detect staleness.
	RevisionOf(key string) uint64
	// Messages returns a snapshot copy of the session's transcript.
	Messages(key string) []sessiontype.Message
	// Len returns the number of cached messages for the session.
	Len(key string) int
}

type entry struct {
	messages []sessiontype.Message
	revision uint64
}

type cache struct {
	mu      sync.RWMutex
	byKey   map[string]*entry
	purgeRv map[string]uint64
}

var _ Service = (*cache)(nil)

// New creates an empty history cache.
func New() Service {
	return &cache{
		byKey:   make(map[string]*entry),
		purgeRv: make(map[string]uint64),
	}
}

func (c *cache) Replace(ctx context.Context, key string, messages []sessiontype.Message) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.ensure(key)
	e.messages = e.messages[:0]
	for _, msg := range messages {
		e.apply(msg, nil)
	}
	e.revision++
}

func (c *cache) Upsert(ctx context.Context, key string, message sessiontype.Message, explicitIndex *int) {
	if key == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.ensure(key)
	e.apply(message, explicitIndex)
	e.revision++
}

// apply places one message into the ordered list without bumping the
// revision; callers bump once per public mutation.
func (e *entry) apply(msg sessiontype.Message, explicitIndex *int) {
	idx := msg.HistoryIndex
	if explicitIndex != nil {
		idx = explicitIndex
		msg.HistoryIndex = explicitIndex
	}

	if idx != nil {
		e.applyIndexed(msg, *idx)
		return
	}
	if id := msg.Identity(); id != "" {
		for i := range e.messages {
			if !e.messages[i].Indexed() && e.messages[i].Identity() == id {
				e.messages[i] = msg
				return
			}
		}
	}
	e.messages = append(e.messages, msg)
}

// applyIndexed replaces an equal-index record in place, otherwise
// inserts before the first record with a greater index. Indexless
// records sit after all indexed ones, so a scan from the front finds
// the slot without a full re-sort. An arriving indexed record also
// collapses any indexless placeholder sharing its identity.
func (e *entry) applyIndexed(msg sessiontype.Message, idx int) {
	if id := msg.Identity(); id != "" {
		for i := range e.messages {
			if !e.messages[i].Indexed() && e.messages[i].Identity() == id {
				e.messages = append(e.messages[:i], e.messages[i+1:]...)
				break
			}
		}
	}

	at := len(e.messages)
	for i := range e.messages {
		if !e.messages[i].Indexed() {
			at = i
			break
		}
		existing := *e.messages[i].HistoryIndex
		if existing == idx {
			e.messages[i] = msg
			return
		}
		if existing > idx {
			at = i
			break
		}
	}
	e.messages = append(e.messages, sessiontype.Message{})
	copy(e.messages[at+1:], e.messages[at:])
	e.messages[at] = msg
}

func (c *cache) RemoveTransient(ctx context.Context, key string, seq uint64) (sessiontype.Message, bool) {
	if key == "" || seq == 0 {
		// Transient notices and placeholders carry Seq 0; a zero lookup
		// must never match one of those.
		return sessiontype.Message{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.ensure(key)
	e.revision++
	for i := range e.messages {
		if e.messages[i].Indexed() || e.messages[i].Seq != seq {
			continue
		}
		removed := e.messages[i]
		e.messages = append(e.messages[:i], e.messages[i+1:]...)
		return removed, true
	}
	return sessiontype.Message{}, false
}

func (c *cache) Purge(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.byKey[key]; ok {
		// Revisions survive a purge so a later re-create cannot hand a
		// consumer a counter it has already seen.
		c.purgeRv[key] = e.revision + 1
		delete(c.byKey, key)
	}
}

func (c *cache) PurgeAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, e := range c.byKey {
		c.purgeRv[key] = e.revision + 1
		delete(c.byKey, key)
	}
}

func (c *cache) RevisionOf(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.byKey[key]; ok {
		return e.revision
	}
	return 0
}

func (c *cache) Messages(key string) []sessiontype.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.byKey[key]
	if !ok {
		return nil
	}
	out := make([]sessiontype.Message, len(e.messages))
	copy(out, e.messages)
	return out
}

func (c *cache) Len(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.byKey[key]; ok {
		return len(e.messages)
	}
	return 0
}

// ensure returns the entry for key, creating it on first reference.
// Callers hold the write lock.
func (c *cache) ensure(key string) *entry {
	if e, ok := c.byKey[key]; ok {
		return e
	}
	e := &entry{revision: c.purgeRv[key]}
	c.byKey[key] = e
	return e
}
