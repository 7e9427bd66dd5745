// Package pushsync routes pushed gateway events into the session
// registry and history cache. Push delivery is at-least-once and
// unordered; correctness under reordering comes from the stores'
// merge invariants, not from sequencing here. Malformed payloads are
// local no-ops and never panic.
package pushsync

import (
	"context"
	"log/slog"

	"github.com/parley-dev/parley/historycache"
	"github.com/parley-dev/parley/libbus"
	"github.com/parley-dev/parley/libdispatch"
	"github.com/parley-dev/parley/libtracker"
	"github.com/parley-dev/parley/sessionregistry"
	"github.com/parley-dev/parley/sessiontype"
)

// Bus subjects carrying pushed events.
const (
	SubjectSessionUpdated = "push.session.updated"
	SubjectHistoryMessage = "push.history.message"
	SubjectChatStream     = "push.chat.stream"
	SubjectChatState      = "push.chat.state"
)

// Dispatcher topics published after an applied mutation.
const (
	TopicSessionsChanged = "sessions.changed"
	TopicHistoryChanged  = "history.changed"
	TopicStateChanged    = "state.changed"
)

var subjects = []string{
	SubjectSessionUpdated,
	SubjectHistoryMessage,
	SubjectChatStream,
	SubjectChatState,
}

// Router applies pushed events to the local stores and notifies
// dispatcher subscribers after each applied mutation.
type Router struct {
	registry   sessionregistry.Service
	cache      historycache.Service
	dispatcher *libdispatch.Dispatcher
	tracker    libtracker.ActivityTracker
}

// New creates a push router. tracker may be nil.
func New(
	registry sessionregistry.Service,
	cache historycache.Service,
	dispatcher *libdispatch.Dispatcher,
	tracker libtracker.ActivityTracker,
) *Router {
	if tracker == nil {
		tracker = libtracker.NoopTracker{}
	}
	return &Router{
		registry:   registry,
		cache:      cache,
		dispatcher: dispatcher,
		tracker:    tracker,
	}
}

type busEvent struct {
	subject string
	data    []byte
}

// Start subscribes the push subjects on the bus and applies incoming
// events on a single goroutine, so store mutations from pushes are
// serialized in arrival order. It returns after subscribing; the apply
// loop stops when ctx is cancelled.
func (r *Router) Start(ctx context.Context, ps libbus.Messenger) error {
	events := make(chan busEvent, 64)

	for _, subject := range subjects {
		ch := make(chan []byte, 16)
		sub, err := ps.Stream(ctx, subject, ch)
		if err != nil {
			return err
		}
		go func(subject string, ch chan []byte, sub libbus.Subscription) {
			defer sub.Unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return
				case data := <-ch:
					select {
					case events <- busEvent{subject: subject, data: data}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(subject, ch, sub)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-events:
				r.Apply(ctx, ev.subject, ev.data)
			}
		}
	}()
	return nil
}

// Apply routes one pushed event. Unknown subjects and payloads missing
// required fields are dropped.
func (r *Router) Apply(ctx context.Context, subject string, data []byte) {
	_, reportChangeFn, endFn := r.tracker.Start(ctx, "apply_push", "push_event", "subject", subject)
	defer endFn()

	doc, ok := decode(data)
	if !ok {
		slog.DebugContext(ctx, "dropping undecodable push payload", "subject", subject)
		return
	}

	switch subject {
	case SubjectSessionUpdated:
		r.applySessionUpdated(ctx, doc, reportChangeFn)
	case SubjectHistoryMessage:
		r.applyHistoryMessage(ctx, doc, reportChangeFn)
	case SubjectChatStream:
		r.applyChatStream(ctx, doc, reportChangeFn)
	case SubjectChatState:
		r.applyChatState(ctx, doc, reportChangeFn)
	default:
		slog.DebugContext(ctx, "dropping push event with unknown subject", "subject", subject)
	}
}

func (r *Router) applySessionUpdated(ctx context.Context, doc any, reportChangeFn func(string, any)) {
	record, ok := mapSessionRecord(doc)
	if !ok {
		return
	}
	r.registry.UpsertOne(ctx, record)
	r.dispatcher.Publish(TopicSessionsChanged, record.Key)
	reportChangeFn(record.Key, record.Version)
}

func (r *Router) applyHistoryMessage(ctx context.Context, doc any, reportChangeFn func(string, any)) {
	key, msg, ok := mapHistoryMessage(doc)
	if !ok {
		return
	}
	r.cache.Upsert(ctx, key, msg, nil)
	if key != r.registry.ActiveKey() && msg.Role == sessiontype.RoleAssistant {
		r.registry.BumpLocalUnread(ctx, key)
	}
	r.dispatcher.Publish(TopicHistoryChanged, key)
	reportChangeFn(key, msg.Role)
}

func (r *Router) applyChatStream(ctx context.Context, doc any, reportChangeFn func(string, any)) {
	key, runID, text, ok := mapChatStream(doc)
	if !ok {
		return
	}
	r.registry.SetStreamText(ctx, key, text)
	// Keep an indexless assistant placeholder in the transcript; the
	// committed indexed record collapses onto it by run identity.
	r.cache.Upsert(ctx, key, sessiontype.Message{
		Role:    sessiontype.RoleAssistant,
		Content: text,
		RunID:   runID,
	}, nil)
	r.dispatcher.Publish(TopicHistoryChanged, key)
	reportChangeFn(key, runID)
}

func (r *Router) applyChatState(ctx context.Context, doc any, reportChangeFn func(string, any)) {
	key, replying, ok := mapChatState(doc)
	if !ok {
		return
	}
	r.registry.SetReplying(ctx, key, replying)
	if !replying {
		r.registry.SetStreamText(ctx, key, "")
	}
	r.dispatcher.Publish(TopicStateChanged, key)
	reportChangeFn(key, replying)
}
