// Package syncservice assembles the state mirror: it performs the
// initial authoritative load, routes pushed events, switches sessions,
// and keeps background resync and snapshot loops running under circuit
// breakers.
package syncservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/parley-dev/parley/gatewayclient"
	"github.com/parley-dev/parley/historycache"
	"github.com/parley-dev/parley/internal/pushsync"
	"github.com/parley-dev/parley/libbus"
	"github.com/parley-dev/parley/libdispatch"
	"github.com/parley-dev/parley/libroutine"
	"github.com/parley-dev/parley/libtracker"
	"github.com/parley-dev/parley/sessionregistry"
)

// Loop keys registered with the process-wide routine group.
const (
	resyncLoopKey   = "gateway-resync"
	snapshotLoopKey = "session-snapshot"
)

// Config tunes the background loops. Zero values disable a loop.
type Config struct {
	ResyncInterval   time.Duration
	SnapshotInterval time.Duration
}

// Service drives synchronization between the gateway and local stores.
type Service interface {
	// Start performs the warm start (best-effort snapshot), the initial
	// authoritative load, subscribes push events, and starts the
	// background loops. It returns once the initial load finished.
	Start(ctx context.Context) error
	// Refresh re-fetches the authoritative session list.
	Refresh(ctx context.Context) error
	// LoadHistory fetches and replaces one session's transcript and
	// authoritatively resyncs its counters.
	LoadHistory(ctx context.Context, sessionKey string) error
	// SwitchSession makes sessionKey active, loads its history, and
	// marks it seen.
	SwitchSession(ctx context.Context, sessionKey string) error
	// PatchSession sends a metadata patch to the gateway and merges the
	// confirmed record back into the registry.
	PatchSession(ctx context.Context, patch gatewayclient.PatchParams) error
}

type service struct {
	registry   sessionregistry.Service
	cache      historycache.Service
	client     gatewayclient.Caller
	dispatcher *libdispatch.Dispatcher
	router     *pushsync.Router
	ps         libbus.Messenger
	snapshots  SnapshotStore
	tracker    libtracker.ActivityTracker
	cfg        Config
}

var _ Service = (*service)(nil)

// New creates the sync assembly. snapshots and tracker may be nil.
func New(
	registry sessionregistry.Service,
	cache historycache.Service,
	client gatewayclient.Caller,
	dispatcher *libdispatch.Dispatcher,
	ps libbus.Messenger,
	snapshots SnapshotStore,
	tracker libtracker.ActivityTracker,
	cfg Config,
) Service {
	if tracker == nil {
		tracker = libtracker.NoopTracker{}
	}
	return &service{
		registry:   registry,
		cache:      cache,
		client:     client,
		dispatcher: dispatcher,
		router:     pushsync.New(registry, cache, dispatcher, tracker),
		ps:         ps,
		snapshots:  snapshots,
		tracker:    tracker,
		cfg:        cfg,
	}
}

func (s *service) Start(ctx context.Context) error {
	reportErrFn, reportChangeFn, endFn := s.tracker.Start(ctx, "start", "sync")
	defer endFn()

	// Warm start: a stale snapshot beats an empty screen while the
	// authoritative list is in flight.
	if s.snapshots != nil {
		if records, err := s.snapshots.LoadSessions(ctx); err == nil && len(records) > 0 {
			s.registry.ReplaceAll(ctx, records)
			s.dispatcher.Publish(pushsync.TopicSessionsChanged, "")
		} else if err != nil {
			slog.DebugContext(ctx, "session snapshot unavailable", "error", err)
		}
	}

	if err := s.Refresh(ctx); err != nil {
		reportErrFn(err)
		return fmt.Errorf("initial session list load: %w", err)
	}
	if err := s.LoadHistory(ctx, s.registry.ActiveKey()); err != nil {
		reportErrFn(err)
		return fmt.Errorf("initial history load: %w", err)
	}

	if err := s.router.Start(ctx, s.ps); err != nil {
		reportErrFn(err)
		return fmt.Errorf("subscribe push events: %w", err)
	}

	s.startLoops(ctx)
	reportChangeFn(s.registry.ActiveKey(), nil)
	return nil
}

func (s *service) startLoops(ctx context.Context) {
	group := libroutine.GetGroup()
	if s.cfg.ResyncInterval > 0 {
		group.StartLoop(ctx, &libroutine.LoopConfig{
			Key:          resyncLoopKey,
			Threshold:    3,
			ResetTimeout: 30 * time.Second,
			Interval:     s.cfg.ResyncInterval,
			Operation:    s.Refresh,
		})
	}
	if s.cfg.SnapshotInterval > 0 && s.snapshots != nil {
		group.StartLoop(ctx, &libroutine.LoopConfig{
			Key:          snapshotLoopKey,
			Threshold:    3,
			ResetTimeout: 30 * time.Second,
			Interval:     s.cfg.SnapshotInterval,
			Operation:    s.flushSnapshot,
		})
	}
}

func (s *service) Refresh(ctx context.Context) error {
	res, err := s.client.Call(ctx, gatewayclient.OpSessionsList, struct{}{})
	if err != nil {
		return err
	}
	var reply gatewayclient.ListReply
	if err := json.Unmarshal(res.Payload, &reply); err != nil {
		return fmt.Errorf("decode sessions.list reply: %w", err)
	}
	s.registry.ReplaceAll(ctx, reply.Sessions)
	s.dispatcher.Publish(pushsync.TopicSessionsChanged, "")
	return nil
}

func (s *service) LoadHistory(ctx context.Context, sessionKey string) error {
	res, err := s.client.Call(ctx, gatewayclient.OpChatHistory, gatewayclient.SessionParams{
		SessionKey: sessionKey,
	})
	if err != nil {
		return err
	}
	var reply gatewayclient.HistoryReply
	if err := json.Unmarshal(res.Payload, &reply); err != nil {
		return fmt.Errorf("decode chat.history reply: %w", err)
	}

	s.cache.Replace(ctx, sessionKey, reply.Messages)
	messageCount := len(reply.Messages)
	if reply.MessageCount != nil {
		messageCount = *reply.MessageCount
	}
	// Absent lastSeen defaults to the message count: a transcript the
	// client just fetched whole has definitionally been seen.
	lastSeen := messageCount
	if reply.LastSeenMessageCount != nil {
		lastSeen = *reply.LastSeenMessageCount
	}
	// A freshly fetched transcript is authoritative for counts.
	s.registry.SyncCounts(ctx, sessionKey, messageCount, lastSeen)
	s.dispatcher.Publish(pushsync.TopicHistoryChanged, sessionKey)
	return nil
}

func (s *service) SwitchSession(ctx context.Context, sessionKey string) error {
	if err := s.registry.SetActive(ctx, sessionKey); err != nil {
		// The in-memory switch already happened; failed persistence
		// only costs the restored key on next start.
		slog.WarnContext(ctx, "active key persistence failed", "key", sessionKey, "error", err)
	}
	if err := s.LoadHistory(ctx, sessionKey); err != nil {
		return err
	}
	s.registry.MarkSeen(ctx, sessionKey)
	s.dispatcher.Publish(pushsync.TopicStateChanged, sessionKey)
	return nil
}

func (s *service) PatchSession(ctx context.Context, patch gatewayclient.PatchParams) error {
	res, err := s.client.Call(ctx, gatewayclient.OpSessionsPatch, patch)
	if err != nil {
		return err
	}
	// The gateway echoes the patched record; merging it through the
	// ordinary entry point keeps the version gate in charge.
	var reply gatewayclient.PatchReply
	if len(res.Payload) > 0 {
		if err := json.Unmarshal(res.Payload, &reply); err != nil {
			return fmt.Errorf("decode sessions.patch reply: %w", err)
		}
	}
	if reply.Session.Key != "" {
		s.registry.UpsertOne(ctx, reply.Session)
	}
	s.dispatcher.Publish(pushsync.TopicSessionsChanged, patch.SessionKey)
	return nil
}

func (s *service) flushSnapshot(ctx context.Context) error {
	return s.snapshots.SaveSessions(ctx, s.registry.List())
}
