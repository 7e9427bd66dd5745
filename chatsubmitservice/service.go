// Package chatsubmitservice orchestrates outgoing chat messages: it
// applies optimistic local effects, issues the gateway call, and
// reconciles the outcome (accepted, queued server-side, or failed).
// Slash-form inputs route to dedicated operations and never enter the
// optimistic history path.
package chatsubmitservice

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parley-dev/parley/gatewayclient"
	"github.com/parley-dev/parley/historycache"
	"github.com/parley-dev/parley/libdispatch"
	"github.com/parley-dev/parley/sessionregistry"
	"github.com/parley-dev/parley/sessiontype"
)

// Dispatcher topics published after local mutations.
const (
	TopicHistoryChanged  = "history.changed"
	TopicSessionsChanged = "sessions.changed"
	TopicStateChanged    = "state.changed"
)

// Input is one staged outgoing message.
type Input struct {
	Text  string
	Parts []sessiontype.ContentPart
	// Model overrides the session's configured model for this turn.
	Model string
}

// Service coordinates chat submission for all sessions.
type Service interface {
	// Submit sends one message. The optimistic user entry lands in the
	// history cache before the call is issued; the returned error
	// reports the call outcome (the optimistic entry is retained on
	// failure, only the replying indicator is cleared).
	Submit(ctx context.Context, sessionKey string, input Input) error
	// CancelQueued asks the gateway to drop all queued messages for the
	// session. The local tray clears only on server confirmation.
	CancelQueued(ctx context.Context, sessionKey string) error
	// QueuedItems returns a snapshot of the session's pending tray.
	QueuedItems(sessionKey string) []sessiontype.Message
	// TrayVisible reports whether the pending tray has entries to show.
	TrayVisible(sessionKey string) bool
}

type service struct {
	registry   sessionregistry.Service
	cache      historycache.Service
	client     gatewayclient.Caller
	dispatcher *libdispatch.Dispatcher

	seq atomic.Uint64

	mu   sync.Mutex
	tray map[string][]sessiontype.Message
}

var _ Service = (*service)(nil)

// New creates a chat submission coordinator.
func New(
	registry sessionregistry.Service,
	cache historycache.Service,
	client gatewayclient.Caller,
	dispatcher *libdispatch.Dispatcher,
) Service {
	return &service{
		registry:   registry,
		cache:      cache,
		client:     client,
		dispatcher: dispatcher,
		tray:       make(map[string][]sessiontype.Message),
	}
}

func (s *service) Submit(ctx context.Context, sessionKey string, input Input) error {
	if strings.HasPrefix(strings.TrimSpace(input.Text), "/") {
		return s.runSlashCommand(ctx, sessionKey, strings.TrimSpace(input.Text))
	}

	optimistic := sessiontype.Message{
		Role:      sessiontype.RoleUser,
		Content:   input.Text,
		Parts:     input.Parts,
		Seq:       s.seq.Add(1),
		CreatedAt: time.Now().UnixMilli(),
	}

	s.cache.Upsert(ctx, sessionKey, optimistic, nil)
	s.registry.BumpCount(ctx, sessionKey, 1)
	s.registry.SetReplying(ctx, sessionKey, true)
	s.dispatcher.Publish(TopicHistoryChanged, sessionKey)
	s.dispatcher.Publish(TopicSessionsChanged, sessionKey)

	res, err := s.client.Call(ctx, gatewayclient.OpChatSend, gatewayclient.SendParams{
		SessionKey: sessionKey,
		Message:    input.Text,
		Parts:      input.Parts,
		Model:      input.Model,
		Seq:        optimistic.Seq,
	})
	if err != nil {
		// The text itself is not falsified by a transport failure, so
		// the optimistic entry stays; only the replying indicator
		// clears so resubmission is possible.
		s.registry.SetReplying(ctx, sessionKey, false)
		s.notice(ctx, sessionKey, fmt.Sprintf("send failed: %s", callErrorText(res, err)))
		return err
	}

	var reply gatewayclient.SendReply
	if len(res.Payload) > 0 {
		if err := json.Unmarshal(res.Payload, &reply); err != nil {
			reply = gatewayclient.SendReply{}
		}
	}
	if reply.Queued {
		s.moveToTray(ctx, sessionKey, optimistic)
		s.dispatcher.Publish(TopicStateChanged, sessionKey)
	}
	return nil
}

// moveToTray relocates the optimistic entry from the transcript into
// the session's pending tray. The cache removal keys on the client Seq
// inside one cache critical section, so records landing concurrently
// (streamed or pushed mid-call) are untouched.
func (s *service) moveToTray(ctx context.Context, sessionKey string, msg sessiontype.Message) {
	if removed, ok := s.cache.RemoveTransient(ctx, sessionKey, msg.Seq); ok {
		msg = removed
	}
	s.registry.BumpCount(ctx, sessionKey, -1)

	s.mu.Lock()
	s.tray[sessionKey] = append(s.tray[sessionKey], msg)
	s.mu.Unlock()

	s.dispatcher.Publish(TopicHistoryChanged, sessionKey)
}

func (s *service) CancelQueued(ctx context.Context, sessionKey string) error {
	_, err := s.client.Call(ctx, gatewayclient.OpChatCancelQueued, gatewayclient.SessionParams{
		SessionKey: sessionKey,
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.tray, sessionKey)
	s.mu.Unlock()

	s.registry.SetReplying(ctx, sessionKey, false)
	s.dispatcher.Publish(TopicStateChanged, sessionKey)
	return nil
}

func (s *service) QueuedItems(sessionKey string) []sessiontype.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.tray[sessionKey]
	out := make([]sessiontype.Message, len(items))
	copy(out, items)
	return out
}

func (s *service) TrayVisible(sessionKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tray[sessionKey]) > 0
}

func (s *service) runSlashCommand(ctx context.Context, sessionKey, text string) error {
	command := text
	if i := strings.IndexByte(command, ' '); i >= 0 {
		command = command[:i]
	}

	switch command {
	case "/clear":
		if _, err := s.client.Call(ctx, gatewayclient.OpChatClear, gatewayclient.SessionParams{SessionKey: sessionKey}); err != nil {
			s.notice(ctx, sessionKey, "clear failed: "+err.Error())
			return err
		}
		s.cache.Purge(ctx, sessionKey)
		s.registry.SyncCounts(ctx, sessionKey, 0, 0)
		s.notice(ctx, sessionKey, "history cleared")
		s.dispatcher.Publish(TopicSessionsChanged, sessionKey)
		return nil

	case "/compact":
		if _, err := s.client.Call(ctx, gatewayclient.OpChatCompact, gatewayclient.SessionParams{SessionKey: sessionKey}); err != nil {
			s.notice(ctx, sessionKey, "compact failed: "+err.Error())
			return err
		}
		s.notice(ctx, sessionKey, "compaction requested")
		return nil

	case "/context":
		res, err := s.client.Call(ctx, gatewayclient.OpChatContext, gatewayclient.SessionParams{SessionKey: sessionKey})
		if err != nil {
			s.notice(ctx, sessionKey, "context failed: "+err.Error())
			return err
		}
		var reply gatewayclient.ContextReply
		if err := json.Unmarshal(res.Payload, &reply); err != nil {
			s.notice(ctx, sessionKey, "context failed: unreadable reply")
			return fmt.Errorf("decode chat.context reply: %w", err)
		}
		s.registry.SetTokens(ctx, sessionKey, reply.SessionTokens, reply.ContextWindow)
		s.notice(ctx, sessionKey, fmt.Sprintf("context: %d of %d tokens", reply.SessionTokens, reply.ContextWindow))
		s.dispatcher.Publish(TopicSessionsChanged, sessionKey)
		return nil

	case "/abort":
		if _, err := s.client.Call(ctx, gatewayclient.OpChatAbort, gatewayclient.SessionParams{SessionKey: sessionKey}); err != nil {
			s.notice(ctx, sessionKey, "abort failed: "+err.Error())
			return err
		}
		s.registry.SetReplying(ctx, sessionKey, false)
		s.registry.SetStreamText(ctx, sessionKey, "")
		s.notice(ctx, sessionKey, "turn aborted")
		s.dispatcher.Publish(TopicSessionsChanged, sessionKey)
		return nil

	default:
		s.notice(ctx, sessionKey, "unknown command "+command)
		return fmt.Errorf("chatsubmitservice: unknown command %q", command)
	}
}

// notice appends a client-only inline message to the transcript.
func (s *service) notice(ctx context.Context, sessionKey, text string) {
	s.cache.Upsert(ctx, sessionKey, sessiontype.Message{
		Role:      sessiontype.RoleNotice,
		Content:   text,
		CreatedAt: time.Now().UnixMilli(),
	}, nil)
	s.dispatcher.Publish(TopicHistoryChanged, sessionKey)
}

func callErrorText(res gatewayclient.Result, err error) string {
	if res.Error != "" {
		return res.Error
	}
	return err.Error()
}
