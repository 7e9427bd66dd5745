package pushsync

import (
	"encoding/json"

	"github.com/PaesslerAG/jsonpath"
	"github.com/parley-dev/parley/sessiontype"
)

// Push payloads are loosely shaped: producers nest fields differently
// across gateway versions, so extraction goes through jsonpath with
// fallback paths per field instead of rigid struct decoding.

func decode(data []byte) (any, bool) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// field extracts a value by trying each path in order.
func field(doc any, paths ...string) (any, bool) {
	for _, path := range paths {
		result, err := jsonpath.Get("$."+path, doc)
		if err != nil || result == nil {
			continue
		}
		if slice, ok := result.([]any); ok {
			if len(slice) == 0 {
				continue
			}
			return slice[0], true
		}
		return result, true
	}
	return nil, false
}

func strField(doc any, paths ...string) (string, bool) {
	v, ok := field(doc, paths...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func intField(doc any, paths ...string) (int, bool) {
	v, ok := field(doc, paths...)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func boolField(doc any, paths ...string) (bool, bool) {
	v, ok := field(doc, paths...)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// mapSessionRecord extracts a session snapshot. The record may arrive
// flat or nested under "session"; key is the only required field.
func mapSessionRecord(doc any) (sessiontype.SessionRecord, bool) {
	key, ok := strField(doc, "key", "session.key")
	if !ok || key == "" {
		return sessiontype.SessionRecord{}, false
	}

	rec := sessiontype.SessionRecord{Key: key}
	rec.Label, _ = strField(doc, "label", "session.label")
	rec.Model, _ = strField(doc, "model", "session.model")
	rec.Provider, _ = strField(doc, "provider", "session.provider")
	rec.ProjectID, _ = strField(doc, "projectId", "session.projectId")
	rec.Preview, _ = strField(doc, "preview", "session.preview")
	rec.ParentSessionKey, _ = strField(doc, "parentSessionKey", "session.parentSessionKey")
	rec.MessageCount, _ = intField(doc, "messageCount", "session.messageCount")
	rec.LastSeenMessageCount, _ = intField(doc, "lastSeenMessageCount", "session.lastSeenMessageCount")
	rec.Archived, _ = boolField(doc, "archived", "session.archived")
	rec.McpDisabled, _ = boolField(doc, "mcpDisabled", "session.mcpDisabled")

	if created, ok := intField(doc, "createdAt", "session.createdAt"); ok {
		rec.CreatedAt = int64(created)
	}
	if updated, ok := intField(doc, "updatedAt", "session.updatedAt"); ok {
		rec.UpdatedAt = int64(updated)
	}
	if version, ok := intField(doc, "version", "session.version"); ok && version >= 0 {
		rec.Version = uint64(version)
	}
	if forkPoint, ok := intField(doc, "forkPoint", "session.forkPoint"); ok {
		rec.ForkPoint = &forkPoint
	}
	if channel, ok := strField(doc, "channelBinding.channelType", "session.channelBinding.channelType"); ok {
		binding := &sessiontype.ChannelBinding{ChannelType: channel}
		binding.AccountID, _ = strField(doc, "channelBinding.accountId", "session.channelBinding.accountId")
		binding.ChatID, _ = strField(doc, "channelBinding.chatId", "session.channelBinding.chatId")
		rec.ChannelBinding = binding
	}
	return rec, true
}

// mapHistoryMessage extracts the session key and one message. The
// message body keeps its wire shape, so after locating it the remainder
// decodes through the Message struct.
func mapHistoryMessage(doc any) (string, sessiontype.Message, bool) {
	key, ok := strField(doc, "sessionKey", "key")
	if !ok || key == "" {
		return "", sessiontype.Message{}, false
	}

	body, ok := field(doc, "message")
	if !ok {
		return "", sessiontype.Message{}, false
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return "", sessiontype.Message{}, false
	}
	var msg sessiontype.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return "", sessiontype.Message{}, false
	}
	if msg.Role == "" {
		return "", sessiontype.Message{}, false
	}
	return key, msg, true
}

func mapChatStream(doc any) (key, runID, text string, ok bool) {
	key, ok = strField(doc, "sessionKey", "key")
	if !ok || key == "" {
		return "", "", "", false
	}
	runID, ok = strField(doc, "runId", "run_id")
	if !ok || runID == "" {
		return "", "", "", false
	}
	text, _ = strField(doc, "text", "delta", "content")
	return key, runID, text, true
}

func mapChatState(doc any) (key string, replying, ok bool) {
	key, ok = strField(doc, "sessionKey", "key")
	if !ok || key == "" {
		return "", false, false
	}
	replying, ok = boolField(doc, "replying", "state.replying")
	if !ok {
		return "", false, false
	}
	return key, replying, true
}
