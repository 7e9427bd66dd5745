package sessiontype

// Role classifies a history message.
type Role string

const (
	RoleSystem     Role = "system"
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleTool       Role = "tool"
	RoleToolResult Role = "tool_result"
	// RoleNotice is client-only: inline errors and slash-command results
	// rendered into the transcript but never sent to the server.
	RoleNotice Role = "notice"
)

// ContentPart is one block of structured (multimodal) message content.
type ContentPart struct {
	Type     string `json:"type"` // "text" or "image_url"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// ToolCall is a tool invocation recorded on an assistant message.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and raw JSON arguments of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry in a session's history.
//
// A message with a HistoryIndex occupies a durable, server-assigned
// position in the persisted log. A message without one is transient:
// optimistic (just sent, not yet confirmed) or streaming. Transient
// messages are deduplicated by role-specific identity so the indexed
// version arriving later collapses onto the placeholder.
type Message struct {
	Role         Role          `json:"role"`
	Content      string        `json:"content,omitempty"`
	Parts        []ContentPart `json:"parts,omitempty"`
	ToolCalls    []ToolCall    `json:"tool_calls,omitempty"`
	ToolCallID   string        `json:"tool_call_id,omitempty"`
	ToolName     string        `json:"tool_name,omitempty"`
	RunID        string        `json:"run_id,omitempty"`
	Seq          uint64        `json:"seq,omitempty"`
	HistoryIndex *int          `json:"historyIndex,omitempty"`
	Model        string        `json:"model,omitempty"`
	Provider     string        `json:"provider,omitempty"`
	InputTokens  int           `json:"inputTokens,omitempty"`
	OutputTokens int           `json:"outputTokens,omitempty"`
	CreatedAt    int64         `json:"created_at,omitempty"` // unix ms
}

// Indexed reports whether the message holds a durable history position.
func (m *Message) Indexed() bool {
	return m.HistoryIndex != nil
}

// Identity returns the role-specific natural key used to deduplicate
// indexless messages, or "" when the role has no dedup rule and the
// message plainly appends.
func (m *Message) Identity() string {
	switch m.Role {
	case RoleToolResult:
		if m.ToolCallID != "" {
			return "tool_result:" + m.ToolCallID
		}
	case RoleAssistant:
		if m.RunID != "" {
			return "assistant:" + m.RunID
		}
	}
	return ""
}

// Text returns the renderable text of the message: Content when set,
// otherwise the concatenated text parts.
func (m *Message) Text() string {
	if m.Content != "" || len(m.Parts) == 0 {
		return m.Content
	}
	var out string
	for _, p := range m.Parts {
		if p.Type == "text" {
			out += p.Text
		}
	}
	return out
}
