package session

import "time"

// Role tags a Message variant. The set is closed; consumers switch
// exhaustively over these four values.
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleSystem     Role = "system"
	RoleToolResult Role = "tool_result"
)

// ToolCall is a provider-requested local invocation. Only the inference
// provider produces these, never the client.
type ToolCall struct {
	ID    string                 `json:"id"`
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`
}

// Message is one immutable conversation entry. The assistant variant may
// carry an ordered list of tool calls; the tool_result variant carries the
// correlating ToolCallID.
type Message struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Timestamp  time.Time  `json:"timestamp"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Session is an append-only, identity-bearing message sequence. The
// creation instant is embedded in the ID, so CreatedAt is derivable
// without a separate index.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActiveAt time.Time
	ForkedFrom   string
	Messages     []Message

	// persisted counts messages already written through the store, so
	// Save only appends the tail.
	persisted int
}

// MessageCount returns the number of messages in the sequence.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// Append adds a message to the in-memory sequence and advances
// LastActiveAt monotonically. It does not persist; call Manager.Save.
func (s *Session) Append(msg Message) {
	msg.SessionID = s.ID
	s.Messages = append(s.Messages, msg)
	if msg.Timestamp.After(s.LastActiveAt) {
		s.LastActiveAt = msg.Timestamp
	}
}
