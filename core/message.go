package core

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author class of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a request, produced by the model, to invoke a named tool.
// The ID is opaque and must be echoed by the tool message answering it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"` // JSON encoded argument object
}

// Message is a single entry of a conversation history.
//
// Which fields are meaningful depends on Role:
//   - user:      Content
//   - assistant: Content, ToolCalls, Truncated
//   - tool:      Content, ToolCallID, ToolName, IsError
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	IsError    bool       `json:"is_error,omitempty"`
	// Truncated marks an assistant message whose tool calls were dropped
	// because the turn hit its iteration limit.
	Truncated bool      `json:"truncated,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewID generates a new unique identifier for messages and conversations.
func NewID() string { return uuid.NewString() }

// NewUserMessage creates a user-authored text message.
func NewUserMessage(text string) Message {
	return Message{ID: NewID(), Role: RoleUser, Content: text, CreatedAt: time.Now().UTC()}
}

// NewSystemMessage creates a system instruction message.
func NewSystemMessage(text string) Message {
	return Message{ID: NewID(), Role: RoleSystem, Content: text, CreatedAt: time.Now().UTC()}
}

// NewAssistantMessage creates an assistant message carrying text and zero or
// more tool call requests.
func NewAssistantMessage(text string, calls ...ToolCall) Message {
	return Message{ID: NewID(), Role: RoleAssistant, Content: text, ToolCalls: calls, CreatedAt: time.Now().UTC()}
}

// NewToolMessage records the textual outcome of a tool call.
func NewToolMessage(callID, toolName, content string, isError bool) Message {
	return Message{
		ID:         NewID(),
		Role:       RoleTool,
		Content:    content,
		ToolCallID: callID,
		ToolName:   toolName,
		IsError:    isError,
		CreatedAt:  time.Now().UTC(),
	}
}

// HasToolCalls reports whether the message requests at least one tool call.
func (m Message) HasToolCalls() bool { return len(m.ToolCalls) > 0 }

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	if m.ToolCalls != nil {
		calls := make([]ToolCall, len(m.ToolCalls))
		copy(calls, m.ToolCalls)
		m.ToolCalls = calls
	}
	return m
}
