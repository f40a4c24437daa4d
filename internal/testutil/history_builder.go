package testutil

import (
	"github.com/hupe1980/searchagent/core"
)

// HistoryBuilder provides a fluent helper for constructing message histories.
// Example:
//
//	msgs := NewHistoryBuilder().User("hi").ToolCall("c1", "search", `{"query":"go"}`).ToolResult("c1", "search", "ok").Assistant("done").Build()
//
// Consecutive ToolCall invocations are merged into one assistant message.
type HistoryBuilder struct {
	msgs []core.Message
	open bool
}

// NewHistoryBuilder creates an empty builder.
func NewHistoryBuilder() *HistoryBuilder { return &HistoryBuilder{} }

// User appends a user message (chainable).
func (b *HistoryBuilder) User(text string) *HistoryBuilder {
	b.open = false
	b.msgs = append(b.msgs, core.NewUserMessage(text))
	return b
}

// Assistant appends a tool-free assistant message (chainable).
func (b *HistoryBuilder) Assistant(text string) *HistoryBuilder {
	b.open = false
	b.msgs = append(b.msgs, core.NewAssistantMessage(text))
	return b
}

// ToolCall adds a tool call request. It extends the previous assistant
// message when that message was itself started by ToolCall (chainable).
func (b *HistoryBuilder) ToolCall(id, name, args string) *HistoryBuilder {
	call := core.ToolCall{ID: id, Name: name, Arguments: args}
	if b.open {
		last := &b.msgs[len(b.msgs)-1]
		last.ToolCalls = append(last.ToolCalls, call)
		return b
	}
	b.open = true
	b.msgs = append(b.msgs, core.NewAssistantMessage("", call))
	return b
}

// ToolResult appends a successful tool message (chainable).
func (b *HistoryBuilder) ToolResult(callID, name, content string) *HistoryBuilder {
	b.open = false
	b.msgs = append(b.msgs, core.NewToolMessage(callID, name, content, false))
	return b
}

// ToolError appends a failed tool message (chainable).
func (b *HistoryBuilder) ToolError(callID, name, content string) *HistoryBuilder {
	b.open = false
	b.msgs = append(b.msgs, core.NewToolMessage(callID, name, content, true))
	return b
}

// Build returns a copy of the accumulated messages.
func (b *HistoryBuilder) Build() []core.Message {
	out := make([]core.Message, len(b.msgs))
	for i, m := range b.msgs {
		out[i] = m.Clone()
	}
	return out
}

// Conversation returns a conversation with id holding the built messages.
func (b *HistoryBuilder) Conversation(id string) *core.Conversation {
	conv := core.NewConversation(id)
	conv.Messages = b.Build()
	return conv
}
