package core

// EventType discriminates AgentEvent variants.
type EventType string

const (
	EventTextDelta EventType = "text_delta"
	EventToolStart EventType = "tool_start"
	EventToolEnd   EventType = "tool_end"
	EventError     EventType = "error"
	EventEndOfTurn EventType = "end_of_turn"
)

// AgentEvent is the unit streamed to callers during a turn. Events are
// produced in strict temporal order and a completed turn ends with exactly one
// EventEndOfTurn.
type AgentEvent struct {
	Type EventType `json:"type"`

	// Content carries the incremental assistant text for text_delta.
	Content string `json:"content,omitempty"`

	// ToolName, CallID and Arguments describe tool_start / tool_end.
	ToolName  string `json:"tool_name,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// ErrorCode and ErrorMessage describe a terminal error.
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// NewTextDeltaEvent creates a text_delta event.
func NewTextDeltaEvent(text string) AgentEvent {
	return AgentEvent{Type: EventTextDelta, Content: text}
}

// NewToolStartEvent creates a tool_start event for call.
func NewToolStartEvent(call ToolCall) AgentEvent {
	return AgentEvent{Type: EventToolStart, ToolName: call.Name, CallID: call.ID, Arguments: call.Arguments}
}

// NewToolEndEvent creates a tool_end event for call.
func NewToolEndEvent(call ToolCall) AgentEvent {
	return AgentEvent{Type: EventToolEnd, ToolName: call.Name, CallID: call.ID}
}

// NewErrorEvent creates a terminal error event.
func NewErrorEvent(code, message string) AgentEvent {
	return AgentEvent{Type: EventError, ErrorCode: code, ErrorMessage: message}
}

// NewEndOfTurnEvent creates the final event of a turn.
func NewEndOfTurnEvent() AgentEvent { return AgentEvent{Type: EventEndOfTurn} }

// IsTerminal reports whether the event closes the turn.
func (e AgentEvent) IsTerminal() bool { return e.Type == EventEndOfTurn }
