package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrOrderingViolation is returned by stores when an append would break the
// tool-result ordering invariant.
var ErrOrderingViolation = errors.New("conversation ordering violation")

// Conversation is the persisted state behind a checkpoint id: an ordered
// message history. Instances returned by stores are snapshots; mutating them
// does not affect the store.
type Conversation struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
}

// NewConversation creates an empty conversation. An empty id is replaced by a
// freshly generated one.
func NewConversation(id string) *Conversation {
	if id == "" {
		id = NewID()
	}
	now := time.Now().UTC()
	return &Conversation{ID: id, Messages: []Message{}, Created: now, Updated: now}
}

// Last returns the most recent message, if any.
func (c *Conversation) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Clone performs a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{ID: c.ID, Messages: make([]Message, len(c.Messages)), Created: c.Created, Updated: c.Updated}
	for i, m := range c.Messages {
		clone.Messages[i] = m.Clone()
	}
	return clone
}

// CheckAppend validates that appending added to existing keeps the history
// well formed: every tool message answers a call of the most recent assistant
// message and directly follows that message or a sibling tool message.
func CheckAppend(existing, added []Message) error {
	var (
		prev      *Message
		lastAsst  *Message
		seenCalls map[string]bool
	)

	step := func(m *Message) error {
		switch m.Role {
		case RoleTool:
			if prev == nil || (prev.Role != RoleAssistant && prev.Role != RoleTool) || lastAsst == nil {
				return fmt.Errorf("%w: tool message %q does not follow an assistant message", ErrOrderingViolation, m.ToolCallID)
			}
			if !seenCalls[m.ToolCallID] {
				return fmt.Errorf("%w: tool message references unknown call id %q", ErrOrderingViolation, m.ToolCallID)
			}
		case RoleAssistant:
			lastAsst = m
			seenCalls = make(map[string]bool, len(m.ToolCalls))
			for _, c := range m.ToolCalls {
				seenCalls[c.ID] = true
			}
		case RoleUser, RoleSystem:
		default:
			return fmt.Errorf("%w: unknown role %q", ErrOrderingViolation, m.Role)
		}
		prev = m
		return nil
	}

	for i := range existing {
		if err := step(&existing[i]); err != nil {
			return err
		}
	}
	for i := range added {
		if err := step(&added[i]); err != nil {
			return err
		}
	}
	return nil
}

// ConversationStore persists conversations keyed by checkpoint id.
//
// Contract:
//   - Load with an empty or unknown id returns a fresh, empty conversation bound
//     to a newly generated id; it never fails because the id is unknown
//   - Append adds messages atomically to the end of the history, creating the
//     conversation on first write, and rejects batches that fail CheckAppend
//   - Implementations are safe for concurrent use across different ids
type ConversationStore interface {
	Load(ctx context.Context, id string) (*Conversation, error)
	Append(ctx context.Context, id string, msgs ...Message) error
}
