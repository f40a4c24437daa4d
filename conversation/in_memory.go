package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/searchagent/core"
)

// InMemoryStore is a volatile ConversationStore keeping conversations in a
// process local map. It is safe for concurrent access and best suited for
// tests or single-instance deployments. Returned conversations are clones.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*core.Conversation
}

var _ core.ConversationStore = (*InMemoryStore)(nil)

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{conversations: make(map[string]*core.Conversation)}
}

// Load returns a snapshot of the conversation, or a fresh conversation with a
// new id when id is empty or unknown. Fresh conversations are not stored until
// the first Append.
func (s *InMemoryStore) Load(ctx context.Context, id string) (*core.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if conv, ok := s.conversations[id]; ok && id != "" {
		return conv.Clone(), nil
	}
	return core.NewConversation(""), nil
}

// Append adds msgs to the conversation, creating it on first write.
func (s *InMemoryStore) Append(ctx context.Context, id string, msgs ...core.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return ErrEmptyID
	}
	if len(msgs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		conv = core.NewConversation(id)
	}
	if err := core.CheckAppend(conv.Messages, msgs); err != nil {
		return err
	}

	for _, m := range msgs {
		conv.Messages = append(conv.Messages, m.Clone())
	}
	conv.Updated = time.Now().UTC()
	s.conversations[id] = conv
	return nil
}

// Len returns the number of stored conversations.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
