package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/hupe1980/searchagent/core"
)

// MockStore is a testify mock of core.ConversationStore.
type MockStore struct {
	mock.Mock
}

var _ core.ConversationStore = (*MockStore)(nil)

// Load implements core.ConversationStore.
func (m *MockStore) Load(ctx context.Context, id string) (*core.Conversation, error) {
	args := m.Called(ctx, id)
	conv, _ := args.Get(0).(*core.Conversation)
	return conv, args.Error(1)
}

// Append implements core.ConversationStore. The variadic messages are passed
// to the mock as a single []core.Message argument.
func (m *MockStore) Append(ctx context.Context, id string, msgs ...core.Message) error {
	args := m.Called(ctx, id, msgs)
	return args.Error(0)
}
