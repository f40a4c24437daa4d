package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/searchagent/core"
)

func TestInMemoryStore_LoadUnknownStartsFresh(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"", "does-not-exist"} {
		conv, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.NotEmpty(t, conv.ID)
		assert.NotEqual(t, "does-not-exist", conv.ID)
		assert.Empty(t, conv.Messages)
	}
	assert.Zero(t, store.Len())
}

func TestInMemoryStore_AppendAndLoad(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	conv, err := store.Load(ctx, "")
	require.NoError(t, err)

	call := core.ToolCall{ID: "call-1", Name: "search", Arguments: `{"query":"go"}`}
	require.NoError(t, store.Append(ctx, conv.ID,
		core.NewUserMessage("hi"),
		core.NewAssistantMessage("", call),
		core.NewToolMessage("call-1", "search", "result", false),
	))
	require.NoError(t, store.Append(ctx, conv.ID, core.NewAssistantMessage("done")))

	loaded, err := store.Load(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, loaded.ID)
	require.Len(t, loaded.Messages, 4)
	assert.Equal(t, core.RoleUser, loaded.Messages[0].Role)
	assert.Equal(t, "call-1", loaded.Messages[2].ToolCallID)
	assert.Equal(t, "done", loaded.Messages[3].Content)
}

func TestInMemoryStore_SnapshotsAreIsolated(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "c1", core.NewAssistantMessage("", core.ToolCall{ID: "x", Name: "search"})))

	snap, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	snap.Messages[0].ToolCalls[0].Name = "mutated"
	snap.Messages = append(snap.Messages, core.NewUserMessage("extra"))

	again, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, again.Messages, 1)
	assert.Equal(t, "search", again.Messages[0].ToolCalls[0].Name)
}

func TestInMemoryStore_RejectsOrderingViolation(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "c1", core.NewUserMessage("hi")))

	err := store.Append(ctx, "c1", core.NewToolMessage("ghost", "search", "x", false))
	assert.ErrorIs(t, err, core.ErrOrderingViolation)

	conv, err := store.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 1, "rejected batch leaves no trace")
}

func TestInMemoryStore_AppendErrors(t *testing.T) {
	store := NewInMemoryStore()

	assert.ErrorIs(t, store.Append(context.Background(), "", core.NewUserMessage("x")), ErrEmptyID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.Append(ctx, "c1", core.NewUserMessage("x")), context.Canceled)
	_, err := store.Load(ctx, "c1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInMemoryStore_ConcurrentConversations(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			for j := 0; j < 10; j++ {
				assert.NoError(t, store.Append(ctx, id, core.NewUserMessage("m")))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 16, store.Len())
	conv, err := store.Load(ctx, "c3")
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 10)
}
