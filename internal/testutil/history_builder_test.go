package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/searchagent/core"
)

func TestHistoryBuilder(t *testing.T) {
	msgs := NewHistoryBuilder().
		User("hi").
		ToolCall("c1", "search", `{"query":"a"}`).
		ToolCall("c2", "search", `{"query":"b"}`).
		ToolResult("c1", "search", "r1").
		ToolError("c2", "search", "boom").
		Assistant("done").
		Build()

	require.Len(t, msgs, 5)
	assert.Equal(t, core.RoleUser, msgs[0].Role)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 2)
	assert.Equal(t, "c2", msgs[1].ToolCalls[1].ID)
	assert.False(t, msgs[2].IsError)
	assert.True(t, msgs[3].IsError)
	assert.Equal(t, "done", msgs[4].Content)
	assert.NoError(t, core.CheckAppend(nil, msgs))
}

func TestHistoryBuilder_BuildCopies(t *testing.T) {
	b := NewHistoryBuilder().ToolCall("c1", "search", "{}")
	first := b.Build()
	first[0].ToolCalls[0].ID = "changed"

	assert.Equal(t, "c1", b.Build()[0].ToolCalls[0].ID)
}

func TestHistoryBuilder_Conversation(t *testing.T) {
	conv := NewHistoryBuilder().User("hi").Assistant("hello").Conversation("conv-1")

	assert.Equal(t, "conv-1", conv.ID)
	assert.Len(t, conv.Messages, 2)
}
