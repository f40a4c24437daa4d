package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/searchagent/core"
	"github.com/hupe1980/searchagent/internal/testutil"
)

func TestPrepareHistory(t *testing.T) {
	msgs := testutil.NewHistoryBuilder().
		User("q").
		ToolCall("a", "search", "").
		ToolCall("b", "ghost", "").
		ToolCall("c", "search", "").
		ToolResult("c", "search", "C").
		ToolResult("a", "search", "A").
		Assistant("answer").
		Build()

	items := PrepareHistory(msgs)
	require.Len(t, items, 3)
	assert.Equal(t, core.RoleUser, items[0].Message.Role)
	assert.Empty(t, items[0].Results)

	results := items[1].Results
	require.Len(t, results, 3)
	assert.Equal(t, "A", results[0].Content)
	assert.Equal(t, "b", results[1].ToolCallID)
	assert.Equal(t, SkippedToolContent("ghost"), results[1].Content)
	assert.True(t, results[1].IsError)
	assert.Equal(t, "C", results[2].Content)

	assert.Equal(t, "answer", items[2].Message.Content)
}

func TestPrepareHistory_DropsOrphanToolMessages(t *testing.T) {
	items := PrepareHistory([]core.Message{
		core.NewUserMessage("q"),
		core.NewToolMessage("x", "search", "orphan", false),
	})
	require.Len(t, items, 1)
	assert.Equal(t, core.RoleUser, items[0].Message.Role)
}
