package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventConstructors(t *testing.T) {
	call := ToolCall{ID: "call-1", Name: "tavily_search_results_json", Arguments: `{"query":"go"}`}

	start := NewToolStartEvent(call)
	assert.Equal(t, EventToolStart, start.Type)
	assert.Equal(t, "call-1", start.CallID)
	assert.Equal(t, `{"query":"go"}`, start.Arguments)

	end := NewToolEndEvent(call)
	assert.Equal(t, EventToolEnd, end.Type)
	assert.Empty(t, end.Arguments)

	assert.Equal(t, "hi", NewTextDeltaEvent("hi").Content)
	assert.True(t, NewEndOfTurnEvent().IsTerminal())
	assert.False(t, NewErrorEvent("model_timeout", "slow").IsTerminal())
}

func TestIterationLimiter(t *testing.T) {
	l := NewIterationLimiter(2)
	assert.NoError(t, l.Increment())
	assert.NoError(t, l.Increment())
	assert.Equal(t, 0, l.Remaining())
	assert.Error(t, l.Increment())
	assert.Equal(t, 3, l.Count())

	unlimited := NewIterationLimiter(0)
	for i := 0; i < 100; i++ {
		assert.NoError(t, unlimited.Increment())
	}
	assert.Equal(t, -1, unlimited.Remaining())
}
