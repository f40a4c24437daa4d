package model

import (
	"github.com/hupe1980/searchagent/core"
)

// HistoryItem is one entry of a conversation prepared for a provider. An
// assistant message that requested tools carries its Results, one per call in
// call order.
type HistoryItem struct {
	Message core.Message
	Results []core.Message
}

// SkippedToolContent is sent to providers for calls that never produced a
// result because no tool was registered under the requested name.
func SkippedToolContent(name string) string {
	return "error: unknown tool " + name
}

// PrepareHistory groups tool messages with the assistant message that
// requested them. Providers reject a tool call without an answer, so calls
// without a recorded result get a placeholder answer. Tool messages that do
// not answer a call of the preceding assistant message are dropped.
func PrepareHistory(msgs []core.Message) []HistoryItem {
	items := make([]HistoryItem, 0, len(msgs))

	for i := 0; i < len(msgs); i++ {
		m := msgs[i]
		if m.Role == core.RoleTool {
			continue
		}
		if m.Role != core.RoleAssistant || !m.HasToolCalls() {
			items = append(items, HistoryItem{Message: m})
			continue
		}

		answers := map[string]core.Message{}
		for i+1 < len(msgs) && msgs[i+1].Role == core.RoleTool {
			i++
			if _, dup := answers[msgs[i].ToolCallID]; !dup {
				answers[msgs[i].ToolCallID] = msgs[i]
			}
		}

		results := make([]core.Message, 0, len(m.ToolCalls))
		for _, call := range m.ToolCalls {
			if r, ok := answers[call.ID]; ok {
				results = append(results, r)
				continue
			}
			results = append(results, core.Message{
				Role:       core.RoleTool,
				Content:    SkippedToolContent(call.Name),
				ToolCallID: call.ID,
				ToolName:   call.Name,
				IsError:    true,
			})
		}
		items = append(items, HistoryItem{Message: m, Results: results})
	}

	return items
}
