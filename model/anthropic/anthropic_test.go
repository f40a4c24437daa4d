package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/searchagent/core"
	"github.com/hupe1980/searchagent/model"
)

func collect(respCh <-chan model.Response, errCh <-chan error) ([]model.Response, error) {
	var out []model.Response
	for r := range respCh {
		out = append(out, r)
	}
	return out, <-errCh
}

func newTestModel(t *testing.T, handler http.HandlerFunc) *Model {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := anthropic.NewClient(
		option.WithAPIKey("test"),
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0),
	)
	return NewModelFromClient(&client)
}

func TestBuildMessages(t *testing.T) {
	msgs := buildMessages([]core.Message{
		core.NewSystemMessage("ignored here"),
		core.NewUserMessage("weather?"),
		core.NewAssistantMessage("checking", core.ToolCall{ID: "t1", Name: "search", Arguments: `{"query":"weather"}`}, core.ToolCall{ID: "t2", Name: "ghost"}),
		core.NewToolMessage("t1", "search", "sunny", false),
		core.NewAssistantMessage("It is sunny."),
	})
	require.Len(t, msgs, 4)

	raw, err := json.Marshal(msgs)
	require.NoError(t, err)
	var decoded []struct {
		Role    string           `json:"role"`
		Content []map[string]any `json:"content"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	roles := make([]string, len(decoded))
	for i, m := range decoded {
		roles[i] = m.Role
	}
	assert.Equal(t, []string{"user", "assistant", "user", "assistant"}, roles)

	assistant := decoded[1].Content
	require.Len(t, assistant, 3)
	assert.Equal(t, "text", assistant[0]["type"])
	assert.Equal(t, "tool_use", assistant[1]["type"])
	assert.Equal(t, map[string]any{"query": "weather"}, assistant[1]["input"])

	results := decoded[2].Content
	require.Len(t, results, 2)
	assert.Equal(t, "tool_result", results[0]["type"])
	assert.Equal(t, "t1", results[0]["tool_use_id"])
	assert.Equal(t, "t2", results[1]["tool_use_id"])
	assert.Equal(t, true, results[1]["is_error"])
}

func TestSystemBlocks(t *testing.T) {
	blocks := systemBlocks(model.Request{
		Instructions: "be brief",
		Messages:     []core.Message{core.NewSystemMessage("cite sources"), core.NewUserMessage("hi")},
	})
	require.Len(t, blocks, 2)
	assert.Equal(t, "be brief", blocks[0].Text)
	assert.Equal(t, "cite sources", blocks[1].Text)
}

func TestGenerate_Streaming(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, true, payload["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		events := []struct{ name, data string }{
			{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":5,"output_tokens":1}}}`},
			{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Let me "}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"check."}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":0}`},
			{"content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"search","input":{}}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"query\":"}}`},
			{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"go\"}"}}`},
			{"content_block_stop", `{"type":"content_block_stop","index":1}`},
			{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":9}}`},
			{"message_stop", `{"type":"message_stop"}`},
		}
		for _, e := range events {
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.name, e.data)
		}
	})

	resps, err := collect(m.Generate(context.Background(), model.Request{
		Messages: []core.Message{core.NewUserMessage("go news")},
		Stream:   true,
	}))
	require.NoError(t, err)
	require.Len(t, resps, 3)
	assert.Equal(t, "Let me ", resps[0].Delta)
	assert.Equal(t, "check.", resps[1].Delta)

	final := resps[2]
	assert.Equal(t, "msg_1", final.ID)
	assert.Equal(t, "Let me check.", final.Message.Content)
	assert.Equal(t, "tool_use", final.FinishReason)
	assert.Equal(t, []core.ToolCall{{ID: "toolu_1", Name: "search", Arguments: `{"query":"go"}`}}, final.Message.ToolCalls)
	require.NotNil(t, final.Usage)
	assert.Equal(t, 14, final.Usage.TotalTokens)
}

func TestGenerate_NonStreaming(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"msg_2","type":"message","role":"assistant","model":"claude",
			"content":[{"type":"text","text":"Hello"}],"stop_reason":"end_turn","stop_sequence":null,
			"usage":{"input_tokens":1,"output_tokens":1}}`)
	})

	resps, err := collect(m.Generate(context.Background(), model.Request{Messages: []core.Message{core.NewUserMessage("hi")}}))
	require.NoError(t, err)
	require.Len(t, resps, 1)
	assert.Equal(t, "Hello", resps[0].Message.Content)
	assert.Equal(t, "end_turn", resps[0].FinishReason)
}

func TestGenerate_ProviderError(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
	})

	_, err := collect(m.Generate(context.Background(), model.Request{Messages: []core.Message{core.NewUserMessage("hi")}}))
	var me *model.ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "anthropic", me.Provider)
	assert.Equal(t, model.ErrorUnavailable, me.Kind)
}
