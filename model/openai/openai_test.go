package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
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

	client := openai.NewClient(
		option.WithAPIKey("sk-test"),
		option.WithBaseURL(srv.URL+"/"),
		option.WithMaxRetries(0),
	)
	return NewModelFromClient(&client)
}

func TestBuildMessages(t *testing.T) {
	req := model.Request{
		Instructions: "be brief",
		Messages: []core.Message{
			core.NewUserMessage("weather?"),
			core.NewAssistantMessage("", core.ToolCall{ID: "c1", Name: "search", Arguments: `{"query":"weather"}`}, core.ToolCall{ID: "c2", Name: "ghost"}),
			core.NewToolMessage("c1", "search", "sunny", false),
			core.NewAssistantMessage("It is sunny."),
		},
	}

	msgs := buildMessages(req)
	require.Len(t, msgs, 6)

	raw, err := json.Marshal(msgs)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	roles := make([]string, len(decoded))
	for i, m := range decoded {
		roles[i], _ = m["role"].(string)
	}
	assert.Equal(t, []string{"system", "user", "assistant", "tool", "tool", "assistant"}, roles)
	assert.Equal(t, "c1", decoded[3]["tool_call_id"])
	assert.Equal(t, "c2", decoded[4]["tool_call_id"])
	assert.Equal(t, model.SkippedToolContent("ghost"), decoded[4]["content"])
}

func TestGenerate_Streaming(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "gpt-4o", payload["model"])
		assert.Equal(t, true, payload["stream"])

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"x","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Let me "}}]}`,
			`{"id":"x","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"content":"check."}}]}`,
			`{"id":"x","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","type":"function","function":{"name":"search","arguments":"{\"query\":"}}]}}]}`,
			`{"id":"x","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","type":"function","function":{"name":"search","arguments":"{}"}}]}}]}`,
			`{"id":"x","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"function":{"arguments":"\"go\"}"}}]}}]}`,
			`{"id":"x","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`,
			`{"id":"x","object":"chat.completion.chunk","created":1,"model":"gpt-4o","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":7,"total_tokens":12}}`,
		}
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
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
	assert.False(t, final.Partial)
	assert.Equal(t, "Let me check.", final.Message.Content)
	assert.Equal(t, "tool_calls", final.FinishReason)
	assert.Equal(t, []core.ToolCall{
		{ID: "call_a", Name: "search", Arguments: "{}"},
		{ID: "call_b", Name: "search", Arguments: `{"query":"go"}`},
	}, final.Message.ToolCalls)
	require.NotNil(t, final.Usage)
	assert.Equal(t, 12, final.Usage.TotalTokens)
}

func TestGenerate_NonStreaming(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"y","object":"chat.completion","created":1,"model":"gpt-4o",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Hello"}}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
	})

	resps, err := collect(m.Generate(context.Background(), model.Request{Messages: []core.Message{core.NewUserMessage("hi")}}))
	require.NoError(t, err)
	require.Len(t, resps, 1)
	assert.Equal(t, "Hello", resps[0].Message.Content)
	assert.Empty(t, resps[0].Message.ToolCalls)
}

func TestGenerate_ProviderError(t *testing.T) {
	m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	})

	_, err := collect(m.Generate(context.Background(), model.Request{Messages: []core.Message{core.NewUserMessage("hi")}}))
	var me *model.ModelError
	require.ErrorAs(t, err, &me)
	assert.Equal(t, model.ErrorUnavailable, me.Kind)
	assert.Equal(t, "openai", me.Provider)
}

func TestInfo(t *testing.T) {
	m := NewModel(func(o *Options) { o.APIKey = "sk-test" })
	assert.Equal(t, model.Info{Name: "gpt-4o", Provider: "openai", SupportsTools: true}, m.Info())
}
