package tavily

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/searchagent/core"
	"github.com/hupe1980/searchagent/tool"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Search {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := New("tvly-test", func(o *Options) {
		o.BaseURL = srv.URL
		o.HTTPClient = srv.Client()
	})
	require.NoError(t, err)
	return s
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}

func TestSearch_Success(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Bearer tvly-test", r.Header.Get("Authorization"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "golang 1.25", req.Query)
		assert.Equal(t, DefaultMaxResults, req.MaxResults)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "a", "url": "https://a", "content": "A", "score": 0.9},
				{"title": "b", "url": "https://b", "content": "B", "score": 0.8},
				{"title": "c", "url": "https://c", "content": "C"},
				{"title": "d", "url": "https://d", "content": "D"},
				{"title": "e", "url": "https://e", "content": "E"},
			},
		})
	})

	out, err := s.Call(context.Background(), map[string]any{"query": "golang 1.25"})
	require.NoError(t, err)
	results := out.([]Result)
	require.Len(t, results, DefaultMaxResults)
	assert.Equal(t, Result{URL: "https://a", Content: "A"}, results[0])
	assert.Equal(t, `[{"url":"https://a","content":"A"},{"url":"https://b","content":"B"},{"url":"https://c","content":"C"},{"url":"https://d","content":"D"}]`, tool.FormatResult(results))
}

func TestSearch_ErrorStatus(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	})

	_, err := s.Call(context.Background(), map[string]any{"query": "x"})
	assert.Equal(t, tool.CodeUnavailable, tool.ErrorCode(err))
	assert.Contains(t, err.Error(), "429")
}

func TestSearch_EmptyQuery(t *testing.T) {
	s := newTestServer(t, func(http.ResponseWriter, *http.Request) { t.Fatal("must not be called") })

	_, err := s.Call(context.Background(), map[string]any{"query": ""})
	assert.Equal(t, tool.CodeInvalidArguments, tool.ErrorCode(err))
}

func TestSearch_ThroughExecutorTimeout(t *testing.T) {
	s := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	e := tool.NewExecutor(tool.NewRegistry(s), func(o *tool.ExecutorOptions) { o.Timeout = 30 * time.Millisecond })

	results := e.ExecuteAll(context.Background(), []core.ToolCall{{ID: "1", Name: ToolName, Arguments: `{"query":"slow"}`}})
	assert.Equal(t, tool.CodeTimeout, tool.ErrorCode(results[0].Err))
}
