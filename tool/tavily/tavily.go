// Package tavily exposes the Tavily web search API as a tool.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hupe1980/searchagent/tool"
)

const (
	// ToolName is the name the model uses to request a search.
	ToolName = "tavily_search_results_json"
	// DefaultBaseURL is the public Tavily API endpoint.
	DefaultBaseURL = "https://api.tavily.com"
	// DefaultMaxResults caps the results returned per query.
	DefaultMaxResults = 4
)

const description = "A search engine optimized for comprehensive, accurate, and trusted results. " +
	"Useful for when you need to answer questions about current events. Input should be a search query."

// Options configures a Search tool.
type Options struct {
	BaseURL    string
	MaxResults int
	HTTPClient *http.Client
}

// Result is one search hit as handed to the model.
type Result struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Search is a tool.Tool querying Tavily.
type Search struct {
	apiKey     string
	baseURL    string
	maxResults int
	httpClient *http.Client
}

var _ tool.Tool = (*Search)(nil)

// New creates the search tool.
func New(apiKey string, optFns ...func(o *Options)) (*Search, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("tavily: api key is required")
	}

	opts := Options{
		BaseURL:    DefaultBaseURL,
		MaxResults: DefaultMaxResults,
		HTTPClient: http.DefaultClient,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Search{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		maxResults: opts.MaxResults,
		httpClient: opts.HTTPClient,
	}, nil
}

// Name implements tool.Tool.
func (s *Search) Name() string { return ToolName }

// Description implements tool.Tool.
func (s *Search) Description() string { return description }

// Parameters implements tool.Tool.
func (s *Search) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "search query to look up",
			},
		},
		"required": []string{"query"},
	}
}

type searchRequest struct {
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type searchResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Call implements tool.Tool.
func (s *Search) Call(ctx context.Context, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, tool.NewToolError(ToolName, "query must be a non-empty string", tool.CodeInvalidArguments)
	}
	return s.Search(ctx, query)
}

// Search runs query and returns at most MaxResults hits.
func (s *Search) Search(ctx context.Context, query string) ([]Result, error) {
	body, err := json.Marshal(searchRequest{Query: query, MaxResults: s.maxResults, SearchDepth: "advanced"})
	if err != nil {
		return nil, fmt.Errorf("tavily: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tavily: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, tool.NewToolError(ToolName, fmt.Sprintf("request failed: %v", err), tool.CodeUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, tool.NewToolError(ToolName, fmt.Sprintf("read response: %v", err), tool.CodeUnavailable)
	}

	if resp.StatusCode != http.StatusOK {
		code := tool.CodeUnavailable
		if resp.StatusCode == http.StatusBadRequest {
			code = tool.CodeInvalidArguments
		}
		return nil, tool.NewToolError(ToolName, fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))), code)
	}

	var decoded searchResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, tool.NewToolError(ToolName, fmt.Sprintf("decode response: %v", err), tool.CodeUnavailable)
	}

	results := make([]Result, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		if len(results) == s.maxResults {
			break
		}
		results = append(results, Result{URL: r.URL, Content: r.Content})
	}
	return results, nil
}
