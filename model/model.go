package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/searchagent/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by the engine.
type Request struct {
	Instructions string           `json:"instructions"` // System prompt
	Messages     []core.Message   `json:"messages"`     // Conversation so far, oldest first
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
//
// Partial responses carry an incremental text Delta. The single final response
// (Partial == false) carries the complete assistant Message including any tool
// calls.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Delta        string       `json:"delta,omitempty"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the engine to drive generation.
//
// Implementations close both channels when done. At most one error is sent.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrorKind classifies model failures.
type ErrorKind string

const (
	// ErrorUnavailable covers transport and provider side failures.
	ErrorUnavailable ErrorKind = "UNAVAILABLE"
	// ErrorTimeout means the call exceeded its deadline.
	ErrorTimeout ErrorKind = "TIMEOUT"
)

// ModelError wraps a provider failure with its classification.
type ModelError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model error [%s] in %s: %v", e.Kind, e.Provider, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// NewModelError classifies err. Deadline errors become ErrorTimeout and
// everything else ErrorUnavailable. Existing ModelErrors pass through.
func NewModelError(provider string, err error) *ModelError {
	var me *ModelError
	if errors.As(err, &me) {
		return me
	}
	kind := ErrorUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		kind = ErrorTimeout
	}
	return &ModelError{Kind: kind, Provider: provider, Err: err}
}

// MockTurn scripts one Generate call of a MockModel.
type MockTurn struct {
	// Deltas are streamed in order; their concatenation is the message text.
	Deltas []string
	// ToolCalls are attached to the final message.
	ToolCalls []core.ToolCall
	// Err, if set, is reported after the deltas instead of a final message.
	Err error
	// Delay is waited before anything is emitted.
	Delay time.Duration
	// Block makes the call wait for cancellation after the deltas.
	Block bool
}

// MockModel is a scripted in-memory Model useful for tests and examples. Each
// Generate call consumes the next MockTurn; when the script is exhausted it
// answers with "Mock response to: <last user message>".
type MockModel struct {
	info Info

	mu       sync.Mutex
	turns    []MockTurn
	requests []Request
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string, turns ...MockTurn) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		turns: turns,
	}
}

// AddTurn appends a scripted turn.
func (m *MockModel) AddTurn(t MockTurn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, t)
}

// Requests returns the requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockModel) next(req Request) MockTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if len(m.turns) == 0 {
		var input string
		for i := len(req.Messages) - 1; i >= 0; i-- {
			if req.Messages[i].Role == core.RoleUser {
				input = req.Messages[i].Content
				break
			}
		}
		return MockTurn{Deltas: []string{"Mock response to: " + input}}
	}
	t := m.turns[0]
	m.turns = m.turns[1:]
	return t
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)
	turn := m.next(req)

	go func() {
		defer close(respCh)
		defer close(errCh)

		if turn.Delay > 0 {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case <-time.After(turn.Delay):
			}
		}

		var text string
		for _, d := range turn.Deltas {
			text += d
			if !req.Stream {
				continue
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case respCh <- Response{Partial: true, Delta: d}:
			}
		}

		if turn.Block {
			<-ctx.Done()
			errCh <- ctx.Err()
			return
		}
		if turn.Err != nil {
			errCh <- turn.Err
			return
		}

		finish := "stop"
		if len(turn.ToolCalls) > 0 {
			finish = "tool_calls"
		}
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{
			Partial:      false,
			Message:      core.NewAssistantMessage(text, turn.ToolCalls...),
			FinishReason: finish,
		}:
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
