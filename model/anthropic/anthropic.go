// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/searchagent/core"
	"github.com/hupe1980/searchagent/model"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Generate implements unified streaming / non-streaming generation.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:       m.opts.Model,
			Messages:    buildMessages(req.Messages),
			MaxTokens:   m.opts.MaxTokens,
			Temperature: anthropic.Float(m.opts.Temperature),
		}
		if system := systemBlocks(req); len(system) > 0 {
			params.System = system
		}
		if len(req.Tools) > 0 {
			params.Tools = buildTools(req.Tools)
		}

		var err error
		if req.Stream {
			err = m.handleStreaming(ctx, params, out)
		} else {
			err = m.handleNonStreaming(ctx, params, out)
		}
		if err != nil {
			errCh <- model.NewModelError("anthropic", err)
		}
	}()

	return out, errCh
}

func send(ctx context.Context, out chan<- model.Response, r model.Response) error {
	select {
	case out <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// blockAgg accumulates one streamed content block.
type blockAgg struct {
	kind     string // "text" or "tool_use"
	id, name string
	text     strings.Builder
	input    strings.Builder
}

func (m *Model) handleStreaming(ctx context.Context, params anthropic.MessageNewParams, out chan<- model.Response) error {
	stream := m.client.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var (
		id         string
		stopReason string
		usage      model.TokenUsage
	)
	blocks := map[int64]*blockAgg{}

	for stream.Next() {
		switch ev := stream.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			id = ev.Message.ID
			usage.PromptTokens = int(ev.Message.Usage.InputTokens)
		case anthropic.ContentBlockStartEvent:
			blocks[ev.Index] = &blockAgg{kind: ev.ContentBlock.Type, id: ev.ContentBlock.ID, name: ev.ContentBlock.Name}
		case anthropic.ContentBlockDeltaEvent:
			b, ok := blocks[ev.Index]
			if !ok {
				b = &blockAgg{kind: "text"}
				blocks[ev.Index] = b
			}
			switch d := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				b.text.WriteString(d.Text)
				if err := send(ctx, out, model.Response{ID: id, Partial: true, Delta: d.Text}); err != nil {
					return err
				}
			case anthropic.InputJSONDelta:
				b.input.WriteString(d.PartialJSON)
			}
		case anthropic.MessageDeltaEvent:
			stopReason = string(ev.Delta.StopReason)
			usage.CompletionTokens = int(ev.Usage.OutputTokens)
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	if stopReason == "" {
		return errors.New("stream ended without stop reason")
	}

	idx := make([]int64, 0, len(blocks))
	for i := range blocks {
		idx = append(idx, i)
	}
	sort.Slice(idx, func(a, b int) bool { return idx[a] < idx[b] })

	var (
		text  strings.Builder
		calls []core.ToolCall
	)
	for _, i := range idx {
		b := blocks[i]
		switch b.kind {
		case "text":
			text.WriteString(b.text.String())
		case "tool_use":
			args := b.input.String()
			if args == "" {
				args = "{}"
			}
			calls = append(calls, core.ToolCall{ID: b.id, Name: b.name, Arguments: args})
		}
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	return send(ctx, out, model.Response{
		ID:           id,
		Message:      core.NewAssistantMessage(text.String(), calls...),
		FinishReason: stopReason,
		Usage:        &usage,
	})
}

func (m *Model) handleNonStreaming(ctx context.Context, params anthropic.MessageNewParams, out chan<- model.Response) error {
	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return err
	}

	var (
		text  strings.Builder
		calls []core.ToolCall
	)
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := "{}"
			if raw, err := json.Marshal(toolBlock.Input); err == nil && string(raw) != "null" {
				args = string(raw)
			}
			calls = append(calls, core.ToolCall{ID: toolBlock.ID, Name: toolBlock.Name, Arguments: args})
		}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	return send(ctx, out, model.Response{
		ID:           resp.ID,
		Message:      core.NewAssistantMessage(text.String(), calls...),
		FinishReason: finishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	})
}

// buildMessages converts the conversation to Anthropic messages. Tool results
// are sent as tool_result blocks in a user message right after the assistant
// message that requested them.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam

	for _, item := range model.PrepareHistory(msgs) {
		msg := item.Message
		switch msg.Role {
		case core.RoleSystem:
			// Sent via the system parameter.
		case core.RoleUser:
			if msg.Content != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		case core.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				content = append(content, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				var input any = map[string]any{}
				if call.Arguments != "" {
					var decoded any
					if err := json.Unmarshal([]byte(call.Arguments), &decoded); err == nil {
						input = decoded
					}
				}
				content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(content) == 0 {
				continue
			}
			messages = append(messages, anthropic.NewAssistantMessage(content...))

			if len(item.Results) > 0 {
				results := make([]anthropic.ContentBlockParamUnion, 0, len(item.Results))
				for _, r := range item.Results {
					results = append(results, anthropic.NewToolResultBlock(r.ToolCallID, r.Content, r.IsError))
				}
				messages = append(messages, anthropic.NewUserMessage(results...))
			}
		}
	}

	return messages
}

// systemBlocks collects the instructions and any system messages.
func systemBlocks(req model.Request) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	if req.Instructions != "" {
		blocks = append(blocks, anthropic.TextBlockParam{Text: req.Instructions})
	}
	for _, m := range req.Messages {
		if m.Role == core.RoleSystem && m.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return blocks
}

// buildTools converts tool definitions to Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if params := tool.Function.Parameters; params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}
			switch req := params["required"].(type) {
			case []string:
				inputSchema.Required = req
			case []any:
				for _, r := range req {
					if s, ok := r.(string); ok {
						inputSchema.Required = append(inputSchema.Required, s)
					}
				}
			}
		}

		union := anthropic.ToolUnionParamOfTool(inputSchema, tool.Function.Name)
		if union.OfTool != nil && tool.Function.Description != "" {
			union.OfTool.Description = anthropic.String(tool.Function.Description)
		}
		anthropicTools[i] = union
	}

	return anthropicTools
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
