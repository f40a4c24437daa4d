// Package mcp exposes the tools of a remote Model Context Protocol server as
// tool.Tool implementations.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/hupe1980/searchagent/logging"
	"github.com/hupe1980/searchagent/tool"
)

// ProtocolVersion is the MCP protocol revision announced on initialize.
const ProtocolVersion = "2025-06-18"

// Caller is the subset of the MCP client used by remote tools.
type Caller interface {
	CallTool(ctx context.Context, req mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error)
}

// Options configures Connect.
type Options struct {
	// Headers are sent with every request (e.g. Authorization).
	Headers map[string]string
	// Prefix is prepended to remote tool names, e.g. "docs_" gives "docs_search".
	Prefix        string
	ClientName    string
	ClientVersion string
	Logger        logging.Logger
}

// Source is a connected MCP server and the tools it advertises.
type Source struct {
	client *client.Client
	tools  []tool.Tool
	logger logging.Logger
}

// Connect opens a streamable HTTP session to url, performs the initialize
// handshake and lists the server's tools.
func Connect(ctx context.Context, url string, optFns ...func(o *Options)) (*Source, error) {
	opts := Options{
		ClientName:    "searchagent",
		ClientVersion: "1.0.0",
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	logger := logging.OrNoOp(opts.Logger)

	var topts []transport.StreamableHTTPCOption
	if len(opts.Headers) > 0 {
		topts = append(topts, transport.WithHTTPHeaders(opts.Headers))
	}

	c, err := client.NewStreamableHttpClient(url, topts...)
	if err != nil {
		return nil, fmt.Errorf("mcp: create client: %w", err)
	}

	// The streamable transport must be started before the handshake.
	if err := c.GetTransport().Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp: start transport: %w", err)
	}

	if _, err := c.Initialize(ctx, mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    opts.ClientName,
				Version: opts.ClientVersion,
			},
		},
	}); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp: initialize %s: %w", url, err)
	}

	listed, err := c.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("mcp: list tools %s: %w", url, err)
	}

	logger.Info("mcp.connected", "url", url, "tools", len(listed.Tools))

	return &Source{
		client: c,
		tools:  NewTools(c, listed.Tools, opts.Prefix),
		logger: logger,
	}, nil
}

// Tools returns the remote tools.
func (s *Source) Tools() []tool.Tool { return s.tools }

// Close terminates the session.
func (s *Source) Close() error {
	return s.client.Close()
}

// NewTools wraps remote tool descriptions as tool.Tool values calling c. The
// local name is sanitized; calls use the remote name unchanged.
func NewTools(c Caller, defs []mcptypes.Tool, prefix string) []tool.Tool {
	out := make([]tool.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, &remoteTool{caller: c, def: d, name: toolName(prefix, d.Name)})
	}
	return out
}

// toolName joins prefix and name and replaces every character outside
// [a-zA-Z0-9_-] with '_', the alphabet providers accept for function names.
func toolName(prefix, name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, prefix+name)
}

type remoteTool struct {
	caller Caller
	def    mcptypes.Tool
	name   string
}

func (t *remoteTool) Name() string        { return t.name }
func (t *remoteTool) Description() string { return t.def.Description }

func (t *remoteTool) Parameters() map[string]any {
	schemaType := t.def.InputSchema.Type
	if schemaType == "" {
		schemaType = "object"
	}
	params := map[string]any{
		"type":       schemaType,
		"properties": t.def.InputSchema.Properties,
	}
	if params["properties"] == nil {
		params["properties"] = map[string]any{}
	}
	if len(t.def.InputSchema.Required) > 0 {
		params["required"] = t.def.InputSchema.Required
	}
	return params
}

func (t *remoteTool) Call(ctx context.Context, args map[string]any) (any, error) {
	result, err := t.caller.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      t.def.Name,
			Arguments: args,
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, tool.NewToolError(t.name, err.Error(), tool.CodeUnavailable)
	}

	text := contentText(result.Content)
	if result.IsError {
		return nil, tool.NewToolError(t.name, text, tool.CodeUnavailable)
	}
	return text, nil
}

// contentText flattens MCP content blocks: text blocks verbatim, anything else
// as JSON, joined by newlines.
func contentText(content []mcptypes.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		switch v := c.(type) {
		case mcptypes.TextContent:
			parts = append(parts, v.Text)
		case *mcptypes.TextContent:
			parts = append(parts, v.Text)
		default:
			b, err := json.Marshal(v)
			if err != nil {
				continue
			}
			parts = append(parts, string(b))
		}
	}
	return strings.Join(parts, "\n")
}
