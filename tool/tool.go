// Package tool implements the tool calling subsystem: capabilities the model
// may invoke mid-turn with schema validated arguments and uniform error
// handling. Registry dispatches calls by name and Executor runs a batch of
// calls concurrently while delivering results in call order.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/searchagent/internal/util"
	"github.com/hupe1980/searchagent/logging"
)

// Tool defines a named capability the model can invoke.
//
// Implementations should honour ctx cancellation and be safe for concurrent
// use, since the executor may run several calls of the same tool at once.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description is shown to the model to explain when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool with already decoded arguments. The result is
	// rendered to text with FormatResult before reaching the model.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeUnavailable      = "UNAVAILABLE"
	CodeTimeout          = "TIMEOUT"
	CodeInvalidArguments = "INVALID_ARGUMENTS"
)

// ErrUnknownTool is returned when no tool is registered under a name.
var ErrUnknownTool = errors.New("tool: unknown tool")

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// ErrorCode returns the ToolError code of err, or "" if err is not a ToolError.
func ErrorCode(err error) string {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// asToolError normalizes any error returned by a tool.
func asToolError(tool string, err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ToolError{Tool: tool, Message: err.Error(), Code: CodeTimeout}
	}
	return &ToolError{Tool: tool, Message: err.Error(), Code: CodeUnavailable}
}

// FormatResult renders a tool result as the text handed to the model: strings
// verbatim, everything else as compact JSON.
func FormatResult(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	case []byte:
		return string(r)
	case json.RawMessage:
		return string(r)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

type loggerKey struct{}

// ContextWithLogger attaches logger to ctx so tools can log with the caller's
// scope.
func ContextWithLogger(ctx context.Context, logger logging.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext returns the logger attached by ContextWithLogger, or a
// NoOpLogger.
func LoggerFromContext(ctx context.Context) logging.Logger {
	if l, ok := ctx.Value(loggerKey{}).(logging.Logger); ok && l != nil {
		return l
	}
	return logging.NoOpLogger{}
}
