package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/searchagent/internal/util"
)

// FunctionTool exposes a plain Go function as a tool. Arguments are checked
// against the JSON schema compiled at construction, and failures come back as
// *ToolError:
//
//	INVALID_ARGUMENTS  arguments do not match the schema
//	TIMEOUT            the function hit its context deadline
//	UNAVAILABLE        any other failure
//
// A *ToolError returned by the function keeps its own code. FunctionTool is
// safe for concurrent use.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	validator   *util.Validator // nil when the schema does not compile
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, args map[string]any) (any, error) {
//	    return args["a"].(float64) + args["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	v, _ := util.NewValidator(parameters)
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		validator:   v,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the parameter schema from a struct using
// reflection (see util.CreateSchema).
func NewFunctionToolFromStruct(
	name, description string,
	structType any,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the (minimal) JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates args against the declared schema then invokes the
// underlying function.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (any, error) {
	logger := LoggerFromContext(ctx)
	start := time.Now()

	if err := t.validate(args); err != nil {
		logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeInvalidArguments,
			Details: err,
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		te := asToolError(t.name, err)
		logger.Error("tool.call.error", "tool", t.name, "code", te.Code, "error", te.Message)
		return nil, te
	}

	logger.Debug("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

func (t *FunctionTool) validate(args map[string]any) error {
	if t.validator == nil {
		return nil
	}
	return t.validator.Validate(args)
}
