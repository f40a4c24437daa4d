package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchArgs struct {
	Query string `json:"query" jsonschema_description:"What to look up"`
}

func newEchoTool() *FunctionTool {
	return NewFunctionToolFromStruct("echo", "Echo the query", searchArgs{}, func(_ context.Context, args map[string]any) (any, error) {
		return map[string]any{"echo": args["query"]}, nil
	})
}

func TestFunctionTool_Success(t *testing.T) {
	tl := newEchoTool()
	assert.Equal(t, "echo", tl.Name())
	assert.Equal(t, "Echo the query", tl.Description())
	assert.Equal(t, "object", tl.Parameters()["type"])

	out, err := tl.Call(context.Background(), map[string]any{"query": "go"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"echo": "go"}, out)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	tl := newEchoTool()

	_, err := tl.Call(context.Background(), map[string]any{})
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeInvalidArguments, te.Code)
	assert.Equal(t, "echo", te.Tool)

	_, err = tl.Call(context.Background(), map[string]any{"query": 42})
	assert.Equal(t, CodeInvalidArguments, ErrorCode(err))
}

func TestFunctionTool_ErrorClassification(t *testing.T) {
	cases := map[string]struct {
		err  error
		code string
	}{
		"plain":    {errors.New("boom"), CodeUnavailable},
		"deadline": {context.DeadlineExceeded, CodeTimeout},
		"custom":   {NewToolError("x", "quota", "QUOTA"), "QUOTA"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			tl := NewFunctionTool("fail", "", map[string]any{"type": "object"}, func(context.Context, map[string]any) (any, error) {
				return nil, tc.err
			})
			_, err := tl.Call(context.Background(), map[string]any{})
			assert.Equal(t, tc.code, ErrorCode(err))
		})
	}
}

func TestFormatResult(t *testing.T) {
	assert.Equal(t, "", FormatResult(nil))
	assert.Equal(t, "plain", FormatResult("plain"))
	assert.Equal(t, "raw", FormatResult([]byte("raw")))
	assert.Equal(t, `[{"url":"u","content":"c"}]`, FormatResult([]map[string]string{{"url": "u", "content": "c"}}))
	assert.Equal(t, "3", FormatResult(3))
}

func TestToolError_Error(t *testing.T) {
	assert.Equal(t, "tool error [TIMEOUT] in search: slow", NewToolError("search", "slow", CodeTimeout).Error())
	assert.Equal(t, "tool error in search: slow", (&ToolError{Tool: "search", Message: "slow"}).Error())
	assert.Equal(t, "", ErrorCode(errors.New("x")))
}

func TestLoggerFromContext_Default(t *testing.T) {
	assert.NotNil(t, LoggerFromContext(context.Background()))
}
