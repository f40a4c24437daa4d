package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry(newEchoTool())

	assert.Error(t, r.Register(newEchoTool()), "duplicate")
	assert.Error(t, r.Register(NewFunctionTool("", "", nil, nil)), "empty name")

	tl, ok := r.Lookup("echo")
	require.True(t, ok)
	assert.Equal(t, "echo", tl.Name())

	_, ok = r.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"echo"}, r.Names())
}

func TestRegistry_Definitions(t *testing.T) {
	second := NewFunctionTool("second", "Second tool", map[string]any{"type": "object"}, nil)
	r := NewRegistry(newEchoTool(), second)

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "echo", defs[0].Function.Name)
	assert.Equal(t, "Echo the query", defs[0].Function.Description)
	assert.Equal(t, "second", defs[1].Function.Name)
}

func TestRegistry_Invoke(t *testing.T) {
	r := NewRegistry(newEchoTool())
	ctx := context.Background()

	out, err := r.Invoke(ctx, "echo", `{"query":"go"}`)
	require.NoError(t, err)
	assert.Equal(t, `{"echo":"go"}`, out)

	_, err = r.Invoke(ctx, "missing", `{}`)
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = r.Invoke(ctx, "echo", `{not json`)
	assert.Equal(t, CodeInvalidArguments, ErrorCode(err))

	_, err = r.Invoke(ctx, "echo", "")
	assert.Equal(t, CodeInvalidArguments, ErrorCode(err), "empty arguments miss the required query")
}
