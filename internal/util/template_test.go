package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate_NoMarkers(t *testing.T) {
	out, err := RenderTemplate("You are helpful & <terse>.", nil)
	require.NoError(t, err)
	assert.Equal(t, "You are helpful & <terse>.", out)
}

func TestRenderTemplate_DateAndState(t *testing.T) {
	now := func() time.Time { return time.Date(2024, 3, 9, 23, 0, 0, 0, time.UTC) }

	out, err := renderTemplate(`Today is {{date}}. Hi {{default "there" .name}} & <{{upper .tone}}>`, map[string]any{"tone": "calm", "name": ""}, now)
	require.NoError(t, err)
	assert.Equal(t, "Today is 2024-03-09. Hi there & <CALM>", out)
}

func TestRenderTemplate_ParseError(t *testing.T) {
	_, err := RenderTemplate("{{ .broken ", nil)
	assert.Error(t, err)
}

func TestRenderTemplate_MissingKey(t *testing.T) {
	_, err := RenderTemplate("Hello {{.nmae}}", map[string]any{"name": "Ada"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nmae")
}
