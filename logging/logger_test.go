package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, LogLevelWarn, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LogLevelInfo, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestStructuredLogger_JSONAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf}).
		WithComponent("engine").
		WithConversation("conv-1").
		WithContext("region", "eu")

	l.Info("engine.turn.start", "iteration", 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "engine.turn.start", entry["msg"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "conv-1", entry["conversation_id"])
	assert.Equal(t, "eu", entry["region"])
	assert.Equal(t, float64(2), entry["iteration"])
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "json", Output: &buf})

	l.Debug("hidden")
	l.Info("hidden")
	assert.Zero(t, buf.Len())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestStructuredLogger_WithDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf})
	_ = parent.WithContext("k", "v")

	parent.Info("plain")
	assert.NotContains(t, buf.String(), `"k"`)
}

func TestStructuredLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "text", Output: &buf, NoColor: true})

	l.LogToolCall("search", 15*time.Millisecond, errors.New("boom"))

	out := buf.String()
	assert.True(t, strings.Contains(out, "tool.call.failed"), out)
	assert.Contains(t, out, "boom")
}

func TestOrNoOp(t *testing.T) {
	assert.IsType(t, NoOpLogger{}, OrNoOp(nil))

	l := NewDefaultSlogLogger()
	assert.Equal(t, l, OrNoOp(l))
}
