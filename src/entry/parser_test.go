package entry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserPrompt(t *testing.T) {
	line := []byte(`{"type":"user","timestamp":"2026-01-01T00:00:00Z","sessionId":"abc","cwd":"/w","message":{"role":"user","content":"build X"}}`)
	e, meta, ok := Parse(line)
	require.True(t, ok)
	assert.Equal(t, ShapeUserPrompt, e.Shape)
	assert.Equal(t, "build X", e.Text)
	assert.Equal(t, "abc", meta.SessionID)
	assert.Equal(t, "/w", meta.Cwd)
}

func TestParseToolResult(t *testing.T) {
	line := []byte(`{"type":"user","timestamp":"2026-01-01T00:00:06Z","message":{"role":"user","content":[{"type":"tool_result","content":"ok"}]}}`)
	e, _, ok := Parse(line)
	require.True(t, ok)
	assert.Equal(t, ShapeToolResult, e.Shape)
}

func TestParseAssistantStreaming(t *testing.T) {
	line := []byte(`{"type":"assistant","timestamp":"2026-01-01T00:00:01Z","message":{"role":"assistant","content":[{"type":"text","text":"thinking out loud"}]}}`)
	e, _, ok := Parse(line)
	require.True(t, ok)
	assert.Equal(t, ShapeAssistantStreaming, e.Shape)
	assert.Equal(t, "thinking out loud", e.Text)
}

func TestParseAssistantToolUse(t *testing.T) {
	line := []byte(`{"type":"assistant","timestamp":"2026-01-01T00:00:01Z","message":{"role":"assistant","content":[{"type":"tool_use","name":"Bash","input":{"command":"ls"}}]}}`)
	e, _, ok := Parse(line)
	require.True(t, ok)
	assert.Equal(t, ShapeAssistantToolUse, e.Shape)
	assert.Equal(t, "Bash", e.Tool)
	assert.Equal(t, "ls", e.Target)
}

func TestParseTurnEnd(t *testing.T) {
	line := []byte(`{"type":"system","timestamp":"2026-01-01T00:00:07Z","message":{"turnDurationMs":1200}}`)
	e, _, ok := Parse(line)
	require.True(t, ok)
	assert.Equal(t, ShapeTurnEnd, e.Shape)
}

func TestParseUnknownShapeDegradesToOther(t *testing.T) {
	line := []byte(`{"type":"progress","timestamp":"2026-01-01T00:00:07Z"}`)
	e, _, ok := Parse(line)
	require.True(t, ok)
	assert.Equal(t, ShapeOther, e.Shape)
}

func TestParseMalformedJSONReturnsNotOK(t *testing.T) {
	_, _, ok := Parse([]byte(`{not json`))
	assert.False(t, ok)
}

func TestParseEmptyLineReturnsNotOK(t *testing.T) {
	_, _, ok := Parse([]byte("   \n"))
	assert.False(t, ok)
}

func TestExtractTargetPrefersFilePathOverCommand(t *testing.T) {
	line := []byte(`{"type":"assistant","timestamp":"2026-01-01T00:00:01Z","message":{"role":"assistant","content":[{"type":"tool_use","name":"Edit","input":{"file_path":"/w/main.go","command":"ignored"}}]}}`)
	e, _, ok := Parse(line)
	require.True(t, ok)
	assert.Equal(t, "/w/main.go", e.Target)
}

func TestIsMeaningfulPrompt(t *testing.T) {
	assert.True(t, IsMeaningfulPrompt("build X"))
	assert.False(t, IsMeaningfulPrompt("   "))
	assert.False(t, IsMeaningfulPrompt(""))
}
