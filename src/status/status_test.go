package status

import (
	"testing"
	"time"

	"github.com/claude-code-ui/agent-sessiond/src/entry"
	"github.com/stretchr/testify/assert"
)

func at(t *testing.T, s string) time.Time {
	t.Helper()
	tm, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatal(err)
	}
	return tm
}

func TestDeriveEmptyIsIdle(t *testing.T) {
	now := at(t, "2026-01-01T00:00:00Z")
	tuple := Derive(nil, now, DefaultIdleTimeout)
	assert.Equal(t, Idle, tuple.Status)
}

func TestDeriveUserPromptIsWorking(t *testing.T) {
	ts := at(t, "2026-01-01T00:00:00Z")
	entries := []entry.RawEntry{{Role: entry.RoleUser, Shape: entry.ShapeUserPrompt, Timestamp: ts, Text: "build X"}}
	tuple := Derive(entries, ts, DefaultIdleTimeout)
	assert.Equal(t, Working, tuple.Status)
	assert.Equal(t, 1, tuple.MessageCount)
}

func TestDeriveTurnEndIsWaiting(t *testing.T) {
	ts := at(t, "2026-01-01T00:00:00Z")
	entries := []entry.RawEntry{
		{Role: entry.RoleUser, Shape: entry.ShapeUserPrompt, Timestamp: ts},
		{Role: entry.RoleSystem, Shape: entry.ShapeTurnEnd, Timestamp: ts.Add(time.Second)},
	}
	tuple := Derive(entries, ts.Add(time.Second), DefaultIdleTimeout)
	assert.Equal(t, Waiting, tuple.Status)
}

func TestDerivePendingToolUseBecomesWaitingAfter5s(t *testing.T) {
	base := at(t, "2026-01-01T00:00:00Z")
	entries := []entry.RawEntry{
		{Role: entry.RoleUser, Shape: entry.ShapeUserPrompt, Timestamp: base},
		{Role: entry.RoleAssistant, Shape: entry.ShapeAssistantToolUse, Timestamp: base.Add(time.Second), Tool: "Bash", Target: "ls"},
	}

	before := Derive(entries, base.Add(4*time.Second), DefaultIdleTimeout)
	assert.Equal(t, Working, before.Status)

	after := Derive(entries, base.Add(6*time.Second), DefaultIdleTimeout)
	assert.Equal(t, Waiting, after.Status)
	assert.True(t, after.HasPendingToolUse)
	assert.Equal(t, "Bash", after.PendingTool)
}

func TestDeriveToolResultClearsPending(t *testing.T) {
	base := at(t, "2026-01-01T00:00:00Z")
	entries := []entry.RawEntry{
		{Role: entry.RoleUser, Shape: entry.ShapeUserPrompt, Timestamp: base},
		{Role: entry.RoleAssistant, Shape: entry.ShapeAssistantToolUse, Timestamp: base.Add(time.Second), Tool: "Bash"},
		{Role: entry.RoleUser, Shape: entry.ShapeToolResult, Timestamp: base.Add(6 * time.Second)},
	}
	tuple := Derive(entries, base.Add(6*time.Second), DefaultIdleTimeout)
	assert.False(t, tuple.HasPendingToolUse)
	assert.Equal(t, Working, tuple.Status)
}

func TestDeriveAssistantStreamingFastIdle(t *testing.T) {
	base := at(t, "2026-01-01T00:00:00Z")
	entries := []entry.RawEntry{
		{Role: entry.RoleUser, Shape: entry.ShapeUserPrompt, Timestamp: base},
		{Role: entry.RoleAssistant, Shape: entry.ShapeAssistantStreaming, Timestamp: base.Add(time.Second), Text: "hello"},
	}

	before := Derive(entries, base.Add(time.Second+300*time.Millisecond), DefaultIdleTimeout)
	assert.Equal(t, Working, before.Status)

	after := Derive(entries, base.Add(time.Second+600*time.Millisecond), DefaultIdleTimeout)
	assert.Equal(t, Waiting, after.Status)
}

func TestDeriveIdleTimeout(t *testing.T) {
	base := at(t, "2026-01-01T00:00:00Z")
	entries := []entry.RawEntry{
		{Role: entry.RoleAssistant, Shape: entry.ShapeAssistantStreaming, Timestamp: base},
	}
	tuple := Derive(entries, base.Add(21*time.Minute), DefaultIdleTimeout)
	assert.Equal(t, Idle, tuple.Status)
}

func TestDeriveIsDeterministicAcrossRepeatedCalls(t *testing.T) {
	base := at(t, "2026-01-01T00:00:00Z")
	entries := []entry.RawEntry{
		{Role: entry.RoleUser, Shape: entry.ShapeUserPrompt, Timestamp: base},
		{Role: entry.RoleAssistant, Shape: entry.ShapeAssistantToolUse, Timestamp: base.Add(time.Second), Tool: "Bash"},
	}
	now := base.Add(10 * time.Second)
	a := Derive(entries, now, DefaultIdleTimeout)
	b := Derive(entries, now, DefaultIdleTimeout)
	assert.Equal(t, a, b)
}

func TestDeriveCustomIdleTimeout(t *testing.T) {
	base := at(t, "2026-01-01T00:00:00Z")
	entries := []entry.RawEntry{
		{Role: entry.RoleAssistant, Shape: entry.ShapeAssistantStreaming, Timestamp: base},
	}
	tuple := Derive(entries, base.Add(6*time.Minute), 5*time.Minute)
	assert.Equal(t, Idle, tuple.Status)
}
