// Package status implements the pure status-derivation function: a
// deterministic mapping from a session's entry history plus wall-clock time
// to its current display status. Re-evaluable on a timer without any file
// change, so it must never read external state beyond its two arguments.
package status

import (
	"time"

	"github.com/claude-code-ui/agent-sessiond/src/entry"
)

// Level is the coarse session status shown to subscribers.
type Level string

const (
	Working Level = "working"
	Waiting Level = "waiting"
	Idle    Level = "idle"
)

// DefaultIdleTimeout is used when the caller does not override it.
const DefaultIdleTimeout = 20 * time.Minute

// FastIdleThreshold is the Δ after the last ASSISTANT_STREAMING entry beyond
// which the session is considered to have handed control back to the user,
// absorbing turn markers the agent CLI omits.
const FastIdleThreshold = 500 * time.Millisecond

// PendingApprovalThreshold is the Δ after a still-unanswered tool use beyond
// which the session is treated as waiting on user approval.
const PendingApprovalThreshold = 5 * time.Second

// Tuple is the output of Derive (spec.md §3 Status tuple).
type Tuple struct {
	Status           Level
	HasPendingToolUse bool
	PendingTool       string
	MessageCount      int
	LastActivityAt    time.Time
}

// Derive computes the status tuple for an ordered entry list at time now.
// Pure: depends only on entries and now, never on prior calls (spec.md §8
// property 2).
func Derive(entries []entry.RawEntry, now time.Time, idleTimeout time.Duration) Tuple {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if len(entries) == 0 {
		return Tuple{Status: Idle, LastActivityAt: now}
	}

	last := entries[len(entries)-1]
	lastActivityAt := last.Timestamp
	if lastActivityAt.IsZero() {
		lastActivityAt = now
	}

	pending, pendingTool := pendingToolUse(entries)
	delta := now.Sub(lastActivityAt)
	messageCount := countMessages(entries)

	tuple := Tuple{
		HasPendingToolUse: pending,
		PendingTool:       pendingTool,
		MessageCount:      messageCount,
		LastActivityAt:    lastActivityAt,
	}

	switch {
	case pending && delta >= PendingApprovalThreshold:
		tuple.Status = Waiting
	case delta >= idleTimeout:
		tuple.Status = Idle
	case last.Shape == entry.ShapeTurnEnd:
		tuple.Status = Waiting
	case last.Shape == entry.ShapeAssistantStreaming && delta >= FastIdleThreshold:
		tuple.Status = Waiting
	case isActiveShape(last.Shape, delta):
		tuple.Status = Working
	default:
		tuple.Status = Working
	}

	return tuple
}

// pendingToolUse reports whether the last ASSISTANT_TOOL_USE entry is
// unanswered: it occurs after both the last TOOL_RESULT and the last
// TURN_END in entry order.
func pendingToolUse(entries []entry.RawEntry) (bool, string) {
	lastToolResult := -1
	lastTurnEnd := -1
	lastToolUse := -1
	var tool string

	for i, e := range entries {
		switch e.Shape {
		case entry.ShapeToolResult:
			lastToolResult = i
		case entry.ShapeTurnEnd:
			lastTurnEnd = i
		case entry.ShapeAssistantToolUse:
			lastToolUse = i
			tool = e.Tool
		}
	}

	if lastToolUse < 0 {
		return false, ""
	}
	if lastToolUse > lastToolResult && lastToolUse > lastTurnEnd {
		return true, tool
	}
	return false, ""
}

func isActiveShape(shape entry.ContentShape, delta time.Duration) bool {
	switch shape {
	case entry.ShapeUserPrompt, entry.ShapeToolResult:
		return true
	case entry.ShapeAssistantToolUse:
		return delta < PendingApprovalThreshold
	case entry.ShapeAssistantStreaming:
		return delta < FastIdleThreshold
	default:
		return false
	}
}

func countMessages(entries []entry.RawEntry) int {
	n := 0
	for _, e := range entries {
		if e.Role == entry.RoleUser || e.Role == entry.RoleAssistant {
			n++
		}
	}
	return n
}
