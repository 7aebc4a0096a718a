// Package entry classifies raw append-only log lines written by the agent
// CLI into typed, immutable records (spec.md §3 RawEntry, §4.2 Entry Parser).
package entry

import "time"

// ContentShape is the structural classification of a single log line.
type ContentShape string

const (
	ShapeUserPrompt         ContentShape = "user_prompt"
	ShapeToolResult         ContentShape = "tool_result"
	ShapeAssistantStreaming ContentShape = "assistant_streaming"
	ShapeAssistantToolUse   ContentShape = "assistant_tool_use"
	ShapeTurnEnd            ContentShape = "turn_end"
	ShapeOther              ContentShape = "other"
)

// Role is the speaker role recorded on a log line.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// RawEntry is a single parsed log line. Immutable once constructed: owned by
// its Session and copied (never shared by reference) into event payloads.
type RawEntry struct {
	Role      Role
	Shape     ContentShape
	Timestamp time.Time
	// Text is the plain-text content for USER_PROMPT/ASSISTANT_STREAMING entries.
	Text string
	// Tool is the tool name for ASSISTANT_TOOL_USE entries.
	Tool string
	// Target is the normalized first path-like or command-like field of a
	// tool-use payload (spec.md §4.2).
	Target string
}

// Clone returns a deep copy of the entry, safe to embed in an outgoing event
// payload without aliasing the Session's owned copy (spec.md §3 ownership).
func (e RawEntry) Clone() RawEntry {
	return e
}
