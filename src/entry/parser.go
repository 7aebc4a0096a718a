package entry

import (
	"encoding/json"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// jsonAPI is the jsoniter codec used for the hot per-line decode path; it is
// drop-in compatible with encoding/json's RawMessage and struct tags.
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// envelope is the tolerant outer shape of a single log line. Every agent CLI
// line carries at least "type" and "timestamp"; everything else is decoded
// lazily so an unrecognized variant never aborts the batch.
type envelope struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"sessionId"`
	Cwd       string          `json:"cwd"`
	GitBranch string          `json:"gitBranch"`
	Message   json.RawMessage `json:"message"`
}

type message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Name    string          `json:"name"`
	Input   json.RawMessage `json:"input"`
	Content json.RawMessage `json:"content"`
}

// Meta is the session-level metadata carried by an entry (spec.md §4.2).
// When the Log Tailer merges a batch, SessionID, Cwd, GitBranch and
// StartedAt come from the first entry that carries each, and OriginalTexts
// from the last meaningful user prompt.
type Meta struct {
	SessionID     string
	Cwd           string
	GitBranch     string
	OriginalTexts string
	StartedAt     time.Time
}

// Parse decodes a single raw log line into a RawEntry. Unrecognized or
// malformed shapes degrade to ShapeOther rather than returning an error:
// the caller (Log Tailer) still advances past the line.
func Parse(line []byte) (RawEntry, Meta, bool) {
	line = trimLine(line)
	if len(line) == 0 {
		return RawEntry{}, Meta{}, false
	}

	var env envelope
	if err := jsonAPI.Unmarshal(line, &env); err != nil {
		return RawEntry{}, Meta{}, false
	}

	ts, _ := time.Parse(time.RFC3339Nano, env.Timestamp)

	meta := Meta{
		SessionID: env.SessionID,
		Cwd:       env.Cwd,
		GitBranch: env.GitBranch,
		StartedAt: ts,
	}

	switch env.Type {
	case "user":
		return classifyUser(env, ts, meta)
	case "assistant":
		return classifyAssistant(env, ts, meta)
	case "system":
		return classifySystem(env, ts, meta)
	default:
		return RawEntry{Role: RoleSystem, Shape: ShapeOther, Timestamp: ts}, meta, true
	}
}

func classifyUser(env envelope, ts time.Time, meta Meta) (RawEntry, Meta, bool) {
	var msg message
	if len(env.Message) == 0 || jsonAPI.Unmarshal(env.Message, &msg) != nil {
		return RawEntry{Role: RoleUser, Shape: ShapeOther, Timestamp: ts}, meta, true
	}

	if text, ok := decodeStringContent(msg.Content); ok {
		meta.OriginalTexts = text
		return RawEntry{Role: RoleUser, Shape: ShapeUserPrompt, Timestamp: ts, Text: text}, meta, true
	}

	blocks, ok := decodeBlockContent(msg.Content)
	if !ok {
		return RawEntry{Role: RoleUser, Shape: ShapeOther, Timestamp: ts}, meta, true
	}
	for _, b := range blocks {
		if b.Type == "tool_result" {
			return RawEntry{Role: RoleUser, Shape: ShapeToolResult, Timestamp: ts}, meta, true
		}
	}
	return RawEntry{Role: RoleUser, Shape: ShapeOther, Timestamp: ts}, meta, true
}

func classifyAssistant(env envelope, ts time.Time, meta Meta) (RawEntry, Meta, bool) {
	var msg message
	if len(env.Message) == 0 || jsonAPI.Unmarshal(env.Message, &msg) != nil {
		return RawEntry{Role: RoleAssistant, Shape: ShapeOther, Timestamp: ts}, meta, true
	}

	if text, ok := decodeStringContent(msg.Content); ok {
		return RawEntry{Role: RoleAssistant, Shape: ShapeAssistantStreaming, Timestamp: ts, Text: text}, meta, true
	}

	blocks, ok := decodeBlockContent(msg.Content)
	if !ok {
		return RawEntry{Role: RoleAssistant, Shape: ShapeOther, Timestamp: ts}, meta, true
	}

	var text strings.Builder
	for _, b := range blocks {
		if b.Type == "tool_use" {
			return RawEntry{
				Role:      RoleAssistant,
				Shape:     ShapeAssistantToolUse,
				Timestamp: ts,
				Tool:      b.Name,
				Target:    extractTarget(b.Input),
			}, meta, true
		}
		if b.Type == "text" {
			text.WriteString(b.Text)
		}
	}
	return RawEntry{Role: RoleAssistant, Shape: ShapeAssistantStreaming, Timestamp: ts, Text: text.String()}, meta, true
}

func classifySystem(env envelope, ts time.Time, meta Meta) (RawEntry, Meta, bool) {
	// Turn markers carry a duration or a stop-hook payload on the envelope's
	// message; structural presence is sufficient, value ignored.
	var raw map[string]json.RawMessage
	if len(env.Message) > 0 && jsonAPI.Unmarshal(env.Message, &raw) == nil {
		if _, ok := raw["turnDurationMs"]; ok {
			return RawEntry{Role: RoleSystem, Shape: ShapeTurnEnd, Timestamp: ts}, meta, true
		}
		if _, ok := raw["stopHook"]; ok {
			return RawEntry{Role: RoleSystem, Shape: ShapeTurnEnd, Timestamp: ts}, meta, true
		}
	}
	return RawEntry{Role: RoleSystem, Shape: ShapeOther, Timestamp: ts}, meta, true
}

func decodeStringContent(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := jsonAPI.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func decodeBlockContent(raw json.RawMessage) ([]contentBlock, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var blocks []contentBlock
	if err := jsonAPI.Unmarshal(raw, &blocks); err != nil {
		return nil, false
	}
	return blocks, true
}

// extractTarget normalizes the first path-like or command-like field of a
// tool-use input payload (spec.md §4.2).
func extractTarget(input json.RawMessage) string {
	if len(input) == 0 {
		return ""
	}
	var fields map[string]json.RawMessage
	if jsonAPI.Unmarshal(input, &fields) != nil {
		return ""
	}
	for _, key := range []string{"file_path", "path", "notebook_path", "command", "pattern", "url"} {
		if raw, ok := fields[key]; ok {
			if s, ok := decodeStringContent(raw); ok {
				return s
			}
		}
	}
	return ""
}

// IsMeaningfulPrompt reports whether text survives whitespace trim, used to
// track the "latest meaningful user prompt" as a session's displayed goal.
func IsMeaningfulPrompt(text string) bool {
	return strings.TrimSpace(text) != ""
}

func trimLine(line []byte) []byte {
	return []byte(strings.TrimRight(string(line), "\r\n"))
}
