// Package registry holds the in-memory mapping from session identifier to
// derived session record, applies the supersession rule, and emits
// created/updated/deleted events (spec.md §4.4).
package registry

import (
	"time"

	"github.com/claude-code-ui/agent-sessiond/src/entry"
	"github.com/claude-code-ui/agent-sessiond/src/status"
)

// Session is the in-memory derived record for one agent conversation
// (spec.md §3). Owned exclusively by the Registry; callers receive copies.
type Session struct {
	SessionID         string
	Hostname          string
	Cwd               string
	GitBranch         string
	GitRepoID         string
	OriginalPrompt    string
	StartedAt         time.Time
	LastActivityAt    time.Time
	Status            status.Level
	MessageCount      int
	HasPendingToolUse bool
	PendingTool       string
	Entries           []entry.RawEntry
	BytePosition      int64
	Goal              string
	Summary           string
}

// Clone returns a deep copy of the session, safe to hand to a publisher or
// API response without aliasing the registry's owned entry slice.
func (s Session) Clone() Session {
	out := s
	out.Entries = make([]entry.RawEntry, len(s.Entries))
	copy(out.Entries, s.Entries)
	return out
}

// sameWorkspace reports whether two sessions should be considered the same
// working location for supersession purposes: identical hostname+cwd, or
// (SPEC_FULL.md's git-aware extension) identical non-empty GitRepoID on the
// same host, which tolerates worktree-relative cwd differences.
func sameWorkspace(a, b Session) bool {
	if a.Hostname != b.Hostname {
		return false
	}
	if a.Cwd == b.Cwd {
		return true
	}
	return a.GitRepoID != "" && a.GitRepoID == b.GitRepoID
}
