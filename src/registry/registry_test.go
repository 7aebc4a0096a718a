package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/claude-code-ui/agent-sessiond/src/clock"
	"github.com/claude-code-ui/agent-sessiond/src/entry"
	"github.com/claude-code-ui/agent-sessiond/src/logtail"
	"github.com/claude-code-ui/agent-sessiond/src/status"
)

func newTestRegistry(t *testing.T, c *clock.Fixed) *Registry {
	t.Helper()
	r := New(Config{IdleTimeout: status.DefaultIdleTimeout, Clock: c}, nil)
	t.Cleanup(r.Stop)
	return r
}

func drainEvent(t *testing.T, r *Registry, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev := <-r.Events():
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for registry event")
		return Event{}
	}
}

func TestHandleFileEventCreatesSessionOnFirstCompleteMetadata(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(base)
	r := newTestRegistry(t, c)

	ev := logtail.FileEvent{
		Kind: logtail.EventChange,
		Path: "/logs/a.jsonl",
		Meta: entry.Meta{SessionID: "a", Cwd: "/w", StartedAt: base, OriginalTexts: "build X"},
		Entries: []entry.RawEntry{
			{Role: entry.RoleUser, Shape: entry.ShapeUserPrompt, Timestamp: base, Text: "build X"},
		},
		Offset: 100,
	}
	r.HandleFileEvent(ev, "local")

	created := drainEvent(t, r, time.Second)
	require.Equal(t, Created, created.Kind)
	require.Equal(t, "a", created.Session.SessionID)
	require.Equal(t, "build X", created.Session.Goal)
	require.Equal(t, status.Working, created.Session.Status)
	require.Equal(t, int64(100), created.Session.BytePosition)
}

func TestHandleFileEventSkipsUntilMetadataComplete(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(base)
	r := newTestRegistry(t, c)

	r.HandleFileEvent(logtail.FileEvent{
		Kind:    logtail.EventChange,
		Path:    "/logs/b.jsonl",
		Meta:    entry.Meta{}, // no cwd/startedAt yet
		Entries: []entry.RawEntry{{Role: entry.RoleSystem, Shape: entry.ShapeOther, Timestamp: base}},
	}, "local")

	select {
	case ev := <-r.Events():
		t.Fatalf("unexpected event before metadata complete: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}

	_, ok := r.Get("b")
	require.False(t, ok)
}

func TestSupersessionDeletesIdleSessionInSameWorkspace(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(base)
	r := newTestRegistry(t, c)

	// Session a becomes idle.
	r.HandleFileEvent(logtail.FileEvent{
		Kind: logtail.EventChange,
		Path: "/logs/a.jsonl",
		Meta: entry.Meta{Cwd: "/w", StartedAt: base},
		Entries: []entry.RawEntry{
			{Role: entry.RoleAssistant, Shape: entry.ShapeAssistantStreaming, Timestamp: base},
		},
	}, "local")
	drainEvent(t, r, time.Second) // created, status derived at base -> working (delta 0)

	c.Advance(21 * time.Minute)
	r.HandleFileEvent(logtail.FileEvent{
		Kind: logtail.EventChange,
		Path: "/logs/a.jsonl",
		Meta: entry.Meta{Cwd: "/w", StartedAt: base},
	}, "local")
	updated := drainEvent(t, r, time.Second)
	require.Equal(t, Updated, updated.Kind)
	require.Equal(t, status.Idle, updated.Session.Status)

	// Session b appears in the same workspace.
	r.HandleFileEvent(logtail.FileEvent{
		Kind: logtail.EventChange,
		Path: "/logs/b.jsonl",
		Meta: entry.Meta{Cwd: "/w", StartedAt: c.Now()},
		Entries: []entry.RawEntry{
			{Role: entry.RoleUser, Shape: entry.ShapeUserPrompt, Timestamp: c.Now()},
		},
	}, "local")

	var createdB, deletedA bool
	for i := 0; i < 2; i++ {
		ev := drainEvent(t, r, time.Second)
		switch {
		case ev.Kind == Created && ev.Session.SessionID == "b":
			createdB = true
		case ev.Kind == Deleted && ev.Session.SessionID == "a":
			deletedA = true
		}
	}
	require.True(t, createdB)
	require.True(t, deletedA)

	_, ok := r.Get("a")
	require.False(t, ok)
}

func TestUnlinkEmitsDeletedForKnownSession(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(base)
	r := newTestRegistry(t, c)

	r.HandleFileEvent(logtail.FileEvent{
		Kind: logtail.EventChange,
		Path: "/logs/c.jsonl",
		Meta: entry.Meta{Cwd: "/w", StartedAt: base},
		Entries: []entry.RawEntry{
			{Role: entry.RoleUser, Shape: entry.ShapeUserPrompt, Timestamp: base},
		},
	}, "local")
	drainEvent(t, r, time.Second)

	r.HandleFileEvent(logtail.FileEvent{Kind: logtail.EventUnlink, Path: "/logs/c.jsonl"}, "local")
	deleted := drainEvent(t, r, time.Second)
	require.Equal(t, Deleted, deleted.Kind)
	require.Equal(t, "c", deleted.Session.SessionID)
}

func TestReevaluateOnceFlipsStatusWithNoNewFileEvent(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(base)
	r := newTestRegistry(t, c)

	r.HandleFileEvent(logtail.FileEvent{
		Kind: logtail.EventChange,
		Path: "/logs/e.jsonl",
		Meta: entry.Meta{Cwd: "/w", StartedAt: base},
		Entries: []entry.RawEntry{
			{Role: entry.RoleAssistant, Shape: entry.ShapeAssistantStreaming, Timestamp: base},
		},
	}, "local")
	created := drainEvent(t, r, time.Second)
	require.Equal(t, status.Working, created.Session.Status)

	// Advance the clock past the fast-streaming idle threshold and trigger a
	// re-evaluation tick directly, with no further HandleFileEvent call.
	c.Advance(status.FastIdleThreshold + time.Millisecond)
	r.reevaluateOnce()

	updated := drainEvent(t, r, time.Second)
	require.Equal(t, Updated, updated.Kind)
	require.Equal(t, status.Waiting, updated.Session.Status)

	session, ok := r.Get("e")
	require.True(t, ok)
	require.Equal(t, status.Waiting, session.Status)
}

func TestSnapshotOnlyIncludesPublicSessions(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewFixed(base)
	r := newTestRegistry(t, c)

	r.HandleFileEvent(logtail.FileEvent{
		Kind:    logtail.EventChange,
		Path:    "/logs/d.jsonl",
		Meta:    entry.Meta{}, // incomplete
		Entries: []entry.RawEntry{{Role: entry.RoleUser, Shape: entry.ShapeUserPrompt, Timestamp: base}},
	}, "local")

	time.Sleep(50 * time.Millisecond)
	require.Empty(t, r.Snapshot())
}
