package publisher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/claude-code-ui/agent-sessiond/src/registry"
)

func newTestPublisher(t *testing.T) *Publisher {
	t.Helper()
	dir := t.TempDir()
	p, err := Open(dir, "sessions", 0, nil)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func sampleSession(id string, st registry.EventKind) registry.Event {
	return registry.Event{
		Kind: st,
		Session: registry.Session{
			SessionID: id,
			Hostname:  "local",
			Cwd:       "/w",
			StartedAt: time.Now(),
			Status:    "working",
		},
	}
}

func TestHandleEventAssignsMonotonicSeq(t *testing.T) {
	p := newTestPublisher(t)
	p.HandleEvent(sampleSession("a", registry.Created))
	p.HandleEvent(sampleSession("a", registry.Updated))
	p.HandleEvent(sampleSession("b", registry.Created))
	require.Equal(t, int64(3), p.HeadSeq())
}

func TestReplayFromZeroReturnsEverything(t *testing.T) {
	p := newTestPublisher(t)
	p.HandleEvent(sampleSession("a", registry.Created))
	p.HandleEvent(sampleSession("a", registry.Updated))

	sub := p.Subscribe()
	defer sub.Unsubscribe()

	var recs []Record
	require.NoError(t, sub.Replay(0, func(r Record) error {
		recs = append(recs, r)
		return nil
	}))
	require.Len(t, recs, 2)
	require.Equal(t, OpInsert, recs[0].Op)
	require.Equal(t, OpUpdate, recs[1].Op)
}

func TestReplayResumesFromSeq(t *testing.T) {
	p := newTestPublisher(t)
	p.HandleEvent(sampleSession("a", registry.Created))
	p.HandleEvent(sampleSession("a", registry.Updated))
	p.HandleEvent(sampleSession("a", registry.Updated))

	sub := p.Subscribe()
	defer sub.Unsubscribe()

	var recs []Record
	require.NoError(t, sub.Replay(1, func(r Record) error {
		recs = append(recs, r)
		return nil
	}))
	require.Len(t, recs, 2)
	require.Equal(t, int64(2), recs[0].Seq)
	require.Equal(t, int64(3), recs[1].Seq)
}

func TestSubscribeBeforeReplayDoesNotLoseConcurrentEvent(t *testing.T) {
	p := newTestPublisher(t)
	p.HandleEvent(sampleSession("a", registry.Created))

	sub := p.Subscribe()
	defer sub.Unsubscribe()

	// Published after Subscribe but before Replay runs: must appear once,
	// either via replay or live, never both, never dropped.
	p.HandleEvent(sampleSession("a", registry.Updated))

	var seen []int64
	require.NoError(t, sub.Replay(0, func(r Record) error {
		seen = append(seen, r.Seq)
		return nil
	}))

	head := sub.HeadAtSubscribe()
	drained := false
	for !drained {
		select {
		case rec := <-sub.Live():
			if rec.Seq > head {
				seen = append(seen, rec.Seq)
			}
		default:
			drained = true
		}
	}

	require.ElementsMatch(t, []int64{1, 2}, seen)
}

func TestDeleteRecordHasNoValue(t *testing.T) {
	p := newTestPublisher(t)
	p.HandleEvent(sampleSession("a", registry.Created))
	p.HandleEvent(sampleSession("a", registry.Deleted))

	sub := p.Subscribe()
	defer sub.Unsubscribe()

	var recs []Record
	require.NoError(t, sub.Replay(0, func(r Record) error {
		recs = append(recs, r)
		return nil
	}))
	require.Len(t, recs, 2)
	require.Nil(t, recs[1].Value)
	require.Equal(t, OpDelete, recs[1].Op)
}

func TestMaxAgeFiltersOldSessionsOutOfPublish(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(dir, "sessions", time.Hour, nil)
	require.NoError(t, err)
	defer p.Close()

	old := sampleSession("a", registry.Created)
	old.Session.StartedAt = time.Now().Add(-2 * time.Hour)
	p.HandleEvent(old)

	require.Equal(t, int64(0), p.HeadSeq())
}

func TestReopenResumesSeqAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	p1, err := Open(dir, "sessions", 0, nil)
	require.NoError(t, err)
	p1.HandleEvent(sampleSession("a", registry.Created))
	p1.HandleEvent(sampleSession("a", registry.Updated))
	require.NoError(t, p1.Close())

	p2, err := Open(dir, "sessions", 0, nil)
	require.NoError(t, err)
	defer p2.Close()
	require.Equal(t, int64(2), p2.HeadSeq())

	p2.HandleEvent(sampleSession("a", registry.Updated))
	require.Equal(t, int64(3), p2.HeadSeq())
}
