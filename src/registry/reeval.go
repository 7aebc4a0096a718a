package registry

import (
	"context"
	"time"

	"github.com/claude-code-ui/agent-sessiond/src/status"
)

// ReevalInterval is the cooperative ticker period: fast enough to make the
// 500ms fast-idle and 5s pending-tool thresholds take effect without file
// activity (spec.md §4.8).
const ReevalInterval = 2 * time.Second

// RunReevaluator drives the periodic re-evaluator until ctx is cancelled.
// Every tick it recomputes status for every session currently "working"
// and publishes an update if the status changed.
func (r *Registry) RunReevaluator(ctx context.Context) {
	ticker := time.NewTicker(ReevalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reevaluateOnce()
		}
	}
}

func (r *Registry) reevaluateOnce() {
	for _, id := range r.workingSessionIDs() {
		r.dispatcherFor(id).submit(func() { r.reevaluateSession(id) })
	}
}

func (r *Registry) workingSessionIDs() []string {
	r.mu.RLock()
	recs := make(map[string]*record, len(r.records))
	for id, rec := range r.records {
		recs[id] = rec
	}
	r.mu.RUnlock()

	var ids []string
	for id, rec := range recs {
		if session, public := rec.view(); public && session.Status == status.Working {
			ids = append(ids, id)
		}
	}
	return ids
}

// reevaluateSession runs on sessionID's dispatcher.
func (r *Registry) reevaluateSession(sessionID string) {
	r.mu.RLock()
	rec, ok := r.records[sessionID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	rec.mu.Lock()
	if !rec.public {
		rec.mu.Unlock()
		return
	}

	now := r.cfg.Clock.Now()
	tuple := status.Derive(rec.session.Entries, now, r.cfg.IdleTimeout)
	prevStatus := rec.session.Status
	prevCount := rec.session.MessageCount
	if tuple.Status == prevStatus && tuple.MessageCount == prevCount {
		rec.mu.Unlock()
		return
	}

	rec.session.Status = tuple.Status
	rec.session.HasPendingToolUse = tuple.HasPendingToolUse
	rec.session.PendingTool = tuple.PendingTool
	rec.session.MessageCount = tuple.MessageCount
	rec.session.LastActivityAt = tuple.LastActivityAt
	sessionCopy := rec.session.Clone()
	rec.mu.Unlock()

	r.emit(Event{Kind: Updated, Session: sessionCopy, Notification: transitionNotification(prevStatus, tuple, now)})
}
