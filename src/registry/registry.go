package registry

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/claude-code-ui/agent-sessiond/src/clock"
	"github.com/claude-code-ui/agent-sessiond/src/entry"
	"github.com/claude-code-ui/agent-sessiond/src/gitinfo"
	"github.com/claude-code-ui/agent-sessiond/src/logtail"
	"github.com/claude-code-ui/agent-sessiond/src/status"
)

// record is the registry's internal bookkeeping for one session: the
// public Session plus whether it has gone public yet (metadata complete).
// mu guards session/public against the cross-session reads that
// applySupersession, Snapshot, Get, and the re-evaluator perform from
// goroutines other than this session's own dispatcher, which is otherwise
// the sole writer (spec.md §4.4's single-writer-per-session discipline).
type record struct {
	mu      sync.RWMutex
	session Session
	public  bool
}

// view returns a deep copy of the session and its public flag under a read
// lock, safe to call from any goroutine.
func (rec *record) view() (Session, bool) {
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.session.Clone(), rec.public
}

// supersededBy reports whether rec should be deleted because newSession
// just went public in the same workspace (spec.md §4.4 step 5).
func (rec *record) supersededBy(newSession Session) bool {
	rec.mu.RLock()
	defer rec.mu.RUnlock()
	return rec.public && rec.session.Status == status.Idle && sameWorkspace(newSession, rec.session)
}

// Config configures a Registry.
type Config struct {
	IdleTimeout time.Duration
	Clock       clock.Clock
	// GitInfo resolves git metadata for a cwd. Nil disables enrichment.
	GitInfo func(cwd string) gitinfo.Info
}

// Registry is the in-memory mapping from sessionId to derived Session
// record (spec.md §4.4).
type Registry struct {
	mu          sync.RWMutex
	records     map[string]*record
	dispatchers map[string]*dispatcher

	cfg Config
	out chan Event
	log *logrus.Entry
}

// New constructs a Registry. Call Events to consume its output.
func New(cfg Config, log *logrus.Entry) *Registry {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = status.DefaultIdleTimeout
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		records:     make(map[string]*record),
		dispatchers: make(map[string]*dispatcher),
		cfg:         cfg,
		out:         make(chan Event, 256),
		log:         log,
	}
}

// Events returns the channel Created/Updated/Deleted events are delivered
// on, totally ordered for any single sessionId (spec.md §5).
func (r *Registry) Events() <-chan Event { return r.out }

// HandleFileEvent processes one Tailer signal for a log file (spec.md §4.4).
func (r *Registry) HandleFileEvent(ev logtail.FileEvent, hostname string) {
	sessionID, err := logtail.SessionStem(ev.Path)
	if err != nil {
		return
	}

	switch ev.Kind {
	case logtail.EventChange:
		r.dispatcherFor(sessionID).submit(func() { r.applyChange(sessionID, hostname, ev) })
	case logtail.EventUnlink:
		r.dispatcherFor(sessionID).submit(func() { r.applyUnlink(sessionID) })
	case logtail.EventAdd:
		// No-op: the first Change batch for this path carries the entries.
	}
}

func (r *Registry) dispatcherFor(sessionID string) *dispatcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dispatchers[sessionID]
	if !ok {
		d = newDispatcher()
		r.dispatchers[sessionID] = d
	}
	return d
}

// applyChange runs on sessionID's dispatcher: merges new entries, advances
// bytePosition, recomputes status, and emits created/updated/suppressed
// per spec.md §4.4 steps 1-5.
func (r *Registry) applyChange(sessionID, hostname string, ev logtail.FileEvent) {
	rec := r.getOrCreateRecord(sessionID, hostname)

	rec.mu.Lock()
	mergeMeta(&rec.session, ev.Meta)
	rec.session.Entries = append(rec.session.Entries, ev.Entries...)
	rec.session.BytePosition = ev.Offset

	if rec.session.Cwd == "" || rec.session.StartedAt.IsZero() {
		// Metadata incomplete: the session does not yet exist publicly
		// (spec.md §4.4 step 2).
		rec.mu.Unlock()
		return
	}

	if r.cfg.GitInfo != nil && rec.session.GitRepoID == "" {
		info := r.cfg.GitInfo(rec.session.Cwd)
		if rec.session.GitBranch == "" {
			rec.session.GitBranch = info.Branch
		}
		rec.session.GitRepoID = info.RepoID
	}

	now := r.cfg.Clock.Now()
	tuple := status.Derive(rec.session.Entries, now, r.cfg.IdleTimeout)
	prevStatus := rec.session.Status
	prevCount := rec.session.MessageCount

	rec.session.Status = tuple.Status
	rec.session.HasPendingToolUse = tuple.HasPendingToolUse
	rec.session.PendingTool = tuple.PendingTool
	rec.session.MessageCount = tuple.MessageCount
	rec.session.LastActivityAt = tuple.LastActivityAt

	wasPublic := rec.public
	rec.public = true
	sessionCopy := rec.session.Clone()
	rec.mu.Unlock()

	if !wasPublic {
		r.emit(Event{Kind: Created, Session: sessionCopy})
		r.applySupersession(sessionID, sessionCopy)
		return
	}

	if tuple.Status != prevStatus || tuple.MessageCount > prevCount {
		r.emit(Event{Kind: Updated, Session: sessionCopy, Notification: transitionNotification(prevStatus, tuple, now)})
	}
}

func transitionNotification(prev status.Level, tuple status.Tuple, now time.Time) *Notification {
	if prev != status.Working || tuple.Status != status.Waiting {
		return nil
	}
	nt := NotifyWaitingForInput
	if tuple.HasPendingToolUse {
		nt = NotifyNeedsApproval
	}
	return &Notification{Type: nt, Timestamp: now}
}

func mergeMeta(s *Session, meta entry.Meta) {
	if meta.Cwd != "" && s.Cwd == "" {
		s.Cwd = meta.Cwd
	}
	if meta.GitBranch != "" && s.GitBranch == "" {
		s.GitBranch = meta.GitBranch
	}
	if s.StartedAt.IsZero() && !meta.StartedAt.IsZero() {
		s.StartedAt = meta.StartedAt
	}
	if entry.IsMeaningfulPrompt(meta.OriginalTexts) {
		// OriginalPrompt is taken from the first batch that carries a
		// meaningful prompt; Goal follows the latest one.
		if s.OriginalPrompt == "" {
			s.OriginalPrompt = meta.OriginalTexts
		}
		s.Goal = meta.OriginalTexts
	}
}

// applySupersession implements spec.md §4.4 step 5: for every other session
// sharing this one's workspace and currently idle, delete it.
func (r *Registry) applySupersession(newID string, newSession Session) {
	var toDelete []string

	r.mu.RLock()
	for id, other := range r.records {
		if id == newID {
			continue
		}
		if other.supersededBy(newSession) {
			toDelete = append(toDelete, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range toDelete {
		r.deleteRecord(id)
	}
}

// applyUnlink runs on sessionID's dispatcher.
func (r *Registry) applyUnlink(sessionID string) {
	r.deleteRecord(sessionID)
}

func (r *Registry) deleteRecord(sessionID string) {
	r.mu.Lock()
	rec, ok := r.records[sessionID]
	if ok {
		delete(r.records, sessionID)
	}
	d, hasDispatcher := r.dispatchers[sessionID]
	if hasDispatcher {
		delete(r.dispatchers, sessionID)
	}
	r.mu.Unlock()

	if hasDispatcher {
		d.stop()
	}
	if !ok {
		return
	}
	sessionCopy, public := rec.view()
	if public {
		r.emit(Event{Kind: Deleted, Session: sessionCopy})
	}
}

func (r *Registry) getOrCreateRecord(sessionID, hostname string) *record {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[sessionID]
	if !ok {
		rec = &record{session: Session{SessionID: sessionID, Hostname: hostname}}
		r.records[sessionID] = rec
	}
	return rec
}

// Snapshot returns a copy of every currently public session, used by the
// health endpoint's session count and the MCP facade's list_sessions tool.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	recs := make([]*record, 0, len(r.records))
	for _, rec := range r.records {
		recs = append(recs, rec)
	}
	r.mu.RUnlock()

	out := make([]Session, 0, len(recs))
	for _, rec := range recs {
		if session, public := rec.view(); public {
			out = append(out, session)
		}
	}
	return out
}

// Get returns a copy of one session by id.
func (r *Registry) Get(sessionID string) (Session, bool) {
	r.mu.RLock()
	rec, ok := r.records[sessionID]
	r.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	session, public := rec.view()
	if !public {
		return Session{}, false
	}
	return session, true
}

func (r *Registry) emit(ev Event) {
	r.out <- ev
}

// Stop tears down every session dispatcher.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.dispatchers {
		d.stop()
	}
}
