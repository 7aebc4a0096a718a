// Package publisher serializes Session Registry events into a monotonic
// append-only change stream with resumption by sequence number (spec.md
// §4.5). The on-disk log is the source of truth for replay; an in-memory
// index accelerates resume without a linear file scan.
package publisher

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/claude-code-ui/agent-sessiond/src/registry"
)

// Op is the change kind carried by a Record (spec.md §4.5).
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// SessionView is the wire projection of a registry.Session: everything a
// subscriber needs to render session status, excluding the raw entry
// history (which belongs to the Terminal Manager's scrollback, not the
// session-state stream).
type SessionView struct {
	SessionID         string    `json:"sessionId"`
	Hostname          string    `json:"hostname"`
	Cwd               string    `json:"cwd"`
	GitBranch         string    `json:"gitBranch,omitempty"`
	GitRepoID         string    `json:"gitRepoId,omitempty"`
	OriginalPrompt    string    `json:"originalPrompt"`
	StartedAt         time.Time `json:"startedAt"`
	LastActivityAt    time.Time `json:"lastActivityAt"`
	Status            string    `json:"status"`
	MessageCount      int       `json:"messageCount"`
	HasPendingToolUse bool      `json:"hasPendingToolUse"`
	PendingTool       string    `json:"pendingTool,omitempty"`
	Goal              string    `json:"goal"`
	Summary           string    `json:"summary,omitempty"`
}

func viewOf(s registry.Session) SessionView {
	return SessionView{
		SessionID:         s.SessionID,
		Hostname:          s.Hostname,
		Cwd:               s.Cwd,
		GitBranch:         s.GitBranch,
		GitRepoID:         s.GitRepoID,
		OriginalPrompt:    s.OriginalPrompt,
		StartedAt:         s.StartedAt,
		LastActivityAt:    s.LastActivityAt,
		Status:            string(s.Status),
		MessageCount:      s.MessageCount,
		HasPendingToolUse: s.HasPendingToolUse,
		PendingTool:       s.PendingTool,
		Goal:              s.Goal,
		Summary:           s.Summary,
	}
}

// NotificationView mirrors registry.Notification for the wire.
type NotificationView struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// Record is one line of the change stream (spec.md §4.5, §6).
type Record struct {
	Seq          int64             `json:"seq"`
	Op           Op                `json:"op"`
	PK           string            `json:"pk"`
	Value        *SessionView      `json:"value,omitempty"`
	Notification *NotificationView `json:"notification,omitempty"`
}

const indexRecordSize = 16 // seq int64 + offset int64, big endian

// Publisher appends registry events to an on-disk change log and fans live
// records to subscribers.
type Publisher struct {
	mu         sync.Mutex
	logFile    *os.File
	indexFile  *os.File
	logPath    string
	seq        int64
	fileOffset int64
	index      []indexEntry

	subMu       sync.Mutex
	subscribers map[int]chan Record
	nextSubID   int

	maxAge time.Duration
	log    *logrus.Entry
}

type indexEntry struct {
	seq    int64
	offset int64
}

// Open opens (creating if absent) the change log and index for streamName
// under stateDir/streams/streamName, matching spec.md §6's persisted-state
// layout.
func Open(stateDir, streamName string, maxAge time.Duration, log *logrus.Entry) (*Publisher, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	dir := filepath.Join(stateDir, "streams", streamName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("publisher: create stream dir: %w", err)
	}

	logPath := filepath.Join(dir, "log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("publisher: open log: %w", err)
	}

	indexPath := filepath.Join(dir, "index")
	indexFile, err := os.OpenFile(indexPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("publisher: open index: %w", err)
	}

	p := &Publisher{
		logFile:     logFile,
		indexFile:   indexFile,
		logPath:     logPath,
		subscribers: make(map[int]chan Record),
		maxAge:      maxAge,
		log:         log,
	}

	if err := p.loadIndex(); err != nil {
		logFile.Close()
		indexFile.Close()
		return nil, err
	}

	info, err := logFile.Stat()
	if err != nil {
		logFile.Close()
		indexFile.Close()
		return nil, fmt.Errorf("publisher: stat log: %w", err)
	}
	p.fileOffset = info.Size()
	if n := len(p.index); n > 0 {
		p.seq = p.index[n-1].seq
	}

	return p, nil
}

func (p *Publisher) loadIndex() error {
	if _, err := p.indexFile.Seek(0, 0); err != nil {
		return fmt.Errorf("publisher: seek index: %w", err)
	}
	r := bufio.NewReader(p.indexFile)
	buf := make([]byte, indexRecordSize)
	for {
		_, err := readFull(r, buf)
		if err != nil {
			break
		}
		p.index = append(p.index, indexEntry{
			seq:    int64(binary.BigEndian.Uint64(buf[:8])),
			offset: int64(binary.BigEndian.Uint64(buf[8:])),
		})
	}
	if _, err := p.indexFile.Seek(0, 2); err != nil {
		return fmt.Errorf("publisher: seek index end: %w", err)
	}
	return nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// HandleEvent converts one registry.Event into a Record, appends it to the
// durable log, and fans it to live subscribers. MAX_AGE_HOURS filters
// sessions older than the configured window out of publish (spec.md §6);
// deletes for such sessions still pass through, since a subscriber that
// never saw the insert simply ignores an unmatched delete.
func (p *Publisher) HandleEvent(ev registry.Event) {
	if p.maxAge > 0 && ev.Kind != registry.Deleted && !ev.Session.StartedAt.IsZero() {
		if time.Since(ev.Session.StartedAt) > p.maxAge {
			return
		}
	}

	rec := p.buildRecord(ev)
	if err := p.append(rec); err != nil {
		p.log.WithError(err).Error("publisher: append failed")
		return
	}
	p.broadcast(rec)
}

func (p *Publisher) buildRecord(ev registry.Event) Record {
	var op Op
	switch ev.Kind {
	case registry.Created:
		op = OpInsert
	case registry.Updated:
		op = OpUpdate
	case registry.Deleted:
		op = OpDelete
	}

	rec := Record{Op: op, PK: ev.Session.SessionID}
	if op != OpDelete {
		v := viewOf(ev.Session)
		rec.Value = &v
	}
	if ev.Notification != nil {
		rec.Notification = &NotificationView{Type: string(ev.Notification.Type), Timestamp: ev.Notification.Timestamp}
	}
	return rec
}

func (p *Publisher) append(rec Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	rec.Seq = p.seq

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("publisher: marshal record: %w", err)
	}
	line = append(line, '\n')

	if _, err := p.logFile.Write(line); err != nil {
		return fmt.Errorf("publisher: write log: %w", err)
	}
	p.fileOffset += int64(len(line))

	var idxBuf [indexRecordSize]byte
	binary.BigEndian.PutUint64(idxBuf[:8], uint64(p.seq))
	binary.BigEndian.PutUint64(idxBuf[8:], uint64(p.fileOffset))
	if _, err := p.indexFile.Write(idxBuf[:]); err != nil {
		return fmt.Errorf("publisher: write index: %w", err)
	}
	p.index = append(p.index, indexEntry{seq: p.seq, offset: p.fileOffset})

	return nil
}

// HeadSeq returns the most recently assigned sequence number.
func (p *Publisher) HeadSeq() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq
}

// Close releases the underlying files.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	err1 := p.logFile.Close()
	err2 := p.indexFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
