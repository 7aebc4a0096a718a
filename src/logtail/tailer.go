// Package logtail watches configured roots for append-only session log
// files and emits incremental batches of parsed entries (spec.md §4.1).
//
// Ownership discipline: every mutable field that is not independently
// synchronized (offsets, the per-path debounce-timer map entries once
// fired) is touched only by the single run() goroutine. The fsnotify
// event loop, the debounce callbacks, and AddRoot all hand work to run()
// through channels instead of mutating shared state directly — the same
// single-owner-goroutine discipline the agent CLI's own tailer uses.
package logtail

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/claude-code-ui/agent-sessiond/src/entry"
)

const (
	// logSuffix is the file-extension convention for per-session logs.
	logSuffix = ".jsonl"
	// subSessionPrefix marks subagent transcripts, never tailed as top-level
	// sessions.
	subSessionPrefix = "agent_"
	// debounceWindow coalesces rapid writes into a single read per file.
	debounceWindow = 250 * time.Millisecond
	// maxWatchDepth bounds recursive directory registration.
	maxWatchDepth = 2
)

// EventKind distinguishes the three signals the tailer can emit for a file.
type EventKind string

const (
	EventAdd    EventKind = "add"
	EventChange EventKind = "change"
	EventUnlink EventKind = "unlink"
)

// FileEvent is a single tailer signal: a change batch of newly parsed
// entries (possibly empty), or an add/unlink notice.
type FileEvent struct {
	Kind    EventKind
	Path    string
	Entries []entry.RawEntry
	Meta    entry.Meta
	Offset  int64
	Err     error
}

// WatchPath names a root directory to recursively watch, tagged with the
// hostname label it should report for sessions discovered under it.
type WatchPath struct {
	Root     string
	Hostname string
}

// Tailer watches a set of roots and emits FileEvents on Events().
type Tailer struct {
	watcher *fsnotify.Watcher
	events  chan FileEvent
	done    chan struct{}
	closeOnce sync.Once

	addRootCh chan WatchPath
	readyCh   chan string

	timerMu sync.Mutex
	timers  map[string]*time.Timer

	// offsets and watchedDirs are owned exclusively by run().
	offsets     map[string]int64
	watchedDirs map[string]bool
	log         *logrus.Entry
}

// New constructs a Tailer. Call Run in its own goroutine, then AddRoot for
// each configured root.
func New(log *logrus.Entry) (*Tailer, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Tailer{
		watcher:     w,
		events:      make(chan FileEvent, 64),
		done:        make(chan struct{}),
		addRootCh:   make(chan WatchPath),
		readyCh:     make(chan string, 64),
		timers:      make(map[string]*time.Timer),
		offsets:     make(map[string]int64),
		watchedDirs: make(map[string]bool),
		log:         log,
	}, nil
}

// Events returns the channel FileEvents are delivered on.
func (t *Tailer) Events() <-chan FileEvent { return t.events }

// AddRoot registers a root directory for watching. It blocks until Run's
// loop takes the root (or Stop is called), so Run must already be running
// in another goroutine.
func (t *Tailer) AddRoot(root WatchPath) {
	select {
	case t.addRootCh <- root:
	case <-t.done:
	}
}

// Stop halts the tailer and releases the underlying fsnotify watcher.
func (t *Tailer) Stop() {
	t.closeOnce.Do(func() {
		close(t.done)
		t.watcher.Close()
	})
}

// Run drives the tailer's event loop. Blocks until Stop is called.
func (t *Tailer) Run() {
	for {
		select {
		case <-t.done:
			t.timerMu.Lock()
			for _, tm := range t.timers {
				tm.Stop()
			}
			t.timerMu.Unlock()
			return

		case root := <-t.addRootCh:
			t.registerRoot(root)

		case ev, ok := <-t.watcher.Events:
			if !ok {
				continue
			}
			t.handleFsEvent(ev)

		case err, ok := <-t.watcher.Errors:
			if !ok {
				continue
			}
			t.log.WithError(err).Warn("logtail: watcher error")

		case path := <-t.readyCh:
			t.readAndEmit(path)
		}
	}
}

func (t *Tailer) registerRoot(root WatchPath) {
	t.walkDepth(root.Root, 0)
}

func (t *Tailer) walkDepth(dir string, depth int) {
	if depth > maxWatchDepth {
		return
	}
	if !t.watchedDirs[dir] {
		if err := t.watcher.Add(dir); err != nil {
			t.log.WithError(err).WithField("dir", dir).Warn("logtail: cannot watch directory")
			return
		}
		t.watchedDirs[dir] = true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.log.WithError(err).WithField("dir", dir).Warn("logtail: cannot list directory")
		return
	}
	for _, de := range entries {
		full := filepath.Join(dir, de.Name())
		if de.IsDir() {
			t.walkDepth(full, depth+1)
			continue
		}
		if isTailable(de.Name()) {
			t.emitAdd(full)
			t.scheduleRead(full)
		}
	}
}

func (t *Tailer) handleFsEvent(ev fsnotify.Event) {
	name := filepath.Base(ev.Name)

	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			t.walkDepth(ev.Name, 1)
			return
		}
		if isTailable(name) {
			t.emitAdd(ev.Name)
			t.scheduleRead(ev.Name)
		}
		return
	}

	if ev.Op&(fsnotify.Write) != 0 {
		if isTailable(name) {
			t.scheduleRead(ev.Name)
		}
		return
	}

	if ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		if isTailable(name) {
			t.emitUnlink(ev.Name)
		}
		return
	}
}

func (t *Tailer) scheduleRead(path string) {
	t.timerMu.Lock()
	defer t.timerMu.Unlock()
	if tm, ok := t.timers[path]; ok {
		tm.Stop()
	}
	t.timers[path] = time.AfterFunc(debounceWindow, func() {
		select {
		case t.readyCh <- path:
		case <-t.done:
		}
	})
}

func (t *Tailer) emitAdd(path string) {
	t.send(FileEvent{Kind: EventAdd, Path: path})
}

func (t *Tailer) emitUnlink(path string) {
	delete(t.offsets, path)
	t.timerMu.Lock()
	if tm, ok := t.timers[path]; ok {
		tm.Stop()
		delete(t.timers, path)
	}
	t.timerMu.Unlock()
	t.send(FileEvent{Kind: EventUnlink, Path: path})
}

// readAndEmit implements the handler contract of spec.md §4.1: read from the
// stored offset to EOF, decode complete lines, advance the offset past the
// last complete line terminator only.
func (t *Tailer) readAndEmit(path string) {
	offset := t.offsets[path]

	f, err := os.Open(path)
	if err != nil {
		t.send(FileEvent{Kind: EventChange, Path: path, Err: err})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		t.send(FileEvent{Kind: EventChange, Path: path, Err: err})
		return
	}
	// File race: truncated or replaced smaller than our recorded offset.
	// Re-read from 0 rather than erroring (spec.md §4.1 failure model).
	if info.Size() < offset {
		offset = 0
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		t.send(FileEvent{Kind: EventChange, Path: path, Err: err})
		return
	}

	reader := bufio.NewReaderSize(f, 64*1024)
	var (
		entries  []entry.RawEntry
		meta     entry.Meta
		consumed int64
	)

	for {
		line, readErr := reader.ReadBytes('\n')
		if len(line) == 0 && readErr != nil {
			break
		}
		if readErr != nil && !strings.HasSuffix(string(line), "\n") {
			// Partial trailing line: not consumed, offset stops before it.
			break
		}
		consumed += int64(len(line))

		trimmed := strings.TrimSpace(string(line))
		if trimmed == "" {
			continue
		}
		e, m, ok := entry.Parse(line)
		if !ok {
			// Malformed line: skip but still advance past it to avoid stalls.
			continue
		}
		entries = append(entries, e)
		if m.SessionID != "" && meta.SessionID == "" {
			meta.SessionID = m.SessionID
		}
		if m.Cwd != "" && meta.Cwd == "" {
			meta.Cwd = m.Cwd
		}
		if m.GitBranch != "" && meta.GitBranch == "" {
			meta.GitBranch = m.GitBranch
		}
		if meta.StartedAt.IsZero() && !m.StartedAt.IsZero() {
			meta.StartedAt = m.StartedAt
		}
		if entry.IsMeaningfulPrompt(m.OriginalTexts) {
			meta.OriginalTexts = m.OriginalTexts
		}

		if readErr != nil {
			break
		}
	}

	t.offsets[path] = offset + consumed

	t.send(FileEvent{
		Kind:    EventChange,
		Path:    path,
		Entries: entries,
		Meta:    meta,
		Offset:  t.offsets[path],
	})
}

func (t *Tailer) send(ev FileEvent) {
	select {
	case t.events <- ev:
	case <-t.done:
	}
}

// isTailable reports whether a filename is a top-level session log: it
// carries the configured suffix and is not a subagent transcript.
func isTailable(name string) bool {
	if !strings.HasSuffix(name, logSuffix) {
		return false
	}
	return !strings.HasPrefix(name, subSessionPrefix)
}

// SessionStem returns the session identifier implied by a log file's name:
// the segment before the suffix (spec.md §4.4 step 1).
func SessionStem(path string) (string, error) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, logSuffix) {
		return "", errors.New("logtail: not a session log file")
	}
	return strings.TrimSuffix(name, logSuffix), nil
}
