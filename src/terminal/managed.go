package terminal

import (
	"sync"
	"time"
)

const (
	// maxBufferSize bounds the replay ring buffer (spec.md §3 ManagedPty).
	maxBufferSize = 100 * 1024

	// subscriberChanSize is the per-subscriber output channel's buffer.
	subscriberChanSize = 64

	// ansiReset is prepended to buffer replays so truncated escape
	// sequences never leak stale text attributes into a new subscriber's
	// view (adapted from session_manager.go's GetBuffer).
	ansiReset = "\x1b[0m"
)

// Subscriber is a weak reference held by a WebSocket connection to a
// ManagedPty's output (spec.md §3 ownership: "WebSocket connections hold
// only weak subscriber references").
type Subscriber struct {
	Ch   chan []byte
	done chan struct{}
}

// ManagedPty is the Terminal Manager's record of one PTY attached to a
// detached multiplexer session (spec.md §3, §4.6.1).
type ManagedPty struct {
	PtyID           string
	SessionID       string
	LauncherID      string
	Cwd             string
	Hostname        string
	CreatedAt       time.Time
	MultiplexerName string
	Warning         string

	pty *ptySession

	bufMu  sync.Mutex
	buffer []byte
	dead   bool

	subMu       sync.RWMutex
	subscribers map[*Subscriber]struct{}

	doneCh    chan struct{}
	closeOnce sync.Once

	activityMu   sync.Mutex
	lastActivity time.Time

	exitCh chan ExitEvent
}

// ExitEvent is delivered once, when the underlying PTY process exits.
type ExitEvent struct {
	Code     int
	Signaled bool
}

func newManagedPty(id string, session *ptySession, sessionID, cwd, hostname, multiplexerName, warning string) *ManagedPty {
	now := time.Now()
	mp := &ManagedPty{
		PtyID:           id,
		SessionID:       sessionID,
		Cwd:             cwd,
		Hostname:        hostname,
		CreatedAt:       now,
		MultiplexerName: multiplexerName,
		Warning:         warning,
		pty:             session,
		buffer:          make([]byte, 0, 4096),
		subscribers:     make(map[*Subscriber]struct{}),
		doneCh:          make(chan struct{}),
		lastActivity:    now,
		exitCh:          make(chan ExitEvent, 1),
	}
	go mp.readLoop()
	return mp
}

// readLoop distributes PTY output to the ring buffer and subscribers for
// the PTY's lifetime (adapted from session_manager.go's readLoop).
func (mp *ManagedPty) readLoop() {
	defer func() {
		recover()
		mp.markDead()
	}()

	buf := make([]byte, 4096)
	for {
		n, err := mp.pty.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			mp.appendBuffer(data)
			mp.broadcast(data)
		}
		if err != nil {
			// Reap the attach process so ExitInfo sees its real exit state;
			// after Close the process has already been waited for.
			mp.pty.mu.Lock()
			if !mp.pty.closed && mp.pty.cmd != nil && mp.pty.cmd.Process != nil {
				_ = mp.pty.cmd.Wait()
			}
			mp.pty.mu.Unlock()
			code, signaled := mp.pty.ExitInfo()
			select {
			case mp.exitCh <- ExitEvent{Code: code, Signaled: signaled}:
			default:
			}
			return
		}
	}
}

func (mp *ManagedPty) markDead() {
	mp.closeOnce.Do(func() {
		mp.bufMu.Lock()
		mp.dead = true
		mp.bufMu.Unlock()
		close(mp.doneCh)
	})
}

func (mp *ManagedPty) appendBuffer(data []byte) {
	mp.bufMu.Lock()
	if mp.dead {
		mp.bufMu.Unlock()
		return
	}
	mp.buffer = append(mp.buffer, data...)
	if len(mp.buffer) > maxBufferSize {
		excess := len(mp.buffer) - maxBufferSize
		cutPoint := excess
		limit := excess + 256
		if limit > len(mp.buffer) {
			limit = len(mp.buffer)
		}
		for i := excess; i < limit; i++ {
			if mp.buffer[i] == '\n' {
				cutPoint = i + 1
				break
			}
		}
		mp.buffer = mp.buffer[cutPoint:]
	}
	mp.bufMu.Unlock()

	mp.activityMu.Lock()
	mp.lastActivity = time.Now()
	mp.activityMu.Unlock()
}

// GetBuffer returns a copy of the current ring buffer, reset-prefixed
// (spec.md §4.6.4).
func (mp *ManagedPty) GetBuffer() []byte {
	mp.bufMu.Lock()
	defer mp.bufMu.Unlock()
	if len(mp.buffer) == 0 {
		return nil
	}
	reset := []byte(ansiReset)
	out := make([]byte, len(reset)+len(mp.buffer))
	copy(out, reset)
	copy(out[len(reset):], mp.buffer)
	return out
}

func (mp *ManagedPty) broadcast(data []byte) {
	mp.subMu.RLock()
	defer mp.subMu.RUnlock()
	for sub := range mp.subscribers {
		select {
		case sub.Ch <- data:
		case <-sub.done:
		case <-mp.doneCh:
			return
		default:
			// Slow subscriber: drop this chunk, not the broadcast loop
			// (spec.md §4.6.7, §5 back-pressure policy).
		}
	}
}

// Subscribe registers a new output listener. Replay the current buffer
// first, then read from Ch for the live tail (spec.md §4.6.4).
func (mp *ManagedPty) Subscribe() *Subscriber {
	sub := &Subscriber{Ch: make(chan []byte, subscriberChanSize), done: make(chan struct{})}
	mp.subMu.Lock()
	mp.subscribers[sub] = struct{}{}
	mp.subMu.Unlock()
	return sub
}

// Unsubscribe removes a listener. Silent no-op if already removed
// (spec.md §4.6.7: "broadcast-send to a closed subscriber: silently
// dropped").
func (mp *ManagedPty) Unsubscribe(sub *Subscriber) {
	mp.subMu.Lock()
	delete(mp.subscribers, sub)
	mp.subMu.Unlock()

	select {
	case <-sub.done:
	default:
		close(sub.done)
	}

	mp.activityMu.Lock()
	mp.lastActivity = time.Now()
	mp.activityMu.Unlock()
}

// ClientCount returns the number of connected subscribers.
func (mp *ManagedPty) ClientCount() int {
	mp.subMu.RLock()
	defer mp.subMu.RUnlock()
	return len(mp.subscribers)
}

// Write sends input to the PTY.
func (mp *ManagedPty) Write(p []byte) (int, error) { return mp.pty.Write(p) }

// Resize changes the PTY's dimensions.
func (mp *ManagedPty) Resize(cols, rows uint16) error { return mp.pty.Resize(cols, rows) }

// Done is closed when the PTY process exits.
func (mp *ManagedPty) Done() <-chan struct{} { return mp.doneCh }

// Exit delivers the process exit code/signal once, when the PTY process
// exits, just before Done closes.
func (mp *ManagedPty) Exit() <-chan ExitEvent { return mp.exitCh }

// IsDead reports whether the underlying PTY process has exited.
func (mp *ManagedPty) IsDead() bool {
	mp.bufMu.Lock()
	defer mp.bufMu.Unlock()
	return mp.dead
}

// LastActivityAt reports the last subscriber-traffic or output timestamp,
// used by idle reclamation (spec.md §4.6.5).
func (mp *ManagedPty) LastActivityAt() time.Time {
	mp.activityMu.Lock()
	defer mp.activityMu.Unlock()
	return mp.lastActivity
}

// Touch records subscriber input activity (keeps an actively-typed-in PTY
// from looking idle between output bursts).
func (mp *ManagedPty) Touch() {
	mp.activityMu.Lock()
	mp.lastActivity = time.Now()
	mp.activityMu.Unlock()
}

// Close detaches the PTY. The multiplexer session and agent process are
// left running (spec.md §4.6.5).
func (mp *ManagedPty) Close() {
	mp.pty.Close()
	mp.markDead()
}

// renameSessionID updates the ManagedPty's sessionId in place, used by
// launcher reconciliation (spec.md §4.6.3 step 4).
func (mp *ManagedPty) renameSessionID(sessionID, multiplexerName string) {
	mp.SessionID = sessionID
	mp.MultiplexerName = multiplexerName
}
