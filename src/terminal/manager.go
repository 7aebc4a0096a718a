package terminal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// idleSweepInterval is how often the reclamation sweeper runs
	// (spec.md §4.6.5).
	idleSweepInterval = 5 * time.Minute
	// idleReclaimAfter kills a ManagedPty with no activity for this long.
	idleReclaimAfter = 2 * time.Hour
)

// ErrMultiplexerUnavailable is returned when the configured multiplexer
// binary cannot be found on PATH.
type ErrMultiplexerUnavailable struct{ Binary string }

func (e ErrMultiplexerUnavailable) Error() string {
	return fmt.Sprintf("terminal: multiplexer binary %q not found", e.Binary)
}

// ErrAgentCLIUnavailable is returned when the agent CLI binary cannot be
// found on PATH.
type ErrAgentCLIUnavailable struct{ Binary string }

func (e ErrAgentCLIUnavailable) Error() string {
	return fmt.Sprintf("terminal: agent CLI binary %q not found", e.Binary)
}

// Manager owns every ManagedPty (spec.md §4.6). Maps are mutated only on
// create/kill/rename, guarded by a single lock (spec.md §5).
type Manager struct {
	mu            sync.RWMutex
	ptys          map[string]*ManagedPty
	sessionIndex  map[string]string // sessionId -> ptyId
	launcherIndex map[string]string // launcherId -> ptyId

	binaries     Binaries
	multiplexer  string
	agentCLI     string
	log          *logrus.Entry
	stopSweep    chan struct{}
	stopSweepOnce sync.Once

	outcomeMu sync.Mutex
	outcomes  map[string]chan LauncherOutcome // launcherId -> waiter
}

// LauncherOutcome reports how a launcher's directory-picker session
// resolved (spec.md §4.6.3 step 5 / §4.7 launcher_complete). Err is set
// when the picker exited without a usable selection.
type LauncherOutcome struct {
	PtyID     string
	SessionID string
	Cwd       string
	Err       error
}

// NewManager constructs a Manager. multiplexerBin/agentCLIBin name the
// external programs (defaults "tmux"/"claude" if empty).
func NewManager(multiplexerBin, agentCLIBin string, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	m := &Manager{
		ptys:          make(map[string]*ManagedPty),
		sessionIndex:  make(map[string]string),
		launcherIndex: make(map[string]string),
		multiplexer:   multiplexerBin,
		agentCLI:      agentCLIBin,
		binaries:      ResolveBinaries(multiplexerBin, agentCLIBin),
		log:           log,
		stopSweep:     make(chan struct{}),
		outcomes:      make(map[string]chan LauncherOutcome),
	}
	return m
}

// AwaitLauncherOutcome returns a channel that receives exactly one
// LauncherOutcome once launcherID's picker session resolves (spec.md
// §4.7: the terminal WS endpoint blocks on this to emit launcher_complete
// over a still-open launcher handshake connection).
func (m *Manager) AwaitLauncherOutcome(launcherID string) <-chan LauncherOutcome {
	ch := make(chan LauncherOutcome, 1)
	m.outcomeMu.Lock()
	m.outcomes[launcherID] = ch
	m.outcomeMu.Unlock()
	return ch
}

func (m *Manager) resolveLauncher(launcherID string, outcome LauncherOutcome) {
	m.outcomeMu.Lock()
	ch, ok := m.outcomes[launcherID]
	delete(m.outcomes, launcherID)
	m.outcomeMu.Unlock()
	if ok {
		ch <- outcome
		close(ch)
	}
}

// RunIdleSweeper drives the idle-reclamation sweeper until ctx is done
// (spec.md §4.6.5, §8 property 7).
func (m *Manager) RunIdleSweeper(ctx context.Context) {
	ticker := time.NewTicker(idleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopSweep:
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

func (m *Manager) sweepIdle() {
	now := time.Now()
	var toKill []string

	m.mu.RLock()
	for id, mp := range m.ptys {
		if now.Sub(mp.LastActivityAt()) > idleReclaimAfter {
			toKill = append(toKill, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range toKill {
		m.log.WithField("ptyId", id).Info("terminal: reclaiming idle pty")
		m.killByID(id)
	}
}

// GetOrCreate implements spec.md §4.6.2. forceNew skips --resume when
// creating a fresh multiplexer session.
func (m *Manager) GetOrCreate(sessionID, cwd, hostname string, forceNew bool) (*ManagedPty, bool, error) {
	m.mu.Lock()
	if ptyID, ok := m.sessionIndex[sessionID]; ok {
		if mp, ok := m.ptys[ptyID]; ok && !mp.IsDead() {
			m.mu.Unlock()
			return mp, false, nil
		}
	}
	m.mu.Unlock()

	if m.binaries.Multiplexer == "" {
		return nil, false, ErrMultiplexerUnavailable{Binary: m.multiplexer}
	}
	if m.binaries.AgentCLI == "" {
		return nil, false, ErrAgentCLIUnavailable{Binary: m.agentCLI}
	}

	name := sessionName("claude", sessionID)
	created := false
	if !sessionExists(m.binaries.Multiplexer, name) {
		command := []string{m.binaries.AgentCLI}
		if !forceNew {
			command = append(command, "--resume", sessionID)
		}
		if err := createDetachedSession(m.binaries.Multiplexer, name, cwd, command); err != nil {
			return nil, false, fmt.Errorf("terminal: create multiplexer session: %w", err)
		}
		created = true
	}

	warning := detectOutsideConflict(m.binaries.AgentCLI, cwd)

	pty, err := startPty(attachCommand(m.binaries.Multiplexer, name), cwd, nil, 80, 24)
	if err != nil {
		return nil, false, fmt.Errorf("terminal: attach pty: %w", err)
	}

	mp := newManagedPty(uuid.NewString(), pty, sessionID, cwd, hostname, name, warning)

	m.mu.Lock()
	m.ptys[mp.PtyID] = mp
	m.sessionIndex[sessionID] = mp.PtyID
	m.mu.Unlock()

	return mp, created, nil
}

// Get returns a ManagedPty by id.
func (m *Manager) Get(ptyID string) (*ManagedPty, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mp, ok := m.ptys[ptyID]
	return mp, ok
}

// GetBySessionID looks up the ManagedPty currently attached to sessionID.
func (m *Manager) GetBySessionID(sessionID string) (*ManagedPty, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ptyID, ok := m.sessionIndex[sessionID]
	if !ok {
		return nil, false
	}
	mp, ok := m.ptys[ptyID]
	return mp, ok
}

// GetByLauncherID looks up the ManagedPty created for launcherID. The WS
// endpoint uses this rather than creating one, since a launcher's PTY is
// only ever created by a prior POST /terminals/launcher (spec.md §4.7).
func (m *Manager) GetByLauncherID(launcherID string) (*ManagedPty, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ptyID, ok := m.launcherIndex[launcherID]
	if !ok {
		return nil, false
	}
	mp, ok := m.ptys[ptyID]
	return mp, ok
}

// List returns every live ManagedPty, for the /terminals endpoint.
func (m *Manager) List() []*ManagedPty {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*ManagedPty, 0, len(m.ptys))
	for _, mp := range m.ptys {
		if !mp.IsDead() {
			out = append(out, mp)
		}
	}
	return out
}

// Remove closes and removes a ManagedPty by id. Detaches the PTY only;
// the multiplexer session and agent process persist (spec.md §4.6.5).
func (m *Manager) Remove(ptyID string) {
	m.killByID(ptyID)
}

func (m *Manager) killByID(ptyID string) {
	m.mu.Lock()
	mp, ok := m.ptys[ptyID]
	if ok {
		delete(m.ptys, ptyID)
		if mp.SessionID != "" {
			delete(m.sessionIndex, mp.SessionID)
		}
		if mp.LauncherID != "" {
			delete(m.launcherIndex, mp.LauncherID)
		}
	}
	m.mu.Unlock()

	if ok {
		mp.Close()
	}
}

// reindexSession moves a ManagedPty's registry entry from its placeholder
// sessionId to its real one, used by launcher reconciliation (spec.md
// §4.6.3 step 4).
func (m *Manager) reindexSession(ptyID, oldSessionID, newSessionID, newMultiplexerName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mp, ok := m.ptys[ptyID]; ok {
		delete(m.sessionIndex, oldSessionID)
		mp.renameSessionID(newSessionID, newMultiplexerName)
		m.sessionIndex[newSessionID] = ptyID
	}
}

// Stop halts the idle sweeper. ManagedPtys are closed by the caller
// separately (daemon shutdown closes every PTY explicitly, spec.md §5).
func (m *Manager) Stop() {
	m.stopSweepOnce.Do(func() { close(m.stopSweep) })
}

// CloseAll detaches every ManagedPty (daemon shutdown, spec.md §5). The
// multiplexer sessions are left running.
func (m *Manager) CloseAll() {
	m.mu.RLock()
	ids := make([]string, 0, len(m.ptys))
	for id := range m.ptys {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		m.killByID(id)
	}
}
