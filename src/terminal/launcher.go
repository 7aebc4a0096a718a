package terminal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// launcherReconcileWindow bounds how long we wait for a new session log
// stem to appear after a launcher picks a directory (spec.md §4.6.3 step
// 5). After this, the placeholder id becomes the permanent id.
const launcherReconcileWindow = 10 * time.Second

const launcherPollInterval = 250 * time.Millisecond

// pickerScript is the fzf-driven directory picker run inside a launcher's
// multiplexer session. It writes the chosen path to a sentinel file that
// watchLauncher reads once the picker's PTY exits (spec.md §4.6.3 steps 1-3).
const pickerScript = `#!/bin/sh
set -e
choice=$(find "$HOME" -maxdepth 4 -type d 2>/dev/null | fzf --prompt="select a project> ")
printf '%%s' "$choice" > %q
`

// CreateLauncher starts a new launcher multiplexer session running a
// directory picker (spec.md §4.6.3 steps 1-3). The returned ManagedPty is
// indexed under a synthesized launcherId, not a sessionId, until
// reconciliation completes.
func (m *Manager) CreateLauncher(hostname string) (*ManagedPty, string, error) {
	if m.binaries.Multiplexer == "" {
		return nil, "", ErrMultiplexerUnavailable{Binary: m.multiplexer}
	}

	launcherID := uuid.NewString()
	sentinelPath := launcherSentinelPath(launcherID)
	scriptPath := filepath.Join(os.TempDir(), fmt.Sprintf("launcher_script_%s.sh", launcherID))

	script := fmt.Sprintf(pickerScript, sentinelPath)
	if err := os.WriteFile(scriptPath, []byte(script), 0o700); err != nil {
		return nil, "", fmt.Errorf("terminal: write launcher script: %w", err)
	}

	name := sessionName("launcher", launcherID)
	if err := createDetachedSession(m.binaries.Multiplexer, name, "", []string{"/bin/sh", scriptPath}); err != nil {
		return nil, "", fmt.Errorf("terminal: create launcher session: %w", err)
	}

	pty, err := startPty(attachCommand(m.binaries.Multiplexer, name), "", nil, 80, 24)
	if err != nil {
		return nil, "", fmt.Errorf("terminal: attach launcher pty: %w", err)
	}

	mp := newManagedPty(uuid.NewString(), pty, "", "", hostname, name, "")
	mp.LauncherID = launcherID

	m.mu.Lock()
	m.ptys[mp.PtyID] = mp
	m.launcherIndex[launcherID] = mp.PtyID
	m.mu.Unlock()

	go m.watchLauncher(mp, launcherID, sentinelPath, scriptPath)

	return mp, launcherID, nil
}

func launcherSentinelPath(launcherID string) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("launcher_%s", launcherID))
}

// watchLauncher waits for the picker to exit, resolves the chosen
// directory, attaches a real agent session there, and reconciles the
// placeholder id with the agent-assigned sessionId once its log appears
// (spec.md §4.6.3 steps 4-6).
func (m *Manager) watchLauncher(mp *ManagedPty, launcherID, sentinelPath, scriptPath string) {
	<-mp.Done()
	defer os.Remove(scriptPath)
	defer os.Remove(sentinelPath)

	raw, err := os.ReadFile(sentinelPath)
	if err != nil || len(strings.TrimSpace(string(raw))) == 0 {
		m.log.WithField("launcherId", launcherID).Warn("terminal: launcher exited without a selection")
		m.killByID(mp.PtyID)
		m.resolveLauncher(launcherID, LauncherOutcome{Err: fmt.Errorf("terminal: no directory selected")})
		return
	}

	chosen := strings.TrimSpace(string(raw))
	dir := chosen
	if info, statErr := os.Stat(chosen); statErr == nil && !info.IsDir() {
		dir = filepath.Dir(chosen)
	}

	m.mu.Lock()
	delete(m.launcherIndex, launcherID)
	m.mu.Unlock()

	placeholderID := "launcher-" + launcherID
	newMP, _, err := m.GetOrCreate(placeholderID, dir, mp.Hostname, true)
	if err != nil {
		m.log.WithError(err).WithField("launcherId", launcherID).Error("terminal: launcher reconciliation failed to start session")
		m.resolveLauncher(launcherID, LauncherOutcome{Err: err})
		return
	}
	newMP.LauncherID = launcherID

	m.reconcileSessionID(newMP, placeholderID, dir)
	m.resolveLauncher(launcherID, LauncherOutcome{PtyID: newMP.PtyID, SessionID: newMP.SessionID, Cwd: newMP.Cwd})
}

// reconcileSessionID polls for a newly-appeared session log stem under dir
// and, when found, renames the placeholder session to the agent-assigned
// id (spec.md §4.6.3 step 5). If nothing appears within the reconcile
// window, the placeholder id becomes permanent.
func (m *Manager) reconcileSessionID(mp *ManagedPty, placeholderID, dir string) {
	deadline := time.Now().Add(launcherReconcileWindow)
	baseline := snapshotSessionStems(dir)

	for time.Now().Before(deadline) {
		time.Sleep(launcherPollInterval)
		current := snapshotSessionStems(dir)
		for stem := range current {
			if baseline[stem] {
				continue
			}
			newName := sessionName("claude", stem)
			if err := renameMultiplexerSession(m.binaries.Multiplexer, mp.MultiplexerName, newName); err != nil {
				m.log.WithError(err).Warn("terminal: rename multiplexer session failed")
			}
			m.reindexSession(mp.PtyID, placeholderID, stem, newName)
			m.log.WithFields(logrus.Fields{"launcherId": mp.LauncherID, "sessionId": stem}).Info("terminal: launcher reconciled to session")
			return
		}
	}
	m.log.WithField("launcherId", mp.LauncherID).Info("terminal: launcher reconciliation window elapsed, keeping placeholder id")
}

// snapshotSessionStems lists the session log file stems presently on disk
// for a project directory. Best-effort: an unreadable directory yields an
// empty snapshot rather than an error.
func snapshotSessionStems(dir string) map[string]bool {
	projectDir := agentProjectLogDir(dir)
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return map[string]bool{}
	}
	stems := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".jsonl") || strings.HasPrefix(name, "agent_") {
			continue
		}
		stems[strings.TrimSuffix(name, ".jsonl")] = true
	}
	return stems
}

// agentProjectLogDir maps a working directory to the agent CLI's per-
// project log directory, matching the CLI's own path-encoding convention
// of replacing path separators with dashes.
func agentProjectLogDir(cwd string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	encoded := strings.ReplaceAll(cwd, string(filepath.Separator), "-")
	return filepath.Join(home, ".claude", "projects", encoded)
}
