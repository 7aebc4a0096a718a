package terminal

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	requireTmux(t)
	log := logrus.NewEntry(logrus.New())
	m := NewManager("tmux", "sh", log)
	t.Cleanup(func() {
		m.CloseAll()
		m.Stop()
	})
	return m
}

func TestGetOrCreateStartsNewSessionAndReusesIt(t *testing.T) {
	m := newTestManager(t)

	mp, created, err := m.GetOrCreate("sess-1", "/tmp", "localhost", true)
	require.NoError(t, err)
	require.True(t, created)
	require.NotNil(t, mp)
	defer runWithTimeout("tmux", "kill-session", "-t", mp.MultiplexerName)

	again, created2, err := m.GetOrCreate("sess-1", "/tmp", "localhost", true)
	require.NoError(t, err)
	require.False(t, created2)
	require.Equal(t, mp.PtyID, again.PtyID)
}

func TestGetOrCreateReportsMissingMultiplexerBinary(t *testing.T) {
	log := logrus.NewEntry(logrus.New())
	m := NewManager("definitely-not-a-real-multiplexer-xyz", "sh", log)
	defer m.Stop()

	_, _, err := m.GetOrCreate("sess-missing", "/tmp", "localhost", true)
	require.Error(t, err)
	require.IsType(t, ErrMultiplexerUnavailable{}, err)
}

func TestGetOrCreateReportsMissingAgentCLIBinary(t *testing.T) {
	requireTmux(t)
	log := logrus.NewEntry(logrus.New())
	m := NewManager("tmux", "definitely-not-a-real-agent-xyz", log)
	defer m.Stop()

	_, _, err := m.GetOrCreate("sess-missing-cli", "/tmp", "localhost", true)
	require.Error(t, err)
	require.IsType(t, ErrAgentCLIUnavailable{}, err)
}

func TestRemoveDetachesAndForgetsPty(t *testing.T) {
	m := newTestManager(t)

	mp, _, err := m.GetOrCreate("sess-remove", "/tmp", "localhost", true)
	require.NoError(t, err)
	defer runWithTimeout("tmux", "kill-session", "-t", mp.MultiplexerName)

	m.Remove(mp.PtyID)

	_, ok := m.Get(mp.PtyID)
	require.False(t, ok)
}

func TestSweepIdleReclaimsStaleManagedPty(t *testing.T) {
	m := newTestManager(t)

	mp, _, err := m.GetOrCreate("sess-idle", "/tmp", "localhost", true)
	require.NoError(t, err)
	defer runWithTimeout("tmux", "kill-session", "-t", mp.MultiplexerName)

	mp.activityMu.Lock()
	mp.lastActivity = time.Now().Add(-3 * idleReclaimAfter)
	mp.activityMu.Unlock()

	m.sweepIdle()

	_, ok := m.Get(mp.PtyID)
	require.False(t, ok)
}

func TestReindexSessionMovesSessionIndexEntry(t *testing.T) {
	m := newTestManager(t)

	mp, _, err := m.GetOrCreate("placeholder-1", "/tmp", "localhost", true)
	require.NoError(t, err)
	defer runWithTimeout("tmux", "kill-session", "-t", mp.MultiplexerName)

	m.reindexSession(mp.PtyID, "placeholder-1", "real-session-1", "claude-realsess")

	_, stillThere := m.sessionIndex["placeholder-1"]
	require.False(t, stillThere)

	got, ok := m.Get(mp.PtyID)
	require.True(t, ok)
	require.Equal(t, "real-session-1", got.SessionID)
	require.Equal(t, "claude-realsess", got.MultiplexerName)
}
