package mcpserver

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/claude-code-ui/agent-sessiond/src/registry"
)

type fakeSnapshotSource struct {
	sessions map[string]registry.Session
}

func (f *fakeSnapshotSource) Snapshot() []registry.Session {
	out := make([]registry.Session, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, s)
	}
	return out
}

func (f *fakeSnapshotSource) Get(sessionID string) (registry.Session, bool) {
	s, ok := f.sessions[sessionID]
	return s, ok
}

func TestNewServerMountsMCPRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	fake := &fakeSnapshotSource{sessions: map[string]registry.Session{
		"sess-1": {SessionID: "sess-1", Cwd: "/tmp", Status: "working"},
	}}

	srv, err := NewServer(engine, fake, logrus.NewEntry(logrus.New()))
	require.NoError(t, err)
	require.NotNil(t, srv)
}

func TestToSummaryMapsFields(t *testing.T) {
	s := registry.Session{
		SessionID:    "abc",
		Hostname:     "host1",
		Cwd:          "/repo",
		GitBranch:    "main",
		Status:       "waiting",
		MessageCount: 5,
	}
	summary := toSummary(s)
	require.Equal(t, "abc", summary.SessionID)
	require.Equal(t, "waiting", summary.Status)
	require.Equal(t, 5, summary.MessageCount)
}
