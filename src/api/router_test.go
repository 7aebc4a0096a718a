package api

import (
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/claude-code-ui/agent-sessiond/src/hostterminal"
	"github.com/claude-code-ui/agent-sessiond/src/mount"
	"github.com/claude-code-ui/agent-sessiond/src/registry"
	"github.com/claude-code-ui/agent-sessiond/src/terminal"
)

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	reg := registry.New(registry.Config{}, log)
	store, err := mount.Open(t.TempDir())
	require.NoError(t, err)
	mgr := terminal.NewManager("tmux", "sh", log)
	t.Cleanup(func() { mgr.CloseAll(); mgr.Stop() })

	return Deps{
		Registry:    reg,
		Terminal:    mgr,
		Machines:    store,
		HostTerm:    hostterminal.NewDisabled(),
		AgentCLIBin: "claude",
		Hostname:    "localhost",
		Log:         log,
	}
}

func TestSetupRouterServesRootAndMachines(t *testing.T) {
	r, err := SetupRouter(newTestDeps(t))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, 200, w.Code)

	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, httptest.NewRequest("GET", "/machines", nil))
	require.Equal(t, 200, w2.Code)
	require.Contains(t, w2.Body.String(), `"machines":[]`)
}

func TestSetupRouterMountsMCP(t *testing.T) {
	r, err := SetupRouter(newTestDeps(t))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/mcp", nil)
	req.Header.Set("Accept", "application/json, text/event-stream")
	r.ServeHTTP(w, req)
	require.NotEqual(t, 404, w.Code)
}

func TestSetupRouterCORSPreflight(t *testing.T) {
	r, err := SetupRouter(newTestDeps(t))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("OPTIONS", "/machines", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, 204, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSetupRouterServesHealth(t *testing.T) {
	r, err := SetupRouter(newTestDeps(t))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestSetupRouterInsightsReportsNotFoundForUnknownSession(t *testing.T) {
	r, err := SetupRouter(newTestDeps(t))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/sessions/ghost/insights", nil))
	require.Equal(t, 404, w.Code)
}
