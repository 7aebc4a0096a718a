package api

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/claude-code-ui/agent-sessiond/src/hostterminal"
	"github.com/claude-code-ui/agent-sessiond/src/registry"
)

func newFocusHandler() *FocusHandler {
	log := logrus.NewEntry(logrus.New())
	reg := registry.New(registry.Config{}, log)
	return NewFocusHandler(hostterminal.NewDisabled(), "claude", reg, log)
}

func TestHandleFocusITermReportsFalseWhenUnsupported(t *testing.T) {
	h := newFocusHandler()
	c, w := newTestContext()
	body, _ := json.Marshal(focusITermRequest{SearchTerm: "sess-1"})
	c.Request = httptest.NewRequest("POST", "/focus-iterm", bytes.NewReader(body))

	h.HandleFocusITerm(c)

	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), `"success":false`)
}

func TestHandleOpenSessionReportsFailureWhenUnsupported(t *testing.T) {
	h := newFocusHandler()
	c, w := newTestContext()
	body, _ := json.Marshal(openSessionRequest{Cwd: "/tmp", SessionID: "sess-1"})
	c.Request = httptest.NewRequest("POST", "/open-session", bytes.NewReader(body))

	h.HandleOpenSession(c)

	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), `"success":false`)
}

func TestHandleOpenSessionRejectsBadBody(t *testing.T) {
	h := newFocusHandler()
	c, w := newTestContext()
	c.Request = httptest.NewRequest("POST", "/open-session", bytes.NewReader([]byte("not json")))

	h.HandleOpenSession(c)

	require.Equal(t, 400, w.Code)
}

func TestHandleFocusOrOpenReportsFailedWhenCapabilityDisabled(t *testing.T) {
	h := newFocusHandler()
	c, w := newTestContext()
	body, _ := json.Marshal(focusOrOpenRequest{Cwd: "/tmp", SessionID: "sess-1"})
	c.Request = httptest.NewRequest("POST", "/focus-or-open", bytes.NewReader(body))

	h.HandleFocusOrOpen(c)

	require.Equal(t, 200, w.Code)
	require.Contains(t, w.Body.String(), `"action":"failed"`)
}
