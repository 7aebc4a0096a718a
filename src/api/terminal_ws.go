package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/claude-code-ui/agent-sessiond/src/terminal"
)

const wsCloseWriteWait = 5 * time.Second

var terminalUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// terminalWSMessage is the wire shape for every inbound and outbound
// frame on the terminal WebSocket (spec.md §4.7).
type terminalWSMessage struct {
	Type            string `json:"type"`
	Data            string `json:"data,omitempty"`
	Cols            uint16 `json:"cols,omitempty"`
	Rows            uint16 `json:"rows,omitempty"`
	Message         string `json:"message,omitempty"`
	PtyID           string `json:"ptyId,omitempty"`
	SessionID       string `json:"sessionId,omitempty"`
	MultiplexerName string `json:"multiplexerName,omitempty"`
	Cwd             string `json:"cwd,omitempty"`
	Warning         string `json:"warning,omitempty"`
	Code            int    `json:"code,omitempty"`
	Signal          bool   `json:"signal,omitempty"`
}

// closeWithReason writes a close frame carrying a status code and reason
// text before the caller tears down the connection (spec.md §4.7: reject
// a malformed or unresolvable handshake with code 4000/4001).
func closeWithReason(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseWriteWait))
}

// TerminalWSHandler serves the terminal WebSocket endpoint (spec.md
// §4.6.6-§4.7): a session handshake attaches to (or creates) a
// ManagedPty via the Terminal Manager; a launcher handshake only
// attaches to a PTY the manager already created via a prior POST
// /terminals/launcher, and is followed through reconciliation so the
// browser learns the real sessionId once the agent CLI assigns one.
type TerminalWSHandler struct {
	mgr *terminal.Manager
	log *logrus.Entry
}

// NewTerminalWSHandler constructs a TerminalWSHandler.
func NewTerminalWSHandler(mgr *terminal.Manager, log *logrus.Entry) *TerminalWSHandler {
	return &TerminalWSHandler{mgr: mgr, log: log}
}

// Handle implements the /terminal route.
func (h *TerminalWSHandler) Handle(c *gin.Context) {
	sessionID := c.Query("sessionId")
	launcherID := c.Query("launcherId")
	cwd := c.Query("cwd")
	hostname := c.DefaultQuery("hostname", "")
	cols, rows := parseDims(c.Query("cols"), c.Query("rows"))

	conn, err := terminalUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("api: terminal websocket upgrade failed")
		return
	}
	defer conn.Close()

	switch {
	case launcherID != "":
		h.serveLauncher(conn, launcherID)
	case sessionID != "" && cwd != "":
		h.serveSession(conn, sessionID, cwd, hostname, cols, rows)
	default:
		closeWithReason(conn, 4000, "terminal: handshake requires either launcherId or sessionId+cwd")
	}
}

func (h *TerminalWSHandler) serveSession(conn *websocket.Conn, sessionID, cwd, hostname string, cols, rows uint16) {
	mp, isNew, err := h.mgr.GetOrCreate(sessionID, cwd, hostname, false)
	if err != nil {
		_ = conn.WriteJSON(terminalWSMessage{Type: "error", Message: err.Error()})
		closeWithReason(conn, 4001, err.Error())
		return
	}

	if !isNew && cols > 0 && rows > 0 {
		_ = mp.Resize(cols, rows)
	}

	_ = conn.WriteJSON(terminalWSMessage{
		Type:            "attached",
		PtyID:           mp.PtyID,
		SessionID:       mp.SessionID,
		MultiplexerName: mp.MultiplexerName,
		Warning:         mp.Warning,
	})

	h.pumpPty(conn, mp, nil)
}

func (h *TerminalWSHandler) serveLauncher(conn *websocket.Conn, launcherID string) {
	mp, ok := h.mgr.GetByLauncherID(launcherID)
	if !ok {
		closeWithReason(conn, 4000, "terminal: no launcher pty for this launcherId")
		return
	}

	_ = conn.WriteJSON(terminalWSMessage{Type: "attached", PtyID: mp.PtyID})

	outcome := h.mgr.AwaitLauncherOutcome(launcherID)
	h.pumpPty(conn, mp, outcome)
}

// pumpPty runs the read-pump/write-pump pair shared by both handshake
// variants (adapted from handler/terminal.go's HandleTerminalWS). When
// outcome is non-nil (launcher handshake), it additionally waits for
// launcher reconciliation and relays a launcher_complete frame once the
// picker's PTY exits.
func (h *TerminalWSHandler) pumpPty(conn *websocket.Conn, mp *terminal.ManagedPty, outcome <-chan terminal.LauncherOutcome) {
	sub := mp.Subscribe()
	defer mp.Unsubscribe(sub)

	if buffered := mp.GetBuffer(); len(buffered) > 0 {
		_ = conn.WriteJSON(terminalWSMessage{Type: "output", Data: string(buffered)})
	}

	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() { closeOnce.Do(func() { close(done) }) }

	go func() {
		for {
			select {
			case data, ok := <-sub.Ch:
				if !ok {
					closeDone()
					return
				}
				if err := conn.WriteJSON(terminalWSMessage{Type: "output", Data: string(data)}); err != nil {
					closeDone()
					return
				}
			case ev := <-mp.Exit():
				_ = conn.WriteJSON(terminalWSMessage{Type: "exit", Code: ev.Code, Signal: ev.Signaled})
			case result, ok := <-outcome:
				if !ok {
					continue
				}
				if result.Err != nil {
					_ = conn.WriteJSON(terminalWSMessage{Type: "error", Message: result.Err.Error()})
					continue
				}
				_ = conn.WriteJSON(terminalWSMessage{
					Type:      "launcher_complete",
					PtyID:     result.PtyID,
					SessionID: result.SessionID,
					Cwd:       result.Cwd,
				})
			case <-done:
				return
			case <-mp.Done():
				closeDone()
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeDone()
			return
		}

		var msg terminalWSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.log.WithError(err).Warn("api: malformed terminal websocket message")
			continue
		}

		switch msg.Type {
		case "input":
			mp.Touch()
			if _, err := mp.Write([]byte(msg.Data)); err != nil {
				h.log.WithError(err).Warn("api: write to pty failed")
			}
		case "resize":
			if msg.Cols > 0 && msg.Rows > 0 {
				if err := mp.Resize(msg.Cols, msg.Rows); err != nil {
					h.log.WithError(err).Warn("api: resize pty failed")
				}
			}
		case "ping":
			_ = conn.WriteJSON(terminalWSMessage{Type: "pong"})
		}
	}
}

func parseDims(colsStr, rowsStr string) (uint16, uint16) {
	var cols, rows uint16
	if v, err := strconv.ParseUint(colsStr, 10, 16); err == nil {
		cols = uint16(v)
	}
	if v, err := strconv.ParseUint(rowsStr, 10, 16); err == nil {
		rows = uint16(v)
	}
	return cols, rows
}
