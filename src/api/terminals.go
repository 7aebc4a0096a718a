package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/claude-code-ui/agent-sessiond/src/terminal"
)

// TerminalLifecycleHandler serves /terminals, /terminals/launcher and
// DELETE /terminals/{ptyId} (spec.md §6), delegating to terminal.Manager.
type TerminalLifecycleHandler struct {
	*BaseHandler
	mgr      *terminal.Manager
	hostname string
	log      *logrus.Entry
}

// NewTerminalLifecycleHandler constructs a TerminalLifecycleHandler.
func NewTerminalLifecycleHandler(mgr *terminal.Manager, hostname string, log *logrus.Entry) *TerminalLifecycleHandler {
	return &TerminalLifecycleHandler{BaseHandler: NewBaseHandler(), mgr: mgr, hostname: hostname, log: log}
}

// HandleList implements GET /terminals.
func (h *TerminalLifecycleHandler) HandleList(c *gin.Context) {
	ptys := h.mgr.List()
	out := make([]gin.H, 0, len(ptys))
	for _, mp := range ptys {
		out = append(out, gin.H{
			"ptyId":      mp.PtyID,
			"sessionId":  mp.SessionID,
			"launcherId": mp.LauncherID,
			"cwd":        mp.Cwd,
			"hostname":   mp.Hostname,
			"createdAt":  mp.CreatedAt,
			"warning":    mp.Warning,
			"clients":    mp.ClientCount(),
		})
	}
	h.SendJSON(c, http.StatusOK, gin.H{"terminals": out})
}

type createTerminalRequest struct {
	SessionID string `json:"sessionId"`
	Cwd       string `json:"cwd"`
	Hostname  string `json:"hostname"`
}

// HandleCreate implements POST /terminals.
func (h *TerminalLifecycleHandler) HandleCreate(c *gin.Context) {
	var req createTerminalRequest
	if err := h.BindJSON(c, &req); err != nil {
		h.SendError(c, http.StatusBadRequest, err)
		return
	}
	hostname := req.Hostname
	if hostname == "" {
		hostname = h.hostname
	}

	mp, _, err := h.mgr.GetOrCreate(req.SessionID, req.Cwd, hostname, false)
	if err != nil {
		h.SendError(c, http.StatusInternalServerError, err)
		return
	}
	h.SendJSON(c, http.StatusOK, gin.H{"ptyId": mp.PtyID, "sessionId": mp.SessionID, "hostname": mp.Hostname})
}

type createLauncherRequest struct {
	Hostname string `json:"hostname"`
}

// HandleCreateLauncher implements POST /terminals/launcher.
func (h *TerminalLifecycleHandler) HandleCreateLauncher(c *gin.Context) {
	var req createLauncherRequest
	_ = h.BindJSON(c, &req)
	hostname := req.Hostname
	if hostname == "" {
		hostname = h.hostname
	}

	mp, launcherID, err := h.mgr.CreateLauncher(hostname)
	if err != nil {
		h.SendError(c, http.StatusInternalServerError, err)
		return
	}
	h.SendJSON(c, http.StatusOK, gin.H{"ptyId": mp.PtyID, "launcherId": launcherID, "hostname": mp.Hostname})
}

// HandleDelete implements DELETE /terminals/{ptyId}.
func (h *TerminalLifecycleHandler) HandleDelete(c *gin.Context) {
	ptyID := c.Param("ptyId")
	h.mgr.Remove(ptyID)
	h.SendJSON(c, http.StatusOK, gin.H{"success": true})
}
