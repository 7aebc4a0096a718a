package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/claude-code-ui/agent-sessiond/src/hostterminal"
	"github.com/claude-code-ui/agent-sessiond/src/registry"
)

// FocusHandler serves /focus-iterm, /open-session, /focus-or-open,
// delegating entirely to a hostterminal.Capability (spec.md §6) — this
// package never imports os/exec for terminal-app control.
type FocusHandler struct {
	*BaseHandler
	cap      hostterminal.Capability
	agentCLI string
	reg      *registry.Registry
	log      *logrus.Entry
}

// NewFocusHandler constructs a FocusHandler.
func NewFocusHandler(cap hostterminal.Capability, agentCLI string, reg *registry.Registry, log *logrus.Entry) *FocusHandler {
	return &FocusHandler{BaseHandler: NewBaseHandler(), cap: cap, agentCLI: agentCLI, reg: reg, log: log}
}

type focusITermRequest struct {
	SearchTerm string `json:"searchTerm"`
}

// HandleFocusITerm implements POST /focus-iterm.
func (h *FocusHandler) HandleFocusITerm(c *gin.Context) {
	var req focusITermRequest
	_ = h.BindJSON(c, &req)

	found, err := h.cap.Focus(c.Request.Context(), req.SearchTerm)
	if err != nil {
		h.SendJSON(c, http.StatusOK, gin.H{"success": false})
		return
	}
	h.SendJSON(c, http.StatusOK, gin.H{"success": found})
}

type openSessionRequest struct {
	Cwd       string `json:"cwd"`
	SessionID string `json:"sessionId"`
}

// HandleOpenSession implements POST /open-session.
func (h *FocusHandler) HandleOpenSession(c *gin.Context) {
	var req openSessionRequest
	if err := h.BindJSON(c, &req); err != nil {
		h.SendError(c, http.StatusBadRequest, err)
		return
	}

	err := h.cap.Open(c.Request.Context(), req.Cwd, []string{h.agentCLI, "--resume", req.SessionID})
	h.SendJSON(c, http.StatusOK, gin.H{"success": err == nil})
}

type focusOrOpenRequest struct {
	Cwd             string `json:"cwd"`
	SessionID       string `json:"sessionId"`
	Status          string `json:"status"`
	LastAgentMessage string `json:"lastAgentMessage"`
}

// HandleFocusOrOpen implements POST /focus-or-open.
func (h *FocusHandler) HandleFocusOrOpen(c *gin.Context) {
	var req focusOrOpenRequest
	if err := h.BindJSON(c, &req); err != nil {
		h.SendError(c, http.StatusBadRequest, err)
		return
	}

	found, err := h.cap.Focus(c.Request.Context(), req.SessionID)
	if err == nil && found {
		h.SendJSON(c, http.StatusOK, gin.H{"action": "focused"})
		return
	}

	openErr := h.cap.Open(c.Request.Context(), req.Cwd, []string{h.agentCLI, "--resume", req.SessionID})
	if openErr != nil {
		h.log.WithError(openErr).Warn("api: focus-or-open failed to open a new window")
		h.SendJSON(c, http.StatusOK, gin.H{"action": "failed"})
		return
	}
	h.SendJSON(c, http.StatusOK, gin.H{"action": "opened"})
}
