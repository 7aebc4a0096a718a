package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/claude-code-ui/agent-sessiond/src/entry"
	"github.com/claude-code-ui/agent-sessiond/src/insights"
	"github.com/claude-code-ui/agent-sessiond/src/registry"
)

// recentTextLines bounds how much trailing conversation text gets sent to
// the summary model per call.
const recentTextLines = 12

// InsightsHandler serves the summary/PR/CI facade (SPEC_FULL.md's
// "thin collaborators" surface): it calls into src/insights, which already
// degrades to "unavailable" on any external-tool failure, and never fails
// the request because of that degradation (spec.md §7).
type InsightsHandler struct {
	*BaseHandler
	reg     *registry.Registry
	summary *insights.SummaryClient
	log     *logrus.Entry
}

// NewInsightsHandler constructs an InsightsHandler. summary may be nil
// when ANTHROPIC_API_KEY is unset, in which case the summary field is
// simply omitted from the response.
func NewInsightsHandler(reg *registry.Registry, summary *insights.SummaryClient, log *logrus.Entry) *InsightsHandler {
	return &InsightsHandler{BaseHandler: NewBaseHandler(), reg: reg, summary: summary, log: log}
}

type insightsResponse struct {
	SessionID string            `json:"sessionId"`
	Branch    string            `json:"branch,omitempty"`
	PR        insights.PRStatus `json:"pr"`
	Summary   string            `json:"summary,omitempty"`
}

// HandleGet implements GET /sessions/:id/insights.
func (h *InsightsHandler) HandleGet(c *gin.Context) {
	id := c.Param("id")
	session, ok := h.reg.Get(id)
	if !ok {
		h.SendError(c, http.StatusNotFound, errors.New("session not found"))
		return
	}

	ctx := c.Request.Context()
	resp := insightsResponse{
		SessionID: id,
		Branch:    insights.CurrentBranch(ctx, session.Cwd),
		PR:        insights.PRStatusFor(ctx, session.Cwd),
	}

	if h.summary != nil {
		summary, err := h.summary.Summarize(ctx, recentText(session.Entries))
		if err != nil {
			h.log.WithError(err).Warn("api: session summary unavailable")
		} else {
			resp.Summary = summary
		}
	}

	h.SendJSON(c, http.StatusOK, resp)
}

// recentText joins the plain text of the last recentTextLines USER_PROMPT/
// ASSISTANT_STREAMING entries, newest last, for the summarizer prompt.
func recentText(entries []entry.RawEntry) string {
	var lines []string
	for i := len(entries) - 1; i >= 0 && len(lines) < recentTextLines; i-- {
		e := entries[i]
		if e.Text == "" {
			continue
		}
		if e.Shape != entry.ShapeUserPrompt && e.Shape != entry.ShapeAssistantStreaming {
			continue
		}
		lines = append([]string{e.Text}, lines...)
	}
	return strings.Join(lines, "\n")
}
