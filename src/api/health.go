package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/claude-code-ui/agent-sessiond/src/registry"
)

var startTime = time.Now()

// HealthHandler serves GET /health (adapted from handler/system.go's
// HandleHealth, generalized to report active session count rather than
// sandbox restart bookkeeping).
type HealthHandler struct {
	*BaseHandler
	reg *registry.Registry
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(reg *registry.Registry) *HealthHandler {
	return &HealthHandler{BaseHandler: NewBaseHandler(), reg: reg}
}

type healthResponse struct {
	Status        string  `json:"status"`
	GoVersion     string  `json:"goVersion"`
	OS            string  `json:"os"`
	Arch          string  `json:"arch"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	StartedAt     string  `json:"startedAt"`
	SessionCount  int     `json:"sessionCount"`
}

// HandleHealth implements GET /health.
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	count := 0
	if h.reg != nil {
		count = len(h.reg.Snapshot())
	}
	h.SendJSON(c, http.StatusOK, healthResponse{
		Status:        "ok",
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		UptimeSeconds: time.Since(startTime).Seconds(),
		StartedAt:     startTime.Format(time.RFC3339),
		SessionCount:  count,
	})
}
