package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/claude-code-ui/agent-sessiond/src/hostterminal"
	"github.com/claude-code-ui/agent-sessiond/src/insights"
	"github.com/claude-code-ui/agent-sessiond/src/mcpserver"
	"github.com/claude-code-ui/agent-sessiond/src/mount"
	"github.com/claude-code-ui/agent-sessiond/src/publisher"
	"github.com/claude-code-ui/agent-sessiond/src/registry"
	"github.com/claude-code-ui/agent-sessiond/src/terminal"
)

// Deps collects every collaborator SetupRouter wires into handlers
// (Design Notes §9: explicit dependency injection, no package-level
// singletons).
type Deps struct {
	Registry               *registry.Registry
	Publisher              *publisher.Publisher
	Terminal               *terminal.Manager
	Machines               *mount.Store
	HostTerm               hostterminal.Capability
	AgentCLIBin            string
	Hostname               string
	AnthropicAPIKey        string
	Log                    *logrus.Entry
	DisableRequestLogging  bool
	EnableProcessingTiming bool
}

// SetupRouter wires the whole External-action HTTP facade (spec.md §6)
// plus the State Publisher's /sessions stream and the MCP facade, one
// handler struct per concern with a single assembly point (adapted from
// api/router.go's SetupRouter).
func SetupRouter(d Deps) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(noCacheMiddleware())
	if d.EnableProcessingTiming {
		r.Use(processingTimeMiddleware())
	}
	if !d.DisableRequestLogging {
		r.Use(logrusMiddleware(d.Log))
	}

	head := headHandler()

	focus := NewFocusHandler(d.HostTerm, d.AgentCLIBin, d.Registry, d.Log)
	r.POST("/focus-iterm", focus.HandleFocusITerm)
	r.POST("/open-session", focus.HandleOpenSession)
	r.POST("/focus-or-open", focus.HandleFocusOrOpen)

	machines := NewMachineHandler(d.Machines, d.Log)
	r.GET("/machines", machines.HandleList)
	r.HEAD("/machines", head)
	r.POST("/machines", machines.HandleAdd)
	r.DELETE("/machines/:name", machines.HandleRemove)
	r.POST("/machines/:name/mount", machines.HandleMount)
	r.POST("/machines/:name/unmount", machines.HandleUnmount)

	lifecycle := NewTerminalLifecycleHandler(d.Terminal, d.Hostname, d.Log)
	r.GET("/terminals", lifecycle.HandleList)
	r.HEAD("/terminals", head)
	r.POST("/terminals", lifecycle.HandleCreate)
	r.POST("/terminals/launcher", lifecycle.HandleCreateLauncher)
	r.DELETE("/terminals/:ptyId", lifecycle.HandleDelete)

	ws := NewTerminalWSHandler(d.Terminal, d.Log)
	r.GET("/terminal", ws.Handle)

	if d.Publisher != nil {
		r.GET("/sessions", d.Publisher.StreamHandler(d.Log))
		r.GET("/sessions/ws", d.Publisher.WebSocketHandler(d.Log))
	}

	if d.Registry != nil {
		ins := NewInsightsHandler(d.Registry, insights.NewSummaryClient(d.AnthropicAPIKey), d.Log)
		r.GET("/sessions/:id/insights", ins.HandleGet)
	}

	if d.Registry != nil {
		if _, err := mcpserver.NewServer(r, d.Registry, d.Log); err != nil {
			return nil, err
		}
	}

	health := NewHealthHandler(d.Registry)
	r.GET("/health", health.HandleHealth)
	r.HEAD("/health", head)

	r.GET("/", func(c *gin.Context) { c.JSON(200, gin.H{"service": "agent-sessiond"}) })
	r.HEAD("/", head)

	return r, nil
}
