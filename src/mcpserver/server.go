// Package mcpserver adapts the teacher's mcp.NewServer/registerTools
// wiring (src/mcp/server.go) into a read-only facade over the Session
// Registry: two tools, list_sessions and get_session, mounted at /mcp
// exactly as the teacher mounts its own MCP server (spec.md §6).
package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/claude-code-ui/agent-sessiond/src/registry"
)

// SnapshotSource is the read-only view into the Session Registry the
// facade's tools query. Satisfied by *registry.Registry.
type SnapshotSource interface {
	Snapshot() []registry.Session
	Get(sessionID string) (registry.Session, bool)
}

// Server wraps the MCP SDK server, exposing it over Gin at /mcp.
type Server struct {
	mcpServer *mcp.Server
	reg       SnapshotSource
	log       *logrus.Entry
}

// NewServer builds the facade and mounts it on engine.
func NewServer(engine *gin.Engine, reg SnapshotSource, log *logrus.Entry) (*Server, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{
		Name:    "agent-sessiond",
		Version: "1.0.0",
	}, nil)

	s := &Server{mcpServer: mcpSrv, reg: reg, log: log}
	s.registerTools()
	s.mountHTTP(engine)
	return s, nil
}

func (s *Server) mountHTTP(engine *gin.Engine) {
	handler := mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	engine.Any("/mcp/*path", gin.WrapH(http.StripPrefix("/mcp", handler)))
	engine.Any("/mcp", gin.WrapH(handler))
	s.log.Info("mcpserver: mounted at /mcp")
}

// ListSessionsInput takes no parameters.
type ListSessionsInput struct{}

// ListSessionsOutput mirrors the State Publisher's wire view, one entry
// per currently-known session.
type ListSessionsOutput struct {
	Sessions []SessionSummary `json:"sessions"`
}

// SessionSummary is the read-only projection a model-facing tool call
// returns — deliberately excludes the raw entry log, same rationale as
// publisher.SessionView.
type SessionSummary struct {
	SessionID      string `json:"sessionId"`
	Hostname       string `json:"hostname"`
	Cwd            string `json:"cwd"`
	GitBranch      string `json:"gitBranch,omitempty"`
	Status         string `json:"status"`
	MessageCount   int    `json:"messageCount"`
	OriginalPrompt string `json:"originalPrompt,omitempty"`
	Goal           string `json:"goal,omitempty"`
	Summary        string `json:"summary,omitempty"`
}

// GetSessionInput identifies a single session to fetch.
type GetSessionInput struct {
	SessionID string `json:"sessionId" jsonschema:"The session id to fetch"`
}

// GetSessionOutput wraps a single session, or reports it missing.
type GetSessionOutput struct {
	Session *SessionSummary `json:"session,omitempty"`
	Found   bool            `json:"found"`
}

func toSummary(s registry.Session) SessionSummary {
	return SessionSummary{
		SessionID:      s.SessionID,
		Hostname:       s.Hostname,
		Cwd:            s.Cwd,
		GitBranch:      s.GitBranch,
		Status:         string(s.Status),
		MessageCount:   s.MessageCount,
		OriginalPrompt: s.OriginalPrompt,
		Goal:           s.Goal,
		Summary:        s.Summary,
	}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List every currently tracked coding-agent session and its live status",
	}, logToolCall(s.log, "list_sessions", func(ctx context.Context, req *mcp.CallToolRequest, input ListSessionsInput) (*mcp.CallToolResult, ListSessionsOutput, error) {
		snapshot := s.reg.Snapshot()
		out := make([]SessionSummary, 0, len(snapshot))
		for _, sess := range snapshot {
			out = append(out, toSummary(sess))
		}
		return nil, ListSessionsOutput{Sessions: out}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_session",
		Description: "Fetch a single session's current status by id",
	}, logToolCall(s.log, "get_session", func(ctx context.Context, req *mcp.CallToolRequest, input GetSessionInput) (*mcp.CallToolResult, GetSessionOutput, error) {
		sess, ok := s.reg.Get(input.SessionID)
		if !ok {
			return nil, GetSessionOutput{Found: false}, nil
		}
		summary := toSummary(sess)
		return nil, GetSessionOutput{Session: &summary, Found: true}, nil
	}))
}

// logToolCall wraps a tool handler with timing/error logging (adapted
// from mcp/server.go's LogToolCall).
func logToolCall[T any, R any](log *logrus.Entry, name string, handler func(ctx context.Context, req *mcp.CallToolRequest, args T) (*mcp.CallToolResult, R, error)) func(context.Context, *mcp.CallToolRequest, T) (*mcp.CallToolResult, R, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args T) (*mcp.CallToolResult, R, error) {
		start := time.Now()
		result, output, err := handler(ctx, req, args)
		entry := log.WithField("tool", name).WithField("duration", time.Since(start))
		if err != nil {
			entry.WithError(err).Error("mcpserver: tool call failed")
			if err.Error() == "" {
				err = fmt.Errorf("tool %s failed with unknown error", name)
			}
		} else {
			entry.Debug("mcpserver: tool call completed")
		}
		return result, output, err
	}
}
