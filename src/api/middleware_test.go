package api

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRedactSecretsRedactsKnownParams(t *testing.T) {
	got := redactSecrets("/sessions?token=abc123&cwd=/tmp")
	require.Contains(t, got, "token=%5BREDACTED%5D")
	require.Contains(t, got, "cwd=%2Ftmp")
}

func TestRedactSecretsLeavesCleanPathAlone(t *testing.T) {
	got := redactSecrets("/sessions?from=10")
	require.Equal(t, "/sessions?from=10", got)
}

func TestRedactSecretsWithoutQueryStringIsUnchanged(t *testing.T) {
	got := redactSecrets("/sessions")
	require.Equal(t, "/sessions", got)
}

func TestRedactQueryPatternsHandlesUnparseableQuery(t *testing.T) {
	got := redactQueryPatterns("/sessions?api_key=xyz;bad")
	require.Contains(t, got, "api_key=[REDACTED]")
}

func TestProcessingTimeMiddlewareSetsServerTimingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(processingTimeMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(200) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/ping", nil))

	require.Contains(t, w.Header().Get("Server-Timing"), "agent-sessiond")
}
