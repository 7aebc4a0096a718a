// Package insights holds thin external collaborators the core never
// depends on directly: AI-generated session summaries and git/PR/CI
// polling (spec.md §1, §6 "thin collaborators"). Every call degrades to
// "unavailable" rather than failing the caller (spec.md §7).
package insights

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// httpCallTimeout bounds the Anthropic API call. It is longer than the 5s
// used for git/gh shell-outs, generous enough for a short completion.
const httpCallTimeout = 15 * time.Second

const defaultModel = "claude-3-5-haiku-20241022"

// SummaryClient generates a one-line session summary from recent
// conversation text, gated by ANTHROPIC_API_KEY (spec.md §6). Adapted
// from lib/morph.go's MorphClient shape (bearer-token JSON client over
// net/http).
type SummaryClient struct {
	apiKey  string
	model   string
	client  *http.Client
	baseURL string
}

const anthropicMessagesURL = "https://api.anthropic.com/v1/messages"

// NewSummaryClient returns a client, or nil if apiKey is empty — callers
// must check for nil and skip summarization rather than erroring.
func NewSummaryClient(apiKey string) *SummaryClient {
	if apiKey == "" {
		return nil
	}
	return &SummaryClient{
		apiKey:  apiKey,
		model:   defaultModel,
		client:  &http.Client{Timeout: httpCallTimeout},
		baseURL: anthropicMessagesURL,
	}
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Summarize asks the model for a short (<=80 char) description of what a
// session is doing, given recent prompt/tool-use text. Returns "" on any
// failure — summaries are cosmetic, never load-bearing.
func (c *SummaryClient) Summarize(ctx context.Context, recentText string) (string, error) {
	if c == nil {
		return "", nil
	}
	return summarizeAgainst(ctx, c, c.baseURL, recentText)
}

// summarizeAgainst performs the call against an explicit endpoint, so
// tests can point it at an httptest server instead of the real API.
func summarizeAgainst(ctx context.Context, c *SummaryClient, endpoint, recentText string) (string, error) {
	prompt := fmt.Sprintf("In under 80 characters, summarize what this coding session is currently doing:\n\n%s", recentText)
	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: 64,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("insights: marshal summary request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, httpCallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("insights: build summary request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("insights: summary request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("insights: read summary response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("insights: summary API status %d: %s", resp.StatusCode, string(body))
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("insights: parse summary response: %w", err)
	}
	if len(parsed.Content) == 0 {
		return "", nil
	}
	return parsed.Content[0].Text, nil
}
