// Package config resolves daemon configuration from the environment once,
// at the composition root, so no package below it reaches for os.Getenv
// directly (Design Notes §9: no singleton getters, explicit injection).
package config

import (
	"os"
	"runtime"
	"strconv"
	"time"
)

// Terminal names the host-terminal capability to use for focus/open actions.
type Terminal string

const (
	TerminalITerm2  Terminal = "iterm2"
	TerminalDisable Terminal = "none"
)

// Config holds every environment-derived setting the daemon needs.
// Constructed once in main and passed down explicitly.
type Config struct {
	// StreamPort holds PORT (default 4450). The daemon does not listen on it:
	// the State Publisher's /sessions endpoint is served on APIPort.
	StreamPort int
	// APIPort serves the external-action HTTP facade and the terminal WebSocket.
	APIPort int
	// MaxAge filters sessions older than this out of publish.
	MaxAge time.Duration
	// AnthropicAPIKey gates the optional AI summary collaborator. Empty disables it.
	AnthropicAPIKey string
	// NotificationsEnabled gates desktop notification plumbing.
	NotificationsEnabled bool
	// Terminal selects the host-terminal capability.
	Terminal Terminal
	// Hostname overrides the local host label used to tag sessions/PTYs.
	Hostname string
	// IdleTimeout is the Status Deriver's idle threshold (spec.md §4.3, default 20m).
	IdleTimeout time.Duration
	// StateDir is the root under which publisher streams and mounts are persisted.
	StateDir string
	// Clear removes StateDir at startup when the --clear flag is passed.
	Clear bool
	// DisableRequestLogging silences the per-request access log.
	DisableRequestLogging bool
	// EnableProcessingTiming adds a Server-Timing response header to every
	// API request, for browser DevTools latency inspection.
	EnableProcessingTiming bool
}

// Load resolves Config from the process environment. It never fails: every
// variable has a documented default, matching the teacher's tolerant
// godotenv.Load() pattern in main.go (a missing .env is a warning, not fatal).
func Load() Config {
	home, _ := os.UserHomeDir()
	stateDir := home + "/.claude-code-ui"
	if v := os.Getenv("CLAUDE_CODE_UI_STATE_DIR"); v != "" {
		stateDir = v
	}

	cfg := Config{
		StreamPort:             envInt("PORT", 4450),
		APIPort:                envInt("API_PORT", 4451),
		MaxAge:                 time.Duration(envInt("MAX_AGE_HOURS", 24)) * time.Hour,
		AnthropicAPIKey:        os.Getenv("ANTHROPIC_API_KEY"),
		NotificationsEnabled:   os.Getenv("NOTIFICATIONS_ENABLED") == "true" || os.Getenv("NOTIFICATIONS_ENABLED") == "1",
		Terminal:               resolveTerminal(),
		Hostname:               resolveHostname(),
		IdleTimeout:            time.Duration(envInt("IDLE_TIMEOUT_MINUTES", 20)) * time.Minute,
		StateDir:               stateDir,
		DisableRequestLogging:  os.Getenv("DISABLE_REQUEST_LOGGING") == "true" || os.Getenv("DISABLE_REQUEST_LOGGING") == "1",
		EnableProcessingTiming: os.Getenv("ENABLE_PROCESSING_TIMING") == "true" || os.Getenv("ENABLE_PROCESSING_TIMING") == "1",
	}
	return cfg
}

func resolveTerminal() Terminal {
	v := os.Getenv("TERMINAL")
	switch Terminal(v) {
	case TerminalITerm2, TerminalDisable:
		return Terminal(v)
	}
	if runtime.GOOS == "darwin" {
		return TerminalITerm2
	}
	return TerminalDisable
}

func resolveHostname() string {
	if v := os.Getenv("HOSTNAME"); v != "" {
		return v
	}
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
