package terminal

import (
	"context"
	"fmt"
	"os/exec"
	"time"
)

// externalCallTimeout bounds every shell-out to the multiplexer or process
// inspection tools, surfacing as "unavailable" rather than hanging
// (spec.md §5, §7).
const externalCallTimeout = 5 * time.Second

// Binaries names the two external programs the bridge depends on.
type Binaries struct {
	Multiplexer string // e.g. "tmux"
	AgentCLI    string // e.g. "claude"
}

// ResolveBinaries looks up both binaries on PATH. A missing binary is
// reported, not an error: callers check for emptiness and fail the
// specific operation that needs it (spec.md §4.6.7).
func ResolveBinaries(multiplexer, agentCLI string) Binaries {
	if multiplexer == "" {
		multiplexer = "tmux"
	}
	if agentCLI == "" {
		agentCLI = "claude"
	}
	b := Binaries{}
	if p, err := exec.LookPath(multiplexer); err == nil {
		b.Multiplexer = p
	}
	if p, err := exec.LookPath(agentCLI); err == nil {
		b.AgentCLI = p
	}
	return b
}

func runWithTimeout(bin string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), externalCallTimeout)
	defer cancel()
	return exec.CommandContext(ctx, bin, args...).Run()
}

// sessionExists reports whether a named multiplexer session is alive.
func sessionExists(bin, name string) bool {
	return runWithTimeout(bin, "has-session", "-t", name) == nil
}

// createDetachedSession starts a new detached multiplexer session named
// name, in cwd, running command (spec.md §4.6.1 step 3).
func createDetachedSession(bin, name, cwd string, command []string) error {
	args := []string{"new-session", "-d", "-s", name}
	if cwd != "" {
		args = append(args, "-c", cwd)
	}
	args = append(args, command...)
	return runWithTimeout(bin, args...)
}

// renameMultiplexerSession renames a detached session (spec.md §4.6.3
// step 4).
func renameMultiplexerSession(bin, oldName, newName string) error {
	return runWithTimeout(bin, "rename-session", "-t", oldName, newName)
}

func attachCommand(bin, name string) []string {
	return []string{bin, "attach-session", "-t", name}
}

// sessionName returns the multiplexer session name for a session or
// launcher id, per spec.md §4.6.1's naming convention.
func sessionName(kind, id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s-%s", kind, short)
}
