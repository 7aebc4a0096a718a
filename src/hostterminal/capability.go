// Package hostterminal isolates every host-OS terminal-app integration
// behind a small interface, so the api package never shells out directly
// (spec.md §6 FocusHandler, Design Notes §9).
package hostterminal

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrUnsupported is returned by a disabled capability for every action.
var ErrUnsupported = errors.New("hostterminal: not supported on this host")

// callTimeout bounds every osascript shell-out, matching the daemon-wide
// 5s external-call convention (spec.md §5, §7).
const callTimeout = 5 * time.Second

// Capability focuses or opens a terminal window running a given session
// or directory. Exactly one variant is wired at startup based on
// config.Terminal (Design Notes §9).
type Capability interface {
	// Focus brings an existing window for sessionID to the foreground,
	// reporting false if none is found.
	Focus(ctx context.Context, sessionID string) (bool, error)
	// Open launches a new terminal window in dir, running command.
	Open(ctx context.Context, dir string, command []string) error
	// FocusOrOpen focuses sessionID's window if one exists, else opens one.
	FocusOrOpen(ctx context.Context, sessionID, dir string, command []string) error
}

// disabled is the no-op Capability used on platforms without terminal
// integration (spec.md §6: never surfaced as a hard failure, just
// "unavailable").
type disabled struct{}

// NewDisabled returns a Capability whose every method reports unsupported.
func NewDisabled() Capability { return disabled{} }

func (disabled) Focus(context.Context, string) (bool, error) { return false, ErrUnsupported }
func (disabled) Open(context.Context, string, []string) error { return ErrUnsupported }
func (disabled) FocusOrOpen(context.Context, string, string, []string) error {
	return ErrUnsupported
}

// macOSiTerm drives iTerm2 via AppleScript, isolating every osascript
// detail behind this file. Focus scans iTerm2's window list for a session
// whose name contains the sessionID; Open does not set a session name, so
// Focus matches only on the name iTerm2 itself reports for each session.
type macOSiTerm struct{}

// NewMacOSiTerm returns the iTerm2-backed Capability.
func NewMacOSiTerm() Capability { return macOSiTerm{} }

func (macOSiTerm) Focus(ctx context.Context, sessionID string) (bool, error) {
	script := fmt.Sprintf(`
tell application "iTerm2"
	repeat with w in windows
		repeat with t in tabs of w
			repeat with s in sessions of t
				if name of s contains %q then
					select w
					select t
					select s
					return "found"
				end if
			end repeat
		end repeat
	end repeat
end tell
return "missing"
`, sessionID)

	out, err := runOsascript(ctx, script)
	if err != nil {
		return false, err
	}
	return out == "found", nil
}

func (macOSiTerm) Open(ctx context.Context, dir string, command []string) error {
	cmdLine := shellJoin(command)
	script := fmt.Sprintf(`
tell application "iTerm2"
	activate
	set newWindow to (create window with default profile)
	tell current session of newWindow
		write text "cd %s && %s"
	end tell
end tell
`, osascriptQuote(dir), cmdLine)

	_, err := runOsascript(ctx, script)
	return err
}

func (c macOSiTerm) FocusOrOpen(ctx context.Context, sessionID, dir string, command []string) error {
	found, err := c.Focus(ctx, sessionID)
	if err != nil {
		return err
	}
	if found {
		return nil
	}
	return c.Open(ctx, dir, command)
}

func runOsascript(ctx context.Context, script string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "osascript", "-e", script).Output()
	if err != nil {
		return "", fmt.Errorf("hostterminal: osascript: %w", err)
	}
	return trimTrailingNewline(string(out)), nil
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func osascriptQuote(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	out = append(out, '"')
	return string(out)
}

func shellJoin(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}
