// Package terminal implements the Terminal Multiplexer Bridge: attaching a
// PTY to a detached multiplexer session running the agent CLI, fanning its
// output to WebSocket subscribers with replayable scrollback, and
// reconciling launcher-created placeholder sessions with agent-assigned
// identifiers (spec.md §4.6).
package terminal

import (
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

// ptySession wraps an exec.Cmd started under a PTY (adapted from
// handler/terminal/terminal.go's TerminalSession — generalized to run
// arbitrary commands, since this bridge always runs "<multiplexer> attach"
// or a launcher picker script rather than a bare shell).
type ptySession struct {
	ptmx    *os.File
	cmd     *exec.Cmd
	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
	usePgrp bool
}

// startPty spawns command under a PTY of the given size, in workingDir,
// with extra environment variables overlaid on the process environment.
func startPty(command []string, workingDir string, env map[string]string, cols, rows uint16) (*ptySession, error) {
	if len(command) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	cmd := exec.Command(command[0], command[1:]...)
	if workingDir != "" {
		cmd.Dir = workingDir
	}
	cmd.Env = buildEnv(env)

	usePgrp := runtime.GOOS == "linux"
	if usePgrp {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, err
	}

	return &ptySession{
		ptmx:    ptmx,
		cmd:     cmd,
		closeCh: make(chan struct{}),
		usePgrp: usePgrp,
	}, nil
}

func buildEnv(overrides map[string]string) []string {
	systemEnv := os.Environ()
	isOverridden := make(map[string]bool, len(overrides))
	for k := range overrides {
		isOverridden[k] = true
	}

	final := make([]string, 0, len(systemEnv)+len(overrides)+1)
	for _, kv := range systemEnv {
		idx := -1
		for i, c := range kv {
			if c == '=' {
				idx = i
				break
			}
		}
		if idx <= 0 {
			continue
		}
		if !isOverridden[kv[:idx]] {
			final = append(final, kv)
		}
	}
	for k, v := range overrides {
		final = append(final, k+"="+v)
	}
	final = append(final, "TERM=xterm-256color")
	return final
}

func (t *ptySession) Read(p []byte) (int, error)  { return t.ptmx.Read(p) }
func (t *ptySession) Write(p []byte) (int, error) { return t.ptmx.Write(p) }

func (t *ptySession) Resize(cols, rows uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return io.ErrClosedPipe
	}
	return pty.Setsize(t.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// Close terminates only the PTY attach process (detaching from the
// multiplexer session); the multiplexer session and the agent process
// within it are left running (spec.md §4.6.5).
func (t *ptySession) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.closeCh)

	if t.ptmx != nil {
		_ = t.ptmx.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		pid := t.cmd.Process.Pid
		if t.usePgrp {
			_ = syscall.Kill(-pid, syscall.SIGKILL)
		} else {
			_ = t.cmd.Process.Kill()
		}
		_ = t.cmd.Wait()
	}
	return nil
}

func (t *ptySession) Done() <-chan struct{} { return t.closeCh }

func (t *ptySession) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// ExitInfo reports the attach process's exit state once the process has
// been waited for (by Close, or by ManagedPty's read loop when the PTY
// read fails); before that it reports 0, false.
func (t *ptySession) ExitInfo() (code int, signaled bool) {
	if t.cmd == nil || t.cmd.ProcessState == nil {
		return 0, false
	}
	ws, ok := t.cmd.ProcessState.Sys().(syscall.WaitStatus)
	if !ok {
		return t.cmd.ProcessState.ExitCode(), false
	}
	if ws.Signaled() {
		return 0, true
	}
	return ws.ExitStatus(), false
}
