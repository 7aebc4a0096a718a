package terminal

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartPtyRunsCommandAndProducesOutput(t *testing.T) {
	ps, err := startPty([]string{"/bin/sh", "-c", "echo hello-pty"}, "", nil, 80, 24)
	require.NoError(t, err)
	defer ps.Close()

	var out bytes.Buffer
	buf := make([]byte, 256)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := ps.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if bytes.Contains(out.Bytes(), []byte("hello-pty")) {
			break
		}
		if err != nil {
			break
		}
	}
	require.Contains(t, out.String(), "hello-pty")
}

func TestPtySessionCloseIsIdempotent(t *testing.T) {
	ps, err := startPty([]string{"/bin/sh", "-c", "sleep 5"}, "", nil, 80, 24)
	require.NoError(t, err)

	require.NoError(t, ps.Close())
	require.NoError(t, ps.Close())
	require.True(t, ps.IsClosed())
}

func TestPtySessionExitInfoAfterNormalExit(t *testing.T) {
	ps, err := startPty([]string{"/bin/sh", "-c", "exit 0"}, "", nil, 80, 24)
	require.NoError(t, err)
	defer ps.Close()

	buf := make([]byte, 64)
	for {
		_, err := ps.Read(buf)
		if err != nil {
			break
		}
	}
	<-time.After(100 * time.Millisecond)
	code, signaled := ps.ExitInfo()
	require.False(t, signaled)
	require.Equal(t, 0, code)
}

func TestBuildEnvAppliesOverridesAndTerm(t *testing.T) {
	env := buildEnv(map[string]string{"FOO": "bar"})
	require.Contains(t, env, "FOO=bar")
	require.Contains(t, env, "TERM=xterm-256color")
}
