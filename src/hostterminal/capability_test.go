package hostterminal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDisabledCapabilityReportsUnsupported(t *testing.T) {
	c := NewDisabled()

	_, err := c.Focus(context.Background(), "sess-1")
	require.ErrorIs(t, err, ErrUnsupported)

	err = c.Open(context.Background(), "/tmp", []string{"sh"})
	require.ErrorIs(t, err, ErrUnsupported)

	err = c.FocusOrOpen(context.Background(), "sess-1", "/tmp", []string{"sh"})
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestOsascriptQuoteEscapesSpecialChars(t *testing.T) {
	require.Equal(t, `"plain"`, osascriptQuote("plain"))
	require.Equal(t, `"has \"quotes\""`, osascriptQuote(`has "quotes"`))
	require.Equal(t, `"back\\slash"`, osascriptQuote(`back\slash`))
}

func TestShellJoin(t *testing.T) {
	require.Equal(t, "claude --resume abc", shellJoin([]string{"claude", "--resume", "abc"}))
	require.Equal(t, "", shellJoin(nil))
}

func TestTrimTrailingNewline(t *testing.T) {
	require.Equal(t, "found", trimTrailingNewline("found\n"))
	require.Equal(t, "found", trimTrailingNewline("found\r\n"))
	require.Equal(t, "found", trimTrailingNewline("found"))
}
