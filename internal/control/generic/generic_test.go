package generic

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"sandboxrt/internal/model"
)

func TestRunShellCommandCapturesStdoutStderrAndReturncode(t *testing.T) {
	r := New(t.TempDir(), nil, zerolog.Nop())

	result, err := r.RunShellCommand(context.Background(), "echo out; echo err 1>&2; exit 0")
	require.NoError(t, err)
	require.Len(t, result.Content, 3)
	require.Equal(t, "out\n", result.Content[0].Text)
	require.Equal(t, "err\n", result.Content[1].Text)
	require.Equal(t, "0", result.Content[2].Text)
	require.True(t, result.IsError, "non-empty stderr marks the result as an error regardless of exit code")
}

func TestRunShellCommandNonZeroExitWithEmptyStderr(t *testing.T) {
	r := New(t.TempDir(), nil, zerolog.Nop())

	result, err := r.RunShellCommand(context.Background(), "exit 7")
	require.NoError(t, err)
	require.Equal(t, "7", result.Content[2].Text)
	require.False(t, result.IsError)
}

func TestRunShellCommandEmptyCommandFails(t *testing.T) {
	r := New(t.TempDir(), nil, zerolog.Nop())

	_, err := r.RunShellCommand(context.Background(), "   ")
	require.ErrorIs(t, err, model.ErrEmptyCommand)
}

func TestRunIPythonCellPersistsStateAcrossCalls(t *testing.T) {
	r := New(t.TempDir(), []string{"python3"}, zerolog.Nop())

	_, err := r.RunIPythonCell(context.Background(), "x = 41")
	require.NoError(t, err)

	result, err := r.RunIPythonCell(context.Background(), "print(x + 1)")
	require.NoError(t, err)
	require.Equal(t, "42\n", result.Content[0].Text)
	require.False(t, result.IsError)
}

func TestRunIPythonCellEmptyCodeFails(t *testing.T) {
	r := New(t.TempDir(), []string{"python3"}, zerolog.Nop())

	_, err := r.RunIPythonCell(context.Background(), "")
	require.ErrorIs(t, err, model.ErrEmptyCode)
}
