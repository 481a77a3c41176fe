package pollskel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPollReturnsOnTerminalState(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "pending", nil
		}
		return "ready", nil
	}
	isTerminal := func(s string) bool { return s == "ready" }

	result, err := Poll(context.Background(), fetch, isTerminal, 10, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "ready", result)
	require.Equal(t, 3, calls)
}

func TestPollExhaustsAttemptsWithoutTerminalState(t *testing.T) {
	fetch := func(ctx context.Context) (string, error) { return "pending", nil }
	isTerminal := func(s string) bool { return false }

	result, err := Poll(context.Background(), fetch, isTerminal, 3, time.Millisecond)
	require.Error(t, err)
	require.Equal(t, "pending", result)
}

func TestPollPropagatesFetchError(t *testing.T) {
	boom := errors.New("boom")
	fetch := func(ctx context.Context) (string, error) { return "", boom }
	isTerminal := func(s string) bool { return false }

	_, err := Poll(context.Background(), fetch, isTerminal, 5, time.Millisecond)
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
}

func TestPollRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetch := func(ctx context.Context) (string, error) { return "pending", nil }
	isTerminal := func(s string) bool { return false }

	cancel()
	result, err := Poll(ctx, fetch, isTerminal, 5, 10*time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, "pending", result)
}
