package port

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"sandboxrt/internal/collections/inproc"
	"sandboxrt/internal/model"
)

func TestArbiterAllocateReleaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	set := inproc.NewSet()
	arb := New(20000, 20010, set)

	ports, err := arb.Allocate(ctx, 3)
	require.NoError(t, err)
	require.Len(t, ports, 3)

	for _, p := range ports {
		ok, err := set.Contains(ctx, strconv.Itoa(p))
		require.NoError(t, err)
		require.True(t, ok, "port %d should be claimed in the set", p)
	}

	arb.Release(ctx, ports)
	for _, p := range ports {
		ok, err := set.Contains(ctx, strconv.Itoa(p))
		require.NoError(t, err)
		require.False(t, ok, "port %d should be released from the set", p)
	}
}

func TestArbiterNotEnoughPortsReleasesClaims(t *testing.T) {
	ctx := context.Background()
	set := inproc.NewSet()
	// Range only has 2 ports available; ask for 5.
	arb := New(21000, 21002, set)

	_, err := arb.Allocate(ctx, 5)
	require.ErrorIs(t, err, model.ErrNotEnoughPorts)

	members, err := set.Members(ctx)
	require.NoError(t, err)
	require.Empty(t, members, "a failed allocation must not leak port reservations")
}
