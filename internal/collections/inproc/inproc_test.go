package inproc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetAddReportsNewMembership(t *testing.T) {
	ctx := context.Background()
	s := NewSet()

	added, err := s.Add(ctx, "a")
	require.NoError(t, err)
	require.True(t, added)

	added, err = s.Add(ctx, "a")
	require.NoError(t, err)
	require.False(t, added, "re-adding an existing member must report false")
}

func TestQueueFIFOOrder(t *testing.T) {
	ctx := context.Background()
	q := NewQueue()

	require.NoError(t, q.Push(ctx, "one"))
	require.NoError(t, q.Push(ctx, "two"))

	length, err := q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, length)

	value, ok, err := q.Pop(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "one", value)

	value, ok, err = q.Pop(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "two", value)

	_, ok, err = q.Pop(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKVSetGetDelete(t *testing.T) {
	ctx := context.Background()
	kv := NewKV()

	require.NoError(t, kv.Set(ctx, "k", "v"))

	value, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", value)

	require.NoError(t, kv.Delete(ctx, "k"))
	_, ok, err = kv.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}
