package trainenv

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"sandboxrt/internal/model"
	"sandboxrt/internal/trainenv/actor"
)

// startCatActor launches `cat`, a real subprocess that echoes whatever it
// receives on stdin back to stdout line-for-line, standing in for a real
// actor subprocess in tests that only exercise the Service's bookkeeping
// (index, locking, reaping), not a specific environment's behavior.
func startCatActor(t *testing.T) *actor.Actor {
	t.Helper()
	act, err := actor.Start([]string{"cat"}, nil)
	require.NoError(t, err)
	t.Cleanup(act.Close)
	return act
}

func TestReleaseUnknownInstanceFails(t *testing.T) {
	svc := New(Config{Log: zerolog.Nop()})
	defer svc.Shutdown()

	err := svc.Release("does-not-exist")
	require.Error(t, err)
}

func TestReleaseTwiceFails(t *testing.T) {
	svc := New(Config{Log: zerolog.Nop()})
	defer svc.Shutdown()

	act := startCatActor(t)
	svc.mu.Lock()
	svc.instances["inst-1"] = &instance{
		rec: model.TrainingInstance{InstanceID: "inst-1", LastAccessAt: time.Now().UTC()},
		act: act,
	}
	svc.mu.Unlock()

	require.NoError(t, svc.Release("inst-1"))
	require.Error(t, svc.Release("inst-1"))
}

func TestStepUnknownInstanceFails(t *testing.T) {
	svc := New(Config{Log: zerolog.Nop()})
	defer svc.Shutdown()

	_, err := svc.Step("does-not-exist", nil, nil)
	require.Error(t, err)
}

func TestReapIdleRemovesStaleInstances(t *testing.T) {
	svc := New(Config{
		Log:             zerolog.Nop(),
		CleanupInterval: 30 * time.Millisecond,
		MaxIdleTime:     10 * time.Millisecond,
	})
	defer svc.Shutdown()

	act, err := actor.Start([]string{"cat"}, nil)
	require.NoError(t, err)

	svc.mu.Lock()
	svc.instances["inst-1"] = &instance{
		rec: model.TrainingInstance{InstanceID: "inst-1", LastAccessAt: time.Now().UTC().Add(-time.Hour)},
		act: act,
	}
	svc.mu.Unlock()

	require.Eventually(t, func() bool {
		svc.mu.Lock()
		defer svc.mu.Unlock()
		_, ok := svc.instances["inst-1"]
		return !ok
	}, 2*time.Second, 20*time.Millisecond)
}
