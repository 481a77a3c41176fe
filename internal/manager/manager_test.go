package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"sandboxrt/internal/backend"
)

type fakeDriver struct {
	nextHandle int
	created    []backend.CreateRequest
	removed    []string
}

func (f *fakeDriver) Create(_ context.Context, req backend.CreateRequest) (backend.CreateResult, error) {
	f.nextHandle++
	f.created = append(f.created, req)
	return backend.CreateResult{
		Handle:    req.Name,
		HostPorts: map[int]int{8080: 30000 + f.nextHandle},
		Host:      "127.0.0.1",
		Protocol:  "http",
	}, nil
}
func (f *fakeDriver) Start(_ context.Context, _ string) error { return nil }
func (f *fakeDriver) Stop(_ context.Context, _ string, _ int) error { return nil }
func (f *fakeDriver) Remove(_ context.Context, handle string, _ bool) error {
	f.removed = append(f.removed, handle)
	return nil
}
func (f *fakeDriver) Inspect(_ context.Context, _ string) (backend.Status, backend.Attributes, error) {
	return backend.StatusRunning, nil, nil
}

type failingDriver struct{}

func (failingDriver) Create(_ context.Context, _ backend.CreateRequest) (backend.CreateResult, error) {
	return backend.CreateResult{}, errors.New("image pull failed")
}
func (failingDriver) Start(_ context.Context, _ string) error                      { return nil }
func (failingDriver) Stop(_ context.Context, _ string, _ int) error                 { return nil }
func (failingDriver) Remove(_ context.Context, _ string, _ bool) error              { return nil }
func (failingDriver) Inspect(_ context.Context, _ string) (backend.Status, backend.Attributes, error) {
	return backend.StatusUnknown, nil, nil
}

func newTestManager(d backend.Driver) *Manager {
	return New(Config{
		Driver:          d,
		Images:          StaticImages{"base": "sandboxrt/base:latest"},
		PoolTargetSize:  1,
		ContainerPrefix: "test",
		Backend:         "docker",
		Log:             zerolog.Nop(),
	})
}

func TestConnectIdempotentForSameSession(t *testing.T) {
	mgr := newTestManager(&fakeDriver{})
	ctx := context.Background()

	first, err := mgr.Connect(ctx, "base", "s1")
	require.NoError(t, err)
	second, err := mgr.Connect(ctx, "base", "s1")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestConnectFromPoolReKeysSession(t *testing.T) {
	driver := &fakeDriver{}
	mgr := newTestManager(driver)
	ctx := context.Background()

	pooled, err := mgr.CreateForPool(ctx, "base")
	require.NoError(t, err)
	mgr.AddToPool("base", pooled)
	require.Equal(t, 1, mgr.PoolSize("base"))

	c, err := mgr.Connect(ctx, "base", "s1")
	require.NoError(t, err)
	require.Equal(t, "s1", c.SessionID)
	require.Equal(t, 0, mgr.PoolSize("base"), "pool entry should have been popped")
}

func TestReleaseToPoolRespectsSaturation(t *testing.T) {
	driver := &fakeDriver{}
	mgr := newTestManager(driver)
	ctx := context.Background()

	_, err := mgr.Connect(ctx, "base", "s1")
	require.NoError(t, err)

	// Saturate the pool first (target size 1).
	extra, err := mgr.CreateForPool(ctx, "base")
	require.NoError(t, err)
	mgr.AddToPool("base", extra)
	require.Equal(t, 1, mgr.PoolSize("base"))

	require.NoError(t, mgr.Release(ctx, "s1", true))
	// Pool already saturated, so the released container must be destroyed,
	// not leaked (invariant 5).
	require.Equal(t, 1, mgr.PoolSize("base"))
	require.Contains(t, driver.removed, "test-base-"+c1ContainerSuffix(driver))
}

// c1ContainerSuffix is a small helper resolving the name the fake driver
// assigned to the first created container, since names include a random
// short id.
func c1ContainerSuffix(driver *fakeDriver) string {
	if len(driver.created) == 0 {
		return ""
	}
	name := driver.created[0].Name
	const prefix = "test-base-"
	if len(name) > len(prefix) {
		return name[len(prefix):]
	}
	return ""
}

func TestConnectCreateFailureLeavesNoState(t *testing.T) {
	mgr := newTestManager(failingDriver{})
	ctx := context.Background()

	_, err := mgr.Connect(ctx, "base", "s1")
	require.Error(t, err)
	_, ok := mgr.Get("s1")
	require.False(t, ok, "a failed create must not leave a dangling active record")
}

func TestGetReturnsSameRecordAsConnect(t *testing.T) {
	mgr := newTestManager(&fakeDriver{})
	ctx := context.Background()

	created, err := mgr.Connect(ctx, "base", "s1")
	require.NoError(t, err)
	got, ok := mgr.Get("s1")
	require.True(t, ok)
	require.Equal(t, created, got)
}
