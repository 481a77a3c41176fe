// Package backend declares the five-op backend driver contract (§4.1) and
// the startup-resolved driver registry replacing the original's lazy/fallback
// plugin loading (§9 design note).
package backend

import (
	"context"
	"fmt"

	"sandboxrt/internal/model"
)

// Status is the coarse container lifecycle state every driver reports.
type Status string

const (
	StatusCreating Status = "creating"
	StatusRunning  Status = "running"
	StatusExited   Status = "exited"
	StatusUnknown  Status = "unknown"
)

// VolumeMount is one host-path bind mount a driver must wire into the
// created container, with its own read-only/read-write mode — the
// session workspace is mounted read-write, while propagated readonly
// mounts (when a driver binds them directly rather than copying their
// contents) are mounted read-only.
type VolumeMount struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// CreateRequest carries everything a driver needs to create one sandbox.
type CreateRequest struct {
	Image         string
	Name          string
	Ports         []int // requested container ports
	Volumes       []VolumeMount
	Env           map[string]string
	RuntimeConfig map[string]any
}

// CreateResult is the (handle, exposed_ports, host, protocol) triple §4.1
// names. Path is populated by managed-runtime drivers per the explicit-field
// Open Question decision (SPEC_FULL.md §3): never the "443/<path>" overload.
type CreateResult struct {
	Handle      string
	HostPorts   map[int]int // container port -> host port
	Host        string
	Protocol    string
	Path        string
}

// Attributes is the driver's raw inspect() payload, kept opaque to callers
// above the driver boundary.
type Attributes map[string]any

// Driver is the uniform backend contract every execution substrate
// implements (§4.1).
type Driver interface {
	// Create must not return a ready handle until readiness is satisfied,
	// or must be pollable via WaitForReady if it can't synchronously
	// guarantee that.
	Create(ctx context.Context, req CreateRequest) (CreateResult, error)
	Start(ctx context.Context, handle string) error
	// Stop is idempotent: stopping an already-stopped handle succeeds.
	Stop(ctx context.Context, handle string, gracePeriodSeconds int) error
	// Remove must release every port reservation the driver claimed for
	// handle.
	Remove(ctx context.Context, handle string, force bool) error
	Inspect(ctx context.Context, handle string) (Status, Attributes, error)
}

// ReadyWaiter is implemented by drivers that cannot synchronously guarantee
// readiness on Create and must be polled (§4.1: "Drivers that cannot
// guarantee this synchronously must expose a wait_for_ready").
type ReadyWaiter interface {
	WaitForReady(ctx context.Context, handle string, timeoutSeconds int) error
}

// Factory builds a Driver from backend-specific configuration. Registered
// factories are resolved once at startup against the configured
// CONTAINER_DEPLOYMENT name; an unavailable backend fails cmd/manager startup
// (driver registration or Resolve), never first use.
type Factory func() (Driver, error)

var registry = map[string]Factory{}

// Register adds a named driver factory to the registry. Called from each
// driver package's own Register helper, which cmd/manager invokes for the
// configured backend only.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Resolve builds the driver registered under name, or returns an error
// naming the unknown backend.
func Resolve(name string) (Driver, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("backend: %q: %w", name, model.ErrUnknownBackend)
	}
	return factory()
}
