// Package managedruntime is the common skeleton shared by the two managed
// serverless-runtime drivers (agentrun, fc). §2 describes them as "two
// managed-runtime drivers sharing a common polling skeleton"; this package is
// that skeleton, built on backend/pollskel and backend/vendorhttp. Each
// concrete vendor package (backend/agentrun, backend/fc) supplies only the
// wire shapes and endpoint paths via VendorAdapter.
package managedruntime

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"sandboxrt/internal/backend"
	"sandboxrt/internal/backend/pollskel"
	"sandboxrt/internal/backend/vendorhttp"
)

// RuntimeStatus is the vendor's raw status string plus the endpoint URL and
// path once known.
type RuntimeStatus struct {
	State       string
	EndpointURL string
	Path        string
}

// VendorAdapter supplies the vendor-specific request/response shapes. Each
// of backend/agentrun and backend/fc implements this against its own JSON
// schema; everything else (polling, terminal-state detection, Create/Remove
// orchestration) is shared here.
type VendorAdapter interface {
	// CreateOrUpdate creates or updates the vendor runtime object plus its
	// default endpoint, returning the vendor's opaque handle.
	CreateOrUpdate(ctx context.Context, cli *vendorhttp.Client, req backend.CreateRequest) (handle string, err error)
	// FetchStatus polls the vendor API for handle's current state.
	FetchStatus(ctx context.Context, cli *vendorhttp.Client, handle string) (RuntimeStatus, error)
	// Delete tears down the vendor runtime object.
	Delete(ctx context.Context, cli *vendorhttp.Client, handle string) error
	// IsTerminal reports whether state is one of {ready/active, failed,
	// deleting}, per §4.1.
	IsTerminal(state string) bool
	// IsReady reports whether state specifically means "ready to serve."
	IsReady(state string) bool
}

// Options configures polling cadence; both vendor drivers share these
// defaults unless overridden.
type Options struct {
	MaxAttempts  int
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 60
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	return o
}

// Driver implements backend.Driver by delegating vendor specifics to an
// Adapter and sharing the poll-until-terminal helper across both vendors.
type Driver struct {
	cli     *vendorhttp.Client
	adapter VendorAdapter
	opts    Options
}

// New builds a managed-runtime Driver.
func New(cli *vendorhttp.Client, adapter VendorAdapter, opts Options) *Driver {
	return &Driver{cli: cli, adapter: adapter, opts: opts.withDefaults()}
}

func (d *Driver) Create(ctx context.Context, req backend.CreateRequest) (backend.CreateResult, error) {
	handle, err := d.adapter.CreateOrUpdate(ctx, d.cli, req)
	if err != nil {
		return backend.CreateResult{}, fmt.Errorf("managedruntime: create: %w", err)
	}
	status, err := pollskel.Poll(ctx,
		func(ctx context.Context) (RuntimeStatus, error) { return d.adapter.FetchStatus(ctx, d.cli, handle) },
		func(s RuntimeStatus) bool { return d.adapter.IsTerminal(s.State) },
		d.opts.MaxAttempts, d.opts.PollInterval)
	if err != nil {
		return backend.CreateResult{}, fmt.Errorf("managedruntime: %w", err)
	}
	if !d.adapter.IsReady(status.State) {
		return backend.CreateResult{}, fmt.Errorf("managedruntime: handle %s reached terminal non-ready state %q", handle, status.State)
	}
	host := status.EndpointURL
	if u, perr := url.Parse(status.EndpointURL); perr == nil && u.Host != "" {
		host = u.Host
	}
	return backend.CreateResult{
		Handle:   handle,
		Host:     host,
		Protocol: "https",
		Path:     status.Path,
	}, nil
}

func (d *Driver) Start(ctx context.Context, handle string) error {
	// Managed runtimes start on create; Start only confirms the handle is
	// still known to the vendor.
	_, _, err := d.Inspect(ctx, handle)
	return err
}

func (d *Driver) Stop(ctx context.Context, handle string, _ int) error {
	return nil // vendor runtimes have no separate stop operation; Remove tears down
}

func (d *Driver) Remove(ctx context.Context, handle string, _ bool) error {
	if err := d.adapter.Delete(ctx, d.cli, handle); err != nil {
		return fmt.Errorf("managedruntime: delete %s: %w", handle, err)
	}
	return nil
}

func (d *Driver) Inspect(ctx context.Context, handle string) (backend.Status, backend.Attributes, error) {
	status, err := d.adapter.FetchStatus(ctx, d.cli, handle)
	if err != nil {
		return backend.StatusUnknown, nil, fmt.Errorf("managedruntime: fetch status: %w", err)
	}
	s := backend.StatusUnknown
	switch {
	case d.adapter.IsReady(status.State):
		s = backend.StatusRunning
	case d.adapter.IsTerminal(status.State):
		s = backend.StatusExited
	default:
		s = backend.StatusCreating
	}
	return s, backend.Attributes{"state": status.State, "endpoint": status.EndpointURL}, nil
}
