// Package agentrun is the first of the two managed serverless-runtime
// drivers (§4.1, §9's poll-until-terminal design note). It supplies only the
// vendor wire shapes; all polling/orchestration logic lives in
// backend/managedruntime.
package agentrun

import (
	"context"
	"fmt"

	"sandboxrt/internal/backend"
	"sandboxrt/internal/backend/managedruntime"
	"sandboxrt/internal/backend/vendorhttp"
)

type createRequest struct {
	Name  string            `json:"name"`
	Image string            `json:"image"`
	Env   map[string]string `json:"env"`
}

type createResponse struct {
	RuntimeID string `json:"runtime_id"`
}

type statusResponse struct {
	State       string `json:"state"`
	EndpointURL string `json:"endpoint_url"`
	Path        string `json:"path"`
}

type adapter struct {
	rewrite backend.RewriteTable
}

// NewAdapter builds the AgentRun vendor adapter.
func NewAdapter(rewrite backend.RewriteTable) managedruntime.VendorAdapter {
	return &adapter{rewrite: rewrite}
}

func (a *adapter) CreateOrUpdate(ctx context.Context, cli *vendorhttp.Client, req backend.CreateRequest) (string, error) {
	var resp createResponse
	err := cli.Do(ctx, "PUT", "/runtimes/"+req.Name, createRequest{
		Name:  req.Name,
		Image: a.rewrite.Rewrite(req.Image),
		Env:   req.Env,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("agentrun: create: %w", err)
	}
	if resp.RuntimeID == "" {
		resp.RuntimeID = req.Name
	}
	return resp.RuntimeID, nil
}

func (a *adapter) FetchStatus(ctx context.Context, cli *vendorhttp.Client, handle string) (managedruntime.RuntimeStatus, error) {
	var resp statusResponse
	if err := cli.Do(ctx, "GET", "/runtimes/"+handle, nil, &resp); err != nil {
		return managedruntime.RuntimeStatus{}, fmt.Errorf("agentrun: status: %w", err)
	}
	return managedruntime.RuntimeStatus{State: resp.State, EndpointURL: resp.EndpointURL, Path: resp.Path}, nil
}

func (a *adapter) Delete(ctx context.Context, cli *vendorhttp.Client, handle string) error {
	return cli.Do(ctx, "DELETE", "/runtimes/"+handle, nil, nil)
}

func (a *adapter) IsTerminal(state string) bool {
	switch state {
	case "active", "failed", "deleting":
		return true
	}
	return false
}

func (a *adapter) IsReady(state string) bool { return state == "active" }

// Register installs this driver under "agentrun" in the backend registry.
func Register(cli *vendorhttp.Client, rewrite backend.RewriteTable, opts managedruntime.Options) {
	backend.Register("agentrun", func() (backend.Driver, error) {
		return managedruntime.New(cli, NewAdapter(rewrite), opts), nil
	})
}
