// Package fc is the second managed serverless-runtime driver (§4.1), wired
// on the same backend/managedruntime skeleton as backend/agentrun but
// against a distinct vendor wire shape: the driver supplies only its wire
// types, endpoint paths and one FetchStatus function, and the shared
// skeleton does the polling.
package fc

import (
	"context"
	"fmt"

	"sandboxrt/internal/backend"
	"sandboxrt/internal/backend/managedruntime"
	"sandboxrt/internal/backend/vendorhttp"
)

type functionSpec struct {
	FunctionName string            `json:"functionName"`
	Image        string            `json:"image"`
	EnvVars      map[string]string `json:"environmentVariables"`
}

type triggerResponse struct {
	FunctionID string `json:"functionId"`
}

type functionStatus struct {
	Status   string `json:"status"` // "Pending" | "Active" | "Failed" | "Deleting"
	URLInternet string `json:"urlInternet"`
	Path     string `json:"path"`
}

type adapter struct {
	rewrite backend.RewriteTable
}

// NewAdapter builds the FC vendor adapter.
func NewAdapter(rewrite backend.RewriteTable) managedruntime.VendorAdapter {
	return &adapter{rewrite: rewrite}
}

func (a *adapter) CreateOrUpdate(ctx context.Context, cli *vendorhttp.Client, req backend.CreateRequest) (string, error) {
	var resp triggerResponse
	err := cli.Do(ctx, "POST", "/functions", functionSpec{
		FunctionName: req.Name,
		Image:        a.rewrite.Rewrite(req.Image),
		EnvVars:      req.Env,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("fc: create: %w", err)
	}
	if resp.FunctionID == "" {
		resp.FunctionID = req.Name
	}
	return resp.FunctionID, nil
}

func (a *adapter) FetchStatus(ctx context.Context, cli *vendorhttp.Client, handle string) (managedruntime.RuntimeStatus, error) {
	var resp functionStatus
	if err := cli.Do(ctx, "GET", "/functions/"+handle, nil, &resp); err != nil {
		return managedruntime.RuntimeStatus{}, fmt.Errorf("fc: status: %w", err)
	}
	return managedruntime.RuntimeStatus{State: resp.Status, EndpointURL: resp.URLInternet, Path: resp.Path}, nil
}

func (a *adapter) Delete(ctx context.Context, cli *vendorhttp.Client, handle string) error {
	return cli.Do(ctx, "DELETE", "/functions/"+handle, nil, nil)
}

func (a *adapter) IsTerminal(state string) bool {
	switch state {
	case "Active", "Failed", "Deleting":
		return true
	}
	return false
}

func (a *adapter) IsReady(state string) bool { return state == "Active" }

// Register installs this driver under "fc" in the backend registry.
func Register(cli *vendorhttp.Client, rewrite backend.RewriteTable, opts managedruntime.Options) {
	backend.Register("fc", func() (backend.Driver, error) {
		return managedruntime.New(cli, NewAdapter(rewrite), opts), nil
	})
}
