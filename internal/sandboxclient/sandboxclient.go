// Package sandboxclient is the typed HTTP client used by the manager and by
// downstream tools to call the in-container control plane (§4.5). It waits
// for readiness, attaches bearer and session auth to every call, and maps
// transport errors into the uniform tool-result envelope rather than
// raising through the tool boundary. Grounded on the teacher's
// shared/docker/client.go constructor/options shape (short-lived
// *http.Client with a fixed timeout, constructor-injected base URL) adapted
// from a Docker-daemon client to an HTTP-over-sandbox client.
package sandboxclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"sandboxrt/internal/control/middleware"
	"sandboxrt/internal/model"
)

// defaultTimeout is the bounded timeout every outgoing call gets unless the
// caller overrides it (§5: "default 60s, caller-overridable").
const defaultTimeout = 60 * time.Second

// Client talks to one sandbox's control plane.
type Client struct {
	baseURL   string
	token     string
	sessionID string
	http      *http.Client
}

// New builds a Client for baseURL, authenticating with token and tagging
// every request with sessionID.
func New(baseURL, token, sessionID string) *Client {
	return &Client{
		baseURL:   baseURL,
		token:     token,
		sessionID: sessionID,
		http:      &http.Client{Timeout: defaultTimeout},
	}
}

// WaitHealthy polls GET /healthz once per second until it returns 200 or
// timeout elapses.
func (c *Client) WaitHealthy(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		if c.probeHealthy(ctx) {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s never became healthy", model.ErrReadinessTimeout, c.baseURL)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) probeHealthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("sandboxclient: marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("sandboxclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set(middleware.SessionHeader, "s"+c.sessionID)
	return c.http.Do(req)
}

// CallTool invokes a tool at path with the given JSON body and decodes the
// uniform ToolResult envelope. Transport errors never escape: they are
// converted to an isError ToolResult, per §4.5.
func (c *Client) CallTool(ctx context.Context, path string, body any) model.ToolResult {
	resp, err := c.do(ctx, http.MethodPost, path, body)
	if err != nil {
		return transportErrorResult(err)
	}
	defer resp.Body.Close()

	var result model.ToolResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return transportErrorResult(fmt.Errorf("decode response from %s: %w", path, err))
	}
	return result
}

func transportErrorResult(err error) model.ToolResult {
	return model.ToolResult{
		Content: []model.ToolContent{{Type: "text", Text: err.Error()}},
		IsError: true,
	}
}

// RunShellCommand calls POST /fastapi/tools/run_shell_command.
func (c *Client) RunShellCommand(ctx context.Context, command string) model.ToolResult {
	return c.CallTool(ctx, "/fastapi/tools/run_shell_command", map[string]string{"command": command})
}

// RunIPythonCell calls POST /fastapi/tools/run_ipython_cell.
func (c *Client) RunIPythonCell(ctx context.Context, code string) model.ToolResult {
	return c.CallTool(ctx, "/fastapi/tools/run_ipython_cell", map[string]string{"code": code})
}

// ToolSchema describes one built-in tool the client advertises without a
// round-trip, per §4.5's "advertise a built-in generic toolset schema".
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// GenericToolset is the built-in schema for run_shell_command and
// run_ipython_cell.
func GenericToolset() []ToolSchema {
	return []ToolSchema{
		{
			Name:        "run_shell_command",
			Description: "Run a shell command in the sandbox workspace.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"command": map[string]any{"type": "string"}},
				"required":   []string{"command"},
			},
		},
		{
			Name:        "run_ipython_cell",
			Description: "Execute a code cell in the sandbox's stateful interpreter.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"code": map[string]any{"type": "string"}},
				"required":   []string{"code"},
			},
		},
	}
}
