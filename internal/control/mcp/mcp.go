// Package mcp implements the in-container control plane's MCP router
// (§4.4): dynamic hosting of downstream MCP servers and tool dispatch
// across them. Grounded on mark3labs/mcp-go's client/session types (the
// library the rest of the pack imports for MCP server-side hosting,
// re-purposed here client-side) rather than the original's bespoke
// MCPSessionHandler; lifecycle semantics (overwrite flag, all-or-nothing
// cleanup of newly-failed servers on add_servers, reverse-order shutdown)
// are carried from original_source/.../routers/mcp.py.
package mcp

import (
	"context"
	"fmt"
	"sync"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"sandboxrt/internal/model"
)

// ServerConfig describes one downstream MCP server entry, matching the
// "mcpServers" map shape the original config file uses.
type ServerConfig struct {
	Command string            `json:"command,omitempty"` // stdio transport when set
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"` // HTTP/SSE transport when set instead
}

type session struct {
	name   string
	client *mcpclient.Client
}

// Router owns the process-wide server_name -> session mapping.
type Router struct {
	log zerolog.Logger

	mu    sync.Mutex
	order []string // registration order, for reverse-order shutdown
	byName map[string]*session
}

// New builds an empty Router.
func New(log zerolog.Logger) *Router {
	return &Router{byName: map[string]*session{}, log: log}
}

// AddServers initializes every named entry in configs. overwrite=false skips
// (rather than replaces) names already registered. On any initialization
// failure, every server newly started by *this* call is torn down before
// returning an error naming every failed server.
func (r *Router) AddServers(ctx context.Context, configs map[string]ServerConfig, overwrite bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var started []*session
	var failedNames []string

	for name, cfg := range configs {
		if _, exists := r.byName[name]; exists && !overwrite {
			continue
		}
		sess, err := dial(ctx, name, cfg)
		if err != nil {
			r.log.Warn().Err(err).Str("server", name).Msg("mcp: failed to start server")
			failedNames = append(failedNames, name)
			continue
		}
		started = append(started, sess)
	}

	if len(failedNames) > 0 {
		for _, sess := range started {
			_ = sess.client.Close()
		}
		return fmt.Errorf("mcp: failed to initialize servers: %v", failedNames)
	}

	for _, sess := range started {
		if _, exists := r.byName[sess.name]; exists {
			_ = r.byName[sess.name].client.Close()
		} else {
			r.order = append(r.order, sess.name)
		}
		r.byName[sess.name] = sess
	}
	return nil
}

func dial(ctx context.Context, name string, cfg ServerConfig) (*session, error) {
	var cli *mcpclient.Client
	var err error
	if cfg.Command != "" {
		env := make([]string, 0, len(cfg.Env))
		for k, v := range cfg.Env {
			env = append(env, k+"="+v)
		}
		cli, err = mcpclient.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	} else {
		cli, err = mcpclient.NewSSEMCPClient(cfg.URL)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", name, err)
	}
	if _, err := cli.Initialize(ctx, mcp.InitializeRequest{}); err != nil {
		_ = cli.Close()
		return nil, fmt.Errorf("initialize %s: %w", name, err)
	}
	return &session{name: name, client: cli}, nil
}

// ToolEntry is one tool's JSON-schema description, associated with the
// server that hosts it.
type ToolEntry struct {
	Server string    `json:"server"`
	Tool   mcp.Tool  `json:"tool"`
}

// ListTools returns every tool across every registered server, skipping
// duplicate tool names (first registration wins) with a logged warning.
func (r *Router) ListTools(ctx context.Context) ([]ToolEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := map[string]bool{}
	var out []ToolEntry
	for _, name := range r.order {
		sess := r.byName[name]
		result, err := sess.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return nil, fmt.Errorf("mcp: list_tools %s: %w", name, err)
		}
		for _, tool := range result.Tools {
			if seen[tool.Name] {
				r.log.Warn().Str("tool", tool.Name).Str("server", name).Msg("mcp: duplicate tool name, skipping")
				continue
			}
			seen[tool.Name] = true
			out = append(out, ToolEntry{Server: name, Tool: tool})
		}
	}
	return out, nil
}

// CallTool locates the first server exposing toolName and dispatches.
func (r *Router) CallTool(ctx context.Context, toolName string, arguments map[string]any) (model.ToolResult, error) {
	r.mu.Lock()
	owner, err := r.findOwner(ctx, toolName)
	r.mu.Unlock()
	if err != nil {
		return model.ToolResult{}, err
	}

	result, err := owner.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: toolName, Arguments: arguments},
	})
	if err != nil {
		return model.ToolResult{}, fmt.Errorf("mcp: call_tool %s: %w", toolName, err)
	}

	out := model.ToolResult{IsError: result.IsError}
	for _, c := range result.Content {
		if text, ok := c.(mcp.TextContent); ok {
			out.Content = append(out.Content, model.ToolContent{Type: "text", Text: text.Text})
		}
	}
	return out, nil
}

func (r *Router) findOwner(ctx context.Context, toolName string) (*session, error) {
	for _, name := range r.order {
		sess := r.byName[name]
		result, err := sess.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			continue
		}
		for _, tool := range result.Tools {
			if tool.Name == toolName {
				return sess, nil
			}
		}
	}
	return nil, fmt.Errorf("mcp: no server exposes tool %q", toolName)
}

// Shutdown closes every registered server in reverse registration order.
func (r *Router) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if sess, ok := r.byName[name]; ok {
			_ = sess.client.Close()
		}
	}
	r.order = nil
	r.byName = map[string]*session{}
}
