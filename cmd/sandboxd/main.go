// Command sandboxd is the in-container control plane (§4.4) baked into
// every sandbox image: the generic, MCP, workspace, and git-watcher routers
// behind bearer auth, plus a readiness endpoint. Uses echo per
// internal/control/middleware's auth shape, grounded on the manager HTTP
// facade's own bearer-token check generalized to a framework middleware.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"sandboxrt/internal/control/generic"
	"sandboxrt/internal/control/mcp"
	"sandboxrt/internal/control/middleware"
	"sandboxrt/internal/control/watcher"
	"sandboxrt/internal/control/workspace"
	"sandboxrt/internal/logging"
	"sandboxrt/internal/model"
)

func main() {
	debug := os.Getenv("SANDBOX_DEBUG") == "true"
	logger := logging.Default("sandboxd", debug)

	port := envOr("SANDBOX_CONTROL_PORT", "8000")
	bearerToken := envOr("SECRET_TOKEN", os.Getenv("SANDBOX_BEARER_TOKEN"))
	workdir := envOr("SANDBOX_WORKSPACE_DIR", "/workspace")
	kernelCmd := []string{envOr("SANDBOX_KERNEL_COMMAND", "python3")}
	mcpConfigPath := os.Getenv("SANDBOX_MCP_CONFIG_PATH")

	if bearerToken == "" {
		logger.Warn().Msg("sandboxd: no bearer token configured, auth disabled")
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("workdir", workdir).Msg("sandboxd: create workspace dir")
	}

	genericRouter := generic.New(workdir, kernelCmd, logger)
	workspaceRouter := workspace.New(workdir)
	watcherRouter := watcher.New(workdir)
	mcpRouter := mcp.New(logger)

	if mcpConfigPath != "" {
		loadMCPConfig(mcpRouter, mcpConfigPath, logger)
	}
	defer mcpRouter.Shutdown()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	// spec.md §6: every in-container route lives under a /fastapi-mounted base.
	guarded := e.Group("/fastapi", middleware.RequireBearer(bearerToken))
	registerGenericRoutes(guarded, genericRouter)
	registerWorkspaceRoutes(guarded, workspaceRouter)
	registerWatcherRoutes(guarded, watcherRouter)
	registerMCPRoutes(guarded, mcpRouter)

	addr := ":" + port
	logger.Info().Str("addr", addr).Msg("sandboxd: listening")
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("sandboxd: server stopped")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadMCPConfig mirrors §4.4's lifecycle note: on process start, config is
// loaded from a packaged file and add_servers is called with
// overwrite=false, so a crash-restart never clobbers a live session.
func loadMCPConfig(router *mcp.Router, path string, logger zerolog.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("sandboxd: no mcp config, skipping add_servers")
		return
	}
	var doc struct {
		MCPServers map[string]mcp.ServerConfig `json:"mcpServers"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Error().Err(err).Msg("sandboxd: malformed mcp config")
		return
	}
	if err := router.AddServers(context.Background(), doc.MCPServers, false); err != nil {
		logger.Error().Err(err).Msg("sandboxd: add_servers at startup failed")
	}
}

func registerGenericRoutes(g *echo.Group, router *generic.Router) {
	g.POST("/tools/run_shell_command", func(c echo.Context) error {
		var body struct {
			Command string `json:"command"`
		}
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"detail": err.Error()})
		}
		result, err := router.RunShellCommand(c.Request().Context(), body.Command)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"detail": err.Error()})
		}
		return c.JSON(http.StatusOK, result)
	})

	g.POST("/tools/run_ipython_cell", func(c echo.Context) error {
		var body struct {
			Code string `json:"code"`
		}
		if err := c.Bind(&body); err != nil || body.Code == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"detail": "code is required"})
		}
		result, err := router.RunIPythonCell(c.Request().Context(), body.Code)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"detail": err.Error()})
		}
		return c.JSON(http.StatusOK, result)
	})
}

func registerWorkspaceRoutes(g *echo.Group, router *workspace.Router) {
	g.GET("/workspace/files", func(c echo.Context) error {
		data, err := router.ReadFile(c.QueryParam("file_path"))
		if err != nil {
			return workspaceErr(c, err)
		}
		return c.Blob(http.StatusOK, "application/octet-stream", data)
	})
	g.POST("/workspace/files", func(c echo.Context) error {
		data, err := readBody(c)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"detail": err.Error()})
		}
		if err := router.WriteFile(c.QueryParam("file_path"), data); err != nil {
			return workspaceErr(c, err)
		}
		return c.NoContent(http.StatusOK)
	})
	g.DELETE("/workspace/files", func(c echo.Context) error {
		if err := router.DeleteFile(c.QueryParam("file_path")); err != nil {
			return workspaceErr(c, err)
		}
		return c.NoContent(http.StatusOK)
	})
	g.GET("/workspace/list-directories", func(c echo.Context) error {
		entries, stats, err := router.ListDirectories(c.QueryParam("directory"))
		if err != nil {
			return workspaceErr(c, err)
		}
		return c.JSON(http.StatusOK, echo.Map{"items": entries, "statistics": stats})
	})
	g.POST("/workspace/directories", func(c echo.Context) error {
		if err := router.CreateDirectory(c.QueryParam("directory_path")); err != nil {
			return workspaceErr(c, err)
		}
		return c.NoContent(http.StatusOK)
	})
	g.DELETE("/workspace/directories", func(c echo.Context) error {
		recursive := c.QueryParam("recursive") == "true"
		if err := router.DeleteDirectory(c.QueryParam("directory_path"), recursive); err != nil {
			return workspaceErr(c, err)
		}
		return c.NoContent(http.StatusOK)
	})
	g.PUT("/workspace/move", func(c echo.Context) error {
		var body struct{ Src, Dst string }
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"detail": err.Error()})
		}
		if err := router.Move(body.Src, body.Dst); err != nil {
			return workspaceErr(c, err)
		}
		return c.NoContent(http.StatusOK)
	})
	g.POST("/workspace/copy", func(c echo.Context) error {
		var body struct{ Src, Dst string }
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"detail": err.Error()})
		}
		if err := router.Copy(body.Src, body.Dst); err != nil {
			return workspaceErr(c, err)
		}
		return c.NoContent(http.StatusOK)
	})
}

// workspaceErr maps a workspace escape attempt to 403 per §4.4, and
// everything else to 500.
func workspaceErr(c echo.Context, err error) error {
	if errors.Is(err, model.ErrWorkspaceEscape) {
		return c.JSON(http.StatusForbidden, echo.Map{"detail": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"detail": err.Error()})
}

func registerWatcherRoutes(g *echo.Group, router *watcher.Router) {
	g.POST("/watcher/commit_changes", func(c echo.Context) error {
		var body struct {
			CommitMessage string `json:"commit_message"`
		}
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"detail": err.Error()})
		}
		hash, err := router.CommitChanges(body.CommitMessage)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"detail": err.Error()})
		}
		return c.JSON(http.StatusOK, echo.Map{"commit": hash})
	})
	g.POST("/watcher/generate_diff", func(c echo.Context) error {
		var body struct {
			CommitA string `json:"commit_a"`
			CommitB string `json:"commit_b"`
		}
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"detail": err.Error()})
		}
		diff, err := router.GenerateDiff(body.CommitA, body.CommitB)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"detail": err.Error()})
		}
		return c.JSON(http.StatusOK, echo.Map{"diff": diff})
	})
	g.GET("/watcher/git_logs", func(c echo.Context) error {
		logs, err := router.GitLogs()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"detail": err.Error()})
		}
		return c.JSON(http.StatusOK, echo.Map{"logs": logs})
	})
}

func registerMCPRoutes(g *echo.Group, router *mcp.Router) {
	g.POST("/mcp/add_servers", func(c echo.Context) error {
		var body struct {
			ServerConfigs map[string]mcp.ServerConfig `json:"server_configs"`
			Overwrite     bool                        `json:"overwrite"`
		}
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"detail": err.Error()})
		}
		if err := router.AddServers(c.Request().Context(), body.ServerConfigs, body.Overwrite); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"detail": err.Error()})
		}
		return c.NoContent(http.StatusOK)
	})
	g.GET("/mcp/list_tools", func(c echo.Context) error {
		tools, err := router.ListTools(c.Request().Context())
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"detail": err.Error()})
		}
		return c.JSON(http.StatusOK, tools)
	})
	g.POST("/mcp/call_tool", func(c echo.Context) error {
		var body struct {
			ToolName  string         `json:"tool_name"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := c.Bind(&body); err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"detail": err.Error()})
		}
		result, err := router.CallTool(c.Request().Context(), body.ToolName, body.Arguments)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"detail": err.Error()})
		}
		return c.JSON(http.StatusOK, result)
	})
}

func readBody(c echo.Context) ([]byte, error) {
	return io.ReadAll(c.Request().Body)
}
