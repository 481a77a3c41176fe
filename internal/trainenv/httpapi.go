package trainenv

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"sandboxrt/internal/model"
)

// Server exposes the Service over the §4.7 HTTP surface.
type Server struct {
	svc *Service
}

// NewServer builds a Server around svc.
func NewServer(svc *Service) *Server {
	return &Server{svc: svc}
}

// Register mounts every route on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealthz)
	e.POST("/create", s.handleCreate)
	e.POST("/step", s.handleStep)
	e.POST("/evaluate", s.handleEvaluate)
	e.POST("/get_info", s.handleGetInfo)
	e.POST("/release", s.handleRelease)
	e.POST("/get_env_profile", s.handleGetEnvProfile)
}

// request is the unified service-request body every non-health endpoint
// accepts (§4.7).
type request struct {
	EnvType    string           `json:"env_type,omitempty"`
	TaskID     string           `json:"task_id,omitempty"`
	InstanceID string           `json:"instance_id,omitempty"`
	Messages   []map[string]any `json:"messages,omitempty"`
	Params     map[string]any   `json:"params,omitempty"`
	Action     map[string]any   `json:"action,omitempty"`
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleCreate(c echo.Context) error {
	var req request
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	instanceID, initState, err := s.svc.Create(c.Request().Context(), req.EnvType, req.TaskID, req.Params)
	if err != nil {
		return badRequest(c, err)
	}
	return ok(c, map[string]any{"instance_id": instanceID, "init_state": initState})
}

func (s *Server) handleStep(c echo.Context) error {
	var req request
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	result, err := s.svc.Step(req.InstanceID, req.Action, req.Params)
	if err != nil {
		return instanceError(c, err)
	}
	return ok(c, result)
}

func (s *Server) handleEvaluate(c echo.Context) error {
	var req request
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	result, err := s.svc.Evaluate(req.InstanceID, req.Messages, req.Params)
	if err != nil {
		return instanceError(c, err)
	}
	return ok(c, result)
}

func (s *Server) handleGetInfo(c echo.Context) error {
	var req request
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	result, err := s.svc.GetInfo(req.InstanceID, req.Messages, req.Params)
	if err != nil {
		return instanceError(c, err)
	}
	return ok(c, result)
}

func (s *Server) handleRelease(c echo.Context) error {
	var req request
	if err := c.Bind(&req); err != nil {
		return badRequest(c, err)
	}
	if err := s.svc.Release(req.InstanceID); err != nil {
		return instanceError(c, err)
	}
	return ok(c, true)
}

func (s *Server) handleGetEnvProfile(c echo.Context) error {
	return ok(c, s.svc.GetEnvProfile())
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, map[string]any{"success": true, "data": data})
}

// badRequest is used for malformed requests and unknown-instance lookups,
// per §7 "step/evaluate with an unknown instance_id fail with 400".
func badRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, map[string]any{"success": false, "detail": err.Error()})
}

// instanceError maps unknown/released instance lookups to 400 and every
// other actor-originated failure to 500 with the error text standing in for
// a traceback, per §7 ("exceptions from the actor are 500 with the full
// traceback in the response body; these services run in trusted developer
// contexts").
func instanceError(c echo.Context, err error) error {
	if errors.Is(err, model.ErrUnknownInstance) || errors.Is(err, model.ErrInstanceReleased) {
		return badRequest(c, err)
	}
	return c.JSON(http.StatusInternalServerError, map[string]any{"success": false, "detail": err.Error()})
}
