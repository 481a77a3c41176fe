// Package httpapi is the manager HTTP facade (§4.6), built as a static route
// table per the §9 "dynamic HTTP method exposure" design note, and
// registered with bare net/http.HandleFunc exactly as the teacher's
// cmd/manager/main.go registers its own handlers (no router framework).
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"sandboxrt/internal/deploystore"
	"sandboxrt/internal/manager"
	"sandboxrt/internal/model"
)

// Server is the manager HTTP facade.
type Server struct {
	mgr         *manager.Manager
	deployments *deploystore.Store
	bearerToken string
	version     string
	defaultType string
	log         zerolog.Logger
}

// New builds a Server. An empty bearerToken disables auth with a warning, as
// §4.6 specifies. deployments may be nil, in which case the deployment
// routes (§4.8) are not mounted.
func New(mgr *manager.Manager, deployments *deploystore.Store, bearerToken, version, defaultType string, log zerolog.Logger) *Server {
	if bearerToken == "" {
		log.Warn().Msg("manager HTTP facade: no bearer token configured, auth disabled")
	}
	return &Server{mgr: mgr, deployments: deployments, bearerToken: bearerToken, version: version, defaultType: defaultType, log: log}
}

type route struct {
	path    string
	method  string
	handler http.HandlerFunc
}

// Routes returns the explicit, inspectable (path, method, handler) table
// that replaces the original's reflection-over-annotated-methods dispatch.
func (s *Server) Routes() []route {
	routes := []route{
		{"/health", http.MethodGet, s.handleHealth},
		{"/connect", http.MethodPost, s.handleConnect},
		{"/release", http.MethodPost, s.handleRelease},
		{"/list", http.MethodGet, s.handleList},
		{"/get", http.MethodGet, s.handleGet},
		{"/cleanup", http.MethodPost, s.handleCleanup},
	}
	if s.deployments != nil {
		routes = append(routes,
			route{"/deployments/save", http.MethodPost, s.handleDeploymentSave},
			route{"/deployments/get", http.MethodGet, s.handleDeploymentGet},
			route{"/deployments/list", http.MethodGet, s.handleDeploymentList},
			route{"/deployments/delete", http.MethodPost, s.handleDeploymentDelete},
			route{"/deployments/update_status", http.MethodPost, s.handleDeploymentUpdateStatus},
		)
	}
	return routes
}

// Register mounts every route on mux, wrapping non-health routes with
// bearer-token auth.
func (s *Server) Register(mux *http.ServeMux) {
	for _, r := range s.Routes() {
		handler := r.handler
		if r.path != "/health" {
			handler = s.requireAuth(handler)
		}
		mux.HandleFunc(r.path, methodGuard(r.method, handler))
	}
}

func methodGuard(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.bearerToken == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if auth != "Bearer "+s.bearerToken {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "version": s.version, "default_type": s.defaultType})
}

type connectRequest struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		req.Type = s.defaultType
	}
	c, err := s.mgr.Connect(r.Context(), req.Type, req.SessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": c})
}

type releaseRequest struct {
	SessionID string `json:"session_id"`
	ToPool    bool   `json:"to_pool"`
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.mgr.Release(r.Context(), req.SessionID, req.ToPool); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": true})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"data": s.mgr.List(r.Context())})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	c, ok := s.mgr.Get(sessionID)
	if !ok {
		writeErr(w, model.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": c})
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	s.mgr.Cleanup(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"data": true})
}

// handleDeploymentSave implements §4.8's save(deployment).
func (s *Server) handleDeploymentSave(w http.ResponseWriter, r *http.Request) {
	var d model.Deployment
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.deployments.Save(d); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": d})
}

func (s *Server) handleDeploymentGet(w http.ResponseWriter, r *http.Request) {
	d, err := s.deployments.Get(r.URL.Query().Get("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": d})
}

func (s *Server) handleDeploymentList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"data": s.deployments.List()})
}

type deploymentDeleteRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleDeploymentDelete(w http.ResponseWriter, r *http.Request) {
	var req deploymentDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.deployments.Delete(req.ID); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": true})
}

type deploymentUpdateStatusRequest struct {
	ID     string                 `json:"id"`
	Status model.DeploymentStatus `json:"status"`
}

// handleDeploymentUpdateStatus implements §4.8's update_status(id, status)
// anti-data-loss guard: only the status field changes, the rest of the
// record is preserved by the store itself.
func (s *Server) handleDeploymentUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req deploymentUpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	d, err := s.deployments.UpdateStatus(req.ID, req.Status)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": d})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrSessionNotFound), errors.Is(err, model.ErrDeploymentNotFound):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrNotEnoughPorts), errors.Is(err, model.ErrSandboxCreateFailed):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(err.Error())})
}
