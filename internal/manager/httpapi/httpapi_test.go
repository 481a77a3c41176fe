package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"sandboxrt/internal/backend"
	"sandboxrt/internal/deploystore"
	"sandboxrt/internal/manager"
)

type fakeDriver struct{ nextHandle int }

func (f *fakeDriver) Create(_ context.Context, req backend.CreateRequest) (backend.CreateResult, error) {
	f.nextHandle++
	return backend.CreateResult{Handle: req.Name, Host: "127.0.0.1", Protocol: "http"}, nil
}
func (f *fakeDriver) Start(_ context.Context, _ string) error                      { return nil }
func (f *fakeDriver) Stop(_ context.Context, _ string, _ int) error                { return nil }
func (f *fakeDriver) Remove(_ context.Context, _ string, _ bool) error             { return nil }
func (f *fakeDriver) Inspect(_ context.Context, _ string) (backend.Status, backend.Attributes, error) {
	return backend.StatusRunning, nil, nil
}

func newTestServer(t *testing.T, bearerToken string) (*Server, *http.ServeMux) {
	t.Helper()
	mgr := manager.New(manager.Config{
		Driver:          &fakeDriver{},
		Images:          manager.StaticImages{"base": "sandboxrt/base:latest"},
		PoolTargetSize:  0,
		ContainerPrefix: "test",
		Backend:         "docker",
		Log:             zerolog.Nop(),
	})
	store, err := deploystore.Open(t.TempDir())
	require.NoError(t, err)
	s := New(mgr, store, bearerToken, "v-test", "base", zerolog.Nop())
	mux := http.NewServeMux()
	s.Register(mux)
	return s, mux
}

func TestHealthRequiresNoAuth(t *testing.T) {
	_, mux := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "v-test")
}

func TestConnectRejectsMissingBearerToken(t *testing.T) {
	_, mux := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodPost, "/connect", strings.NewReader(`{"session_id":"s1"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConnectSucceedsWithBearerTokenAndDefaultsType(t *testing.T) {
	_, mux := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodPost, "/connect", strings.NewReader(`{"session_id":"s1"}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			SessionID string `json:"session_id"`
			Type      string `json:"type"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "s1", body.Data.SessionID)
	require.Equal(t, "base", body.Data.Type)
}

func TestGetUnknownSessionReturnsNotFound(t *testing.T) {
	_, mux := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/get?session_id=does-not-exist", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodGuardRejectsWrongMethod(t *testing.T) {
	_, mux := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodGet, "/connect", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAuthDisabledWhenBearerTokenEmpty(t *testing.T) {
	_, mux := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/connect", strings.NewReader(`{"session_id":"s2"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDeploymentSaveGetListDeleteRoundTrip(t *testing.T) {
	_, mux := newTestServer(t, "")

	save := httptest.NewRequest(http.MethodPost, "/deployments/save", strings.NewReader(
		`{"id":"d1","platform":"k8s","url":"https://d1.example","agent_source":"git://repo","created_at":"2026-01-01T00:00:00Z","status":"running"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, save)
	require.Equal(t, http.StatusOK, rec.Code)

	get := httptest.NewRequest(http.MethodGet, "/deployments/get?id=d1", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, get)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "k8s")

	list := httptest.NewRequest(http.MethodGet, "/deployments/list", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, list)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"d1"`)

	status := httptest.NewRequest(http.MethodPost, "/deployments/update_status", strings.NewReader(`{"id":"d1","status":"stopped"}`))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, status)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "stopped")

	del := httptest.NewRequest(http.MethodPost, "/deployments/delete", strings.NewReader(`{"id":"d1"}`))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, del)
	require.Equal(t, http.StatusOK, rec.Code)

	getAgain := httptest.NewRequest(http.MethodGet, "/deployments/get?id=d1", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, getAgain)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
