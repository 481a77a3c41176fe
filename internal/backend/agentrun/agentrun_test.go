package agentrun

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"sandboxrt/internal/backend"
	"sandboxrt/internal/backend/vendorhttp"
)

func newTestServer(t *testing.T, state string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/runtimes/sandbox-1", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			var req createRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			require.Equal(t, "registry.internal/img:1", req.Image)
			json.NewEncoder(w).Encode(createResponse{RuntimeID: "rt-1"})
		case http.MethodGet:
			json.NewEncoder(w).Encode(statusResponse{State: state, EndpointURL: "https://rt-1.example"})
		case http.MethodDelete:
			w.WriteHeader(http.StatusOK)
		}
	})
	return httptest.NewServer(mux)
}

func TestAdapterCreateOrUpdateRewritesImageAndReturnsHandle(t *testing.T) {
	srv := newTestServer(t, "active")
	defer srv.Close()

	a := NewAdapter(backend.RewriteTable{"img:1": "registry.internal/img:1"})
	cli := vendorhttp.New(srv.URL, "")

	handle, err := a.CreateOrUpdate(context.Background(), cli, backend.CreateRequest{Name: "sandbox-1", Image: "img:1"})
	require.NoError(t, err)
	require.Equal(t, "rt-1", handle)
}

func TestAdapterFetchStatusMapsFields(t *testing.T) {
	srv := newTestServer(t, "pending")
	defer srv.Close()

	a := NewAdapter(nil)
	cli := vendorhttp.New(srv.URL, "")

	status, err := a.FetchStatus(context.Background(), cli, "sandbox-1")
	require.NoError(t, err)
	require.Equal(t, "pending", status.State)
	require.Equal(t, "https://rt-1.example", status.EndpointURL)
}

func TestAdapterIsTerminalAndIsReady(t *testing.T) {
	a := &adapter{}
	require.True(t, a.IsTerminal("active"))
	require.True(t, a.IsTerminal("failed"))
	require.True(t, a.IsTerminal("deleting"))
	require.False(t, a.IsTerminal("pending"))
	require.True(t, a.IsReady("active"))
	require.False(t, a.IsReady("pending"))
}

func TestAdapterDeleteSucceeds(t *testing.T) {
	srv := newTestServer(t, "active")
	defer srv.Close()

	a := NewAdapter(nil)
	cli := vendorhttp.New(srv.URL, "")
	require.NoError(t, a.Delete(context.Background(), cli, "sandbox-1"))
}
