package vendorhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDoRoundTripsJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Name string `json:"name"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"echo": body.Name})
	}))
	defer srv.Close()

	cli := New(srv.URL, "secret")

	var out struct {
		Echo string `json:"echo"`
	}
	err := cli.Do(context.Background(), http.MethodPost, "/create", map[string]string{"name": "sandbox-1"}, &out)
	require.NoError(t, err)
	require.Equal(t, "sandbox-1", out.Echo)
}

func TestDoReturnsErrorOnNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	cli := New(srv.URL, "")
	err := cli.Do(context.Background(), http.MethodGet, "/status", nil, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
	require.Contains(t, err.Error(), "boom")
}

func TestDoWithoutOutDiscardsResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ignored": true}`))
	}))
	defer srv.Close()

	cli := New(srv.URL, "")
	err := cli.Do(context.Background(), http.MethodGet, "/anything", nil, nil)
	require.NoError(t, err)
}

func TestDoOmitsAuthorizationHeaderWhenAPIKeyEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cli := New(srv.URL, "")
	require.NoError(t, cli.Do(context.Background(), http.MethodGet, "/ping", nil, nil))
}
