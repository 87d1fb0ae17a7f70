package httpserver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/heirloom/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/ping", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pong"))
	})
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := New(&api.HTTPServerConfig{
		ListenAddr: "127.0.0.1:0",
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, nil, pingHandler{})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func get(t *testing.T, ts *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := ts.Client().Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_MountsHandlers(t *testing.T) {
	ts := newTestServer(t)

	code, body := get(t, ts, "/api/ping")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pong", body)

	code, body = get(t, ts, "/livez")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"alive"}`, body)

	code, _ = get(t, ts, "/debug/pprof/")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServer_DrainCycle(t *testing.T) {
	ts := newTestServer(t)

	steps := []struct {
		path   string
		code   int
		status string
	}{
		{"/readyz", http.StatusOK, "ready"},
		{"/drain", http.StatusOK, "draining"},
		{"/drain", http.StatusOK, "already draining"},
		{"/readyz", http.StatusServiceUnavailable, "not ready"},
		{"/undrain", http.StatusOK, "ready"},
		{"/undrain", http.StatusOK, "already ready"},
		{"/readyz", http.StatusOK, "ready"},
	}

	for _, step := range steps {
		code, body := get(t, ts, step.path)
		assert.Equal(t, step.code, code, step.path)
		assert.JSONEq(t, `{"status":"`+step.status+`"}`, body, step.path)
	}
}
