package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/invertfield/internal/config"
	"github.com/banshee-data/invertfield/internal/db"
	"github.com/banshee-data/invertfield/internal/monitoring"
	"github.com/banshee-data/invertfield/internal/version"
)

func TestFlagDefaults(t *testing.T) {
	if *listen != ":8080" {
		t.Errorf("expected -listen default :8080, got %q", *listen)
	}
	if *dbFile != "invertfield.db" {
		t.Errorf("expected -db default invertfield.db, got %q", *dbFile)
	}
	if *configPath != "" {
		t.Errorf("expected -config default to be empty, got %q", *configPath)
	}
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	monitoring.SetLogger(func(string, ...interface{}) {})
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	database, err := db.NewDB(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	iters := 4
	h, err := newHandler(database, &config.InversionConfig{MaximumNumberOfIterations: &iters})
	require.NoError(t, err)
	return h
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "127.0.0.1:40000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Healthz(t *testing.T) {
	rec := serve(newTestHandler(t), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok "+version.String()+"\n", rec.Body.String())
}

func TestHandler_ConfigUsesBase(t *testing.T) {
	rec := serve(newTestHandler(t), http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got config.InversionConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 4, got.GetMaximumNumberOfIterations())
	assert.Equal(t, "linear", got.GetInterpolator())
}

func TestHandler_InvertAndList(t *testing.T) {
	h := newTestHandler(t)

	body := `{"field": {"dimension": 2, "size": [3, 3], "spacing": [1, 1], "data": [` +
		strings.TrimSuffix(strings.Repeat("0,0,", 9), ",") + `]}}`
	rec := serve(h, http.MethodPost, "/api/invert", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		RunID  string `json:"run_id"`
		Reason string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "converged", resp.Reason)
	assert.NotEmpty(t, resp.RunID)

	rec = serve(h, http.MethodGet, "/api/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), resp.RunID)
}

func TestHandler_AdminRoutesMounted(t *testing.T) {
	rec := serve(newTestHandler(t), http.MethodGet, "/debug/runs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_WithoutDatabase(t *testing.T) {
	h, err := newHandler(nil, config.EmptyInversionConfig())
	require.NoError(t, err)

	rec := serve(h, http.MethodGet, "/api/runs", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(h, http.MethodGet, "/debug/runs", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
