package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/invertfield/internal/config"
	"github.com/banshee-data/invertfield/internal/db"
	"github.com/banshee-data/invertfield/internal/fieldio"
	"github.com/banshee-data/invertfield/internal/monitoring"
	"github.com/banshee-data/invertfield/internal/testutil"
)

func setupTestServer(t *testing.T) (*Server, *db.DB) {
	t.Helper()
	dbInst, err := db.NewDB(cloneAPITestDB(t))
	if err != nil {
		t.Fatalf("failed to create test DB: %v", err)
	}
	t.Cleanup(func() { dbInst.Close() })
	return NewServer(dbInst, config.EmptyInversionConfig()), dbInst
}

func invertBody(t *testing.T, doc *fieldio.Document, cfg string) []byte {
	t.Helper()
	fieldJSON, err := json.Marshal(doc)
	require.NoError(t, err)
	if cfg == "" {
		return []byte(fmt.Sprintf(`{"field": %s}`, fieldJSON))
	}
	return []byte(fmt.Sprintf(`{"field": %s, "config": %s}`, fieldJSON, cfg))
}

func doRequest(server *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, req)
	return w
}

func postInvert(t *testing.T, server *Server, body []byte) (*httptest.ResponseRecorder, invertResponse) {
	t.Helper()
	w := doRequest(server, testutil.NewJSONRequest(http.MethodPost, "/api/invert", body))
	var resp invertResponse
	if w.Code == http.StatusOK || w.Code == http.StatusUnprocessableEntity {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestInvert_IdentityField(t *testing.T) {
	server, dbInst := setupTestServer(t)

	forward := testutil.ConstantField([]float64{0, 0}, 5, 4)
	w, resp := postInvert(t, server, invertBody(t, fieldio.FromField(forward), ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	assert.Equal(t, "converged", resp.Reason)
	assert.Equal(t, 1, resp.Iterations)
	require.NotNil(t, resp.MaxErrorNorm)
	assert.Zero(t, *resp.MaxErrorNorm)
	require.NotNil(t, resp.Inverse)
	assert.Equal(t, []int{5, 4}, resp.Inverse.Size)
	for _, v := range resp.Inverse.Data {
		assert.Zero(t, v)
	}
	require.Len(t, resp.History, 1)
	assert.Equal(t, 0.75, resp.History[0].Epsilon)

	require.NotEmpty(t, resp.RunID)
	run, err := dbInst.GetRun(resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, "converged", run.Reason)
}

func TestInvert_TranslationWithConfig(t *testing.T) {
	server, _ := setupTestServer(t)

	forward := testutil.ConstantField([]float64{0.3, 0}, 8, 8)
	cfg := `{"maximum_number_of_iterations": 6, "interpolator": "nearest", "workers": 2, "partitions": 3, "collect_percentile": true}`
	w, resp := postInvert(t, server, invertBody(t, fieldio.FromField(forward), cfg))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	assert.Equal(t, "max_iterations_reached", resp.Reason)
	assert.Equal(t, 6, resp.Iterations)
	require.Len(t, resp.History, 6)
	for _, h := range resp.History {
		assert.NotNil(t, h.P95ErrorNorm)
	}

	inverse, err := resp.Inverse.ToField()
	require.NoError(t, err)
	testutil.AssertBoundaryZero(t, inverse)
	assert.InDelta(t, -0.3, inverse.AtIndex([]int{4, 4})[0], 0.01)
}

func TestInvert_DoNotStore(t *testing.T) {
	server, dbInst := setupTestServer(t)

	fieldJSON, err := json.Marshal(fieldio.FromField(testutil.ConstantField([]float64{0.1}, 4)))
	require.NoError(t, err)
	body := []byte(fmt.Sprintf(`{"field": %s, "store": false}`, fieldJSON))

	w, resp := postInvert(t, server, body)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Empty(t, resp.RunID)

	runs, err := dbInst.ListRuns(10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestInvert_BadRequests(t *testing.T) {
	server, _ := setupTestServer(t)

	good := fieldio.FromField(testutil.ConstantField([]float64{0, 0}, 3, 3))
	badSpacing := fieldio.FromField(testutil.ConstantField([]float64{0, 0}, 3, 3))
	badSpacing.Spacing[1] = 0
	shortData := fieldio.FromField(testutil.ConstantField([]float64{0, 0}, 3, 3))
	shortData.Data = shortData.Data[:5]

	tests := []struct {
		name string
		body []byte
	}{
		{"malformed json", []byte(`{"field": `)},
		{"missing field", []byte(`{"config": {}}`)},
		{"bad spacing", invertBody(t, badSpacing, "")},
		{"short data", invertBody(t, shortData, "")},
		{"cell count overflow", []byte(`{"field": {"dimension": 3, "size": [7, 7905747460161236407, 2], "spacing": [1, 1, 1], "data": [0, -5, 0, 0, -5, 0]}, "config": {"partitions": 2, "workers": 4}}`)},
		{"negative iterations", invertBody(t, good, `{"maximum_number_of_iterations": -2}`)},
		{"unknown interpolator", invertBody(t, good, `{"interpolator": "cubic"}`)},
		{"negative tolerance", invertBody(t, good, `{"mean_error_tolerance_threshold": -1}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(server, testutil.NewJSONRequest(http.MethodPost, "/api/invert", tt.body))
			testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)

			var errResp map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
			assert.NotEmpty(t, errResp["error"])
		})
	}
}

func TestInvert_MethodNotAllowed(t *testing.T) {
	server, _ := setupTestServer(t)
	w := doRequest(server, httptest.NewRequest(http.MethodGet, "/api/invert", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
}

func TestInvert_WithoutStore(t *testing.T) {
	server := NewServer(nil, nil)

	forward := testutil.ConstantField([]float64{0.2}, 6)
	w, resp := postInvert(t, server, invertBody(t, fieldio.FromField(forward), ""))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Empty(t, resp.RunID)

	w = doRequest(server, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusServiceUnavailable)
	w = doRequest(server, httptest.NewRequest(http.MethodGet, "/api/runs/abc", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusServiceUnavailable)
}

func TestRuns_ListGetChartDelete(t *testing.T) {
	server, _ := setupTestServer(t)

	var ids []string
	for i := 0; i < 3; i++ {
		forward := testutil.ConstantField([]float64{0.1 * float64(i+1), 0}, 6, 6)
		w, resp := postInvert(t, server, invertBody(t, fieldio.FromField(forward), `{"maximum_number_of_iterations": 4}`))
		testutil.AssertStatusCode(t, w.Code, http.StatusOK)
		ids = append(ids, resp.RunID)
	}

	// list
	w := doRequest(server, httptest.NewRequest(http.MethodGet, "/api/runs?limit=2", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var runs []db.RunRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	assert.Len(t, runs, 2)

	w = doRequest(server, httptest.NewRequest(http.MethodGet, "/api/runs?limit=zero", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)

	// get
	w = doRequest(server, httptest.NewRequest(http.MethodGet, "/api/runs/"+ids[1]+"?include=inverse", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	var got runResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, ids[1], got.Run.RunID)
	assert.Len(t, got.Iterations, 4)
	require.NotNil(t, got.Inverse)
	assert.Equal(t, []int{6, 6}, got.Inverse.Size)
	assert.JSONEq(t, `{"maximum_number_of_iterations": 4}`, string(got.Run.Config))

	// chart
	w = doRequest(server, httptest.NewRequest(http.MethodGet, "/api/runs/"+ids[0]+"/chart", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/html"))
	assert.Contains(t, w.Body.String(), "Run "+ids[0])

	// delete
	w = doRequest(server, httptest.NewRequest(http.MethodDelete, "/api/runs/"+ids[2], nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusNoContent)
	w = doRequest(server, httptest.NewRequest(http.MethodGet, "/api/runs/"+ids[2], nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
	w = doRequest(server, httptest.NewRequest(http.MethodDelete, "/api/runs/"+ids[2], nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
}

func TestRuns_EmptyList(t *testing.T) {
	server, _ := setupTestServer(t)
	w := doRequest(server, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestRuns_NotFoundPaths(t *testing.T) {
	server, _ := setupTestServer(t)

	for _, path := range []string{"/api/runs/", "/api/runs/missing", "/api/runs/missing/chart", "/api/runs/x/plot", "/api/runs/x/chart/extra"} {
		w := doRequest(server, httptest.NewRequest(http.MethodGet, path, nil))
		testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
	}

	w := doRequest(server, httptest.NewRequest(http.MethodPut, "/api/runs/x", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
}

func TestShowConfig(t *testing.T) {
	base := &config.InversionConfig{}
	require.NoError(t, json.Unmarshal([]byte(`{"maximum_number_of_iterations": 7}`), base))
	server := NewServer(nil, base)

	w := doRequest(server, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var got config.InversionConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 7, got.GetMaximumNumberOfIterations())
	require.NotNil(t, got.Interpolator)
	assert.Equal(t, "linear", *got.Interpolator)

	w = doRequest(server, httptest.NewRequest(http.MethodPost, "/api/config", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
}

func TestLoggingMiddleware(t *testing.T) {
	original := monitoring.Logf
	defer monitoring.SetLogger(original)

	var logged string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged = fmt.Sprintf(format, v...)
	})

	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=3", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	testutil.AssertStatusCode(t, w.Code, http.StatusTeapot)
	assert.Contains(t, logged, "418")
	assert.Contains(t, logged, "/api/runs?limit=3")
	assert.Contains(t, logged, "GET")
}

func TestStatusCodeColor(t *testing.T) {
	assert.Contains(t, statusCodeColor(200), colorBoldGreen)
	assert.Contains(t, statusCodeColor(302), colorYellow)
	assert.Contains(t, statusCodeColor(404), colorBoldRed)
	assert.Contains(t, statusCodeColor(500), colorBoldRed)
	assert.Equal(t, "100", statusCodeColor(100))
}
