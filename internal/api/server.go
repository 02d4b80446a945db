package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/invertfield/internal/config"
	"github.com/banshee-data/invertfield/internal/db"
	"github.com/banshee-data/invertfield/internal/fieldio"
	"github.com/banshee-data/invertfield/internal/invert"
	"github.com/banshee-data/invertfield/internal/monitoring"
	"github.com/banshee-data/invertfield/internal/parallel"
	"github.com/banshee-data/invertfield/internal/report"
)

// ANSI escape codes used by LoggingMiddleware
const (
	colorCyan      = "\033[36m"
	colorReset     = "\033[0m"
	colorYellow    = "\033[33m"
	colorBoldGreen = "\033[1;32m"
	colorBoldRed   = "\033[1;31m"
)

// maxRequestBytes bounds the body of POST /api/invert.
const maxRequestBytes = 64 << 20

type Server struct {
	db   *db.DB
	base *config.InversionConfig
}

// NewServer returns a Server that inverts with base merged under each
// request's config. database may be nil, in which case runs are not stored
// and the /api/runs endpoints report 503.
func NewServer(database *db.DB, base *config.InversionConfig) *Server {
	if base == nil {
		base = config.EmptyInversionConfig()
	}
	return &Server{
		db:   database,
		base: base,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/invert", s.invertHandler)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/", s.runHandler)
	mux.HandleFunc("/api/config", s.showConfig)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("failed to write response: %v", err)
	}
}

type invertRequest struct {
	Field  *fieldio.Document       `json:"field"`
	Config *config.InversionConfig `json:"config,omitempty"`
	// Store defaults to true when a database is attached.
	Store *bool `json:"store,omitempty"`
}

type invertResponse struct {
	RunID         string               `json:"run_id,omitempty"`
	Reason        string               `json:"reason"`
	Iterations    int                  `json:"iterations"`
	MeanErrorNorm *float64             `json:"mean_error_norm"`
	MaxErrorNorm  *float64             `json:"max_error_norm"`
	DurationNanos int64                `json:"duration_nanos"`
	History       []db.IterationRecord `json:"history"`
	Inverse       *fieldio.Document    `json:"inverse"`
	Error         string               `json:"error,omitempty"`
}

func (s *Server) invertHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req invertRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.Field == nil {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'field'")
		return
	}

	cfg := s.base.Merge(req.Config)
	if err := cfg.Validate(); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid config: %v", err))
		return
	}
	forward, err := req.Field.ToField()
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	interp, err := cfg.EngineInterpolator()
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	inv := invert.New(cfg.ToEngineConfig(),
		invert.WithInterpolator(interp),
		invert.WithPool(parallel.NewPool(cfg.GetWorkers())),
	)
	res, runErr := inv.Invert(r.Context(), forward)
	switch {
	case errors.Is(runErr, invert.ErrInvalidInput):
		s.writeJSONError(w, http.StatusBadRequest, runErr.Error())
		return
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		monitoring.Logf("invert request cancelled: %v", runErr)
		s.writeJSONError(w, http.StatusServiceUnavailable, runErr.Error())
		return
	case runErr != nil && !errors.Is(runErr, invert.ErrDiverged):
		s.writeJSONError(w, http.StatusInternalServerError, runErr.Error())
		return
	}

	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to encode config: %v", err))
		return
	}
	run, iters, err := db.RecordFromResult(forward, res, cfgJSON)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := invertResponse{
		Reason:        run.Reason,
		Iterations:    run.Iterations,
		MeanErrorNorm: run.MeanErrorNorm,
		MaxErrorNorm:  run.MaxErrorNorm,
		DurationNanos: run.DurationNanos,
		History:       iters,
		Inverse:       fieldio.FromField(res.Inverse),
	}
	if resp.History == nil {
		resp.History = []db.IterationRecord{}
	}

	if s.db != nil && (req.Store == nil || *req.Store) {
		id, err := s.db.InsertRun(run, iters)
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to store run: %v", err))
			return
		}
		resp.RunID = id
	}

	status := http.StatusOK
	if runErr != nil {
		resp.Error = runErr.Error()
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, resp)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Run store not configured")
		return
	}

	limit := db.DefaultListLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > 1000 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	runs, err := s.db.ListRuns(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []db.RunRecord{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

type runResponse struct {
	Run        *db.RunRecord        `json:"run"`
	Iterations []db.IterationRecord `json:"iterations"`
	Inverse    *fieldio.Document    `json:"inverse,omitempty"`
}

// runHandler serves /api/runs/{id} and /api/runs/{id}/chart.
func (s *Server) runHandler(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "Run store not configured")
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/runs/"), "/")
	parts := strings.Split(rest, "/")
	if rest == "" || len(parts) > 2 || (len(parts) == 2 && parts[1] != "chart") {
		s.writeJSONError(w, http.StatusNotFound, "Not found")
		return
	}
	runID := parts[0]

	if len(parts) == 2 {
		s.runChart(w, r, runID)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getRun(w, r, runID)
	case http.MethodDelete:
		if err := s.db.DeleteRun(runID); err != nil {
			s.writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrRunNotFound) {
		s.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSONError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request, runID string) {
	run, err := s.db.GetRun(runID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	iters, err := s.db.RunIterations(runID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if iters == nil {
		iters = []db.IterationRecord{}
	}

	resp := runResponse{Run: run, Iterations: iters}
	if r.URL.Query().Get("include") == "inverse" && len(run.InverseBlob) > 0 {
		inverse, err := fieldio.DecodeBlob(run.InverseBlob)
		if err != nil {
			s.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to decode inverse: %v", err))
			return
		}
		resp.Inverse = fieldio.FromField(inverse)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) runChart(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	run, err := s.db.GetRun(runID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	iters, err := s.db.RunIterations(runID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	subtitle := fmt.Sprintf("%s after %d iterations, %v", run.Reason, run.Iterations, time.Duration(run.DurationNanos))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderConvergenceChart(w, "Run "+run.RunID, subtitle, report.PointsFromRecords(iters)); err != nil {
		monitoring.Logf("chart for run %s: %v", runID, err)
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, config.DefaultInversionConfig().Merge(s.base))
}
