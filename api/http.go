// Package api exposes plan runs over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/c360studio/semtrip/export"
	"github.com/c360studio/semtrip/runs"
	"github.com/c360studio/semtrip/storage"
	"github.com/c360studio/semtrip/trip"
)

// maxRequestBodySize limits POST body sizes.
const maxRequestBodySize = 1 << 20 // 1 MB

const defaultListLimit = 20

// RunService is the run manager as seen by the handlers.
type RunService interface {
	CreateRun(ctx context.Context, req trip.PlanRequest) (string, error)
	GetStatus(ctx context.Context, id string) (runs.Status, error)
	GetResult(ctx context.Context, id string) (*trip.FinishedPlan, error)
	List(ctx context.Context, limit int) ([]runs.Status, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// Server holds the HTTP handlers.
type Server struct {
	runs     RunService
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// NewServer creates the handlers for svc.
func NewServer(svc RunService, opts ...Option) *Server {
	s := &Server{
		runs:     svc,
		logger:   slog.Default(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler:
//
//	POST /api/plans
//	GET  /api/plans
//	GET  /api/plans/{id}/status
//	GET  /api/plans/{id}
//	GET  /healthz
//	GET  /metrics
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/plans", s.handleCreate)
	mux.HandleFunc("GET /api/plans", s.handleList)
	mux.HandleFunc("GET /api/plans/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /api/plans/{id}", s.handleResult)
	mux.HandleFunc("GET /api/plans/{id}/export", s.handleExport)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return s.logRequests(mux)
}

// CreateResponse is the body of a successful POST /api/plans.
type CreateResponse struct {
	Success bool              `json:"success"`
	RunID   string            `json:"run_id"`
	Status  storage.RunStatus `json:"status"`
	Message string            `json:"message"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error  string       `json:"error"`
	Fields []FieldError `json:"fields,omitempty"`
}

// FieldError names one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req trip.PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	id, err := s.runs.CreateRun(r.Context(), req)
	switch {
	case err == nil:
	case trip.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid plan request", Fields: fieldErrors(err)})
		return
	case errors.Is(err, runs.ErrShuttingDown):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	default:
		s.logger.Error("Failed to create run", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to create run"})
		return
	}

	w.Header().Set("Location", "/api/plans/"+id+"/status")
	writeJSON(w, http.StatusAccepted, CreateResponse{
		Success: true,
		RunID:   id,
		Status:  storage.StatusProcessing,
		Message: "旅行计划正在生成中，请稍后查询结果",
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	list, err := s.runs.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list runs", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to list runs"})
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	st, err := s.runs.GetStatus(r.Context(), id)
	if err != nil {
		s.writeLookupError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	plan, err := s.runs.GetResult(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, plan)
	case errors.Is(err, runs.ErrNotReady):
		st, serr := s.runs.GetStatus(r.Context(), id)
		if serr != nil {
			s.writeLookupError(w, id, serr)
			return
		}
		writeJSON(w, http.StatusAccepted, st)
	case errors.Is(err, runs.ErrRunFailed):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	default:
		s.writeLookupError(w, id, err)
	}
}

// handleExport serves a completed plan as a file. The format query
// parameter selects json, markdown or ics; markdown is the default.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(export.FormatMarkdown)
	}
	format, err := export.ParseFormat(name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	plan, err := s.runs.GetResult(r.Context(), id)
	switch {
	case err == nil:
	case errors.Is(err, runs.ErrNotReady):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "run " + id + " has not completed"})
		return
	case errors.Is(err, runs.ErrRunFailed):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
		return
	default:
		s.writeLookupError(w, id, err)
		return
	}

	info, _ := export.GetFormatInfo(format)
	w.Header().Set("Content-Type", info.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(plan, format)))
	if err := export.Write(w, plan, format); err != nil {
		s.logger.Warn("Failed to write export", "run_id", id, "format", format, "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeLookupError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "run " + id + " not found"})
		return
	}
	s.logger.Error("Failed to read run", "run_id", id, "error", err)
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to read run"})
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// fieldErrors flattens a joined validation error into its fields.
func fieldErrors(err error) []FieldError {
	var out []FieldError
	var walk func(error)
	walk = func(e error) {
		var ve *trip.ValidationError
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
			return
		}
		if errors.As(e, &ve) {
			out = append(out, FieldError{Field: ve.Field, Message: ve.Message})
		}
	}
	walk(err)
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
