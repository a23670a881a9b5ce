// Package server exposes the bramble engine over HTTP: tree catalog CRUD,
// execution lifecycle and ticking, history queries, debugging, profiling,
// cron schedules, and live event streams over SSE and WebSocket.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bramble-labs/bramble/bus"
	"github.com/bramble-labs/bramble/exec"
	"github.com/bramble-labs/bramble/registry"
	"github.com/bramble-labs/bramble/sse"
	"github.com/bramble-labs/bramble/store"
	"github.com/bramble-labs/bramble/ws"
)

var requestValidator = validator.New()

// Config configures a Server. Registry, Exec, and Catalog are required;
// the rest defaults or stays unmounted.
type Config struct {
	Registry   *registry.Registry
	Exec       *exec.Service
	Catalog    store.Store
	Bus        bus.EventBus
	EventStore bus.EventStore

	// Hub serves GET /api/ws when set.
	Hub *ws.Hub

	// Scheduler drives the schedule endpoints. NewServer creates one from
	// Exec and Bus when nil.
	Scheduler *Scheduler

	CORSOrigin string
	MaxBody    int64
	Logger     *slog.Logger
}

// Server is the bramble HTTP API server.
type Server struct {
	registry   *registry.Registry
	exec       *exec.Service
	catalog    store.Store
	bus        bus.EventBus
	events     http.Handler
	hub        *ws.Hub
	scheduler  *Scheduler
	corsOrigin string
	maxBody    int64
	logger     *slog.Logger
}

// NewServer creates a Server with the given configuration.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	maxBody := cfg.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20 // 1 MB default
	}
	scheduler := cfg.Scheduler
	if scheduler == nil {
		scheduler = NewScheduler(SchedulerConfig{
			Exec:   cfg.Exec,
			Bus:    cfg.Bus,
			Logger: logger,
		})
	}

	s := &Server{
		registry:   cfg.Registry,
		exec:       cfg.Exec,
		catalog:    cfg.Catalog,
		bus:        cfg.Bus,
		hub:        cfg.Hub,
		scheduler:  scheduler,
		corsOrigin: corsOrigin,
		maxBody:    maxBody,
		logger:     logger,
	}
	if cfg.Bus != nil {
		s.events = sse.NewHandler(cfg.EventStore, cfg.Bus)
	}
	return s
}

// Scheduler returns the server's schedule runner so the caller can manage
// its lifecycle.
func (s *Server) Scheduler() *Scheduler { return s.scheduler }

// Handler returns an http.Handler with all routes and middleware wired.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var handler http.Handler = mux
	handler = s.loggingMiddleware(handler)
	handler = s.corsMiddleware(handler)
	handler = s.maxBodyMiddleware(handler)

	return handler
}

// RegisterRoutes mounts the API routes onto an existing mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/node-types", s.handleNodeTypes)
	mux.HandleFunc("GET /api/node-types/{type}", s.handleNodeType)

	mux.HandleFunc("POST /api/trees", s.handleSaveTree)
	mux.HandleFunc("GET /api/trees", s.handleListTrees)
	mux.HandleFunc("GET /api/trees/search", s.handleSearchTrees)
	mux.HandleFunc("POST /api/trees/validate", s.handleValidateTree)
	mux.HandleFunc("GET /api/trees/{id}", s.handleGetTree)
	mux.HandleFunc("DELETE /api/trees/{id}", s.handleDeleteTree)
	mux.HandleFunc("GET /api/trees/{id}/versions", s.handleTreeVersions)
	mux.HandleFunc("GET /api/trees/{id}/export", s.handleExportTree)

	mux.HandleFunc("POST /api/executions", s.handleCreateExecution)
	mux.HandleFunc("GET /api/executions", s.handleListExecutions)
	mux.HandleFunc("GET /api/executions/{id}", s.handleGetExecution)
	mux.HandleFunc("DELETE /api/executions/{id}", s.handleDeleteExecution)
	mux.HandleFunc("POST /api/executions/{id}/tick", s.handleTick)

	mux.HandleFunc("GET /api/executions/{id}/history", s.handleHistoryRange)
	mux.HandleFunc("GET /api/executions/{id}/history/diff", s.handleHistoryDiff)
	mux.HandleFunc("GET /api/executions/{id}/history/{tick}", s.handleHistoryTick)

	mux.HandleFunc("GET /api/executions/{id}/debug", s.handleDebugState)
	mux.HandleFunc("POST /api/executions/{id}/debug/step", s.handleDebugStep)
	mux.HandleFunc("POST /api/executions/{id}/debug/resume", s.handleDebugResume)
	mux.HandleFunc("POST /api/executions/{id}/debug/pause", s.handleDebugPause)

	mux.HandleFunc("POST /api/executions/{id}/breakpoints", s.handleAddBreakpoint)
	mux.HandleFunc("GET /api/executions/{id}/breakpoints", s.handleListBreakpoints)
	mux.HandleFunc("DELETE /api/executions/{id}/breakpoints/{bp_id}", s.handleRemoveBreakpoint)

	mux.HandleFunc("POST /api/executions/{id}/watches", s.handleAddWatch)
	mux.HandleFunc("GET /api/executions/{id}/watches", s.handleListWatches)
	mux.HandleFunc("DELETE /api/executions/{id}/watches/{watch_id}", s.handleRemoveWatch)

	mux.HandleFunc("POST /api/executions/{id}/profile/start", s.handleProfileStart)
	mux.HandleFunc("GET /api/executions/{id}/profile", s.handleProfileGet)
	mux.HandleFunc("POST /api/executions/{id}/profile/stop", s.handleProfileStop)

	mux.HandleFunc("POST /api/executions/{id}/schedules", s.handleCreateSchedule)
	mux.HandleFunc("GET /api/executions/{id}/schedules", s.handleListSchedules)
	mux.HandleFunc("DELETE /api/executions/{id}/schedules/{schedule_id}", s.handleDeleteSchedule)

	if s.events != nil {
		mux.Handle("GET /api/events", s.events)
	}
	if s.hub != nil {
		mux.Handle("GET /api/ws", s.hub)
	}
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed", time.Since(start))
	})
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// apiError is the standard error envelope.
type apiError struct {
	Error apiErrorBody `json:"error"`
}

type apiErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string, details ...string) {
	body := apiError{
		Error: apiErrorBody{
			Code:    code,
			Message: message,
		},
	}
	if len(details) > 0 {
		body.Error.Details = details
	}
	writeJSON(w, status, body)
}

// decodeBody reads, unmarshals, and validates a JSON request body into dst.
// It writes the error response itself and reports whether the caller should
// proceed. An empty body decodes to the zero value.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds size limit")
			return false
		}
		writeError(w, http.StatusBadRequest, "READ_ERROR", err.Error())
		return false
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, dst); err != nil {
			writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
			return false
		}
	}

	if err := requestValidator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				details = append(details, fe.Field()+" failed "+fe.Tag())
			}
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid request body", details...)
			return false
		}
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return false
	}
	return true
}

// isMaxBytesError checks if the error is from http.MaxBytesReader.
func isMaxBytesError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

// intQuery parses an optional integer query parameter, falling back to def
// when absent. The bool is false when the value is present but malformed.
func intQuery(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}
