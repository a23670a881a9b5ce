package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bramble-labs/bramble/core"
	"github.com/bramble-labs/bramble/debug"
	"github.com/bramble-labs/bramble/exec"
	"github.com/bramble-labs/bramble/history"
	"github.com/bramble-labs/bramble/profile"
	"github.com/bramble-labs/bramble/snapshot"
	"github.com/bramble-labs/bramble/store"
	"github.com/bramble-labs/bramble/tree"
)

// executionView is the API shape of an execution instance.
type executionView struct {
	ID         string      `json:"id"`
	TreeID     string      `json:"tree_id"`
	Phase      exec.Phase  `json:"phase"`
	TickCount  int         `json:"tick_count"`
	RootStatus core.Status `json:"root_status"`
	Capture    bool        `json:"capture"`
	Auto       bool        `json:"auto,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

func viewOf(in *exec.Instance) executionView {
	return executionView{
		ID:         in.ID(),
		TreeID:     in.TreeID(),
		Phase:      in.Phase(),
		TickCount:  in.TickCount(),
		RootStatus: in.RootStatus(),
		Capture:    in.CaptureDefault(),
		Auto:       in.Auto(),
		CreatedAt:  in.CreatedAt(),
	}
}

// instance resolves the {id} path value to an execution, writing the 404
// itself.
func (s *Server) instance(w http.ResponseWriter, r *http.Request) (*exec.Instance, bool) {
	id := r.PathValue("id")
	in, err := s.exec.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("execution %q not found", id))
		return nil, false
	}
	return in, true
}

type createExecutionRequest struct {
	TreeID       string               `json:"tree_id,omitempty" validate:"required_without=Definition"`
	Version      int                  `json:"version,omitempty" validate:"min=0"`
	Definition   *tree.TreeDefinition `json:"definition,omitempty"`
	Capture      bool                 `json:"capture,omitempty"`
	HistoryLimit int                  `json:"history_limit,omitempty" validate:"min=0"`
	MaxDepth     int                  `json:"max_depth,omitempty" validate:"min=0"`
}

// handleCreateExecution builds a tree into a new execution instance. The
// definition comes inline or from the catalog by tree id and version.
func (s *Server) handleCreateExecution(w http.ResponseWriter, r *http.Request) {
	var req createExecutionRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	def := req.Definition
	if def == nil {
		rec, err := s.catalog.Get(r.Context(), req.TreeID, req.Version)
		if err != nil {
			if errors.Is(err, store.ErrTreeNotFound) {
				writeError(w, http.StatusNotFound, "NOT_FOUND",
					fmt.Sprintf("tree %q not found", req.TreeID))
				return
			}
			writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
			return
		}
		def = rec.Definition
	}

	diags := def.ValidateWithRegistry(s.registry)
	if tree.HasErrors(diags) {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"tree definition is invalid", diagMessages(diags)...)
		return
	}

	in, err := s.exec.Create(def, exec.CreateOptions{
		Capture:      req.Capture,
		HistoryLimit: req.HistoryLimit,
		MaxDepth:     req.MaxDepth,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "BUILD_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, viewOf(in))
}

// handleListExecutions returns every execution instance.
func (s *Server) handleListExecutions(w http.ResponseWriter, _ *http.Request) {
	instances := s.exec.List()
	views := make([]executionView, 0, len(instances))
	for _, in := range instances {
		views = append(views, viewOf(in))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleGetExecution returns one execution with its latest snapshot. A
// fresh capture stands in when nothing is stored yet.
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}

	type detail struct {
		executionView
		Snapshot *snapshot.ExecutionSnapshot `json:"snapshot,omitempty"`
	}

	snap, err := in.History().Latest(r.Context())
	if err != nil {
		if !errors.Is(err, history.ErrHistoryUnavailable) {
			writeError(w, http.StatusInternalServerError, "HISTORY_ERROR", err.Error())
			return
		}
		snap = in.Snapshot()
	}
	writeJSON(w, http.StatusOK, detail{executionView: viewOf(in), Snapshot: snap})
}

// handleDeleteExecution destroys an execution and drops its schedules.
func (s *Server) handleDeleteExecution(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.exec.Destroy(id); err != nil {
		if errors.Is(err, exec.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("execution %q not found", id))
			return
		}
		writeError(w, http.StatusInternalServerError, "EXEC_ERROR", err.Error())
		return
	}
	s.scheduler.RemoveExecution(id)
	w.WriteHeader(http.StatusNoContent)
}

type tickRequest struct {
	Count   int            `json:"count,omitempty" validate:"min=0,max=10000"`
	Updates map[string]any `json:"updates,omitempty"`
	Capture bool           `json:"capture,omitempty"`
}

type tickResponse struct {
	Ticks       int                         `json:"ticks"`
	TickCount   int                         `json:"tick_count"`
	RootStatus  core.Status                 `json:"root_status"`
	Paused      bool                        `json:"paused,omitempty"`
	PauseReason string                      `json:"pause_reason,omitempty"`
	Snapshot    *snapshot.ExecutionSnapshot `json:"snapshot,omitempty"`
}

// handleTick advances an execution.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	var req tickRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	res, err := in.Tick(r.Context(), exec.TickRequest{
		Count:   req.Count,
		Updates: req.Updates,
		Capture: req.Capture,
	})
	if err != nil {
		switch {
		case errors.Is(err, exec.ErrPaused):
			writeError(w, http.StatusConflict, "EXECUTION_PAUSED", err.Error())
		case errors.Is(err, exec.ErrStopped):
			writeError(w, http.StatusConflict, "EXECUTION_STOPPED", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "TICK_ERROR", err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, tickResponse{
		Ticks:       res.Ticks,
		TickCount:   res.TickCount,
		RootStatus:  res.RootStatus,
		Paused:      res.Paused,
		PauseReason: res.PauseReason,
		Snapshot:    res.Snapshot,
	})
}

// --- History ---

func writeHistoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, history.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", err.Error())
	case errors.Is(err, history.ErrHistoryUnavailable):
		writeError(w, http.StatusNotFound, "HISTORY_UNAVAILABLE", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "HISTORY_ERROR", err.Error())
	}
}

// handleHistoryRange returns snapshots for ?from=&to=, defaulting to the
// whole recorded range.
func (s *Server) handleHistoryRange(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}

	from, okFrom := intQuery(r, "from", 1)
	to, okTo := intQuery(r, "to", in.TickCount())
	if !okFrom || !okTo {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "from and to must be integers")
		return
	}
	if to == 0 && r.URL.Query().Get("to") == "" {
		// Nothing ticked yet.
		writeJSON(w, http.StatusOK, []*snapshot.ExecutionSnapshot{})
		return
	}

	snaps, err := in.History().Range(r.Context(), from, to)
	if err != nil {
		writeHistoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

// handleHistoryTick returns the snapshot captured at one tick.
func (s *Server) handleHistoryTick(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}

	tick, err := strconv.Atoi(r.PathValue("tick"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_TICK", "tick must be an integer")
		return
	}

	snap, err := in.History().Tick(r.Context(), tick)
	if err != nil {
		writeHistoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleHistoryDiff returns the changes between two captured ticks.
func (s *Server) handleHistoryDiff(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	if q.Get("from") == "" || q.Get("to") == "" {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "from and to are required")
		return
	}
	from, okFrom := intQuery(r, "from", 0)
	to, okTo := intQuery(r, "to", 0)
	if !okFrom || !okTo {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE", "from and to must be integers")
		return
	}

	changes, err := in.History().Diff(r.Context(), from, to)
	if err != nil {
		writeHistoryError(w, err)
		return
	}
	if changes == nil {
		changes = []snapshot.Change{}
	}
	writeJSON(w, http.StatusOK, changes)
}

// --- Debug ---

// handleDebugState returns the execution's debug controller state.
func (s *Server) handleDebugState(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, in.Debug().State())
}

type stepRequest struct {
	Mode  string `json:"mode" validate:"required,oneof=NONE STEP_OVER STEP_INTO STEP_OUT CONTINUE"`
	Count int    `json:"count,omitempty" validate:"min=0"`
}

// handleDebugStep arms a step mode and resumes a paused execution.
func (s *Server) handleDebugStep(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	var req stepRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	var arg any
	if req.Mode == string(debug.ModeStepOver) && req.Count > 0 {
		arg = req.Count
	}
	if err := in.SetStepMode(debug.Mode(req.Mode), arg); err != nil {
		if errors.Is(err, exec.ErrStopped) {
			writeError(w, http.StatusConflict, "EXECUTION_STOPPED", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "DEBUG_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, in.Debug().State())
}

// handleDebugResume clears any pause and returns the execution to READY.
func (s *Server) handleDebugResume(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	if err := in.Resume(); err != nil {
		writeError(w, http.StatusConflict, "EXECUTION_STOPPED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, in.Debug().State())
}

// handleDebugPause pauses an idle execution immediately; a ticking one
// lands the pause at its next boundary.
func (s *Server) handleDebugPause(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	if err := in.Pause(); err != nil {
		writeError(w, http.StatusConflict, "EXECUTION_STOPPED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, in.Debug().State())
}

// --- Breakpoints ---

type breakpointRequest struct {
	NodeID    string           `json:"node_id" validate:"required"`
	Condition *debug.Predicate `json:"condition,omitempty"`
}

func (s *Server) handleAddBreakpoint(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	var req breakpointRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	bp := in.Debug().AddBreakpoint(debug.Breakpoint{
		NodeID:    req.NodeID,
		Condition: req.Condition,
		Enabled:   true,
	})
	writeJSON(w, http.StatusCreated, bp)
}

func (s *Server) handleListBreakpoints(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, in.Debug().Breakpoints())
}

func (s *Server) handleRemoveBreakpoint(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	if err := in.Debug().RemoveBreakpoint(r.PathValue("bp_id")); err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Watches ---

type watchRequest struct {
	Key       string `json:"key" validate:"required"`
	Condition string `json:"condition,omitempty" validate:"omitempty,oneof=CHANGE EQUALS NOT_EQUALS GREATER LESS GREATER_EQUAL LESS_EQUAL"`
	Target    any    `json:"target,omitempty"`
}

func (s *Server) handleAddWatch(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	var req watchRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	watch := in.Debug().AddWatch(debug.Watch{
		Key:       req.Key,
		Condition: debug.WatchCondition(req.Condition),
		Target:    req.Target,
		Enabled:   true,
	})
	writeJSON(w, http.StatusCreated, watch)
}

func (s *Server) handleListWatches(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, in.Debug().Watches())
}

func (s *Server) handleRemoveWatch(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	if err := in.Debug().RemoveWatch(r.PathValue("watch_id")); err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Profiling ---

func (s *Server) handleProfileStart(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	in.Profile().Start()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	report, err := in.Profile().Report()
	if err != nil {
		if errors.Is(err, profile.ErrNotActive) {
			writeError(w, http.StatusConflict, "PROFILE_NOT_ACTIVE", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "PROFILE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleProfileStop(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	report, err := in.Profile().Stop()
	if err != nil {
		if errors.Is(err, profile.ErrNotActive) {
			writeError(w, http.StatusConflict, "PROFILE_NOT_ACTIVE", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "PROFILE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}
