package server

import (
	"errors"
	"net/http"
)

type scheduleRequest struct {
	Cron  string `json:"cron" validate:"required"`
	Count int    `json:"count,omitempty" validate:"min=0,max=1000"`
}

// handleAddSchedule registers a cron schedule on an execution.
func (s *Server) handleAddSchedule(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	var req scheduleRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	sched, err := s.scheduler.Add(in.ID(), req.Cron, req.Count)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_CRON", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, sched)
}

// handleListSchedules returns an execution's schedules.
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.scheduler.List(in.ID()))
}

// handleRemoveSchedule deletes one schedule.
func (s *Server) handleRemoveSchedule(w http.ResponseWriter, r *http.Request) {
	in, ok := s.instance(w, r)
	if !ok {
		return
	}
	if err := s.scheduler.Remove(in.ID(), r.PathValue("schedule_id")); err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			writeError(w, http.StatusNotFound, "SCHEDULE_NOT_FOUND", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "SCHEDULE_ERROR", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
