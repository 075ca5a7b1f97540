package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/haasonsaas/concierge/internal/schedule"
)

type createTaskRequest struct {
	SessionID   string `json:"session_id"`
	Description string `json:"description"`
	At          string `json:"at,omitempty"`
	Every       string `json:"every,omitempty"`
	Cron        string `json:"cron,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if s.opts.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduling disabled")
		return
	}
	tasks := s.opts.Scheduler.List(r.URL.Query().Get("session_id"))
	if tasks == nil {
		tasks = []*schedule.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if s.opts.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduling disabled")
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	spec := schedule.Spec{
		At:       req.At,
		Cron:     req.Cron,
		Timezone: req.Timezone,
	}
	if req.Every != "" {
		every, err := time.ParseDuration(req.Every)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid every interval")
			return
		}
		spec.Every = every
	}

	task, err := s.opts.Scheduler.Add(req.SessionID, req.Description, spec)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if s.opts.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduling disabled")
		return
	}
	if err := s.opts.Scheduler.Cancel(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
