package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/axialab/axial/pkg/pipeline"
	"github.com/axialab/axial/pkg/store"
	"github.com/axialab/axial/pkg/task"
)

// handleGenerateTheory enqueues a theory pipeline run.
func (s *Server) handleGenerateTheory(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, pipeline.CodeNotFound, "invalid project id")
		return
	}

	scope := s.scopeFromRequest(r)
	if _, err := s.db.GetProject(r.Context(), projectID, scope); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, pipeline.CodeNotFound, "project not found")
			return
		}
		writeError(w, pipeline.CodeStoreFatal, "project lookup failed")
		return
	}

	if s.locks.Held(r.Context(), projectID.String()) {
		w.Header().Set("Retry-After", strconv.Itoa(s.tasks.NextPollSeconds()))
		writeError(w, pipeline.CodeLocked, "a pipeline run is already active for this project")
		return
	}

	created := s.tasks.Create(r.Context(), task.KindGenerateTheory, projectID.String(), scope.OwnerID)
	if err := s.dispatch(r.Context(), created, ""); err != nil {
		writeError(w, pipeline.CodeStoreFatal, "dispatch failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":           created.ID,
		"status":            created.Status,
		"next_poll_seconds": s.tasks.NextPollSeconds(),
	})
}

// handleAutoCode enqueues auto-coding for one interview. The project lookup
// doubles as the tenancy check.
func (s *Server) handleAutoCode(w http.ResponseWriter, r *http.Request) {
	interviewID, err := uuid.Parse(chi.URLParam(r, "interviewID"))
	if err != nil {
		writeError(w, pipeline.CodeNotFound, "invalid interview id")
		return
	}

	interview, err := s.db.GetInterview(r.Context(), interviewID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, pipeline.CodeNotFound, "interview not found")
			return
		}
		writeError(w, pipeline.CodeStoreFatal, "interview lookup failed")
		return
	}

	scope := s.scopeFromRequest(r)
	if _, err := s.db.GetProject(r.Context(), interview.ProjectID, scope); err != nil {
		writeError(w, pipeline.CodeNotFound, "interview not found")
		return
	}

	created := s.tasks.Create(r.Context(), task.KindAutoCode, interview.ProjectID.String(), scope.OwnerID)
	if err := s.dispatch(r.Context(), created, interviewID.String()); err != nil {
		writeError(w, pipeline.CodeStoreFatal, "dispatch failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":           created.ID,
		"status":            created.Status,
		"next_poll_seconds": s.tasks.NextPollSeconds(),
	})
}

// handleDeleteProject cascades a project removal through the relational
// store, then cleans the graph and vector projections best-effort: the
// relational store is authoritative, orphaned projections only cost space.
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, pipeline.CodeNotFound, "invalid project id")
		return
	}

	scope := s.scopeFromRequest(r)
	if _, err := s.db.GetProject(r.Context(), projectID, scope); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, pipeline.CodeNotFound, "project not found")
			return
		}
		writeError(w, pipeline.CodeStoreFatal, "project lookup failed")
		return
	}

	if s.locks.Held(r.Context(), projectID.String()) {
		w.Header().Set("Retry-After", strconv.Itoa(s.tasks.NextPollSeconds()))
		writeError(w, pipeline.CodeLocked, "a pipeline run is active, retry after it finishes")
		return
	}

	if err := s.db.DeleteProject(r.Context(), projectID); err != nil {
		writeError(w, pipeline.CodeStoreFatal, "project deletion failed")
		return
	}

	if s.graph != nil {
		if err := s.graph.DeleteProject(r.Context(), projectID); err != nil {
			slog.Warn("graph projection cleanup failed", "project_id", projectID, "error", err)
		}
	}
	if s.vectors != nil {
		if err := s.vectors.DeleteProject(r.Context(), projectID.String()); err != nil {
			slog.Warn("vector projection cleanup failed", "project_id", projectID, "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleTaskStatus serves the polling endpoint.
func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	t, err := s.tasks.Get(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, pipeline.CodeNotFound, "task not found")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		*task.Task
		NextPollSeconds int `json:"next_poll_seconds"`
	}{t, s.tasks.NextPollSeconds()})
}

// handleGetTheory serves one persisted theory. Tenancy goes through the
// owning project, a cross-tenant theory id reads as missing.
func (s *Server) handleGetTheory(w http.ResponseWriter, r *http.Request) {
	theoryID, err := uuid.Parse(chi.URLParam(r, "theoryID"))
	if err != nil {
		writeError(w, pipeline.CodeNotFound, "invalid theory id")
		return
	}

	theory, err := s.db.GetTheory(r.Context(), theoryID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, pipeline.CodeNotFound, "theory not found")
			return
		}
		writeError(w, pipeline.CodeStoreFatal, "theory lookup failed")
		return
	}

	scope := s.scopeFromRequest(r)
	if _, err := s.db.GetProject(r.Context(), theory.ProjectID, scope); err != nil {
		writeError(w, pipeline.CodeNotFound, "theory not found")
		return
	}

	writeJSON(w, http.StatusOK, theory)
}

// handleLead receives a contact-lead submission. Leads are forwarded to the
// operations log, there is no lead storage in this service.
func (s *Server) handleLead(w http.ResponseWriter, r *http.Request) {
	var lead struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil || lead.Email == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": map[string]any{"code": "INVALID_LEAD", "message": "email is required"},
		})
		return
	}

	slog.Info("lead received", "email", lead.Email, "name", lead.Name)
	writeJSON(w, http.StatusAccepted, map[string]any{"status": "received"})
}

// handleHealth pings the configured dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.cfg.Server.HealthDependencies))
	healthy := true

	for _, name := range s.cfg.Server.HealthDependencies {
		ping, ok := s.pingers[name]
		if !ok {
			checks[name] = "not configured"
			healthy = false
			continue
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		if err := ping(ctx); err != nil {
			checks[name] = err.Error()
			healthy = false
		} else {
			checks[name] = "ok"
		}
		cancel()
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

func (s *Server) dispatch(ctx context.Context, t *task.Task, subjectID string) error {
	return s.dispatcher.Dispatch(ctx, task.Envelope{
		TaskID:    t.ID,
		Kind:      t.Kind,
		ProjectID: t.ProjectID,
		OwnerID:   t.OwnerID,
		SubjectID: subjectID,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("response encoding failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code, message string) {
	writeJSON(w, pipeline.HTTPStatus(code), map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}
