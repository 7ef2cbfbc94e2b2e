// Package pipeline composes the coding and theory engines into runnable
// background tasks: lock handling, progress reporting, error-code mapping
// and metrics live here, the engines stay transport-agnostic.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/axialab/axial/pkg/observability"
	"github.com/axialab/axial/pkg/store"
	"github.com/axialab/axial/pkg/task"
	"github.com/axialab/axial/pkg/theory"
)

// TheoryRunner is the theory engine surface the pipeline consumes.
type TheoryRunner interface {
	GenerateTheory(ctx context.Context, projectID uuid.UUID, scope store.Scope, req theory.Request, hooks theory.Hooks) (*store.Theory, error)
}

// Coder is the coding engine surface the pipeline consumes.
type Coder interface {
	AutoCodeInterview(ctx context.Context, projectID, interviewID uuid.UUID, scope store.Scope, runID string) error
}

// Service executes dispatched task envelopes.
type Service struct {
	theory TheoryRunner
	coder  Coder
	tasks  *task.Manager
	locks  *task.Locks
}

// New builds the pipeline service.
func New(theoryRunner TheoryRunner, coder Coder, tasks *task.Manager, locks *task.Locks) *Service {
	return &Service{theory: theoryRunner, coder: coder, tasks: tasks, locks: locks}
}

// Handle executes one envelope. It is wired as the task.Dispatcher handler
// and as the worker handler, so in-process and queued runs share one path.
func (s *Service) Handle(ctx context.Context, env task.Envelope) {
	started := time.Now()
	switch env.Kind {
	case task.KindGenerateTheory:
		s.runTheory(ctx, env, started)
	case task.KindAutoCode:
		s.runAutoCode(ctx, env, started)
	default:
		slog.Error("unknown task kind", "task_id", env.TaskID, "kind", env.Kind)
		s.tasks.Fail(ctx, env.TaskID, CodeStoreFatal, "unknown task kind")
	}
}

func (s *Service) runTheory(ctx context.Context, env task.Envelope, started time.Time) {
	projectID, err := uuid.Parse(env.ProjectID)
	if err != nil {
		s.fail(ctx, env, started, CodeNotFound, "invalid project id")
		return
	}

	lock, err := s.locks.Acquire(ctx, env.ProjectID)
	if err != nil {
		code := Code(err)
		s.fail(ctx, env, started, code, "project is locked by another run")
		return
	}
	defer lock.Release(ctx)

	s.tasks.MarkRunning(ctx, env.TaskID)

	lastStep := "queued"
	lastAt := started
	hooks := theory.Hooks{
		MarkStep: func(step string, progress int) {
			now := time.Now()
			observability.StageDuration.WithLabelValues(lastStep).Observe(now.Sub(lastAt).Seconds())
			lastStep, lastAt = step, now
			s.tasks.SetProgress(ctx, env.TaskID, step, progress)
		},
		RefreshLock: func() {
			lock.Refresh(ctx)
		},
	}

	result, err := s.theory.GenerateTheory(ctx, projectID, store.Scope{OwnerID: env.OwnerID}, theory.Request{TaskID: env.TaskID}, hooks)
	if err != nil {
		code := Code(err)
		slog.Error("theory generation failed",
			"task_id", env.TaskID, "project_id", env.ProjectID, "code", code, "error", err)
		s.fail(ctx, env, started, code, err.Error())
		return
	}

	s.tasks.Complete(ctx, env.TaskID, map[string]any{
		"theory_id":        result.ID.String(),
		"version":          result.Version,
		"confidence_score": result.ConfidenceScore,
		"status":           result.Status,
	})
	observability.ObserveRun(string(env.Kind), "completed", started)
}

func (s *Service) runAutoCode(ctx context.Context, env task.Envelope, started time.Time) {
	projectID, err := uuid.Parse(env.ProjectID)
	if err != nil {
		s.fail(ctx, env, started, CodeNotFound, "invalid project id")
		return
	}
	interviewID, err := uuid.Parse(env.SubjectID)
	if err != nil {
		s.fail(ctx, env, started, CodeNotFound, "invalid interview id")
		return
	}

	s.tasks.MarkRunning(ctx, env.TaskID)

	scope := store.Scope{OwnerID: env.OwnerID}
	if err := s.coder.AutoCodeInterview(ctx, projectID, interviewID, scope, env.TaskID); err != nil {
		code := Code(err)
		slog.Error("auto-coding failed",
			"task_id", env.TaskID, "interview_id", env.SubjectID, "code", code, "error", err)
		s.fail(ctx, env, started, code, err.Error())
		return
	}

	s.tasks.Complete(ctx, env.TaskID, map[string]any{
		"interview_id": env.SubjectID,
		"status":       "coded",
	})
	observability.ObserveRun(string(env.Kind), "completed", started)
}

func (s *Service) fail(ctx context.Context, env task.Envelope, started time.Time, code, message string) {
	s.tasks.Fail(ctx, env.TaskID, code, message)
	observability.PipelineErrors.WithLabelValues(code).Inc()
	observability.ObserveRun(string(env.Kind), "failed", started)
}
