// Package task tracks background pipeline runs.
//
// A Task is one asynchronous pipeline execution: theory generation or
// interview auto-coding. Records live in process for fast polling and are
// mirrored to Redis with a TTL when Redis is configured, so any replica can
// answer status requests. The package also owns the per-project pipeline
// lock and the dispatch path (in-process goroutine or Redis stream).
package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/axialab/axial/pkg/config"
)

// Status is the task lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transitions happen.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Kind names the work a task performs.
type Kind string

const (
	KindGenerateTheory Kind = "generate_theory"
	KindAutoCode       Kind = "auto_code"
)

// ErrorInfo carries a stable error code plus a human-readable message.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Task is one tracked background run.
type Task struct {
	ID        string          `json:"task_id"`
	Kind      Kind            `json:"kind"`
	ProjectID string          `json:"project_id"`
	OwnerID   string          `json:"owner_id"`
	Status    Status          `json:"status"`
	Step      string          `json:"step,omitempty"`
	Progress  int             `json:"progress"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *ErrorInfo      `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ErrNotFound reports an unknown or expired task id.
var ErrNotFound = errors.New("task not found")

// Manager owns the task records.
type Manager struct {
	cfg    *config.TaskConfig
	client *redis.Client

	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewManager builds a manager. client may be nil for in-process-only
// deployments.
func NewManager(cfg *config.TaskConfig, client *redis.Client) *Manager {
	return &Manager{
		cfg:    cfg,
		client: client,
		tasks:  make(map[string]*Task),
	}
}

// Create registers a queued task and mirrors it.
func (m *Manager) Create(ctx context.Context, kind Kind, projectID, ownerID string) *Task {
	now := time.Now().UTC()
	t := &Task{
		ID:        uuid.NewString(),
		Kind:      kind,
		ProjectID: projectID,
		OwnerID:   ownerID,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.pruneLocked(now)
	m.tasks[t.ID] = t
	snapshot := *t
	m.mu.Unlock()

	m.mirror(ctx, &snapshot)
	return &snapshot
}

// Get returns a copy of the task, consulting Redis for tasks started by
// another replica.
func (m *Manager) Get(ctx context.Context, id string) (*Task, error) {
	m.mu.RLock()
	t, ok := m.tasks[id]
	if ok {
		snapshot := *t
		m.mu.RUnlock()
		return &snapshot, nil
	}
	m.mu.RUnlock()

	if m.client == nil {
		return nil, ErrNotFound
	}
	data, err := m.client.Get(ctx, m.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", id, err)
	}

	var mirrored Task
	if err := json.Unmarshal(data, &mirrored); err != nil {
		return nil, fmt.Errorf("corrupt task record %s: %w", id, err)
	}
	return &mirrored, nil
}

// MarkRunning transitions a task to running.
func (m *Manager) MarkRunning(ctx context.Context, id string) {
	m.update(ctx, id, func(t *Task) {
		t.Status = StatusRunning
	})
}

// SetProgress records the current step and progress percentage.
func (m *Manager) SetProgress(ctx context.Context, id, step string, progress int) {
	m.update(ctx, id, func(t *Task) {
		t.Step = step
		t.Progress = progress
	})
}

// Complete finishes a task with its result document.
func (m *Manager) Complete(ctx context.Context, id string, result any) {
	encoded, err := json.Marshal(result)
	if err != nil {
		slog.Error("failed to encode task result", "task_id", id, "error", err)
		m.Fail(ctx, id, "STORE_ERROR", "result encoding failed")
		return
	}
	m.update(ctx, id, func(t *Task) {
		t.Status = StatusCompleted
		t.Progress = 100
		t.Step = "done"
		t.Result = encoded
	})
}

// Fail finishes a task with a stable error code.
func (m *Manager) Fail(ctx context.Context, id, code, message string) {
	m.update(ctx, id, func(t *Task) {
		t.Status = StatusFailed
		t.Error = &ErrorInfo{Code: code, Message: message}
	})
}

func (m *Manager) update(ctx context.Context, id string, apply func(*Task)) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	if !ok {
		m.mu.Unlock()
		slog.Warn("update for unknown task", "task_id", id)
		return
	}
	apply(t)
	t.UpdatedAt = time.Now().UTC()
	snapshot := *t
	m.mu.Unlock()

	m.mirror(ctx, &snapshot)
}

// mirror writes the record to Redis with the configured TTL. Mirroring is
// best effort: local state remains authoritative for this replica.
func (m *Manager) mirror(ctx context.Context, t *Task) {
	if m.client == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		slog.Error("failed to encode task for mirroring", "task_id", t.ID, "error", err)
		return
	}
	ttl := time.Duration(m.cfg.TTLSeconds) * time.Second
	if err := m.client.Set(ctx, m.key(t.ID), data, ttl).Err(); err != nil {
		slog.Warn("task mirroring failed", "task_id", t.ID, "error", err)
	}
}

// pruneLocked drops terminal tasks past their TTL. Caller holds the lock.
func (m *Manager) pruneLocked(now time.Time) {
	ttl := time.Duration(m.cfg.TTLSeconds) * time.Second
	for id, t := range m.tasks {
		if t.Status.IsTerminal() && now.Sub(t.UpdatedAt) > ttl {
			delete(m.tasks, id)
		}
	}
}

func (m *Manager) key(id string) string {
	return "axial:task:" + id
}

// NextPollSeconds is the polling backoff the API suggests to clients.
func (m *Manager) NextPollSeconds() int {
	return m.cfg.NextPollSeconds
}
