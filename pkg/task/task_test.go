package task

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axialab/axial/pkg/config"
)

func testTaskConfig() *config.TaskConfig {
	cfg := &config.TaskConfig{}
	cfg.SetDefaults()
	return cfg
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(testTaskConfig(), nil)
	ctx := context.Background()

	created := m.Create(ctx, KindGenerateTheory, "proj-1", "owner-1")
	assert.Equal(t, StatusQueued, created.Status)
	assert.NotEmpty(t, created.ID)

	m.MarkRunning(ctx, created.ID)
	m.SetProgress(ctx, created.ID, "paradigm", 60)

	got, err := m.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, "paradigm", got.Step)
	assert.Equal(t, 60, got.Progress)

	m.Complete(ctx, created.ID, map[string]string{"theory_id": "th-1"})
	got, err = m.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 100, got.Progress)

	var result map[string]string
	require.NoError(t, json.Unmarshal(got.Result, &result))
	assert.Equal(t, "th-1", result["theory_id"])
}

func TestManagerFail(t *testing.T) {
	m := NewManager(testTaskConfig(), nil)
	ctx := context.Background()

	created := m.Create(ctx, KindAutoCode, "proj-1", "owner-1")
	m.Fail(ctx, created.ID, "LLM_TIMEOUT", "model call timed out")

	got, err := m.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "LLM_TIMEOUT", got.Error.Code)
	assert.True(t, got.Status.IsTerminal())
}

func TestManagerUnknownTask(t *testing.T) {
	m := NewManager(testTaskConfig(), nil)
	_, err := m.Get(context.Background(), "no-such-task")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerGetReturnsSnapshot(t *testing.T) {
	m := NewManager(testTaskConfig(), nil)
	ctx := context.Background()

	created := m.Create(ctx, KindGenerateTheory, "proj-1", "owner-1")
	got, err := m.Get(ctx, created.ID)
	require.NoError(t, err)

	// Mutating the returned copy does not leak into the record.
	got.Status = StatusFailed
	again, err := m.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, again.Status)
}

func TestLocksConflictAndRelease(t *testing.T) {
	locks := NewLocks(testTaskConfig(), nil)
	ctx := context.Background()

	held, err := locks.Acquire(ctx, "proj-1")
	require.NoError(t, err)

	_, err = locks.Acquire(ctx, "proj-1")
	assert.ErrorIs(t, err, ErrLocked)

	// A different project is unaffected.
	other, err := locks.Acquire(ctx, "proj-2")
	require.NoError(t, err)
	other.Release(ctx)

	held.Release(ctx)
	reacquired, err := locks.Acquire(ctx, "proj-1")
	require.NoError(t, err)
	reacquired.Release(ctx)
}

func TestLocksExpireAndRefresh(t *testing.T) {
	locks := NewLocks(testTaskConfig(), nil)
	ctx := context.Background()

	now := time.Now()
	locks.now = func() time.Time { return now }

	held, err := locks.Acquire(ctx, "proj-1")
	require.NoError(t, err)

	// Past the TTL the lock is up for grabs.
	now = now.Add(time.Duration(locks.cfg.LockTTLSeconds+1) * time.Second)
	_, err = locks.Acquire(ctx, "proj-1")
	require.NoError(t, err)

	// A refreshed lock survives the same wait.
	now = now.Add(time.Minute)
	held2, err := locks.Acquire(ctx, "proj-2")
	require.NoError(t, err)
	now = now.Add(time.Duration(locks.cfg.LockTTLSeconds-1) * time.Second)
	held2.Refresh(ctx)
	now = now.Add(time.Duration(locks.cfg.LockTTLSeconds-1) * time.Second)
	_, err = locks.Acquire(ctx, "proj-2")
	assert.ErrorIs(t, err, ErrLocked)

	_ = held
}

func TestDispatcherRunsInProcess(t *testing.T) {
	var mu sync.Mutex
	var seen []Envelope
	done := make(chan struct{})

	d := NewDispatcher(testTaskConfig(), nil, func(_ context.Context, env Envelope) {
		mu.Lock()
		seen = append(seen, env)
		mu.Unlock()
		close(done)
	})

	err := d.Dispatch(context.Background(), Envelope{TaskID: "t1", Kind: KindGenerateTheory, ProjectID: "p1"})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 1)
	assert.Equal(t, "t1", seen[0].TaskID)
	assert.Equal(t, KindGenerateTheory, seen[0].Kind)
}

func TestEnvelopeFromValues(t *testing.T) {
	env := envelopeFromValues(map[string]any{
		"task_id":    "t1",
		"kind":       "auto_code",
		"project_id": "p1",
		"owner_id":   "o1",
		"junk":       42,
	})
	assert.Equal(t, Envelope{TaskID: "t1", Kind: KindAutoCode, ProjectID: "p1", OwnerID: "o1"}, env)
}
