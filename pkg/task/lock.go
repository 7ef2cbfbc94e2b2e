package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/axialab/axial/pkg/config"
)

// ErrLocked reports that another pipeline run holds the project lock.
var ErrLocked = errors.New("a pipeline run is already active for this project")

// releaseScript deletes the lock only when the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// refreshScript extends the lock only when the caller still owns it.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("EXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Locks hands out per-project pipeline locks. With Redis the lock holds
// across replicas; without it the lock is process-local. Locks expire after
// the configured TTL so a crashed holder cannot wedge a project, holders
// refresh from the pipeline step hook.
type Locks struct {
	cfg    *config.TaskConfig
	client *redis.Client

	mu    sync.Mutex
	local map[string]localLock

	// now is overridable for tests.
	now func() time.Time
}

type localLock struct {
	token     string
	expiresAt time.Time
}

// NewLocks builds the lock registry. client may be nil.
func NewLocks(cfg *config.TaskConfig, client *redis.Client) *Locks {
	return &Locks{
		cfg:    cfg,
		client: client,
		local:  make(map[string]localLock),
		now:    time.Now,
	}
}

// Lock is one held project lock.
type Lock struct {
	locks     *Locks
	projectID string
	token     string
}

// Acquire takes the project lock or fails with ErrLocked.
func (l *Locks) Acquire(ctx context.Context, projectID string) (*Lock, error) {
	token := uuid.NewString()
	ttl := l.ttl()

	if l.client != nil {
		ok, err := l.client.SetNX(ctx, l.key(projectID), token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrLocked
		}
		return &Lock{locks: l, projectID: projectID, token: token}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if held, ok := l.local[projectID]; ok && held.expiresAt.After(now) {
		return nil, ErrLocked
	}
	l.local[projectID] = localLock{token: token, expiresAt: now.Add(ttl)}
	return &Lock{locks: l, projectID: projectID, token: token}, nil
}

// Refresh extends the lock TTL. A lock lost to expiry is logged, not fatal:
// the run finishes and the superseding run wins the projections.
func (lk *Lock) Refresh(ctx context.Context) {
	l := lk.locks
	ttl := l.ttl()

	if l.client != nil {
		kept, err := refreshScript.Run(ctx, l.client, []string{l.key(lk.projectID)}, lk.token, int(ttl.Seconds())).Int()
		if err != nil {
			slog.Warn("lock refresh failed", "project_id", lk.projectID, "error", err)
			return
		}
		if kept == 0 {
			slog.Warn("lock expired mid-run", "project_id", lk.projectID)
		}
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.local[lk.projectID]; ok && held.token == lk.token {
		held.expiresAt = l.now().Add(ttl)
		l.local[lk.projectID] = held
	}
}

// Release drops the lock if still held by this holder.
func (lk *Lock) Release(ctx context.Context) {
	l := lk.locks

	if l.client != nil {
		if _, err := releaseScript.Run(ctx, l.client, []string{l.key(lk.projectID)}, lk.token).Result(); err != nil {
			slog.Warn("lock release failed", "project_id", lk.projectID, "error", err)
		}
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.local[lk.projectID]; ok && held.token == lk.token {
		delete(l.local, lk.projectID)
	}
}

// Held reports whether some run currently holds the project lock. Used by
// the API for a fast 409; the executor's Acquire stays authoritative.
func (l *Locks) Held(ctx context.Context, projectID string) bool {
	if l.client != nil {
		n, err := l.client.Exists(ctx, l.key(projectID)).Result()
		if err != nil {
			slog.Warn("lock probe failed", "project_id", projectID, "error", err)
			return false
		}
		return n > 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	held, ok := l.local[projectID]
	return ok && held.expiresAt.After(l.now())
}

func (l *Locks) ttl() time.Duration {
	return time.Duration(l.cfg.LockTTLSeconds) * time.Second
}

func (l *Locks) key(projectID string) string {
	return "axial:lock:project:" + projectID
}
