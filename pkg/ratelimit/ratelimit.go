// Package ratelimit enforces sliding-window request quotas.
//
// Two quotas are configured: chat requests and contact-lead submissions.
// Counting runs against Redis when configured, so limits hold across
// replicas; otherwise an in-process store serves single-instance
// deployments. Store failures fail open: a broken limiter must not take the
// API down with it.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/axialab/axial/pkg/config"
)

// Quota names one configured limit.
type Quota string

const (
	QuotaChat  Quota = "chat"
	QuotaLeads Quota = "leads"
)

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Store counts events inside a sliding window.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Take records one event under key and reports whether the window of
	// the given length already held max events. The recorded event counts
	// against subsequent calls even when the answer is "denied": retries
	// are not free.
	Take(ctx context.Context, key string, window time.Duration, max int) (Decision, error)

	// Close releases store resources.
	Close() error
}

// Limiter applies the configured quotas.
type Limiter struct {
	cfg   *config.RateLimitConfig
	store Store
}

// New builds a limiter over the given store.
func New(cfg *config.RateLimitConfig, store Store) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rate limit config: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	return &Limiter{cfg: cfg, store: store}, nil
}

// Allow checks one request against a quota. The identifier is typically the
// session id or the client IP.
func (l *Limiter) Allow(ctx context.Context, quota Quota, identifier string) (Decision, error) {
	if !l.cfg.IsEnabled() {
		return Decision{Allowed: true}, nil
	}
	if identifier == "" {
		return Decision{}, fmt.Errorf("identifier cannot be empty")
	}

	rule := l.rule(quota)
	key := fmt.Sprintf("%s:ratelimit:%s:%s", l.cfg.Namespace, quota, identifier)
	return l.store.Take(ctx, key, time.Duration(rule.WindowSeconds)*time.Second, rule.MaxRequests)
}

func (l *Limiter) rule(quota Quota) config.RateLimitRule {
	switch quota {
	case QuotaLeads:
		return l.cfg.Leads
	default:
		return l.cfg.Chat
	}
}

// Close releases the underlying store.
func (l *Limiter) Close() error {
	return l.store.Close()
}

// Ensure interface compliance at compile time.
var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
