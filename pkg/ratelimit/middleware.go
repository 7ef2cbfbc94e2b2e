package ratelimit

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/axialab/axial/pkg/observability"
)

// Identify extracts the quota identifier from a request: the session header
// when present, the client IP otherwise.
func Identify(r *http.Request) string {
	if sessionID := r.Header.Get("X-Session-ID"); sessionID != "" {
		return sessionID
	}
	return ClientIP(r)
}

// ClientIP resolves the originating address, honouring the first
// X-Forwarded-For hop set by the ingress.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			forwarded = forwarded[:i]
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware enforces one quota on every request passing through. Limiter
// errors fail open.
func Middleware(limiter *Limiter, quota Quota) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			decision, err := limiter.Allow(r.Context(), quota, Identify(r))
			if err != nil {
				slog.Error("rate limit check failed", "quota", quota, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if decision.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			}

			if !decision.Allowed {
				writeLimited(w, quota, decision)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeLimited(w http.ResponseWriter, quota Quota, decision Decision) {
	observability.RateLimited.WithLabelValues(string(quota)).Inc()

	retrySeconds := int64(decision.RetryAfter.Seconds())
	if retrySeconds < 1 {
		retrySeconds = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(retrySeconds, 10))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    "RATE_LIMITED",
			"message": "too many " + string(quota) + " requests, slow down",
		},
		"retry_after_seconds": retrySeconds,
	})
}
