// Package httpclient provides an HTTP client with retry and backoff for
// talking to model endpoints.
package httpclient

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryStrategy classifies how a failed request should be retried.
type RetryStrategy int

const (
	// NoRetry fails immediately.
	NoRetry RetryStrategy = iota
	// ConservativeRetry allows a couple of quick retries on server errors.
	ConservativeRetry
	// SmartRetry honours Retry-After and backs off exponentially.
	SmartRetry
)

// Client wraps http.Client with retry behaviour.
type Client struct {
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
	strategy   func(statusCode int) RetryStrategy
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithMaxRetries sets the retry budget.
func WithMaxRetries(max int) Option {
	return func(c *Client) {
		c.maxRetries = max
	}
}

// WithBaseDelay sets the base backoff delay.
func WithBaseDelay(delay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = delay
	}
}

// New builds a Client with the given options.
func New(opts ...Option) *Client {
	client := &Client{
		client:     &http.Client{Timeout: 120 * time.Second},
		maxRetries: 3,
		baseDelay:  2 * time.Second,
		strategy:   DefaultRetryStrategy,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// DefaultRetryStrategy maps status codes to retry strategies.
func DefaultRetryStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// Do executes the request, retrying per strategy. The request context bounds
// the whole retry loop: a cancelled context aborts the sleep between attempts.
// On error the response is nil and every received body has been closed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to recreate request body for retry: %w", err)
			}
			req.Body = body
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Transport-level error: no response to inspect.
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		strategy := c.strategy(resp.StatusCode)
		lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)

		if strategy == NoRetry || attempt >= c.maxRetries {
			if strategy == NoRetry {
				snippet := readSnippet(resp.Body)
				resp.Body.Close()
				if snippet != "" {
					return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet)
				}
				return nil, lastErr
			}
			resp.Body.Close()
			return nil, &RetryableError{
				StatusCode: resp.StatusCode,
				Message:    fmt.Sprintf("max HTTP retries (%d) exceeded", c.maxRetries),
				Err:        lastErr,
			}
		}

		delay := c.delay(strategy, attempt, resp.Header)
		resp.Body.Close()
		if delay == 0 {
			return nil, lastErr
		}

		slog.Debug("retrying HTTP request",
			"status", resp.StatusCode, "attempt", attempt+1, "delay", delay)

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// readSnippet drains up to 512 bytes of an error response for diagnostics.
func readSnippet(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func (c *Client) delay(strategy RetryStrategy, attempt int, header http.Header) time.Duration {
	switch strategy {
	case SmartRetry:
		if retryAfter := header.Get("Retry-After"); retryAfter != "" {
			if secs, err := strconv.Atoi(retryAfter); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
		exponential := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
		jitter := time.Duration(float64(exponential) * 0.1)
		return exponential + jitter
	case ConservativeRetry:
		if attempt >= 2 {
			return 0
		}
		return time.Duration(2+attempt) * time.Second
	default:
		return 0
	}
}
