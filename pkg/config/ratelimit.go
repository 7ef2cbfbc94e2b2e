package config

import "fmt"

// RateLimitConfig defines the sliding-window request quotas.
//
// Two independent quotas are recognised: chat requests and contact-lead
// submissions. Keys are composed of (namespace, client IP, session id).
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Namespace prefixes all limiter keys.
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`

	// Chat is the quota applied to chat requests.
	Chat RateLimitRule `yaml:"chat,omitempty" json:"chat,omitempty"`

	// Leads is the quota applied to contact-lead submissions.
	Leads RateLimitRule `yaml:"leads,omitempty" json:"leads,omitempty"`
}

// RateLimitRule is a single (window, limit) tuple.
type RateLimitRule struct {
	// WindowSeconds is the sliding window length.
	WindowSeconds int `yaml:"window_seconds,omitempty" json:"window_seconds,omitempty"`

	// MaxRequests is the maximum allowed inside the window.
	MaxRequests int `yaml:"max_requests,omitempty" json:"max_requests,omitempty"`
}

// IsEnabled returns true if rate limiting is enabled.
func (c *RateLimitConfig) IsEnabled() bool {
	return c != nil && c.Enabled != nil && *c.Enabled
}

// SetDefaults applies default values.
func (c *RateLimitConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.Namespace == "" {
		c.Namespace = "axial"
	}
	if c.Chat.WindowSeconds == 0 {
		c.Chat = RateLimitRule{WindowSeconds: 60, MaxRequests: 30}
	}
	if c.Leads.WindowSeconds == 0 {
		c.Leads = RateLimitRule{WindowSeconds: 3600, MaxRequests: 5}
	}
}

// Validate checks the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	if !c.IsEnabled() {
		return nil
	}
	for name, rule := range map[string]RateLimitRule{"chat": c.Chat, "leads": c.Leads} {
		if rule.WindowSeconds < 1 {
			return fmt.Errorf("rate_limit.%s.window_seconds must be positive", name)
		}
		if rule.MaxRequests < 1 {
			return fmt.Errorf("rate_limit.%s.max_requests must be positive", name)
		}
	}
	return nil
}
