// Package config defines the configuration surface of axial.
//
// Each concern owns a config struct with yaml/json tags plus SetDefaults and
// Validate methods. The root Config ties them together and applies the
// environment profile (production, staging, development) before explicit
// values are considered. Contradictions between the profile and explicit
// values are returned as startup issues, never silently resolved.
package config

import (
	"fmt"
	"strings"
)

// Environment names the deployment profile.
type Environment string

const (
	EnvProduction  Environment = "production"
	EnvStaging     Environment = "staging"
	EnvDevelopment Environment = "development"
)

// Config is the root configuration.
type Config struct {
	// Environment selects the deployment profile.
	Environment Environment `yaml:"environment,omitempty" json:"environment,omitempty"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level,omitempty" json:"log_level,omitempty"`

	// LogFormat is "text" or "json".
	LogFormat string `yaml:"log_format,omitempty" json:"log_format,omitempty"`

	LLM       LLMConfig       `yaml:"llm,omitempty" json:"llm,omitempty"`
	Database  DatabaseConfig  `yaml:"database,omitempty" json:"database,omitempty"`
	Graph     GraphConfig     `yaml:"graph,omitempty" json:"graph,omitempty"`
	Vector    VectorConfig    `yaml:"vector,omitempty" json:"vector,omitempty"`
	Redis     RedisConfig     `yaml:"redis,omitempty" json:"redis,omitempty"`
	Pipeline  PipelineConfig  `yaml:"pipeline,omitempty" json:"pipeline,omitempty"`
	Judge     JudgeConfig     `yaml:"judge,omitempty" json:"judge,omitempty"`
	Task      TaskConfig      `yaml:"task,omitempty" json:"task,omitempty"`
	RateLimit RateLimitConfig `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	Server    ServerConfig    `yaml:"server,omitempty" json:"server,omitempty"`
}

// SetDefaults applies the environment profile, then per-section defaults.
// Profile defaults only fill values the user left unset.
func (c *Config) SetDefaults() {
	if c.Environment == "" {
		c.Environment = EnvDevelopment
	}

	switch c.Environment {
	case EnvProduction:
		if c.LogLevel == "" {
			c.LogLevel = "info"
		}
		if c.LogFormat == "" {
			c.LogFormat = "json"
		}
		if c.Pipeline.JudgeWarnOnly == nil {
			c.Pipeline.JudgeWarnOnly = BoolPtr(false)
		}
	case EnvStaging:
		if c.LogLevel == "" {
			c.LogLevel = "debug"
		}
		if c.Pipeline.JudgeWarnOnly == nil {
			c.Pipeline.JudgeWarnOnly = BoolPtr(true)
		}
	default:
		if c.LogLevel == "" {
			c.LogLevel = "debug"
		}
		if c.LogFormat == "" {
			c.LogFormat = "text"
		}
	}

	c.LLM.SetDefaults()
	c.Database.SetDefaults()
	c.Graph.SetDefaults()
	c.Vector.SetDefaults()
	c.Redis.SetDefaults()
	c.Pipeline.SetDefaults()
	c.Judge.SetDefaults()
	c.Task.SetDefaults()
	c.RateLimit.SetDefaults()
	c.Server.SetDefaults()
}

// Validate checks the whole configuration, including profile contradictions.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvProduction, EnvStaging, EnvDevelopment:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	validators := []func() error{
		c.LLM.Validate,
		c.Database.Validate,
		c.Graph.Validate,
		c.Vector.Validate,
		c.Redis.Validate,
		c.Pipeline.Validate,
		c.Judge.Validate,
		c.Task.Validate,
		c.RateLimit.Validate,
		c.Server.Validate,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}

	if issues := c.Issues(); len(issues) > 0 {
		return fmt.Errorf("configuration contradicts the %s profile: %s",
			c.Environment, strings.Join(issues, "; "))
	}
	return nil
}

// Issues returns profile contradictions. These are hard startup failures:
// the profile states an expectation and the explicit configuration breaks it.
func (c *Config) Issues() []string {
	var issues []string

	if c.Environment == EnvProduction && c.LLM.Mock() {
		issues = append(issues, "llm.api_key is empty, the mock gateway cannot serve production")
	}
	if !c.Redis.Enabled() && c.Task.UseExternalQueue != nil && *c.Task.UseExternalQueue {
		issues = append(issues, "task.use_external_queue requires redis.addr")
	}
	if c.Environment == EnvProduction && !c.RateLimit.IsEnabled() {
		issues = append(issues, "rate_limit.enabled=false is not allowed in production")
	}
	return issues
}

// BoolPtr returns a pointer to the given bool.
func BoolPtr(b bool) *bool {
	return &b
}
