package config

import "fmt"

// JudgeConfig carries thresholds for the deterministic theory validator and
// the rollout policy that governs strict vs warn-only mode.
type JudgeConfig struct {
	// MinInterviews is the configured minimum number of distinct interviews
	// that must cite evidence in a theory.
	MinInterviews int `yaml:"min_interviews,omitempty" json:"min_interviews,omitempty"`

	// AdaptiveThresholds downscales MinInterviews for small projects:
	// effective = min(configured, ceil(available * AdaptiveRatio)), never
	// exceeding the available interview count.
	AdaptiveThresholds *bool `yaml:"adaptive_thresholds,omitempty" json:"adaptive_thresholds,omitempty"`

	// AdaptiveRatio is the fraction of available interviews required when
	// adaptive thresholds are on.
	AdaptiveRatio float64 `yaml:"adaptive_ratio,omitempty" json:"adaptive_ratio,omitempty"`

	// BalanceMinEvidence is the evidence-count floor below which the
	// consequence balance check degrades from error to warning.
	BalanceMinEvidence int `yaml:"balance_min_evidence,omitempty" json:"balance_min_evidence,omitempty"`

	// MaxSharePerInterview is the fraction of cited evidence a single
	// interview may contribute before a concentration warning is raised.
	MaxSharePerInterview float64 `yaml:"max_share_per_interview,omitempty" json:"max_share_per_interview,omitempty"`

	// UnknownConstructRatio is the fraction of out-of-category constructs
	// that triggers UNKNOWN_CONSTRUCTS.
	UnknownConstructRatio float64 `yaml:"unknown_construct_ratio,omitempty" json:"unknown_construct_ratio,omitempty"`

	// MinPropositions is the minimum proposition count.
	MinPropositions int `yaml:"min_propositions,omitempty" json:"min_propositions,omitempty"`

	// Rollout governs strict-mode promotion and demotion.
	Rollout RolloutConfig `yaml:"rollout,omitempty" json:"rollout,omitempty"`
}

// RolloutConfig is the meta-validator that flips the judge between strict
// and warn-only mode based on the recent judge history of a project.
type RolloutConfig struct {
	// Window is the number of recent theories inspected.
	Window int `yaml:"window,omitempty" json:"window,omitempty"`

	// MinTheories is the number of clean runs in the window required before
	// promotion to strict mode.
	MinTheories int `yaml:"min_theories,omitempty" json:"min_theories,omitempty"`

	// PromoteMaxBad is the maximum bad-run count tolerated for promotion.
	PromoteMaxBad int `yaml:"promote_max_bad,omitempty" json:"promote_max_bad,omitempty"`

	// DegradeMinBad is the bad-run count at which strict mode demotes to
	// warn-only.
	DegradeMinBad int `yaml:"degrade_min_bad,omitempty" json:"degrade_min_bad,omitempty"`

	// CooldownRuns is the number of runs after a mode change during which
	// no further change happens.
	CooldownRuns int `yaml:"cooldown_runs,omitempty" json:"cooldown_runs,omitempty"`

	// MaxModeChangesPerWindow caps mode flips inside one window.
	MaxModeChangesPerWindow int `yaml:"max_mode_changes_per_window,omitempty" json:"max_mode_changes_per_window,omitempty"`
}

// SetDefaults applies default values.
func (c *JudgeConfig) SetDefaults() {
	if c.MinInterviews == 0 {
		c.MinInterviews = 3
	}
	if c.AdaptiveThresholds == nil {
		c.AdaptiveThresholds = BoolPtr(true)
	}
	if c.AdaptiveRatio == 0 {
		c.AdaptiveRatio = 0.6
	}
	if c.BalanceMinEvidence == 0 {
		c.BalanceMinEvidence = 8
	}
	if c.MaxSharePerInterview == 0 {
		c.MaxSharePerInterview = 0.8
	}
	if c.UnknownConstructRatio == 0 {
		c.UnknownConstructRatio = 0.4
	}
	if c.MinPropositions == 0 {
		c.MinPropositions = 5
	}
	if c.Rollout.Window == 0 {
		c.Rollout.Window = 10
	}
	if c.Rollout.MinTheories == 0 {
		c.Rollout.MinTheories = 3
	}
	if c.Rollout.DegradeMinBad == 0 {
		c.Rollout.DegradeMinBad = 3
	}
	if c.Rollout.CooldownRuns == 0 {
		c.Rollout.CooldownRuns = 2
	}
	if c.Rollout.MaxModeChangesPerWindow == 0 {
		c.Rollout.MaxModeChangesPerWindow = 2
	}
}

// Validate checks the judge configuration.
func (c *JudgeConfig) Validate() error {
	if c.MinInterviews < 1 {
		return fmt.Errorf("judge.min_interviews must be positive")
	}
	if c.AdaptiveRatio <= 0 || c.AdaptiveRatio > 1 {
		return fmt.Errorf("judge.adaptive_ratio must be in (0,1]")
	}
	if c.MaxSharePerInterview <= 0 || c.MaxSharePerInterview > 1 {
		return fmt.Errorf("judge.max_share_per_interview must be in (0,1]")
	}
	if c.UnknownConstructRatio <= 0 || c.UnknownConstructRatio > 1 {
		return fmt.Errorf("judge.unknown_construct_ratio must be in (0,1]")
	}
	if c.Rollout.Window < 1 {
		return fmt.Errorf("judge.rollout.window must be positive")
	}
	if c.Rollout.MinTheories > c.Rollout.Window {
		return fmt.Errorf("judge.rollout.min_theories cannot exceed the window")
	}
	if c.Rollout.DegradeMinBad <= c.Rollout.PromoteMaxBad {
		return fmt.Errorf("judge.rollout.degrade_min_bad must exceed promote_max_bad")
	}
	return nil
}
