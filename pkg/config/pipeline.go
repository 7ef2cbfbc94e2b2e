package config

import "fmt"

// PipelineConfig carries the coding- and theory-engine knobs.
type PipelineConfig struct {
	// FragmentConcurrency bounds parallel LLM classification inside one
	// interview (coding phase A).
	FragmentConcurrency int `yaml:"fragment_concurrency,omitempty" json:"fragment_concurrency,omitempty"`

	// InterviewConcurrency bounds parallel auto-coding across interviews
	// during theory preflight. Each interview runs under its own session.
	InterviewConcurrency int `yaml:"interview_concurrency,omitempty" json:"interview_concurrency,omitempty"`

	// RetrievalConcurrency bounds parallel vector queries during semantic
	// evidence assembly.
	RetrievalConcurrency int `yaml:"retrieval_concurrency,omitempty" json:"retrieval_concurrency,omitempty"`

	// TopCentralCategories is the number of central categories that receive
	// semantic evidence retrieval.
	TopCentralCategories int `yaml:"top_central_categories,omitempty" json:"top_central_categories,omitempty"`

	// EvidencePerCategory is the number of fragments retrieved per category.
	EvidencePerCategory int `yaml:"evidence_per_category,omitempty" json:"evidence_per_category,omitempty"`

	// BudgetMargin is the safety margin in tokens the budgeter reserves on
	// top of the stage's output cap.
	BudgetMargin int `yaml:"budget_margin,omitempty" json:"budget_margin,omitempty"`

	// BudgetMaxSteps caps the number of payload degradation steps.
	BudgetMaxSteps int `yaml:"budget_max_steps,omitempty" json:"budget_max_steps,omitempty"`

	// StepTimeout is the per-projection-step timeout in seconds (graph sync,
	// vector sync, metrics queries).
	StepTimeout int `yaml:"step_timeout,omitempty" json:"step_timeout,omitempty"`

	// TemplateKey selects the default domain vocabulary for prompt assembly.
	TemplateKey string `yaml:"template_key,omitempty" json:"template_key,omitempty"`

	// PromptVersion is recorded in theory provenance.
	PromptVersion string `yaml:"prompt_version,omitempty" json:"prompt_version,omitempty"`

	// UseJudge enables the deterministic theory validator.
	UseJudge *bool `yaml:"use_judge,omitempty" json:"use_judge,omitempty"`

	// JudgeWarnOnly forces warn-only mode regardless of the rollout policy.
	JudgeWarnOnly *bool `yaml:"judge_warn_only,omitempty" json:"judge_warn_only,omitempty"`

	// SyncClaimsGraph enables claim projection into the graph store.
	SyncClaimsGraph *bool `yaml:"sync_claims_graph,omitempty" json:"sync_claims_graph,omitempty"`

	// SyncClaimsVector enables claim-text embeddings in the vector store.
	SyncClaimsVector *bool `yaml:"sync_claims_vector,omitempty" json:"sync_claims_vector,omitempty"`

	// UseSubgraphEvidence includes the graph co-occurrence summary in the
	// LLM stage payloads.
	UseSubgraphEvidence *bool `yaml:"use_subgraph_evidence,omitempty" json:"use_subgraph_evidence,omitempty"`

	// UseDeterministicRouting pins each stage to its configured model
	// instead of consulting the router.
	UseDeterministicRouting *bool `yaml:"use_deterministic_routing,omitempty" json:"use_deterministic_routing,omitempty"`
}

// SetDefaults applies default values.
func (c *PipelineConfig) SetDefaults() {
	if c.FragmentConcurrency == 0 {
		c.FragmentConcurrency = 8
	}
	if c.InterviewConcurrency == 0 {
		c.InterviewConcurrency = 3
	}
	if c.RetrievalConcurrency == 0 {
		c.RetrievalConcurrency = 8
	}
	if c.TopCentralCategories == 0 {
		c.TopCentralCategories = 6
	}
	if c.EvidencePerCategory == 0 {
		c.EvidencePerCategory = 5
	}
	if c.BudgetMargin == 0 {
		c.BudgetMargin = 1024
	}
	if c.BudgetMaxSteps == 0 {
		c.BudgetMaxSteps = 12
	}
	if c.StepTimeout == 0 {
		c.StepTimeout = 60
	}
	if c.TemplateKey == "" {
		c.TemplateKey = "generic"
	}
	if c.PromptVersion == "" {
		c.PromptVersion = "v2"
	}
	if c.UseJudge == nil {
		c.UseJudge = BoolPtr(true)
	}
	if c.JudgeWarnOnly == nil {
		c.JudgeWarnOnly = BoolPtr(false)
	}
	if c.SyncClaimsGraph == nil {
		c.SyncClaimsGraph = BoolPtr(true)
	}
	if c.SyncClaimsVector == nil {
		c.SyncClaimsVector = BoolPtr(false)
	}
	if c.UseSubgraphEvidence == nil {
		c.UseSubgraphEvidence = BoolPtr(true)
	}
	if c.UseDeterministicRouting == nil {
		c.UseDeterministicRouting = BoolPtr(true)
	}
}

// Validate checks the pipeline configuration.
func (c *PipelineConfig) Validate() error {
	if c.FragmentConcurrency < 1 {
		return fmt.Errorf("pipeline.fragment_concurrency must be positive")
	}
	if c.InterviewConcurrency < 1 {
		return fmt.Errorf("pipeline.interview_concurrency must be positive")
	}
	if c.RetrievalConcurrency < 1 {
		return fmt.Errorf("pipeline.retrieval_concurrency must be positive")
	}
	if c.BudgetMaxSteps < 1 {
		return fmt.Errorf("pipeline.budget_max_steps must be positive")
	}
	switch c.TemplateKey {
	case "generic", "education", "ngo", "government", "market_research":
	default:
		return fmt.Errorf("unknown pipeline.template_key %q", c.TemplateKey)
	}
	return nil
}
