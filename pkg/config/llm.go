package config

import "fmt"

// LLMConfig configures the language-model gateway.
//
// The gateway exposes three logical model roles: a reasoning model for the
// heavy analytical stages, a fast model for lightweight stages, and an
// embedding model. When APIKey is empty the gateway runs in mock mode and
// returns deterministic outputs shaped per caller.
type LLMConfig struct {
	// BaseURL is the OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// APIKey authenticates against the endpoint. Empty enables mock mode.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// ReasoningModel is used for the central-category and paradigm stages.
	ReasoningModel string `yaml:"reasoning_model,omitempty" json:"reasoning_model,omitempty"`

	// FastModel is used for saturation analysis and fragment classification.
	FastModel string `yaml:"fast_model,omitempty" json:"fast_model,omitempty"`

	// EmbeddingModel produces fragment and claim embeddings.
	EmbeddingModel string `yaml:"embedding_model,omitempty" json:"embedding_model,omitempty"`

	// EmbeddingDimensions is the vector width of the embedding model.
	EmbeddingDimensions int `yaml:"embedding_dimensions,omitempty" json:"embedding_dimensions,omitempty"`

	// ContextLimits maps model name to its context window in tokens.
	ContextLimits map[string]int `yaml:"context_limits,omitempty" json:"context_limits,omitempty"`

	// MaxOutputTokens maps pipeline stage name to its output token cap.
	MaxOutputTokens map[string]int `yaml:"max_output_tokens,omitempty" json:"max_output_tokens,omitempty"`

	// Timeout is the per-call timeout in seconds.
	Timeout int `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// MaxRetries is the per-call retry budget for transient failures.
	MaxRetries int `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`

	// RetryDelay is the base retry delay in seconds.
	RetryDelay int `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty"`
}

// Mock reports whether the gateway should return deterministic mock outputs.
func (c *LLMConfig) Mock() bool {
	return c.APIKey == ""
}

// ContextLimit returns the context window for a model, with a safe default.
func (c *LLMConfig) ContextLimit(model string) int {
	if limit, ok := c.ContextLimits[model]; ok {
		return limit
	}
	return 128000
}

// StageMaxOutput returns the output token cap for a stage, with a safe default.
func (c *LLMConfig) StageMaxOutput(stage string) int {
	if max, ok := c.MaxOutputTokens[stage]; ok {
		return max
	}
	return 4096
}

// SetDefaults applies default values.
func (c *LLMConfig) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.ReasoningModel == "" {
		c.ReasoningModel = "gpt-4o"
	}
	if c.FastModel == "" {
		c.FastModel = "gpt-4o-mini"
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = "text-embedding-3-large"
	}
	if c.EmbeddingDimensions == 0 {
		c.EmbeddingDimensions = 3072
	}
	if c.Timeout == 0 {
		c.Timeout = 120
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 2
	}
	if c.ContextLimits == nil {
		c.ContextLimits = map[string]int{}
	}
	if c.MaxOutputTokens == nil {
		c.MaxOutputTokens = map[string]int{}
	}
}

// Validate checks the LLM configuration.
func (c *LLMConfig) Validate() error {
	if c.EmbeddingDimensions < 1 {
		return fmt.Errorf("llm.embedding_dimensions must be positive")
	}
	if c.Timeout < 1 {
		return fmt.Errorf("llm.timeout must be positive")
	}
	for model, limit := range c.ContextLimits {
		if limit < 1024 {
			return fmt.Errorf("llm.context_limits[%s] is implausibly small (%d)", model, limit)
		}
	}
	return nil
}
