// Package llm is the gateway to reasoning, routing and embedding models.
//
// The gateway is a stateless facade: it returns raw text and leaves JSON
// parsing to callers (pkg/jsonx). When no API key is configured it serves
// deterministic mock outputs so the pipeline runs locally.
package llm

import (
	"context"
	"fmt"

	"github.com/axialab/axial/pkg/config"
)

// Message is a chat message sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption of one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RouteResult is the outcome of a routed call.
type RouteResult struct {
	Text  string
	Model string
	Usage Usage
}

// Task names for the router. Each maps to a model role.
const (
	TaskClassifyFragments = "classify_fragments"
	TaskCentralCategory   = "central_category"
	TaskBuildParadigm     = "build_paradigm"
	TaskSaturation        = "saturation_analysis"
	TaskRepair            = "paradigm_repair"
)

// Gateway exposes typed calls to the model endpoints.
type Gateway interface {
	// Embed returns one embedding per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Reason performs a chat call against the given model and returns the
	// raw response text.
	Reason(ctx context.Context, model string, messages []Message, maxOutputTokens int) (string, error)

	// Route picks a model for the task and performs the call.
	Route(ctx context.Context, task string, system, prompt string, maxOutputTokens int) (*RouteResult, error)
}

// New builds a Gateway from configuration: the OpenAI-compatible client when
// an API key is present, the deterministic mock otherwise.
func New(cfg *config.LLMConfig) Gateway {
	if cfg.Mock() {
		return NewMockGateway(cfg.EmbeddingDimensions)
	}
	return NewOpenAIGateway(cfg)
}

// ModelForTask maps a router task to the configured model name.
func ModelForTask(cfg *config.LLMConfig, task string) string {
	switch task {
	case TaskCentralCategory, TaskBuildParadigm:
		return cfg.ReasoningModel
	case TaskClassifyFragments, TaskSaturation, TaskRepair:
		return cfg.FastModel
	default:
		return cfg.ReasoningModel
	}
}

// GatewayError wraps a model call failure with a stable code.
type GatewayError struct {
	Code    string // LLM_TIMEOUT or LLM_ERROR
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
