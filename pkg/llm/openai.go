package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/axialab/axial/pkg/config"
	"github.com/axialab/axial/pkg/httpclient"
)

// OpenAIGateway talks to an OpenAI-compatible chat/embeddings endpoint.
type OpenAIGateway struct {
	cfg    *config.LLMConfig
	client *httpclient.Client
}

type chatRequest struct {
	Model               string    `json:"model"`
	Messages            []Message `json:"messages"`
	MaxCompletionTokens *int      `json:"max_completion_tokens,omitempty"`
	Temperature         float64   `json:"temperature"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
	Error   *apiError    `json:"error,omitempty"`
}

type chatChoice struct {
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type embeddingsRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// NewOpenAIGateway builds the HTTP-backed gateway.
func NewOpenAIGateway(cfg *config.LLMConfig) *OpenAIGateway {
	client := httpclient.New(
		httpclient.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		}),
		httpclient.WithMaxRetries(cfg.MaxRetries),
		httpclient.WithBaseDelay(time.Duration(cfg.RetryDelay)*time.Second),
	)
	return &OpenAIGateway{cfg: cfg, client: client}
}

// Embed implements Gateway.
func (g *OpenAIGateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embeddingsResponse
	err := g.post(ctx, "/embeddings", embeddingsRequest{
		Model:      g.cfg.EmbeddingModel,
		Input:      texts,
		Dimensions: g.cfg.EmbeddingDimensions,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &GatewayError{Code: "LLM_ERROR", Message: resp.Error.Message, Err: fmt.Errorf("embeddings call failed")}
	}

	// The API may return out of order; index is authoritative.
	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index >= 0 && item.Index < len(out) {
			out[item.Index] = item.Embedding
		}
	}
	return out, nil
}

// Reason implements Gateway.
func (g *OpenAIGateway) Reason(ctx context.Context, model string, messages []Message, maxOutputTokens int) (string, error) {
	var resp chatResponse
	req := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0.2,
	}
	if maxOutputTokens > 0 {
		req.MaxCompletionTokens = &maxOutputTokens
	}

	if err := g.post(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", &GatewayError{Code: "LLM_ERROR", Message: resp.Error.Message, Err: fmt.Errorf("chat call failed")}
	}
	if len(resp.Choices) == 0 {
		return "", &GatewayError{Code: "LLM_ERROR", Message: "empty choices", Err: fmt.Errorf("chat call returned no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

// Route implements Gateway.
func (g *OpenAIGateway) Route(ctx context.Context, task string, system, prompt string, maxOutputTokens int) (*RouteResult, error) {
	model := ModelForTask(g.cfg, task)
	messages := []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: prompt},
	}

	var resp chatResponse
	req := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0.2,
	}
	if maxOutputTokens > 0 {
		req.MaxCompletionTokens = &maxOutputTokens
	}

	if err := g.post(ctx, "/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &GatewayError{Code: "LLM_ERROR", Message: resp.Error.Message, Err: fmt.Errorf("routed call failed")}
	}
	if len(resp.Choices) == 0 {
		return nil, &GatewayError{Code: "LLM_ERROR", Message: "empty choices", Err: fmt.Errorf("routed call returned no choices")}
	}

	return &RouteResult{
		Text:  resp.Choices[0].Message.Content,
		Model: model,
		Usage: resp.Usage,
	}, nil
}

func (g *OpenAIGateway) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &GatewayError{Code: "LLM_TIMEOUT", Message: "model call timed out", Err: err}
		}
		return &GatewayError{Code: "LLM_ERROR", Message: "model call failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &GatewayError{Code: "LLM_ERROR", Message: "failed to read response", Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &GatewayError{Code: "LLM_ERROR", Message: "malformed response body", Err: err}
	}
	return nil
}
