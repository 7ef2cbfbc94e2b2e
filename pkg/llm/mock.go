package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"
)

// MockGateway returns deterministic outputs shaped to the schema each
// pipeline stage expects. It keys off the router task, or off stage markers
// embedded in the system prompt for direct Reason calls. This is what runs
// when no API key is configured, and it is what local tests exercise.
type MockGateway struct {
	dimensions int
}

// NewMockGateway builds a mock with the given embedding width.
func NewMockGateway(dimensions int) *MockGateway {
	if dimensions <= 0 {
		dimensions = 3072
	}
	return &MockGateway{dimensions: dimensions}
}

// Embed returns a deterministic unit-ish vector per text, derived from a
// 64-bit hash so equal texts always embed identically.
func (g *MockGateway) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New64a()
		h.Write([]byte(text))
		seed := h.Sum64()

		vec := make([]float32, g.dimensions)
		for j := range vec {
			seed = seed*6364136223846793005 + 1442695040888963407
			vec[j] = float32(int64(seed>>33))/float32(1<<31) * 0.1
		}
		out[i] = vec
	}
	return out, nil
}

// Reason implements Gateway, dispatching on stage markers in the system
// message.
func (g *MockGateway) Reason(_ context.Context, _ string, messages []Message, _ int) (string, error) {
	system := ""
	if len(messages) > 0 {
		system = messages[0].Content
	}
	return g.respond(taskFromSystem(system)), nil
}

// Route implements Gateway.
func (g *MockGateway) Route(_ context.Context, task string, _, _ string, _ int) (*RouteResult, error) {
	return &RouteResult{
		Text:  g.respond(task),
		Model: "mock",
		Usage: Usage{PromptTokens: 100, CompletionTokens: 100, TotalTokens: 200},
	}, nil
}

func taskFromSystem(system string) string {
	lower := strings.ToLower(system)
	switch {
	case strings.Contains(lower, "classif"):
		return TaskClassifyFragments
	case strings.Contains(lower, "saturation"):
		return TaskSaturation
	case strings.Contains(lower, "building a paradigm"):
		return TaskBuildParadigm
	case strings.Contains(lower, "central"):
		return TaskCentralCategory
	default:
		return TaskRepair
	}
}

func (g *MockGateway) respond(task string) string {
	switch task {
	case TaskClassifyFragments:
		return mustJSON(map[string]interface{}{
			"extracted_codes": []map[string]interface{}{
				{
					"label":         "sense of belonging",
					"definition":    "expressions of feeling part of a group",
					"confidence":    0.82,
					"evidence_text": "",
				},
			},
		})

	case TaskCentralCategory:
		return mustJSON(map[string]interface{}{
			"selected_central_category": "sense of belonging",
			"evaluation": []map[string]interface{}{
				{"category": "sense of belonging", "centrality": 0.9, "rationale": "highest degree and co-occurrence"},
			},
			"detailed_reasoning": "mock: selected the category with the strongest network position",
		})

	case TaskBuildParadigm:
		propositions := make([]map[string]interface{}, 0, 5)
		for i := 1; i <= 5; i++ {
			propositions = append(propositions, map[string]interface{}{
				"text":         fmt.Sprintf("mock proposition %d linking conditions to consequences", i),
				"evidence_ids": []string{"mock-fragment-1"},
			})
		}
		consequences := make([]map[string]interface{}, 0, 6)
		for _, kind := range []string{"material", "social", "institutional"} {
			for _, horizon := range []string{"corto_plazo", "largo_plazo"} {
				consequences = append(consequences, map[string]interface{}{
					"text":         fmt.Sprintf("mock %s consequence (%s)", kind, horizon),
					"type":         kind,
					"horizon":      horizon,
					"evidence_ids": []string{"mock-fragment-1"},
				})
			}
		}
		return mustJSON(map[string]interface{}{
			"selected_central_category": "sense of belonging",
			"conditions": []map[string]interface{}{
				{"text": "mock causal condition", "evidence_ids": []string{"mock-fragment-1"}},
			},
			"context": []map[string]interface{}{
				{"text": "mock context", "evidence_ids": []string{"mock-fragment-1"}},
			},
			"intervening_conditions": []map[string]interface{}{
				{"text": "mock intervening condition", "evidence_ids": []string{"mock-fragment-1"}},
			},
			"actions": []map[string]interface{}{
				{"text": "mock action strategy", "evidence_ids": []string{"mock-fragment-1"}},
			},
			"consequences":     consequences,
			"propositions":     propositions,
			"confidence_score": 0.75,
		})

	case TaskSaturation:
		return mustJSON(map[string]interface{}{
			"readiness_score":           0.7,
			"identified_gaps":           []string{},
			"theoretical_sampling_plan": "mock: interview additional participants on boundary cases",
		})

	default:
		// Repair calls return an empty patch: nothing to fix.
		return "{}"
	}
}

func mustJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
