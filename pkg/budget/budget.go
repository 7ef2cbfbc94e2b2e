// Package budget fits prompt payloads into a model's context window.
//
// The budgeter is pure: it never calls the model. It rebuilds the message
// list through a caller-supplied builder, estimates input tokens, and asks
// the caller to degrade the payload step by step until the estimate plus the
// output reservation fits. Every step is recorded for post-hoc inspection.
package budget

import "fmt"

// ErrCode for budget failures; stable for programmatic handling.
const ErrCode = "BUDGET_EXCEEDED"

// Error reports that the payload could not be made to fit.
type Error struct {
	Model   string
	Limit   int
	Needed  int
	Steps   int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (model=%s limit=%d needed=%d after %d degradation steps)",
		ErrCode, e.Message, e.Model, e.Limit, e.Needed, e.Steps)
}

// FitRequest describes one budgeting run.
type FitRequest struct {
	// Build assembles the message list from the current payload state.
	// It is re-invoked after every degradation step.
	Build func() []Message

	// Model selects the tokenizer and is recorded in the debug trail.
	Model string

	// ContextLimit is the model's context window in tokens.
	ContextLimit int

	// MaxOutputTokens is reserved for the model's reply.
	MaxOutputTokens int

	// Margin is an extra safety reservation.
	Margin int

	// Degrade applies the next payload reduction and returns its
	// description, or "" when no further reduction exists. Reductions apply
	// in a fixed priority owned by the caller.
	Degrade func() string

	// MaxSteps caps the number of degradation steps.
	MaxSteps int

	// Counter overrides the tokenizer; nil selects one for Model.
	Counter Counter
}

// Step records one degradation applied by the budgeter.
type Step struct {
	Description    string `json:"description"`
	EstimatedAfter int    `json:"estimated_after"`
}

// Debug enumerates everything the budgeter did, for theory provenance.
type Debug struct {
	Model            string `json:"model"`
	ContextLimit     int    `json:"context_limit"`
	MaxOutputTokens  int    `json:"max_output_tokens"`
	Margin           int    `json:"margin"`
	InitialEstimate  int    `json:"initial_estimate"`
	FinalEstimate    int    `json:"final_estimate"`
	DegradationSteps []Step `json:"degradation_steps"`
	Accepted         bool   `json:"accepted"`
}

// FitResult is a successful budgeting run.
type FitResult struct {
	Messages    []Message
	InputTokens int
	Debug       Debug
}

// Fit runs the estimate/degrade loop. On success the invariant holds:
// InputTokens + MaxOutputTokens + Margin <= ContextLimit.
func Fit(req FitRequest) (*FitResult, error) {
	counter := req.Counter
	if counter == nil {
		counter = NewCounter(req.Model)
	}

	budget := req.ContextLimit - req.MaxOutputTokens - req.Margin

	messages := req.Build()
	estimate := counter.CountMessages(messages)

	debug := Debug{
		Model:           req.Model,
		ContextLimit:    req.ContextLimit,
		MaxOutputTokens: req.MaxOutputTokens,
		Margin:          req.Margin,
		InitialEstimate: estimate,
	}

	for steps := 0; estimate > budget; steps++ {
		if steps >= req.MaxSteps {
			debug.FinalEstimate = estimate
			return nil, &Error{
				Model:   req.Model,
				Limit:   req.ContextLimit,
				Needed:  estimate + req.MaxOutputTokens + req.Margin,
				Steps:   steps,
				Message: "degradation step limit reached",
			}
		}

		description := req.Degrade()
		if description == "" {
			debug.FinalEstimate = estimate
			return nil, &Error{
				Model:   req.Model,
				Limit:   req.ContextLimit,
				Needed:  estimate + req.MaxOutputTokens + req.Margin,
				Steps:   steps,
				Message: "payload cannot degrade further",
			}
		}

		messages = req.Build()
		estimate = counter.CountMessages(messages)
		debug.DegradationSteps = append(debug.DegradationSteps, Step{
			Description:    description,
			EstimatedAfter: estimate,
		})
	}

	debug.FinalEstimate = estimate
	debug.Accepted = true
	return &FitResult{
		Messages:    messages,
		InputTokens: estimate,
		Debug:       debug,
	}, nil
}
