package budget

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedCounter counts one token per rune so test arithmetic stays readable.
type fixedCounter struct{}

func (fixedCounter) CountMessages(messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += len(msg.Content)
	}
	return total
}

func TestFit_AcceptsWithoutDegradation(t *testing.T) {
	result, err := Fit(FitRequest{
		Build: func() []Message {
			return []Message{{Role: "user", Content: strings.Repeat("x", 100)}}
		},
		Model:           "gpt-4o",
		ContextLimit:    200,
		MaxOutputTokens: 50,
		Margin:          10,
		MaxSteps:        5,
		Counter:         fixedCounter{},
		Degrade: func() string {
			t.Fatal("degrade must not be called when payload fits")
			return ""
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 100, result.InputTokens)
	assert.True(t, result.Debug.Accepted)
	assert.Empty(t, result.Debug.DegradationSteps)
	// Invariant: input + output + margin <= limit.
	assert.LessOrEqual(t, result.InputTokens+50+10, 200)
}

func TestFit_DegradesUntilItFits(t *testing.T) {
	size := 300
	steps := []string{"frags_per_cat=3", "fragment_chars=500", "categories=20"}
	i := 0

	result, err := Fit(FitRequest{
		Build: func() []Message {
			return []Message{{Role: "user", Content: strings.Repeat("x", size)}}
		},
		Model:           "gpt-4o",
		ContextLimit:    200,
		MaxOutputTokens: 50,
		Margin:          10,
		MaxSteps:        10,
		Counter:         fixedCounter{},
		Degrade: func() string {
			desc := steps[i]
			i++
			size -= 100
			return desc
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 100, result.InputTokens)
	require.Len(t, result.Debug.DegradationSteps, 2)
	assert.Equal(t, "frags_per_cat=3", result.Debug.DegradationSteps[0].Description)
	assert.Equal(t, "fragment_chars=500", result.Debug.DegradationSteps[1].Description)
}

func TestFit_FailsAfterMaxSteps(t *testing.T) {
	_, err := Fit(FitRequest{
		Build: func() []Message {
			return []Message{{Role: "user", Content: strings.Repeat("x", 1000)}}
		},
		Model:           "gpt-4o",
		ContextLimit:    200,
		MaxOutputTokens: 50,
		Margin:          10,
		MaxSteps:        3,
		Counter:         fixedCounter{},
		Degrade:         func() string { return "noop" },
	})
	require.Error(t, err)

	var budgetErr *Error
	require.True(t, errors.As(err, &budgetErr))
	assert.Equal(t, 3, budgetErr.Steps)
	assert.Contains(t, budgetErr.Error(), ErrCode)
}

func TestFit_FailsWhenDegradeExhausted(t *testing.T) {
	_, err := Fit(FitRequest{
		Build: func() []Message {
			return []Message{{Role: "user", Content: strings.Repeat("x", 1000)}}
		},
		Model:           "gpt-4o",
		ContextLimit:    200,
		MaxOutputTokens: 50,
		Margin:          10,
		MaxSteps:        10,
		Counter:         fixedCounter{},
		Degrade:         func() string { return "" },
	})
	require.Error(t, err)

	var budgetErr *Error
	require.True(t, errors.As(err, &budgetErr))
	assert.Equal(t, 0, budgetErr.Steps)
}

func TestHeuristicCounter_CharEstimate(t *testing.T) {
	counter := heuristicCounter{}
	// 8 chars -> 2 tokens, +3 message overhead, +1 role, +3 priming.
	got := counter.CountMessages([]Message{{Role: "user", Content: "12345678"}})
	assert.Equal(t, 3+3+1+2, got)
}

func TestNewCounter_NeverNil(t *testing.T) {
	counter := NewCounter("entirely-unknown-model")
	require.NotNil(t, counter)
	assert.Greater(t, counter.CountMessages([]Message{{Role: "user", Content: "hello"}}), 0)
}
