package jsonx

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_CleanJSON(t *testing.T) {
	var out map[string]interface{}
	err := Decode(`{"selected_central_category": "trust"}`, &out)
	require.NoError(t, err)
	assert.Equal(t, "trust", out["selected_central_category"])
}

func TestDecode_ProseWrappedJSON(t *testing.T) {
	raw := "Here is the analysis you asked for:\n\n```json\n{\"readiness_score\": 0.8}\n```\nLet me know."
	var out map[string]interface{}
	err := Decode(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, 0.8, out["readiness_score"])
}

func TestDecode_ControlCharsInStrings(t *testing.T) {
	raw := "{\"definition\": \"line one\nline two\"}"
	var out map[string]interface{}
	err := Decode(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", out["definition"])
}

func TestDecode_TruncatedOutput(t *testing.T) {
	// Missing closing braces, as produced when the model hits its token cap.
	raw := `{"propositions": [{"text": "a leads to b", "evidence_ids": ["f1"`
	var out map[string]interface{}
	err := Decode(raw, &out)
	require.NoError(t, err)
	props, ok := out["propositions"].([]interface{})
	require.True(t, ok)
	require.Len(t, props, 1)
}

func TestDecode_TrailingCommas(t *testing.T) {
	raw := `{"conditions": ["a", "b",], "context": [],}`
	var out map[string]interface{}
	err := Decode(raw, &out)
	require.NoError(t, err)
	assert.Len(t, out["conditions"], 2)
}

func TestDecode_ArrayCandidate(t *testing.T) {
	var out []string
	err := Decode(`The codes are: ["belonging", "isolation"]`, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"belonging", "isolation"}, out)
}

func TestDecode_NoJSONAtAll(t *testing.T) {
	var out map[string]interface{}
	err := Decode("I could not produce an answer.", &out)
	require.Error(t, err)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Contains(t, decodeErr.Prefix, "I could not")
}

func TestDecode_DiagnosticPrefixCapped(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	var out map[string]interface{}
	err := Decode(string(long), &out)
	require.Error(t, err)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Len(t, decodeErr.Prefix, 300)
}

func TestExtractCandidate_IgnoresBracesInStrings(t *testing.T) {
	raw := `{"text": "a } inside", "n": 1} trailing`
	assert.Equal(t, `{"text": "a } inside", "n": 1}`, extractCandidate(raw))
}
