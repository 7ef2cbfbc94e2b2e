package coding

import (
	"encoding/json"
	"fmt"
	"strings"
)

// classifyResponse is the expected top-level shape of a classification call.
type classifyResponse struct {
	ExtractedCodes []extractedCode `json:"extracted_codes"`
}

// extractedCode is one code proposal from the model. Models occasionally emit
// bare label strings instead of objects; both forms decode.
type extractedCode struct {
	Label        string  `json:"label"`
	Definition   string  `json:"definition"`
	Confidence   float64 `json:"confidence"`
	EvidenceText string  `json:"evidence_text"`
}

func (c *extractedCode) UnmarshalJSON(data []byte) error {
	var label string
	if err := json.Unmarshal(data, &label); err == nil {
		*c = extractedCode{Label: label, Confidence: 0.5}
		return nil
	}

	type plain extractedCode
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("extracted code is neither string nor object: %w", err)
	}
	*c = extractedCode(obj)
	return nil
}

// classifySystemPrompt builds the Phase-A system prompt, embedding a snapshot
// of the project's existing code labels so the model reuses them.
func classifySystemPrompt(existingLabels []string) string {
	var sb strings.Builder
	sb.WriteString(`You are a qualitative researcher performing open coding. Classify the interview fragment given by the user: extract the conceptual codes it expresses.

Respond with a single JSON object:
{"extracted_codes": [{"label": "...", "definition": "...", "confidence": 0.0, "evidence_text": "..."}]}

Rules:
- "label" is a short conceptual tag (2-5 words, lowercase).
- "definition" is one sentence describing what the code captures.
- "confidence" is your certainty in [0,1].
- "evidence_text" is a verbatim quote from the fragment supporting the code, or empty.
- Reuse an existing code label whenever the fragment expresses the same concept.
- Return an empty list when the fragment carries no codable content.`)

	if len(existingLabels) > 0 {
		sb.WriteString("\n\nExisting codes in this project:\n")
		for _, label := range existingLabels {
			sb.WriteString("- ")
			sb.WriteString(label)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
