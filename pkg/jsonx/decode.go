// Package jsonx decodes JSON produced by language models.
//
// Model output is never trusted to be well-formed. Decoding runs a three-step
// cascade: extract the first candidate object or array and parse it; escape
// raw control characters inside string literals and re-parse; finally delegate
// to a repair library that handles truncation, unquoted keys and trailing
// commas. Failures surface with a prefix of the offending text for diagnosis.
package jsonx

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

const diagnosticPrefixLen = 300

// DecodeError reports that no step of the cascade produced valid JSON.
type DecodeError struct {
	// Prefix is the first 300 characters of the raw text.
	Prefix string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unparseable model output (first %d chars: %q): %v",
		diagnosticPrefixLen, e.Prefix, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses model output into v, running the repair cascade as needed.
func Decode(raw string, v interface{}) error {
	candidate := extractCandidate(raw)
	if candidate == "" {
		return &DecodeError{Prefix: prefix(raw), Err: fmt.Errorf("no JSON object or array found")}
	}

	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}

	escaped := escapeControlChars(candidate)
	if err := json.Unmarshal([]byte(escaped), v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return &DecodeError{Prefix: prefix(raw), Err: fmt.Errorf("repair failed: %w", err)}
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return &DecodeError{Prefix: prefix(raw), Err: err}
	}
	return nil
}

// DecodeObject parses model output into a generic map.
func DecodeObject(raw string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := Decode(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// extractCandidate returns the substring starting at the first '{' or '['
// through the matching closing position, or through the end when unbalanced
// (the repair step deals with truncation).
func extractCandidate(raw string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(raw); i++ {
		if raw[i] == '{' || raw[i] == '[' {
			start = i
			open = raw[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch ch {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return raw[start:]
}

// escapeControlChars escapes raw control characters that appear inside JSON
// string literals. Models routinely emit literal newlines inside strings.
func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case ch == '\\' && i+1 < len(s):
				b.WriteByte(ch)
				i++
				b.WriteByte(s[i])
				continue
			case ch == '"':
				inString = false
			case ch == '\n':
				b.WriteString(`\n`)
				continue
			case ch == '\r':
				b.WriteString(`\r`)
				continue
			case ch == '\t':
				b.WriteString(`\t`)
				continue
			case ch < 0x20:
				b.WriteString(fmt.Sprintf(`\u%04x`, ch))
				continue
			}
		} else if ch == '"' {
			inString = true
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func prefix(raw string) string {
	if len(raw) > diagnosticPrefixLen {
		return raw[:diagnosticPrefixLen]
	}
	return raw
}
