// Package capability wraps the LLM backend behind a plain text-generation
// interface. The pipeline core never inspects prompt content; it only sees
// the typed invoke boundary.
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Invoker is the capability collaborator: formatted prompt in, raw result out.
type Invoker interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// DecodeJSON extracts a JSON object from a model response and unmarshals it
// into out. Models routinely wrap JSON in markdown fences or prose, so the
// first balanced top-level object is taken.
func DecodeJSON(raw string, out interface{}) error {
	payload := extractObject(raw)
	if payload == "" {
		return fmt.Errorf("capability: no JSON object in response")
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("capability: decode response: %w", err)
	}
	return nil
}

func extractObject(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}
