package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// StripFences removes a surrounding Markdown code fence (``` or ```json) and
// any prose before the first JSON brace.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			first := strings.TrimSpace(s[:nl])
			if first == "" || !strings.ContainsAny(first, "{[") {
				s = s[nl+1:]
			}
		}
		s = strings.TrimSpace(s)
		s = strings.TrimSuffix(s, "```")
		s = strings.TrimSpace(s)
	}
	if i := strings.IndexAny(s, "{["); i > 0 {
		s = s[i:]
	}
	if j := strings.LastIndexAny(s, "}]"); j >= 0 && j < len(s)-1 {
		s = s[:j+1]
	}
	return s
}

// Decode parses model output into T after stripping code fences. Empty or
// non-JSON output wraps domain.ErrInferenceUnavailable.
func Decode[T any](raw string) (T, error) {
	var out T
	cleaned := StripFences(raw)
	if cleaned == "" {
		return out, fmt.Errorf("inference: %w: empty output", domain.ErrInferenceUnavailable)
	}
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return out, fmt.Errorf("inference: %w: parse output: %v", domain.ErrInferenceUnavailable, err)
	}
	return out, nil
}

// Ask marshals doc, completes it with prompt, and decodes the result into T.
func Ask[T any](ctx context.Context, c Client, prompt string, doc any) (T, error) {
	var zero T
	payload, err := json.Marshal(doc)
	if err != nil {
		return zero, fmt.Errorf("inference: marshal document: %w", err)
	}
	raw, err := c.Complete(ctx, prompt, string(payload))
	if err != nil {
		return zero, err
	}
	return Decode[T](raw)
}
