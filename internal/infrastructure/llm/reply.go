// Package llm holds helpers shared by the completion providers.
package llm

import (
	"encoding/json"
	"strings"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

// ParseReply decodes a structured {"answer": ..., "links": [...]} reply.
// Anything that is not such an object is returned as plain text.
func ParseReply(raw string) domain.CompletionResponse {
	raw = strings.TrimSpace(raw)
	var payload struct {
		Answer *string `json:"answer"`
		Links  []any   `json:"links"`
	}
	if err := json.Unmarshal([]byte(ExtractJSONObject(raw)), &payload); err != nil || payload.Answer == nil {
		return domain.CompletionResponse{Text: raw}
	}
	return domain.CompletionResponse{
		Text:      strings.TrimSpace(*payload.Answer),
		Citations: payload.Links,
	}
}

// ExtractJSONObject trims leading and trailing prose or code fences around
// the outermost JSON object.
func ExtractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
