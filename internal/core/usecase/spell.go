package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/core/ports"
)

const spellSystemPrompt = "You are a helpful assistant that corrects spelling and grammar while preserving the original intent of the text. " +
	"Reply with the corrected text only, without quotes or commentary."

// SpellNormalizer asks the completion provider to fix spelling in a question.
// It is best effort: any failure returns the input unchanged.
type SpellNormalizer struct {
	provider ports.CompletionProvider
	timeout  time.Duration
}

func NewSpellNormalizer(provider ports.CompletionProvider, timeout time.Duration) *SpellNormalizer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SpellNormalizer{provider: provider, timeout: timeout}
}

func (n *SpellNormalizer) Normalize(ctx context.Context, text string) string {
	if n == nil || n.provider == nil || strings.TrimSpace(text) == "" {
		return text
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	reply, err := n.provider.Complete(ctx, domain.CompletionRequest{
		SystemPrompt: spellSystemPrompt,
		Messages: []domain.Message{
			{Role: "user", Content: "Please correct the spelling and grammar in this question: " + text},
		},
	})
	if err != nil {
		slog.Warn("spell_normalize_failed", "error", err)
		return text
	}

	corrected := strings.Trim(strings.TrimSpace(reply.Text), `"`)
	if corrected == "" {
		return text
	}
	return corrected
}
