package llm

import (
	"context"
	"fmt"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

// EmbedFunc embeds texts in one provider request, returning vectors in
// input order.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// EmbedBatch splits texts into sub-batches of at most size and returns one
// result per input. When a multi-item sub-batch is rejected with a
// non-temporary error its items are retried one at a time, so only the
// offending input keeps the error.
func EmbedBatch(ctx context.Context, texts []string, size int, embed EmbedFunc) []domain.EmbeddingResult {
	if size <= 0 {
		size = len(texts)
	}
	results := make([]domain.EmbeddingResult, len(texts))
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		embedSlots(ctx, texts[start:end], results[start:end], embed)
	}
	return results
}

func embedSlots(ctx context.Context, texts []string, slots []domain.EmbeddingResult, embed EmbedFunc) {
	vectors, err := embed(ctx, texts)
	if err != nil && len(texts) > 1 && !domain.IsKind(err, domain.ErrTemporary) && ctx.Err() == nil {
		for i := range texts {
			embedSlots(ctx, texts[i:i+1], slots[i:i+1], embed)
		}
		return
	}
	if err == nil && len(vectors) != len(texts) {
		err = fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(texts))
	}
	for i := range slots {
		switch {
		case err != nil:
			slots[i].Err = err
		case len(vectors[i]) == 0:
			slots[i].Err = fmt.Errorf("empty embedding for item %d", i)
		default:
			slots[i].Vector = vectors[i]
		}
	}
}
