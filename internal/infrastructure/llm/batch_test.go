package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

func vectorsFor(texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out
}

func TestEmbedBatchFallsBackToSingleItems(t *testing.T) {
	var sizes []int
	embed := func(_ context.Context, texts []string) ([][]float32, error) {
		sizes = append(sizes, len(texts))
		for _, text := range texts {
			if strings.HasPrefix(text, "bad") {
				return nil, errors.New("input too long")
			}
		}
		return vectorsFor(texts), nil
	}

	results := EmbedBatch(context.Background(), []string{"a", "bad", "c", "d"}, 3, embed)
	for i, res := range results {
		if failed := res.Err != nil; failed != (i == 1) {
			t.Fatalf("slot %d: unexpected result %+v", i, res)
		}
	}
	want := []int{3, 1, 1, 1, 1}
	if len(sizes) != len(want) {
		t.Fatalf("request sizes = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("request sizes = %v, want %v", sizes, want)
		}
	}
}

func TestEmbedBatchTemporaryErrorFailsWholeSubBatch(t *testing.T) {
	calls := 0
	embed := func(_ context.Context, texts []string) ([][]float32, error) {
		calls++
		return nil, domain.WrapError(domain.ErrTemporary, "embed", errors.New("unavailable"))
	}

	results := EmbedBatch(context.Background(), []string{"a", "b"}, 10, embed)
	if calls != 1 {
		t.Fatalf("expected one call, got %d", calls)
	}
	for i, res := range results {
		if !domain.IsKind(res.Err, domain.ErrTemporary) {
			t.Fatalf("slot %d: expected temporary error, got %v", i, res.Err)
		}
	}
}

func TestEmbedBatchEmptyVectorFailsSlot(t *testing.T) {
	embed := func(_ context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1}, {}}, nil
	}

	results := EmbedBatch(context.Background(), []string{"a", "b"}, 10, embed)
	if results[0].Err != nil || results[1].Err == nil {
		t.Fatalf("unexpected results %+v", results)
	}
}
