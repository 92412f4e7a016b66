package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

type storeFake struct {
	data   map[string][]byte
	getErr error
	sets   int
}

func (s *storeFake) MGet(_ context.Context, keys []string) ([][]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = s.data[k]
	}
	return out, nil
}

func (s *storeFake) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	s.sets++
	s.data[key] = value
	return nil
}

type embedderFake struct {
	batches [][]string
	fail    map[string]bool
}

func (e *embedderFake) Model() string { return "fake/model" }

func (e *embedderFake) Embed(_ context.Context, text string) ([]float32, error) {
	e.batches = append(e.batches, []string{text})
	if e.fail[text] {
		return nil, errors.New("embed failed")
	}
	return []float32{float32(len(text)), 0.5}, nil
}

func (e *embedderFake) EmbedBatch(_ context.Context, texts []string) []domain.EmbeddingResult {
	e.batches = append(e.batches, texts)
	out := make([]domain.EmbeddingResult, len(texts))
	for i, text := range texts {
		if e.fail[text] {
			out[i].Err = errors.New("embed failed")
			continue
		}
		out[i].Vector = []float32{float32(len(text)), 0.5}
	}
	return out
}

func TestCachedEmbedderServesHitsAndFillsMisses(t *testing.T) {
	s := &storeFake{data: map[string][]byte{}}
	inner := &embedderFake{fail: map[string]bool{"bad": true}}
	cache := newCachedEmbedder(s, inner, time.Hour)

	first := cache.EmbedBatch(context.Background(), []string{"a", "bb", "bad"})
	if first[0].Err != nil || first[1].Err != nil || first[2].Err == nil {
		t.Fatalf("unexpected first results %+v", first)
	}
	if s.sets != 2 {
		t.Fatalf("expected 2 cache writes, got %d", s.sets)
	}

	second := cache.EmbedBatch(context.Background(), []string{"bb", "ccc"})
	if second[0].Vector[0] != 2 || second[1].Vector[0] != 3 {
		t.Fatalf("unexpected second results %+v", second)
	}
	last := inner.batches[len(inner.batches)-1]
	if len(last) != 1 || last[0] != "ccc" {
		t.Fatalf("expected only the miss to reach the provider, got %v", last)
	}
}

func TestCachedEmbedderTreatsCacheErrorAsMiss(t *testing.T) {
	s := &storeFake{data: map[string][]byte{}, getErr: errors.New("redis down")}
	inner := &embedderFake{}
	cache := newCachedEmbedder(s, inner, time.Hour)

	vec, err := cache.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 2 || len(inner.batches) != 1 {
		t.Fatalf("expected provider call on cache failure, got vec=%v calls=%d", vec, len(inner.batches))
	}
}

func TestVectorEncodingRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3}
	out := decodeVector(encodeVector(in))
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("index %d: got %v, want %v", i, out[i], in[i])
		}
	}
	if decodeVector([]byte{1, 2, 3}) != nil {
		t.Fatalf("expected nil for truncated payload")
	}
}
