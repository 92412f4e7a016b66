package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

type queryFixture struct {
	store    *storeFake
	embedder *embedderFake
	provider *completionFake
	recorder *queryRecorderFake
}

func newQueryFixture() *queryFixture {
	return &queryFixture{
		store: &storeFake{
			lexicalHits: map[string][]domain.SearchHit{
				"A": {lexHit("A", "a1", 3)},
				"B": {lexHit("B", "b1", 1)},
			},
		},
		embedder: &embedderFake{dim: 3},
		provider: &completionFake{reply: domain.CompletionResponse{Text: "answer"}},
		recorder: &queryRecorderFake{},
	}
}

func (f *queryFixture) useCase(opts ...QueryOption) *QueryUseCase {
	partitions := []string{"A", "B"}
	opts = append(opts, WithQueryRecorder(f.recorder))
	return NewQueryUseCase(
		f.embedder,
		NewPartitionClassifier(f.store, partitions, ClassifierConfig{DistanceThreshold: 0.3, PromotionThreshold: 0.7}),
		NewHybridSearch(f.store, HybridSearchConfig{}),
		NewAnswerSynthesizer(f.provider, 1000),
		partitions,
		QueryConfig{Alpha: 0.5, TopK: 5, OCRConfidenceThreshold: 0.5},
		opts...,
	)
}

func TestAskRejectsEmptyQuestion(t *testing.T) {
	f := newQueryFixture()
	_, err := f.useCase().Ask(context.Background(), domain.Question{Text: "   "})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("Ask() error = %v, want invalid input", err)
	}
}

func TestAskSearchesAllPartitionsOnFallback(t *testing.T) {
	f := newQueryFixture()

	answer, err := f.useCase().Ask(context.Background(), domain.Question{Text: "how to submit?"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.Text != "answer" {
		t.Fatalf("Text = %q", answer.Text)
	}
	if len(f.store.lexicalPartitions) != 2 {
		t.Fatalf("expected lexical search on both partitions, got %v", f.store.lexicalPartitions)
	}
	if f.recorder.calls != 1 || f.recorder.promoted || f.recorder.lexicalOnly || f.recorder.results != 2 {
		t.Fatalf("unexpected recorder state: %+v", f.recorder)
	}
}

func TestAskSearchesPromotedPartitionOnly(t *testing.T) {
	f := newQueryFixture()
	f.store.vectorHits = map[string][]domain.SearchHit{
		"B": {vecHit("B", "b1", 0.05)},
	}

	if _, err := f.useCase().Ask(context.Background(), domain.Question{Text: "forum question"}); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(f.store.lexicalPartitions) != 1 || f.store.lexicalPartitions[0] != "B" {
		t.Fatalf("expected lexical search on B only, got %v", f.store.lexicalPartitions)
	}
	if !f.recorder.promoted {
		t.Fatalf("expected promoted query")
	}
}

func TestAskFallsBackToLexicalWhenEmbeddingFails(t *testing.T) {
	f := newQueryFixture()
	f.embedder.err = errors.New("embedding provider down")

	answer, err := f.useCase().Ask(context.Background(), domain.Question{Text: "question"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if f.store.vectorCalls != 0 {
		t.Fatalf("expected no vector calls, got %d", f.store.vectorCalls)
	}
	if len(f.store.lexicalPartitions) != 2 {
		t.Fatalf("expected lexical search on all partitions, got %v", f.store.lexicalPartitions)
	}
	if answer.Text != "answer" || !f.recorder.lexicalOnly {
		t.Fatalf("unexpected answer %+v / recorder %+v", answer, f.recorder)
	}
}

func TestAskMergesConfidentOCRText(t *testing.T) {
	f := newQueryFixture()
	ocr := &ocrFake{spans: []domain.OCRSpan{
		{Text: "keep", Confidence: 0.5},
		{Text: "drop", Confidence: 0.49},
		{Text: "also", Confidence: 0.9},
	}}

	_, err := f.useCase(WithOCR(ocr)).Ask(context.Background(), domain.Question{Text: "q", ImageData: []byte{0x89}})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(f.embedder.embedded) != 1 || f.embedder.embedded[0] != "q keep also" {
		t.Fatalf("embedded = %v, want [q keep also]", f.embedder.embedded)
	}
}

func TestAskZeroOCRThresholdKeepsEverySpan(t *testing.T) {
	f := newQueryFixture()
	ocr := &ocrFake{spans: []domain.OCRSpan{{Text: "faint", Confidence: 0.2}}}
	uc := NewQueryUseCase(
		f.embedder,
		NewPartitionClassifier(f.store, []string{"A", "B"}, ClassifierConfig{DistanceThreshold: 0.3, PromotionThreshold: 0.7}),
		NewHybridSearch(f.store, HybridSearchConfig{}),
		NewAnswerSynthesizer(f.provider, 1000),
		[]string{"A", "B"},
		QueryConfig{Alpha: 0.5, TopK: 5, OCRConfidenceThreshold: 0},
		WithOCR(ocr),
	)

	if _, err := uc.Ask(context.Background(), domain.Question{Text: "q", ImageData: []byte{1}}); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(f.embedder.embedded) != 1 || f.embedder.embedded[0] != "q faint" {
		t.Fatalf("embedded = %v, want [q faint]", f.embedder.embedded)
	}
}

func TestAskIgnoresOCRFailure(t *testing.T) {
	f := newQueryFixture()
	ocr := &ocrFake{err: errors.New("ocr down")}

	if _, err := f.useCase(WithOCR(ocr)).Ask(context.Background(), domain.Question{Text: "q", ImageData: []byte{1}}); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if f.embedder.embedded[0] != "q" {
		t.Fatalf("embedded = %v, want [q]", f.embedder.embedded)
	}
}

func TestAskImageOnlyWithoutText(t *testing.T) {
	f := newQueryFixture()
	ocr := &ocrFake{spans: []domain.OCRSpan{{Text: "from image", Confidence: 1}}}

	if _, err := f.useCase(WithOCR(ocr)).Ask(context.Background(), domain.Question{ImageData: []byte{1}}); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if f.embedder.embedded[0] != "from image" {
		t.Fatalf("embedded = %v", f.embedder.embedded)
	}
}

func TestAskUsesNormalizedQuestion(t *testing.T) {
	f := newQueryFixture()
	spell := NewSpellNormalizer(&completionFake{reply: domain.CompletionResponse{Text: "how do I submit?"}}, 0)

	if _, err := f.useCase(WithSpellNormalizer(spell)).Ask(context.Background(), domain.Question{Text: "how do i sbumit"}); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if f.embedder.embedded[0] != "how do I submit?" {
		t.Fatalf("embedded = %v", f.embedder.embedded)
	}
}
