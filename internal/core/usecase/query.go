package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/core/ports"
)

// QueryRecorder receives one observation per answered question.
type QueryRecorder interface {
	RecordQuery(promoted, lexicalOnly bool, results int, duration time.Duration)
}

type QueryConfig struct {
	Alpha                  float64
	TopK                   int
	OCRConfidenceThreshold float64
}

type QueryUseCase struct {
	embedder    ports.Embedder
	classifier  *PartitionClassifier
	search      *HybridSearch
	synthesizer *AnswerSynthesizer
	partitions  []string
	ocr         ports.OCR
	spell       *SpellNormalizer
	recorder    QueryRecorder
	cfg         QueryConfig
}

type QueryOption func(*QueryUseCase)

// WithOCR enables the image side-channel.
func WithOCR(ocr ports.OCR) QueryOption {
	return func(uc *QueryUseCase) {
		uc.ocr = ocr
	}
}

func WithSpellNormalizer(spell *SpellNormalizer) QueryOption {
	return func(uc *QueryUseCase) {
		uc.spell = spell
	}
}

func WithQueryRecorder(recorder QueryRecorder) QueryOption {
	return func(uc *QueryUseCase) {
		uc.recorder = recorder
	}
}

func NewQueryUseCase(
	embedder ports.Embedder,
	classifier *PartitionClassifier,
	search *HybridSearch,
	synthesizer *AnswerSynthesizer,
	partitions []string,
	cfg QueryConfig,
	opts ...QueryOption,
) *QueryUseCase {
	if cfg.TopK <= 0 {
		cfg.TopK = 10
	}
	if cfg.OCRConfidenceThreshold < 0 {
		cfg.OCRConfidenceThreshold = 0.5
	}
	uc := &QueryUseCase{
		embedder:    embedder,
		classifier:  classifier,
		search:      search,
		synthesizer: synthesizer,
		partitions:  append([]string(nil), partitions...),
		cfg:         cfg,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Ask answers one question. Only invalid input is returned as an error;
// every downstream failure degrades to a lower-quality answer.
func (uc *QueryUseCase) Ask(ctx context.Context, question domain.Question) (*domain.Answer, error) {
	started := time.Now()
	text := strings.TrimSpace(question.Text)
	if text == "" && len(question.ImageData) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask question", errors.New("question text or image is required"))
	}

	text = uc.mergeImageText(ctx, text, question.ImageData)
	if text == "" {
		answer := newAnswer(NoResultsAnswer, nil)
		uc.record(false, false, 0, started)
		return &answer, nil
	}
	text = uc.spell.Normalize(ctx, text)

	alpha := uc.cfg.Alpha
	lexicalOnly := false
	vector, err := uc.embedder.Embed(ctx, text)
	if err != nil || len(vector) == 0 {
		slog.Warn("question_embed_failed", "fallback", "lexical_only", "error", err)
		vector = nil
		alpha = 0
		lexicalOnly = true
	}

	partitions := uc.partitions
	promoted := false
	if !lexicalOnly {
		classification := uc.classifier.Classify(ctx, vector)
		if !classification.Fallback() {
			partitions = classification.Selected
			promoted = true
		}
	}

	results := uc.search.Search(ctx, text, vector, partitions, alpha, uc.cfg.TopK)
	answer := uc.synthesizer.Synthesize(ctx, text, results)

	uc.record(promoted, lexicalOnly, len(results), started)
	return &answer, nil
}

// mergeImageText appends confident OCR spans to the question text. OCR
// failures are logged and ignored.
func (uc *QueryUseCase) mergeImageText(ctx context.Context, text string, image []byte) string {
	if len(image) == 0 || uc.ocr == nil {
		return text
	}

	spans, err := uc.ocr.ExtractSpans(ctx, image)
	if err != nil {
		slog.Warn("question_ocr_failed", "error", err)
		return text
	}

	parts := make([]string, 0, len(spans)+1)
	if text != "" {
		parts = append(parts, text)
	}
	for _, span := range spans {
		if span.Confidence < uc.cfg.OCRConfidenceThreshold {
			continue
		}
		if t := strings.TrimSpace(span.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

func (uc *QueryUseCase) record(promoted, lexicalOnly bool, results int, started time.Time) {
	if uc.recorder == nil {
		return
	}
	uc.recorder.RecordQuery(promoted, lexicalOnly, results, time.Since(started))
}
