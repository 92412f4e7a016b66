package domain

import (
	"errors"
	"strings"
	"time"
)

// SourceDocument is a raw unit read from a partition source before chunking.
type SourceDocument struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Timestamp  time.Time `json:"timestamp"`
	URL        string    `json:"url"`
	RawContent string    `json:"raw_content"`
}

// Validate reports documents that must be skipped by ingestion.
func (d SourceDocument) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return WrapError(ErrMalformedSource, "validate source document", errors.New("missing id"))
	}
	if strings.TrimSpace(d.RawContent) == "" {
		return WrapError(ErrMalformedSource, "validate source document", errors.New("empty content: "+d.ID))
	}
	return nil
}

// Chunk is a bounded piece of a source document. TokenCount may exceed the
// chunking budget only when the chunk is a single atomic unit.
type Chunk struct {
	ID         string    `json:"id"`
	ParentID   string    `json:"parent_id"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	Title      string    `json:"title,omitempty"`
	URL        string    `json:"url,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// IndexedDocument is the persisted record keyed by Chunk.ID within a partition.
type IndexedDocument struct {
	Chunk
	Vector []float32 `json:"vector"`
}

// EmbeddingResult holds either a vector or the error for one batch slot.
type EmbeddingResult struct {
	Vector []float32
	Err    error
}

// ItemResult is the per-item outcome of a batched store operation.
type ItemResult struct {
	ID  string
	Err error
}

func (r ItemResult) OK() bool {
	return r.Err == nil
}
