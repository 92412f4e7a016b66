package chunking

import (
	"fmt"
	"strings"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

const (
	DefaultMaxTokens = 4096
	PostDelimiter    = " | "
)

type Chunker struct {
	tokenizer Tokenizer
	delimiter string
}

type Option func(*Chunker)

func WithDelimiter(delimiter string) Option {
	return func(c *Chunker) {
		if delimiter != "" {
			c.delimiter = delimiter
		}
	}
}

// New builds a chunker. A nil tokenizer selects degraded mode, where every
// delimiter-separated unit becomes its own chunk.
func New(tokenizer Tokenizer, opts ...Option) *Chunker {
	c := &Chunker{
		tokenizer: tokenizer,
		delimiter: PostDelimiter,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chunker) Degraded() bool {
	return c.tokenizer == nil
}

// Chunk splits text on the unit delimiter and packs consecutive units while
// the chunk stays within maxTokens. A unit that alone exceeds maxTokens is
// emitted whole as its own chunk rather than truncated.
func (c *Chunker) Chunk(parentID, text string, maxTokens int) []domain.Chunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	units := c.units(text)
	if len(units) == 0 {
		return nil
	}

	var contents []string
	var counts []int
	if c.Degraded() {
		contents = units
		counts = make([]int, len(units))
		for i, unit := range units {
			counts[i] = wordCount(unit)
		}
	} else {
		contents, counts = c.pack(text, units, maxTokens)
	}

	return buildChunks(parentID, contents, counts)
}

func (c *Chunker) pack(text string, units []string, maxTokens int) ([]string, []int) {
	if total := c.tokenizer.Count(text); total <= maxTokens {
		return []string{text}, []int{total}
	}

	var contents []string
	var counts []int

	current := ""
	currentTokens := 0
	for _, unit := range units {
		unitTokens := c.tokenizer.Count(unit)
		if current == "" {
			current = unit
			currentTokens = unitTokens
			continue
		}

		candidate := current + c.delimiter + unit
		candidateTokens := c.tokenizer.Count(candidate)
		if candidateTokens > maxTokens {
			contents = append(contents, current)
			counts = append(counts, currentTokens)
			current = unit
			currentTokens = unitTokens
			continue
		}
		current = candidate
		currentTokens = candidateTokens
	}
	if current != "" {
		contents = append(contents, current)
		counts = append(counts, currentTokens)
	}
	return contents, counts
}

func (c *Chunker) units(text string) []string {
	parts := strings.Split(text, c.delimiter)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func buildChunks(parentID string, contents []string, counts []int) []domain.Chunk {
	out := make([]domain.Chunk, 0, len(contents))
	for i, content := range contents {
		out = append(out, domain.Chunk{
			ID:         ChunkID(parentID, i+1, len(contents)),
			ParentID:   parentID,
			Content:    content,
			TokenCount: counts[i],
		})
	}
	return out
}

// ChunkID returns {parentID}_{seq}, or parentID itself for single-chunk documents.
func ChunkID(parentID string, seq, total int) string {
	if total == 1 {
		return parentID
	}
	return fmt.Sprintf("%s_%d", parentID, seq)
}
