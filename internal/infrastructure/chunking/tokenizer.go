package chunking

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts model tokens exactly.
type Tokenizer interface {
	Count(text string) int
}

type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads a BPE encoding such as cl100k_base. Loading may
// need network access on a cold cache; callers fall back to degraded chunking
// when it fails.
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	if strings.TrimSpace(encoding) == "" {
		encoding = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load tiktoken encoding %s: %w", encoding, err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

func (t *TiktokenTokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}
