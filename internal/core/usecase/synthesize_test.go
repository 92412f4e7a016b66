package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

func TestAssembleContextStopsAtFirstOverflow(t *testing.T) {
	content := strings.Repeat("x", 40)
	results := []domain.FusedResult{
		{Partition: "A", ChunkID: "1", Title: "One", Content: content},
		{Partition: "A", ChunkID: "2", Content: content},
		{Partition: "B", ChunkID: "3", Title: "Three", Content: content},
	}

	text, included := AssembleContext(results, 100)
	if len(included) != 2 {
		t.Fatalf("included %d entries, want 2", len(included))
	}
	if !strings.Contains(text, "[Source 1] (A/One) "+content) {
		t.Fatalf("missing first entry in %q", text)
	}
	if !strings.Contains(text, "[Source 2] (A) "+content) {
		t.Fatalf("missing second entry in %q", text)
	}
	if strings.Contains(text, "[Source 3]") {
		t.Fatalf("third entry must be dropped: %q", text)
	}
}

func TestAssembleContextDoesNotSkipAhead(t *testing.T) {
	results := []domain.FusedResult{
		{Partition: "A", ChunkID: "1", Content: strings.Repeat("x", 80)},
		{Partition: "A", ChunkID: "2", Content: strings.Repeat("y", 30)},
		{Partition: "A", ChunkID: "3", Content: "z"},
	}

	_, included := AssembleContext(results, 100)
	if len(included) != 1 {
		t.Fatalf("included %d entries, want 1", len(included))
	}
}

func TestAssembleContextWithoutLimit(t *testing.T) {
	results := []domain.FusedResult{
		{Partition: "A", ChunkID: "1", Content: strings.Repeat("x", 5000)},
		{Partition: "A", ChunkID: "2", Content: strings.Repeat("y", 5000)},
	}
	if _, included := AssembleContext(results, 0); len(included) != 2 {
		t.Fatalf("included %d entries, want 2", len(included))
	}
}

func TestAssembleContextSkipsBlankEntries(t *testing.T) {
	results := []domain.FusedResult{
		{Partition: "A", ChunkID: "1", Content: "  \n "},
		{Partition: "A", ChunkID: "2", Title: "Two", Content: "useful"},
	}

	text, included := AssembleContext(results, 100)
	if len(included) != 1 || included[0].ChunkID != "2" {
		t.Fatalf("included = %+v, want only chunk 2", included)
	}
	if text != "[Source 1] (A/Two) useful" {
		t.Fatalf("unexpected context %q", text)
	}
}

func TestSynthesizeWithoutResultsSkipsProvider(t *testing.T) {
	provider := &completionFake{}
	s := NewAnswerSynthesizer(provider, 1000)

	answer := s.Synthesize(context.Background(), "what?", nil)
	if answer.Text != NoResultsAnswer {
		t.Fatalf("Text = %q", answer.Text)
	}
	if len(provider.requests) != 0 {
		t.Fatalf("provider must not be called, got %d requests", len(provider.requests))
	}
	if answer.Links == nil || answer.Sources == nil {
		t.Fatalf("expected empty, non-nil links and sources")
	}
}

func TestSynthesizeSendsContextAndQuestion(t *testing.T) {
	provider := &completionFake{reply: domain.CompletionResponse{Text: "  Use docker compose.  "}}
	s := NewAnswerSynthesizer(provider, 1000)

	results := []domain.FusedResult{{Partition: "A", ChunkID: "1", Title: "Docker", Content: "docker compose up", URL: "https://course/docker"}}
	answer := s.Synthesize(context.Background(), "how to run?", results)

	if answer.Text != "Use docker compose." {
		t.Fatalf("Text = %q", answer.Text)
	}
	if len(provider.requests) != 1 {
		t.Fatalf("expected one provider request, got %d", len(provider.requests))
	}
	req := provider.requests[0]
	if !req.JSON || req.SystemPrompt == "" {
		t.Fatalf("unexpected request: %+v", req)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Fatalf("unexpected messages: %+v", req.Messages)
	}
	prompt := req.Messages[0].Content
	if !strings.Contains(prompt, "[Source 1] (A/Docker) docker compose up") || !strings.Contains(prompt, "how to run?") {
		t.Fatalf("prompt missing context or question: %q", prompt)
	}
	if len(answer.Links) != 1 || answer.Links[0].Label != "Docker" {
		t.Fatalf("expected derived link, got %+v", answer.Links)
	}
}

func TestSynthesizeNormalizesCitations(t *testing.T) {
	provider := &completionFake{reply: domain.CompletionResponse{
		Text: "answer",
		Citations: []any{
			"https://a.example",
			map[string]any{"url": "https://b.example", "label": "B"},
			map[string]any{"url": "https://a.example", "text": "duplicate"},
			map[string]any{"url": "https://c.example", "text": "C"},
			map[string]any{"text": "no url"},
			42,
		},
	}}
	s := NewAnswerSynthesizer(provider, 1000)

	answer := s.Synthesize(context.Background(), "q", []domain.FusedResult{{Partition: "A", ChunkID: "1", Content: "c", URL: "https://derived"}})
	want := []domain.Link{
		{URL: "https://a.example", Label: "https://a.example"},
		{URL: "https://b.example", Label: "B"},
		{URL: "https://c.example", Label: "C"},
	}
	if len(answer.Links) != len(want) {
		t.Fatalf("Links = %+v, want %+v", answer.Links, want)
	}
	for i := range want {
		if answer.Links[i] != want[i] {
			t.Fatalf("Links[%d] = %+v, want %+v", i, answer.Links[i], want[i])
		}
		if answer.Sources[i] != want[i].URL {
			t.Fatalf("Sources[%d] = %q, want %q", i, answer.Sources[i], want[i].URL)
		}
	}
}

func TestSynthesizeProviderErrorKeepsDerivedLinks(t *testing.T) {
	provider := &completionFake{err: errors.New("timeout")}
	s := NewAnswerSynthesizer(provider, 0)

	results := []domain.FusedResult{
		{Partition: "A", ChunkID: "1", Title: "One", Content: "c1", URL: "https://one"},
		{Partition: "A", ChunkID: "2", Content: "c2"},
		{Partition: "A", ChunkID: "3", Title: "Three", Content: "c3", URL: "https://three"},
		{Partition: "B", ChunkID: "4", Title: "Four", Content: "c4", URL: "https://four"},
		{Partition: "B", ChunkID: "5", Title: "Five", Content: "c5", URL: "https://five"},
	}
	answer := s.Synthesize(context.Background(), "q", results)

	if answer.Text != ProviderErrorAnswer {
		t.Fatalf("Text = %q", answer.Text)
	}
	if len(answer.Links) != 3 {
		t.Fatalf("expected 3 derived links, got %+v", answer.Links)
	}
	if answer.Sources[0] != "https://one" || answer.Sources[2] != "https://four" {
		t.Fatalf("unexpected sources: %v", answer.Sources)
	}
}

func TestSynthesizeEmptyReply(t *testing.T) {
	provider := &completionFake{reply: domain.CompletionResponse{Text: "   "}}
	s := NewAnswerSynthesizer(provider, 1000)

	answer := s.Synthesize(context.Background(), "q", []domain.FusedResult{{Partition: "A", ChunkID: "1", Content: "c"}})
	if answer.Text != EmptyReplyAnswer {
		t.Fatalf("Text = %q", answer.Text)
	}
}

func TestDerivedLinkLabelFromContent(t *testing.T) {
	long := "This first line is definitely longer than fifty characters in total\nsecond line"
	links := deriveLinks([]domain.FusedResult{
		{URL: "https://long", Content: long},
		{URL: "https://short", Content: "\n  Short line \nrest"},
	})

	if len(links) != 2 {
		t.Fatalf("links = %+v", links)
	}
	want := "This first line is definitely longer than fifty ch..."
	if links[0].Label != want {
		t.Fatalf("Label = %q, want %q", links[0].Label, want)
	}
	if links[1].Label != "Short line" {
		t.Fatalf("Label = %q, want %q", links[1].Label, "Short line")
	}
}
