package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/core/ports"
)

const (
	NoResultsAnswer     = "I couldn't find relevant information for your question. Please try rephrasing or asking a more specific question."
	ProviderErrorAnswer = "Sorry, I encountered an error while generating the answer."
	EmptyReplyAnswer    = "I apologize, but I couldn't generate a proper response. Please try again."

	maxDerivedLinks = 3
	maxLinkLabelLen = 50
)

const answerSystemPrompt = `You are a helpful teaching assistant for a course. Answer student questions using the provided course content.

Guidelines:
1. Provide clear, accurate answers based on the course content.
2. If the content doesn't fully answer the question, say so and share what is available.
3. Use examples from the course content when relevant.
4. Structure the answer in a logical, easy-to-follow manner.

Respond with a JSON object: {"answer": "<answer text>", "links": [{"url": "<source url>", "text": "<short description>"}]}.
Only cite URLs that appear in the context.`

type AnswerSynthesizer struct {
	provider         ports.CompletionProvider
	maxContextLength int
}

func NewAnswerSynthesizer(provider ports.CompletionProvider, maxContextLength int) *AnswerSynthesizer {
	return &AnswerSynthesizer{
		provider:         provider,
		maxContextLength: maxContextLength,
	}
}

// Synthesize never fails: provider errors and empty replies degrade to fixed
// answers that still carry links derived from the context sources.
func (s *AnswerSynthesizer) Synthesize(ctx context.Context, question string, results []domain.FusedResult) domain.Answer {
	if len(results) == 0 {
		return newAnswer(NoResultsAnswer, nil)
	}

	contextText, included := AssembleContext(results, s.maxContextLength)
	derived := deriveLinks(included)

	reply, err := s.provider.Complete(ctx, domain.CompletionRequest{
		SystemPrompt: answerSystemPrompt,
		Messages: []domain.Message{
			{Role: "user", Content: buildAnswerPrompt(contextText, question)},
		},
		JSON: true,
	})
	if err != nil {
		slog.Warn("answer_generation_failed", "sources", len(included), "error", err)
		return newAnswer(ProviderErrorAnswer, derived)
	}

	links := normalizeCitations(reply.Citations)
	if len(links) == 0 {
		links = derived
	}

	text := strings.TrimSpace(reply.Text)
	if text == "" {
		return newAnswer(EmptyReplyAnswer, links)
	}
	return newAnswer(text, links)
}

func buildAnswerPrompt(contextText, question string) string {
	return fmt.Sprintf(`Context from course materials:
%s

Student Question: %s

Please provide a comprehensive answer based on the provided context. If the context doesn't contain enough information to fully answer the question, acknowledge this and provide what information you can.`, contextText, question)
}

func newAnswer(text string, links []domain.Link) domain.Answer {
	if links == nil {
		links = []domain.Link{}
	}
	return domain.Answer{
		Text:    text,
		Sources: domain.SourcesFromLinks(links),
		Links:   links,
	}
}

// normalizeCitations accepts plain URL strings and {url, label|text} objects,
// dropping entries without a URL and repeated URLs.
func normalizeCitations(raw []any) []domain.Link {
	links := make([]domain.Link, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))

	add := func(url, label string) {
		url = strings.TrimSpace(url)
		if url == "" {
			return
		}
		if _, ok := seen[url]; ok {
			return
		}
		seen[url] = struct{}{}
		label = strings.TrimSpace(label)
		if label == "" {
			label = url
		}
		links = append(links, domain.Link{URL: url, Label: label})
	}

	for _, item := range raw {
		switch v := item.(type) {
		case string:
			add(v, "")
		case domain.Link:
			add(v.URL, v.Label)
		case map[string]any:
			url, _ := v["url"].(string)
			label, _ := v["label"].(string)
			if label == "" {
				label, _ = v["text"].(string)
			}
			add(url, label)
		}
	}
	return links
}

func deriveLinks(sources []domain.FusedResult) []domain.Link {
	links := make([]domain.Link, 0, maxDerivedLinks)
	seen := make(map[string]struct{}, maxDerivedLinks)
	for _, src := range sources {
		if len(links) == maxDerivedLinks {
			break
		}
		url := strings.TrimSpace(src.URL)
		if url == "" {
			continue
		}
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		links = append(links, domain.Link{URL: url, Label: linkLabel(src)})
	}
	return links
}

func linkLabel(src domain.FusedResult) string {
	if title := strings.TrimSpace(src.Title); title != "" {
		return title
	}
	label := firstLine(src.Content)
	if label == "" {
		return strings.TrimSpace(src.URL)
	}
	if short, cut := truncateRunes(label, maxLinkLabelLen); cut {
		return short + "..."
	}
	return label
}
