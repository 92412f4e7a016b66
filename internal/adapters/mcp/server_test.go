package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

type answererFake struct {
	err      error
	question domain.Question
}

func (f *answererFake) Ask(_ context.Context, q domain.Question) (*domain.Answer, error) {
	f.question = q
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Answer{
		Text:    "Week 2 covers docker.",
		Sources: []string{"https://course/week2"},
		Links:   []domain.Link{{URL: "https://course/week2", Label: "Week 2"}},
	}, nil
}

type runsFake struct{}

func (runsFake) GetByID(_ context.Context, id string) (*domain.IngestionRun, error) {
	if id == "missing" {
		return nil, domain.WrapError(domain.ErrNotFound, "get run", errors.New(id))
	}
	return &domain.IngestionRun{ID: id, Status: domain.RunRunning}, nil
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(result.Content))
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestAskQuestionReturnsAnswerJSON(t *testing.T) {
	answerer := &answererFake{}
	h := &Handlers{answerer: answerer}

	result, err := h.AskQuestion(context.Background(), callRequest(map[string]any{"question": "what is in week 2?"}))
	if err != nil {
		t.Fatalf("AskQuestion() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}

	var answer domain.Answer
	if err := json.Unmarshal([]byte(resultText(t, result)), &answer); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if answer.Text != "Week 2 covers docker." || len(answer.Links) != 1 {
		t.Fatalf("unexpected answer: %+v", answer)
	}
	if answerer.question.Text != "what is in week 2?" {
		t.Fatalf("unexpected question: %+v", answerer.question)
	}
}

func TestAskQuestionRequiresQuestion(t *testing.T) {
	h := &Handlers{answerer: &answererFake{}}

	result, err := h.AskQuestion(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("AskQuestion() error = %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error")
	}
}

func TestAskQuestionReportsUseCaseError(t *testing.T) {
	h := &Handlers{answerer: &answererFake{err: errors.New("boom")}}

	result, err := h.AskQuestion(context.Background(), callRequest(map[string]any{"question": "q"}))
	if err != nil {
		t.Fatalf("AskQuestion() error = %v", err)
	}
	if !result.IsError {
		t.Fatalf("expected tool error")
	}
}

func TestGetIngestionRun(t *testing.T) {
	h := &Handlers{runs: runsFake{}}

	result, err := h.GetIngestionRun(context.Background(), callRequest(map[string]any{"run_id": "run-7"}))
	if err != nil {
		t.Fatalf("GetIngestionRun() error = %v", err)
	}
	var run domain.IngestionRun
	if err := json.Unmarshal([]byte(resultText(t, result)), &run); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if run.ID != "run-7" || run.Status != domain.RunRunning {
		t.Fatalf("unexpected run: %+v", run)
	}

	missing, err := h.GetIngestionRun(context.Background(), callRequest(map[string]any{"run_id": "missing"}))
	if err != nil {
		t.Fatalf("GetIngestionRun() error = %v", err)
	}
	if !missing.IsError {
		t.Fatalf("expected tool error for missing run")
	}
	if text := resultText(t, missing); !strings.Contains(text, "(not_found)") {
		t.Fatalf("expected kind label in %q", text)
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	if NewServer(&answererFake{}, runsFake{}) == nil {
		t.Fatalf("expected server")
	}
}
