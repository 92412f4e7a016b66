package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/llm"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/resilience"
)

const defaultBatchSize = 100

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
	batchSize  int
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

// WithBatchSize caps the number of texts sent in one /api/embed call.
func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

func New(baseURL, genModel, embedModel string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		batchSize:  defaultBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Model() string {
	return "ollama/" + e.client.embedModel
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

// EmbedBatch returns one result per input; a rejected item fails only its
// own slot.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) []domain.EmbeddingResult {
	return llm.EmbedBatch(ctx, texts, e.client.batchSize, e.embed)
}

func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	vectors, err := resilience.Call(ctx, e.client.executor, "ollama.embed", func(callCtx context.Context) ([][]float32, error) {
		var response struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := e.client.postJSON(callCtx, "/api/embed", request, &response, "embed"); err != nil {
			return nil, err
		}
		return response.Embeddings, nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("ollama.embed", err)
	}
	return vectors, nil
}

// Completer answers chat requests through /api/chat.
type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error) {
	type chatMessage struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	messages := make([]chatMessage, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, msg := range req.Messages {
		messages = append(messages, chatMessage{Role: msg.Role, Content: msg.Content})
	}

	reqBody := map[string]any{
		"model":    c.client.genModel,
		"messages": messages,
		"stream":   false,
	}
	if req.JSON {
		reqBody["format"] = "json"
	}

	content, err := resilience.Call(ctx, c.client.executor, "ollama.chat", func(callCtx context.Context) (string, error) {
		var response struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}
		if err := c.client.postJSON(callCtx, "/api/chat", reqBody, &response, "chat"); err != nil {
			return "", err
		}
		return response.Message.Content, nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return domain.CompletionResponse{}, wrapTemporaryIfNeeded("ollama.chat", err)
	}

	if req.JSON {
		return llm.ParseReply(content), nil
	}
	return domain.CompletionResponse{Text: strings.TrimSpace(content)}, nil
}
