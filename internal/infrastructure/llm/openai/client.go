// Package openai adapts any OpenAI-compatible endpoint to the embedding and
// completion ports.
package openai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/llm"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/resilience"
)

const defaultBatchSize = 100

type Client struct {
	api        *goopenai.Client
	chatModel  string
	embedModel string
	executor   *resilience.Executor
	batchSize  int
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func WithBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

func New(baseURL, apiKey, chatModel, embedModel string, opts ...Option) *Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if strings.TrimSpace(baseURL) != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	c := &Client{
		api:        goopenai.NewClientWithConfig(cfg),
		chatModel:  chatModel,
		embedModel: embedModel,
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
	return "openai/" + e.client.embedModel
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

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) []domain.EmbeddingResult {
	return llm.EmbedBatch(ctx, texts, e.client.batchSize, e.embed)
}

func (e *Embedder) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := resilience.Call(ctx, e.client.executor, "openai.embed", func(callCtx context.Context) (goopenai.EmbeddingResponse, error) {
		return e.client.api.CreateEmbeddings(callCtx, goopenai.EmbeddingRequestStrings{
			Input: texts,
			Model: goopenai.EmbeddingModel(e.client.embedModel),
		})
	}, classifyOpenAIError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("openai.embed", err)
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	vectors := make([][]float32, 0, len(data))
	for _, item := range data {
		vectors = append(vectors, item.Embedding)
	}
	return vectors, nil
}

type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

func (c *Completer) Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResponse, error) {
	messages := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, msg := range req.Messages {
		messages = append(messages, goopenai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}

	chatReq := goopenai.ChatCompletionRequest{
		Model:    c.client.chatModel,
		Messages: messages,
	}
	if req.JSON {
		chatReq.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := resilience.Call(ctx, c.client.executor, "openai.chat", func(callCtx context.Context) (goopenai.ChatCompletionResponse, error) {
		return c.client.api.CreateChatCompletion(callCtx, chatReq)
	}, classifyOpenAIError)
	if err != nil {
		return domain.CompletionResponse{}, wrapTemporaryIfNeeded("openai.chat", err)
	}
	if len(resp.Choices) == 0 {
		return domain.CompletionResponse{}, nil
	}

	content := resp.Choices[0].Message.Content
	if req.JSON {
		return llm.ParseReply(content), nil
	}
	return domain.CompletionResponse{Text: strings.TrimSpace(content)}, nil
}

func classifyOpenAIError(err error) resilience.ErrorClassification {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return resilience.ClassifyHTTPError(&resilience.StatusError{StatusCode: apiErr.HTTPStatusCode})
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return resilience.ClassifyHTTPError(&resilience.StatusError{StatusCode: reqErr.HTTPStatusCode})
	}
	return resilience.ClassifyHTTPError(err)
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	return resilience.WrapTemporary(operation, err, classifyOpenAIError)
}
