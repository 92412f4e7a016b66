// Package ocr talks to an external text-recognition service over HTTP.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/resilience"
)

type Client struct {
	endpoint   string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

// New returns a client posting raw image bytes to endpoint. The service
// answers with {"spans":[{"text":...,"confidence":...}]}.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ExtractSpans(ctx context.Context, image []byte) ([]domain.OCRSpan, error) {
	if len(image) == 0 {
		return nil, nil
	}

	spans, err := resilience.Call(ctx, c.executor, "ocr.extract", func(callCtx context.Context) ([]domain.OCRSpan, error) {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(image))
		if err != nil {
			return nil, fmt.Errorf("create ocr request: %w", err)
		}
		req.Header.Set("Content-Type", http.DetectContentType(image))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("ocr request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return nil, resilience.NewStatusError("ocr", "extract", resp)
		}
		var out struct {
			Spans []domain.OCRSpan `json:"spans"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("decode ocr response: %w", err)
		}
		return out.Spans, nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "ocr.extract", err)
	}
	return spans, nil
}
