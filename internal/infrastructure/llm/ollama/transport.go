package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/resilience"
)

// errorReply is the body Ollama sends with non-2xx statuses.
type errorReply struct {
	Error string `json:"error"`
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(operation, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

// statusError keeps only the message when the body is Ollama's JSON error.
func statusError(operation string, resp *http.Response) *resilience.StatusError {
	statusErr := resilience.NewStatusError("ollama", operation, resp)
	var reply errorReply
	if err := json.Unmarshal([]byte(statusErr.Body), &reply); err == nil && strings.TrimSpace(reply.Error) != "" {
		statusErr.Body = reply.Error
	}
	return statusErr
}
