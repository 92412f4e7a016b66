package httpadapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/course-rag-assistant/internal/config"
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
		Text:    "Use the submission portal.",
		Sources: []string{"https://course/submit"},
		Links:   []domain.Link{{URL: "https://course/submit", Label: "Submit"}},
	}, nil
}

type enqueuerFake struct {
	err       error
	partition string
	format    string
	body      string
}

func (f *enqueuerFake) Enqueue(_ context.Context, partition, format, filename string, body io.Reader) (*domain.IngestionRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.partition, f.format, f.body = partition, format, string(raw)
	now := time.Now().UTC()
	return &domain.IngestionRun{
		ID:         "run-1",
		Partition:  partition,
		Format:     format,
		SourcePath: "run-1/" + filename,
		Status:     domain.RunQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

type runsFake struct {
	err error
}

func (f runsFake) GetByID(_ context.Context, id string) (*domain.IngestionRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.IngestionRun{ID: id, Status: domain.RunCompleted, Report: domain.IngestionReport{Indexed: 3}}, nil
}

func newTestHandler(cfg config.Config) http.Handler {
	return NewRouter(cfg, &answererFake{}, &enqueuerFake{}, runsFake{}).Handler()
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestHealthzEndpoint(t *testing.T) {
	handler := newTestHandler(config.Config{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestAskReturnsAnswer(t *testing.T) {
	answerer := &answererFake{}
	handler := NewRouter(config.Config{}, answerer, nil, nil).Handler()

	res := postJSON(t, handler, "/v1/ask", map[string]any{"question": "how do I submit?"})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}

	var resp struct {
		Answer  string   `json:"answer"`
		Sources []string `json:"sources"`
		Links   []struct {
			URL  string `json:"url"`
			Text string `json:"text"`
		} `json:"links"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Answer == "" || len(resp.Sources) != 1 || resp.Links[0].Text != "Submit" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if answerer.question.Text != "how do I submit?" {
		t.Fatalf("unexpected question: %+v", answerer.question)
	}
}

func TestAskDecodesDataURLImage(t *testing.T) {
	answerer := &answererFake{}
	handler := NewRouter(config.Config{}, answerer, nil, nil).Handler()
	image := base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'})

	res := postJSON(t, handler, "/v1/ask", map[string]any{"question": "", "image": "data:image/png;base64," + image})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !bytes.Equal(answerer.question.ImageData, []byte{0x89, 'P', 'N', 'G'}) {
		t.Fatalf("unexpected image bytes: %v", answerer.question.ImageData)
	}
}

func TestAskRejectsBadImage(t *testing.T) {
	handler := newTestHandler(config.Config{})

	res := postJSON(t, handler, "/v1/ask", map[string]any{"question": "q", "image": "%%%"})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestAskMapsDomainInvalidInputTo400(t *testing.T) {
	handler := NewRouter(
		config.Config{},
		&answererFake{err: domain.WrapError(domain.ErrInvalidInput, "ask question", errors.New("empty"))},
		nil,
		nil,
	).Handler()

	res := postJSON(t, handler, "/v1/ask", map[string]any{"question": ""})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestCreateRunAcceptsUpload(t *testing.T) {
	enqueuer := &enqueuerFake{}
	handler := NewRouter(config.Config{}, &answererFake{}, enqueuer, runsFake{}).Handler()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("partition", "discourse"); err != nil {
		t.Fatalf("WriteField() error = %v", err)
	}
	if err := writer.WriteField("format", "discourse"); err != nil {
		t.Fatalf("WriteField() error = %v", err)
	}
	part, err := writer.CreateFormFile("file", "posts.json")
	if err != nil {
		t.Fatalf("CreateFormFile() error = %v", err)
	}
	if _, err := part.Write([]byte("[]")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/ingestion/runs", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", res.Code, res.Body.String())
	}
	var runResp map[string]any
	if err := json.NewDecoder(res.Body).Decode(&runResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if runResp["id"] != "run-1" || runResp["status"] != "queued" {
		t.Fatalf("unexpected response: %+v", runResp)
	}
	if enqueuer.partition != "discourse" || enqueuer.body != "[]" {
		t.Fatalf("unexpected enqueue call: %+v", enqueuer)
	}
}

func TestCreateRunMissingMultipartField(t *testing.T) {
	handler := newTestHandler(config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/v1/ingestion/runs", bytes.NewBufferString("plain-text"))
	req.Header.Set("Content-Type", "text/plain")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestCreateRunWithoutQueueReturns503(t *testing.T) {
	handler := NewRouter(config.Config{}, &answererFake{}, nil, nil).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/ingestion/runs", bytes.NewBufferString(""))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestGetRunReturns404ForNotFound(t *testing.T) {
	handler := NewRouter(
		config.Config{},
		&answererFake{},
		&enqueuerFake{},
		runsFake{err: domain.WrapError(domain.ErrNotFound, "get run", errors.New("id=missing"))},
	).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/ingestion/runs/missing", nil))

	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: domain.WrapError(domain.ErrTemporary, "op", errors.New("x")), want: http.StatusServiceUnavailable},
		{err: domain.WrapError(domain.ErrDimensionMismatch, "op", errors.New("x")), want: http.StatusConflict},
		{err: domain.WrapError(domain.ErrMalformedSource, "op", errors.New("x")), want: http.StatusBadRequest},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestDomainErrorResponseCarriesKind(t *testing.T) {
	handler := NewRouter(
		config.Config{},
		&answererFake{err: domain.WrapError(domain.ErrTemporary, "embed question", errors.New("ollama down"))},
		nil,
		nil,
	).Handler()

	res := postJSON(t, handler, "/v1/ask", map[string]any{"question": "q"})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["kind"] != "temporary" {
		t.Fatalf("kind = %q, want temporary", body["kind"])
	}
}

func TestInternalErrorTextIsHidden(t *testing.T) {
	handler := NewRouter(config.Config{}, &answererFake{err: errors.New("pq: password authentication failed")}, nil, nil).Handler()

	res := postJSON(t, handler, "/v1/ask", map[string]any{"question": "q"})
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "password") {
		t.Fatalf("internal error leaked: %s", res.Body.String())
	}
}

func TestHealthzReportsOpenBreakers(t *testing.T) {
	handler := NewRouter(config.Config{}, &answererFake{}, nil, nil, WithBreakerStates(func() map[string]string {
		return map[string]string{"ollama.embed": "open", "qdrant.search": "closed"}
	})).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body struct {
		Status   string            `json:"status"`
		Breakers map[string]string `json:"breakers"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "degraded" || body.Breakers["ollama.embed"] != "open" {
		t.Fatalf("unexpected health: %+v", body)
	}
}
