package httpadapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/course-rag-assistant/internal/config"
	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

type serverMetricsFake struct {
	mu       sync.Mutex
	rejected map[string]int
}

func (m *serverMetricsFake) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics\n"))
	})
}

func (m *serverMetricsFake) Middleware(_ string, next http.Handler) http.Handler {
	return next
}

func (m *serverMetricsFake) RecordRejected(_, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rejected == nil {
		m.rejected = make(map[string]int)
	}
	m.rejected[reason]++
}

func (m *serverMetricsFake) count(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rejected[reason]
}

// blockingAnswerer holds every Ask until release is closed.
type blockingAnswerer struct {
	started chan struct{}
	release chan struct{}
}

func (a *blockingAnswerer) Ask(ctx context.Context, _ domain.Question) (*domain.Answer, error) {
	a.started <- struct{}{}
	select {
	case <-a.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &domain.Answer{Text: "done", Sources: []string{}, Links: []domain.Link{}}, nil
}

func TestRateLimitReturns429AndSkipsHealthz(t *testing.T) {
	metrics := &serverMetricsFake{}
	handler := NewRouter(config.Config{
		APIRateLimitRPS:   1,
		APIRateLimitBurst: 1,
	}, &answererFake{}, &enqueuerFake{}, runsFake{}, WithMetrics(metrics)).Handler()

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/v1/ingestion/runs/run-1", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/v1/ingestion/runs/run-1", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
	if got := metrics.count("rate_limit"); got != 1 {
		t.Fatalf("rate_limit rejections = %d, want 1", got)
	}

	for _, path := range []string{"/healthz", "/metrics"} {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
		if res.Code != http.StatusOK {
			t.Fatalf("%s must bypass the rate limit, got %d", path, res.Code)
		}
	}
}

func TestBackpressureRejectsAskWhenSaturated(t *testing.T) {
	answerer := &blockingAnswerer{started: make(chan struct{}, 1), release: make(chan struct{})}
	metrics := &serverMetricsFake{}
	handler := NewRouter(config.Config{
		APIMaxInFlight:      1,
		APIBackpressureWait: 20 * time.Millisecond,
	}, answerer, nil, nil, WithMetrics(metrics)).Handler()

	done := make(chan int, 1)
	go func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/ask", strings.NewReader(`{"question":"first"}`))
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		done <- res.Code
	}()
	<-answerer.started

	res := postJSON(t, handler, "/v1/ask", map[string]any{"question": "second"})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for saturated gate, got %d", res.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode overload response: %v", err)
	}
	if body["error"] == "" {
		t.Fatalf("expected overload error message in response")
	}
	if got := metrics.count("backpressure"); got != 1 {
		t.Fatalf("backpressure rejections = %d, want 1", got)
	}

	close(answerer.release)
	select {
	case code := <-done:
		if code != http.StatusOK {
			t.Fatalf("first request expected 200, got %d", code)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for first request")
	}
}
