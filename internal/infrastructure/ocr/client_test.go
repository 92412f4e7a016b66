package ocr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractSpansPostsImageBytes(t *testing.T) {
	var received []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"spans":[{"text":"import pandas","confidence":0.93},{"text":"~~","confidence":0.2}]}`))
	}))
	defer server.Close()

	spans, err := New(server.URL).ExtractSpans(context.Background(), []byte("\x89PNG fake"))
	if err != nil {
		t.Fatalf("ExtractSpans() error = %v", err)
	}
	if string(received) != "\x89PNG fake" {
		t.Fatalf("unexpected body %q", received)
	}
	if len(spans) != 2 || spans[0].Text != "import pandas" || spans[1].Confidence != 0.2 {
		t.Fatalf("unexpected spans %+v", spans)
	}
}

func TestExtractSpansEmptyImageSkipsCall(t *testing.T) {
	spans, err := New("http://127.0.0.1:1").ExtractSpans(context.Background(), nil)
	if err != nil || spans != nil {
		t.Fatalf("expected no-op, got spans=%v err=%v", spans, err)
	}
}

func TestExtractSpansServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported image", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	if _, err := New(server.URL).ExtractSpans(context.Background(), []byte("img")); err == nil {
		t.Fatalf("expected error")
	}
}
