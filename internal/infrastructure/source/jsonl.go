package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

type jsonlRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
}

// JSONLReader reads one document per line: {id, title, url, timestamp, content}.
type JSONLReader struct{}

func (JSONLReader) Read(ctx context.Context, src domain.PartitionSource) ([]domain.SourceDocument, int, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, 0, fmt.Errorf("open jsonl source: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var docs []domain.SourceDocument
	skipped := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec jsonlRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			skipped++
			continue
		}
		doc := domain.SourceDocument{
			ID:         strings.TrimSpace(rec.ID),
			Title:      rec.Title,
			URL:        rec.URL,
			RawContent: rec.Content,
		}
		if ts, err := parseTimestamp(rec.Timestamp); err == nil {
			doc.Timestamp = ts
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan jsonl source: %w", err)
	}
	return docs, skipped, nil
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}
