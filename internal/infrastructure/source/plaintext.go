package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

// PlainTextReader reads .txt files. Files that are not valid UTF-8 or are
// blank count as skipped.
type PlainTextReader struct{}

func (PlainTextReader) Read(ctx context.Context, src domain.PartitionSource) ([]domain.SourceDocument, int, error) {
	files, err := listFiles(src.Path, ".txt")
	if err != nil {
		return nil, 0, err
	}

	docs := make([]domain.SourceDocument, 0, len(files))
	skipped := 0
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		raw, err := os.ReadFile(file.path)
		if err != nil || !utf8.Valid(raw) {
			skipped++
			continue
		}
		text := strings.TrimSpace(string(raw))
		if text == "" {
			skipped++
			continue
		}
		docs = append(docs, domain.SourceDocument{
			ID:         src.Name + "_" + slug(file.rel),
			Title:      strings.TrimSuffix(filepath.Base(file.rel), filepath.Ext(file.rel)),
			Timestamp:  file.modTime,
			URL:        joinURL(src.BaseURL, filepath.ToSlash(file.rel)),
			RawContent: text,
		})
	}
	return docs, skipped, nil
}
