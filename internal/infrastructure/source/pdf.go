package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

// PDFReader emits one document per non-empty page of every PDF under the path.
type PDFReader struct{}

func (PDFReader) Read(ctx context.Context, src domain.PartitionSource) ([]domain.SourceDocument, int, error) {
	files, err := listFiles(src.Path, ".pdf")
	if err != nil {
		return nil, 0, err
	}

	var docs []domain.SourceDocument
	skipped := 0
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		pages, err := readPDFPages(file.path)
		if err != nil {
			skipped++
			continue
		}
		base := slug(file.rel)
		for i, text := range pages {
			if strings.TrimSpace(text) == "" {
				continue
			}
			docs = append(docs, domain.SourceDocument{
				ID:         fmt.Sprintf("%s_%s_p%d", src.Name, base, i+1),
				Title:      fmt.Sprintf("%s (page %d)", strings.TrimSuffix(file.rel, ".pdf"), i+1),
				Timestamp:  file.modTime,
				URL:        joinURL(src.BaseURL, file.rel),
				RawContent: text,
			})
		}
	}
	return docs, skipped, nil
}

func readPDFPages(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract pdf page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
