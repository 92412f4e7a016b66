package source

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

const (
	FormatDiscourse = "discourse"
	FormatMarkdown  = "markdown"
	FormatJSONL     = "jsonl"
	FormatPDF       = "pdf"
	FormatXLSX      = "xlsx"
	FormatText      = "text"
)

type reader interface {
	Read(ctx context.Context, src domain.PartitionSource) ([]domain.SourceDocument, int, error)
}

// Registry dispatches partition sources to the reader registered for their format.
type Registry struct {
	readers map[string]reader
}

func NewRegistry() *Registry {
	return &Registry{
		readers: map[string]reader{
			FormatDiscourse: DiscourseReader{},
			FormatMarkdown:  MarkdownReader{},
			FormatJSONL:     JSONLReader{},
			FormatPDF:       PDFReader{},
			FormatXLSX:      SpreadsheetReader{},
			FormatText:      PlainTextReader{},
		},
	}
}

func (r *Registry) Read(ctx context.Context, src domain.PartitionSource) ([]domain.SourceDocument, int, error) {
	rd, ok := r.readers[strings.ToLower(strings.TrimSpace(src.Format))]
	if !ok {
		return nil, 0, domain.WrapError(domain.ErrInvalidInput, "read source", fmt.Errorf("unsupported format %q", src.Format))
	}
	if strings.TrimSpace(src.Path) == "" {
		return nil, 0, domain.WrapError(domain.ErrInvalidInput, "read source", fmt.Errorf("partition %s has no path", src.Name))
	}
	return rd.Read(ctx, src)
}

// Supported reports whether a reader exists for format.
func (r *Registry) Supported(format string) bool {
	_, ok := r.readers[strings.ToLower(strings.TrimSpace(format))]
	return ok
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slug(path string) string {
	base := strings.TrimSuffix(filepath.ToSlash(path), filepath.Ext(path))
	out := slugRe.ReplaceAllString(strings.ToLower(base), "-")
	return strings.Trim(out, "-")
}

func joinURL(base, path string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
