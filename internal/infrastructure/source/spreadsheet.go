package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

// SpreadsheetReader reads every sheet of an .xlsx workbook. The first row
// holds headers; id and content columns are required, title, url and
// timestamp are optional.
type SpreadsheetReader struct{}

func (SpreadsheetReader) Read(ctx context.Context, src domain.PartitionSource) ([]domain.SourceDocument, int, error) {
	f, err := excelize.OpenFile(src.Path)
	if err != nil {
		return nil, 0, fmt.Errorf("open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	var docs []domain.SourceDocument
	skipped := 0
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, 0, fmt.Errorf("read sheet %s: %w", sheet, err)
		}
		sheetDocs, sheetSkipped := rowsToDocuments(rows)
		docs = append(docs, sheetDocs...)
		skipped += sheetSkipped
	}
	return docs, skipped, nil
}

func rowsToDocuments(rows [][]string) ([]domain.SourceDocument, int) {
	if len(rows) < 2 {
		return nil, 0
	}
	cols := make(map[string]int, len(rows[0]))
	for i, header := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(header))] = i
	}
	if _, ok := cols["content"]; !ok {
		return nil, len(rows) - 1
	}

	cell := func(row []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	docs := make([]domain.SourceDocument, 0, len(rows)-1)
	skipped := 0
	for _, row := range rows[1:] {
		doc := domain.SourceDocument{
			ID:         cell(row, "id"),
			Title:      cell(row, "title"),
			URL:        cell(row, "url"),
			RawContent: cell(row, "content"),
		}
		if doc.ID == "" && doc.RawContent == "" {
			continue
		}
		if doc.ID == "" {
			skipped++
			continue
		}
		if ts, err := parseTimestamp(cell(row, "timestamp")); err == nil {
			doc.Timestamp = ts
		}
		docs = append(docs, doc)
	}
	return docs, skipped
}
