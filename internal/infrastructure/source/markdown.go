package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

// MarkdownReader reads every .md file under the source path as one document.
type MarkdownReader struct{}

func (MarkdownReader) Read(ctx context.Context, src domain.PartitionSource) ([]domain.SourceDocument, int, error) {
	files, err := listFiles(src.Path, ".md")
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
		if err != nil {
			skipped++
			continue
		}
		content := string(raw)
		docs = append(docs, domain.SourceDocument{
			ID:         src.Name + "_" + slug(file.rel),
			Title:      markdownTitle(content, file.rel),
			Timestamp:  file.modTime,
			URL:        joinURL(src.BaseURL, strings.TrimSuffix(filepath.ToSlash(file.rel), ".md")),
			RawContent: content,
		})
	}
	return docs, skipped, nil
}

func markdownTitle(content, rel string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
}

type sourceFile struct {
	path    string
	rel     string
	modTime time.Time
}

// listFiles returns files with ext under root (or root itself when it is a
// file), sorted by relative path so ingestion order is stable.
func listFiles(root, ext string) ([]sourceFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat source path: %w", err)
	}
	if !info.IsDir() {
		return []sourceFile{{path: root, rel: filepath.Base(root), modTime: info.ModTime().UTC()}}, nil
	}

	var out []sourceFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ext) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, sourceFile{path: path, rel: rel, modTime: fi.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk source path: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rel < out[j].rel })
	return out, nil
}
