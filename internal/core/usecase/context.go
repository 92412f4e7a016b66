package usecase

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

// AssembleContext renders ranked results into a prompt context. Entries are
// taken in the given order while the accumulated content length stays within
// maxLength; the first entry that does not fit ends assembly. Blank entries
// are skipped and entries are never truncated. maxLength <= 0 disables the
// limit.
func AssembleContext(results []domain.FusedResult, maxLength int) (string, []domain.FusedResult) {
	parts := make([]string, 0, len(results))
	included := make([]domain.FusedResult, 0, len(results))
	running := 0

	for _, result := range results {
		if strings.TrimSpace(result.Content) == "" {
			continue
		}
		size := utf8.RuneCountInString(result.Content)
		if maxLength > 0 && running+size > maxLength {
			break
		}
		running += size
		included = append(included, result)
		parts = append(parts, fmt.Sprintf("[Source %d] (%s) %s", len(included), sourceLabel(result), result.Content))
	}

	return strings.Join(parts, "\n\n"), included
}

func sourceLabel(result domain.FusedResult) string {
	title := strings.TrimSpace(result.Title)
	if title == "" {
		return result.Partition
	}
	return result.Partition + "/" + title
}
