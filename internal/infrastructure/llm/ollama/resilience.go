package ollama

import (
	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/resilience"
)

func wrapTemporaryIfNeeded(operation string, err error) error {
	return resilience.WrapTemporary(operation, err, resilience.ClassifyHTTPError)
}
