package elasticsearch

import (
	"errors"

	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/resilience"
)

func isStatus(err error, code int) bool {
	var statusErr *resilience.StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	return resilience.WrapTemporary(operation, err, resilience.ClassifyHTTPError)
}
