package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/course-rag-assistant/internal/core/domain"
)

// ErrorClassification tells the executor whether to retry an error and
// whether it counts against the operation's circuit breaker.
type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

var (
	// Transient errors are retried and counted by the breaker.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Permanent errors fail fast but still count as backend failures.
	Permanent = ErrorClassification{Retryable: false, RecordFailure: true}
	// Rejected errors are caller mistakes: no retry, no breaker failure.
	Rejected = ErrorClassification{Retryable: false, RecordFailure: false}
)

// ClassifyCommon handles the cases every backend shares: nil, caller
// cancellation and an open breaker. ok is false when the backend classifier
// must decide.
func ClassifyCommon(err error) (class ErrorClassification, ok bool) {
	switch {
	case err == nil:
		return ErrorClassification{}, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Rejected, true
	case IsCircuitOpen(err):
		return Transient, true
	default:
		return ErrorClassification{}, false
	}
}

// WrapTemporary marks err as domain.ErrTemporary when classifier would retry
// it, so adapters can map it to 503 and the worker can requeue.
func WrapTemporary(operation string, err error, classifier ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifier == nil {
		classifier = defaultClassifier
	}
	if classifier(err).Retryable || IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func defaultClassifier(error) ErrorClassification {
	return Permanent
}
