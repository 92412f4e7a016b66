package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/course-rag-assistant/internal/infrastructure/resilience"
)

func classifyNATSError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	switch {
	case errors.Is(err, nats.ErrNoServers),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrConnectionReconnecting),
		errors.Is(err, nats.ErrDisconnected):
		return resilience.Transient
	case errors.Is(err, nats.ErrMaxPayload), errors.Is(err, nats.ErrBadSubject):
		return resilience.Rejected
	default:
		return resilience.Permanent
	}
}

func wrapTemporaryIfNeeded(err error) error {
	return resilience.WrapTemporary("nats.publish", err, classifyNATSError)
}
