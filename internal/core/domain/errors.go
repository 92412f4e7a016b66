package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTemporary         = errors.New("temporary failure")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrMalformedSource   = errors.New("malformed source document")
)

var errorKinds = []struct {
	kind  error
	label string
}{
	{ErrInvalidInput, "invalid_input"},
	{ErrMalformedSource, "malformed_source"},
	{ErrDimensionMismatch, "dimension_mismatch"},
	{ErrNotFound, "not_found"},
	{ErrUnauthorized, "unauthorized"},
	{ErrTemporary, "temporary"},
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// KindLabel returns a stable snake_case name for the first kind err wraps,
// or "internal".
func KindLabel(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.kind) {
			return k.label
		}
	}
	return "internal"
}
