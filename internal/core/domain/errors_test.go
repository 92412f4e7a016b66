package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapErrorKeepsKindAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(ErrTemporary, "qdrant.search", cause)

	if !IsKind(err, ErrTemporary) || !errors.Is(err, cause) {
		t.Fatalf("WrapError() lost kind or cause: %v", err)
	}
	if WrapError(ErrTemporary, "op", nil) != nil {
		t.Fatalf("WrapError(nil) must be nil")
	}
}

func TestKindLabel(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{WrapError(ErrDimensionMismatch, "upsert", errors.New("768 != 1024")), "dimension_mismatch"},
		{fmt.Errorf("process run: %w", WrapError(ErrNotFound, "get run", errors.New("id=x"))), "not_found"},
		{errors.New("boom"), "internal"},
		{nil, "internal"},
	}
	for _, tc := range cases {
		if got := KindLabel(tc.err); got != tc.want {
			t.Fatalf("KindLabel(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
