package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := Newf(KindExtraction, "file unreadable: %s", "scan.pdf")
	wrapped := fmt.Errorf("analyze document: %w", base)

	if got := KindOf(wrapped); got != KindExtraction {
		t.Fatalf("KindOf=%q, want %q", got, KindExtraction)
	}
	if !IsKind(wrapped, KindExtraction) {
		t.Fatalf("IsKind(wrapped, extraction)=false")
	}
	if IsKind(wrapped, KindTimeout) {
		t.Fatalf("IsKind(wrapped, timeout)=true")
	}
}

func TestStatusCode(t *testing.T) {
	err := WithStatus(KindRateLimit, 429, errors.New("too many requests"))
	if err.HTTPStatusCode() != 429 {
		t.Fatalf("HTTPStatusCode=%d, want 429", err.HTTPStatusCode())
	}

	var e *Error
	if !errors.As(fmt.Errorf("embed: %w", err), &e) {
		t.Fatalf("errors.As failed on wrapped *Error")
	}
	if e.Kind != KindRateLimit {
		t.Fatalf("Kind=%q, want %q", e.Kind, KindRateLimit)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != "" {
		t.Fatalf("KindOf(plain)=%q, want empty", got)
	}
}
