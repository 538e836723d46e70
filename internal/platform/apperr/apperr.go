package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for propagation decisions and for the HTTP edge.
type Kind string

const (
	// KindInvalidInput: unusable input text/file, user-correctable.
	KindInvalidInput Kind = "invalid_input"
	// KindExtraction: stored file unreadable/empty/encrypted, user-correctable.
	KindExtraction Kind = "extraction_failed"
	// KindEmbeddingService: embedding provider failure after retries.
	KindEmbeddingService Kind = "embedding_service"
	// KindCompletionService: chat-completion provider failure after retries.
	KindCompletionService Kind = "completion_service"
	// KindRateLimit: provider 429; always retried before surfacing.
	KindRateLimit Kind = "rate_limited"
	// KindScopeViolation: cross-owner data observed; internal invariant failure.
	KindScopeViolation Kind = "scope_violation"
	// KindTimeout: upstream call exceeded its budget.
	KindTimeout Kind = "timeout"
	// KindNotFound: missing row for the caller's scope.
	KindNotFound Kind = "not_found"
)

type Error struct {
	Kind   Kind
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// HTTPStatusCode satisfies httpx.HTTPStatusCoder when an upstream status is known.
func (e *Error) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.Status
}

func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func WithStatus(kind Kind, status int, err error) *Error {
	return &Error{Kind: kind, Status: status, Err: err}
}

// Is makes errors.Is(err, &Error{Kind: k}) match on kind alone.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) && e != nil {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
