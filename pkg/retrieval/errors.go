package retrieval

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the stable error tag surfaced to callers. The HTTP layer maps
// kinds to status codes; the tags themselves are part of the API.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindDimensionMismatch Kind = "dimension_mismatch"
	KindProvider          Kind = "provider"
	KindTimeout           Kind = "timeout"
	KindStorage           Kind = "storage"
	KindNotFound          Kind = "not_found"
)

// Error carries a kind tag alongside a human-readable message. Wrapped
// causes stay reachable through errors.Unwrap.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError reports invalid input shape or length
func NewValidationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NewDimensionMismatchError reports a vector whose length disagrees
// with the store's fixed dimension
func NewDimensionMismatchError(want, got int) error {
	return &Error{
		Kind:    KindDimensionMismatch,
		Message: fmt.Sprintf("expected vector of dimension %d, got %d", want, got),
	}
}

// NewProviderError wraps an embedding provider failure
func NewProviderError(err error) error {
	return &Error{Kind: KindProvider, Message: "embedding provider call failed", Err: err}
}

// NewTimeoutError wraps a call that exceeded its budget
func NewTimeoutError(operation string, err error) error {
	return &Error{Kind: KindTimeout, Message: fmt.Sprintf("%s exceeded its time budget", operation), Err: err}
}

// NewStorageError wraps a storage engine failure
func NewStorageError(err error) error {
	return &Error{Kind: KindStorage, Message: "storage operation failed", Err: err}
}

// NewNotFoundError reports a missing record within the caller's scope
func NewNotFoundError(id int64) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("embedding %d not found", id)}
}

// KindOf extracts the kind tag from an error chain. Context deadline
// errors are reported as timeouts even when raised below the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return ""
}

// IsKind reports whether err carries the given kind tag
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
