package core

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Every error leaving the ledger wraps exactly one of these.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateName       = errors.New("already exists")
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrMalformedCredential = errors.New("malformed credential")
	ErrUnavailable         = errors.New("store unavailable")
	ErrTimeout             = errors.New("store timeout")
	ErrInternal            = errors.New("internal error")
)

var kinds = []error{
	ErrInvalidArgument,
	ErrNotFound,
	ErrDuplicateName,
	ErrUnauthenticated,
	ErrMalformedCredential,
	ErrUnavailable,
	ErrTimeout,
	ErrInternal,
}

// kindError attaches a kind to a cause without changing the cause's message.
type kindError struct {
	kind  error
	cause error
}

func (e *kindError) Error() string {
	return e.cause.Error()
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.cause}
}

// Invalid marks err as an InvalidArgument error.
func Invalid(err error) error {
	return &kindError{kind: ErrInvalidArgument, cause: err}
}

// NotFound builds a NotFound error for the named category.
func NotFound(name string) error {
	return fmt.Errorf("category %q: %w", name, ErrNotFound)
}

// Duplicate builds a DuplicateName error for the named category.
func Duplicate(name string) error {
	return fmt.Errorf("category %q %w", name, ErrDuplicateName)
}

// KindOf returns the kind sentinel err carries. Unclassified errors are Internal,
// context deadlines are Timeout.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrInternal
}

// Message returns text safe to show a caller. Store-side failures are reduced
// to their kind so driver details never leave the process.
func Message(err error) string {
	if err == nil {
		return ""
	}
	switch k := KindOf(err); k {
	case ErrInternal, ErrUnavailable, ErrTimeout:
		return k.Error()
	default:
		return err.Error()
	}
}
