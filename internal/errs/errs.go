// Package errs defines the error taxonomy shared across miniclaw packages.
//
// Every layer classifies failures into one of these kinds before they cross
// a component boundary; callers test with errors.Is against the sentinel
// kinds or KindOf to recover the classification for branching logic.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a coarse error classification, not a concrete error type.
type Kind string

const (
	Config           Kind = "config"
	Transport        Kind = "transport"
	ModelTransient   Kind = "model_transient"
	ModelPermanent   Kind = "model_permanent"
	InvalidArguments Kind = "invalid_arguments"
	PermissionDenied Kind = "permission_denied"
	NotFound         Kind = "not_found"
	Timeout          Kind = "timeout"
	Storage          Kind = "storage"
	Corrupt          Kind = "corrupt"
	Internal         Kind = "internal"
)

// Error is a classified error carrying a kind, a message, and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, errs.New(errs.NotFound, "")) to test only the kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New constructs a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a classified error around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the Kind of err if it (or something it wraps) is *Error,
// and Internal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}
