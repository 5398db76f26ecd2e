package models

import "errors"

// Kind is a behavioral error category, mapped to an HTTP status at the
// top-level handler rather than carried as a concrete type per call site.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindNotFound          Kind = "not_found"
	KindAccessDenied      Kind = "access_denied"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindToolFailure       Kind = "tool_failure"
	KindCancelled         Kind = "cancelled"
	KindInternal          Kind = "internal_error"
)

// Error is a classified, user-displayable error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified Error with a user-safe message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// ErrCancelled is returned by the Agent Loop when the process-wide stop flag
// or a job cancellation aborts a run.
var ErrCancelled = NewError(KindCancelled, "cancelled")

// AsKind extracts the Kind of a classified error, defaulting to KindInternal.
func AsKind(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to its HTTP status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return 400
	case KindNotFound:
		return 404
	case KindAccessDenied:
		return 403
	case KindBackendUnavailable:
		return 503
	case KindCancelled:
		return 499
	default:
		return 500
	}
}
