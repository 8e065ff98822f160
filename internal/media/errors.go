package media

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the stable category of a caller-visible failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidInput
	KindContentTooLong
	KindFileTooLarge
	KindAuthenticationRequired
	KindExtractionFailed
	KindDownloadIncomplete
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindContentTooLong:
		return "content_too_long"
	case KindFileTooLarge:
		return "file_too_large"
	case KindAuthenticationRequired:
		return "authentication_required"
	case KindExtractionFailed:
		return "extraction_failed"
	case KindDownloadIncomplete:
		return "download_incomplete"
	default:
		return "unknown"
	}
}

// Error is the single error shape returned by caller-facing operations.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

// Sentinels for errors.Is; matching is by kind only.
var (
	ErrInvalidInput           = &Error{Kind: KindInvalidInput}
	ErrContentTooLong         = &Error{Kind: KindContentTooLong}
	ErrFileTooLarge           = &Error{Kind: KindFileTooLarge}
	ErrAuthenticationRequired = &Error{Kind: KindAuthenticationRequired}
	ErrExtractionFailed       = &Error{Kind: KindExtractionFailed}
	ErrDownloadIncomplete     = &Error{Kind: KindDownloadIncomplete}
)

// Errorf builds an Error of the given kind with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind that keeps err as its cause.
func Wrap(kind ErrorKind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// HTTPStatus maps the kind to the status a route layer should answer with.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindContentTooLong:
		return http.StatusUnprocessableEntity
	case KindFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindAuthenticationRequired:
		return http.StatusForbidden
	case KindExtractionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
