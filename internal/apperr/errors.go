package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and for the HTTP status it maps to.
type Kind int

const (
	Internal Kind = iota
	NotFound
	InvalidInput
	CorruptDocument
	SourceNotFound
	InvalidPageIndex
	EmptyOutput
	TooLarge
	TooMany
	RateLimited
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case InvalidInput:
		return "invalid_input"
	case CorruptDocument:
		return "corrupt_document"
	case SourceNotFound:
		return "source_not_found"
	case InvalidPageIndex:
		return "invalid_page_index"
	case EmptyOutput:
		return "empty_output"
	case TooLarge:
		return "too_large"
	case TooMany:
		return "too_many"
	case RateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is the service error type. Message is safe to show to clients;
// Err carries the underlying cause and is only ever logged.
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

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by kind, so errors.Is(err, ErrNotFound) holds
// for any NotFound error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInternal         = &Error{Kind: Internal}
	ErrNotFound         = &Error{Kind: NotFound}
	ErrInvalidInput     = &Error{Kind: InvalidInput}
	ErrCorruptDocument  = &Error{Kind: CorruptDocument}
	ErrSourceNotFound   = &Error{Kind: SourceNotFound}
	ErrInvalidPageIndex = &Error{Kind: InvalidPageIndex}
	ErrEmptyOutput      = &Error{Kind: EmptyOutput}
	ErrTooLarge         = &Error{Kind: TooLarge}
	ErrTooMany          = &Error{Kind: TooMany}
	ErrRateLimited      = &Error{Kind: RateLimited}
)

// New builds an error of the given kind with a client-facing message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of the given kind around cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// PublicMessage returns the message a client may see. Internal errors never
// expose their cause.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != Internal && e.Message != "" {
		return e.Message
	}
	return "Internal server error."
}

// HTTPStatus maps a kind onto a response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case NotFound, SourceNotFound:
		return http.StatusNotFound
	case InvalidInput, InvalidPageIndex, EmptyOutput, TooLarge, TooMany:
		return http.StatusBadRequest
	case RateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
