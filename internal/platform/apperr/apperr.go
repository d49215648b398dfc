// Package apperr defines the error taxonomy exposed by the API. Every error
// carries a stable machine tag, a human detail, and optionally a recovery
// suggestion; the HTTP handler maps kinds to status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP status mapping.
type Kind int

const (
	KindValidation Kind = iota
	KindAuthentication
	KindCredentialExpired
	KindForbidden
	KindNotFound
	KindConflict
	KindInvariant
	KindNoFreeSeats
	KindSessionClosed
	KindUnavailable
)

// Well-known tags. Handlers may also use ad-hoc tags for field errors.
const (
	TagValidation            = "ValidationError"
	TagAuthenticationFailed  = "AuthenticationFailed"
	TagCredentialExpired     = "CredentialExpired"
	TagForbidden             = "Forbidden"
	TagNotFound              = "NotFound"
	TagConflict              = "Conflict"
	TagInvariantViolation    = "InvariantViolation"
	TagNoFreeSeats           = "NoFreeSeats"
	TagSessionClosed         = "SessionClosed"
	TagUnavailableDependency = "UnavailableDependency"
	TagActiveSessionExists   = "ActiveSessionExists"
	TagUnknownService        = "UnknownService"
	TagInvalidRole           = "InvalidRole"
)

// Error is the structured application error.
type Error struct {
	Kind       Kind
	Tag        string
	Detail     string
	Suggestion string
	Meta       map[string]interface{}
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Tag, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// WithSuggestion attaches a recovery hint and returns the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithMeta attaches a key/value pair surfaced in the response body.
func (e *Error) WithMeta(key string, value interface{}) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]interface{})
	}
	e.Meta[key] = value
	return e
}

// Wrap records an underlying cause without exposing it to clients.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func New(kind Kind, tag, detail string) *Error {
	return &Error{Kind: kind, Tag: tag, Detail: detail}
}

func Validation(detail string) *Error {
	return New(KindValidation, TagValidation, detail)
}

func Authentication(detail string) *Error {
	return New(KindAuthentication, TagAuthenticationFailed, detail)
}

func CredentialExpired(detail string) *Error {
	return New(KindCredentialExpired, TagCredentialExpired, detail)
}

func Forbidden(detail string) *Error {
	return New(KindForbidden, TagForbidden, detail)
}

func NotFound(detail string) *Error {
	return New(KindNotFound, TagNotFound, detail)
}

func Conflict(detail string) *Error {
	return New(KindConflict, TagConflict, detail)
}

func Invariant(detail string) *Error {
	return New(KindInvariant, TagInvariantViolation, detail)
}

func NoFreeSeats(detail string) *Error {
	return New(KindNoFreeSeats, TagNoFreeSeats, detail)
}

func SessionClosed(detail string) *Error {
	return New(KindSessionClosed, TagSessionClosed, detail)
}

func Unavailable(detail string) *Error {
	return New(KindUnavailable, TagUnavailableDependency, detail)
}

// HTTPStatus returns the status code promised by the API contract.
func HTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindCredentialExpired, KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindNoFreeSeats, KindSessionClosed:
		return http.StatusConflict
	case KindInvariant:
		return http.StatusUnprocessableEntity
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// AsError extracts the *Error from an error chain, or nil.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
