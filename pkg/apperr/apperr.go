// Package apperr defines the error taxonomy shared by all services.
// Errors carry a stable machine-readable kind alongside the human message;
// the HTTP layer maps kinds to status codes in one place.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation     Kind = "validation"
	KindAuthentication Kind = "authentication"
	KindAuthorization  Kind = "authorization"
	KindNotFound       Kind = "not_found"
	KindConflict       Kind = "conflict"
	KindConstraint     Kind = "constraint"
	KindThrottled      Kind = "throttled"
	KindInfrastructure Kind = "infrastructure"
)

// FieldProblem reports a single field-level validation failure.
type FieldProblem struct {
	Field   string `json:"field"`
	Problem string `json:"problem"`
}

// Error is the taxonomy error type. Message is safe to show to callers;
// wrapped causes are not.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldProblem
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches two taxonomy errors by kind, so errors.Is(err, apperr.NotFound("x"))
// style checks work without comparing messages.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return newError(KindValidation, format, args...) }

// ValidationFields builds a validation error carrying per-field problems.
func ValidationFields(message string, fields ...FieldProblem) *Error {
	return &Error{Kind: KindValidation, Message: message, Fields: fields}
}

func Authentication(format string, args ...any) *Error {
	return newError(KindAuthentication, format, args...)
}

func Authorization(format string, args ...any) *Error {
	return newError(KindAuthorization, format, args...)
}

func NotFound(format string, args ...any) *Error { return newError(KindNotFound, format, args...) }

func Conflict(format string, args ...any) *Error { return newError(KindConflict, format, args...) }

func Constraint(format string, args ...any) *Error { return newError(KindConstraint, format, args...) }

func Throttled(format string, args ...any) *Error { return newError(KindThrottled, format, args...) }

// Infrastructure wraps a persistence or storage failure. The message shown to
// callers stays generic; cause detail goes to logs only.
func Infrastructure(cause error, format string, args ...any) *Error {
	e := newError(KindInfrastructure, format, args...)
	e.cause = cause
	return e
}

// KindOf returns the taxonomy kind of err, or KindInfrastructure when err is
// not a taxonomy error (unknown failures are treated as infrastructure).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInfrastructure
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a taxonomy kind to its response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindConstraint:
		return http.StatusUnprocessableEntity
	case KindThrottled:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to surface to callers. Infrastructure
// detail is replaced with a generic failure line.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInfrastructure {
		return e.Message
	}
	return "internal error"
}

// FieldsOf returns field problems attached to err, if any.
func FieldsOf(err error) []FieldProblem {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}
