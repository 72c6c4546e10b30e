// Package apperr defines the error taxonomy shared by the HTTP surfaces and
// the event listeners.
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

// Kind classifies an error by how callers must react to it.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindUnauthenticated
	KindNotFound
	KindNotAuthorized
	KindBusinessRule
	KindConflict
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindNotFound:
		return "not_found"
	case KindNotAuthorized:
		return "not_authorized"
	case KindBusinessRule:
		return "business_rule"
	case KindConflict:
		return "conflict"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Error is the concrete error type carried through the services.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	for _, f := range e.Fields {
		b.WriteString("; ")
		if f.Field != "" {
			b.WriteString(f.Field)
			b.WriteString(" ")
		}
		b.WriteString(f.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels below, so errors.Is(err, ErrNotFound) holds
// for every NotFound error regardless of its message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && len(t.Fields) == 0 && t.Kind == e.Kind
}

var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrNotAuthorized   = &Error{Kind: KindNotAuthorized}
	ErrBusinessRule    = &Error{Kind: KindBusinessRule}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrInfrastructure  = &Error{Kind: KindInfrastructure}
)

func Validation(fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: "invalid request", Fields: fields}
}

// Malformed reports a payload that could not be decoded at all.
func Malformed(err error) *Error {
	return &Error{Kind: KindValidation, Message: "malformed payload", Err: err}
}

func Unauthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, Message: "Not authorized"}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func NotAuthorized() *Error {
	return &Error{Kind: KindNotAuthorized, Message: "Not authorized"}
}

func BusinessRule(msg string) *Error {
	return &Error{Kind: KindBusinessRule, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func Infrastructure(msg string, err error) *Error {
	return &Error{Kind: KindInfrastructure, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// HTTPStatus maps an error to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindBusinessRule:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Serialize renders err as the list used in HTTP error bodies. Unknown and
// infrastructure errors never leak their internals.
func Serialize(err error) []FieldError {
	var e *Error
	if !errors.As(err, &e) || e.Kind == KindUnknown || e.Kind == KindInfrastructure {
		return []FieldError{{Message: "Something went wrong"}}
	}
	if len(e.Fields) > 0 {
		return e.Fields
	}
	return []FieldError{{Message: e.Message}}
}
