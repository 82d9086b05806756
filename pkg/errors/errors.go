// Package errors carries a machine-readable Code alongside a message so the
// HTTP layer can map failures without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// Code classifies a failure for transport mapping and retry decisions.
type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeForbidden        Code = "FORBIDDEN"
	CodeNotFound         Code = "NOT_FOUND"
	CodeExpired          Code = "EXPIRED"
	CodeConflict         Code = "CONFLICT"
	CodeStockUnavailable Code = "STOCK_UNAVAILABLE"
	CodeAlreadySettled   Code = "ALREADY_SETTLED"
	CodeIdempotency      Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit        Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal         Code = "INTERNAL_ERROR"
	CodeDependency       Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code is rendered. Client-facing codes echo the
// message the service chose (EchoMessage); the rest always show
// PublicMessage so internals never leak.
type Metadata struct {
	HTTPStatus     int
	PublicMessage  string
	EchoMessage    bool
	DetailsAllowed bool
	Retryable      bool
}

func clientError(status int, public string, details bool) Metadata {
	return Metadata{HTTPStatus: status, PublicMessage: public, EchoMessage: true, DetailsAllowed: details}
}

var catalog = map[Code]Metadata{
	CodeValidation:       clientError(http.StatusBadRequest, "validation failed", true),
	CodeUnauthorized:     clientError(http.StatusUnauthorized, "authentication required", false),
	CodeForbidden:        clientError(http.StatusForbidden, "access denied", false),
	CodeNotFound:         clientError(http.StatusNotFound, "resource not found", false),
	CodeExpired:          clientError(http.StatusGone, "link expired", false),
	CodeConflict:         clientError(http.StatusConflict, "conflict detected", true),
	CodeStockUnavailable: clientError(http.StatusConflict, "please choose another option", true),
	CodeAlreadySettled:   clientError(http.StatusConflict, "balance already settled", false),
	CodeIdempotency:      clientError(http.StatusConflict, "idempotency key reused", true),
	CodeRateLimit:        clientError(http.StatusTooManyRequests, "rate limit exceeded", false),

	CodeInternal:   {HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Retryable: true},
	CodeDependency: {HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "dependency unavailable", DetailsAllowed: true, Retryable: true},
}

// MetadataFor falls back to the internal error metadata for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := catalog[code]; ok {
		return meta
	}
	return catalog[CodeInternal]
}

// Error is the typed error returned across service boundaries. The zero
// value and a nil *Error both read as CodeInternal.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap keeps err reachable through errors.Is and errors.As.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// WithDetails attaches structured context that is rendered only for codes
// whose metadata allows it.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Code() Code {
	if e == nil || e.code == "" {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(string(e.Code()))
	if e.message != "" {
		b.WriteString(": ")
		b.WriteString(e.message)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	var typed *Error
	if err != nil && stderrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code carried by err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	return As(err).Code()
}

func IsCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// IsRetryable reports whether a caller may safely repeat the operation.
func IsRetryable(err error) bool {
	return err != nil && MetadataFor(CodeOf(err)).Retryable
}
