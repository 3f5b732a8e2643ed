// Package errors carries the typed failures the API maps onto HTTP. Services
// return *Error values; responses.WriteError turns the code into a status and
// decides how much of the message and details the caller may see.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeStateConflict     Code = "STATE_CONFLICT"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeEmptyCart         Code = "EMPTY_CART"
	CodeContention        Code = "CONTENTION"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata is the HTTP face of a code.
type Metadata struct {
	HTTPStatus     int
	PublicMessage  string
	Retryable      bool
	DetailsAllowed bool
	// CallerMessage lets the error's own message replace PublicMessage.
	CallerMessage bool
}

type trait uint8

const (
	retryable trait = 1 << iota
	details
	callerMessage
)

func describe(status int, public string, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		Retryable:      traits&retryable != 0,
		DetailsAllowed: traits&details != 0,
		CallerMessage:  traits&callerMessage != 0,
	}
}

var catalog = map[Code]Metadata{
	CodeValidation:        describe(http.StatusBadRequest, "validation failed", details|callerMessage),
	CodeUnauthorized:      describe(http.StatusUnauthorized, "authentication required", callerMessage),
	CodeForbidden:         describe(http.StatusForbidden, "access denied", callerMessage),
	CodeNotFound:          describe(http.StatusNotFound, "resource not found", callerMessage),
	CodeConflict:          describe(http.StatusConflict, "conflict detected", callerMessage),
	CodeStateConflict:     describe(http.StatusUnprocessableEntity, "state transition disallowed", details|callerMessage),
	CodeInsufficientStock: describe(http.StatusConflict, "insufficient stock", details|callerMessage),
	CodeEmptyCart:         describe(http.StatusBadRequest, "cart is empty", callerMessage),
	CodeContention:        describe(http.StatusServiceUnavailable, "resource busy, retry later", retryable|details|callerMessage),
	CodeIdempotency:       describe(http.StatusConflict, "idempotency key reused", details|callerMessage),
	CodeInternal:          describe(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:        describe(http.StatusServiceUnavailable, "dependency unavailable", retryable|details),
}

// MetadataFor falls back to INTERNAL for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := catalog[code]; ok {
		return meta
	}
	return catalog[CodeInternal]
}

// Error is a coded failure with an optional cause and client-facing details.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap keeps err reachable through errors.Is and errors.As.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// WithDetails attaches a payload shown to clients when the code allows it.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Code() Code {
	if e == nil {
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
	switch {
	case e == nil:
		return ""
	case e.cause == nil:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	default:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
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
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of the outermost *Error, or "" for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.code
	}
	return ""
}

func Is(err error, code Code) bool {
	return CodeOf(err) == code
}

// IsRetryable reports whether a service may rerun the failed operation
// itself. Only CONTENTION qualifies; the other retryable codes are hints for
// HTTP clients.
func IsRetryable(err error) bool {
	return Is(err, CodeContention)
}
