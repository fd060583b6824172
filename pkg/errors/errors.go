package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

// Code classifies an error for transport mapping and retry decisions.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodePartial       Code = "PARTIAL_FAILURE"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code surfaces at the API boundary.
// DetailsAllowed gates whether structured details may reach the client.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func meta(status int, retryable, detailsAllowed bool, publicMsg string) Metadata {
	return Metadata{
		HTTPStatus:     status,
		Retryable:      retryable,
		PublicMessage:  publicMsg,
		DetailsAllowed: detailsAllowed,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, false, true, "validation failed"),
	CodeUnauthorized:  meta(http.StatusUnauthorized, false, false, "authentication required"),
	CodeForbidden:     meta(http.StatusForbidden, false, false, "access denied"),
	CodeNotFound:      meta(http.StatusNotFound, false, false, "resource not found"),
	CodeConflict:      meta(http.StatusConflict, false, false, "conflict detected"),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, false, true, "state transition disallowed"),
	CodeRateLimit:     meta(http.StatusTooManyRequests, false, false, "rate limit exceeded"),
	CodePartial:       meta(http.StatusBadGateway, false, true, "operation partially completed"),
	CodeInternal:      meta(http.StatusInternalServerError, true, false, "internal server error"),
	CodeDependency:    meta(http.StatusServiceUnavailable, true, true, "dependency unavailable"),
}

// MetadataFor resolves the transport metadata for a code, treating unknown
// codes as internal errors.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error carried across service boundaries. The message
// may reach the client depending on the code; the cause never does.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches a code and message on top of err. The resulting code is
// the wrapping one, regardless of any typed error further down the chain.
func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
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

// WithDetails attaches structured context (field errors, availability) that
// the responder may expose when the code allows it.
func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts the first typed *Error in err's chain, or nil.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
