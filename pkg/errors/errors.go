// Package errors defines the coded error type every layer returns. The code
// decides the HTTP status and whether clients may retry; the message is only
// shown to clients for codes that opt in.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation     Code = "VALIDATION_ERROR"
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeNotFound       Code = "NOT_FOUND"
	CodeConflict       Code = "CONFLICT"
	CodeStateConflict  Code = "STATE_CONFLICT"
	CodeIdempotency    Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit      Code = "RATE_LIMIT_EXCEEDED"
	CodePaymentFailed  Code = "PAYMENT_FAILED"
	CodeInternal       Code = "INTERNAL_ERROR"
	CodeDependency     Code = "DEPENDENCY_ERROR"
	CodeRequestTimeout Code = "REQUEST_TIMEOUT"
)

// Metadata is the transport-facing behavior of a Code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retry   = true
	details = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:     {http.StatusBadRequest, !retry, "validation failed", details},
	CodeUnauthorized:   {http.StatusUnauthorized, !retry, "authentication required", !details},
	CodeNotFound:       {http.StatusNotFound, !retry, "resource not found", !details},
	CodeConflict:       {http.StatusConflict, !retry, "conflict detected", !details},
	CodeStateConflict:  {http.StatusUnprocessableEntity, !retry, "state transition disallowed", details},
	CodeIdempotency:    {http.StatusConflict, !retry, "idempotency key reused", details},
	CodeRateLimit:      {http.StatusTooManyRequests, retry, "rate limit exceeded", !details},
	CodePaymentFailed:  {http.StatusPaymentRequired, retry, "payment failed, please try again", details},
	CodeInternal:       {http.StatusInternalServerError, retry, "internal server error", !details},
	CodeDependency:     {http.StatusServiceUnavailable, retry, "dependency unavailable", details},
	CodeRequestTimeout: {http.StatusGatewayTimeout, retry, "request timed out", !details},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// FieldViolation is one failed field check inside a VALIDATION_ERROR.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error is a coded error with an optional cause and client-visible details.
// A nil *Error behaves like an internal error with no message.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err is the same as New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// Validation builds a VALIDATION_ERROR whose details are the violations.
func Validation(message string, violations ...FieldViolation) *Error {
	e := New(CodeValidation, message)
	if len(violations) > 0 {
		e.details = violations
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

// WithDetails sets details in place and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost *Error in err's chain has code.
func IsCode(err error, code Code) bool {
	return As(err).codeOr("") == code
}

func (e *Error) codeOr(fallback Code) Code {
	if e == nil {
		return fallback
	}
	return e.code
}
