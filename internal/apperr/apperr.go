// Package apperr defines the error taxonomy shared by the registration,
// payment and kit-claim workflows.
package apperr

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidFormat         Code = "INVALID_FORMAT"
	CodeInvalidInput          Code = "INVALID_INPUT"
	CodeInvalidStatus         Code = "INVALID_STATUS"
	CodeNotFound              Code = "NOT_FOUND"
	CodeMismatch              Code = "MISMATCH"
	CodeNotPaid               Code = "NOT_PAID"
	CodeAlreadyClaimed        Code = "ALREADY_CLAIMED"
	CodeConflict              Code = "CONFLICT"
	CodeUpdateFailed          Code = "UPDATE_FAILED"
	CodeReceiptIssuanceFailed Code = "RECEIPT_ISSUANCE_FAILED"
	CodeNotificationFailed    Code = "NOTIFICATION_FAILED"
	CodeUnauthenticated       Code = "UNAUTHENTICATED"
)

// Error carries a code, a message for logs and responses, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by code, so errors.Is(err, apperr.New(CodeNotFound, ""))
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// Has reports whether err carries the given code.
func Has(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidFormat, CodeInvalidInput, CodeInvalidStatus:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMismatch, CodeNotPaid, CodeAlreadyClaimed, CodeConflict:
		return http.StatusConflict
	case CodeReceiptIssuanceFailed, CodeNotificationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
