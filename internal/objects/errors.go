package objects

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorMetadata distinguishes permanently rejected bulk entries from
// retryable ones.
type ErrorMetadata struct {
	IsNotOverwritable bool `json:"isNotOverwritable,omitempty"`
}

// Error is the serializable failure shape surfaced to callers, both as a Go
// error on single operations and inline on bulk response entries.
type Error struct {
	StatusCode int            `json:"statusCode"`
	Reason     string         `json:"error"`
	Message    string         `json:"message"`
	Metadata   *ErrorMetadata `json:"metadata,omitempty"`
}

func (e *Error) Error() string { return e.Message }

func NewBadRequest(format string, args ...any) *Error {
	return &Error{StatusCode: http.StatusBadRequest, Reason: "Bad Request", Message: fmt.Sprintf(format, args...)}
}

func NewForbidden(message string) *Error {
	return &Error{StatusCode: http.StatusForbidden, Reason: "Forbidden", Message: message}
}

func NewConflict(format string, args ...any) *Error {
	return &Error{StatusCode: http.StatusConflict, Reason: "Conflict", Message: fmt.Sprintf(format, args...)}
}

// NotOverwritable marks the error as permanently rejected and returns it.
func (e *Error) NotOverwritable() *Error {
	e.Metadata = &ErrorMetadata{IsNotOverwritable: true}
	return e
}

func NewNotFound(typ, id string) *Error {
	return &Error{StatusCode: http.StatusNotFound, Reason: "Not Found", Message: fmt.Sprintf("Saved object [%s/%s] not found", typ, id)}
}

// AsError unwraps err into a *Error, or wraps it as an internal one so the
// transport layer always has a statusCode to serialize.
func AsError(err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	return &Error{StatusCode: http.StatusInternalServerError, Reason: "Internal Server Error", Message: err.Error()}
}

func statusOf(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a 404. Existence lookups treat it as "no
// prior state", not as a failure.
func IsNotFound(err error) bool { return statusOf(err) == http.StatusNotFound }

func IsConflict(err error) bool { return statusOf(err) == http.StatusConflict }

func IsForbidden(err error) bool { return statusOf(err) == http.StatusForbidden }

func IsBadRequest(err error) bool { return statusOf(err) == http.StatusBadRequest }
