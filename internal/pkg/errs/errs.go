/*
Package errs provides custom error types and application-level error code constants.

This file defines the CustomError struct, which implements the standard Go error interface
and includes a business code, an error kind, a user-friendly message, and an HTTP status code
for unified error reporting.
*/
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chatgate/internal/pkg/logx"
)

// Kind groups error codes into the categories callers branch on.
type Kind int

const (
	KindInternal Kind = iota
	KindInput
	KindAuth
	KindNotAuthorized
	KindNotFound
	KindPersistence
	KindSigning
)

var kindNames = map[Kind]string{
	KindInternal:      "internal",
	KindInput:         "input",
	KindAuth:          "auth",
	KindNotAuthorized: "not_authorized",
	KindNotFound:      "not_found",
	KindPersistence:   "persistence",
	KindSigning:       "signing",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// CustomError is the custom error structure used throughout the application.
// It wraps the Go error interface, adding a business code and HTTP status code.
type CustomError struct {
	// Code is the business error code (see constants definition).
	Code int

	// Kind is the category the code belongs to.
	Kind Kind

	// Message is the user-friendly error description.
	Message string

	// Status is the standard HTTP status code corresponding to this error.
	Status int

	// cause is the underlying error kept for logs. It is never rendered to clients.
	cause error
}

// Error implements the standard Go error interface. It returns a formatted
// error string containing the error code, HTTP status, and message.
func (e CustomError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("Error Code %d (HTTP %d): %s: %v", e.Code, e.Status, e.Message, e.cause)
	}
	return fmt.Sprintf("Error Code %d (HTTP %d): %s", e.Code, e.Status, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *CustomError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a CustomError with the same code.
func (e *CustomError) Is(target error) bool {
	t, ok := target.(*CustomError)
	if !ok || t == nil {
		return false
	}
	return t.Code == e.Code
}

// NewError constructs and returns a new *CustomError instance based on a predefined error code.
// The optional details parameter allows for formatting arguments (printf-style) to be supplied
// for the error message. If an unknown code is provided, it defaults to returning ErrUnknown.
func NewError(code int, details ...any) *CustomError {
	templateErr, ok := errorMap[code]

	if !ok {
		logx.Error(
			fmt.Errorf("attempted to create an error with an unknown code in errorMap"),
			"Unknown error code requested",
			"requested_code", code,
		)

		unknownErr := errorMap[ErrUnknown]
		return &CustomError{
			Code:    unknownErr.Code,
			Kind:    unknownErr.Kind,
			Message: unknownErr.Message,
			Status:  unknownErr.Status,
		}
	}

	customErr := templateErr

	if customErr.Status == 0 {
		customErr.Status = http.StatusOK
	}

	if code == ErrUnknown && len(details) > 0 {
		if originalErr, ok := details[0].(error); ok {
			customErr.cause = originalErr
		}
	} else if len(details) > 0 {
		if strings.Contains(customErr.Message, "%") {
			customErr.Message = fmt.Sprintf(customErr.Message, details...)
		} else {
			logx.Warn(
				"Details provided for error, but message template has no formatting placeholders. Details ignored.",
				"code", code,
			)
		}
	}

	return &customErr
}

// Wrap builds the error for code and keeps cause for logging.
func Wrap(code int, cause error) *CustomError {
	e := NewError(code)
	e.cause = cause
	return e
}

// As extracts the *CustomError from err's chain.
func As(err error) (*CustomError, bool) {
	var ce *CustomError
	if errors.As(err, &ce) && ce != nil {
		return ce, true
	}
	return nil, false
}

// From converts any error into a *CustomError. Errors outside the taxonomy become ErrUnknown
// with the original error kept as the cause.
func From(err error) *CustomError {
	if err == nil {
		return nil
	}
	if ce, ok := As(err); ok {
		return ce
	}
	return Wrap(ErrUnknown, err)
}

// KindOf returns the Kind of err, or KindInternal when err carries no code.
func KindOf(err error) Kind {
	if ce, ok := As(err); ok {
		return ce.Kind
	}
	return KindInternal
}

// HasCode reports whether err's chain contains a CustomError with code.
func HasCode(err error, code int) bool {
	ce, ok := As(err)
	return ok && ce.Code == code
}
