// Package apperr gives every store/transport boundary a single error
// shape so the decision pipeline never has to type-switch on a driver
// error to decide how to respond to a client.
package apperr

import "fmt"

// ApplicationError is a stable, loggable error with an HTTP status and
// a machine-readable code. Modeled on the teacher's internal/pkg/errors
// usage (infraerrors.BadRequest/.Conflict/.WithCause seen throughout
// internal/service/idempotency.go).
type ApplicationError struct {
	Code       string
	HTTPStatus int
	Message    string
	Cause      error
}

func (e *ApplicationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ApplicationError) Unwrap() error {
	return e.Cause
}

func (e *ApplicationError) WithCause(err error) *ApplicationError {
	cp := *e
	cp.Cause = err
	return &cp
}

func newErr(status int, code, message string) *ApplicationError {
	return &ApplicationError{Code: code, HTTPStatus: status, Message: message}
}

func BadRequest(code, message string) *ApplicationError        { return newErr(400, code, message) }
func Conflict(code, message string) *ApplicationError          { return newErr(409, code, message) }
func ServiceUnavailable(code, message string) *ApplicationError { return newErr(503, code, message) }
func Internal(code, message string) *ApplicationError          { return newErr(500, code, message) }
