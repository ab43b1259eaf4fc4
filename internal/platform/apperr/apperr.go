// Package apperr defines the error taxonomy shared by the domain services and
// the HTTP layer. Absence of data is never an error here; only faults are.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrPersistence      = errors.New("persistence failure")
	ErrValidation       = errors.New("validation error")
)

// Error carries a classification and an HTTP status alongside the cause.
type Error struct {
	Kind       error             `json:"-"`
	Cause      error             `json:"-"`
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Is reports a match against the sentinel kind so errors.Is(err, ErrNotFound)
// works without unwrapping to the cause.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NotFound(resource, id string) *Error {
	return &Error{
		Kind:       ErrNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

func PermissionDenied(message string) *Error {
	return &Error{
		Kind:       ErrPermissionDenied,
		Code:       "PERMISSION_DENIED",
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// Persistence wraps a storage-layer fault. Wrapping an *Error that is already
// classified returns it unchanged.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{
		Kind:       ErrPersistence,
		Cause:      err,
		Code:       "PERSISTENCE_FAILURE",
		Message:    "storage operation failed",
		HTTPStatus: http.StatusInternalServerError,
	}
}

func Validation(message string, details map[string]string) *Error {
	return &Error{
		Kind:       ErrValidation,
		Code:       "VALIDATION_ERROR",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// HTTPStatus maps err to a response status, 500 when unclassified.
func HTTPStatus(err error) int {
	var ae *Error
	if errors.As(err, &ae) && ae.HTTPStatus != 0 {
		return ae.HTTPStatus
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message safe to show to a caller.
func PublicMessage(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	return "internal server error"
}

// ToHTTP converts err into the echo error returned by handlers. Validation
// details are passed through; unclassified causes are not exposed.
func ToHTTP(err error) *echo.HTTPError {
	var ae *Error
	if errors.As(err, &ae) && len(ae.Details) > 0 && errors.Is(err, ErrValidation) {
		return echo.NewHTTPError(HTTPStatus(err), map[string]interface{}{
			"message": ae.Message,
			"details": ae.Details,
		}).SetInternal(err)
	}
	return echo.NewHTTPError(HTTPStatus(err), PublicMessage(err)).SetInternal(err)
}
