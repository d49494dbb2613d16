package errors

import (
	"errors"
	"net/http"
)

// HTTPError represents an error with an associated HTTP status code.
type HTTPError struct {
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	return e.Message
}

// NewHTTPError creates a new HTTPError with the given code and message.
func NewHTTPError(code int, message string) *HTTPError {
	return &HTTPError{
		Code:    code,
		Message: message,
	}
}

// Helper for common errors
var (
	ErrUnauthorized = func(msg string) *HTTPError { return NewHTTPError(http.StatusUnauthorized, msg) }
)

// StatusFor maps domain errors onto HTTP status codes for the API layer.
func StatusFor(err error) int {
	var httpErr *HTTPError
	var invalid *InvalidTransitionError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.Is(err, ErrBookingNotFound), errors.Is(err, ErrOfferNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNoCapacity),
		errors.Is(err, ErrExtensionConflict), errors.Is(err, ErrWindowNotStarted):
		return http.StatusConflict
	case errors.Is(err, ErrGraceExpired):
		return http.StatusGone
	case errors.Is(err, ErrPaymentDeclined):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrOwnershipMismatch):
		return http.StatusForbidden
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
