package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/drivelane/convo/internal/database"
)

type ApiError struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Err        error  `json:"-"`
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

func lower(s string) string {
	return strings.ToLower(s)
}

func NewBadRequestError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    lower(http.StatusText(http.StatusBadRequest)),
	}
}

func NewValidationError(msg string) *ApiError {
	return &ApiError{
		StatusCode: http.StatusBadRequest,
		Message:    msg,
	}
}

func NewNotFoundError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusNotFound,
		Message:    lower(http.StatusText(http.StatusNotFound)),
	}
}

func NewInternalServerError(err error) *ApiError {
	return &ApiError{
		StatusCode: http.StatusInternalServerError,
		Message:    lower(http.StatusText(http.StatusInternalServerError)),
		Err:        err,
	}
}

func NewUnauthorizedError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusUnauthorized,
		Message:    lower(http.StatusText(http.StatusUnauthorized)),
	}
}

func NewTooManyRequestsError() *ApiError {
	return &ApiError{
		StatusCode: http.StatusTooManyRequests,
		Message:    lower(http.StatusText(http.StatusTooManyRequests)),
	}
}

// domainError maps repository errors onto the HTTP envelope. A
// non-participant gets the same 404 as a missing conversation so
// existence never leaks; the caller logs the distinct condition.
func domainError(err error) *ApiError {
	var verr *database.ValidationError

	switch {
	case errors.Is(err, database.ErrNotFound), errors.Is(err, database.ErrForbidden):
		return NewNotFoundError()
	case errors.As(err, &verr):
		return NewValidationError(verr.Error())
	case errors.Is(err, database.ErrConflict):
		return NewValidationError(err.Error())
	default:
		return NewInternalServerError(err)
	}
}
