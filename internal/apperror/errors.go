package apperror

import (
	"errors"
	"net/http"
)

var (
	ErrStore      = errors.New("store error")
	ErrGeneration = errors.New("generation error")
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
)

// Status maps an error kind to the HTTP status and error code written by handlers.
func Status(err error) (int, string) {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ErrGeneration):
		return http.StatusBadGateway, "GENERATION_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
