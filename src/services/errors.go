package services

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the order pipeline. Handlers translate these to
// HTTP status codes with HTTPStatus; services wrap them with context
// via fmt.Errorf("...: %w", ...).
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrExpired    = errors.New("expired")
	ErrGateway    = errors.New("payment gateway error")
)

// InsufficientInventoryError reports the first tier that cannot cover
// the requested quantity, with how many units are left.
type InsufficientInventoryError struct {
	TicketType string
	Remaining  int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("not enough '%s' tickets. remaining: %d", e.TicketType, e.Remaining)
}

func HTTPStatus(err error) int {
	var inv *InsufficientInventoryError
	switch {
	case errors.As(err, &inv), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrExpired):
		return http.StatusGone
	case errors.Is(err, ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
