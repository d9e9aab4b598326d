package store

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when a required identifier is missing.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when no document exists for a room.
	ErrNotFound = errors.New("document not found")
)

// StoreError wraps a driver or query failure with the operation that hit it.
type StoreError struct {
	Op     string
	RoomID string
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s (room %s): %v", e.Op, e.RoomID, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Outcome classifies err for logs and metrics.
func Outcome(err error) string {
	var se *StoreError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.As(err, &se):
		return "store_error"
	default:
		return "error"
	}
}
