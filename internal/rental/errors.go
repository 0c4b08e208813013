package rental

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels matched through errors.Is on the typed errors below.
var (
	ErrValidation  = errors.New("rental: validation failed")
	ErrNotFound    = errors.New("rental: not found")
	ErrPersistence = errors.New("rental: persistence failed")
)

// ValidationError reports invalid transition input or an illegal transition
// for the rental's current status.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("rental: %s", e.Reason)
	}
	return fmt.Sprintf("rental: %s: %s", e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError is returned when an id is absent from the working set.
type NotFoundError struct {
	ID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("rental: %d not found in working set", e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// PersistenceError carries the backend's structured failure.
type PersistenceError struct {
	Status     int
	StatusText string
	Data       any
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.Status == 0 {
		if e.Err != nil {
			return fmt.Sprintf("rental: backend unreachable: %v", e.Err)
		}
		return "rental: backend unreachable"
	}
	text := e.StatusText
	if text == "" {
		text = http.StatusText(e.Status)
	}
	return fmt.Sprintf("rental: backend returned %d %s", e.Status, text)
}

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
