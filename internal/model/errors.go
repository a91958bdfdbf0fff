package model

import "errors"

var (
	// ErrNotFound is returned when a unit, teacher or class lookup misses.
	ErrNotFound = errors.New("not found")
	// ErrUpstream is returned for non-200 or malformed vendor responses.
	ErrUpstream = errors.New("upstream error")
	// ErrValidation is returned for bad arguments or unreadable calendar input.
	ErrValidation = errors.New("validation error")
	// ErrFormat is returned for missing or mistyped calendar fields.
	ErrFormat = errors.New("format error")
)

// StageError records which step of a multi-step operation failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}
