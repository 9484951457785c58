package domain

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("status conflict")
	ErrDatabase    = errors.New("database error")
	ErrUnavailable = errors.New("service unavailable")
	ErrTimeout     = errors.New("operation timed out")
	ErrQueueFull   = errors.New("dispatch queue is full")
)

// ValidationError carries the individual field messages of a rejected request.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return ErrValidation.Error()
	}
	msg := e.Messages[0]
	for _, m := range e.Messages[1:] {
		msg += ", " + m
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
