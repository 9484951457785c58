package aicore

import (
	"errors"
	"fmt"
)

// Kind classifies a failed generation call.
type Kind string

const (
	KindTimeout      Kind = "Timeout"
	KindUnreachable  Kind = "Unreachable"
	KindServiceError Kind = "ServiceError"
	KindParseError   Kind = "ParseError"
)

// Error is returned by every failed Run.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindTimeout:
		msg = "AI core request timed out"
	case KindUnreachable:
		msg = "AI core unreachable"
	case KindServiceError:
		msg = fmt.Sprintf("AI core returned HTTP %d", e.StatusCode)
	case KindParseError:
		msg = "AI core response could not be parsed"
	default:
		msg = "AI core request failed"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindUnreachable
}

// KindOf extracts the classification of err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
