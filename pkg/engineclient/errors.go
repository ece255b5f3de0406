package engineclient

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine failures.
var (
	// ErrUnavailable indicates the engine could not be reached.
	ErrUnavailable = errors.New("engine unavailable")

	// ErrIncompatible indicates the engine version does not satisfy the
	// configured constraint.
	ErrIncompatible = errors.New("engine version incompatible")
)

const (
	ErrorCodeUnavailable  = "ENGINE_UNAVAILABLE"
	ErrorCodeIncompatible = "ENGINE_INCOMPATIBLE"
)

// StatusError is a non-2xx engine response.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "no message"
	}
	if e.Code != "" {
		return fmt.Sprintf("engine returned %d %s: %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("engine returned %d: %s", e.StatusCode, msg)
}

type codedError struct {
	error
	code string
}

func (e *codedError) Error() string { return e.error.Error() }
func (e *codedError) Unwrap() error { return e.error }
func (e *codedError) Code() string  { return e.code }

// WithErrorCode wraps err with a specific error code.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &codedError{error: err, code: code}
}

// ErrorCode resolves an engine client error into an error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	switch {
	case errors.Is(err, ErrUnavailable):
		return ErrorCodeUnavailable
	case errors.Is(err, ErrIncompatible):
		return ErrorCodeIncompatible
	}
	return ""
}

// Suggestions provides CLI hints for engine errors.
func Suggestions(err error) []string {
	switch ErrorCode(err) {
	case ErrorCodeUnavailable:
		return []string{
			"Check that the engine is running and engine.url is correct",
			"Show the effective configuration:  fileops config",
		}
	case ErrorCodeIncompatible:
		return []string{
			"Upgrade the engine, or relax engine.min_version",
		}
	}
	return nil
}

func unavailable(op string, err error) error {
	return WithErrorCode(fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err), ErrorCodeUnavailable)
}
