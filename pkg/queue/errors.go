package queue

import (
	"errors"
	"fmt"
)

// Sentinel errors for queue failures.
var (
	// ErrBusy indicates a member is still running or its channel is open.
	ErrBusy = errors.New("operation queue busy")

	// ErrHalted indicates a member failed or was cancelled and the queue
	// stopped advancing.
	ErrHalted = errors.New("operation queue halted")

	// ErrEmpty indicates there is nothing left to run.
	ErrEmpty = errors.New("operation queue empty")
)

const (
	ErrorCodeBusy   = "QUEUE_BUSY"
	ErrorCodeHalted = "QUEUE_HALTED"
)

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

// ErrorCode resolves a queue error into an error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	switch {
	case errors.Is(err, ErrBusy):
		return ErrorCodeBusy
	case errors.Is(err, ErrHalted):
		return ErrorCodeHalted
	}
	return ""
}

// NewHaltedError reports the member that stopped the queue.
func NewHaltedError(index int, source string, cause error) error {
	return WithErrorCode(fmt.Errorf("%w at item %d (%s): %w", ErrHalted, index+1, source, cause), ErrorCodeHalted)
}

func newBusyError(reason string) error {
	return WithErrorCode(fmt.Errorf("%w: %s", ErrBusy, reason), ErrorCodeBusy)
}
