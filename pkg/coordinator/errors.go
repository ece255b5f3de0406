package coordinator

import (
	"errors"
	"fmt"

	"github.com/vulntor/fileops/pkg/job"
)

// Sentinel errors for job failures.
var (
	// ErrRejected indicates the engine refused to create the job.
	ErrRejected = errors.New("job rejected by engine")

	// ErrEngine indicates the engine reported a mid-job error.
	ErrEngine = errors.New("job failed")

	// ErrConnectionLost indicates the job channel closed before a terminal message.
	ErrConnectionLost = errors.New("connection lost")

	// ErrFinalize indicates post-completion work failed. The job itself completed.
	ErrFinalize = errors.New("post-completion step failed")

	// ErrInvalidRequest indicates a request failed validation.
	ErrInvalidRequest = errors.New("invalid job request")

	// ErrUnknownJob indicates no tracked job matches the given handle or id.
	ErrUnknownJob = errors.New("unknown job")

	// ErrClosed indicates the coordinator has been shut down.
	ErrClosed = errors.New("coordinator closed")
)

// Error codes used by the CLI suggestion system.
const (
	ErrorCodeRejected       = "JOB_REJECTED"
	ErrorCodeEngine         = "JOB_ENGINE_ERROR"
	ErrorCodeConnectionLost = "JOB_CONNECTION_LOST"
	ErrorCodeFinalize       = "JOB_FINALIZE_FAILED"
	ErrorCodeInvalidRequest = "JOB_INVALID_REQUEST"
	errorCodeJobFailure     = "JOB_FAILURE"
)

// codedError wraps an error with an explicit error code.
type codedError struct {
	error
	code string
}

func (e *codedError) Error() string {
	return e.error.Error()
}

func (e *codedError) Unwrap() error {
	return e.error
}

func (e *codedError) Code() string {
	return e.code
}

// WithErrorCode wraps err with a specific error code.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &codedError{error: err, code: code}
}

// ErrorCode resolves a job error into an error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var coded interface{ Code() string }
	if errors.As(err, &coded) {
		if code := coded.Code(); code != "" {
			return code
		}
	}

	switch {
	case errors.Is(err, ErrRejected):
		return ErrorCodeRejected
	case errors.Is(err, ErrEngine):
		return ErrorCodeEngine
	case errors.Is(err, ErrConnectionLost):
		return ErrorCodeConnectionLost
	case errors.Is(err, ErrFinalize):
		return ErrorCodeFinalize
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrUnknownJob):
		return ErrorCodeInvalidRequest
	}

	return errorCodeJobFailure
}

// ExitCode maps job errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch ErrorCode(err) {
	case ErrorCodeInvalidRequest:
		return 2
	case ErrorCodeConnectionLost:
		return 3
	default:
		return 1
	}
}

// Suggestions provides CLI hints for job errors.
func Suggestions(err error) []string {
	if err == nil {
		return nil
	}

	switch ErrorCode(err) {
	case ErrorCodeRejected:
		return []string{
			"Check that the destination exists and is writable",
			"Inspect engine logs for the rejection reason",
		}
	case ErrorCodeConnectionLost:
		return []string{
			"Check that the engine is still running:  fileops version",
			"Verify engine.events_url in the config:  fileops config",
		}
	case ErrorCodeFinalize:
		return []string{
			"The operation itself succeeded; remove leftover sources manually",
		}
	case ErrorCodeInvalidRequest:
		return []string{
			"Run help for usage:  fileops <command> --help",
		}
	default:
		return []string{
			"Retry with verbose logs:  fileops <command> -vv",
		}
	}
}

// NewRejectedError annotates an engine refusal with the job kind.
func NewRejectedError(kind job.Kind, reason error) error {
	return WithErrorCode(fmt.Errorf("%w: %s: %w", ErrRejected, kind, reason), ErrorCodeRejected)
}

// NewEngineError builds the error for an engine error frame. The message
// names the job kind so the user can tell which operation failed.
func NewEngineError(kind job.Kind, message string) error {
	if message == "" {
		message = "unknown engine error"
	}
	return WithErrorCode(fmt.Errorf("%s %w: %s", kind, ErrEngine, message), ErrorCodeEngine)
}

// NewConnectionLostError builds the error for a channel that closed early.
func NewConnectionLostError(kind job.Kind, cause error) error {
	err := fmt.Errorf("%s job: %w", kind, ErrConnectionLost)
	if cause != nil {
		err = fmt.Errorf("%s job: %w: %w", kind, ErrConnectionLost, cause)
	}
	return WithErrorCode(err, ErrorCodeConnectionLost)
}

// NewFinalizeError wraps post-completion failures.
func NewFinalizeError(kind job.Kind, cause error) error {
	if cause == nil {
		return nil
	}
	return WithErrorCode(fmt.Errorf("%s %w: %w", kind, ErrFinalize, cause), ErrorCodeFinalize)
}

// ValidationError describes a rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return "validation failed"
	}
	if e.Reason == "" {
		return e.Field + ": invalid"
	}
	return e.Field + ": " + e.Reason
}

// Is lets errors.Is(err, ErrInvalidRequest) match validation failures.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRequest
}
