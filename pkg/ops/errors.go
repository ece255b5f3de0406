package ops

import (
	"errors"
	"strings"

	"github.com/vulntor/fileops/pkg/config"
	"github.com/vulntor/fileops/pkg/coordinator"
	"github.com/vulntor/fileops/pkg/engineclient"
	"github.com/vulntor/fileops/pkg/queue"
)

const errorCodeConfig = "CONFIG_INVALID"

// ErrorCode resolves an error from any fileops package into its code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var coded interface{ Code() string }
	if errors.As(err, &coded) && coded.Code() != "" {
		return coded.Code()
	}
	if errors.Is(err, config.ErrInvalidConfig) {
		return errorCodeConfig
	}
	if code := queue.ErrorCode(err); code != "" {
		return code
	}
	if code := engineclient.ErrorCode(err); code != "" {
		return code
	}
	return coordinator.ErrorCode(err)
}

// ExitCode maps errors to process exit codes: 2 for bad input, 3 when the
// engine could not be reached or dropped the connection, 1 otherwise. An
// unreachable engine counts as 3 even when it surfaces as a rejected job.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, engineclient.ErrUnavailable) {
		return 3
	}
	switch ErrorCode(err) {
	case coordinator.ErrorCodeInvalidRequest, errorCodeConfig:
		return 2
	case coordinator.ErrorCodeConnectionLost, engineclient.ErrorCodeUnavailable, engineclient.ErrorCodeIncompatible:
		return 3
	default:
		return 1
	}
}

// Suggestions returns CLI hints for err.
func Suggestions(err error) []string {
	code := ErrorCode(err)
	switch {
	case code == "":
		return nil
	case code == errorCodeConfig:
		return []string{"Show the effective configuration:  fileops config"}
	case strings.HasPrefix(code, "ENGINE_"):
		return engineclient.Suggestions(err)
	case code == queue.ErrorCodeHalted:
		return []string{"Fix the failing archive, then run the remaining ones again"}
	case code == queue.ErrorCodeBusy:
		return []string{"Wait for the running extraction to finish"}
	default:
		return coordinator.Suggestions(err)
	}
}
