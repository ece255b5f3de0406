// Package bind provides centralized flag-to-options binding for CLI commands.
//
// Each Bind* function reads a command's flags, validates them early for a
// better error message and returns the options the ops facade expects.
package bind

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vulntor/fileops/pkg/config"
	"github.com/vulntor/fileops/pkg/job"
	"github.com/vulntor/fileops/pkg/ops"
)

// ErrUsage marks errors in command-line arguments or flags.
var ErrUsage = errors.New("invalid usage")

// PolicyAsk answers conflicts interactively.
const PolicyAsk = "ask"

// ArchiveFormats lists the formats accepted by --format.
var ArchiveFormats = []string{"zip", "7z", "tar", "tar.gz", "tar.bz2", "tar.xz", "tar.zst"}

// formatList formats a string slice as a comma-separated list.
func formatList(items []string) string {
	return strings.Join(items, ", ")
}

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUsage, fmt.Sprintf(format, args...))
}

// ConflictPolicy says how the CLI answers conflict prompts.
type ConflictPolicy struct {
	// Ask prompts on the terminal for every conflict.
	Ask bool
	// Decision is sent for every prompt that offers it when Ask is false.
	Decision job.Decision
}

// BindConflictPolicy reads --on-conflict.
//
// Flags read:
//   - --on-conflict: "ask" or a decision such as "skip-all"
func BindConflictPolicy(cmd *cobra.Command) (ConflictPolicy, error) {
	value, _ := cmd.Flags().GetString("on-conflict")
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" || value == PolicyAsk {
		return ConflictPolicy{Ask: true}, nil
	}

	d := job.Decision(value)
	if !d.Valid() {
		valid := []string{PolicyAsk, string(job.DecisionOverwriteThis), string(job.DecisionSkipThis)}
		for _, p := range job.BatchPolicies() {
			valid = append(valid, string(p))
		}
		valid = append(valid, string(job.DecisionCancelOperation))
		return ConflictPolicy{}, usageError("invalid --on-conflict %q (valid: %s)", value, formatList(valid))
	}
	return ConflictPolicy{Decision: d}, nil
}

// SplitSourcesDestination treats the last argument as the destination.
func SplitSourcesDestination(args []string) ([]string, string, error) {
	if len(args) < 2 {
		return nil, "", usageError("need at least one source and a destination")
	}
	return args[:len(args)-1], args[len(args)-1], nil
}

// BindCompressOptions reads the compress flags.
//
// Flags read:
//   - --format: archive format, empty to infer from the destination name
//   - --level: compression level 0-9, 0 for the engine default
func BindCompressOptions(cmd *cobra.Command) (ops.CompressOptions, error) {
	format, _ := cmd.Flags().GetString("format")
	level, _ := cmd.Flags().GetInt("level")

	format = strings.ToLower(strings.TrimPrefix(format, "."))
	if format != "" && !slices.Contains(ArchiveFormats, format) {
		return ops.CompressOptions{}, usageError("invalid --format %q (valid: %s)", format, formatList(ArchiveFormats))
	}
	if level < 0 || level > 9 {
		return ops.CompressOptions{}, usageError("invalid --level %d (must be between 0 and 9)", level)
	}

	return ops.CompressOptions{Format: format, Level: level}, nil
}

// BindDecompressOptions reads --subfolder, falling back to
// queue.force_subfolder when the flag is not given.
func BindDecompressOptions(cmd *cobra.Command, queue config.QueueConfig) ops.DecompressOptions {
	force := queue.ForceSubfolder
	if flag := cmd.Flags().Lookup("subfolder"); flag != nil && flag.Changed {
		force, _ = cmd.Flags().GetBool("subfolder")
	}
	return ops.DecompressOptions{ForceSubfolder: force}
}
