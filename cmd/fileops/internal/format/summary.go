// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package format

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// JobResult describes one finished job for display.
type JobResult struct {
	Operation string         `json:"operation"` // "copy", "move", "compress", ...
	JobID     string         `json:"job_id"`
	Items     int64          `json:"items"`
	Bytes     int64          `json:"bytes"`
	Result    map[string]any `json:"result,omitempty"`
	Warning   string         `json:"warning,omitempty"`
}

// Summary represents the outcome of a multi-archive run
type Summary struct {
	Operation   string        // Operation name: "decompress"
	Success     int           // Completed archive count
	Skipped     int           // Archives never started because the run halted
	Failed      int           // Failed or cancelled archive count
	Errors      []ErrorDetail // First N errors (truncated for display)
	TotalErrors int           // Total error count (for truncation message)
	Suggestions []string
}

// ErrorDetail represents a single error with context
type ErrorDetail struct {
	Source    string `json:"source"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
}

const (
	maxErrorsToShow = 5 // Maximum errors to display before truncating
)

// PrintJobResult prints a standardized success message
// Examples:
//   - "✓ Copy completed: 3 items, 1.5 MiB"
//   - "✓ Archive test completed"
func (f *formatter) PrintJobResult(r JobResult) error {
	if f.quiet {
		if r.JobID != "" {
			_, err := fmt.Fprintln(f.stdout, r.JobID)
			return err
		}
		return nil
	}

	if f.mode == ModeJSON {
		return f.PrintJSON(map[string]any{
			"success":   true,
			"operation": r.Operation,
			"job_id":    r.JobID,
			"items":     r.Items,
			"bytes":     r.Bytes,
			"result":    r.Result,
			"warning":   r.Warning,
		})
	}

	message := fmt.Sprintf("✓ %s completed", capitalize(label(r.Operation)))
	if r.Items > 0 || r.Bytes > 0 {
		message += fmt.Sprintf(": %d %s, %s", r.Items, plural("item", r.Items), Bytes(r.Bytes))
	}

	var err error
	if f.color {
		_, err = color.New(color.FgGreen).Fprintln(f.stdout, message)
	} else {
		_, err = fmt.Fprintln(f.stdout, message)
	}
	if err != nil {
		return err
	}
	if r.Warning != "" {
		return f.PrintWarning(r.Warning)
	}
	return nil
}

// PrintBatchSummary prints counts, errors, and suggestions
// Example output:
//
//	Summary:
//	  ✓ Extracted: 2
//	  ⚠ Skipped: 1
//	  ✗ Failed:  1
//
//	Failed archives:
//	  - /tmp/b.zip: decompress job failed: corrupt header
//
//	💡 Suggestions:
//	  → Fix the failing archive, then run the remaining ones again
func (f *formatter) PrintBatchSummary(summary Summary) error {
	if f.quiet {
		return nil
	}

	if f.mode == ModeJSON {
		return f.PrintJSON(map[string]any{
			"success":       summary.Failed == 0,
			"partial":       summary.Failed > 0 && summary.Success > 0,
			"operation":     summary.Operation,
			"success_count": summary.Success,
			"skipped_count": summary.Skipped,
			"failed_count":  summary.Failed,
			"errors":        summary.Errors,
		})
	}

	var sb strings.Builder

	sb.WriteString("\nSummary:\n")
	if summary.Success > 0 {
		line := fmt.Sprintf("  ✓ %s: %d\n", capitalize(getCountLabel(summary.Operation)), summary.Success)
		if f.color {
			line = color.GreenString("%s", line)
		}
		sb.WriteString(line)
	}
	if summary.Skipped > 0 {
		line := fmt.Sprintf("  ⚠ Skipped: %d\n", summary.Skipped)
		if f.color {
			line = color.YellowString("%s", line)
		}
		sb.WriteString(line)
	}
	if summary.Failed > 0 {
		line := fmt.Sprintf("  ✗ Failed:  %d\n", summary.Failed)
		if f.color {
			line = color.RedString("%s", line)
		}
		sb.WriteString(line)
	}

	if len(summary.Errors) > 0 {
		sb.WriteString("\nFailed archives:\n")
		for i, err := range summary.Errors {
			if i >= maxErrorsToShow {
				remaining := summary.TotalErrors - maxErrorsToShow
				sb.WriteString(fmt.Sprintf("  ... and %d more (use --output json for full list)\n", remaining))
				break
			}
			sb.WriteString(fmt.Sprintf("  - %s: %s\n", err.Source, err.Error))
		}
	}
	writeSuggestions(&sb, summary.Suggestions)

	_, err := f.stdout.Write([]byte(sb.String()))
	return err
}

// PrintTotalFailureSummary prints total failure with error and suggestions
// Example output:
//
//	✗ Failed to copy: job rejected by engine: copy: destination is read-only
//
//	💡 Suggestions:
//	  → Check that the destination exists and is writable
func (f *formatter) PrintTotalFailureSummary(operation string, err error, errorCode string, suggestions []string) error {
	if f.quiet {
		return nil
	}

	if f.mode == ModeJSON {
		return f.PrintJSON(map[string]any{
			"success":    false,
			"operation":  operation,
			"error":      err.Error(),
			"error_code": errorCode,
		})
	}

	var sb strings.Builder

	errorMsg := fmt.Sprintf("✗ Failed to %s: %v", operation, err)
	if f.color {
		sb.WriteString(color.RedString("%s\n", errorMsg))
	} else {
		sb.WriteString(errorMsg + "\n")
	}
	writeSuggestions(&sb, suggestions)

	_, writeErr := f.stderr.Write([]byte(sb.String()))
	return writeErr
}

func writeSuggestions(sb *strings.Builder, suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	sb.WriteString("\n💡 Suggestions:\n")
	for _, s := range suggestions {
		sb.WriteString(fmt.Sprintf("  → %s\n", s))
	}
}

// capitalize capitalizes the first letter of a string
func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func label(operation string) string {
	return strings.ReplaceAll(operation, "-", " ")
}

func plural(word string, n int64) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

// getCountLabel returns the label for the success count of an operation
func getCountLabel(operation string) string {
	switch operation {
	case "decompress":
		return "extracted"
	case "copy":
		return "copied"
	case "move":
		return "moved"
	default:
		return label(operation)
	}
}
