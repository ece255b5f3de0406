package format

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintJobResult_Table(t *testing.T) {
	var stdout, stderr bytes.Buffer
	f := New(&stdout, &stderr, ModeTable, false, false)

	require.NoError(t, f.PrintJobResult(JobResult{Operation: "copy", JobID: "j-1", Items: 3, Bytes: 1536}))
	assert.Equal(t, "✓ Copy completed: 3 items, 1.5 KiB\n", stdout.String())

	stdout.Reset()
	require.NoError(t, f.PrintJobResult(JobResult{Operation: "archive-test", Warning: "slow"}))
	assert.Equal(t, "✓ Archive test completed\n", stdout.String())
	assert.Equal(t, "⚠ slow\n", stderr.String())
}

func TestPrintJobResult_QuietPrintsJobID(t *testing.T) {
	var stdout, stderr bytes.Buffer
	f := New(&stdout, &stderr, ModeTable, true, false)
	require.NoError(t, f.PrintJobResult(JobResult{Operation: "move", JobID: "j-9", Warning: "ignored"}))
	assert.Equal(t, "j-9\n", stdout.String())
	assert.Empty(t, stderr.String())
}

func TestPrintJobResult_JSON(t *testing.T) {
	var stdout, stderr bytes.Buffer
	f := New(&stdout, &stderr, ModeJSON, false, false)
	require.NoError(t, f.PrintJobResult(JobResult{Operation: "compress", JobID: "j-2", Items: 1, Bytes: 10}))

	var out map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "compress", out["operation"])
	assert.Equal(t, "j-2", out["job_id"])
	assert.EqualValues(t, 10, out["bytes"])
}

func TestPrintBatchSummary(t *testing.T) {
	var stdout, stderr bytes.Buffer
	f := New(&stdout, &stderr, ModeTable, false, false)

	require.NoError(t, f.PrintBatchSummary(Summary{
		Operation:   "decompress",
		Success:     2,
		Skipped:     1,
		Failed:      1,
		Errors:      []ErrorDetail{{Source: "/b.zip", Error: "corrupt", ErrorCode: "QUEUE_HALTED"}},
		TotalErrors: 1,
		Suggestions: []string{"Fix the failing archive"},
	}))

	out := stdout.String()
	assert.Contains(t, out, "✓ Extracted: 2")
	assert.Contains(t, out, "⚠ Skipped: 1")
	assert.Contains(t, out, "✗ Failed:  1")
	assert.Contains(t, out, "- /b.zip: corrupt")
	assert.Contains(t, out, "→ Fix the failing archive")
}

func TestPrintBatchSummary_TruncatesErrors(t *testing.T) {
	var stdout, stderr bytes.Buffer
	f := New(&stdout, &stderr, ModeTable, false, false)

	errs := make([]ErrorDetail, 7)
	for i := range errs {
		errs[i] = ErrorDetail{Source: "a", Error: "x"}
	}
	require.NoError(t, f.PrintBatchSummary(Summary{Operation: "decompress", Failed: 7, Errors: errs, TotalErrors: 7}))
	assert.Contains(t, stdout.String(), "... and 2 more")
}

func TestPrintTotalFailureSummary(t *testing.T) {
	var stdout, stderr bytes.Buffer
	f := New(&stdout, &stderr, ModeTable, false, false)

	require.NoError(t, f.PrintTotalFailureSummary("copy", errors.New("rejected"), "JOB_REJECTED", []string{"Check the destination"}))
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "✗ Failed to copy: rejected")
	assert.Contains(t, stderr.String(), "→ Check the destination")

	stderr.Reset()
	f = New(&stdout, &stderr, ModeJSON, false, false)
	require.NoError(t, f.PrintTotalFailureSummary("copy", errors.New("rejected"), "JOB_REJECTED", nil))
	var out map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, "JOB_REJECTED", out["error_code"])
}
