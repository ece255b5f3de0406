package job

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusCreated, StatusScanning, true},
		{StatusCreated, StatusActive, false},
		{StatusCreated, StatusCancelled, true},
		{StatusCreated, StatusError, true},
		{StatusScanning, StatusActive, true},
		{StatusScanning, StatusCompleted, true},
		{StatusScanning, StatusPrompting, false},
		{StatusActive, StatusPrompting, true},
		{StatusPrompting, StatusActive, true},
		{StatusPrompting, StatusCompleted, false},
		{StatusPrompting, StatusCancelled, true},
		{StatusActive, StatusScanning, false},
		{StatusCompleted, StatusError, false},
		{StatusCancelled, StatusActive, false},
		{StatusError, StatusCompleted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransition(tt.to))
		})
	}
}

func TestJob_TerminalIsSink(t *testing.T) {
	now := time.Now()
	j := New("h1", KindCopy, now)

	require.NoError(t, j.Transition(StatusScanning, now))
	require.NoError(t, j.Transition(StatusActive, now))
	require.NoError(t, j.Transition(StatusCompleted, now))
	require.False(t, j.FinishedAt.IsZero())

	var terr *TransitionError
	require.ErrorAs(t, j.Transition(StatusError, now), &terr)
	assert.Equal(t, StatusCompleted, terr.From)
	assert.Equal(t, StatusCompleted, j.Status)
}

func TestJob_FailRecordsError(t *testing.T) {
	now := time.Now()
	j := New("h1", KindDecompress, now)
	boom := errors.New("boom")

	require.NoError(t, j.Fail(boom, now))
	assert.Equal(t, StatusError, j.Status)
	assert.ErrorIs(t, j.TerminalError, boom)

	require.Error(t, j.Fail(errors.New("again"), now))
	assert.ErrorIs(t, j.TerminalError, boom)
}

func TestJob_ApplyProgressIsMonotonic(t *testing.T) {
	j := New("h1", KindCopy, time.Now())

	j.ApplyProgress(Progress{ProcessedBytes: 100, ProcessedItems: 2, CurrentItemName: "a"})
	j.ApplyProgress(Progress{ProcessedBytes: 50, ProcessedItems: 1, CurrentItemName: "b"})

	assert.Equal(t, int64(100), j.Progress.ProcessedBytes)
	assert.Equal(t, int64(2), j.Progress.ProcessedItems)
	assert.Equal(t, "b", j.Progress.CurrentItemName)

	j.ApplyProgress(Progress{ProcessedBytes: 300, ProcessedItems: 3})
	assert.Equal(t, int64(300), j.Progress.ProcessedBytes)
}

func TestPercent(t *testing.T) {
	j := New("h1", KindCopy, time.Now())
	assert.Zero(t, Percent(j.Totals, j.Progress))

	j.ApplyTotals(Totals{Items: 4})
	j.ApplyProgress(Progress{ProcessedItems: 1})
	assert.InDelta(t, 25.0, Percent(j.Totals, j.Progress), 0.001)

	j.ApplyTotals(Totals{Bytes: 1000})
	j.ApplyProgress(Progress{ProcessedBytes: 2000})
	assert.InDelta(t, 100.0, Percent(j.Totals, j.Progress), 0.001)
}

func TestKind_Helpers(t *testing.T) {
	assert.True(t, KindArchiveTest.Valid())
	assert.False(t, Kind("shred").Valid())
	assert.True(t, KindRenameInContainer.ContainerMutation())
	assert.False(t, KindCompress.ContainerMutation())
}

func TestCandidatesFor(t *testing.T) {
	file := CandidatesFor(ItemFile, StageItem)
	assert.Contains(t, file, DecisionOverwriteThis)
	assert.Contains(t, file, DecisionSkipIfDestinationIsZeroLength)
	assert.Contains(t, file, DecisionCancelOperation)

	folder := CandidatesFor(ItemFolder, StageItem)
	assert.Equal(t, []Decision{DecisionOverwriteThis, DecisionSkipThis, DecisionCancelOperation}, folder)

	contents := CandidatesFor(ItemFolder, StageFolderContents)
	assert.NotContains(t, contents, DecisionOverwriteThis)
	assert.Contains(t, contents, DecisionOverwriteAll)
	assert.Contains(t, contents, DecisionCancelOperation)
}

func TestDecision_Valid(t *testing.T) {
	for _, d := range BatchPolicies() {
		assert.True(t, d.IsBatchPolicy(), d)
		assert.True(t, d.Valid(), d)
	}
	assert.False(t, DecisionSkipThis.IsBatchPolicy())
	assert.True(t, DecisionCancelOperation.Valid())
	assert.False(t, Decision("maybe").Valid())
}
