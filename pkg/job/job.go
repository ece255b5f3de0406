// Package job defines the job data model shared by the channel, resolver,
// coordinator and queue packages: jobs, their status machine, conflict
// prompts, decisions and the events delivered to subscribers.
package job

import (
	"fmt"
	"time"
)

// Kind identifies the operation a job performs on the engine.
type Kind string

const (
	KindCopy              Kind = "copy"
	KindMove              Kind = "move"
	KindCompress          Kind = "compress"
	KindDecompress        Kind = "decompress"
	KindDeleteInContainer Kind = "delete-in-container"
	KindRenameInContainer Kind = "rename-in-container"
	KindCreateInContainer Kind = "create-in-container"
	KindArchiveTest       Kind = "archive-test"
)

// Kinds lists every supported kind.
func Kinds() []Kind {
	return []Kind{
		KindCopy, KindMove, KindCompress, KindDecompress,
		KindDeleteInContainer, KindRenameInContainer, KindCreateInContainer,
		KindArchiveTest,
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

// ContainerMutation reports whether k changes the entries of a container file.
func (k Kind) ContainerMutation() bool {
	switch k {
	case KindDeleteInContainer, KindRenameInContainer, KindCreateInContainer:
		return true
	}
	return false
}

// Status is the lifecycle state of a job.
type Status string

const (
	StatusCreated   Status = "created"
	StatusScanning  Status = "scanning"
	StatusActive    Status = "active"
	StatusPrompting Status = "prompting"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// Terminal reports whether s is a sink state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusError
}

// transitions lists the forward moves allowed from each non-terminal state.
var transitions = map[Status][]Status{
	StatusCreated:   {StatusScanning, StatusCancelled, StatusError},
	StatusScanning:  {StatusActive, StatusCompleted, StatusCancelled, StatusError},
	StatusActive:    {StatusPrompting, StatusCompleted, StatusCancelled, StatusError},
	StatusPrompting: {StatusActive, StatusCancelled, StatusError},
}

// CanTransition reports whether the status machine allows s -> to.
func (s Status) CanTransition(to Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Totals holds the scan totals announced by the engine.
type Totals struct {
	Bytes int64 `json:"bytes"`
	Items int64 `json:"items"`
}

// Progress is the latest progress reported for a job.
type Progress struct {
	ProcessedBytes            int64   `json:"processedBytes"`
	ProcessedItems            int64   `json:"processedItems"`
	CurrentItemName           string  `json:"currentItemName,omitempty"`
	CurrentItemBytes          int64   `json:"currentItemBytes"`
	CurrentItemProcessedBytes int64   `json:"currentItemProcessedBytes"`
	InstantaneousRate         float64 `json:"instantaneousRate"`
}

// Job is one remote long-running task.
//
// Handle is assigned locally when the job is created; ID is the opaque
// handle the engine assigns once it accepts the job.
type Job struct {
	Handle        string    `json:"handle"`
	ID            string    `json:"id,omitempty"`
	Kind          Kind      `json:"kind"`
	Status        Status    `json:"status"`
	Totals        Totals    `json:"totals"`
	Progress      Progress  `json:"progress"`
	TerminalError error     `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	FinishedAt    time.Time `json:"finishedAt,omitempty"`
}

// New returns a job in the created state.
func New(handle string, kind Kind, now time.Time) *Job {
	return &Job{
		Handle:    handle,
		Kind:      kind,
		Status:    StatusCreated,
		CreatedAt: now,
	}
}

// TransitionError reports a move the status machine does not allow.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid job transition %s -> %s", e.From, e.To)
}

// Transition moves the job to status to. Terminal states are sinks.
func (j *Job) Transition(to Status, now time.Time) error {
	if j.Status == to {
		return nil
	}
	if !j.Status.CanTransition(to) {
		return &TransitionError{From: j.Status, To: to}
	}
	j.Status = to
	if to.Terminal() {
		j.FinishedAt = now
	}
	return nil
}

// Fail moves the job to error and records err.
func (j *Job) Fail(err error, now time.Time) error {
	if j.Status.Terminal() {
		return &TransitionError{From: j.Status, To: StatusError}
	}
	if terr := j.Transition(StatusError, now); terr != nil {
		return terr
	}
	j.TerminalError = err
	return nil
}

// ApplyTotals records scan totals. Zero values leave known totals untouched.
func (j *Job) ApplyTotals(t Totals) {
	if t.Bytes > 0 {
		j.Totals.Bytes = t.Bytes
	}
	if t.Items > 0 {
		j.Totals.Items = t.Items
	}
}

// ApplyProgress merges p into the job. Processed counters never decrease;
// a lower value from a reordered frame keeps the previous one.
func (j *Job) ApplyProgress(p Progress) {
	if p.ProcessedBytes > j.Progress.ProcessedBytes {
		j.Progress.ProcessedBytes = p.ProcessedBytes
	}
	if p.ProcessedItems > j.Progress.ProcessedItems {
		j.Progress.ProcessedItems = p.ProcessedItems
	}
	j.Progress.CurrentItemName = p.CurrentItemName
	j.Progress.CurrentItemBytes = p.CurrentItemBytes
	j.Progress.CurrentItemProcessedBytes = p.CurrentItemProcessedBytes
	j.Progress.InstantaneousRate = p.InstantaneousRate
}

// Percent returns the byte completion ratio in [0,100], or the item ratio
// when the byte total is unknown.
func Percent(t Totals, p Progress) float64 {
	switch {
	case t.Bytes > 0:
		return clampPercent(float64(p.ProcessedBytes) / float64(t.Bytes) * 100)
	case t.Items > 0:
		return clampPercent(float64(p.ProcessedItems) / float64(t.Items) * 100)
	default:
		return 0
	}
}

func clampPercent(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}

// Snapshot returns a copy safe to hand to other goroutines.
func (j *Job) Snapshot() Job {
	return *j
}
