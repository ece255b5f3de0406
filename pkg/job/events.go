package job

// Event is implemented by every notification delivered to job listeners.
type Event interface {
	isEvent()
	// Terminal reports whether the event ends the job.
	Terminal() bool
}

// ProgressEvent carries a progress update.
type ProgressEvent struct {
	JobID    string
	Kind     Kind
	Status   Status
	Totals   Totals
	Progress Progress
}

func (ProgressEvent) isEvent()       {}
func (ProgressEvent) Terminal() bool { return false }

// ConflictEvent announces a pending conflict prompt.
type ConflictEvent struct {
	Prompt ConflictPrompt
}

func (ConflictEvent) isEvent()       {}
func (ConflictEvent) Terminal() bool { return false }

// CompleteEvent reports successful completion. SideEffectErr carries
// failures of post-completion work (for example deleting sources after a
// move); the primary operation still succeeded.
type CompleteEvent struct {
	JobID         string
	Kind          Kind
	Result        map[string]any
	Totals        Totals
	Progress      Progress
	SideEffectErr error
}

func (CompleteEvent) isEvent()       {}
func (CompleteEvent) Terminal() bool { return true }

// ErrorEvent reports a mid-job engine error or a lost connection.
type ErrorEvent struct {
	JobID string
	Kind  Kind
	Err   error
}

func (ErrorEvent) isEvent()       {}
func (ErrorEvent) Terminal() bool { return true }

// CancelEvent reports that the job was cancelled.
type CancelEvent struct {
	JobID string
	Kind  Kind
}

func (CancelEvent) isEvent()       {}
func (CancelEvent) Terminal() bool { return true }
