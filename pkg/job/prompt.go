package job

import "slices"

// ItemKind says whether a conflicting item is a file or a folder.
type ItemKind string

const (
	ItemFile   ItemKind = "file"
	ItemFolder ItemKind = "folder"
)

// Stage distinguishes the follow-up prompt that fixes the rule for a
// folder's contents after the user chose to overwrite the folder itself.
type Stage string

const (
	StageItem           Stage = "item"
	StageFolderContents Stage = "folder-contents"
)

// Decision is a user's answer to a conflict prompt.
type Decision string

const (
	DecisionOverwriteThis Decision = "overwrite-this"
	DecisionSkipThis      Decision = "skip-this"

	DecisionOverwriteAll                  Decision = "overwrite-all"
	DecisionSkipAll                       Decision = "skip-all"
	DecisionOverwriteIfSourceNewer        Decision = "overwrite-if-source-newer"
	DecisionOverwriteIfSizeDiffers        Decision = "overwrite-only-if-size-differs"
	DecisionOverwriteIfDestinationSmaller Decision = "overwrite-only-if-destination-smaller"
	DecisionSkipIfDestinationIsZeroLength Decision = "skip-if-destination-is-zero-length"

	DecisionCancelOperation Decision = "cancel-operation"
)

// BatchPolicies are decisions that apply to every later conflict of a job.
func BatchPolicies() []Decision {
	return []Decision{
		DecisionOverwriteAll,
		DecisionSkipAll,
		DecisionOverwriteIfSourceNewer,
		DecisionOverwriteIfSizeDiffers,
		DecisionOverwriteIfDestinationSmaller,
		DecisionSkipIfDestinationIsZeroLength,
	}
}

// IsBatchPolicy reports whether d applies to all remaining conflicts.
func (d Decision) IsBatchPolicy() bool {
	return slices.Contains(BatchPolicies(), d)
}

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionOverwriteThis, DecisionSkipThis, DecisionCancelOperation:
		return true
	}
	return d.IsBatchPolicy()
}

// ConflictPrompt is a single pending naming conflict.
type ConflictPrompt struct {
	JobID                 string     `json:"jobId"`
	PromptID              string     `json:"promptId"`
	ItemName              string     `json:"itemName"`
	ItemKind              ItemKind   `json:"itemKind"`
	Stage                 Stage      `json:"stage"`
	BatchPolicyCandidates []Decision `json:"batchPolicyCandidates"`
}

// CandidatesFor returns the decisions offered for a prompt of the given
// item kind and stage.
func CandidatesFor(kind ItemKind, stage Stage) []Decision {
	switch {
	case stage == StageFolderContents:
		return append(BatchPolicies(), DecisionCancelOperation)
	case kind == ItemFolder:
		return []Decision{DecisionOverwriteThis, DecisionSkipThis, DecisionCancelOperation}
	default:
		out := []Decision{DecisionOverwriteThis, DecisionSkipThis}
		out = append(out, BatchPolicies()...)
		return append(out, DecisionCancelOperation)
	}
}

// Offers reports whether d is one of the prompt's candidates.
func (p ConflictPrompt) Offers(d Decision) bool {
	return slices.Contains(p.BatchPolicyCandidates, d)
}

// BatchOptions are carried by an operation queue across all its members.
type BatchOptions struct {
	// ForceSubfolder extracts every archive into its own new subfolder.
	ForceSubfolder bool `json:"forceSubfolder"`
	// MultiItem treats the whole queue as a multi-item operation for naming.
	MultiItem bool `json:"multiItem"`
}
