// Package conflict drives the interactive overwrite protocol of one job.
//
// A Resolver is either idle or awaiting a decision. Engine prompts enter the
// awaiting state; only a matching decision returns it to idle. Once a batch
// policy is chosen every later prompt of the job is answered with it and
// never reaches the user. All methods must be called on the event loop.
package conflict

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/fileops/pkg/job"
	"github.com/vulntor/fileops/pkg/wire"
)

// ErrDecisionNotOffered is returned when a decision is not among the
// candidates of the outstanding prompt. The prompt stays outstanding.
var ErrDecisionNotOffered = errors.New("decision not offered for this prompt")

// State of the resolver.
type State string

const (
	StateIdle             State = "idle"
	StateAwaitingDecision State = "awaiting-decision"
)

// contentsSuffix marks the local follow-up prompt for a folder's contents.
const contentsSuffix = "/contents"

// Hooks connect the resolver to its job coordinator.
type Hooks struct {
	// Respond sends an overwrite_response frame to the engine.
	Respond func(wire.OverwriteResponse)
	// Prompt announces a prompt that needs a user decision.
	Prompt func(job.ConflictPrompt)
	// Resumed fires when the outstanding prompt has been answered.
	Resumed func()
	// Cancel aborts the whole job.
	Cancel func()
}

// Resolver handles the conflict prompts of a single job.
type Resolver struct {
	jobID string
	hooks Hooks

	state   State
	pending *job.ConflictPrompt
	// folder is the engine prompt a folder-contents prompt belongs to.
	folder *job.ConflictPrompt
	policy job.Decision

	logger zerolog.Logger
}

// New creates an idle resolver for jobID.
func New(jobID string, kind job.Kind, hooks Hooks) *Resolver {
	return &Resolver{
		jobID: jobID,
		hooks: hooks,
		state: StateIdle,
		logger: log.With().
			Str("component", "conflict").
			Str("job_id", jobID).
			Str("kind", string(kind)).
			Logger(),
	}
}

// State returns the current state.
func (r *Resolver) State() State { return r.state }

// Pending returns the outstanding prompt, if any.
func (r *Resolver) Pending() (job.ConflictPrompt, bool) {
	if r.pending == nil {
		return job.ConflictPrompt{}, false
	}
	return *r.pending, true
}

// Policy returns the batch policy in force, or "" if none.
func (r *Resolver) Policy() job.Decision { return r.policy }

// Offer handles an overwrite_prompt frame. It reports whether the prompt
// was surfaced to the user; prompts answered by a remembered batch policy
// are not.
func (r *Resolver) Offer(msg wire.OverwritePrompt) bool {
	if r.policy != "" {
		r.logger.Debug().
			Str("prompt_id", msg.PromptID).
			Str("policy", string(r.policy)).
			Msg("Answering prompt with batch policy")
		r.respond(wire.NewOverwriteResponse(msg.PromptID, string(r.policy), ""))
		return false
	}

	if r.pending != nil {
		r.logger.Debug().
			Str("superseded", r.pending.PromptID).
			Str("prompt_id", msg.PromptID).
			Msg("New prompt supersedes outstanding prompt")
	}

	kind := itemKind(msg.ItemType)
	prompt := job.ConflictPrompt{
		JobID:                 r.jobID,
		PromptID:              msg.PromptID,
		ItemName:              msg.File,
		ItemKind:              kind,
		Stage:                 job.StageItem,
		BatchPolicyCandidates: job.CandidatesFor(kind, job.StageItem),
	}
	r.folder = nil
	r.await(prompt)
	return true
}

// Resolve answers the outstanding prompt. A call with no outstanding prompt,
// or for a prompt id other than the outstanding one, is ignored.
func (r *Resolver) Resolve(promptID string, d job.Decision) error {
	if r.state == StateIdle || r.pending == nil {
		r.logger.Debug().Str("prompt_id", promptID).Msg("No outstanding prompt, ignoring decision")
		return nil
	}
	if promptID != r.pending.PromptID {
		r.logger.Debug().
			Str("prompt_id", promptID).
			Str("outstanding", r.pending.PromptID).
			Msg("Ignoring decision for stale prompt")
		return nil
	}
	if !r.pending.Offers(d) {
		return fmt.Errorf("%w: %q for %s prompt %s", ErrDecisionNotOffered, d, r.pending.Stage, promptID)
	}

	if d == job.DecisionCancelOperation {
		r.logger.Info().Str("prompt_id", promptID).Msg("Conflict prompt cancelled the job")
		r.reset()
		if r.hooks.Cancel != nil {
			r.hooks.Cancel()
		}
		return nil
	}

	prompt := *r.pending

	switch {
	case prompt.Stage == job.StageFolderContents:
		folder := r.folder
		r.policy = d
		r.reset()
		r.respond(wire.NewOverwriteResponse(folder.PromptID, string(job.DecisionOverwriteThis), string(d)))
		r.resumed()

	case prompt.ItemKind == job.ItemFolder && d == job.DecisionOverwriteThis:
		// Overwriting a folder needs a rule for its contents before the
		// engine hears anything.
		r.folder = &prompt
		r.await(job.ConflictPrompt{
			JobID:                 r.jobID,
			PromptID:              prompt.PromptID + contentsSuffix,
			ItemName:              prompt.ItemName,
			ItemKind:              job.ItemFolder,
			Stage:                 job.StageFolderContents,
			BatchPolicyCandidates: job.CandidatesFor(job.ItemFolder, job.StageFolderContents),
		})

	default:
		if d.IsBatchPolicy() {
			r.policy = d
		}
		r.reset()
		r.respond(wire.NewOverwriteResponse(prompt.PromptID, string(d), ""))
		r.resumed()
	}
	return nil
}

// Abandon drops any outstanding prompt without answering it, for example
// when the job reached a terminal state.
func (r *Resolver) Abandon() {
	r.reset()
}

func (r *Resolver) await(p job.ConflictPrompt) {
	r.pending = &p
	r.state = StateAwaitingDecision
	if r.hooks.Prompt != nil {
		r.hooks.Prompt(p)
	}
}

func (r *Resolver) reset() {
	r.pending = nil
	r.folder = nil
	r.state = StateIdle
}

func (r *Resolver) respond(resp wire.OverwriteResponse) {
	if r.hooks.Respond != nil {
		r.hooks.Respond(resp)
	}
}

func (r *Resolver) resumed() {
	if r.hooks.Resumed != nil {
		r.hooks.Resumed()
	}
}

func itemKind(wireType string) job.ItemKind {
	switch wireType {
	case "folder", "directory", "dir":
		return job.ItemFolder
	default:
		return job.ItemFile
	}
}
