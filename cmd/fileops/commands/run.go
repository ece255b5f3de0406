package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vulntor/fileops/cmd/fileops/internal/bind"
	"github.com/vulntor/fileops/cmd/fileops/internal/format"
	"github.com/vulntor/fileops/pkg/job"
	"github.com/vulntor/fileops/pkg/listener"
	"github.com/vulntor/fileops/pkg/ops"
	"github.com/vulntor/fileops/pkg/queue"
)

// ErrCancelled reports a job that ended cancelled.
var ErrCancelled = errors.New("operation cancelled")

// reportedError carries an error whose details were already printed.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// resolver answers conflict prompts for a running command.
type resolver interface {
	ResolveConflict(d ops.Decision) error
	CancelCurrentJob() bool
}

// driver consumes job events on the command goroutine.
type driver struct {
	jobs     resolver
	out      format.Formatter
	progress *progressView
	policy   bind.ConflictPolicy
	prompter *prompter

	interrupted bool
}

// newDriver validates the conflict flags. The caller attaches jobs once the
// session is open.
func newDriver(cmd *cobra.Command, out format.Formatter) (*driver, error) {
	policy, err := bind.BindConflictPolicy(cmd)
	if err != nil {
		return nil, err
	}
	return &driver{
		out:      out,
		progress: newProgressView(out),
		policy:   policy,
		prompter: newPrompter(cmd.InOrStdin(), out.Stderr(), out.ColorEnabled()),
	}, nil
}

// resolve answers one prompt according to the conflict policy.
func (d *driver) resolve(prompt job.ConflictPrompt) {
	var choice job.Decision
	if d.policy.Ask {
		d.progress.Clear()
		choice = d.prompter.Ask(prompt)
	} else {
		choice = decide(d.policy, prompt)
	}
	err := d.jobs.ResolveConflict(ops.Decision{JobID: prompt.JobID, PromptID: prompt.PromptID, Choice: choice})
	if err != nil {
		_ = d.out.PrintWarning(fmt.Sprintf("could not answer conflict for %s: %v", prompt.ItemName, err))
	}
}

// interrupt cancels the running job once; later events still arrive.
func (d *driver) interrupt() {
	d.interrupted = true
	d.progress.Clear()
	if d.jobs.CancelCurrentJob() {
		_ = d.out.PrintWarning("Cancelling...")
	}
}

// next returns the next terminal event, handling progress and conflicts
// on the way. An interrupt of ctx cancels the current job.
func (d *driver) next(ctx context.Context, events <-chan job.Event) job.Event {
	done := ctx.Done()
	if d.interrupted {
		done = nil
	}
	for {
		select {
		case <-done:
			done = nil
			d.interrupt()
		case ev := <-events:
			switch e := ev.(type) {
			case job.ProgressEvent:
				d.progress.Update(e)
			case job.ConflictEvent:
				d.resolve(e.Prompt)
			default:
				d.progress.Clear()
				return ev
			}
		}
	}
}

// starter launches one job with the session's listeners.
type starter func(ctx context.Context, s *session, l listener.Listeners) (string, error)

// runJob starts a single job and waits for it to finish.
func runJob(cmd *cobra.Command, operation, destination string, start starter) error {
	d, err := newDriver(cmd, format.FromCommand(cmd))
	if err != nil {
		return err
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()
	d.jobs = s

	s.showDestination(destination)
	ctx := cmd.Context()
	if _, err := start(ctx, s, s.listeners()); err != nil {
		return err
	}

	return finishJob(s.out, operation, d.next(ctx, s.events))
}

// finishJob reports a terminal event.
func finishJob(out format.Formatter, operation string, ev job.Event) error {
	switch e := ev.(type) {
	case job.CompleteEvent:
		result := format.JobResult{
			Operation: operation,
			JobID:     e.JobID,
			Items:     max(e.Progress.ProcessedItems, e.Totals.Items),
			Bytes:     max(e.Progress.ProcessedBytes, e.Totals.Bytes),
			Result:    e.Result,
		}
		if e.SideEffectErr != nil {
			result.Warning = e.SideEffectErr.Error()
		}
		if err := out.PrintJobResult(result); err != nil {
			return err
		}
		if e.SideEffectErr != nil {
			return &reportedError{err: e.SideEffectErr}
		}
		return nil
	case job.ErrorEvent:
		return e.Err
	case job.CancelEvent:
		return ErrCancelled
	default:
		return fmt.Errorf("unexpected event %T", ev)
	}
}

// runDecompress extracts archives one after another and prints a summary.
func runDecompress(cmd *cobra.Command, archives []string, destination string, opts ops.DecompressOptions) error {
	d, err := newDriver(cmd, format.FromCommand(cmd))
	if err != nil {
		return err
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close()
	d.jobs = s

	s.showDestination(destination)
	opts.Listeners = s.listeners()
	ctx := cmd.Context()

	summary := format.Summary{Operation: "decompress"}
	if _, err := s.StartDecompress(ctx, archives, destination, opts); err != nil {
		if errors.Is(err, queue.ErrHalted) {
			// The first archive was rejected; the halt event carries the details.
			return haltSummary(s, summary, archives, <-s.halts)
		}
		return err
	}

	interrupt := ctx.Done()
	for {
		select {
		case ev := <-s.done:
			drainTerminals(d, s, archives, &summary)
			summary.Success = ev.Count
			return s.out.PrintBatchSummary(summary)
		case ev := <-s.halts:
			drainTerminals(d, s, archives, &summary)
			return haltSummary(s, summary, archives, ev)
		case ev := <-s.events:
			d.handleBatchEvent(s, ev, archives, &summary)
		case <-interrupt:
			interrupt = nil
			d.interrupt()
		}
	}
}

// handleBatchEvent reports per-archive progress. Archives run strictly in
// order, so the n-th completion belongs to the n-th archive.
func (d *driver) handleBatchEvent(s *session, ev job.Event, archives []string, summary *format.Summary) {
	switch e := ev.(type) {
	case job.ProgressEvent:
		d.progress.Update(e)
	case job.ConflictEvent:
		d.resolve(e.Prompt)
	case job.CompleteEvent:
		d.progress.Clear()
		name := e.JobID
		if summary.Success < len(archives) {
			name = filepath.Base(archives[summary.Success])
		}
		summary.Success++
		_ = s.out.PrintSummary(fmt.Sprintf("✓ Extracted %s", name))
	case job.ErrorEvent, job.CancelEvent:
		d.progress.Clear()
	}
}

// drainTerminals consumes events already queued when the run ends.
func drainTerminals(d *driver, s *session, archives []string, summary *format.Summary) {
	for {
		select {
		case ev := <-s.events:
			d.handleBatchEvent(s, ev, archives, summary)
		default:
			return
		}
	}
}

func haltSummary(s *session, summary format.Summary, archives []string, ev queue.HaltEvent) error {
	source := ""
	if len(ev.Request.Sources) > 0 {
		source = ev.Request.Sources[0]
	}
	cause := ev.Err
	if ev.Cancelled {
		cause = fmt.Errorf("%w: %w", ErrCancelled, ev.Err)
	}

	summary.Success = ev.Index
	summary.Failed = 1
	summary.Skipped = len(archives) - ev.Index - 1
	summary.Errors = []format.ErrorDetail{{Source: source, Error: ev.Err.Error(), ErrorCode: ops.ErrorCode(ev.Err)}}
	summary.TotalErrors = 1
	summary.Suggestions = ops.Suggestions(ev.Err)
	if err := s.out.PrintBatchSummary(summary); err != nil {
		return err
	}
	return &reportedError{err: cause}
}
