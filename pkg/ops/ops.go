// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package ops is the entry point the rest of the application uses to run
// file jobs: start a transfer, compress or extract archives, test or edit
// an archive, answer conflict prompts and cancel jobs.
package ops

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vulntor/fileops/pkg/config"
	"github.com/vulntor/fileops/pkg/coordinator"
	"github.com/vulntor/fileops/pkg/job"
	"github.com/vulntor/fileops/pkg/listener"
	"github.com/vulntor/fileops/pkg/logging"
	"github.com/vulntor/fileops/pkg/loop"
	"github.com/vulntor/fileops/pkg/queue"
)

// Coordinator groups. Each group has its own coordinator, so a long copy
// never becomes the "current" job of an archive edit.
const (
	GroupTransfer        = "transfer"
	GroupCompress        = "compress"
	GroupDecompress      = "decompress"
	GroupArchiveTest     = "archive-test"
	GroupArchiveMutation = "archive-mutation"
)

var groups = []struct {
	name  string
	kinds []job.Kind
}{
	{GroupTransfer, []job.Kind{job.KindCopy, job.KindMove}},
	{GroupCompress, []job.Kind{job.KindCompress}},
	{GroupDecompress, []job.Kind{job.KindDecompress}},
	{GroupArchiveTest, []job.Kind{job.KindArchiveTest}},
	{GroupArchiveMutation, []job.Kind{job.KindCreateInContainer, job.KindRenameInContainer, job.KindDeleteInContainer}},
}

// Deps are the collaborators the facade runs on. Listeners and Refresher
// are optional.
type Deps struct {
	Engine    coordinator.Engine
	Opener    coordinator.Opener
	Loop      *loop.Loop
	Listeners *listener.Registry
	Refresher coordinator.Refresher
}

// Options tune the facade.
type Options struct {
	Jobs        config.JobsConfig
	OnQueueHalt func(queue.HaltEvent)
	OnQueueDone func(queue.DoneEvent)
}

// Decision answers one conflict prompt. An empty JobID targets the most
// recently started job.
type Decision struct {
	JobID    string       `json:"jobId"`
	PromptID string       `json:"promptId"`
	Choice   job.Decision `json:"choice"`
}

// Facade routes operations to the coordinator of their kind.
type Facade struct {
	listeners *listener.Registry
	coords    []*coordinator.Coordinator
	extract   *queue.Queue

	mu      sync.Mutex
	current *coordinator.Coordinator
	closed  bool
	onClose []func(context.Context) error

	logger zerolog.Logger
}

// New builds a facade over deps.
func New(deps Deps, opts Options) *Facade {
	registry := deps.Listeners
	if registry == nil {
		registry = listener.New()
	}

	f := &Facade{
		listeners: registry,
		logger:    logging.Component("ops"),
	}

	for _, g := range groups {
		c := coordinator.New(g.name, g.kinds, coordinator.Deps{
			Engine:    deps.Engine,
			Opener:    deps.Opener,
			Loop:      deps.Loop,
			Listeners: registry,
		}).
			WithCancelTimeout(opts.Jobs.CancelTimeout).
			WithProgressInterval(opts.Jobs.ProgressInterval)
		if deps.Refresher != nil {
			c.WithRefresher(deps.Refresher)
		}
		f.coords = append(f.coords, c)
	}

	f.extract = queue.New(f.coordinator(GroupDecompress)).
		WithOnHalt(opts.OnQueueHalt).
		WithOnDone(opts.OnQueueDone)
	if deps.Refresher != nil {
		f.extract.WithRefresher(deps.Refresher)
	}
	return f
}

func (f *Facade) coordinator(name string) *coordinator.Coordinator {
	for _, c := range f.coords {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

func (f *Facade) coordinatorFor(kind job.Kind) *coordinator.Coordinator {
	for _, c := range f.coords {
		if c.Handles(kind) {
			return c
		}
	}
	return nil
}

// owner finds the coordinator tracking ref. An empty ref resolves to the
// coordinator of the most recently started job.
func (f *Facade) owner(ref string) *coordinator.Coordinator {
	if ref == "" {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.current
	}
	for _, c := range f.coords {
		if _, ok := c.Snapshot(ref); ok {
			return c
		}
	}
	return nil
}

func (f *Facade) start(ctx context.Context, req coordinator.Request) (string, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return "", coordinator.ErrClosed
	}
	f.mu.Unlock()

	c := f.coordinatorFor(req.Kind)
	if c == nil {
		return "", coordinator.WithErrorCode(
			fmt.Errorf("%w: unknown job kind %q", coordinator.ErrInvalidRequest, req.Kind),
			coordinator.ErrorCodeInvalidRequest,
		)
	}

	handle, err := c.Start(ctx, req)
	if err == nil {
		f.mu.Lock()
		f.current = c
		f.mu.Unlock()
	}
	return handle, err
}

// ResolveConflict answers an outstanding conflict prompt. Decisions for
// prompts that are no longer outstanding are ignored.
func (f *Facade) ResolveConflict(d Decision) error {
	c := f.owner(d.JobID)
	if c == nil {
		return coordinator.WithErrorCode(
			fmt.Errorf("%w: %q", coordinator.ErrUnknownJob, d.JobID),
			coordinator.ErrorCodeInvalidRequest,
		)
	}
	return c.ResolveConflict(d.JobID, d.PromptID, d.Choice)
}

// PendingPrompt returns the outstanding prompt of a job.
func (f *Facade) PendingPrompt(ref string) (job.ConflictPrompt, bool) {
	c := f.owner(ref)
	if c == nil {
		return job.ConflictPrompt{}, false
	}
	return c.PendingPrompt(ref)
}

// CancelCurrentJob cancels the most recently started unfinished job and
// reports whether there was one.
func (f *Facade) CancelCurrentJob() bool {
	f.mu.Lock()
	current := f.current
	f.mu.Unlock()

	if current != nil && current.CancelCurrent() {
		return true
	}
	for _, c := range f.coords {
		if c != current && c.CancelCurrent() {
			return true
		}
	}
	return false
}

// Cancel cancels the job with the given handle or engine id.
func (f *Facade) Cancel(ref string) error {
	if ref == "" {
		return coordinator.WithErrorCode(
			fmt.Errorf("%w: empty job reference", coordinator.ErrInvalidRequest),
			coordinator.ErrorCodeInvalidRequest,
		)
	}
	c := f.owner(ref)
	if c == nil {
		return coordinator.WithErrorCode(
			fmt.Errorf("%w: %q", coordinator.ErrUnknownJob, ref),
			coordinator.ErrorCodeInvalidRequest,
		)
	}
	return c.Cancel(ref)
}

// Subscribe attaches listeners to a job by engine id. Listeners attached
// after the job finished are never called.
func (f *Facade) Subscribe(jobID string, l listener.Listeners) (unsubscribe func()) {
	return f.listeners.Subscribe(jobID, l)
}

// Snapshot returns a copy of the job with the given handle or engine id.
func (f *Facade) Snapshot(ref string) (job.Job, bool) {
	for _, c := range f.coords {
		if j, ok := c.Snapshot(ref); ok {
			return j, true
		}
	}
	return job.Job{}, false
}

// Jobs returns every tracked job, oldest first.
func (f *Facade) Jobs() []job.Job {
	var out []job.Job
	for _, c := range f.coords {
		out = append(out, c.Jobs()...)
	}
	slices.SortFunc(out, func(a, b job.Job) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// ApplyJobsConfig retunes every coordinator for jobs started from now on.
func (f *Facade) ApplyJobsConfig(cfg config.JobsConfig) {
	for _, c := range f.coords {
		c.Retune(cfg.CancelTimeout, cfg.ProgressInterval)
	}
	f.logger.Debug().
		Dur("cancel_timeout", cfg.CancelTimeout).
		Dur("progress_interval", cfg.ProgressInterval).
		Msg("Applied jobs configuration")
}

// Close cancels queued extraction, shuts every coordinator down and then
// runs the teardown registered by Open.
func (f *Facade) Close(ctx context.Context) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	teardown := f.onClose
	f.mu.Unlock()

	f.extract.Close()

	var errs []error
	for _, c := range f.coords {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.Name(), err))
		}
	}
	for _, fn := range teardown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// shutdownTimeout bounds Close when the caller's context has no deadline.
const shutdownTimeout = 5 * time.Second
