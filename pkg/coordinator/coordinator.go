// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package coordinator runs remote file jobs: it asks the engine to create a
// job, opens the job's channel, advances the job through its status machine
// as frames arrive, drives conflict prompts and performs the kind-specific
// finalization once the job completes.
package coordinator

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/vulntor/fileops/pkg/channel"
	"github.com/vulntor/fileops/pkg/conflict"
	"github.com/vulntor/fileops/pkg/job"
	"github.com/vulntor/fileops/pkg/listener"
	"github.com/vulntor/fileops/pkg/loop"
	"github.com/vulntor/fileops/pkg/wire"
)

const (
	defaultCancelTimeout = 10 * time.Second
	sendTimeout          = 5 * time.Second
	engineCallTimeout    = 30 * time.Second
)

// Engine is the job engine's request surface.
type Engine interface {
	StartJob(ctx context.Context, kind job.Kind, params map[string]any) (string, error)
	CancelJob(ctx context.Context, jobID string) error
	DeletePath(ctx context.Context, path string) error
}

// Opener opens job channels. *channel.Hub implements it.
type Opener interface {
	Open(ctx context.Context, jobID string, kind job.Kind) (channel.Channel, error)
	IsOpen(jobID string) bool
}

// Refresher reloads listings showing any of the given locations.
type Refresher interface {
	RefreshAffected(locations ...string)
}

// Deps are the collaborators every coordinator needs.
type Deps struct {
	Engine    Engine
	Opener    Opener
	Loop      *loop.Loop
	Listeners *listener.Registry
}

type entry struct {
	job      *job.Job
	req      Request
	ch       channel.Channel
	resolver *conflict.Resolver
	prompt   *job.ConflictPrompt
	limiter  *rate.Limiter

	cancelRequested bool
	cancelTimer     *time.Timer
}

// Coordinator tracks the jobs of one group of kinds.
//
// Job state is guarded by mu. Frames, decisions and cancellations are
// processed on the loop, so per-job handling is serial; listeners are
// always invoked without mu held.
type Coordinator struct {
	name  string
	kinds []job.Kind

	engine    Engine
	opener    Opener
	loop      *loop.Loop
	listeners *listener.Registry
	panels    Refresher

	cancelTimeout    time.Duration
	progressInterval time.Duration
	now              func() time.Time
	newHandle        func() string

	mu      sync.Mutex
	jobs    map[string]*entry
	byID    map[string]string
	current string
	closed  bool

	wg     sync.WaitGroup
	logger zerolog.Logger
}

// New creates a coordinator named name that accepts the given kinds.
func New(name string, kinds []job.Kind, deps Deps) *Coordinator {
	return &Coordinator{
		name:          name,
		kinds:         kinds,
		engine:        deps.Engine,
		opener:        deps.Opener,
		loop:          deps.Loop,
		listeners:     deps.Listeners,
		cancelTimeout: defaultCancelTimeout,
		now:           time.Now,
		newHandle:     uuid.NewString,
		jobs:          make(map[string]*entry),
		byID:          make(map[string]string),
		logger:        log.With().Str("component", "coordinator").Str("coordinator", name).Logger(),
	}
}

// WithRefresher sets the panel refresher used after completion.
func (c *Coordinator) WithRefresher(r Refresher) *Coordinator {
	c.panels = r
	return c
}

// WithCancelTimeout sets how long a cancel waits for the engine's
// confirmation before the job is settled as cancelled locally.
func (c *Coordinator) WithCancelTimeout(d time.Duration) *Coordinator {
	if d > 0 {
		c.cancelTimeout = d
	}
	return c
}

// WithProgressInterval limits progress notifications to one per interval.
// Zero notifies on every frame.
func (c *Coordinator) WithProgressInterval(d time.Duration) *Coordinator {
	c.progressInterval = d
	return c
}

// Retune replaces the cancel timeout and progress interval for jobs
// started from now on. A non-positive cancel timeout keeps the current one.
func (c *Coordinator) Retune(cancelTimeout, progressInterval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancelTimeout > 0 {
		c.cancelTimeout = cancelTimeout
	}
	c.progressInterval = progressInterval
}

// WithClock overrides the time source (useful for tests).
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Name returns the coordinator name.
func (c *Coordinator) Name() string { return c.name }

// Handles reports whether the coordinator accepts kind.
func (c *Coordinator) Handles(kind job.Kind) bool {
	return slices.Contains(c.kinds, kind)
}

// Start asks the engine to create the job described by req. It blocks until
// the engine acknowledges or rejects the job and the job channel is open.
// A rejection returns an ErrRejected error and no channel is opened. Start
// must not be called from the loop.
func (c *Coordinator) Start(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", WithErrorCode(fmt.Errorf("%w: %w", ErrInvalidRequest, err), ErrorCodeInvalidRequest)
	}
	if !c.Handles(req.Kind) {
		return "", WithErrorCode(
			fmt.Errorf("%w: coordinator %s does not run %s jobs", ErrInvalidRequest, c.name, req.Kind),
			ErrorCodeInvalidRequest,
		)
	}

	e := &entry{
		job: job.New(c.newHandle(), req.Kind, c.now()),
		req: req,
	}
	handle := e.job.Handle

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	if c.progressInterval > 0 {
		e.limiter = rate.NewLimiter(rate.Every(c.progressInterval), 1)
	}
	c.jobs[handle] = e
	c.current = handle
	c.mu.Unlock()

	logger := c.logger.With().Str("handle", handle).Str("kind", string(req.Kind)).Logger()
	logger.Debug().Strs("sources", req.Sources).Str("destination", req.Destination).Msg("Requesting job")

	jobID, err := c.engine.StartJob(ctx, req.Kind, req.EngineParams())
	if err != nil {
		c.mu.Lock()
		if !e.job.Status.Terminal() {
			_ = e.job.Fail(err, c.now())
		}
		c.clearCurrent(handle)
		c.mu.Unlock()
		logger.Warn().Err(err).Msg("Engine rejected job")
		return handle, NewRejectedError(req.Kind, err)
	}

	c.mu.Lock()
	e.job.ID = jobID
	c.byID[jobID] = handle
	if e.job.Status.Terminal() {
		// Cancelled while the request was in flight.
		c.mu.Unlock()
		logger.Info().Str("job_id", jobID).Msg("Job acknowledged after local cancel, cancelling on engine")
		c.cancelOnEngine(jobID)
		return handle, nil
	}
	_ = e.job.Transition(job.StatusScanning, c.now())
	e.resolver = c.newResolver(e)
	c.mu.Unlock()

	c.listeners.Subscribe(jobID, req.Listeners)

	ch, err := c.opener.Open(ctx, jobID, req.Kind)
	if err != nil {
		logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to open job channel")
		c.loop.Post(func() {
			c.settle(e, job.StatusError, NewConnectionLostError(req.Kind, err), nil)
		})
		return handle, nil
	}

	c.mu.Lock()
	e.ch = ch
	terminal := e.job.Status.Terminal()
	c.mu.Unlock()
	if terminal {
		_ = ch.Close(channel.ReasonCancelled)
		return handle, nil
	}

	ch.OnMessage(func(msg wire.Message) { c.handleMessage(e, msg) })
	logger.Info().Str("job_id", jobID).Msg("Job started")
	return handle, nil
}

func (c *Coordinator) newResolver(e *entry) *conflict.Resolver {
	return conflict.New(e.job.ID, e.job.Kind, conflict.Hooks{
		Respond: func(resp wire.OverwriteResponse) { c.respond(e, resp) },
		Prompt:  func(p job.ConflictPrompt) { c.prompted(e, p) },
		Resumed: func() { c.resumed(e) },
		Cancel:  func() { c.cancelOnLoop(e) },
	})
}

// handleMessage runs on the loop.
func (c *Coordinator) handleMessage(e *entry, msg wire.Message) {
	c.mu.Lock()
	if e.job.Status.Terminal() {
		c.mu.Unlock()
		c.logger.Debug().Str("job_id", e.job.ID).Str("type", msg.Type()).Msg("Dropping frame for finished job")
		return
	}
	c.mu.Unlock()

	switch m := msg.(type) {
	case wire.Start:
		c.mu.Lock()
		e.job.ApplyTotals(job.Totals{Bytes: m.TotalBytes, Items: m.TotalItems})
		c.promote(e)
		ev := c.progressEvent(e)
		c.mu.Unlock()
		c.listeners.Notify(e.job.ID, ev)

	case wire.Progress:
		c.mu.Lock()
		changed := c.promote(e)
		e.job.ApplyTotals(job.Totals{Bytes: m.Total, Items: m.TotalItems})
		e.job.ApplyProgress(job.Progress{
			ProcessedBytes:            m.Processed,
			ProcessedItems:            m.ProcessedItems,
			CurrentItemName:           m.CurrentFile,
			CurrentItemBytes:          m.CurrentFileTotalSize,
			CurrentItemProcessedBytes: m.CurrentFileBytesProcessed,
			InstantaneousRate:         m.InstantaneousSpeed,
		})
		ev := c.progressEvent(e)
		allowed := changed || e.limiter == nil || e.limiter.Allow()
		c.mu.Unlock()
		if allowed {
			c.listeners.Notify(e.job.ID, ev)
		}

	case wire.OverwritePrompt:
		c.mu.Lock()
		if e.cancelRequested {
			c.mu.Unlock()
			c.logger.Debug().Str("job_id", e.job.ID).Str("prompt_id", m.PromptID).Msg("Dropping prompt for cancelling job")
			return
		}
		c.promote(e)
		c.mu.Unlock()
		e.resolver.Offer(m)

	case wire.Complete:
		c.settle(e, job.StatusCompleted, nil, m.Payload)

	case wire.Error:
		c.settle(e, job.StatusError, NewEngineError(e.job.Kind, m.Message), nil)

	case wire.Cancelled:
		c.settle(e, job.StatusCancelled, nil, nil)

	case wire.Disconnected:
		c.mu.Lock()
		cancelling := e.cancelRequested
		c.mu.Unlock()
		if cancelling {
			c.settle(e, job.StatusCancelled, nil, nil)
			return
		}
		c.settle(e, job.StatusError, NewConnectionLostError(e.job.Kind, m.Err), nil)

	default:
		c.logger.Debug().Str("job_id", e.job.ID).Str("type", msg.Type()).Msg("Ignoring unknown frame")
	}
}

// promote moves a scanning job to active. Caller holds mu.
func (c *Coordinator) promote(e *entry) bool {
	if e.job.Status != job.StatusScanning {
		return false
	}
	return e.job.Transition(job.StatusActive, c.now()) == nil
}

// progressEvent builds a progress notification. Caller holds mu.
func (c *Coordinator) progressEvent(e *entry) job.ProgressEvent {
	return job.ProgressEvent{
		JobID:    e.job.ID,
		Kind:     e.job.Kind,
		Status:   e.job.Status,
		Totals:   e.job.Totals,
		Progress: e.job.Progress,
	}
}

func (c *Coordinator) prompted(e *entry, p job.ConflictPrompt) {
	c.mu.Lock()
	if e.job.Status == job.StatusActive {
		_ = e.job.Transition(job.StatusPrompting, c.now())
	}
	e.prompt = &p
	c.mu.Unlock()

	c.listeners.Notify(e.job.ID, job.ConflictEvent{Prompt: p})
}

func (c *Coordinator) resumed(e *entry) {
	c.mu.Lock()
	e.prompt = nil
	if e.job.Status == job.StatusPrompting {
		_ = e.job.Transition(job.StatusActive, c.now())
	}
	ev := c.progressEvent(e)
	c.mu.Unlock()

	c.listeners.Notify(e.job.ID, ev)
}

func (c *Coordinator) respond(e *entry, resp wire.OverwriteResponse) {
	c.mu.Lock()
	ch := e.ch
	c.mu.Unlock()
	if ch == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := ch.Send(ctx, resp); err != nil {
		c.logger.Warn().Err(err).Str("job_id", e.job.ID).Str("prompt_id", resp.PromptID).Msg("Failed to send overwrite response")
	}
}

// ResolveConflict answers the outstanding prompt of a job. An empty jobID
// targets the current job. Decisions for prompts that are no longer
// outstanding are ignored.
func (c *Coordinator) ResolveConflict(jobID, promptID string, d job.Decision) error {
	if !d.Valid() {
		return WithErrorCode(fmt.Errorf("%w: unknown decision %q", ErrInvalidRequest, d), ErrorCodeInvalidRequest)
	}

	c.mu.Lock()
	e := c.lookupLocked(jobID)
	if e == nil {
		c.mu.Unlock()
		return WithErrorCode(fmt.Errorf("%w: %q", ErrUnknownJob, jobID), ErrorCodeInvalidRequest)
	}
	if p := e.prompt; p != nil && p.PromptID == promptID && !p.Offers(d) {
		c.mu.Unlock()
		return WithErrorCode(
			fmt.Errorf("%w: %w", ErrInvalidRequest, conflict.ErrDecisionNotOffered),
			ErrorCodeInvalidRequest,
		)
	}
	c.mu.Unlock()

	c.loop.Post(func() {
		c.mu.Lock()
		resolver, terminal := e.resolver, e.job.Status.Terminal()
		c.mu.Unlock()
		if resolver == nil || terminal {
			return
		}
		if err := resolver.Resolve(promptID, d); err != nil {
			c.logger.Warn().Err(err).Str("job_id", e.job.ID).Msg("Decision rejected")
			return
		}
		c.syncPrompt(e)
	})
	return nil
}

// syncPrompt mirrors the resolver's outstanding prompt into the entry so it
// can be read off the loop.
func (c *Coordinator) syncPrompt(e *entry) {
	p, ok := e.resolver.Pending()
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		e.prompt = &p
	} else {
		e.prompt = nil
	}
}

// Cancel requests cancellation of the job with the given handle or engine
// id. Cancelling a finished job, or cancelling twice, is a no-op.
func (c *Coordinator) Cancel(ref string) error {
	c.mu.Lock()
	e := c.lookupLocked(ref)
	c.mu.Unlock()
	if e == nil {
		return WithErrorCode(fmt.Errorf("%w: %q", ErrUnknownJob, ref), ErrorCodeInvalidRequest)
	}

	c.loop.Post(func() { c.cancelOnLoop(e) })
	return nil
}

// CancelCurrent cancels the most recently started job that has not finished.
// It reports whether there was such a job.
func (c *Coordinator) CancelCurrent() bool {
	c.mu.Lock()
	handle := c.current
	c.mu.Unlock()
	if handle == "" {
		return false
	}
	return c.Cancel(handle) == nil
}

// cancelOnLoop runs on the loop.
func (c *Coordinator) cancelOnLoop(e *entry) {
	c.mu.Lock()
	if e.job.Status.Terminal() || e.cancelRequested {
		c.mu.Unlock()
		return
	}
	e.cancelRequested = true
	jobID := e.job.ID
	timeout := c.cancelTimeout
	if jobID == "" {
		// Not acknowledged yet: settle now, Start cancels on the engine
		// once the ack arrives.
		s, _ := c.settleLocked(e, job.StatusCancelled, nil)
		c.mu.Unlock()
		c.afterSettle(e, s, nil)
		return
	}
	// An open prompt can no longer be answered once the job is cancelling.
	e.prompt = nil
	if e.resolver != nil {
		e.resolver.Abandon()
	}
	if e.job.Status == job.StatusPrompting {
		// A prompting job settles at once; the engine is told afterwards.
		s, _ := c.settleLocked(e, job.StatusCancelled, nil)
		c.mu.Unlock()
		c.logger.Info().Str("job_id", jobID).Msg("Cancelling job from prompt")
		c.afterSettle(e, s, nil)
		c.cancelOnEngine(jobID)
		return
	}
	c.mu.Unlock()

	c.logger.Info().Str("job_id", jobID).Msg("Cancelling job")
	c.cancelOnEngine(jobID)

	timer := time.AfterFunc(timeout, func() {
		c.loop.Post(func() {
			c.mu.Lock()
			pending := !e.job.Status.Terminal()
			c.mu.Unlock()
			if pending {
				c.logger.Warn().Str("job_id", jobID).Dur("timeout", timeout).Msg("No cancel confirmation from engine, settling locally")
				c.settle(e, job.StatusCancelled, nil, nil)
			}
		})
	})
	c.mu.Lock()
	e.cancelTimer = timer
	c.mu.Unlock()
}

func (c *Coordinator) cancelOnEngine(jobID string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), engineCallTimeout)
		defer cancel()
		if err := c.engine.CancelJob(ctx, jobID); err != nil {
			c.logger.Warn().Err(err).Str("job_id", jobID).Msg("Engine cancel request failed")
		}
	}()
}

// settled captures a terminal transition for the work done after mu is
// released.
type settled struct {
	status   job.Status
	cause    error
	ch       channel.Channel
	snapshot job.Job
}

// settle moves the job into a terminal state exactly once, closes its
// channel and notifies listeners. It runs on the loop.
func (c *Coordinator) settle(e *entry, status job.Status, cause error, result map[string]any) {
	c.mu.Lock()
	s, ok := c.settleLocked(e, status, cause)
	c.mu.Unlock()
	if ok {
		c.afterSettle(e, s, result)
	}
}

// settleLocked applies the terminal transition. Caller holds mu.
func (c *Coordinator) settleLocked(e *entry, status job.Status, cause error) (settled, bool) {
	if e.job.Status.Terminal() {
		return settled{}, false
	}
	now := c.now()
	if status == job.StatusError {
		_ = e.job.Fail(cause, now)
	} else if err := e.job.Transition(status, now); err != nil {
		// Completion straight from created cannot happen with a sane
		// engine; record it as an error rather than stalling the job.
		c.logger.Error().Err(err).Str("job_id", e.job.ID).Msg("Invalid terminal transition")
		status = job.StatusError
		cause = err
		_ = e.job.Fail(err, now)
	}
	if e.cancelTimer != nil {
		e.cancelTimer.Stop()
	}
	e.prompt = nil
	c.clearCurrent(e.job.Handle)
	return settled{status: status, cause: cause, ch: e.ch, snapshot: e.job.Snapshot()}, true
}

func (c *Coordinator) afterSettle(e *entry, s settled, result map[string]any) {
	if e.resolver != nil {
		e.resolver.Abandon()
	}
	if s.ch != nil {
		reason := channel.ReasonFinished
		if s.status == job.StatusCancelled {
			reason = channel.ReasonCancelled
		}
		_ = s.ch.Close(reason)
	}

	snapshot := s.snapshot
	logger := c.logger.With().Str("job_id", snapshot.ID).Str("kind", string(snapshot.Kind)).Logger()

	switch s.status {
	case job.StatusCompleted:
		logger.Info().Int64("bytes", snapshot.Progress.ProcessedBytes).Msg("Job completed")
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ev := c.finalize(e.req, snapshot, result)
			c.loop.Post(func() { c.notifyTerminal(e, snapshot.ID, ev) })
		}()
	case job.StatusCancelled:
		logger.Info().Msg("Job cancelled")
		c.notifyTerminal(e, snapshot.ID, job.CancelEvent{JobID: snapshot.ID, Kind: snapshot.Kind})
	case job.StatusError:
		logger.Error().Err(s.cause).Msg("Job failed")
		c.notifyTerminal(e, snapshot.ID, job.ErrorEvent{JobID: snapshot.ID, Kind: snapshot.Kind, Err: s.cause})
	}
}

// notifyTerminal delivers the terminal event. Jobs that had no engine id
// when they settled have no registry entry; their request listeners are
// called directly.
func (c *Coordinator) notifyTerminal(e *entry, jobID string, ev job.Event) {
	if jobID == "" {
		listener.Dispatch(e.job.Handle, e.req.Listeners, ev)
		return
	}
	c.listeners.Notify(jobID, ev)
}

// clearCurrent forgets handle as the current job. Caller holds mu.
func (c *Coordinator) clearCurrent(handle string) {
	if c.current == handle {
		c.current = ""
	}
}

// lookupLocked finds a job by handle or engine id; an empty ref means the
// current job. Caller holds mu.
func (c *Coordinator) lookupLocked(ref string) *entry {
	if ref == "" {
		ref = c.current
	}
	if e, ok := c.jobs[ref]; ok {
		return e
	}
	if handle, ok := c.byID[ref]; ok {
		return c.jobs[handle]
	}
	return nil
}

// Snapshot returns a copy of the job with the given handle or engine id.
func (c *Coordinator) Snapshot(ref string) (job.Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookupLocked(ref)
	if e == nil {
		return job.Job{}, false
	}
	return e.job.Snapshot(), true
}

// PendingPrompt returns the outstanding conflict prompt of a job.
func (c *Coordinator) PendingPrompt(ref string) (job.ConflictPrompt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.lookupLocked(ref)
	if e == nil || e.prompt == nil {
		return job.ConflictPrompt{}, false
	}
	return *e.prompt, true
}

// Current returns the handle of the current job, or "".
func (c *Coordinator) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Jobs returns snapshots of every tracked job.
func (c *Coordinator) Jobs() []job.Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]job.Job, 0, len(c.jobs))
	for _, e := range c.jobs {
		out = append(out, e.job.Snapshot())
	}
	slices.SortFunc(out, func(a, b job.Job) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// ChannelOpen reports whether the job's channel is still open.
func (c *Coordinator) ChannelOpen(ref string) bool {
	c.mu.Lock()
	e := c.lookupLocked(ref)
	c.mu.Unlock()
	if e == nil || e.job.ID == "" {
		return false
	}
	return c.opener.IsOpen(e.job.ID)
}

// Close stops accepting jobs, closes the channels of unfinished jobs and
// waits for background engine calls and finalizers.
func (c *Coordinator) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	var chans []channel.Channel
	for _, e := range c.jobs {
		if e.ch != nil && !e.job.Status.Terminal() {
			chans = append(chans, e.ch)
		}
		if e.cancelTimer != nil {
			e.cancelTimer.Stop()
		}
	}
	c.mu.Unlock()

	for _, ch := range chans {
		_ = ch.Close(channel.ReasonShutdown)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
