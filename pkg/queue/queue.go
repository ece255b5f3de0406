// Package queue runs a batch of same-kind jobs strictly one after another,
// carrying batch-wide options across every member.
package queue

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/fileops/pkg/coordinator"
	"github.com/vulntor/fileops/pkg/job"
	"github.com/vulntor/fileops/pkg/listener"
)

// errMemberCancelled is the halt cause for a cancelled member.
var errMemberCancelled = errors.New("cancelled")

// errChannelOpen marks a busy refusal caused only by the previous member's
// channel not having closed yet.
var errChannelOpen = errors.New("previous member channel still open")

const (
	defaultAdvanceTimeout = 5 * time.Second
	advancePollInterval   = 20 * time.Millisecond
)

// State of a queue run.
type State string

const (
	StateIdle    State = "idle"
	StateReady   State = "ready"
	StateRunning State = "running"
	StateHalted  State = "halted"
)

// Runner starts jobs and reports on them. *coordinator.Coordinator
// implements it.
type Runner interface {
	Start(ctx context.Context, req coordinator.Request) (string, error)
	ChannelOpen(ref string) bool
}

// HaltEvent describes why a run stopped advancing.
type HaltEvent struct {
	RunID     string
	Index     int
	Request   coordinator.Request
	Err       error
	Cancelled bool
}

// DoneEvent reports a run whose last member completed.
type DoneEvent struct {
	RunID    string
	Count    int
	Affected []string
}

type member struct {
	req     coordinator.Request
	handle  string
	started bool
	settled bool
}

// Queue sequences the members of one run. Member k+1 is started only after
// member k delivered its terminal event and its channel closed.
type Queue struct {
	runner Runner
	panels coordinator.Refresher

	onHalt func(HaltEvent)
	onDone func(DoneEvent)

	ctx    context.Context
	cancel context.CancelFunc

	// advanceTimeout bounds how long an automatic advance waits for the
	// previous member's channel to close before halting the run.
	advanceTimeout time.Duration

	mu       sync.Mutex
	runID    string
	opts     job.BatchOptions
	members  []*member
	next     int
	state    State
	affected []string
	lastErr  error

	logger zerolog.Logger
}

// New creates an idle queue that starts members through runner.
func New(runner Runner) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		runner:         runner,
		ctx:            ctx,
		cancel:         cancel,
		advanceTimeout: defaultAdvanceTimeout,
		state:          StateIdle,
		logger: log.With().Str("component", "queue").Logger(),
	}
}

// WithRefresher sets where the combined refresh goes once a run finishes.
func (q *Queue) WithRefresher(r coordinator.Refresher) *Queue {
	q.panels = r
	return q
}

// WithOnHalt registers a callback for halted runs.
func (q *Queue) WithOnHalt(fn func(HaltEvent)) *Queue {
	q.onHalt = fn
	return q
}

// WithOnDone registers a callback for finished runs.
func (q *Queue) WithOnDone(fn func(DoneEvent)) *Queue {
	q.onDone = fn
	return q
}

// EnqueueAll replaces the queue contents with items, applying opts to every
// member, and returns the new run id. It refuses while a run is in
// progress; a halted run is discarded.
func (q *Queue) EnqueueAll(items []coordinator.Request, opts job.BatchOptions) (string, error) {
	if len(items) == 0 {
		return "", ErrEmpty
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.state == StateRunning {
		return "", newBusyError("a run is in progress")
	}
	if q.state == StateHalted {
		q.logger.Info().Str("run_id", q.runID).Int("dropped", len(q.members)-q.next).Msg("Discarding halted run")
	}

	q.runID = uuid.NewString()
	q.opts = opts
	q.members = make([]*member, 0, len(items))
	for i, item := range items {
		q.members = append(q.members, &member{req: q.prepare(i, item)})
	}
	q.next = 0
	q.affected = nil
	q.lastErr = nil
	q.state = StateReady

	q.logger.Info().
		Str("run_id", q.runID).
		Int("items", len(items)).
		Bool("force_subfolder", opts.ForceSubfolder).
		Bool("multi_item", opts.MultiItem).
		Msg("Queue run enqueued")
	return q.runID, nil
}

// prepare applies the batch options and wraps the member's listeners so
// the queue learns about its outcome. Caller holds mu.
func (q *Queue) prepare(index int, req coordinator.Request) coordinator.Request {
	params := make(map[string]any, len(req.Params)+2)
	for k, v := range req.Params {
		params[k] = v
	}

	if q.opts.ForceSubfolder && len(req.Sources) > 0 {
		// The new subfolder shows up in the original destination.
		if len(req.Affected) == 0 {
			req.Affected = []string{req.Destination}
		}
		req.Destination = filepath.Join(req.Destination, ArchiveStem(req.Sources[0]))
		params["subfolder"] = true
	}
	if q.opts.MultiItem {
		params["multiItem"] = true
	}
	req.Params = params
	req.SuppressRefresh = true

	runID := q.runID
	inner := req.Listeners
	req.Listeners = listener.Listeners{
		OnProgress: inner.OnProgress,
		OnConflict: inner.OnConflict,
		OnComplete: func(e job.CompleteEvent) {
			if inner.OnComplete != nil {
				inner.OnComplete(e)
			}
			q.memberDone(runID, index, nil, false)
		},
		OnError: func(e job.ErrorEvent) {
			if inner.OnError != nil {
				inner.OnError(e)
			}
			q.memberDone(runID, index, e.Err, false)
		},
		OnCancel: func(e job.CancelEvent) {
			if inner.OnCancel != nil {
				inner.OnCancel(e)
			}
			q.memberDone(runID, index, errMemberCancelled, true)
		},
	}
	return req
}

// RunNext starts the next member. It refuses while the previous member has
// not finished or its channel is still open. Calling it on a halted run
// resumes with the member after the one that failed.
func (q *Queue) RunNext(ctx context.Context) error {
	q.mu.Lock()
	if err := q.checkPreviousLocked(); err != nil {
		q.mu.Unlock()
		return err
	}
	if q.next >= len(q.members) {
		q.finishLocked()
		q.mu.Unlock()
		return ErrEmpty
	}

	index := q.next
	m := q.members[index]
	q.next++
	m.started = true
	q.state = StateRunning
	runID := q.runID
	total := len(q.members)
	q.mu.Unlock()

	logger := q.logger.With().Str("run_id", runID).Int("item", index+1).Int("of", total).Logger()
	logger.Info().Strs("sources", m.req.Sources).Str("destination", m.req.Destination).Msg("Starting queue member")

	handle, err := q.runner.Start(ctx, m.req)

	q.mu.Lock()
	m.handle = handle
	if err == nil || q.runID != runID || m.settled {
		q.mu.Unlock()
		return err
	}
	m.settled = true
	ev := q.haltLocked(index, err, false)
	q.mu.Unlock()

	if q.onHalt != nil {
		q.onHalt(ev)
	}
	return ev.Err
}

// checkPreviousLocked enforces strict sequencing. Caller holds mu.
func (q *Queue) checkPreviousLocked() error {
	if len(q.members) == 0 {
		return ErrEmpty
	}
	if q.next == 0 {
		return nil
	}
	prev := q.members[q.next-1]
	if !prev.settled {
		return newBusyError("previous member still running")
	}
	if prev.handle != "" && q.runner.ChannelOpen(prev.handle) {
		return WithErrorCode(fmt.Errorf("%w: %w", ErrBusy, errChannelOpen), ErrorCodeBusy)
	}
	return nil
}

func (q *Queue) memberDone(runID string, index int, cause error, cancelled bool) {
	q.mu.Lock()
	if runID != q.runID || index >= len(q.members) {
		q.mu.Unlock()
		return
	}
	m := q.members[index]
	if m.settled {
		q.mu.Unlock()
		return
	}
	m.settled = true

	if cause != nil {
		ev := q.haltLocked(index, cause, cancelled)
		q.mu.Unlock()
		if q.onHalt != nil {
			q.onHalt(ev)
		}
		return
	}

	for _, loc := range m.req.AffectedLocations() {
		q.affected = appendUnique(q.affected, loc)
	}

	if index == len(q.members)-1 {
		done := q.finishLocked()
		q.mu.Unlock()
		if done != nil && q.onDone != nil {
			q.onDone(*done)
		}
		return
	}
	q.mu.Unlock()

	// Listeners run on the event loop, which Start must not block.
	go q.advance(runID, index)
}

// advance starts the member after index. While the finished member's
// channel is still open it retries until advanceTimeout, then halts the run
// at that member.
func (q *Queue) advance(runID string, index int) {
	ticker := time.NewTicker(advancePollInterval)
	defer ticker.Stop()
	deadline := time.Now().Add(q.advanceTimeout)

	for {
		err := q.RunNext(q.ctx)
		switch {
		case err == nil, errors.Is(err, ErrEmpty):
			return
		case !errors.Is(err, errChannelOpen):
			q.logger.Warn().Err(err).Str("run_id", runID).Msg("Queue did not advance")
			return
		case time.Now().After(deadline):
			q.haltStalled(runID, index, err)
			return
		}

		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// haltStalled halts a run whose member at index finished but never released
// its channel. Runs that moved on in the meantime are left alone.
func (q *Queue) haltStalled(runID string, index int, cause error) {
	q.mu.Lock()
	if runID != q.runID || q.state != StateRunning || q.next != index+1 {
		q.mu.Unlock()
		return
	}
	ev := q.haltLocked(index, cause, false)
	q.mu.Unlock()

	if q.onHalt != nil {
		q.onHalt(ev)
	}
}

// haltLocked stops the run. Caller holds mu.
func (q *Queue) haltLocked(index int, cause error, cancelled bool) HaltEvent {
	m := q.members[index]
	source := ""
	if len(m.req.Sources) > 0 {
		source = m.req.Sources[0]
	}
	q.state = StateHalted
	q.lastErr = NewHaltedError(index, source, cause)

	q.logger.Warn().
		Err(cause).
		Str("run_id", q.runID).
		Int("item", index+1).
		Bool("cancelled", cancelled).
		Int("remaining", len(q.members)-q.next).
		Msg("Queue halted")

	return HaltEvent{RunID: q.runID, Index: index, Request: m.req, Err: q.lastErr, Cancelled: cancelled}
}

// finishLocked performs the combined refresh and clears the run. Caller
// holds mu.
func (q *Queue) finishLocked() *DoneEvent {
	if q.state == StateIdle {
		return nil
	}
	done := &DoneEvent{RunID: q.runID, Count: len(q.members), Affected: q.affected}
	if q.panels != nil && len(q.affected) > 0 {
		q.panels.RefreshAffected(q.affected...)
	}
	q.logger.Info().Str("run_id", q.runID).Int("items", done.Count).Msg("Queue run finished")

	q.members = nil
	q.next = 0
	q.affected = nil
	q.state = StateIdle
	return done
}

// State returns the run state.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Remaining returns the number of members not started yet.
func (q *Queue) Remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.members) - q.next
}

// Err returns the error that halted the run, if any.
func (q *Queue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastErr
}

// Close stops automatic advancing.
func (q *Queue) Close() {
	q.cancel()
}

// ArchiveStem returns the archive name without its archive extension, used
// as the per-archive subfolder name.
func ArchiveStem(path string) string {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	for _, ext := range []string{".tar.gz", ".tar.bz2", ".tar.xz", ".tar.zst"} {
		if strings.HasSuffix(lower, ext) {
			return base[:len(base)-len(ext)]
		}
	}
	if ext := filepath.Ext(base); ext != "" && ext != base {
		return strings.TrimSuffix(base, ext)
	}
	return base
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
