// Package jobtest provides an in-memory job engine and job channels for
// tests of the coordinator, queue and facade packages.
package jobtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vulntor/fileops/pkg/channel"
	"github.com/vulntor/fileops/pkg/job"
	"github.com/vulntor/fileops/pkg/loop"
	"github.com/vulntor/fileops/pkg/wire"
)

// StartCall records one startJob request.
type StartCall struct {
	JobID  string
	Kind   job.Kind
	Params map[string]any
	At     time.Time
}

// Engine is a fake job engine. Exported fields configure its behavior and
// must be set before use.
type Engine struct {
	// Reject, when set, is consulted for every start; a non-nil result
	// rejects the job.
	Reject func(kind job.Kind, params map[string]any) error
	// DeleteErrs maps paths to the error DeletePath returns for them.
	DeleteErrs map[string]error
	// Gate, when set, blocks StartJob until it is closed.
	Gate chan struct{}
	// OnCancel runs after a cancel request is recorded.
	OnCancel func(jobID string)

	mu      sync.Mutex
	seq     int
	starts  []StartCall
	cancels []string
	deletes []string
}

// NewEngine returns a fake engine that accepts every job.
func NewEngine() *Engine {
	return &Engine{DeleteErrs: make(map[string]error)}
}

// StartJob records the request and returns the next job id.
func (e *Engine) StartJob(ctx context.Context, kind job.Kind, params map[string]any) (string, error) {
	if e.Gate != nil {
		select {
		case <-e.Gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.Reject != nil {
		if err := e.Reject(kind, params); err != nil {
			return "", err
		}
	}
	e.seq++
	id := fmt.Sprintf("job-%d", e.seq)
	e.starts = append(e.starts, StartCall{JobID: id, Kind: kind, Params: params, At: time.Now()})
	return id, nil
}

// CancelJob records the cancel request.
func (e *Engine) CancelJob(ctx context.Context, jobID string) error {
	e.mu.Lock()
	e.cancels = append(e.cancels, jobID)
	hook := e.OnCancel
	e.mu.Unlock()

	if hook != nil {
		hook(jobID)
	}
	return nil
}

// DeletePath records the delete request.
func (e *Engine) DeletePath(ctx context.Context, path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deletes = append(e.deletes, path)
	return e.DeleteErrs[path]
}

// Starts returns the recorded start requests in order.
func (e *Engine) Starts() []StartCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]StartCall(nil), e.starts...)
}

// Cancels returns the job ids cancel was requested for.
func (e *Engine) Cancels() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.cancels...)
}

// Deletes returns the paths delete was requested for, in order.
func (e *Engine) Deletes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.deletes...)
}

// Opener hands out fake channels and tracks which are open.
type Opener struct {
	loop *loop.Loop

	// DialErr, when set, fails every open.
	DialErr error

	mu       sync.Mutex
	channels map[string]*Channel
	opened   chan *Channel
}

// NewOpener creates an opener whose channels dispatch on lp.
func NewOpener(lp *loop.Loop) *Opener {
	return &Opener{
		loop:     lp,
		channels: make(map[string]*Channel),
		opened:   make(chan *Channel, 64),
	}
}

// Open returns the channel for jobID, creating it if needed.
func (o *Opener) Open(ctx context.Context, jobID string, kind job.Kind) (channel.Channel, error) {
	if o.DialErr != nil {
		return nil, o.DialErr
	}

	o.mu.Lock()
	if ch, ok := o.channels[jobID]; ok && !ch.Closed() {
		o.mu.Unlock()
		return ch, nil
	}
	ch := &Channel{jobID: jobID, kind: kind, loop: o.loop}
	o.channels[jobID] = ch
	o.mu.Unlock()

	o.opened <- ch
	return ch, nil
}

// IsOpen reports whether the channel for jobID exists and is not closed.
func (o *Opener) IsOpen(jobID string) bool {
	o.mu.Lock()
	ch, ok := o.channels[jobID]
	o.mu.Unlock()
	return ok && !ch.Closed()
}

// Channel returns the channel opened for jobID, or nil.
func (o *Opener) Channel(jobID string) *Channel {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.channels[jobID]
}

// Next waits for the next channel to be opened.
func (o *Opener) Next(timeout time.Duration) (*Channel, error) {
	select {
	case ch := <-o.opened:
		return ch, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("no channel opened within %s", timeout)
	}
}

// Channel is a fake job channel. Emit injects inbound frames; nothing is
// filtered, so tests can deliver frames after a terminal one.
type Channel struct {
	jobID string
	kind  job.Kind
	loop  *loop.Loop

	handler channel.Handler
	backlog []wire.Message

	mu     sync.Mutex
	sent   []wire.OverwriteResponse
	closes []channel.CloseReason
}

// JobID returns the job id.
func (c *Channel) JobID() string { return c.jobID }

// Send records resp.
func (c *Channel) Send(ctx context.Context, resp wire.OverwriteResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.closes) > 0 {
		return channel.ErrClosed
	}
	c.sent = append(c.sent, resp)
	return nil
}

// OnMessage sets the handler and replays frames emitted before it.
func (c *Channel) OnMessage(h channel.Handler) {
	c.loop.Post(func() {
		c.handler = h
		backlog := c.backlog
		c.backlog = nil
		for _, msg := range backlog {
			h(msg)
		}
	})
}

// Close records the close reason.
func (c *Channel) Close(reason channel.CloseReason) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes = append(c.closes, reason)
	return nil
}

// Emit delivers msg to the handler on the loop.
func (c *Channel) Emit(msg wire.Message) {
	c.loop.Post(func() {
		if c.handler == nil {
			c.backlog = append(c.backlog, msg)
			return
		}
		c.handler(msg)
	})
}

// Disconnect simulates the transport closing without a terminal frame.
func (c *Channel) Disconnect(err error) {
	c.Emit(wire.Disconnected{Err: err})
}

// Sent returns the responses sent on the channel.
func (c *Channel) Sent() []wire.OverwriteResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wire.OverwriteResponse(nil), c.sent...)
}

// Closes returns every Close call's reason.
func (c *Channel) Closes() []channel.CloseReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]channel.CloseReason(nil), c.closes...)
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.closes) > 0
}
