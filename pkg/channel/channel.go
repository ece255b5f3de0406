// Package channel implements the per-job streaming connection to the job
// engine. A JobChannel decodes inbound frames, dispatches them in arrival
// order on the event loop, and guarantees a single close frame.
package channel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/vulntor/fileops/pkg/job"
	"github.com/vulntor/fileops/pkg/loop"
	"github.com/vulntor/fileops/pkg/wire"
)

// Close codes follow RFC 6455 so they map directly onto websocket frames.
const (
	CloseNormal        = 1000
	CloseGoingAway     = 1001
	CloseInternalError = 1011
)

// ErrClosed is returned by Send once a close has been initiated.
var ErrClosed = errors.New("job channel closed")

// CloseReason is sent with the close frame.
type CloseReason struct {
	Code int
	Text string
}

// Normal reports whether the reason is a regular closure.
func (r CloseReason) Normal() bool { return r.Code == CloseNormal }

var (
	ReasonFinished  = CloseReason{Code: CloseNormal, Text: "job finished"}
	ReasonCancelled = CloseReason{Code: CloseNormal, Text: "job cancelled"}
	ReasonShutdown  = CloseReason{Code: CloseGoingAway, Text: "client shutting down"}
)

// Conn is one streaming transport connection.
type Conn interface {
	ReadMessage(ctx context.Context) ([]byte, error)
	WriteMessage(ctx context.Context, data []byte) error
	Close(code int, reason string) error
}

// Dialer opens a transport connection for a job.
type Dialer interface {
	Dial(ctx context.Context, jobID string, kind job.Kind) (Conn, error)
}

// Handler receives decoded messages on the event loop.
type Handler func(wire.Message)

// Channel is the contract coordinators depend on.
type Channel interface {
	JobID() string
	Send(ctx context.Context, resp wire.OverwriteResponse) error
	OnMessage(h Handler)
	Close(reason CloseReason) error
}

// JobChannel wraps one Conn bound to one job id.
type JobChannel struct {
	jobID string
	kind  job.Kind
	conn  Conn
	loop  *loop.Loop

	// handler, backlog and terminalSeen are only touched on the loop.
	handler      Handler
	backlog      []wire.Message
	terminalSeen bool

	mu       sync.Mutex
	closing  bool
	reason   CloseReason
	outbound chan []byte
	quit     chan struct{}
	done     chan struct{}

	logger zerolog.Logger
}

func newJobChannel(jobID string, kind job.Kind, conn Conn, lp *loop.Loop) *JobChannel {
	return &JobChannel{
		jobID:    jobID,
		kind:     kind,
		conn:     conn,
		loop:     lp,
		outbound: make(chan []byte, 16),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		logger: log.With().
			Str("component", "channel").
			Str("job_id", jobID).
			Str("kind", string(kind)).
			Logger(),
	}
}

// JobID returns the job this channel is bound to.
func (c *JobChannel) JobID() string { return c.jobID }

// Done is closed once both pumps have exited.
func (c *JobChannel) Done() <-chan struct{} { return c.done }

// OnMessage sets the dispatch callback, replacing any previous one.
// Messages that arrived before a handler was attached are replayed.
func (c *JobChannel) OnMessage(h Handler) {
	c.loop.Post(func() {
		c.handler = h
		backlog := c.backlog
		c.backlog = nil
		for _, msg := range backlog {
			c.deliver(msg)
		}
	})
}

// Send queues an outbound frame.
func (c *JobChannel) Send(ctx context.Context, resp wire.OverwriteResponse) error {
	data, err := wire.Encode(resp)
	if err != nil {
		return fmt.Errorf("encode %s: %w", resp.Type, err)
	}

	c.mu.Lock()
	closing := c.closing
	c.mu.Unlock()
	if closing {
		return ErrClosed
	}

	select {
	case c.outbound <- data:
		return nil
	case <-c.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close initiates closure. Only the first call sends a close frame; later
// calls are no-ops.
func (c *JobChannel) Close(reason CloseReason) error {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.reason = reason
	c.mu.Unlock()

	close(c.quit)
	c.logger.Debug().Int("code", reason.Code).Str("reason", reason.Text).Msg("Closing job channel")
	return nil
}

// Closing reports whether a close has been initiated.
func (c *JobChannel) Closing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closing
}

func (c *JobChannel) start(onExit func(*JobChannel)) {
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return c.readPump(ctx) })
	g.Go(func() error { return c.writePump(ctx) })

	go func() {
		err := g.Wait()
		if err != nil {
			c.logger.Debug().Err(err).Msg("Job channel pumps exited")
		}
		if onExit != nil {
			onExit(c)
		}
		close(c.done)
	}()
}

func (c *JobChannel) readPump(ctx context.Context) error {
	for {
		data, err := c.conn.ReadMessage(ctx)
		if err != nil {
			c.mu.Lock()
			initiated, reason := c.closing, c.reason
			c.mu.Unlock()
			c.loop.Post(func() { c.handleDisconnect(err, initiated, reason) })
			// Unblock the write pump if the peer went away first.
			_ = c.Close(CloseReason{Code: CloseGoingAway, Text: "peer closed"})
			return nil
		}

		msg, derr := wire.Decode(data)
		if derr != nil {
			c.logger.Warn().Err(derr).Msg("Dropping undecodable frame")
			continue
		}
		c.loop.Post(func() { c.deliver(msg) })
	}
}

func (c *JobChannel) writePump(ctx context.Context) error {
	for {
		select {
		case data := <-c.outbound:
			if err := c.conn.WriteMessage(ctx, data); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to write frame")
			}
		case <-c.quit:
			c.mu.Lock()
			reason := c.reason
			c.mu.Unlock()
			c.drainOutbound(ctx)
			if err := c.conn.Close(reason.Code, reason.Text); err != nil {
				c.logger.Debug().Err(err).Msg("Transport close returned error")
			}
			return nil
		}
	}
}

func (c *JobChannel) drainOutbound(ctx context.Context) {
	for {
		select {
		case data := <-c.outbound:
			if err := c.conn.WriteMessage(ctx, data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// deliver runs on the loop.
func (c *JobChannel) deliver(msg wire.Message) {
	if c.terminalSeen {
		c.logger.Debug().Str("type", msg.Type()).Msg("Dropping frame after terminal message")
		return
	}
	if msg.Terminal() {
		c.terminalSeen = true
	}
	if c.handler == nil {
		c.backlog = append(c.backlog, msg)
		return
	}
	c.handler(msg)
}

// handleDisconnect runs on the loop, after every frame read before the
// transport error has been delivered. A close we initiated normally, or any
// close after a terminal message, is silent.
func (c *JobChannel) handleDisconnect(err error, initiated bool, reason CloseReason) {
	if c.terminalSeen || (initiated && reason.Normal()) {
		return
	}
	if initiated {
		err = fmt.Errorf("closed locally (%d %s): %w", reason.Code, reason.Text, err)
	}
	c.logger.Warn().Err(err).Msg("Job channel closed before a terminal message")
	c.deliver(wire.Disconnected{Err: err})
}
