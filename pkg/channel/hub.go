package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/vulntor/fileops/pkg/job"
	"github.com/vulntor/fileops/pkg/loop"
)

// Hub owns the open job channels, at most one per job id.
type Hub struct {
	dialer Dialer
	loop   *loop.Loop

	mu     sync.Mutex
	open   map[string]*JobChannel
	flight singleflight.Group
}

// NewHub creates a hub that dials through dialer and dispatches on lp.
func NewHub(dialer Dialer, lp *loop.Loop) *Hub {
	return &Hub{
		dialer: dialer,
		loop:   lp,
		open:   make(map[string]*JobChannel),
	}
}

// Open returns the channel for jobID, dialing only if no channel is open.
// Concurrent opens for the same id share a single dial.
func (h *Hub) Open(ctx context.Context, jobID string, kind job.Kind) (Channel, error) {
	if jobID == "" {
		return nil, fmt.Errorf("open job channel: empty job id")
	}
	if ch := h.lookup(jobID); ch != nil {
		return ch, nil
	}

	v, err, shared := h.flight.Do(jobID, func() (any, error) {
		if ch := h.lookup(jobID); ch != nil {
			return ch, nil
		}

		conn, err := h.dialer.Dial(ctx, jobID, kind)
		if err != nil {
			return nil, fmt.Errorf("dial job channel %s: %w", jobID, err)
		}

		ch := newJobChannel(jobID, kind, conn, h.loop)
		h.mu.Lock()
		h.open[jobID] = ch
		h.mu.Unlock()
		ch.start(h.remove)

		log.Debug().
			Str("component", "channel.hub").
			Str("job_id", jobID).
			Str("kind", string(kind)).
			Msg("Job channel opened")
		return ch, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Str("component", "channel.hub").Str("job_id", jobID).Msg("Joined in-flight channel open")
	}
	return v.(*JobChannel), nil
}

// lookup returns the open channel for jobID, ignoring channels whose close
// has already been initiated.
func (h *Hub) lookup(jobID string) *JobChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.open[jobID]
	if !ok || ch.Closing() {
		return nil
	}
	return ch
}

// IsOpen reports whether a channel for jobID is open and not closing.
func (h *Hub) IsOpen(jobID string) bool {
	return h.lookup(jobID) != nil
}

// CloseAll closes every channel with reason.
func (h *Hub) CloseAll(reason CloseReason) {
	h.mu.Lock()
	chans := make([]*JobChannel, 0, len(h.open))
	for _, ch := range h.open {
		chans = append(chans, ch)
	}
	h.mu.Unlock()

	for _, ch := range chans {
		_ = ch.Close(reason)
	}
}

func (h *Hub) remove(ch *JobChannel) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.open[ch.jobID]; ok && cur == ch {
		delete(h.open, ch.jobID)
	}
}
