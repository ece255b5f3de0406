package coordinator

import (
	"context"
	"errors"
	"fmt"

	"github.com/vulntor/fileops/pkg/job"
)

// finalize performs the post-completion work for a job and builds its
// completion event. It runs off the loop because it calls the engine.
func (c *Coordinator) finalize(req Request, snapshot job.Job, result map[string]any) job.CompleteEvent {
	ev := job.CompleteEvent{
		JobID:    snapshot.ID,
		Kind:     snapshot.Kind,
		Result:   result,
		Totals:   snapshot.Totals,
		Progress: snapshot.Progress,
	}

	logger := c.logger.With().Str("job_id", snapshot.ID).Str("kind", string(snapshot.Kind)).Logger()

	if snapshot.Kind == job.KindMove {
		if err := c.deleteSources(req.Sources); err != nil {
			ev.SideEffectErr = NewFinalizeError(snapshot.Kind, err)
			logger.Error().Err(err).Msg("Failed to remove moved sources")
		}
	}

	if c.panels != nil && !req.SuppressRefresh {
		if locs := req.AffectedLocations(); len(locs) > 0 {
			logger.Debug().Strs("locations", locs).Msg("Refreshing affected panels")
			c.panels.RefreshAffected(locs...)
		}
	}
	return ev
}

// deleteSources removes every source of a completed move, in order. A
// failure does not stop the remaining deletions.
func (c *Coordinator) deleteSources(sources []string) error {
	var errs []error
	for _, src := range sources {
		ctx, cancel := context.WithTimeout(context.Background(), engineCallTimeout)
		err := c.engine.DeletePath(ctx, src)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", src, err))
		}
	}
	return errors.Join(errs...)
}
