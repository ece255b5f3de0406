package ops

import (
	"context"
	"fmt"

	"github.com/vulntor/fileops/pkg/coordinator"
	"github.com/vulntor/fileops/pkg/job"
	"github.com/vulntor/fileops/pkg/listener"
	"github.com/vulntor/fileops/pkg/queue"
)

// CompressOptions configure StartCompress.
type CompressOptions struct {
	// Format is the archive format, for example "zip" or "tar.gz". Empty
	// lets the engine pick from the destination name.
	Format string
	// Level is the compression level; zero uses the engine default.
	Level     int
	Listeners listener.Listeners
}

// DecompressOptions configure StartDecompress.
type DecompressOptions struct {
	// ForceSubfolder extracts each archive into a new folder named after it.
	ForceSubfolder bool
	// Listeners are attached to every archive's job.
	Listeners listener.Listeners
}

// StartCopy copies sources into destination and returns the job handle.
func (f *Facade) StartCopy(ctx context.Context, sources []string, destination string, l listener.Listeners) (string, error) {
	return f.start(ctx, coordinator.Request{
		Kind:        job.KindCopy,
		Sources:     sources,
		Destination: destination,
		Listeners:   l,
	})
}

// StartMove copies sources into destination and deletes the sources once
// the copy completes.
func (f *Facade) StartMove(ctx context.Context, sources []string, destination string, l listener.Listeners) (string, error) {
	return f.start(ctx, coordinator.Request{
		Kind:        job.KindMove,
		Sources:     sources,
		Destination: destination,
		Listeners:   l,
	})
}

// StartCompress packs sources into the archive at destination.
func (f *Facade) StartCompress(ctx context.Context, sources []string, destination string, opts CompressOptions) (string, error) {
	params := map[string]any{}
	if opts.Format != "" {
		params["format"] = opts.Format
	}
	if opts.Level != 0 {
		params["level"] = opts.Level
	}
	return f.start(ctx, coordinator.Request{
		Kind:        job.KindCompress,
		Sources:     sources,
		Destination: destination,
		Params:      params,
		Listeners:   opts.Listeners,
	})
}

// StartDecompress extracts every archive in sources into destination, one
// archive at a time, and returns the queue run id. It returns once the
// first archive's job is running; the rest follow as each one completes.
// A failed or cancelled archive halts the run until ResumeDecompress.
func (f *Facade) StartDecompress(ctx context.Context, sources []string, destination string, opts DecompressOptions) (string, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return "", coordinator.ErrClosed
	}

	items := make([]coordinator.Request, 0, len(sources))
	for _, src := range sources {
		req := coordinator.Request{
			Kind:        job.KindDecompress,
			Sources:     []string{src},
			Destination: destination,
			Listeners:   opts.Listeners,
		}
		if err := req.Validate(); err != nil {
			return "", coordinator.WithErrorCode(fmt.Errorf("%w: %w", coordinator.ErrInvalidRequest, err), coordinator.ErrorCodeInvalidRequest)
		}
		items = append(items, req)
	}
	if len(items) == 0 {
		return "", coordinator.WithErrorCode(
			fmt.Errorf("%w: %w", coordinator.ErrInvalidRequest, &coordinator.ValidationError{Field: "sources", Reason: "at least one archive is required"}),
			coordinator.ErrorCodeInvalidRequest,
		)
	}

	runID, err := f.extract.EnqueueAll(items, job.BatchOptions{
		ForceSubfolder: opts.ForceSubfolder,
		MultiItem:      len(items) > 1,
	})
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	f.current = f.coordinator(GroupDecompress)
	f.mu.Unlock()

	if err := f.extract.RunNext(ctx); err != nil {
		return runID, err
	}
	return runID, nil
}

// ResumeDecompress continues a halted extraction run with the archive after
// the one that stopped it.
func (f *Facade) ResumeDecompress(ctx context.Context) error {
	return f.extract.RunNext(ctx)
}

// DecompressState reports the state of the extraction queue.
func (f *Facade) DecompressState() queue.State {
	return f.extract.State()
}

// StartArchiveTest verifies the integrity of the archive at source.
func (f *Facade) StartArchiveTest(ctx context.Context, source string, l listener.Listeners) (string, error) {
	return f.start(ctx, coordinator.Request{
		Kind:      job.KindArchiveTest,
		Sources:   []string{source},
		Listeners: l,
	})
}

// CreateInContainer creates an empty file, or a folder when dir is set, at
// entry inside the container file.
func (f *Facade) CreateInContainer(ctx context.Context, container, entry string, dir bool, l listener.Listeners) (string, error) {
	return f.start(ctx, coordinator.Request{
		Kind:        job.KindCreateInContainer,
		Sources:     []string{entry},
		Destination: container,
		Params:      map[string]any{"isDirectory": dir},
		Listeners:   l,
	})
}

// RenameInContainer renames entry inside the container file to newName.
func (f *Facade) RenameInContainer(ctx context.Context, container, entry, newName string, l listener.Listeners) (string, error) {
	if newName == "" {
		return "", coordinator.WithErrorCode(
			fmt.Errorf("%w: %w", coordinator.ErrInvalidRequest, &coordinator.ValidationError{Field: "newName", Reason: "required"}),
			coordinator.ErrorCodeInvalidRequest,
		)
	}
	return f.start(ctx, coordinator.Request{
		Kind:        job.KindRenameInContainer,
		Sources:     []string{entry},
		Destination: container,
		Params:      map[string]any{"newName": newName},
		Listeners:   l,
	})
}

// DeleteInContainer removes entries from the container file.
func (f *Facade) DeleteInContainer(ctx context.Context, container string, entries []string, l listener.Listeners) (string, error) {
	return f.start(ctx, coordinator.Request{
		Kind:        job.KindDeleteInContainer,
		Sources:     entries,
		Destination: container,
		Listeners:   l,
	})
}
