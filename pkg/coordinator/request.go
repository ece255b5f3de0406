package coordinator

import (
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vulntor/fileops/pkg/job"
	"github.com/vulntor/fileops/pkg/listener"
)

var validate = validator.New()

// Request describes one job to start.
type Request struct {
	Kind job.Kind `json:"kind"`
	// Sources are filesystem paths for transfers, archive paths for
	// decompress and archive-test, and entry paths inside the container
	// for container mutations.
	Sources []string `json:"sources,omitempty"`
	// Destination is the target directory, the archive to create, or the
	// container being mutated.
	Destination string         `json:"destination,omitempty"`
	Params      map[string]any `json:"params,omitempty"`

	// Affected overrides the locations refreshed on completion.
	Affected []string `json:"-"`
	// SuppressRefresh skips the completion refresh; queues refresh once
	// for the whole batch instead.
	SuppressRefresh bool `json:"-"`
	// Listeners are subscribed before the job channel opens, so they see
	// every event of the job.
	Listeners listener.Listeners `json:"-"`
}

// Validate checks the request shape for its kind.
func (r Request) Validate() error {
	if !r.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: "unknown job kind " + string(r.Kind)}
	}

	for _, src := range r.Sources {
		if err := validate.Var(strings.TrimSpace(src), "required"); err != nil {
			return &ValidationError{Field: "sources", Reason: "must not contain empty paths"}
		}
	}

	switch {
	case r.Kind == job.KindArchiveTest:
		if err := validate.Var(r.Sources, "len=1"); err != nil {
			return &ValidationError{Field: "sources", Reason: "exactly one archive is required"}
		}
	case r.Kind.ContainerMutation():
		if r.Kind == job.KindDeleteInContainer {
			if err := validate.Var(r.Sources, "min=1"); err != nil {
				return &ValidationError{Field: "sources", Reason: "at least one entry is required"}
			}
		}
		if err := validate.Var(strings.TrimSpace(r.Destination), "required"); err != nil {
			return &ValidationError{Field: "destination", Reason: "container path is required"}
		}
	default:
		if err := validate.Var(r.Sources, "min=1"); err != nil {
			return &ValidationError{Field: "sources", Reason: "at least one source is required"}
		}
		if err := validate.Var(strings.TrimSpace(r.Destination), "required"); err != nil {
			return &ValidationError{Field: "destination", Reason: "required"}
		}
	}
	return nil
}

// EngineParams returns the parameters sent with startJob.
func (r Request) EngineParams() map[string]any {
	params := make(map[string]any, len(r.Params)+2)
	for k, v := range r.Params {
		params[k] = v
	}
	if len(r.Sources) > 0 {
		params["sources"] = append([]string(nil), r.Sources...)
	}
	if r.Destination != "" {
		params["destination"] = r.Destination
	}
	return params
}

// AffectedLocations returns the locations whose listings change when the
// job completes.
func (r Request) AffectedLocations() []string {
	if len(r.Affected) > 0 {
		return r.Affected
	}

	switch r.Kind {
	case job.KindArchiveTest:
		return nil
	case job.KindMove:
		locs := []string{r.Destination}
		for _, src := range r.Sources {
			locs = appendUnique(locs, filepath.Dir(strings.TrimRight(src, "/")))
		}
		return locs
	case job.KindCompress:
		return []string{filepath.Dir(r.Destination)}
	default:
		if r.Destination == "" {
			return nil
		}
		return []string{r.Destination}
	}
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
