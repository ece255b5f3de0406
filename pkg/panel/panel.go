// Package panel tracks the listings currently on screen and reloads the
// ones a finished job touched.
package panel

import (
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// Panel is one listing showing Path.
type Panel struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// RefreshFunc reloads a panel's listing.
type RefreshFunc func(Panel)

// Registry holds the open panels.
type Registry struct {
	mu      sync.RWMutex
	panels  map[string]Panel
	refresh RefreshFunc
}

// NewRegistry creates a registry that reloads panels with refresh.
func NewRegistry(refresh RefreshFunc) *Registry {
	return &Registry{
		panels:  make(map[string]Panel),
		refresh: refresh,
	}
}

// Show opens panel id at path, or moves it there if already open.
func (r *Registry) Show(id, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.panels[id] = Panel{ID: id, Path: filepath.Clean(path)}
}

// Hide closes panel id.
func (r *Registry) Hide(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.panels, id)
}

// Panels returns the open panels sorted by id.
func (r *Registry) Panels() []Panel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Panel, 0, len(r.panels))
	for _, p := range r.panels {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Panel) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Affected returns the panels whose path is one of locations or lies
// inside one of them.
func (r *Registry) Affected(locations ...string) []Panel {
	var out []Panel
	for _, p := range r.Panels() {
		for _, loc := range locations {
			if Within(p.Path, loc) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// RefreshAffected reloads every affected panel once.
func (r *Registry) RefreshAffected(locations ...string) {
	affected := r.Affected(locations...)
	for _, p := range affected {
		log.Debug().Str("component", "panel").Str("panel", p.ID).Str("path", p.Path).Msg("Refreshing panel")
		if r.refresh != nil {
			r.refresh(p)
		}
	}
}

// Within reports whether path equals location or is nested inside it.
func Within(path, location string) bool {
	if location == "" {
		return false
	}
	path = filepath.Clean(path)
	location = filepath.Clean(location)
	if path == location {
		return true
	}
	rel, err := filepath.Rel(location, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
