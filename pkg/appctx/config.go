// Package appctx carries process-wide collaborators on a context so cobra
// commands can reach what the root command built.
package appctx

import (
	"context"

	"github.com/vulntor/fileops/pkg/config"
)

type key string

const configKey key = "fileops.config.manager"

// WithConfig stores the shared config manager on context.
func WithConfig(ctx context.Context, manager *config.Manager) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, configKey, manager)
}

// Config retrieves the shared config manager from context.
func Config(ctx context.Context) (*config.Manager, bool) {
	if ctx == nil {
		return nil, false
	}
	mgr, ok := ctx.Value(configKey).(*config.Manager)
	return mgr, ok && mgr != nil
}

// ConfigOrDefault returns the stored manager, or a manager holding the
// default configuration when none was stored.
func ConfigOrDefault(ctx context.Context) *config.Manager {
	if mgr, ok := Config(ctx); ok {
		return mgr
	}
	return config.NewManager()
}
