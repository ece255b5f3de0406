package ops

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/vulntor/fileops/pkg/channel"
	"github.com/vulntor/fileops/pkg/config"
	"github.com/vulntor/fileops/pkg/coordinator"
	"github.com/vulntor/fileops/pkg/engineclient"
	"github.com/vulntor/fileops/pkg/listener"
	"github.com/vulntor/fileops/pkg/loop"
)

// Session is a facade connected to a real engine.
type Session struct {
	*Facade
	Client        *engineclient.Client
	EngineVersion *semver.Version
}

// NewEngineClient builds the engine HTTP client described by cfg.
func NewEngineClient(cfg config.EngineConfig) *engineclient.Client {
	retry := engineclient.DefaultRetryConfig()
	retry.MaxAttempts = cfg.Retry.MaxAttempts
	retry.InitialWait = cfg.Retry.InitialWait
	retry.MaxWait = cfg.Retry.MaxWait

	return engineclient.New(cfg.URL,
		engineclient.WithTimeout(cfg.RequestTimeout),
		engineclient.WithRetryConfig(retry),
	)
}

// Open connects to the engine described by cfg, checks its version against
// engine.min_version and starts the event loop. Close the session's facade
// to stop everything again.
func Open(ctx context.Context, cfg config.Config, refresher coordinator.Refresher, opts Options) (*Session, error) {
	client := NewEngineClient(cfg.Engine)

	var version *semver.Version
	if cfg.Engine.MinVersion != "" {
		v, err := client.CheckCompatibility(ctx, cfg.Engine.MinVersion)
		if err != nil {
			return nil, err
		}
		version = v
	}

	lp := loop.New()
	if err := lp.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("start event loop: %w", err)
	}

	hub := channel.NewHub(channel.NewWebSocketDialer(cfg.Engine.EventsURL, cfg.Engine.RequestTimeout), lp)

	opts.Jobs = cfg.Jobs
	f := New(Deps{
		Engine:    client,
		Opener:    hub,
		Loop:      lp,
		Listeners: listener.New(),
		Refresher: refresher,
	}, opts)
	f.onClose = append(f.onClose,
		func(context.Context) error {
			hub.CloseAll(channel.ReasonShutdown)
			return nil
		},
		func(ctx context.Context) error {
			if _, ok := ctx.Deadline(); !ok {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, shutdownTimeout)
				defer cancel()
			}
			return lp.Stop(ctx)
		},
	)

	f.logger.Info().
		Str("engine", cfg.Engine.URL).
		Str("events", cfg.Engine.EventsURL).
		Msg("Connected to job engine")

	return &Session{Facade: f, Client: client, EngineVersion: version}, nil
}
