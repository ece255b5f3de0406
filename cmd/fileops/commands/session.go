package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vulntor/fileops/cmd/fileops/internal/format"
	"github.com/vulntor/fileops/pkg/appctx"
	"github.com/vulntor/fileops/pkg/config"
	"github.com/vulntor/fileops/pkg/job"
	"github.com/vulntor/fileops/pkg/listener"
	"github.com/vulntor/fileops/pkg/logging"
	"github.com/vulntor/fileops/pkg/ops"
	"github.com/vulntor/fileops/pkg/panel"
	"github.com/vulntor/fileops/pkg/queue"
	"github.com/vulntor/fileops/pkg/version"
)

const sessionCloseTimeout = 5 * time.Second

// session is one engine connection for the duration of a command.
type session struct {
	*ops.Session

	cfg    config.Config
	out    format.Formatter
	panels *panel.Registry
	logger zerolog.Logger

	events chan job.Event
	halts  chan queue.HaltEvent
	done   chan queue.DoneEvent

	stopWatch context.CancelFunc
}

func openSession(cmd *cobra.Command) (*session, error) {
	ctx := cmd.Context()
	manager := appctx.ConfigOrDefault(ctx)

	s := &session{
		cfg:       manager.Get(),
		out:       format.FromCommand(cmd),
		logger:    logging.Component("cli"),
		events:    make(chan job.Event, 64),
		halts:     make(chan queue.HaltEvent, 4),
		done:      make(chan queue.DoneEvent, 4),
		stopWatch: func() {},
	}
	s.panels = panel.NewRegistry(func(p panel.Panel) {
		s.logger.Debug().Str("panel", p.ID).Str("path", p.Path).Msg("Listing changed")
	})
	if wd, err := os.Getwd(); err == nil {
		s.panels.Show("cwd", wd)
	}

	sess, err := ops.Open(ctx, s.cfg, s.panels, ops.Options{
		OnQueueHalt: func(ev queue.HaltEvent) { s.halts <- ev },
		OnQueueDone: func(ev queue.DoneEvent) { s.done <- ev },
	})
	if err != nil {
		return nil, err
	}
	s.Session = sess

	if !version.SameMajor(sess.EngineVersion) {
		_ = s.out.PrintWarning(fmt.Sprintf("engine %s may not be compatible with fileops %s", sess.EngineVersion, version.Version))
	}

	s.watchConfig(ctx, manager)
	return s, nil
}

// watchConfig applies jobs.* changes of the config file to jobs started
// later in this session.
func (s *session) watchConfig(ctx context.Context, manager *config.Manager) {
	if manager.FilePath() == "" {
		return
	}
	w, err := config.NewWatcher(manager, s.logger, func(cfg config.Config) {
		s.ApplyJobsConfig(cfg.Jobs)
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("Config file will not be watched")
		return
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stopWatch = cancel
	go func() {
		if err := w.Start(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn().Err(err).Msg("Config watcher stopped")
		}
	}()
}

// showDestination tracks dest so its refresh is logged.
func (s *session) showDestination(dest string) {
	if dest != "" {
		s.panels.Show("destination", dest)
	}
}

// listeners forwards job events to the command goroutine. Progress is
// dropped when the command falls behind; nothing else is.
func (s *session) listeners() listener.Listeners {
	return listener.Listeners{
		OnProgress: func(e job.ProgressEvent) {
			select {
			case s.events <- e:
			default:
			}
		},
		OnConflict: func(e job.ConflictEvent) { s.events <- e },
		OnComplete: func(e job.CompleteEvent) { s.events <- e },
		OnError:    func(e job.ErrorEvent) { s.events <- e },
		OnCancel:   func(e job.CancelEvent) { s.events <- e },
	}
}

func (s *session) close() {
	s.stopWatch()
	ctx, cancel := context.WithTimeout(context.Background(), sessionCloseTimeout)
	defer cancel()
	if err := s.Close(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Session did not shut down cleanly")
	}
}
