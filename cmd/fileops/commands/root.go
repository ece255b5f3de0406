package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vulntor/fileops/cmd/fileops/internal/bind"
	"github.com/vulntor/fileops/cmd/fileops/internal/format"
	"github.com/vulntor/fileops/pkg/appctx"
	"github.com/vulntor/fileops/pkg/config"
	"github.com/vulntor/fileops/pkg/logging"
	"github.com/vulntor/fileops/pkg/ops"
	"github.com/vulntor/fileops/pkg/paths"
)

const cliExecutable = "fileops"

// exitInterrupted is the conventional exit status after SIGINT.
const exitInterrupted = 130

// NewCommand constructs the top-level fileops CLI command, wiring global
// flags, configuration and logging.
func NewCommand() *cobra.Command {
	var (
		configFile     string
		verbosityCount int
		logCloser      io.Closer
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "fileops runs copy, move and archive jobs on a file-operations engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if mode, _ := cmd.Flags().GetString("output"); mode != "" {
				if err := format.ValidateMode(mode); err != nil {
					return fmt.Errorf("%w: %w", bind.ErrUsage, err)
				}
			}

			path := configFile
			if path == "" {
				path = paths.DefaultConfigFile()
			}
			manager := config.NewManager()
			if err := manager.Load(cmd.Flags(), path); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			cfg := manager.Get()

			noColor, _ := cmd.Flags().GetBool("no-color")
			logging.SetLogWriter(cmd.ErrOrStderr())
			closer, err := logging.Configure(logging.Options{
				Level:   logLevel(cfg.Log.Level, verbosityCount),
				Format:  cfg.Log.Format,
				File:    cfg.Log.File,
				NoColor: noColor,
			})
			if err != nil {
				return fmt.Errorf("configure logging: %w", err)
			}
			logCloser = closer

			ctx := appctx.WithConfig(cmd.Context(), manager)
			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", bind.ErrUsage, err)
	})

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (default $XDG_CONFIG_HOME/fileops/config.yaml)")
	cmd.PersistentFlags().CountVarP(&verbosityCount, "verbosity", "v", "Increase logging verbosity (repeatable)")
	cmd.PersistentFlags().StringP("output", "o", string(format.ModeTable), "Output format (table, json)")
	cmd.PersistentFlags().BoolP("quiet", "q", false, "Print only job ids and errors")
	cmd.PersistentFlags().Bool("no-color", false, "Disable colored output")

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddGroup(&cobra.Group{ID: "jobs", Title: "Job Commands"})
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands"})

	cmd.AddCommand(newCopyCommand())
	cmd.AddCommand(newMoveCommand())
	cmd.AddCommand(newCompressCommand())
	cmd.AddCommand(newDecompressCommand())
	cmd.AddCommand(newTestCommand())
	cmd.AddCommand(newArchiveCommand())
	cmd.AddCommand(newConfigCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// logLevel raises the configured level by -v count.
func logLevel(configured string, verbosity int) string {
	switch {
	case verbosity >= 2:
		return "trace"
	case verbosity == 1:
		return "debug"
	default:
		return configured
	}
}

// Execute runs the CLI with os.Args and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, NewCommand())
}

func run(ctx context.Context, cmd *cobra.Command) int {
	c, err := cmd.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}
	if c == nil {
		c = cmd
	}

	var reported *reportedError
	if !errors.As(err, &reported) {
		out := format.FromCommand(c)
		_ = out.PrintTotalFailureSummary(c.Name(), err, errorCode(err), suggestions(c, err))
	}
	return exitCode(err)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, bind.ErrUsage):
		return "USAGE"
	case errors.Is(err, ErrCancelled):
		return "CANCELLED"
	}
	return ops.ErrorCode(err)
}

func suggestions(c *cobra.Command, err error) []string {
	switch {
	case errors.Is(err, bind.ErrUsage):
		return []string{fmt.Sprintf("Run help for usage:  %s --help", c.CommandPath())}
	case errors.Is(err, ErrCancelled):
		return nil
	}
	return ops.Suggestions(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrCancelled):
		return exitInterrupted
	case errors.Is(err, bind.ErrUsage):
		return 2
	}
	return ops.ExitCode(err)
}

// exactArgs and minArgs report argument count errors as usage errors.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%w: %s accepts %d arg(s), received %d", bind.ErrUsage, cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}

func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return fmt.Errorf("%w: %s requires at least %d arg(s), received %d", bind.ErrUsage, cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}

func addConflictFlag(cmd *cobra.Command) {
	cmd.Flags().String("on-conflict", bind.PolicyAsk, "How to answer name conflicts: ask, overwrite-this, skip-this, a batch policy such as skip-all, or cancel-operation")
}
