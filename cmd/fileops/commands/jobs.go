package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vulntor/fileops/cmd/fileops/internal/bind"
	"github.com/vulntor/fileops/pkg/listener"
)

func newCopyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "copy SOURCE... DESTINATION",
		Short:   "Copy files and folders into DESTINATION",
		GroupID: "jobs",
		Args:    minArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, dest, err := bind.SplitSourcesDestination(args)
			if err != nil {
				return err
			}
			return runJob(cmd, "copy", dest, func(ctx context.Context, s *session, l listener.Listeners) (string, error) {
				return s.StartCopy(ctx, sources, dest, l)
			})
		},
	}
	addConflictFlag(cmd)
	return cmd
}

func newMoveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "move SOURCE... DESTINATION",
		Short:   "Move files and folders into DESTINATION",
		Long:    "Copy the sources into DESTINATION and delete them once the copy completes.",
		GroupID: "jobs",
		Args:    minArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, dest, err := bind.SplitSourcesDestination(args)
			if err != nil {
				return err
			}
			return runJob(cmd, "move", dest, func(ctx context.Context, s *session, l listener.Listeners) (string, error) {
				return s.StartMove(ctx, sources, dest, l)
			})
		},
	}
	addConflictFlag(cmd)
	return cmd
}

func newCompressCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "compress SOURCE... ARCHIVE",
		Short:   "Pack sources into a new archive",
		GroupID: "jobs",
		Args:    minArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, archive, err := bind.SplitSourcesDestination(args)
			if err != nil {
				return err
			}
			opts, err := bind.BindCompressOptions(cmd)
			if err != nil {
				return err
			}
			return runJob(cmd, "compress", archive, func(ctx context.Context, s *session, l listener.Listeners) (string, error) {
				opts.Listeners = l
				return s.StartCompress(ctx, sources, archive, opts)
			})
		},
	}
	cmd.Flags().String("format", "", "Archive format (zip, 7z, tar, tar.gz, tar.bz2, tar.xz, tar.zst); inferred from ARCHIVE when empty")
	cmd.Flags().Int("level", 0, "Compression level 1-9 (0 = engine default)")
	addConflictFlag(cmd)
	return cmd
}

func newTestCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "test ARCHIVE",
		Short:   "Verify the integrity of an archive",
		GroupID: "jobs",
		Args:    exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, "archive-test", "", func(ctx context.Context, s *session, l listener.Listeners) (string, error) {
				return s.StartArchiveTest(ctx, args[0], l)
			})
		},
	}
}

func newDecompressCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decompress ARCHIVE... DESTINATION",
		Short: "Extract archives into DESTINATION, one after another",
		Long: `Extract every archive into DESTINATION in order. A failed or cancelled
archive stops the run; archives after it are not extracted.`,
		GroupID: "jobs",
		Args:    minArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			archives, dest, err := bind.SplitSourcesDestination(args)
			if err != nil {
				return err
			}
			cfg := configFrom(cmd)
			return runDecompress(cmd, archives, dest, bind.BindDecompressOptions(cmd, cfg.Queue))
		},
	}
	cmd.Flags().Bool("subfolder", false, "Extract each archive into a new folder named after it (default from queue.force_subfolder)")
	addConflictFlag(cmd)
	return cmd
}
