package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/vulntor/fileops/pkg/listener"
)

func newArchiveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "archive",
		Short:   "Edit entries inside an archive without extracting it",
		GroupID: "jobs",
	}

	cmd.AddCommand(newArchiveCreateCommand("mkfile", "Create an empty file inside ARCHIVE", false))
	cmd.AddCommand(newArchiveCreateCommand("mkdir", "Create a folder inside ARCHIVE", true))
	cmd.AddCommand(newArchiveRenameCommand())
	cmd.AddCommand(newArchiveRemoveCommand())
	return cmd
}

func newArchiveCreateCommand(name, short string, dir bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " ARCHIVE ENTRY",
		Short: short,
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, entry := args[0], args[1]
			return runJob(cmd, "archive "+name, container, func(ctx context.Context, s *session, l listener.Listeners) (string, error) {
				return s.CreateInContainer(ctx, container, entry, dir, l)
			})
		},
	}
}

func newArchiveRenameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename ARCHIVE ENTRY NEW_NAME",
		Short: "Rename an entry inside ARCHIVE",
		Args:  exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, entry, newName := args[0], args[1], args[2]
			return runJob(cmd, "archive rename", container, func(ctx context.Context, s *session, l listener.Listeners) (string, error) {
				return s.RenameInContainer(ctx, container, entry, newName, l)
			})
		},
	}
}

func newArchiveRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm ARCHIVE ENTRY...",
		Aliases: []string{"delete"},
		Short:   "Delete entries from ARCHIVE",
		Args:    minArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, entries := args[0], args[1:]
			return runJob(cmd, "archive rm", container, func(ctx context.Context, s *session, l listener.Listeners) (string, error) {
				return s.DeleteInContainer(ctx, container, entries, l)
			})
		},
	}
}
