package commands

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"github.com/vulntor/fileops/cmd/fileops/internal/format"
	"github.com/vulntor/fileops/pkg/ops"
	"github.com/vulntor/fileops/pkg/version"
)

func newVersionCommand() *cobra.Command {
	var short, clientOnly bool

	cmd := &cobra.Command{
		Use:     "version",
		Short:   "Print client and engine versions",
		GroupID: "core",
		Args:    exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := format.FromCommand(cmd)
			w := cmd.OutOrStdout()

			if short {
				_, err := fmt.Fprintln(w, version.Version)
				return err
			}

			info := version.Get()
			var engine *semver.Version
			if !clientOnly {
				v, err := ops.NewEngineClient(configFrom(cmd).Engine).Version(cmd.Context())
				if err != nil {
					return err
				}
				engine = v
			}

			if out.IsJSON() {
				data := map[string]any{"client": info}
				if engine != nil {
					data["engine"] = engine.String()
				}
				return out.PrintJSON(data)
			}

			rows := [][]string{{"client", info.Version, info.Commit, info.Platform}}
			if engine != nil {
				rows = append(rows, []string{"engine", engine.String(), "-", "-"})
			}
			if err := out.PrintTable([]string{"component", "version", "commit", "platform"}, rows); err != nil {
				return err
			}
			if engine != nil && !version.SameMajor(engine) {
				return out.PrintWarning("client and engine major versions differ")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print only the client version number")
	cmd.Flags().BoolVar(&clientOnly, "client", false, "Do not contact the engine")
	return cmd
}
