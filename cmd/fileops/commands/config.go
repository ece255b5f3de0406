package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vulntor/fileops/cmd/fileops/internal/format"
	"github.com/vulntor/fileops/pkg/appctx"
	"github.com/vulntor/fileops/pkg/config"
)

// configFrom returns the configuration loaded by the root command.
func configFrom(cmd *cobra.Command) config.Config {
	return appctx.ConfigOrDefault(cmd.Context()).Get()
}

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "config",
		Short:   "Print the effective configuration",
		Long:    "Print the configuration after defaults, the config file, FILEOPS_* environment variables and flags are merged.",
		GroupID: "core",
		Args:    exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := appctx.ConfigOrDefault(cmd.Context())
			cfg := manager.Get()

			out := format.FromCommand(cmd)
			if out.IsJSON() {
				return out.PrintJSON(map[string]any{
					"file":   manager.FilePath(),
					"config": cfg,
				})
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("encode configuration: %w", err)
			}
			w := cmd.OutOrStdout()
			if path := manager.FilePath(); path != "" {
				if _, err := fmt.Fprintf(w, "# loaded from %s\n", path); err != nil {
					return err
				}
			}
			_, err = w.Write(data)
			return err
		},
	}
}
