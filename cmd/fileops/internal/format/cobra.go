package format

import (
	"os"

	"github.com/spf13/cobra"
)

// FromCommand builds a Formatter from the command's writers and the global
// --output, --quiet and --no-color flags. Colors are also off when the
// NO_COLOR environment variable is set to any value.
func FromCommand(cmd *cobra.Command) Formatter {
	flags := cmd.Flags()

	mode := ModeTable
	if value, err := flags.GetString("output"); err == nil {
		mode = ParseMode(value)
	}
	quiet, _ := flags.GetBool("quiet")
	noColor, _ := flags.GetBool("no-color")
	if _, set := os.LookupEnv("NO_COLOR"); set {
		noColor = true
	}

	return New(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode, quiet, !noColor)
}
