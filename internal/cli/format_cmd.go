package cli

import (
	"github.com/spf13/cobra"

	"github.com/wrkportal/sheetengine/internal/core"
)

func newFormatCmd() *cobra.Command {
	var dataType, format string

	cmd := &cobra.Command{
		Use:   "format --type <type> [--format <tag>] <value>",
		Short: "Format a single value the way a column of the given type displays it",
		Example: `  sheetctl format --type currency 1234.5
  sheetctl format --type date --format "MMM DD, YYYY" 2024-03-05`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dt, ok := core.ParseDataType(dataType)
			if !ok {
				return core.ErrValidation("unknown data type %q", dataType)
			}
			if !core.ValidFormat(dt, format) {
				return core.ErrValidation("unknown format %q for %s columns", format, dt)
			}
			formatted := core.FormatValue(args[0], dt, format)

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"value":     args[0],
					"dataType":  string(dt),
					"format":    format,
					"formatted": formatted,
				})
			}
			_, err := cmd.OutOrStdout().Write([]byte(formatted + "\n"))
			return err
		},
	}

	cmd.Flags().StringVarP(&dataType, "type", "t", "", "Data type (text, number, currency, date, boolean)")
	cmd.Flags().StringVar(&format, "format", "", "Format tag for the type, e.g. decimal2 or YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
