package cli

import (
	"github.com/spf13/cobra"

	"github.com/wrkportal/sheetengine/internal/core"
)

func newInferCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "infer <csv>",
		Short: "Infer the data type of every column in a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readCSVFile(args[0])
			if err != nil {
				return err
			}
			columns := core.InferColumns(src, getSampleSize(cmd))

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"rows":    len(src.Rows),
					"columns": columns,
				})
			}
			rows := make([][]string, len(columns))
			for i, c := range columns {
				rows[i] = []string{c.Name, string(c.DataType), c.Format}
			}
			return printTable(cmd.OutOrStdout(), []string{"COLUMN", "TYPE", "FORMAT"}, rows)
		},
	}
}
