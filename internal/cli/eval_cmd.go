package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wrkportal/sheetengine/internal/cell"
	"github.com/wrkportal/sheetengine/internal/formula"
)

func newEvalCmd() *cobra.Command {
	var (
		expr   string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "eval --formula <formula> <csv>",
		Short: "Evaluate a formula against every row of a CSV file",
		Long: `Evaluate a formula against every row of a CSV file.

Rows whose value cannot be computed show ERROR. With --strict, a formula
that references columns missing from the file is rejected instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := formula.Compile(expr)
			if err != nil {
				return err
			}
			src, err := readCSVFile(args[0])
			if err != nil {
				return err
			}
			unresolved := prog.Unresolved(src.Columns)
			if strict && len(unresolved) > 0 {
				return fmt.Errorf("%w: %q", formula.ErrUnresolvedColumn, unresolved)
			}

			bound := prog.Bind(src.Columns)
			values := make([]any, len(src.Rows))
			for i, row := range src.Rows {
				values[i] = bound.Value(row)
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"normalized": prog.String(),
					"references": prog.References(),
					"unresolved": unresolved,
					"values":     values,
				})
			}
			rows := make([][]string, len(values))
			for i, v := range values {
				rows[i] = []string{strconv.Itoa(i + 1), cell.String(v)}
			}
			return printTable(cmd.OutOrStdout(), []string{"ROW", prog.String()}, rows)
		},
	}

	cmd.Flags().StringVarP(&expr, "formula", "f", "", "Formula to evaluate, e.g. SUM([Price], [Tax])")
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when the formula references unknown columns")
	_ = cmd.MarkFlagRequired("formula")
	return cmd
}
