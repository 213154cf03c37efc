// Package cli implements sheetctl, a command line front end to the table
// engine. Commands work directly on CSV files or on a SQLite store written
// by the server.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wrkportal/sheetengine/internal/core"
	"github.com/wrkportal/sheetengine/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			msg := core.MapError(err)
			_ = printJSON(os.Stdout, map[string]string{
				"error":   err.Error(),
				"message": msg.Message,
				"code":    msg.Code,
			})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		output     string
		logLevel   string
		sampleSize int
	)

	rootCmd := &cobra.Command{
		Use:           "sheetctl",
		Short:         "Spreadsheet engine CLI",
		Long:          "Infer column types, evaluate formulas and render CSV tables with saved settings.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutputFormat(output); err != nil {
				return err
			}
			if sampleSize <= 0 {
				return fmt.Errorf("--sample-size must be positive, got %d", sampleSize)
			}
			logging.SetupWriter(cmd.ErrOrStderr(), logLevel, "text")
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&sampleSize, "sample-size", core.DefaultSampleSize, "Rows sampled per column for type inference")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newInferCmd())
	rootCmd.AddCommand(newEvalCmd())
	rootCmd.AddCommand(newFormatCmd())
	rootCmd.AddCommand(newRenderCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"commit":  commit,
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "sheetctl version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}
