package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wrkportal/sheetengine/internal/core"
)

// getOutputFormat returns the effective output format from the root command's persistent flags.
func getOutputFormat(cmd *cobra.Command) string {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v
}

func getSampleSize(cmd *cobra.Command) int {
	v, _ := cmd.Root().PersistentFlags().GetInt("sample-size")
	return v
}

func validateOutputFormat(output string) error {
	if output != "" && output != "table" && output != "json" {
		return fmt.Errorf("unsupported output format %q: use 'table' or 'json'", output)
	}
	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTable writes a header row and rows as aligned columns.
func printTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(escapeTabs(row), "\t"))
	}
	return tw.Flush()
}

func escapeTabs(row []string) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = strings.NewReplacer("\t", " ", "\n", " ").Replace(v)
	}
	return out
}

// readCSVFile loads a CSV file as a table source named after the file.
func readCSVFile(path string) (core.TableSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.TableSource{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return core.ReadCSVSource(name, name, f)
}
