package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wrkportal/sheetengine/internal/core"
	"github.com/wrkportal/sheetengine/internal/store"
)

type renderOptions struct {
	settingsPath string
	savePath     string
	calcs        []string
	dbPath       string
	tableID      string
}

func newRenderCmd() *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render [<csv>]",
		Short: "Render a table with its saved settings and calculated fields",
		Long: `Render a table with every cell formatted by its column type.

The table comes either from a CSV file, optionally with a settings file
(YAML, or JSON as stored by the server), or from a SQLite store written by
the server (--db with --table). Extra calculated fields can be added with
--calc name=formula, evaluated in the order given.`,
		Example: `  sheetctl render sales.csv --settings sales.yaml
  sheetctl render sales.csv --calc "Total=MULTIPLY([Price], [Qty])" --save-settings sales.yaml
  sheetctl render --db sheetengine.db --table sales -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opened, err := opts.open(ctx, args, getSampleSize(cmd))
			if err != nil {
				return err
			}

			m := &core.Materializer{ParallelThreshold: core.DefaultParallelRowThreshold}
			for _, spec := range opts.calcs {
				name, expr, err := parseCalc(spec)
				if err != nil {
					return err
				}
				if opened.Data, err = m.Materialize(ctx, opened.Data, name, expr); err != nil {
					return fmt.Errorf("calculated field %q: %w", name, err)
				}
			}

			if opts.savePath != "" {
				if err := saveSettings(opts.savePath, core.Snapshot(opened.Data, opened.Settings.ColumnWidths)); err != nil {
					return err
				}
			}

			for _, issue := range opened.Issues {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s: %s\n", issue.Kind, issue.Message)
			}

			rendered := core.Render(opened)
			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), rendered)
			}
			headers := make([]string, len(rendered.Columns))
			for i, c := range rendered.Columns {
				headers[i] = c.Name
			}
			return printTable(cmd.OutOrStdout(), headers, rendered.Rows)
		},
	}

	cmd.Flags().StringVarP(&opts.settingsPath, "settings", "s", "", "Settings file to replay (YAML or JSON)")
	cmd.Flags().StringVar(&opts.savePath, "save-settings", "", "Write the resulting settings to this YAML file")
	cmd.Flags().StringArrayVar(&opts.calcs, "calc", nil, "Calculated field as name=formula (repeatable)")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite database written by the server")
	cmd.Flags().StringVar(&opts.tableID, "table", "", "Table id to render from --db")
	return cmd
}

// open loads the table from the CSV argument or from the SQLite store.
func (o renderOptions) open(ctx context.Context, args []string, sampleSize int) (core.OpenedTable, error) {
	if o.dbPath != "" {
		if len(args) > 0 {
			return core.OpenedTable{}, fmt.Errorf("a csv file cannot be combined with --db")
		}
		if o.tableID == "" {
			return core.OpenedTable{}, fmt.Errorf("--table is required with --db")
		}
		if o.settingsPath != "" {
			return core.OpenedTable{}, fmt.Errorf("--settings cannot be combined with --db; the store holds the settings")
		}
		st, err := store.OpenSQLite(o.dbPath, 1)
		if err != nil {
			return core.OpenedTable{}, err
		}
		defer func() { _ = st.Close() }()
		return core.NewService(st, core.Options{SampleSize: sampleSize}).OpenTable(ctx, o.tableID)
	}

	if len(args) == 0 {
		return core.OpenedTable{}, fmt.Errorf("a csv file or --db is required")
	}
	if o.tableID != "" {
		return core.OpenedTable{}, fmt.Errorf("--table requires --db")
	}
	src, err := readCSVFile(args[0])
	if err != nil {
		return core.OpenedTable{}, err
	}
	opened := core.OpenedTable{
		Source:   src.Info(),
		Data:     core.NewTableData(src, sampleSize),
		Settings: core.NewFileSettings(),
	}
	if o.settingsPath == "" {
		return opened, nil
	}

	settings, err := loadSettings(o.settingsPath)
	if err != nil {
		return core.OpenedTable{}, err
	}
	opened.Settings = core.Migrate(settings)
	opened.Data, opened.Issues = core.Replay(ctx, nil, opened.Data, opened.Settings)
	return opened, nil
}

// parseCalc splits "name=formula" at the first equals sign. Formulas may
// contain comparisons, so later signs belong to the formula.
func parseCalc(spec string) (string, string, error) {
	name, expr, ok := strings.Cut(spec, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.TrimSpace(expr) == "" {
		return "", "", fmt.Errorf("invalid --calc %q: expected name=formula", spec)
	}
	return name, strings.TrimSpace(expr), nil
}

// loadSettings reads a settings record. JSON files go through the stored
// record decoder so older schema versions are upgraded.
func loadSettings(path string) (core.FileSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.FileSettings{}, fmt.Errorf("read settings: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return core.DecodeSettings(data)
	}
	s := core.NewFileSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return core.FileSettings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return s, nil
}

func saveSettings(path string, s core.FileSettings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
