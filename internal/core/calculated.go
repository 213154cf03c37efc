package core

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wrkportal/sheetengine/internal/formula"
)

// DefaultParallelRowThreshold is the row count above which a calculated
// column is evaluated in parallel chunks.
const DefaultParallelRowThreshold = 2048

// Materializer evaluates calculated columns across whole tables.
type Materializer struct {
	// ParallelThreshold is the minimum row count for parallel evaluation.
	ParallelThreshold int
	// Workers bounds parallel evaluation. Zero means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

var defaultMaterializer = &Materializer{ParallelThreshold: DefaultParallelRowThreshold}

// Materialize appends a calculated column using default settings.
func Materialize(table TableData, name, expr string) (TableData, error) {
	return defaultMaterializer.Materialize(context.Background(), table, name, expr)
}

// RemoveCalculated drops a calculated column; see Materializer.Remove.
func RemoveCalculated(table TableData, index int) (TableData, error) {
	return defaultMaterializer.Remove(table, index)
}

// Materialize returns a copy of table with a calculated column appended.
// Every row gets the formula evaluated against that row's existing values.
// Per-cell failures become formula.ErrorValue; a formula that does not
// compile fills the column with formula.ErrorValue. The input table is
// not modified.
func (m *Materializer) Materialize(ctx context.Context, table TableData, name, expr string) (TableData, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TableData{}, ErrValidation("calculated field name is required")
	}
	if strings.TrimSpace(expr) == "" {
		return TableData{}, ErrValidation("formula for %q is empty", name)
	}
	if table.hasColumn(name) {
		return TableData{}, fmt.Errorf("%w: %q", ErrColumnExists, name)
	}

	values, err := m.evaluate(ctx, table, expr)
	if err != nil {
		return TableData{}, err
	}

	out := TableData{
		ID:             table.ID,
		Columns:        append(append(make([]string, 0, len(table.Columns)+1), table.Columns...), name),
		ColumnMetadata: append(append(make([]ColumnMetadata, 0, len(table.ColumnMetadata)+1), table.ColumnMetadata...), ColumnMetadata{Name: name, DataType: TypeNumber, IsCalculated: true, Formula: expr}),
		Rows:           make([][]any, len(table.Rows)),
	}
	for i, row := range table.Rows {
		r := make([]any, len(row), len(row)+1)
		copy(r, row)
		out.Rows[i] = append(r, values[i])
	}
	return out, nil
}

func (m *Materializer) evaluate(ctx context.Context, table TableData, expr string) ([]any, error) {
	values := make([]any, len(table.Rows))

	prog, err := formula.Compile(expr)
	if err != nil {
		m.logger().Debug("calculated field does not compile", "formula", expr, "error", err)
		for i := range values {
			values[i] = formula.ErrorValue
		}
		return values, nil
	}
	bound := prog.Bind(table.Columns)

	threshold := m.ParallelThreshold
	if threshold <= 0 {
		threshold = DefaultParallelRowThreshold
	}
	if len(table.Rows) < threshold {
		for i, row := range table.Rows {
			values[i] = bound.Value(row)
		}
		return values, nil
	}

	workers := m.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := (len(table.Rows) + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < len(table.Rows); start += chunk {
		end := min(start+chunk, len(table.Rows))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%512 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				values[i] = bound.Value(table.Rows[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("materialize: %w", err)
	}
	return values, nil
}

// Remove is the inverse of Materialize: it drops the column at index from
// the header, every row and the metadata. Only calculated columns can be
// removed.
func (m *Materializer) Remove(table TableData, index int) (TableData, error) {
	if index < 0 || index >= len(table.Columns) {
		return TableData{}, ErrValidation("column index %d out of range", index)
	}
	if index >= len(table.ColumnMetadata) || !table.ColumnMetadata[index].IsCalculated {
		return TableData{}, fmt.Errorf("%w: %q", ErrNotCalculated, table.Columns[index])
	}

	out := TableData{
		ID:             table.ID,
		Columns:        deleteAt(table.Columns, index),
		ColumnMetadata: deleteAt(table.ColumnMetadata, index),
		Rows:           make([][]any, len(table.Rows)),
	}
	for i, row := range table.Rows {
		if index < len(row) {
			out.Rows[i] = deleteAt(row, index)
		} else {
			out.Rows[i] = append([]any(nil), row...)
		}
	}
	return out, nil
}

func (m *Materializer) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// deleteAt returns a new slice without element i.
func deleteAt[T any](s []T, i int) []T {
	out := make([]T, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...)
}

// compileChecked compiles expr and verifies every column it references
// resolves against columns.
func compileChecked(expr string, columns []string) (*formula.Program, error) {
	prog, err := formula.Compile(expr)
	if err != nil {
		return nil, wrapValidation(err, "invalid formula")
	}
	if missing := prog.Unresolved(columns); len(missing) > 0 {
		return nil, wrapValidation(formula.ErrUnresolvedColumn, "unknown column %s", strings.Join(quoteAll(missing), ", "))
	}
	return prog, nil
}
