package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrkportal/sheetengine/internal/formula"
)

func sampleTable() TableData {
	return NewTableData(TableSource{
		ID:      "sales",
		Columns: []string{"Region", "Sales", "Units"},
		Rows: [][]any{
			{"North", "100", "4"},
			{"South", "250", "0"},
			{"East", nil, "5"},
		},
	}, DefaultSampleSize)
}

func TestMaterialize(t *testing.T) {
	table := sampleTable()

	got, err := Materialize(table, "Per Unit", "ROUND(DIVIDE(Sales, Units), 2)")
	require.NoError(t, err)

	assert.Equal(t, []string{"Region", "Sales", "Units", "Per Unit"}, got.Columns)
	meta := got.ColumnMetadata[3]
	assert.True(t, meta.IsCalculated)
	assert.Equal(t, TypeNumber, meta.DataType)
	assert.Equal(t, "ROUND(DIVIDE(Sales, Units), 2)", meta.Formula)

	assert.Equal(t, 25.0, got.Rows[0][3])
	assert.Equal(t, 0.0, got.Rows[1][3], "division by zero yields 0")
	for _, row := range got.Rows {
		assert.Len(t, row, 4)
	}

	assert.Len(t, table.Columns, 3, "input must not be modified")
	assert.Len(t, table.Rows[0], 3)
}

func TestMaterialize_ChainedFields(t *testing.T) {
	table, err := Materialize(sampleTable(), "Double", "MULTIPLY(Sales, 2)")
	require.NoError(t, err)
	table, err = Materialize(table, "Quad", "MULTIPLY(Double, 2)")
	require.NoError(t, err)

	assert.Equal(t, 400.0, table.Rows[0][4])
}

func TestMaterialize_Errors(t *testing.T) {
	table := sampleTable()

	_, err := Materialize(table, "sales", "SUM(Sales, 1)")
	assert.True(t, errors.Is(err, ErrColumnExists), "names collide case-insensitively")

	_, err = Materialize(table, "  ", "SUM(Sales, 1)")
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = Materialize(table, "X", "")
	assert.True(t, errors.As(err, &ve))
}

func TestMaterialize_BadFormulaFillsErrors(t *testing.T) {
	got, err := Materialize(sampleTable(), "Broken", "SUM(Sales,")
	require.NoError(t, err)
	for _, row := range got.Rows {
		assert.Equal(t, formula.ErrorValue, row[3])
	}

	got, err = Materialize(sampleTable(), "Missing", "SUM(Nope, 1)")
	require.NoError(t, err)
	assert.Equal(t, formula.ErrorValue, got.Rows[0][3])
}

func TestMaterialize_ParallelMatchesSequential(t *testing.T) {
	src := TableSource{ID: "big", Columns: []string{"A", "B"}}
	for i := 0; i < 5000; i++ {
		src.Rows = append(src.Rows, []any{fmt.Sprint(i), fmt.Sprint(i % 7)})
	}
	table := NewTableData(src, DefaultSampleSize)

	seq := &Materializer{ParallelThreshold: 1 << 30}
	par := &Materializer{ParallelThreshold: 100, Workers: 4}

	a, err := seq.Materialize(context.Background(), table, "C", "DIVIDE(A, B)")
	require.NoError(t, err)
	b, err := par.Materialize(context.Background(), table, "C", "DIVIDE(A, B)")
	require.NoError(t, err)

	assert.Equal(t, a.Rows, b.Rows)
}

func TestMaterialize_Cancelled(t *testing.T) {
	src := TableSource{ID: "big", Columns: []string{"A"}}
	for i := 0; i < 3000; i++ {
		src.Rows = append(src.Rows, []any{fmt.Sprint(i)})
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := &Materializer{ParallelThreshold: 10, Workers: 2}
	_, err := m.Materialize(ctx, NewTableData(src, DefaultSampleSize), "B", "SUM(A, 1)")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRemoveCalculated_RoundTrip(t *testing.T) {
	table := sampleTable()
	added, err := Materialize(table, "Total", "SUM(Sales, Units)")
	require.NoError(t, err)

	removed, err := RemoveCalculated(added, 3)
	require.NoError(t, err)

	assert.Equal(t, table.Columns, removed.Columns)
	assert.Equal(t, table.ColumnMetadata, removed.ColumnMetadata)
	assert.Equal(t, table.Rows, removed.Rows)
}

func TestRemoveCalculated_Errors(t *testing.T) {
	table := sampleTable()

	_, err := RemoveCalculated(table, 1)
	assert.ErrorIs(t, err, ErrNotCalculated)

	_, err = RemoveCalculated(table, 9)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Error(), "out of range")
}
