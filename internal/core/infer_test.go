package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInferType(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		want   DataType
	}{
		{"empty column", nil, TypeText},
		{"only blanks", []any{nil, "", "  "}, TypeText},
		{"plain numbers", []any{"1", "2.5", "-3"}, TypeNumber},
		{"json floats", []any{1.0, 2.5, float64(3)}, TypeNumber},
		{"grouped numbers", []any{"1,200", "3,400.50"}, TypeNumber},
		{"one currency glyph", []any{"$1,200", "300", "12.5"}, TypeCurrency},
		{"euro", []any{"€10", "€20"}, TypeCurrency},
		{"ones and zeros are numbers", []any{"1", "0", "1"}, TypeNumber},
		{"yes no", []any{"Yes", "no", "YES"}, TypeBoolean},
		{"true false", []any{"true", "FALSE"}, TypeBoolean},
		{"iso dates", []any{"2024-01-15", "2024-02-01"}, TypeDate},
		{"us dates", []any{"01/15/2024", "2/1/2024"}, TypeDate},
		{"mixed", []any{"1", "apple"}, TypeText},
		{"blanks ignored", []any{nil, "10", "", "20"}, TypeNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferType(tt.values))
		})
	}
}

func TestInferTypeN_SamplesOnlyLeadingValues(t *testing.T) {
	values := []any{"1", "2", "3", "later text"}

	assert.Equal(t, TypeNumber, InferTypeN(values, 3))
	assert.Equal(t, TypeText, InferTypeN(values, 4))
	assert.Equal(t, TypeText, InferTypeN(values, 0), "non-positive sample size uses the default")
}

func TestNewTableData(t *testing.T) {
	src := TableSource{
		ID:      "t1",
		Columns: []string{"Name", "Amount", "Paid", "Due"},
		Rows: [][]any{
			{"Ann", "$10", "yes", "2024-01-01"},
			{"Bob", "20", "no", "2024-02-01"},
		},
	}

	data := NewTableData(src, DefaultSampleSize)

	assert.Equal(t, "t1", data.ID)
	assert.Equal(t, src.Columns, data.Columns)
	types := make([]DataType, len(data.ColumnMetadata))
	for i, m := range data.ColumnMetadata {
		types[i] = m.DataType
		assert.False(t, m.IsCalculated)
	}
	assert.Equal(t, []DataType{TypeText, TypeCurrency, TypeBoolean, TypeDate}, types)

	data.Rows[0][0] = "changed"
	assert.Equal(t, "Ann", src.Rows[0][0], "rows must be copied")
}
