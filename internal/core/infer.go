package core

import "github.com/wrkportal/sheetengine/internal/cell"

// DefaultSampleSize is how many non-blank values inference looks at.
const DefaultSampleSize = 10

// InferType classifies a column from its first DefaultSampleSize non-blank
// values.
func InferType(values []any) DataType {
	return InferTypeN(values, DefaultSampleSize)
}

// InferTypeN classifies a column from its first n non-blank values, in
// stored order. The first matching rule wins:
//
//  1. all numeric and at least one carries a currency glyph: Currency
//  2. all numeric: Number
//  3. all true/false/yes/no/1/0: Boolean
//  4. all calendar dates: Date
//  5. otherwise Text
//
// A column with no non-blank values is Text. Only the start of the column
// is sampled, so a column whose first values are atypical is misclassified
// until the user overrides the type.
func InferTypeN(values []any, n int) DataType {
	if n <= 0 {
		n = DefaultSampleSize
	}
	sample := make([]any, 0, n)
	for _, v := range values {
		if cell.IsBlank(v) {
			continue
		}
		sample = append(sample, v)
		if len(sample) == n {
			break
		}
	}
	if len(sample) == 0 {
		return TypeText
	}

	if all(sample, isNumeric) {
		if some(sample, cell.HasCurrencyGlyph) {
			return TypeCurrency
		}
		return TypeNumber
	}
	if all(sample, isBoolean) {
		return TypeBoolean
	}
	if all(sample, isDate) {
		return TypeDate
	}
	return TypeText
}

func isNumeric(v any) bool {
	_, ok := cell.ParseNumber(v)
	return ok
}

func isBoolean(v any) bool {
	_, ok := cell.ParseBool(v)
	return ok
}

func isDate(v any) bool {
	_, ok := cell.ParseDate(v)
	return ok
}

func all(values []any, pred func(any) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

func some(values []any, pred func(any) bool) bool {
	for _, v := range values {
		if pred(v) {
			return true
		}
	}
	return false
}

// InferColumns builds metadata for every column of src.
func InferColumns(src TableSource, sampleSize int) []ColumnMetadata {
	meta := make([]ColumnMetadata, len(src.Columns))
	column := make([]any, len(src.Rows))
	for i, name := range src.Columns {
		for r, row := range src.Rows {
			if i < len(row) {
				column[r] = row[i]
			} else {
				column[r] = nil
			}
		}
		meta[i] = ColumnMetadata{Name: name, DataType: InferTypeN(column, sampleSize)}
	}
	return meta
}

// NewTableData builds a freshly inferred working view of src. Rows are
// copied so later calculated columns never alias the source.
func NewTableData(src TableSource, sampleSize int) TableData {
	t := TableData{
		ID:             src.ID,
		Columns:        append([]string(nil), src.Columns...),
		Rows:           make([][]any, len(src.Rows)),
		ColumnMetadata: InferColumns(src, sampleSize),
	}
	for i, row := range src.Rows {
		t.Rows[i] = append([]any(nil), row...)
	}
	return t
}
