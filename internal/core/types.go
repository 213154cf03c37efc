package core

import (
	"strings"
	"time"
)

// DataType is the semantic type of a column.
type DataType string

const (
	TypeText     DataType = "text"
	TypeNumber   DataType = "number"
	TypeDate     DataType = "date"
	TypeBoolean  DataType = "boolean"
	TypeCurrency DataType = "currency"
)

// DataTypes lists every supported type in inference priority order.
var DataTypes = []DataType{TypeCurrency, TypeNumber, TypeBoolean, TypeDate, TypeText}

// ParseDataType accepts a type name in any case ("Currency", "NUMBER").
func ParseDataType(s string) (DataType, bool) {
	dt := DataType(strings.ToLower(strings.TrimSpace(s)))
	switch dt {
	case TypeText, TypeNumber, TypeDate, TypeBoolean, TypeCurrency:
		return dt, true
	}
	return "", false
}

// ColumnMetadata describes one column of a TableData, index-aligned with
// its columns. Only calculated columns carry a formula.
type ColumnMetadata struct {
	Name         string   `json:"name"`
	DataType     DataType `json:"dataType"`
	Format       string   `json:"format,omitempty"`
	IsCalculated bool     `json:"isCalculated"`
	Formula      string   `json:"formula,omitempty"`
}

// TableSource is raw ingested data. Rows are rectangular: every row has
// exactly len(Columns) entries. Values are strings, numbers or nil.
type TableSource struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Columns   []string  `json:"columns"`
	Rows      [][]any   `json:"rows"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks that headers are present and unique and that every row
// matches the header width.
func (s TableSource) Validate() error {
	if len(s.Columns) == 0 {
		return ErrValidation("invalid table: no columns")
	}
	seen := make(map[string]bool, len(s.Columns))
	for i, c := range s.Columns {
		name := strings.TrimSpace(c)
		if name == "" {
			return ErrValidation("invalid table: column %d has an empty name", i)
		}
		if seen[name] {
			return ErrValidation("invalid table: duplicate column %q", name)
		}
		seen[name] = true
	}
	for i, row := range s.Rows {
		if len(row) != len(s.Columns) {
			return ErrValidation("invalid table: row %d has %d values, expected %d", i, len(row), len(s.Columns))
		}
	}
	return nil
}

// SourceInfo summarizes a stored TableSource without its rows.
type SourceInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ColumnCount int       `json:"columnCount"`
	RowCount    int       `json:"rowCount"`
	Derived     bool      `json:"derived"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Info returns the summary of s.
func (s TableSource) Info() SourceInfo {
	return SourceInfo{
		ID:          s.ID,
		Name:        s.Name,
		ColumnCount: len(s.Columns),
		RowCount:    len(s.Rows),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

// TableData is the typed working view of a TableSource plus any
// calculated columns.
type TableData struct {
	ID             string           `json:"id"`
	Columns        []string         `json:"columns"`
	Rows           [][]any          `json:"rows"`
	ColumnMetadata []ColumnMetadata `json:"columnMetadata"`
}

// Clone returns a deep copy of the table structure. Cell values are
// shared, which is safe because they are never mutated in place.
func (t TableData) Clone() TableData {
	out := TableData{
		ID:             t.ID,
		Columns:        append([]string(nil), t.Columns...),
		ColumnMetadata: append([]ColumnMetadata(nil), t.ColumnMetadata...),
		Rows:           make([][]any, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = append([]any(nil), row...)
	}
	return out
}

// ColumnIndex returns the position of the named column or -1.
func (t TableData) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// hasColumn reports whether name collides with an existing column,
// ignoring case and surrounding whitespace.
func (t TableData) hasColumn(name string) bool {
	name = strings.TrimSpace(name)
	for _, c := range t.Columns {
		if strings.EqualFold(strings.TrimSpace(c), name) {
			return true
		}
	}
	return false
}

// DependencyEdge records that DerivedID was built from SourceID.
type DependencyEdge struct {
	DerivedID string `json:"derivedId"`
	SourceID  string `json:"sourceId"`
}
