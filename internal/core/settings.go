package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// CurrentSchemaVersion is written into every saved FileSettings record.
// Version 1 records carried no version field.
const CurrentSchemaVersion = 2

// Column width bounds in pixels.
const (
	MinColumnWidth = 20
	MaxColumnWidth = 2000
)

// ColumnSetting is the persisted type choice for a non-calculated column.
type ColumnSetting struct {
	Name     string   `json:"name" yaml:"name"`
	DataType DataType `json:"dataType" yaml:"dataType"`
	Format   string   `json:"format,omitempty" yaml:"format,omitempty"`
}

// CalculatedField is the persisted definition of a calculated column.
type CalculatedField struct {
	Name    string `json:"name" yaml:"name"`
	Formula string `json:"formula" yaml:"formula"`
}

// FileSettings is everything needed to rebuild a table view from its raw
// source: type overrides, display widths and calculated fields in the order
// they were added.
type FileSettings struct {
	SchemaVersion    int               `json:"schemaVersion" yaml:"schemaVersion"`
	Revision         int64             `json:"revision" yaml:"revision"`
	ColumnWidths     map[int]int       `json:"columnWidths" yaml:"columnWidths"`
	ColumnMetadata   []ColumnSetting   `json:"columnMetadata" yaml:"columnMetadata"`
	CalculatedFields []CalculatedField `json:"calculatedFields" yaml:"calculatedFields"`
	UpdatedBy        string            `json:"updatedBy,omitempty" yaml:"updatedBy,omitempty"`
	UpdatedAt        time.Time         `json:"updatedAt" yaml:"updatedAt"`
}

// NewFileSettings returns an empty record at the current schema version.
func NewFileSettings() FileSettings {
	return FileSettings{
		SchemaVersion: CurrentSchemaVersion,
		ColumnWidths:  map[int]int{},
	}
}

// Clone returns a deep copy.
func (s FileSettings) Clone() FileSettings {
	out := s
	out.ColumnWidths = make(map[int]int, len(s.ColumnWidths))
	for k, v := range s.ColumnWidths {
		out.ColumnWidths[k] = v
	}
	out.ColumnMetadata = append([]ColumnSetting(nil), s.ColumnMetadata...)
	out.CalculatedFields = append([]CalculatedField(nil), s.CalculatedFields...)
	return out
}

// SettingsStore persists one FileSettings record per table id.
type SettingsStore interface {
	// LoadSettings returns nil when no settings were saved for id.
	LoadSettings(ctx context.Context, id string) (*FileSettings, error)
	SaveSettings(ctx context.Context, id string, s FileSettings) error
	// UpdateSettings applies fn to the current record (or a new one) and
	// saves the result. Updates of the same id are serialized.
	UpdateSettings(ctx context.Context, id string, fn func(*FileSettings) error) (FileSettings, error)
	DeleteSettings(ctx context.Context, id string) error
}

// ApplySettingsUpdate runs fn against a copy of current and stamps the
// result. Stores call it while holding their per-id lock or transaction.
func ApplySettingsUpdate(ctx context.Context, current *FileSettings, fn func(*FileSettings) error) (FileSettings, error) {
	next := NewFileSettings()
	if current != nil {
		next = Migrate(current.Clone())
	}
	if err := fn(&next); err != nil {
		return FileSettings{}, err
	}
	next.SchemaVersion = CurrentSchemaVersion
	next.Revision++
	next.UpdatedAt = time.Now().UTC()
	if editor := EditorFromContext(ctx); editor != "" {
		next.UpdatedBy = editor
	}
	return next, nil
}

// Snapshot captures the current state of table as a settings record.
func Snapshot(table TableData, widths map[int]int) FileSettings {
	s := NewFileSettings()
	for k, v := range widths {
		s.ColumnWidths[k] = v
	}
	for _, m := range table.ColumnMetadata {
		if m.IsCalculated {
			s.CalculatedFields = append(s.CalculatedFields, CalculatedField{Name: m.Name, Formula: m.Formula})
			continue
		}
		s.ColumnMetadata = append(s.ColumnMetadata, ColumnSetting{Name: m.Name, DataType: m.DataType, Format: m.Format})
	}
	return s
}

// ReplayIssue describes a stored entry that could not be applied.
type ReplayIssue struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

const (
	IssueStaleColumn     = "stale_column"
	IssueInvalidType     = "invalid_type"
	IssueInvalidFormat   = "invalid_format"
	IssueCalculatedField = "calculated_field"
	IssueFormulaError    = "formula_error"
	IssueStaleWidth      = "stale_width"
)

// Replay applies stored settings to a freshly inferred table. Column
// overrides are matched by name; entries for columns that no longer exist
// are dropped and reported. Calculated fields are then materialized in
// stored order, so later fields may reference earlier ones. A field that
// cannot be added is skipped and reported.
func Replay(ctx context.Context, m *Materializer, table TableData, s FileSettings) (TableData, []ReplayIssue) {
	if m == nil {
		m = defaultMaterializer
	}
	s = Migrate(s)
	out := table.Clone()
	var issues []ReplayIssue

	for _, cs := range s.ColumnMetadata {
		i := out.ColumnIndex(cs.Name)
		if i < 0 || out.ColumnMetadata[i].IsCalculated {
			issues = append(issues, ReplayIssue{Kind: IssueStaleColumn, Name: cs.Name,
				Message: fmt.Sprintf("column %q no longer exists; using inferred type", cs.Name)})
			continue
		}
		dt, ok := ParseDataType(string(cs.DataType))
		if !ok {
			issues = append(issues, ReplayIssue{Kind: IssueInvalidType, Name: cs.Name,
				Message: fmt.Sprintf("unknown data type %q; using inferred type", cs.DataType)})
			continue
		}
		out.ColumnMetadata[i].DataType = dt
		out.ColumnMetadata[i].Format = ""
		if ValidFormat(dt, cs.Format) {
			out.ColumnMetadata[i].Format = cs.Format
		} else {
			issues = append(issues, ReplayIssue{Kind: IssueInvalidFormat, Name: cs.Name,
				Message: fmt.Sprintf("unknown %s format %q; using default", dt, cs.Format)})
		}
	}

	for _, cf := range s.CalculatedFields {
		next, err := m.Materialize(ctx, out, cf.Name, cf.Formula)
		if err != nil {
			issues = append(issues, ReplayIssue{Kind: IssueCalculatedField, Name: cf.Name, Message: err.Error()})
			continue
		}
		out = next
		if _, err := compileChecked(cf.Formula, out.Columns[:len(out.Columns)-1]); err != nil {
			issues = append(issues, ReplayIssue{Kind: IssueFormulaError, Name: cf.Name, Message: err.Error()})
		}
	}

	for idx := range s.ColumnWidths {
		if idx < 0 || idx >= len(out.Columns) {
			issues = append(issues, ReplayIssue{Kind: IssueStaleWidth, Name: strconv.Itoa(idx),
				Message: fmt.Sprintf("width stored for column %d, table has %d columns", idx, len(out.Columns))})
		}
	}

	return out, issues
}

// Migrate upgrades a record to CurrentSchemaVersion. It is idempotent.
func Migrate(s FileSettings) FileSettings {
	if s.ColumnWidths == nil {
		s.ColumnWidths = map[int]int{}
	}
	if s.SchemaVersion >= CurrentSchemaVersion {
		return s
	}
	for i, cs := range s.ColumnMetadata {
		if dt, ok := ParseDataType(string(cs.DataType)); ok {
			s.ColumnMetadata[i].DataType = dt
		}
	}
	s.SchemaVersion = CurrentSchemaVersion
	return s
}

type legacyColumn struct {
	Name         string `json:"name"`
	DataType     string `json:"dataType"`
	Format       string `json:"format"`
	IsCalculated bool   `json:"isCalculated"`
	Formula      string `json:"formula"`
}

type legacySettings struct {
	ColumnWidths     map[int]int       `json:"columnWidths"`
	ColumnMetadata   []legacyColumn    `json:"columnMetadata"`
	CalculatedFields []CalculatedField `json:"calculatedFields"`
}

// DecodeSettings parses a stored JSON record of any schema version and
// returns it migrated to the current one. Unversioned records may list
// calculated columns inside columnMetadata; those are moved to
// calculatedFields unless already present there.
func DecodeSettings(data []byte) (FileSettings, error) {
	var header struct {
		SchemaVersion int `json:"schemaVersion"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return FileSettings{}, fmt.Errorf("decode settings: %w", err)
	}
	if header.SchemaVersion > CurrentSchemaVersion {
		return FileSettings{}, fmt.Errorf("unsupported settings version %d", header.SchemaVersion)
	}

	if header.SchemaVersion >= 2 {
		var s FileSettings
		if err := json.Unmarshal(data, &s); err != nil {
			return FileSettings{}, fmt.Errorf("decode settings: %w", err)
		}
		return Migrate(s), nil
	}

	var legacy legacySettings
	if err := json.Unmarshal(data, &legacy); err != nil {
		return FileSettings{}, fmt.Errorf("decode legacy settings: %w", err)
	}
	s := FileSettings{
		SchemaVersion:    1,
		ColumnWidths:     legacy.ColumnWidths,
		CalculatedFields: legacy.CalculatedFields,
	}
	known := make(map[string]bool, len(legacy.CalculatedFields))
	for _, cf := range legacy.CalculatedFields {
		known[cf.Name] = true
	}
	for _, c := range legacy.ColumnMetadata {
		if c.IsCalculated {
			if c.Formula != "" && !known[c.Name] {
				s.CalculatedFields = append(s.CalculatedFields, CalculatedField{Name: c.Name, Formula: c.Formula})
				known[c.Name] = true
			}
			continue
		}
		s.ColumnMetadata = append(s.ColumnMetadata, ColumnSetting{Name: c.Name, DataType: DataType(c.DataType), Format: c.Format})
	}
	return Migrate(s), nil
}

// EncodeSettings serializes a record at the current schema version.
func EncodeSettings(s FileSettings) ([]byte, error) {
	s = Migrate(s)
	s.SchemaVersion = CurrentSchemaVersion
	return json.Marshal(s)
}
