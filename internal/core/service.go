package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wrkportal/sheetengine/internal/formula"
	"github.com/wrkportal/sheetengine/internal/logging"
)

// DefaultPreviewRows is how many rows a formula preview evaluates.
const DefaultPreviewRows = 5

// Options configures a Service. Zero values select the defaults.
type Options struct {
	SampleSize        int
	ParallelThreshold int
	MaxWorkers        int
	PreviewRows       int
	CascadeParallel   int
	CascadeMaxActive  int
	CascadeMaxWait    time.Duration
}

// Service is the entry point for every table operation. It can be used by
// the HTTP layer, the CLI or tests without modification.
type Service struct {
	store        Store
	opts         Options
	materializer *Materializer
	cascader     *Cascader
	limiter      *CascadeLimiter

	// mergeMu serializes merge definition changes so cycle checks see a
	// consistent graph.
	mergeMu sync.Mutex
}

// NewService creates a Service over store.
func NewService(store Store, opts Options) *Service {
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}
	if opts.ParallelThreshold <= 0 {
		opts.ParallelThreshold = DefaultParallelRowThreshold
	}
	if opts.PreviewRows <= 0 {
		opts.PreviewRows = DefaultPreviewRows
	}
	if opts.CascadeParallel <= 0 {
		opts.CascadeParallel = DefaultCascadeParallel
	}

	m := &Materializer{ParallelThreshold: opts.ParallelThreshold, Workers: opts.MaxWorkers}
	return &Service{
		store:        store,
		opts:         opts,
		materializer: m,
		cascader: &Cascader{
			Store:        store,
			Materializer: m,
			SampleSize:   opts.SampleSize,
			Parallel:     opts.CascadeParallel,
		},
		limiter: NewCascadeLimiter(opts.CascadeMaxActive, opts.CascadeMaxWait),
	}
}

func (s *Service) log(ctx context.Context, id string) *slog.Logger {
	l := logging.WithFields(ctx, "table_id", id)
	if editor := EditorFromContext(ctx); editor != "" {
		l = l.With("editor", editor)
	}
	return l
}

// ============================================================================
// Tables
// ============================================================================

// RegisterSource stores a new raw table. An empty ID is assigned a UUID.
func (s *Service) RegisterSource(ctx context.Context, src TableSource) (SourceInfo, error) {
	if src.ID == "" {
		src.ID = uuid.NewString()
	} else if _, err := s.store.GetSource(ctx, src.ID); err == nil {
		return SourceInfo{}, ErrConflict("table %s already exists", src.ID)
	} else if !isNotFound(err) {
		return SourceInfo{}, err
	}
	if err := src.Validate(); err != nil {
		return SourceInfo{}, err
	}
	if strings.TrimSpace(src.Name) == "" {
		src.Name = src.ID
	}

	now := time.Now().UTC()
	src.CreatedAt, src.UpdatedAt = now, now
	if err := s.store.PutSource(ctx, src); err != nil {
		return SourceInfo{}, fmt.Errorf("register table: %w", err)
	}

	s.log(ctx, src.ID).Info("table registered", "name", src.Name, "columns", len(src.Columns), "rows", len(src.Rows))
	return src.Info(), nil
}

// ListSources returns every stored table, marking merge outputs.
func (s *Service) ListSources(ctx context.Context) ([]SourceInfo, error) {
	infos, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	specs, err := s.store.ListMerges(ctx)
	if err != nil {
		return nil, fmt.Errorf("list merges: %w", err)
	}
	derived := make(map[string]bool, len(specs))
	for _, spec := range specs {
		derived[spec.DerivedID] = true
	}
	for i := range infos {
		infos[i].Derived = derived[infos[i].ID]
	}
	return infos, nil
}

// OpenedTable is a table view rebuilt from raw data plus stored settings.
type OpenedTable struct {
	Source   SourceInfo    `json:"source"`
	Data     TableData     `json:"data"`
	Settings FileSettings  `json:"settings"`
	Issues   []ReplayIssue `json:"issues,omitempty"`
}

// OpenTable infers column types for the stored source and, when settings
// were saved, replays them: type overrides first, then calculated fields in
// stored order.
func (s *Service) OpenTable(ctx context.Context, id string) (OpenedTable, error) {
	src, err := s.store.GetSource(ctx, id)
	if err != nil {
		return OpenedTable{}, err
	}
	settings, err := s.store.LoadSettings(ctx, id)
	if err != nil {
		return OpenedTable{}, fmt.Errorf("load settings: %w", err)
	}
	return s.open(ctx, src, settings), nil
}

func (s *Service) open(ctx context.Context, src TableSource, settings *FileSettings) OpenedTable {
	out := OpenedTable{
		Source: src.Info(),
		Data:   NewTableData(src, s.opts.SampleSize),
	}
	if settings == nil {
		out.Settings = NewFileSettings()
		return out
	}

	out.Settings = Migrate(settings.Clone())
	out.Data, out.Issues = Replay(ctx, s.materializer, out.Data, out.Settings)
	for _, issue := range out.Issues {
		s.log(ctx, src.ID).Warn("stored setting not applied", "kind", issue.Kind, "name", issue.Name, "reason", issue.Message)
	}
	return out
}

// RenderedColumn is the display header of one column.
type RenderedColumn struct {
	ColumnMetadata
	Width int `json:"width,omitempty"`
}

// RenderedTable is a table with every cell formatted for display.
type RenderedTable struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Columns []RenderedColumn `json:"columns"`
	Rows    [][]string       `json:"rows"`
	Issues  []ReplayIssue    `json:"issues,omitempty"`
}

// RenderTable opens a table and formats every cell by its column type.
func (s *Service) RenderTable(ctx context.Context, id string) (RenderedTable, error) {
	opened, err := s.OpenTable(ctx, id)
	if err != nil {
		return RenderedTable{}, err
	}
	return Render(opened), nil
}

// Render formats an opened table.
func Render(t OpenedTable) RenderedTable {
	out := RenderedTable{
		ID:      t.Source.ID,
		Name:    t.Source.Name,
		Columns: make([]RenderedColumn, len(t.Data.ColumnMetadata)),
		Rows:    RenderRows(t.Data),
		Issues:  t.Issues,
	}
	for i, m := range t.Data.ColumnMetadata {
		out.Columns[i] = RenderedColumn{ColumnMetadata: m, Width: t.Settings.ColumnWidths[i]}
	}
	return out
}

// RenderRows formats every cell of data by its column's type and format.
func RenderRows(data TableData) [][]string {
	rows := make([][]string, len(data.Rows))
	for r, row := range data.Rows {
		out := make([]string, len(data.Columns))
		for i := range out {
			var v any
			if i < len(row) {
				v = row[i]
			}
			if i < len(data.ColumnMetadata) {
				m := data.ColumnMetadata[i]
				out[i] = FormatValue(v, m.DataType, m.Format)
			} else {
				out[i] = FormatValue(v, TypeText, "")
			}
		}
		rows[r] = out
	}
	return rows
}

// DeleteTable removes a table, its settings and every merge it takes part
// in. Tables that were merged from it keep their last data but are no
// longer rebuilt.
func (s *Service) DeleteTable(ctx context.Context, id string) error {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	if _, err := s.store.GetSource(ctx, id); err != nil {
		return err
	}

	specs, err := s.store.ListMerges(ctx)
	if err != nil {
		return fmt.Errorf("list merges: %w", err)
	}
	for _, spec := range specs {
		if spec.DerivedID == id || slices.Contains(spec.SourceIDs(), id) {
			if err := s.store.DeleteMerge(ctx, spec.DerivedID); err != nil {
				return fmt.Errorf("delete merge %s: %w", spec.DerivedID, err)
			}
		}
	}
	if err := s.store.DeleteSettings(ctx, id); err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	if err := s.store.DeleteSource(ctx, id); err != nil {
		return fmt.Errorf("delete table: %w", err)
	}

	s.log(ctx, id).Info("table deleted")
	return nil
}

// ============================================================================
// Column settings
// ============================================================================

// GetSettings returns the stored settings of a table, or an empty record.
func (s *Service) GetSettings(ctx context.Context, id string) (FileSettings, error) {
	if _, err := s.store.GetSource(ctx, id); err != nil {
		return FileSettings{}, err
	}
	settings, err := s.store.LoadSettings(ctx, id)
	if err != nil {
		return FileSettings{}, fmt.Errorf("load settings: %w", err)
	}
	if settings == nil {
		return NewFileSettings(), nil
	}
	return *settings, nil
}

// SetColumnType overrides the type and format of a source column.
func (s *Service) SetColumnType(ctx context.Context, id string, index int, dataType, format string) (ColumnMetadata, error) {
	dt, ok := ParseDataType(dataType)
	if !ok {
		return ColumnMetadata{}, ErrValidation("unknown data type %q", dataType)
	}
	if !ValidFormat(dt, format) {
		return ColumnMetadata{}, ErrValidation("unknown format %q for %s columns", format, dt)
	}

	opened, err := s.OpenTable(ctx, id)
	if err != nil {
		return ColumnMetadata{}, err
	}
	if index < 0 || index >= len(opened.Data.Columns) {
		return ColumnMetadata{}, ErrValidation("column index %d out of range", index)
	}
	meta := opened.Data.ColumnMetadata[index]
	if meta.IsCalculated {
		return ColumnMetadata{}, ErrValidation("column %q is a calculated field and always numeric", meta.Name)
	}

	_, err = s.store.UpdateSettings(ctx, id, func(st *FileSettings) error {
		seedSettings(st, opened.Data)
		setColumnSetting(st, ColumnSetting{Name: meta.Name, DataType: dt, Format: format})
		return nil
	})
	if err != nil {
		return ColumnMetadata{}, fmt.Errorf("save settings: %w", err)
	}

	meta.DataType, meta.Format = dt, format
	s.log(ctx, id).Info("column type changed", "column", meta.Name, "type", dt, "format", format)
	return meta, nil
}

// SetColumnWidth stores the display width of a column in pixels.
func (s *Service) SetColumnWidth(ctx context.Context, id string, index, width int) (FileSettings, error) {
	if width < MinColumnWidth || width > MaxColumnWidth {
		return FileSettings{}, ErrValidation("invalid column width %d: must be between %d and %d", width, MinColumnWidth, MaxColumnWidth)
	}
	opened, err := s.OpenTable(ctx, id)
	if err != nil {
		return FileSettings{}, err
	}
	if index < 0 || index >= len(opened.Data.Columns) {
		return FileSettings{}, ErrValidation("column index %d out of range", index)
	}

	saved, err := s.store.UpdateSettings(ctx, id, func(st *FileSettings) error {
		seedSettings(st, opened.Data)
		st.ColumnWidths[index] = width
		return nil
	})
	if err != nil {
		return FileSettings{}, fmt.Errorf("save settings: %w", err)
	}
	return saved, nil
}

// seedSettings fills a record that has never been saved with the current
// inferred types so every save is a full snapshot.
func seedSettings(st *FileSettings, data TableData) {
	if st.Revision > 0 || len(st.ColumnMetadata) > 0 {
		return
	}
	snap := Snapshot(data, nil)
	st.ColumnMetadata = snap.ColumnMetadata
	if st.ColumnWidths == nil {
		st.ColumnWidths = map[int]int{}
	}
}

func setColumnSetting(st *FileSettings, cs ColumnSetting) {
	for i := range st.ColumnMetadata {
		if st.ColumnMetadata[i].Name == cs.Name {
			st.ColumnMetadata[i] = cs
			return
		}
	}
	st.ColumnMetadata = append(st.ColumnMetadata, cs)
}

// ============================================================================
// Calculated fields
// ============================================================================

// AddCalculatedField validates a formula against the table's columns,
// saves it and returns the table with the new column materialized.
func (s *Service) AddCalculatedField(ctx context.Context, id, name, expr string) (OpenedTable, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return OpenedTable{}, ErrValidation("calculated field name is required")
	}
	opened, err := s.OpenTable(ctx, id)
	if err != nil {
		return OpenedTable{}, err
	}
	if opened.Data.hasColumn(name) {
		return OpenedTable{}, fmt.Errorf("%w: %q", ErrColumnExists, name)
	}
	if _, err := compileChecked(expr, opened.Data.Columns); err != nil {
		return OpenedTable{}, err
	}

	saved, err := s.store.UpdateSettings(ctx, id, func(st *FileSettings) error {
		seedSettings(st, opened.Data)
		for _, cf := range st.CalculatedFields {
			if strings.EqualFold(cf.Name, name) {
				return fmt.Errorf("%w: %q", ErrColumnExists, name)
			}
		}
		st.CalculatedFields = append(st.CalculatedFields, CalculatedField{Name: name, Formula: expr})
		return nil
	})
	if err != nil {
		return OpenedTable{}, err
	}

	data, err := s.materializer.Materialize(ctx, opened.Data, name, expr)
	if err != nil {
		return OpenedTable{}, err
	}
	opened.Data = data
	opened.Settings = saved

	s.log(ctx, id).Info("calculated field added", "name", name, "formula", expr)
	return opened, nil
}

// RemoveCalculatedField drops a calculated column and its stored
// definition. A field that later fields reference cannot be removed.
func (s *Service) RemoveCalculatedField(ctx context.Context, id, name string) (OpenedTable, error) {
	opened, err := s.OpenTable(ctx, id)
	if err != nil {
		return OpenedTable{}, err
	}
	index := opened.Data.ColumnIndex(name)
	if index < 0 {
		return OpenedTable{}, ErrNotFound("calculated field not found: %s", name)
	}
	if !opened.Data.ColumnMetadata[index].IsCalculated {
		return OpenedTable{}, fmt.Errorf("%w: %q", ErrNotCalculated, name)
	}
	for _, m := range opened.Data.ColumnMetadata[index+1:] {
		if !m.IsCalculated {
			continue
		}
		prog, err := formula.Compile(m.Formula)
		if err != nil {
			continue
		}
		if len(prog.Unresolved([]string{name})) < len(prog.References()) {
			return OpenedTable{}, ErrConflict("column %q is referenced by calculated field %q", name, m.Name)
		}
	}

	data, err := s.materializer.Remove(opened.Data, index)
	if err != nil {
		return OpenedTable{}, err
	}
	saved, err := s.store.UpdateSettings(ctx, id, func(st *FileSettings) error {
		st.CalculatedFields = slices.DeleteFunc(st.CalculatedFields, func(cf CalculatedField) bool {
			return cf.Name == name
		})
		st.ColumnWidths = removeWidth(st.ColumnWidths, index, len(data.Columns))
		return nil
	})
	if err != nil {
		return OpenedTable{}, fmt.Errorf("save settings: %w", err)
	}

	opened.Data = data
	opened.Settings = saved
	s.log(ctx, id).Info("calculated field removed", "name", name)
	return opened, nil
}

// removeWidth drops the width stored for the removed column and moves
// every later width one position left. Widths past the last remaining
// column are dropped.
func removeWidth(widths map[int]int, removed, columns int) map[int]int {
	out := make(map[int]int, len(widths))
	for idx, w := range widths {
		switch {
		case idx == removed:
			continue
		case idx > removed:
			idx--
		}
		if idx >= 0 && idx < columns {
			out[idx] = w
		}
	}
	return out
}

// FormulaPreview shows a formula evaluated against the first rows.
type FormulaPreview struct {
	Formula    string   `json:"formula"`
	Normalized string   `json:"normalized"`
	References []string `json:"references"`
	Values     []any    `json:"values"`
	Formatted  []string `json:"formatted"`
	Errors     int      `json:"errors"`
}

// PreviewFormula evaluates a formula against the first PreviewRows rows
// of a table without saving anything.
func (s *Service) PreviewFormula(ctx context.Context, id, expr string) (FormulaPreview, error) {
	opened, err := s.OpenTable(ctx, id)
	if err != nil {
		return FormulaPreview{}, err
	}
	prog, err := compileChecked(expr, opened.Data.Columns)
	if err != nil {
		return FormulaPreview{}, err
	}

	n := min(s.opts.PreviewRows, len(opened.Data.Rows))
	preview := FormulaPreview{
		Formula:    expr,
		Normalized: prog.String(),
		References: prog.References(),
		Values:     make([]any, n),
		Formatted:  make([]string, n),
	}
	bound := prog.Bind(opened.Data.Columns)
	for i := 0; i < n; i++ {
		v := bound.Value(opened.Data.Rows[i])
		if v == formula.ErrorValue {
			preview.Errors++
		}
		preview.Values[i] = v
		preview.Formatted[i] = FormatValue(v, TypeNumber, "")
	}
	return preview, nil
}

// ValidateFormula checks that a formula parses and only references
// columns of the table.
func (s *Service) ValidateFormula(ctx context.Context, id, expr string) error {
	opened, err := s.OpenTable(ctx, id)
	if err != nil {
		return err
	}
	_, err = compileChecked(expr, opened.Data.Columns)
	return err
}

// ============================================================================
// Source updates and merges
// ============================================================================

// UpdateSource replaces the raw content of a table and rebuilds every table
// merged from it. Merged tables themselves cannot be replaced.
func (s *Service) UpdateSource(ctx context.Context, id string, columns []string, rows [][]any) (CascadeResult, error) {
	existing, err := s.store.GetSource(ctx, id)
	if err != nil {
		return CascadeResult{}, err
	}
	if _, err := s.store.GetMerge(ctx, id); err == nil {
		return CascadeResult{}, ErrValidation("table %s is a merged table; update its sources instead", id)
	} else if !isNotFound(err) {
		return CascadeResult{}, fmt.Errorf("load merge: %w", err)
	}

	updated := TableSource{
		ID:        id,
		Name:      existing.Name,
		Columns:   columns,
		Rows:      rows,
		CreatedAt: existing.CreatedAt,
		UpdatedAt: time.Now().UTC(),
	}
	if err := updated.Validate(); err != nil {
		return CascadeResult{}, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return CascadeResult{}, err
	}
	defer s.limiter.Release()

	if err := s.store.PutSource(ctx, updated); err != nil {
		return CascadeResult{}, fmt.Errorf("save table: %w", err)
	}
	s.log(ctx, id).Info("table content replaced", "columns", len(columns), "rows", len(rows))

	return s.cascader.OnSourceUpdated(ctx, id, updated.Columns)
}

// MergeResult is returned by CreateMerge.
type MergeResult struct {
	Spec    MergeSpec      `json:"spec"`
	Table   SourceInfo     `json:"table"`
	Cascade *CascadeResult `json:"cascade,omitempty"`
}

// CreateMerge builds a derived table from existing tables and records the
// headers each source had. Giving the DerivedID of an existing merged
// table redefines it and rebuilds its own dependents. Merges that would
// create a dependency cycle are rejected.
func (s *Service) CreateMerge(ctx context.Context, spec MergeSpec) (MergeResult, error) {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	if spec.JoinType == "" && spec.Kind == MergeJoin {
		spec.JoinType = JoinInner
	}

	redefine := false
	var createdAt time.Time
	if spec.DerivedID == "" {
		spec.DerivedID = uuid.NewString()
	} else if prev, err := s.store.GetSource(ctx, spec.DerivedID); err == nil {
		if _, err := s.store.GetMerge(ctx, spec.DerivedID); err != nil {
			if isNotFound(err) {
				return MergeResult{}, ErrConflict("table %s exists and is not a merged table", spec.DerivedID)
			}
			return MergeResult{}, fmt.Errorf("load merge: %w", err)
		}
		redefine = true
		createdAt = prev.CreatedAt
	} else if !isNotFound(err) {
		return MergeResult{}, err
	}

	if err := spec.Validate(); err != nil {
		return MergeResult{}, err
	}

	sources := make(map[string]TableSource, len(spec.Sources))
	for i, ms := range spec.Sources {
		src, err := s.store.GetSource(ctx, ms.SourceID)
		if err != nil {
			return MergeResult{}, err
		}
		sources[ms.SourceID] = src
		spec.Sources[i].Headers = append([]string(nil), src.Columns...)
	}

	specs, err := s.store.ListMerges(ctx)
	if err != nil {
		return MergeResult{}, fmt.Errorf("list merges: %w", err)
	}
	if err := NewDependencyGraph(specs).CheckAdd(spec); err != nil {
		return MergeResult{}, err
	}

	derived, err := ExecuteMerge(spec, sources)
	if err != nil {
		return MergeResult{}, err
	}
	if strings.TrimSpace(derived.Name) == "" {
		derived.Name = spec.DerivedID
		spec.Name = derived.Name
	}
	now := time.Now().UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	derived.CreatedAt, derived.UpdatedAt = createdAt, now
	spec.CreatedAt = now

	if err := s.store.PutSource(ctx, derived); err != nil {
		return MergeResult{}, fmt.Errorf("save merged table: %w", err)
	}
	if err := s.store.PutMerge(ctx, spec); err != nil {
		return MergeResult{}, fmt.Errorf("save merge: %w", err)
	}
	s.log(ctx, spec.DerivedID).Info("merge created", "kind", spec.Kind, "sources", spec.SourceIDs(), "rows", len(derived.Rows), "redefined", redefine)

	result := MergeResult{Spec: spec, Table: derived.Info()}
	result.Table.Derived = true
	if redefine {
		if err := s.limiter.Acquire(ctx); err != nil {
			return result, err
		}
		defer s.limiter.Release()
		cascade, err := s.cascader.OnSourceUpdated(ctx, spec.DerivedID, derived.Columns)
		if err != nil {
			return result, err
		}
		result.Cascade = &cascade
	}
	return result, nil
}

// ListMerges returns every stored merge definition.
func (s *Service) ListMerges(ctx context.Context) ([]MergeSpec, error) {
	specs, err := s.store.ListMerges(ctx)
	if err != nil {
		return nil, fmt.Errorf("list merges: %w", err)
	}
	return specs, nil
}

// WaitForCascades blocks until running cascades finish. Used for graceful
// shutdown.
func (s *Service) WaitForCascades(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// CascadeStatus reports the cascade limiter state.
func (s *Service) CascadeStatus() LimiterStatus {
	return s.limiter.Status()
}

func isNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
