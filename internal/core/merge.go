package core

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/wrkportal/sheetengine/internal/cell"
)

// MergeKind selects how sources are combined.
type MergeKind string

const (
	MergeUnion MergeKind = "union"
	MergeJoin  MergeKind = "join"
)

// JoinType selects which left rows survive a join.
type JoinType string

const (
	JoinInner JoinType = "inner"
	JoinLeft  JoinType = "left"
)

// MergeSource is one input of a merge with the headers it had when the
// merged table was built.
type MergeSource struct {
	SourceID string   `json:"sourceId" yaml:"sourceId"`
	Headers  []string `json:"headers" yaml:"headers"`
}

// MergeSpec describes how a derived table is rebuilt from its sources.
type MergeSpec struct {
	DerivedID string        `json:"derivedId" yaml:"derivedId"`
	Name      string        `json:"name" yaml:"name"`
	Kind      MergeKind     `json:"kind" yaml:"kind"`
	JoinKey   string        `json:"joinKey,omitempty" yaml:"joinKey,omitempty"`
	JoinType  JoinType      `json:"joinType,omitempty" yaml:"joinType,omitempty"`
	Sources   []MergeSource `json:"sources" yaml:"sources"`
	CreatedAt time.Time     `json:"createdAt" yaml:"createdAt"`
}

// Edges returns one dependency edge per source.
func (m MergeSpec) Edges() []DependencyEdge {
	edges := make([]DependencyEdge, len(m.Sources))
	for i, s := range m.Sources {
		edges[i] = DependencyEdge{DerivedID: m.DerivedID, SourceID: s.SourceID}
	}
	return edges
}

// SourceIDs returns the source ids in merge order.
func (m MergeSpec) SourceIDs() []string {
	ids := make([]string, len(m.Sources))
	for i, s := range m.Sources {
		ids[i] = s.SourceID
	}
	return ids
}

// Source returns the recorded input for id.
func (m MergeSpec) Source(id string) (MergeSource, bool) {
	for _, s := range m.Sources {
		if s.SourceID == id {
			return s, true
		}
	}
	return MergeSource{}, false
}

// Validate checks the spec's shape. It does not look at stored tables.
func (m MergeSpec) Validate() error {
	switch m.Kind {
	case MergeUnion:
	case MergeJoin:
		if strings.TrimSpace(m.JoinKey) == "" {
			return ErrValidation("invalid merge: join requires a join key")
		}
		switch m.JoinType {
		case "", JoinInner, JoinLeft:
		default:
			return ErrValidation("invalid merge: unknown join type %q", m.JoinType)
		}
	default:
		return ErrValidation("invalid merge: unknown kind %q", m.Kind)
	}
	if len(m.Sources) < 2 {
		return ErrValidation("invalid merge: at least two sources are required")
	}
	seen := make(map[string]bool, len(m.Sources))
	for _, s := range m.Sources {
		if s.SourceID == "" {
			return ErrValidation("invalid merge: empty source id")
		}
		if seen[s.SourceID] {
			return ErrValidation("invalid merge: source %s listed twice", s.SourceID)
		}
		if s.SourceID == m.DerivedID {
			return &CycleError{Path: []string{m.DerivedID, m.DerivedID}}
		}
		seen[s.SourceID] = true
	}
	return nil
}

// ExecuteMerge rebuilds the derived table from its current sources. The
// result carries the spec's DerivedID and Name.
//
// A union requires every source to have the first source's headers and
// concatenates rows in source order. A join folds sources left to right
// on JoinKey; non-key columns that collide with an existing column are
// renamed "<col>_<n>" where n is the 1-based position of their source.
func ExecuteMerge(spec MergeSpec, sources map[string]TableSource) (TableSource, error) {
	if err := spec.Validate(); err != nil {
		return TableSource{}, err
	}
	inputs := make([]TableSource, len(spec.Sources))
	for i, ms := range spec.Sources {
		src, ok := sources[ms.SourceID]
		if !ok {
			return TableSource{}, ErrNotFound("table not found: %s", ms.SourceID)
		}
		inputs[i] = src
	}

	var out TableSource
	var err error
	switch spec.Kind {
	case MergeUnion:
		out, err = unionSources(inputs)
	case MergeJoin:
		out, err = joinSources(inputs, spec.JoinKey, spec.JoinType)
	}
	if err != nil {
		return TableSource{}, err
	}
	out.ID = spec.DerivedID
	out.Name = spec.Name
	return out, nil
}

func unionSources(inputs []TableSource) (TableSource, error) {
	columns := append([]string(nil), inputs[0].Columns...)
	rows := make([][]any, 0)
	for _, src := range inputs {
		if !slices.Equal(src.Columns, columns) {
			return TableSource{}, ErrValidation("invalid merge: union requires identical headers, %s has [%s], expected [%s]",
				src.ID, strings.Join(src.Columns, ", "), strings.Join(columns, ", "))
		}
		for _, row := range src.Rows {
			rows = append(rows, append([]any(nil), row...))
		}
	}
	return TableSource{Columns: columns, Rows: rows}, nil
}

func joinSources(inputs []TableSource, key string, jt JoinType) (TableSource, error) {
	left := inputs[0]
	leftKey := slices.Index(left.Columns, key)
	if leftKey < 0 {
		return TableSource{}, ErrValidation("invalid merge: join key %q not found in %s", key, left.ID)
	}

	columns := append([]string(nil), left.Columns...)
	rows := make([][]any, len(left.Rows))
	for i, row := range left.Rows {
		rows[i] = append([]any(nil), row...)
	}

	for n, right := range inputs[1:] {
		rightKey := slices.Index(right.Columns, key)
		if rightKey < 0 {
			return TableSource{}, ErrValidation("invalid merge: join key %q not found in %s", key, right.ID)
		}

		var keep []int
		for i, c := range right.Columns {
			if i == rightKey {
				continue
			}
			keep = append(keep, i)
			columns = append(columns, uniqueName(columns, c, n+2))
		}

		index := make(map[string][][]any, len(right.Rows))
		for _, row := range right.Rows {
			k := joinKey(row[rightKey])
			if k == "" {
				continue
			}
			index[k] = append(index[k], row)
		}

		joined := make([][]any, 0, len(rows))
		for _, row := range rows {
			var matches [][]any
			if k := joinKey(row[leftKey]); k != "" {
				matches = index[k]
			}
			if len(matches) == 0 {
				if jt == JoinLeft {
					joined = append(joined, append(row, make([]any, len(keep))...))
				}
				continue
			}
			for _, m := range matches {
				combined := make([]any, 0, len(row)+len(keep))
				combined = append(combined, row...)
				for _, i := range keep {
					combined = append(combined, m[i])
				}
				joined = append(joined, combined)
			}
		}
		rows = joined
	}

	return TableSource{Columns: columns, Rows: rows}, nil
}

func joinKey(v any) string {
	return strings.TrimSpace(cell.String(v))
}

func uniqueName(existing []string, name string, n int) string {
	if !slices.Contains(existing, name) {
		return name
	}
	for ; ; n++ {
		candidate := fmt.Sprintf("%s_%d", name, n)
		if !slices.Contains(existing, candidate) {
			return candidate
		}
	}
}
